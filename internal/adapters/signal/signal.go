package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

// Options tune the server side of the WebSocket SignalChannel.
type Options struct {
	ReadLimit  int64
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  64 << 10,
		WriteWait:  5 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 50 * time.Second,
		SendBuffer: 32,
	}
}

type SignalWSController struct {
	Router *app.Router
	opts   Options
}

func NewSignalWSController(router *app.Router, opts Options) *SignalWSController {
	return &SignalWSController{Router: router, opts: opts}
}

// WsSignalConn is the server end of one SignalChannel.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	h := domain.NewConnHandle()
	log.Info().Str("module", "signal").Str("conn", string(h)).
		Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, max(ctl.opts.SendBuffer, 1)),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Router.Connect(h, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, h, conn)
}
