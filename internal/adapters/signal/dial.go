package signal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/protocol"
)

const clientWriteWait = 5 * time.Second

// Channel is the client end of a SignalChannel.
type Channel struct {
	conn *websocket.Conn
	in   chan protocol.Envelope

	wmu       sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a SignalChannel to a server /ws endpoint.
func Dial(ctx context.Context, url string, header http.Header) (*Channel, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	ch := &Channel{
		conn: ws,
		in:   make(chan protocol.Envelope, 64),
		done: make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// Incoming yields decoded envelopes in server relay order. It is closed when
// the channel goes down.
func (c *Channel) Incoming() <-chan protocol.Envelope { return c.in }

// Done is closed once the channel has been shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) Send(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	select {
	case <-c.done:
		return core.ErrClosed
	default:
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait)); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wmu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readLoop() {
	defer close(c.in)
	defer func() { _ = c.Close() }()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Info().Err(err).Str("module", "signal.client").Msg("channel closed by server")
			}
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal.client").Msg("drop frame")
			continue
		}
		select {
		case c.in <- env:
		case <-c.done:
			return
		}
	}
}
