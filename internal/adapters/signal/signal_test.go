package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Converse/internal/app"
	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/protocol"
)

func newServer(t *testing.T) (string, *app.Router) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := app.NewRouter(core.NewRegistry(), app.NewSessions(), app.SimplePolicy{}, nil)
	ctl := NewSignalWSController(router, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	engine := gin.New()
	engine.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", router
}

func dial(t *testing.T, url string) *Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ch, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

// expect reads until an envelope of type typ from user arrives.
func expect(t *testing.T, ch *Channel, typ protocol.Type, user domain.ParticipantID) protocol.Envelope {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case env, ok := <-ch.Incoming():
			if !ok {
				t.Fatalf("channel closed waiting for %s", typ)
			}
			if env.Type == typ && env.UserID == user {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s from %d", typ, user)
		}
	}
}

func TestSignalChannelRoundTrip(t *testing.T) {
	url, _ := newServer(t)

	a := dial(t, url)
	expect(t, a, protocol.TypeCurrentRooms, 0)
	if err := a.Send(protocol.Envelope{Type: protocol.TypeJoinRoom, RoomID: "r1", UserID: 1}); err != nil {
		t.Fatal(err)
	}
	expect(t, a, protocol.TypeJoinRoom, 1)

	b := dial(t, url)
	if err := b.Send(protocol.Envelope{Type: protocol.TypeJoinRoom, RoomID: "r1", UserID: 2}); err != nil {
		t.Fatal(err)
	}
	expect(t, b, protocol.TypeJoinRoom, 2)
	expect(t, a, protocol.TypeJoinRoom, 2)

	if err := a.Send(protocol.Envelope{Type: protocol.TypeChat, Msg: "hello"}); err != nil {
		t.Fatal(err)
	}
	if got := expect(t, b, protocol.TypeChat, 1); got.Msg != "hello" || got.RoomID != "r1" {
		t.Errorf("chat = %+v", got)
	}

	_ = a.Close()
	left := expect(t, b, protocol.TypeLeaveRoom, 1)
	if left.RoomID != "r1" {
		t.Errorf("leave-room room = %q", left.RoomID)
	}
}

func TestLeaveRoomClosesSenderChannel(t *testing.T) {
	url, router := newServer(t)

	a := dial(t, url)
	if err := a.Send(protocol.Envelope{Type: protocol.TypeJoinRoom, RoomID: "r1", UserID: 1}); err != nil {
		t.Fatal(err)
	}
	expect(t, a, protocol.TypeJoinRoom, 1)
	if err := a.Send(protocol.Envelope{Type: protocol.TypeLeaveRoom}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-a.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("server did not close the channel")
	}
	if rooms := router.Rooms.ListRooms(); len(rooms) != 0 {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestPingPongOverWire(t *testing.T) {
	url, _ := newServer(t)
	a := dial(t, url)
	if err := a.Send(protocol.Envelope{Type: protocol.TypePing}); err != nil {
		t.Fatal(err)
	}
	expect(t, a, protocol.TypePong, 0)
}
