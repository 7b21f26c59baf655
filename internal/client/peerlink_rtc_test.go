package client

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Converse/internal/adapters/rtc"
	"github.com/dkeye/Converse/internal/domain"
)

func newRTCLink(t *testing.T, local, remote domain.ParticipantID) (*PeerLink, *rtc.WebRTCConnection) {
	t.Helper()
	conn, err := rtc.NewWebRTCConnection(webrtc.Configuration{}, "peer-"+local.String())
	if err != nil {
		t.Fatal(err)
	}
	l := NewPeerLink(LinkConfig{Local: local, Remote: remote, Conn: conn, Glare: GlarePolite})
	t.Cleanup(l.Close)
	if err := l.AddTrack(newTestTrack("audio-" + local.String())); err != nil {
		t.Fatal(err)
	}
	return l, conn
}

func TestGlareResolvesOverPeerConnections(t *testing.T) {
	a, _ := newRTCLink(t, 1, 2)
	b, _ := newRTCLink(t, 2, 1)

	offerA, err := a.Call()
	if err != nil {
		t.Fatal(err)
	}
	offerB, err := b.Call()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Answer(offerA); !errors.Is(err, ErrGlareRestart) {
		t.Fatalf("higher id: %v, want ErrGlareRestart", err)
	}
	if _, err := a.Answer(offerB); !errors.Is(err, ErrGlareYield) {
		t.Fatalf("lower id: %v, want ErrGlareYield", err)
	}
	a.Close()
	b.Close()

	a2, connA := newRTCLink(t, 1, 2)
	b2, connB := newRTCLink(t, 2, 1)
	offer, err := b2.Call()
	if err != nil {
		t.Fatal(err)
	}
	answer, err := a2.Answer(offer)
	if err != nil || answer == nil {
		t.Fatalf("answer on fresh connection = %v, %v", answer, err)
	}
	if err := b2.Accept(*answer); err != nil {
		t.Fatal(err)
	}

	if a2.State() != StateConnected || b2.State() != StateConnected {
		t.Fatalf("states: a=%s b=%s", a2.State(), b2.State())
	}
	for name, c := range map[string]*rtc.WebRTCConnection{"a": connA, "b": connB} {
		if s := c.SignalingState(); s != webrtc.SignalingStateStable {
			t.Errorf("%s signaling state = %s", name, s)
		}
	}
}
