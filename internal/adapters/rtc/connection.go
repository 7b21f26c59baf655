package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
)

var ErrUnknownTrack = errors.New("unknown local track")

// WebRTCConnection implements core.MediaConnection over a pion PeerConnection.
// Candidates trickle through OnICECandidate; descriptions are returned as soon
// as they are committed.
type WebRTCConnection struct {
	pc    *webrtc.PeerConnection
	label string

	mu       sync.Mutex
	senders  map[string]*webrtc.RTPSender
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(*webrtc.TrackRemote)
	onFailed func()
	closing  bool
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// ConfigWithServers builds a configuration from ICE server URLs. An empty
// list yields host candidates only.
func ConfigWithServers(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: urls}}}
}

// NewFactory returns a core.MediaFactory that opens connections with cfg.
func NewFactory(cfg webrtc.Configuration) core.MediaFactory {
	return func() (core.MediaConnection, error) {
		return NewWebRTCConnection(cfg, "")
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, label string) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := &WebRTCConnection{pc: pc, label: label, senders: make(map[string]*webrtc.RTPSender)}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", c.label).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s != webrtc.PeerConnectionStateFailed && s != webrtc.PeerConnectionStateClosed {
			return
		}
		c.mu.Lock()
		fn, closing := c.onFailed, c.closing
		c.mu.Unlock()
		if fn != nil && !closing {
			fn()
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", c.label).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})

	return c, nil
}

func (c *WebRTCConnection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return offer, nil
}

func (c *WebRTCConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

func (c *WebRTCConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}
	return nil
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddTrack attaches a local track. RTCP from the remote is drained so the
// interceptors keep running.
func (c *WebRTCConnection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add track %s: %w", track.ID(), err)
	}
	c.mu.Lock()
	c.senders[track.ID()] = sender
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) RemoveTrack(trackID string) error {
	c.mu.Lock()
	sender, ok := c.senders[trackID]
	delete(c.senders, trackID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, trackID)
	}
	if err := c.pc.RemoveTrack(sender); err != nil {
		return fmt.Errorf("remove track %s: %w", trackID, err)
	}
	return nil
}

func (c *WebRTCConnection) SignalingState() webrtc.SignalingState { return c.pc.SignalingState() }

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(*webrtc.TrackRemote)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// OnFailed sets the callback for a connection that failed or was closed by
// the transport. A local Close does not trigger it.
func (c *WebRTCConnection) OnFailed(fn func()) {
	c.mu.Lock()
	c.onFailed = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", c.label).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("peer", c.label).Msg("closed")
	return nil
}
