package client

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

type LinkState int

const (
	StateIdle LinkState = iota
	StateOffering
	StateAwaitingAnswer
	StateAnswering
	StateConnected
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// GlarePolicy decides who yields when both sides offer at once.
type GlarePolicy int

const (
	// GlarePolite: both sides abandon the colliding connection. The side with
	// the higher participant id offers again on a fresh one and the lower id
	// answers it.
	GlarePolite GlarePolicy = iota
	// GlareKeepLocal: a pending local offer always wins.
	GlareKeepLocal
)

func (g GlarePolicy) String() string {
	if g == GlareKeepLocal {
		return "keep-local"
	}
	return "polite"
}

func ParseGlarePolicy(s string) (GlarePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "polite":
		return GlarePolite, nil
	case "keep-local":
		return GlareKeepLocal, nil
	default:
		return GlarePolite, fmt.Errorf("unknown glare policy %q", s)
	}
}

type LinkConfig struct {
	Local  domain.ParticipantID
	Remote domain.ParticipantID
	Conn   core.MediaConnection
	Glare  GlarePolicy

	// OnRenegotiate receives the offer produced by a track change.
	OnRenegotiate func(webrtc.SessionDescription)
	OnCandidate   func(webrtc.ICECandidateInit)
	OnTrack       func(*webrtc.TrackRemote)
	// OnFailed is called once when the transport fails.
	OnFailed func()
}

// PeerLink is the single-use negotiation state machine for one remote.
type PeerLink struct {
	cfg    LinkConfig
	log    zerolog.Logger
	closed atomic.Bool

	mu                 sync.Mutex
	state              LinkState
	committed          bool
	remoteSet          bool
	queued             []webrtc.ICECandidateInit
	renegotiatePending bool
	failOnce           sync.Once

	// Local candidates are held until the first description has been sent.
	outMu     sync.Mutex
	announced bool
	outbound  []webrtc.ICECandidateInit
}

func NewPeerLink(cfg LinkConfig) *PeerLink {
	l := &PeerLink{
		cfg: cfg,
		log: log.With().Str("module", "client.peer").
			Str("user", cfg.Local.String()).Str("remote", cfg.Remote.String()).Logger(),
	}
	cfg.Conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if l.closed.Load() || cfg.OnCandidate == nil {
			return
		}
		l.outMu.Lock()
		if !l.announced {
			l.outbound = append(l.outbound, c)
			l.outMu.Unlock()
			return
		}
		l.outMu.Unlock()
		cfg.OnCandidate(c)
	})
	cfg.Conn.OnTrack(func(t *webrtc.TrackRemote) {
		if !l.closed.Load() && cfg.OnTrack != nil {
			cfg.OnTrack(t)
		}
	})
	cfg.Conn.OnFailed(func() {
		if l.closed.Load() || cfg.OnFailed == nil {
			return
		}
		l.failOnce.Do(cfg.OnFailed)
	})
	return l
}

func (l *PeerLink) Remote() domain.ParticipantID { return l.cfg.Remote }

func (l *PeerLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// polite reports whether this side waits for the remote to offer again.
func (l *PeerLink) polite() bool {
	return l.cfg.Local < l.cfg.Remote
}

// Call produces and commits a local offer.
func (l *PeerLink) Call() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return webrtc.SessionDescription{}, core.ErrClosed
	}
	if l.state != StateIdle && l.state != StateConnected {
		return webrtc.SessionDescription{}, fmt.Errorf("call from %s: %w", l.state, ErrInvalidState)
	}
	return l.offerLocked()
}

func (l *PeerLink) offerLocked() (webrtc.SessionDescription, error) {
	prev := l.state
	l.state = StateOffering
	offer, err := l.cfg.Conn.CreateOffer()
	if err != nil {
		l.state = prev
		return webrtc.SessionDescription{}, fmt.Errorf("call %s: %w", l.cfg.Remote, err)
	}
	l.committed = true
	l.state = StateAwaitingAnswer
	return offer, nil
}

// Answer applies a remote offer. It returns nil, nil when the offer collides
// with a pending local offer under GlareKeepLocal. Under GlarePolite a
// collision returns ErrGlareYield or ErrGlareRestart and leaves the link
// unusable; the caller replaces it.
func (l *PeerLink) Answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return nil, core.ErrClosed
	}
	if l.state == StateOffering || l.state == StateAwaitingAnswer {
		switch {
		case l.cfg.Glare == GlareKeepLocal:
			l.log.Debug().Msg("glare: keeping local offer")
			return nil, nil
		case l.polite():
			l.log.Debug().Msg("glare: yielding")
			return nil, ErrGlareYield
		default:
			l.log.Debug().Msg("glare: restarting")
			return nil, ErrGlareRestart
		}
	}

	prev := l.state
	l.state = StateAnswering
	if err := l.cfg.Conn.SetRemoteDescription(offer); err != nil {
		l.state = prev
		return nil, err
	}
	l.remoteSet = true
	l.flushLocked()

	answer, err := l.cfg.Conn.CreateAnswer()
	if err != nil {
		l.state = prev
		return nil, fmt.Errorf("answer %s: %w", l.cfg.Remote, err)
	}
	l.committed = true
	l.state = StateConnected
	return &answer, nil
}

// Accept applies the remote answer to our pending offer.
func (l *PeerLink) Accept(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return core.ErrClosed
	}
	if l.state != StateAwaitingAnswer {
		return fmt.Errorf("answer in %s: %w", l.state, ErrInvalidState)
	}
	if err := l.cfg.Conn.SetRemoteDescription(answer); err != nil {
		return err
	}
	l.remoteSet = true
	l.state = StateConnected
	l.flushLocked()
	l.settleLocked()
	return nil
}

// settleLocked runs a renegotiation deferred while an exchange was in flight.
func (l *PeerLink) settleLocked() {
	if !l.renegotiatePending || l.state != StateConnected {
		return
	}
	l.renegotiatePending = false
	l.renegotiateLocked()
}

func (l *PeerLink) renegotiateLocked() {
	offer, err := l.offerLocked()
	if err != nil {
		l.log.Warn().Err(err).Msg("renegotiate")
		return
	}
	if l.cfg.OnRenegotiate != nil {
		l.cfg.OnRenegotiate(offer)
	}
}

// trackChangedLocked renegotiates only once a local description exists.
// Without one the first offer is still to come and will carry the change.
func (l *PeerLink) trackChangedLocked() {
	if !l.committed {
		return
	}
	if l.state == StateConnected {
		l.renegotiateLocked()
		return
	}
	l.renegotiatePending = true
}

func (l *PeerLink) AddTrack(track webrtc.TrackLocal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return core.ErrClosed
	}
	if err := l.cfg.Conn.AddTrack(track); err != nil {
		return err
	}
	l.trackChangedLocked()
	return nil
}

func (l *PeerLink) RemoveTrack(trackID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return core.ErrClosed
	}
	if err := l.cfg.Conn.RemoveTrack(trackID); err != nil {
		return err
	}
	l.trackChangedLocked()
	return nil
}

// AddICECandidate applies c, or queues it until a remote description is set.
func (l *PeerLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return core.ErrClosed
	}
	if !l.remoteSet {
		l.queued = append(l.queued, c)
		return nil
	}
	return l.cfg.Conn.AddICECandidate(c)
}

func (l *PeerLink) flushLocked() {
	for _, c := range l.queued {
		if err := l.cfg.Conn.AddICECandidate(c); err != nil {
			l.log.Warn().Err(err).Msg("apply queued candidate")
		}
	}
	l.queued = nil
}

// Announce marks the local description as delivered to the remote and
// releases the candidates gathered so far.
func (l *PeerLink) Announce() {
	l.outMu.Lock()
	if l.announced {
		l.outMu.Unlock()
		return
	}
	l.announced = true
	pending := l.outbound
	l.outbound = nil
	l.outMu.Unlock()
	for _, c := range pending {
		if l.closed.Load() {
			return
		}
		l.cfg.OnCandidate(c)
	}
}

// Close releases the connection. It is idempotent.
func (l *PeerLink) Close() {
	if l.closed.Swap(true) {
		return
	}
	l.mu.Lock()
	l.state = StateClosed
	l.queued = nil
	l.mu.Unlock()
	if err := l.cfg.Conn.Close(); err != nil {
		l.log.Warn().Err(err).Msg("close")
	}
}
