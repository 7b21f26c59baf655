package client

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/protocol"
)

// Sender is the outbound half of a SignalChannel.
type Sender interface {
	Send(protocol.Envelope) error
}

type MeshConfig struct {
	Local    domain.ParticipantID
	Signal   Sender
	NewMedia core.MediaFactory
	Source   *LocalSource
	Glare    GlarePolicy
	// MaxStreamers caps the streamer set StartStream will join. 0 disables it.
	MaxStreamers int
	EventBuffer  int
}

// MeshController owns the local participant's PeerLinks and turns relayed
// envelopes into link lifecycle changes.
type MeshController struct {
	cfg    MeshConfig
	log    zerolog.Logger
	events chan Event

	mu        sync.Mutex
	room      domain.RoomID
	streaming bool
	streamers []domain.ParticipantID
	links     map[domain.ParticipantID]*PeerLink
	// joining is set between our join-room echo and the lobby update the
	// server sends after it.
	joining bool
}

func NewMeshController(cfg MeshConfig) *MeshController {
	if cfg.Source == nil {
		cfg.Source = NewLocalSource()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	return &MeshController{
		cfg:    cfg,
		log:    log.With().Str("module", "client.mesh").Str("user", cfg.Local.String()).Logger(),
		events: make(chan Event, cfg.EventBuffer),
		links:  make(map[domain.ParticipantID]*PeerLink),
	}
}

func (m *MeshController) Events() <-chan Event { return m.events }

func (m *MeshController) Local() domain.ParticipantID { return m.cfg.Local }

func (m *MeshController) Room() domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

func (m *MeshController) Streaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

func (m *MeshController) Streamers() []domain.ParticipantID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.streamers)
}

// Links returns the remotes that currently have a PeerLink.
func (m *MeshController) Links() map[domain.ParticipantID]LinkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.ParticipantID]LinkState, len(m.links))
	for id, l := range m.links {
		out[id] = l.State()
	}
	return out
}

func (m *MeshController) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn().Msgf("event queue full, dropping %T", ev)
	}
}

func (m *MeshController) send(env protocol.Envelope) error {
	env.UserID = m.cfg.Local
	if err := m.cfg.Signal.Send(env); err != nil {
		m.log.Warn().Err(err).Str("type", string(env.Type)).Msg("send")
		return err
	}
	return nil
}

// JoinRoom announces the local participant in room. Switching rooms tears
// down the current mesh first.
func (m *MeshController) JoinRoom(room domain.RoomID) error {
	if err := room.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.room != "" && m.room != room {
		m.closeAllLocked()
		m.streaming = false
		m.streamers = nil
	}
	m.room = room
	m.mu.Unlock()
	return m.send(protocol.Envelope{Type: protocol.TypeJoinRoom, RoomID: room})
}

func (m *MeshController) SendChat(msg string) error {
	room := m.Room()
	if room == "" {
		return ErrNotInRoom
	}
	return m.send(protocol.Envelope{Type: protocol.TypeChat, RoomID: room, Msg: msg})
}

// StartStream opts into the mesh. Existing streamers call us once the server
// relays user-streamer to them.
func (m *MeshController) StartStream() error {
	m.mu.Lock()
	if m.room == "" {
		m.mu.Unlock()
		return ErrNotInRoom
	}
	if m.streaming {
		m.mu.Unlock()
		return nil
	}
	if m.cfg.Source.Len() == 0 {
		m.mu.Unlock()
		return ErrMediaUnavailable
	}
	if m.cfg.MaxStreamers > 0 && len(m.streamers) >= m.cfg.MaxStreamers {
		m.mu.Unlock()
		return ErrStreamFull
	}
	m.streaming = true
	room := m.room
	m.mu.Unlock()
	return m.send(protocol.Envelope{Type: protocol.TypeJoinStream, RoomID: room})
}

// StopStream leaves the mesh, closing every PeerLink in one pass.
func (m *MeshController) StopStream() error {
	m.mu.Lock()
	if !m.streaming {
		m.mu.Unlock()
		return nil
	}
	m.streaming = false
	m.closeAllLocked()
	room := m.room
	m.mu.Unlock()
	return m.send(protocol.Envelope{Type: protocol.TypeLeaveStream, RoomID: room})
}

func (m *MeshController) LeaveRoom() error {
	m.mu.Lock()
	if m.room == "" {
		m.mu.Unlock()
		return ErrNotInRoom
	}
	m.closeAllLocked()
	room := m.room
	m.room = ""
	m.joining = false
	m.streaming = false
	m.streamers = nil
	m.mu.Unlock()
	return m.send(protocol.Envelope{Type: protocol.TypeLeaveRoom, RoomID: room})
}

// AddLocalTrack publishes a new track on every existing PeerLink.
func (m *MeshController) AddLocalTrack(t webrtc.TrackLocal) error {
	if !m.cfg.Source.Add(t) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, l := range m.links {
		if err := l.AddTrack(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MeshController) RemoveLocalTrack(id string) error {
	if !m.cfg.Source.Remove(id) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, l := range m.links {
		if err := l.RemoveTrack(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close tears down every PeerLink without signaling.
func (m *MeshController) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeAllLocked()
	m.streaming = false
}

// closeAllLocked swaps the link table out before closing so no caller sees a
// partially torn-down mesh.
func (m *MeshController) closeAllLocked() {
	links := m.links
	m.links = make(map[domain.ParticipantID]*PeerLink)
	for remote, l := range links {
		l.Close()
		m.emit(LinkClosed{Remote: remote})
	}
}

// dropLink removes link for remote if it is still the current one.
func (m *MeshController) dropLink(remote domain.ParticipantID, link *PeerLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLinkLocked(remote, link)
}

func (m *MeshController) dropLinkLocked(remote domain.ParticipantID, link *PeerLink) {
	cur, ok := m.links[remote]
	if !ok || (link != nil && cur != link) {
		return
	}
	delete(m.links, remote)
	cur.Close()
	m.emit(LinkClosed{Remote: remote})
}

// linkLocked returns the PeerLink for remote, creating it with the local
// tracks attached.
func (m *MeshController) linkLocked(remote domain.ParticipantID) (*PeerLink, bool, error) {
	if l, ok := m.links[remote]; ok {
		return l, false, nil
	}
	conn, err := m.cfg.NewMedia()
	if err != nil {
		return nil, false, err
	}
	room := m.room
	var l *PeerLink
	l = NewPeerLink(LinkConfig{
		Local:  m.cfg.Local,
		Remote: remote,
		Conn:   conn,
		Glare:  m.cfg.Glare,
		OnRenegotiate: func(offer webrtc.SessionDescription) {
			_ = m.send(protocol.Envelope{
				Type: protocol.TypeOffer, RoomID: room, TargetID: protocol.Target(remote), Offer: &offer,
			})
		},
		OnCandidate: func(c webrtc.ICECandidateInit) {
			_ = m.send(protocol.Envelope{
				Type: protocol.TypeICECandidate, RoomID: room, TargetID: protocol.Target(remote), Candidate: &c,
			})
		},
		OnTrack: func(t *webrtc.TrackRemote) {
			m.emit(RemoteTrack{From: remote, Track: t})
		},
		OnFailed: func() {
			m.log.Warn().Str("remote", remote.String()).Msg("peer connection failed")
			go m.dropLink(remote, l)
		},
	})
	for _, t := range m.cfg.Source.Tracks() {
		if err := l.AddTrack(t); err != nil {
			m.log.Warn().Err(err).Str("remote", remote.String()).Str("track", t.ID()).Msg("attach track")
		}
	}
	m.links[remote] = l
	m.emit(LinkOpened{Remote: remote})
	return l, true, nil
}

// Run applies envelopes from in, in order, until ctx ends or in closes.
func (m *MeshController) Run(ctx context.Context, in <-chan protocol.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-in:
			if !ok {
				m.Close()
				return nil
			}
			m.Handle(env)
		}
	}
}
