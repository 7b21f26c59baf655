package client

import (
	"errors"
	"slices"

	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/protocol"
)

// Handle applies one relayed envelope. Envelopes that no longer apply are
// dropped silently.
func (m *MeshController) Handle(env protocol.Envelope) {
	self := m.cfg.Local
	switch env.Type {
	case protocol.TypeChat:
		m.emit(ChatReceived{From: env.UserID, Msg: env.Msg, Self: env.UserID == self})

	case protocol.TypeJoinRoom:
		if env.UserID == self {
			m.mu.Lock()
			m.joining = true
			m.mu.Unlock()
			m.emit(Notice{Text: welcomeNotice(env.RoomID, self)})
		} else {
			m.emit(Notice{Text: joinedNotice(env.UserID)})
		}

	case protocol.TypeCurrentStreamers:
		if env.UserID != self || len(env.Streamers) == 0 {
			return
		}
		m.setStreamers(env.Streamers)
		m.emit(Notice{Text: currentStreamersNotice(env.Streamers)})

	case protocol.TypeJoinStream:
		m.emit(Notice{Text: joinedStreamNotice(env.UserID, self)})
		m.setStreamers(env.Streamers)

	case protocol.TypeUserStreamer:
		m.onUserStreamer(env)

	case protocol.TypeLeaveStream:
		m.emit(Notice{Text: leftStreamNotice(env.UserID, self)})
		if env.UserID == self {
			m.mu.Lock()
			m.closeAllLocked()
			m.mu.Unlock()
		} else {
			m.dropLink(env.UserID, nil)
		}
		m.setStreamers(env.Streamers)

	case protocol.TypeLeaveRoom:
		if env.UserID == self {
			return
		}
		m.emit(Notice{Text: leftRoomNotice(env.UserID)})
		m.dropLink(env.UserID, nil)
		m.setStreamers(env.Streamers)

	case protocol.TypeOffer:
		m.onOffer(env)

	case protocol.TypeAnswer:
		m.onAnswer(env)

	case protocol.TypeICECandidate:
		m.onCandidate(env)

	case protocol.TypeCurrentRooms:
		m.emit(RoomsUpdated{Rooms: env.Rooms})
		// The server unicasts current-streamers before this lobby update.
		m.mu.Lock()
		ready, room := m.joining, m.room
		m.joining = false
		m.mu.Unlock()
		if ready && room != "" {
			m.emit(RoomReady{Room: room})
		}

	case protocol.TypePong:
	default:
		m.log.Debug().Str("type", string(env.Type)).Msg("ignored envelope")
	}
}

func (m *MeshController) setStreamers(s []domain.ParticipantID) {
	m.mu.Lock()
	m.streamers = slices.Clone(s)
	streaming := m.streaming
	m.mu.Unlock()
	m.emit(StreamersUpdated{Streamers: slices.Clone(s), Streaming: streaming})
}

// relevant reports whether a negotiation envelope is for the local side of a
// live streaming pair.
func (m *MeshController) relevant(env protocol.Envelope) bool {
	self := m.cfg.Local
	if env.UserID == self || !env.AddressedTo(self) {
		return false
	}
	return env.Streaming(self) && env.Streaming(env.UserID)
}

func (m *MeshController) onUserStreamer(env protocol.Envelope) {
	m.setStreamers(env.Streamers)
	remote := env.UserID
	if remote == m.cfg.Local || !env.Streaming(m.cfg.Local) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.streaming {
		return
	}
	if _, ok := m.links[remote]; ok {
		return
	}
	m.callLocked(remote)
}

// callLocked opens a link to remote and sends it our offer.
func (m *MeshController) callLocked(remote domain.ParticipantID) {
	l, _, err := m.linkLocked(remote)
	if err != nil {
		m.log.Warn().Err(err).Str("remote", remote.String()).Msg("open media connection")
		return
	}
	offer, err := l.Call()
	if err != nil {
		m.log.Warn().Err(err).Str("remote", remote.String()).Msg("call")
		m.dropLinkLocked(remote, l)
		return
	}
	_ = m.send(protocol.Envelope{
		Type: protocol.TypeOffer, RoomID: m.room, TargetID: protocol.Target(remote), Offer: &offer,
	})
	l.Announce()
}

func (m *MeshController) onOffer(env protocol.Envelope) {
	if env.Offer == nil || !m.relevant(env) {
		return
	}
	remote := env.UserID

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.streaming {
		return
	}
	l, created, err := m.linkLocked(remote)
	if err != nil {
		m.log.Warn().Err(err).Str("remote", remote.String()).Msg("open media connection")
		return
	}
	answer, err := l.Answer(*env.Offer)
	switch {
	case errors.Is(err, ErrGlareYield):
		// The remote restarts on a fresh connection; its next offer opens a new link.
		m.dropLinkLocked(remote, l)
		return
	case errors.Is(err, ErrGlareRestart):
		m.dropLinkLocked(remote, l)
		m.callLocked(remote)
		return
	case err != nil:
		m.log.Warn().Err(err).Str("remote", remote.String()).Msg("answer")
		if created {
			m.dropLinkLocked(remote, l)
		}
		return
	}
	if answer == nil {
		return
	}
	_ = m.send(protocol.Envelope{
		Type: protocol.TypeAnswer, RoomID: m.room, TargetID: protocol.Target(remote), Answer: answer,
	})
	l.Announce()
}

func (m *MeshController) onAnswer(env protocol.Envelope) {
	if env.Answer == nil || !m.relevant(env) {
		return
	}
	m.mu.Lock()
	l, ok := m.links[env.UserID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := l.Accept(*env.Answer); err != nil {
		m.log.Debug().Err(err).Str("remote", env.UserID.String()).Msg("drop answer")
	}
}

func (m *MeshController) onCandidate(env protocol.Envelope) {
	if env.Candidate == nil || !m.relevant(env) {
		return
	}
	m.mu.Lock()
	l, ok := m.links[env.UserID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := l.AddICECandidate(*env.Candidate); err != nil {
		m.log.Debug().Err(err).Str("remote", env.UserID.String()).Msg("drop candidate")
	}
}
