package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/protocol"
)

var ErrNotInRoom = errors.New("connection is not in a room")

// Router is the server-side dispatcher. It holds no room state of its own:
// every decision is made against the Registry.
type Router struct {
	Rooms    *core.Registry
	Sessions *Sessions
	Policy   Policy
	Limiter  *RateLimiter
}

func NewRouter(rooms *core.Registry, sessions *Sessions, policy Policy, limiter *RateLimiter) *Router {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Router{Rooms: rooms, Sessions: sessions, Policy: policy, Limiter: limiter}
}

// Connect registers a new signaling connection and sends it the lobby.
func (r *Router) Connect(h domain.ConnHandle, conn core.SignalConnection, cancel context.CancelFunc) {
	r.Sessions.Bind(h, conn, cancel)
	r.send(h, protocol.Envelope{Type: protocol.TypeCurrentRooms, Rooms: r.Rooms.ListRooms()})
}

// HandleFrame decodes one inbound frame. Malformed frames are dropped.
func (r *Router) HandleFrame(h domain.ConnHandle, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("conn", string(h)).Msg("drop frame")
		return
	}
	r.Handle(h, env)
}

func (r *Router) Handle(h domain.ConnHandle, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoinRoom:
		r.joinRoom(h, env)
	case protocol.TypeLeaveRoom:
		r.leaveRoom(h)
	case protocol.TypeJoinStream:
		r.joinStream(h)
	case protocol.TypeLeaveStream:
		r.leaveStream(h)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		r.relayNegotiation(h, env)
	case protocol.TypeChat:
		r.chat(h, env)
	case protocol.TypePing:
		r.send(h, protocol.Envelope{Type: protocol.TypePong})
	default:
		log.Warn().Str("module", "app.router").Str("conn", string(h)).
			Str("type", string(env.Type)).Msg("unexpected client envelope")
	}
}

// Disconnect is the transport-level leave. It is safe to call more than once
// and after an explicit leave-room.
func (r *Router) Disconnect(h domain.ConnHandle) {
	if dep, ok := r.Rooms.Leave(h); ok {
		r.announceDeparture(dep)
		r.broadcastLobby()
	}
	r.Limiter.Forget(h)
	r.Sessions.Unbind(h)
}

// sender resolves the room and participant the registry holds for h.
func (r *Router) sender(h domain.ConnHandle) (domain.RoomID, domain.ParticipantID, error) {
	room, pid, ok := r.Rooms.RoomOf(h)
	if !ok {
		return "", 0, ErrNotInRoom
	}
	return room, pid, nil
}

func (r *Router) send(h domain.ConnHandle, env protocol.Envelope) {
	conn, ok := r.Sessions.Get(h)
	if !ok {
		return
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode")
		return
	}
	r.deliver(h, conn, frame)
}

// broadcast encodes env once and fans it out to members, skipping except.
func (r *Router) broadcast(members []core.Member, env protocol.Envelope, except domain.ConnHandle) {
	frame, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode")
		return
	}
	for _, m := range members {
		if m.Handle == except {
			continue
		}
		if conn, ok := r.Sessions.Get(m.Handle); ok {
			r.deliver(m.Handle, conn, frame)
		}
	}
}

func (r *Router) broadcastLobby() {
	frame, err := protocol.Encode(protocol.Envelope{Type: protocol.TypeCurrentRooms, Rooms: r.Rooms.ListRooms()})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encode")
		return
	}
	for _, b := range r.Sessions.All() {
		r.deliver(b.Handle, b.Conn, frame)
	}
}

func (r *Router) deliver(h domain.ConnHandle, conn core.SignalConnection, frame core.Frame) {
	err := conn.TrySend(frame)
	if err == nil {
		return
	}
	if errors.Is(err, core.ErrClosed) {
		log.Debug().Str("module", "app.router").Str("conn", string(h)).Msg("send on closed connection")
		return
	}
	room, _, _ := r.Rooms.RoomOf(h)
	action := r.Policy.OnBackPressure(room, h)
	log.Warn().Err(err).Str("module", "app.router").Str("conn", string(h)).
		Str("action", action.String()).Msg("slow connection")
	if action == KickMember {
		r.Sessions.Cancel(h)
	}
}
