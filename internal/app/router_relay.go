package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/protocol"
)

// relayNegotiation forwards offer, answer and ICE envelopes to the rest of the
// room, stamped with the sender and the current streamer snapshot.
func (r *Router) relayNegotiation(h domain.ConnHandle, env protocol.Envelope) {
	room, pid, err := r.sender(h)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("conn", string(h)).
			Str("type", string(env.Type)).Msg("drop negotiation")
		return
	}
	env.RoomID = room
	env.UserID = pid
	env.Rooms = nil
	r.broadcast(r.Rooms.Members(room), env.WithStreamers(r.Rooms.Streamers(room)), h)
}

func (r *Router) chat(h domain.ConnHandle, env protocol.Envelope) {
	room, pid, err := r.sender(h)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("conn", string(h)).Msg("drop chat")
		return
	}
	if !r.Limiter.Allow(h) {
		log.Warn().Str("module", "app.router").Str("conn", string(h)).Str("user", pid.String()).Msg("chat rate limited")
		return
	}
	r.broadcast(r.Rooms.Members(room), protocol.Envelope{
		Type: protocol.TypeChat, RoomID: room, UserID: pid, Msg: env.Msg,
	}, "")
}
