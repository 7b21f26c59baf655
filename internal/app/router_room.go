package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/protocol"
)

func (r *Router) joinRoom(h domain.ConnHandle, env protocol.Envelope) {
	if err := env.RoomID.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("conn", string(h)).Msg("join rejected")
		return
	}
	snap, prev := r.Rooms.Join(env.RoomID, env.UserID, h)
	if prev != nil {
		if prev.Room == snap.Room {
			log.Info().Str("module", "app.router").Str("conn", string(h)).
				Str("from_user", prev.Participant.String()).Str("user", env.UserID.String()).Msg("changed participant id")
		} else {
			log.Info().Str("module", "app.router").Str("conn", string(h)).
				Str("from_room", string(prev.Room)).Str("room", string(env.RoomID)).Msg("switched room")
		}
		r.announceDeparture(*prev)
	}
	if !snap.Rejoined {
		r.broadcast(snap.Members, protocol.Envelope{
			Type:   protocol.TypeJoinRoom,
			RoomID: snap.Room,
			UserID: env.UserID,
		}, "")
	}
	if len(snap.Streamers) > 0 {
		r.send(h, protocol.Envelope{
			Type:      protocol.TypeCurrentStreamers,
			RoomID:    snap.Room,
			UserID:    env.UserID,
			Streamers: snap.Streamers,
		})
	}
	log.Info().Str("module", "app.router").Str("conn", string(h)).Str("room", string(snap.Room)).
		Str("user", env.UserID.String()).Int("members", len(snap.Members)).Msg("joined room")
	r.broadcastLobby()
}

// leaveRoom removes the sender and closes its channel. The follow-up
// Disconnect from the adapter finds nothing left to remove.
func (r *Router) leaveRoom(h domain.ConnHandle) {
	if dep, ok := r.Rooms.Leave(h); ok {
		r.announceDeparture(dep)
		r.broadcastLobby()
	}
	r.Sessions.Cancel(h)
}

func (r *Router) announceDeparture(dep core.Departure) {
	log.Info().Str("module", "app.router").Str("room", string(dep.Room)).
		Str("user", dep.Participant.String()).Int("remaining", len(dep.Remaining)).Msg("left room")
	r.broadcast(dep.Remaining, protocol.Envelope{
		Type:      protocol.TypeLeaveRoom,
		RoomID:    dep.Room,
		UserID:    dep.Participant,
		Streamers: dep.Streamers,
	}, "")
}
