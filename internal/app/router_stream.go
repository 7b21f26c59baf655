package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Converse/internal/domain"
	"github.com/dkeye/Converse/internal/protocol"
)

func (r *Router) joinStream(h domain.ConnHandle) {
	room, pid, err := r.sender(h)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("conn", string(h)).Msg("drop join-stream")
		return
	}
	streamers, ok := r.Rooms.SetStreaming(room, pid, true)
	if !ok {
		return
	}
	members := r.Rooms.Members(room)
	r.broadcast(members, protocol.Envelope{
		Type: protocol.TypeJoinStream, RoomID: room, UserID: pid, Streamers: streamers,
	}, "")
	r.broadcast(members, protocol.Envelope{
		Type: protocol.TypeUserStreamer, RoomID: room, UserID: pid, Streamers: streamers,
	}, h)
	log.Info().Str("module", "app.router").Str("room", string(room)).Str("user", pid.String()).
		Int("streamers", len(streamers)).Msg("joined stream")
}

func (r *Router) leaveStream(h domain.ConnHandle) {
	room, pid, err := r.sender(h)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.router").Str("conn", string(h)).Msg("drop leave-stream")
		return
	}
	streamers, ok := r.Rooms.SetStreaming(room, pid, false)
	if !ok {
		return
	}
	r.broadcast(r.Rooms.Members(room), protocol.Envelope{
		Type: protocol.TypeLeaveStream, RoomID: room, UserID: pid, Streamers: streamers,
	}, "")
	log.Info().Str("module", "app.router").Str("room", string(room)).Str("user", pid.String()).
		Int("streamers", len(streamers)).Msg("left stream")
}
