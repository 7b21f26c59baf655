package client

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Converse/internal/domain"
)

// Event is delivered on MeshController.Events. Concrete types are listed below.
type Event interface{ meshEvent() }

// Notice is a human-readable system line.
type Notice struct{ Text string }

type ChatReceived struct {
	From domain.ParticipantID
	Msg  string
	Self bool
}

type RoomsUpdated struct{ Rooms []domain.RoomInfo }

// StreamersUpdated carries the room's streamer set as last relayed.
type StreamersUpdated struct {
	Streamers []domain.ParticipantID
	Streaming bool
}

// RoomReady follows the server's answer to our join-room, once the room's
// current streamers have been applied.
type RoomReady struct{ Room domain.RoomID }

type LinkOpened struct{ Remote domain.ParticipantID }

type LinkClosed struct{ Remote domain.ParticipantID }

// RemoteTrack is the only place remote media surfaces.
type RemoteTrack struct {
	From  domain.ParticipantID
	Track *webrtc.TrackRemote
}

func (Notice) meshEvent()           {}
func (ChatReceived) meshEvent()     {}
func (RoomsUpdated) meshEvent()     {}
func (StreamersUpdated) meshEvent() {}
func (RoomReady) meshEvent()        {}
func (LinkOpened) meshEvent()       {}
func (LinkClosed) meshEvent()       {}
func (RemoteTrack) meshEvent()      {}
