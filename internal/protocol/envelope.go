// Package protocol defines the envelopes exchanged over a SignalChannel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Converse/internal/domain"
)

type Type string

const (
	TypeChat             Type = "chat-message"
	TypeJoinRoom         Type = "join-room"
	TypeLeaveRoom        Type = "leave-room"
	TypeJoinStream       Type = "join-stream"
	TypeLeaveStream      Type = "leave-stream"
	TypeCurrentStreamers Type = "current-streamers"
	TypeUserStreamer     Type = "user-streamer"
	TypeOffer            Type = "offer-sdp"
	TypeAnswer           Type = "answer-sdp"
	TypeICECandidate     Type = "ice-candidate"

	// lobby
	TypeCurrentRooms Type = "current-rooms"

	// keepalive
	TypePing Type = "ping"
	TypePong Type = "pong"
)

var ErrUnknownType = errors.New("unknown envelope type")

var known = []Type{
	TypeChat, TypeJoinRoom, TypeLeaveRoom, TypeJoinStream, TypeLeaveStream,
	TypeCurrentStreamers, TypeUserStreamer, TypeOffer, TypeAnswer, TypeICECandidate,
	TypeCurrentRooms, TypePing, TypePong,
}

func (t Type) Known() bool { return slices.Contains(known, t) }

// Negotiation reports whether envelopes of this type carry media negotiation.
func (t Type) Negotiation() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeICECandidate
}

// Envelope is immutable once sent; the router builds stamped copies.
type Envelope struct {
	Type      Type                       `json:"type"`
	RoomID    domain.RoomID              `json:"roomId,omitempty"`
	UserID    domain.ParticipantID       `json:"userId"`
	TargetID  *domain.ParticipantID      `json:"targetId,omitempty"`
	Streamers []domain.ParticipantID     `json:"streamers,omitempty"`
	Msg       string                     `json:"msg,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Rooms     []domain.RoomInfo          `json:"rooms,omitempty"`
}

// carriesStreamers reports whether the streamers field is always on the wire.
func (t Type) carriesStreamers() bool {
	switch t {
	case TypeLeaveRoom, TypeJoinStream, TypeLeaveStream, TypeCurrentStreamers, TypeUserStreamer:
		return true
	}
	return t.Negotiation()
}

type wireEnvelope Envelope

// MarshalJSON writes an empty list, never an absent field, for the list
// fields a type carries.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := struct {
		wireEnvelope
		Streamers *[]domain.ParticipantID `json:"streamers,omitempty"`
		Rooms     *[]domain.RoomInfo      `json:"rooms,omitempty"`
	}{wireEnvelope: wireEnvelope(e)}
	if e.Streamers != nil || e.Type.carriesStreamers() {
		streamers := e.Streamers
		if streamers == nil {
			streamers = []domain.ParticipantID{}
		}
		out.Streamers = &streamers
	}
	if e.Rooms != nil || e.Type == TypeCurrentRooms {
		rooms := e.Rooms
		if rooms == nil {
			rooms = []domain.RoomInfo{}
		}
		out.Rooms = &rooms
	}
	return json.Marshal(out)
}

// UnmarshalJSON mirrors MarshalJSON: a carried list decodes non-nil even
// when the sender left it out.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Envelope(w)
	if e.Type.carriesStreamers() && e.Streamers == nil {
		e.Streamers = []domain.ParticipantID{}
	}
	if e.Type == TypeCurrentRooms && e.Rooms == nil {
		e.Rooms = []domain.RoomInfo{}
	}
	return nil
}

// Target returns a pointer suitable for Envelope.TargetID.
func Target(id domain.ParticipantID) *domain.ParticipantID { return &id }

// AddressedTo reports whether id may consume the envelope: either no target
// is set or the target is id.
func (e Envelope) AddressedTo(id domain.ParticipantID) bool {
	return e.TargetID == nil || *e.TargetID == id
}

// Streaming reports whether id appears in the streamer snapshot.
func (e Envelope) Streaming(id domain.ParticipantID) bool {
	return slices.Contains(e.Streamers, id)
}

// WithStreamers returns a copy stamped with a private copy of streamers.
func (e Envelope) WithStreamers(streamers []domain.ParticipantID) Envelope {
	e.Streamers = slices.Clone(streamers)
	return e
}

func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	return b, nil
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !e.Type.Known() {
		return e, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return e, nil
}
