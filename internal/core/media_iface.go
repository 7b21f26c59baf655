package core

import (
	"github.com/pion/webrtc/v4"
)

// MediaConnection is the slice of a peer connection a PeerLink drives.
type MediaConnection interface {
	// CreateOffer produces an offer and commits it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer produces an answer to the applied remote offer and commits it.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	RemoveTrack(trackID string) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(*webrtc.TrackRemote))
	// OnFailed sets a callback for unrecoverable transport failure.
	OnFailed(func())
	// Close should stop all underlying media resources.
	Close() error
}

// MediaFactory opens a fresh MediaConnection for one remote participant.
type MediaFactory func() (MediaConnection, error)
