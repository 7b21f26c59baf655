package client

import "errors"

var (
	// ErrInvalidState is returned for an operation the PeerLink state forbids.
	ErrInvalidState = errors.New("invalid peer link state")
	// ErrMediaUnavailable means the local source has no tracks to publish.
	ErrMediaUnavailable = errors.New("local media unavailable: enable camera/microphone permissions")
	ErrStreamFull       = errors.New("stream is full")
	ErrNotInRoom        = errors.New("not in a room")

	// Offer collisions reported by PeerLink.Answer. Both mean the link's
	// connection is abandoned: on ErrGlareYield wait for the remote's next
	// offer, on ErrGlareRestart call again on a fresh connection.
	ErrGlareYield   = errors.New("glare: yielding to remote offer")
	ErrGlareRestart = errors.New("glare: restarting negotiation")
)
