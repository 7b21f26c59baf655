// Package domain contains entity without logic, just meta-data
package domain

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/pion/randutil"
)

// ParticipantID is chosen by the client at join time. It is only expected to
// be unique within one room for the lifetime of a session.
type ParticipantID uint64

func (p ParticipantID) String() string { return strconv.FormatUint(uint64(p), 10) }

// maxParticipantID keeps ids well inside the range a JS number represents exactly.
const maxParticipantID = 1 << 32

// NewParticipantID draws a random id for the local participant.
func NewParticipantID() ParticipantID {
	n, err := randutil.CryptoUint64()
	if err != nil {
		return ParticipantID(uuid.New().ID())
	}
	return ParticipantID(n % maxParticipantID)
}

// ConnHandle identifies one server-side signaling connection.
type ConnHandle string

func NewConnHandle() ConnHandle { return ConnHandle(uuid.NewString()) }
