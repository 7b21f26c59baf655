package app

import "github.com/dkeye/Converse/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropFrame:
		return "drop"
	case KickMember:
		return "kick"
	default:
		return "none"
	}
}

// Policy decides what happens to a connection whose outbound buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, h domain.ConnHandle) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, domain.ConnHandle) BackpressureAction {
	return KickMember
}

// DropPolicy loses the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomID, domain.ConnHandle) BackpressureAction {
	return DropFrame
}
