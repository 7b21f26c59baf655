package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type RoomID string

func (r RoomID) Validate() error {
	if len(r) == 0 {
		return ErrRoomIDEmpty
	}
	if len(r) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

// RoomInfo is one lobby entry. It travels as a [roomId, participantCount] pair.
type RoomInfo struct {
	ID           RoomID
	Participants int
}

func (ri RoomInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{ri.ID, ri.Participants})
}

func (ri *RoomInfo) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("room info: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &ri.ID); err != nil {
		return fmt.Errorf("room info id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &ri.Participants); err != nil {
		return fmt.Errorf("room info count: %w", err)
	}
	return nil
}
