package client

import (
	"fmt"
	"strings"

	"github.com/dkeye/Converse/internal/domain"
)

func welcomeNotice(room domain.RoomID, self domain.ParticipantID) string {
	return fmt.Sprintf("Welcome to Room %q. You are designated as User %s.", string(room), self)
}

func joinedNotice(user domain.ParticipantID) string {
	return fmt.Sprintf("User %s has joined.", user)
}

func leftRoomNotice(user domain.ParticipantID) string {
	return fmt.Sprintf("User %s has left.", user)
}

func joinedStreamNotice(user, self domain.ParticipantID) string {
	if user == self {
		return "You have joined the stream."
	}
	return fmt.Sprintf("User %s joined the stream.", user)
}

func leftStreamNotice(user, self domain.ParticipantID) string {
	if user == self {
		return "You have left the stream"
	}
	return fmt.Sprintf("User %s has left the stream.", user)
}

func currentStreamersNotice(streamers []domain.ParticipantID) string {
	names := make([]string, len(streamers))
	for i, s := range streamers {
		names[i] = "User " + s.String()
	}
	verb := "is"
	if len(streamers) > 1 {
		verb = "are"
	}
	return fmt.Sprintf("%s %s currently streaming.", strings.Join(names, ", "), verb)
}
