package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrChatMessageEmpty = errors.New("chat message empty")

type ChatMessageID string

type ChatMessage struct {
	ID        ChatMessageID `json:"id"`
	RoomID    RoomID        `json:"roomId"`
	UserID    UserID        `json:"userId"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"createdAt"`
}

func NewChatMessage(roomID RoomID, userID UserID, message string) (*ChatMessage, error) {
	if message == "" {
		return nil, ErrChatMessageEmpty
	}
	return &ChatMessage{
		ID:        ChatMessageID(uuid.NewString()),
		RoomID:    roomID,
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}, nil
}
