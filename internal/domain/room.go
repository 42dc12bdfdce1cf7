package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxRoomNameLen = 64

var ErrRoomNameEmpty = errors.New("room name empty")

type RoomID string

type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy UserID    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewRoom(name string, createdBy UserID) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		name = name[:MaxRoomNameLen]
	}
	return &Room{
		ID:        RoomID(uuid.NewString()),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}, nil
}
