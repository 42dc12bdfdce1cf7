package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultLanguage = "javascript"

var ErrFileNameEmpty = errors.New("file name empty")

type FileID string

// File is a source file owned by a room. Content is the last persisted
// snapshot; realtime patches travel over the socket and are not applied here.
type File struct {
	ID        FileID    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	RoomID    RoomID    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewFile(roomID RoomID, name, content, language string) (*File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrFileNameEmpty
	}
	if language == "" {
		language = DefaultLanguage
	}
	now := time.Now().UTC()
	return &File{
		ID:        FileID(uuid.NewString()),
		Name:      name,
		Content:   content,
		Language:  language,
		RoomID:    roomID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
