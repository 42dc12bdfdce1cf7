// Package storage defines the document store contracts shared by the REST
// handlers, the session gate and the realtime router.
package storage

import (
	"context"
	"errors"

	"github.com/dkeye/CodeRoom/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type RoomStore interface {
	CreateRoom(ctx context.Context, r *domain.Room) error
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	ListRoomsByUser(ctx context.Context, userID domain.UserID) ([]domain.Room, error)
}

type FileStore interface {
	CreateFile(ctx context.Context, f *domain.File) error
	GetFile(ctx context.Context, id domain.FileID) (*domain.File, error)
	ListFilesByRoom(ctx context.Context, roomID domain.RoomID) ([]domain.File, error)
	UpdateFileContent(ctx context.Context, id domain.FileID, content string) (*domain.File, error)
	DeleteFile(ctx context.Context, id domain.FileID) error
}

type ChatStore interface {
	CreateChatMessage(ctx context.Context, m *domain.ChatMessage) error
	ListChatMessages(ctx context.Context, roomID domain.RoomID) ([]domain.ChatMessage, error)
}

type Store interface {
	UserStore
	RoomStore
	FileStore
	ChatStore
	Close() error
}
