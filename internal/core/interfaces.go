package core

import "github.com/dkeye/CodeRoom/internal/domain"

// Frame is one encoded wire message (a single JSON document).
type Frame []byte

// ConnectionID identifies one live transport session. Assigned by the registry.
type ConnectionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: a full queue reports ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() ConnectionID
	Meta() *domain.Member
	Signal() SignalConnection
}

// IdentityResolver maps a live connection to its verified user.
// Unknown or unauthenticated connections resolve to false.
type IdentityResolver interface {
	Identity(id ConnectionID) (*domain.User, bool)
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	Seq     uint64
	SendTo  int
	Dropped []MemberSession
}

// DeliveryFailureFunc is invoked off the room goroutine for every member a
// broadcast could not reach.
type DeliveryFailureFunc func(room domain.RoomID, member MemberSession, err error)

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
// All mutations are queued to the room's single dispatch goroutine.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	LastSequence() uint64
	Members() []ConnectionID

	Join(ms MemberSession) error
	Leave(id ConnectionID) error
	// Broadcast returns once the room has applied the event. An event with a
	// sender that is not a member at that point is dropped with ErrNotInRoom.
	Broadcast(evt Event, exclude ConnectionID) error
	// Stop makes every later operation fail with ErrRoomClosed.
	Stop()
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}

type RoomManager interface {
	// Acquire returns the room, creating it if absent, and pins it until the
	// same instance is passed to Release.
	Acquire(id domain.RoomID) RoomService
	Release(room RoomService)
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID) RoomService
}
