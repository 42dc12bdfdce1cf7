package app

import (
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
)

// PresenceTracker answers who is online in a room. The room goroutine pushes
// presence-update frames itself; this is the read side for REST and tests.
type PresenceTracker struct {
	rooms      core.RoomManager
	identities core.IdentityResolver
}

func NewPresenceTracker(rooms core.RoomManager, identities core.IdentityResolver) *PresenceTracker {
	return &PresenceTracker{rooms: rooms, identities: identities}
}

func (t *PresenceTracker) Snapshot(id domain.RoomID) core.Snapshot {
	room, ok := t.rooms.Get(id)
	if !ok {
		return core.BuildSnapshot(id, nil, t.identities)
	}
	return core.BuildSnapshot(id, room.Members(), t.identities)
}
