package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join puts the connection in roomID. A connection already in another room
// gets ErrAlreadyJoined and keeps its membership; joining the same live room
// twice is a no-op.
func (o *Orchestrator) Join(id core.ConnectionID, roomID domain.RoomID) error {
	mu := o.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	conn, ok := o.Registry.Lookup(id)
	if !ok {
		return core.ErrUnknownConnection
	}
	joined, err := o.Registry.BindRoom(id, roomID)
	if err != nil {
		return err
	}
	if !joined {
		if o.inLiveRoom(id, roomID) {
			return nil
		}
		// bound to a channel that was stopped underneath it
		o.leaveRoom(id)
	}

	ms := core.NewMemberSession(id, domain.NewMember(conn.Identity), conn.Signal)
	// a channel stopped between Acquire and Join has already been dropped by
	// the manager, so one retry gets a fresh one
	for attempt := 0; ; attempt++ {
		room := o.Rooms.Acquire(roomID)
		err := room.Join(ms)
		if err == nil {
			o.joined.Store(id, room)
			break
		}
		o.Rooms.Release(room)
		if !errors.Is(err, core.ErrRoomClosed) || attempt > 0 {
			o.Registry.ReleaseRoom(id, roomID)
			return fmt.Errorf("join %s: %w", roomID, err)
		}
	}
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(roomID)).Str("user", string(conn.Identity.ID)).Msg("added to room")
	return nil
}

// Leave removes the connection from its room. An empty roomID means
// whatever room it is in; a different room than the recorded one is rejected.
func (o *Orchestrator) Leave(id core.ConnectionID, roomID domain.RoomID) error {
	mu := o.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	current, ok := o.Registry.RoomOf(id)
	if !ok {
		return core.ErrNotInRoom
	}
	if roomID != "" && roomID != current {
		return fmt.Errorf("%w: in room %q, not %q", core.ErrMalformedEvent, current, roomID)
	}
	if !o.Registry.ReleaseRoom(id, current) {
		return core.ErrNotInRoom
	}
	o.leaveRoom(id)
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(current)).Msg("left room")
	return nil
}

// leaveRoom assumes the registry association is already cleared and the
// connection's stripe lock is held.
func (o *Orchestrator) leaveRoom(id core.ConnectionID) {
	v, ok := o.joined.LoadAndDelete(id)
	if !ok {
		return
	}
	room := v.(core.RoomService)
	if err := room.Leave(id); err != nil && !errors.Is(err, core.ErrRoomClosed) {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Str("room", string(room.ID())).Msg("room leave")
	}
	o.Rooms.Release(room)
}

func (o *Orchestrator) joinedRoom(id core.ConnectionID) (core.RoomService, bool) {
	v, ok := o.joined.Load(id)
	if !ok {
		return nil, false
	}
	return v.(core.RoomService), true
}

func (o *Orchestrator) inLiveRoom(id core.ConnectionID, roomID domain.RoomID) bool {
	cur, ok := o.joinedRoom(id)
	if !ok {
		return false
	}
	live, ok := o.Rooms.Get(roomID)
	return ok && live == cur
}

// detach clears the membership of id if it is still in room. It reports
// whether anything changed.
func (o *Orchestrator) detach(id core.ConnectionID, room core.RoomService) bool {
	mu := o.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	cur, ok := o.joinedRoom(id)
	if !ok || cur != room {
		return false
	}
	o.Registry.ReleaseRoom(id, room.ID())
	o.leaveRoom(id)
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(room.ID())).Msg("detached from closed room")
	return true
}
