package app

import (
	"sync"
	"time"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomFactory func(id domain.RoomID) core.RoomService

type roomEntry struct {
	room  core.RoomService
	refs  int
	timer *time.Timer
}

// RoomManagerImpl creates rooms lazily and tears them down once the last
// member is released, optionally after a grace period.
type RoomManagerImpl struct {
	mu      sync.Mutex
	rooms   map[domain.RoomID]*roomEntry
	grace   time.Duration
	newRoom RoomFactory
}

func NewRoomManager(grace time.Duration, newRoom RoomFactory) core.RoomManager {
	return &RoomManagerImpl{
		rooms:   make(map[domain.RoomID]*roomEntry),
		grace:   grace,
		newRoom: newRoom,
	}
}

func (m *RoomManagerImpl) Acquire(id domain.RoomID) core.RoomService {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rooms[id]
	if !ok {
		e = &roomEntry{room: m.newRoom(id)}
		m.rooms[id] = e
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.refs++
	return e.room
}

// Release drops one reference taken by Acquire. A room that was already
// stopped and replaced under the same id is ignored, so a stale holder can
// never tear down its successor.
func (m *RoomManagerImpl) Release(room core.RoomService) {
	if room == nil {
		return
	}
	id := room.ID()
	m.mu.Lock()
	e, ok := m.rooms[id]
	if !ok || e.room != room {
		m.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	if m.grace > 0 {
		e.timer = time.AfterFunc(m.grace, func() { m.expire(id, e) })
		m.mu.Unlock()
		return
	}
	delete(m.rooms, id)
	m.mu.Unlock()

	e.room.Stop()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room torn down")
}

func (m *RoomManagerImpl) expire(id domain.RoomID, e *roomEntry) {
	m.mu.Lock()
	if cur, ok := m.rooms[id]; !ok || cur != e || e.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.rooms, id)
	m.mu.Unlock()

	e.room.Stop()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room expired after grace period")
}

func (m *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	return e.room, true
}

func (m *RoomManagerImpl) List() []core.RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, e := range m.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: e.room.MemberCount()})
	}
	return out
}

// StopRoom drops the room regardless of outstanding references and returns
// the instance it stopped, or nil.
func (m *RoomManagerImpl) StopRoom(id domain.RoomID) core.RoomService {
	m.mu.Lock()
	e, ok := m.rooms[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(m.rooms, id)
	m.mu.Unlock()

	e.room.Stop()
	return e.room
}
