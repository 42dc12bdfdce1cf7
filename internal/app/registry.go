package app

import (
	"sync"
	"time"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ConnState int

const (
	StateConnected ConnState = iota
	StateAuthenticated
	StateInRoom
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	default:
		return "disconnected"
	}
}

// Connection is a copy of one registry entry. Mutating it has no effect
// on the registry.
type Connection struct {
	ID          core.ConnectionID
	Signal      core.SignalConnection
	Identity    *domain.User
	RoomID      domain.RoomID
	State       ConnState
	ConnectedAt time.Time
	LastSeenAt  time.Time
}

// Registry is the single source of truth for live connections and the
// room each one belongs to. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnectionID]*Connection

	hooksMu sync.RWMutex
	hooks   []func(Connection)
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnectionID]*Connection),
	}
}

// OnDeregister adds fn to the callbacks run after a connection is removed.
// Callbacks run outside the registry lock.
func (r *Registry) OnDeregister(fn func(Connection)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

func (r *Registry) Register(sig core.SignalConnection) core.ConnectionID {
	id := core.ConnectionID(uuid.NewString())
	now := time.Now().UTC()
	r.mu.Lock()
	r.conns[id] = &Connection{
		ID:          id,
		Signal:      sig,
		State:       StateConnected,
		ConnectedAt: now,
		LastSeenAt:  now,
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("registered connection")
	return id
}

func (r *Registry) Authenticate(id core.ConnectionID, user *domain.User) error {
	if user == nil || user.ID == "" {
		return core.ErrUnauthenticated
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return core.ErrUnknownConnection
	}
	if c.Identity != nil && c.Identity.ID != user.ID {
		return core.ErrUnauthenticated
	}
	c.Identity = user
	if c.State == StateConnected {
		c.State = StateAuthenticated
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(user.ID)).Msg("authenticated connection")
	return nil
}

// Deregister removes the connection and runs the deregister callbacks.
// It reports false if the connection was already gone.
func (r *Registry) Deregister(id core.ConnectionID) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	removed := *c
	removed.State = StateDisconnected
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(removed.RoomID)).Msg("deregistered connection")

	r.hooksMu.RLock()
	hooks := append([]func(Connection){}, r.hooks...)
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(removed)
	}
	return true
}

func (r *Registry) Lookup(id core.ConnectionID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// Identity implements core.IdentityResolver.
func (r *Registry) Identity(id core.ConnectionID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok || c.Identity == nil {
		return nil, false
	}
	return c.Identity, true
}

func (r *Registry) Touch(id core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.LastSeenAt = time.Now().UTC()
	}
}

// BindRoom records that id joined room. It reports false without error when
// the connection is already in that very room.
func (r *Registry) BindRoom(id core.ConnectionID, room domain.RoomID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return false, core.ErrUnknownConnection
	}
	if c.Identity == nil {
		return false, core.ErrUnauthenticated
	}
	if c.RoomID == room {
		return false, nil
	}
	if c.RoomID != "" {
		return false, core.ErrAlreadyJoined
	}
	c.RoomID = room
	c.State = StateInRoom
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("bound room")
	return true, nil
}

// ReleaseRoom clears the room association if id is still in room.
func (r *Registry) ReleaseRoom(id core.ConnectionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok || c.RoomID != room || room == "" {
		return false
	}
	c.RoomID = ""
	c.State = StateAuthenticated
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("removed room association")
	return true
}

func (r *Registry) RoomOf(id core.ConnectionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok || c.RoomID == "" {
		return "", false
	}
	return c.RoomID, true
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0)
	for _, c := range r.conns {
		if c.RoomID == room {
			out = append(out, *c)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
