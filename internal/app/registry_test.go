package app

import (
	"sync"
	"testing"

	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestRegistry_Lifecycle(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	alice := &domain.User{ID: "u1", Username: "alice"}

	id := reg.Register(nopConn{})
	c, ok := reg.Lookup(id)
	req.True(ok)
	req.Equal(StateConnected, c.State)
	_, ok = reg.Identity(id)
	req.False(ok)

	_, err := reg.BindRoom(id, "r1")
	req.ErrorIs(err, core.ErrUnauthenticated)

	req.ErrorIs(reg.Authenticate(id, nil), core.ErrUnauthenticated)
	req.ErrorIs(reg.Authenticate(id, &domain.User{}), core.ErrUnauthenticated)
	req.NoError(reg.Authenticate(id, alice))
	c, _ = reg.Lookup(id)
	req.Equal(StateAuthenticated, c.State)

	joined, err := reg.BindRoom(id, "r1")
	req.NoError(err)
	req.True(joined)
	c, _ = reg.Lookup(id)
	req.Equal(StateInRoom, c.State)

	joined, err = reg.BindRoom(id, "r1")
	req.NoError(err)
	req.False(joined)

	_, err = reg.BindRoom(id, "r2")
	req.ErrorIs(err, core.ErrAlreadyJoined)
	room, ok := reg.RoomOf(id)
	req.True(ok)
	req.Equal(domain.RoomID("r1"), room)

	req.False(reg.ReleaseRoom(id, "r2"))
	req.True(reg.ReleaseRoom(id, "r1"))
	c, _ = reg.Lookup(id)
	req.Equal(StateAuthenticated, c.State)
	_, ok = reg.RoomOf(id)
	req.False(ok)
}

func TestRegistry_AuthenticateRejectsIdentitySwap(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(nopConn{})
	require.NoError(t, reg.Authenticate(id, &domain.User{ID: "u1"}))
	assert.ErrorIs(t, reg.Authenticate(id, &domain.User{ID: "u2"}), core.ErrUnauthenticated)
	assert.ErrorIs(t, reg.Authenticate("missing", &domain.User{ID: "u1"}), core.ErrUnknownConnection)
}

func TestRegistry_DeregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	var mu sync.Mutex
	var removed []Connection
	reg.OnDeregister(func(c Connection) {
		mu.Lock()
		removed = append(removed, c)
		mu.Unlock()
	})

	id := reg.Register(nopConn{})
	require.NoError(t, reg.Authenticate(id, &domain.User{ID: "u1"}))
	_, err := reg.BindRoom(id, "r1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Deregister(id)
		}()
	}
	wg.Wait()

	require.Len(t, removed, 1)
	assert.Equal(t, domain.RoomID("r1"), removed[0].RoomID)
	assert.Equal(t, StateDisconnected, removed[0].State)
	_, ok := reg.Lookup(id)
	assert.False(t, ok)
	assert.False(t, reg.Deregister(id))
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_MembersOfRoom(t *testing.T) {
	reg := NewRegistry()
	ids := make([]core.ConnectionID, 3)
	for i := range ids {
		ids[i] = reg.Register(nopConn{})
		require.NoError(t, reg.Authenticate(ids[i], &domain.User{ID: domain.UserID(ids[i])}))
	}
	_, err := reg.BindRoom(ids[0], "r1")
	require.NoError(t, err)
	_, err = reg.BindRoom(ids[1], "r1")
	require.NoError(t, err)
	_, err = reg.BindRoom(ids[2], "r2")
	require.NoError(t, err)

	assert.Len(t, reg.MembersOfRoom("r1"), 2)
	assert.Len(t, reg.MembersOfRoom("r2"), 1)
	assert.Empty(t, reg.MembersOfRoom("r3"))
}
