package core

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  []Frame
	sendErr error
	closed  bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events(t *testing.T) []WireEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WireEvent, 0, len(c.frames))
	for _, f := range c.frames {
		w, err := ParseWireEvent(f)
		require.NoError(t, err)
		out = append(out, w)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ EventType) []WireEvent {
	var out []WireEvent
	for _, w := range c.events(t) {
		if w.Type == typ {
			out = append(out, w)
		}
	}
	return out
}

type mapResolver map[ConnectionID]*domain.User

func (m mapResolver) Identity(id ConnectionID) (*domain.User, bool) {
	u, ok := m[id]
	return u, ok
}

func newSession(id ConnectionID, user string) (MemberSession, *fakeConn) {
	conn := &fakeConn{}
	u := &domain.User{ID: domain.UserID("u-" + user), Username: user}
	return NewMemberSession(id, domain.NewMember(u), conn), conn
}

func chatEvent(t *testing.T, sender ConnectionID, msg string) Event {
	evt, err := NewEvent(EventChatMessage, "r1", sender, "", ChatMessagePayload{Message: msg})
	require.NoError(t, err)
	return evt
}

func TestRoom_BroadcastSkipsSender(t *testing.T) {
	room := NewRoomService("r1", RoomOptions{})
	defer room.Stop()

	a, connA := newSession("a", "alice")
	b, connB := newSession("b", "bob")
	require.NoError(t, room.Join(a))
	require.NoError(t, room.Join(b))
	require.NoError(t, room.Broadcast(chatEvent(t, "a", "hi"), "a"))
	room.Members() // barrier

	chats := connB.ofType(t, EventChatMessage)
	require.Len(t, chats, 1)
	assert.JSONEq(t, `{"message":"hi"}`, string(chats[0].Payload))
	assert.Empty(t, connA.ofType(t, EventChatMessage))
}

func TestRoom_SequenceStrictlyIncreasing(t *testing.T) {
	room := NewRoomService("r1", RoomOptions{})
	defer room.Stop()

	a, _ := newSession("a", "alice")
	b, connB := newSession("b", "bob")
	require.NoError(t, room.Join(a))
	require.NoError(t, room.Join(b))
	for i := 0; i < 20; i++ {
		require.NoError(t, room.Broadcast(chatEvent(t, "a", "m"), "a"))
	}
	room.Members()

	var last uint64
	for _, w := range connB.events(t) {
		assert.Greater(t, w.Seq, last)
		last = w.Seq
	}
	assert.Equal(t, last, room.LastSequence())
}

func TestRoom_PerSenderOrder(t *testing.T) {
	room := NewRoomService("r1", RoomOptions{MailboxSize: 4})
	defer room.Stop()

	senders := []ConnectionID{"a", "b", "c"}
	for _, id := range senders {
		s, _ := newSession(id, string(id))
		require.NoError(t, room.Join(s))
	}
	recv, conn := newSession("r", "reader")
	require.NoError(t, room.Join(recv))

	const n = 50
	var wg sync.WaitGroup
	for _, id := range senders {
		wg.Add(1)
		go func(id ConnectionID) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				evt, err := NewEvent(EventCodeChange, "r1", id, "", CodeChangePayload{FileID: "f", Patch: string(rune('0' + i%10))})
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, room.Broadcast(evt, id))
			}
		}(id)
	}
	wg.Wait()
	room.Members()

	counts := map[ConnectionID]int{}
	var lastSeq uint64
	for _, w := range conn.ofType(t, EventCodeChange) {
		var p CodeChangePayload
		require.NoError(t, jsonUnmarshal(w.Payload, &p))
		assert.Equal(t, string(rune('0'+counts[w.SenderID]%10)), p.Patch)
		counts[w.SenderID]++
		assert.Greater(t, w.Seq, lastSeq)
		lastSeq = w.Seq
	}
	for _, id := range senders {
		assert.Equal(t, n, counts[id])
	}
}

func TestRoom_PresenceOnJoinAndLeave(t *testing.T) {
	a, connA := newSession("a", "alice")
	b, connB := newSession("b", "bob")
	resolver := mapResolver{"a": a.Meta().User, "b": b.Meta().User}
	room := NewRoomService("r1", RoomOptions{Resolver: resolver})
	defer room.Stop()

	require.NoError(t, room.Join(a))
	require.NoError(t, room.Join(b))
	room.Members()

	// the joiner sees its own presence update
	joins := connB.ofType(t, EventPresenceUpdate)
	require.Len(t, joins, 1)
	var p PresencePayload
	require.NoError(t, jsonUnmarshal(joins[0].Payload, &p))
	require.Len(t, p.Members, 2)
	assert.Equal(t, "alice", p.Members[0].Username)
	assert.Equal(t, "bob", p.Members[1].Username)
	assert.Equal(t, PresenceJoined, p.Change.Kind)

	delete(resolver, "b")
	require.NoError(t, room.Leave("b"))
	room.Members()

	updates := connA.ofType(t, EventPresenceUpdate)
	require.Len(t, updates, 3)
	require.NoError(t, jsonUnmarshal(updates[2].Payload, &p))
	require.Len(t, p.Members, 1)
	assert.Equal(t, PresenceLeft, p.Change.Kind)
	assert.Equal(t, ConnectionID("b"), p.Change.ConnectionID)
	assert.Equal(t, domain.UserID("u-bob"), p.Change.UserID)
	assert.Equal(t, 1, room.MemberCount())

	// leaving twice emits nothing
	require.NoError(t, room.Leave("b"))
	room.Members()
	assert.Len(t, connA.ofType(t, EventPresenceUpdate), 3)
}

func TestRoom_DeliveryFailureDoesNotBlockOthers(t *testing.T) {
	failures := make(chan ConnectionID, 4)
	room := NewRoomService("r1", RoomOptions{
		OnFailure: func(_ domain.RoomID, ms MemberSession, err error) {
			assert.ErrorIs(t, err, ErrDeliveryFailure)
			assert.ErrorIs(t, err, ErrBackpressure)
			failures <- ms.ID()
		},
	})
	defer room.Stop()

	a, _ := newSession("a", "alice")
	slow, slowConn := newSession("slow", "slow")
	c, connC := newSession("c", "carol")
	require.NoError(t, room.Join(a))
	require.NoError(t, room.Join(slow))
	require.NoError(t, room.Join(c))
	room.Members()
	slowConn.mu.Lock()
	slowConn.sendErr = ErrBackpressure
	slowConn.mu.Unlock()

	require.NoError(t, room.Broadcast(chatEvent(t, "a", "one"), "a"))
	require.NoError(t, room.Broadcast(chatEvent(t, "a", "two"), "a"))
	room.Members()

	assert.Len(t, connC.ofType(t, EventChatMessage), 2)
	select {
	case id := <-failures:
		assert.Equal(t, ConnectionID("slow"), id)
	case <-time.After(time.Second):
		t.Fatal("no delivery failure reported")
	}
	// a failed member is reported once, not once per event
	select {
	case id := <-failures:
		t.Fatalf("unexpected second failure for %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoom_StoppedRejectsOperations(t *testing.T) {
	room := NewRoomService("r1", RoomOptions{})
	room.Stop()
	room.Stop()

	a, _ := newSession("a", "alice")
	assert.ErrorIs(t, room.Join(a), ErrRoomClosed)
	assert.ErrorIs(t, room.Broadcast(chatEvent(t, "a", "hi"), "a"), ErrRoomClosed)
	assert.Nil(t, room.Members())
}

func TestRoom_NothingQueuedBehindStop(t *testing.T) {
	for i := 0; i < 50; i++ {
		room := NewRoomService("r1", RoomOptions{MailboxSize: 1})
		a, connA := newSession("a", "alice")

		joined := make(chan error, 1)
		go func() { joined <- room.Join(a) }()
		room.Stop()
		err := <-joined

		if err == nil {
			// an accepted join was applied before the room stopped
			require.Eventually(t, func() bool {
				return len(connA.ofType(t, EventPresenceUpdate)) == 1
			}, time.Second, time.Millisecond)
		} else {
			assert.ErrorIs(t, err, ErrRoomClosed)
			assert.Empty(t, connA.events(t))
		}
	}
}

func TestRoom_BroadcastFromNonMemberDropped(t *testing.T) {
	room := NewRoomService("r1", RoomOptions{})
	defer room.Stop()

	a, _ := newSession("a", "alice")
	b, connB := newSession("b", "bob")
	require.NoError(t, room.Join(a))
	require.NoError(t, room.Join(b))
	require.NoError(t, room.Leave("a"))
	room.Members()
	before := room.LastSequence()

	err := room.Broadcast(chatEvent(t, "a", "late"), "a")
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.Empty(t, connB.ofType(t, EventChatMessage))
	assert.Equal(t, before, room.LastSequence())

	// server events carry no sender and always go out
	evt, err := NewEvent(EventPresenceUpdate, "r1", "", "", PresencePayload{})
	require.NoError(t, err)
	assert.NoError(t, room.Broadcast(evt, ""))
}

func TestRoom_RecoveredMemberReceivesAgain(t *testing.T) {
	failures := make(chan ConnectionID, 4)
	room := NewRoomService("r1", RoomOptions{
		OnFailure: func(_ domain.RoomID, ms MemberSession, _ error) { failures <- ms.ID() },
	})
	defer room.Stop()

	a, _ := newSession("a", "alice")
	b, connB := newSession("b", "bob")
	require.NoError(t, room.Join(a))
	require.NoError(t, room.Join(b))

	connB.mu.Lock()
	connB.sendErr = ErrBackpressure
	connB.mu.Unlock()
	require.NoError(t, room.Broadcast(chatEvent(t, "a", "lost"), "a"))
	require.NoError(t, room.Broadcast(chatEvent(t, "a", "lost too"), "a"))

	connB.mu.Lock()
	connB.sendErr = nil
	connB.mu.Unlock()
	require.NoError(t, room.Broadcast(chatEvent(t, "a", "back"), "a"))

	chats := connB.ofType(t, EventChatMessage)
	require.Len(t, chats, 1)
	assert.JSONEq(t, `{"message":"back"}`, string(chats[0].Payload))

	// a new streak of drops is reported again
	connB.mu.Lock()
	connB.sendErr = ErrBackpressure
	connB.mu.Unlock()
	require.NoError(t, room.Broadcast(chatEvent(t, "a", "lost again"), "a"))

	for i := 0; i < 2; i++ {
		select {
		case id := <-failures:
			assert.Equal(t, ConnectionID("b"), id)
		case <-time.After(time.Second):
			t.Fatal("delivery failure not reported")
		}
	}
}
