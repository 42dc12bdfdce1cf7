package core

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultMailboxSize = 256

type RoomOptions struct {
	// MailboxSize bounds the queue of pending operations. A full mailbox
	// makes callers wait; it never drops their operation.
	MailboxSize int
	Resolver    IdentityResolver
	OnFailure   DeliveryFailureFunc
}

type memberState struct {
	session MemberSession
	// failed is set by the first dropped frame of a streak and cleared by
	// the next delivered one; a streak is reported once.
	failed bool
}

// roomImpl is a Room Channel. Membership and the sequence counter are only
// touched by run(), so every operation on one room is applied in the order it
// was queued. It never closes adapter-owned resources.
type roomImpl struct {
	id   domain.RoomID
	ops  chan func()
	done chan struct{}

	// closing is set under the write lock before the stop op is queued;
	// submit holds the read lock, so nothing can be queued behind it.
	mu      sync.RWMutex
	closing bool

	resolver  IdentityResolver
	onFailure DeliveryFailureFunc

	count   atomic.Int64
	lastSeq atomic.Uint64

	// owned by run()
	members map[ConnectionID]*memberState
	seq     uint64
	stopped bool
}

func NewRoomService(id domain.RoomID, opts RoomOptions) RoomService {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	r := &roomImpl{
		id:        id,
		ops:       make(chan func(), opts.MailboxSize),
		done:      make(chan struct{}),
		resolver:  opts.Resolver,
		onFailure: opts.OnFailure,
		members:   make(map[ConnectionID]*memberState),
	}
	go r.run()
	return r
}

func (r *roomImpl) run() {
	defer close(r.done)
	for !r.stopped {
		op := <-r.ops
		op()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room stopped")
}

func (r *roomImpl) submit(op func()) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closing {
		return ErrRoomClosed
	}
	select {
	case r.ops <- op:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int { return int(r.count.Load()) }

func (r *roomImpl) LastSequence() uint64 { return r.lastSeq.Load() }

// Members returns the current membership once every previously queued
// operation has been applied.
func (r *roomImpl) Members() []ConnectionID {
	reply := make(chan []ConnectionID, 1)
	err := r.submit(func() {
		ids := make([]ConnectionID, 0, len(r.members))
		for id := range r.members {
			ids = append(ids, id)
		}
		reply <- ids
	})
	if err != nil {
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-r.done:
		return nil
	}
}

func (r *roomImpl) Join(ms MemberSession) error {
	return r.submit(func() { r.addMember(ms) })
}

func (r *roomImpl) Leave(id ConnectionID) error {
	return r.submit(func() { r.removeMember(id) })
}

func (r *roomImpl) Broadcast(evt Event, exclude ConnectionID) error {
	reply := make(chan error, 1)
	err := r.submit(func() {
		if sender := evt.Sender(); sender != "" {
			if _, ok := r.members[sender]; !ok {
				reply <- ErrNotInRoom
				return
			}
		}
		r.publish(evt, exclude)
		reply <- nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomClosed
		}
	}
}

func (r *roomImpl) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return
	}
	r.closing = true
	select {
	case r.ops <- func() { r.stopped = true }:
	case <-r.done:
	}
}

func (r *roomImpl) addMember(ms MemberSession) {
	id := ms.ID()
	if _, ok := r.members[id]; ok {
		return
	}
	r.members[id] = &memberState{session: ms}
	r.count.Store(int64(len(r.members)))
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(id)).Msg("member added")
	r.publishPresence(PresenceJoined, ms)
}

func (r *roomImpl) removeMember(id ConnectionID) {
	m, ok := r.members[id]
	if !ok {
		return
	}
	delete(r.members, id)
	r.count.Store(int64(len(r.members)))
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(id)).Msg("member removed")
	if len(r.members) > 0 {
		r.publishPresence(PresenceLeft, m.session)
	}
}

func (r *roomImpl) publishPresence(kind string, ms MemberSession) {
	ids := make([]ConnectionID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	var snap Snapshot
	if r.resolver != nil {
		snap = BuildSnapshot(r.id, ids, r.resolver)
	}
	change := &PresenceChange{Kind: kind, ConnectionID: ms.ID()}
	if meta := ms.Meta(); meta != nil && meta.User != nil {
		change.UserID = meta.User.ID
	}
	evt, err := NewEvent(EventPresenceUpdate, r.id, "", "", PresencePayload{
		Members: snap.Members(),
		Change:  change,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.id)).Msg("presence encode")
		return
	}
	r.publish(evt, "")
}

func (r *roomImpl) publish(evt Event, exclude ConnectionID) PublishResult {
	seq := r.seq + 1
	frame, err := evt.Encode(seq)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.id)).Msg("event encode")
		return PublishResult{}
	}
	r.seq = seq
	r.lastSeq.Store(seq)

	res := PublishResult{Seq: seq}
	for id, m := range r.members {
		if id == exclude {
			continue
		}
		if err := m.session.Signal().TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, m.session)
			if !m.failed && r.onFailure != nil {
				go r.onFailure(r.id, m.session, fmt.Errorf("%w: %w", ErrDeliveryFailure, err))
			}
			m.failed = true
			continue
		}
		m.failed = false
		res.SendTo++
	}
	log.Debug().
		Str("module", "core.room").
		Str("room", string(r.id)).
		Str("type", string(evt.Type())).
		Str("from", string(exclude)).
		Uint64("seq", seq).
		Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}
