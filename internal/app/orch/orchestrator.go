package orch

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomDirectory resolves rooms created through the REST API.
type RoomDirectory interface {
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
}

// ChatRecorder persists chat messages relayed over the socket.
type ChatRecorder interface {
	CreateChatMessage(ctx context.Context, msg *domain.ChatMessage) error
}

type Options struct {
	MailboxSize int
	RoomGrace   time.Duration
}

const lockStripes = 64

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Presence *app.PresenceTracker

	// Directory, when set, rejects joins to rooms it does not know.
	Directory RoomDirectory
	// Chat, when set, stores every chat-message the room accepted.
	Chat ChatRecorder

	// membership changes of one connection are serialized on its stripe
	locks [lockStripes]sync.Mutex
	// joined holds the room instance each connection acquired; entries are
	// written only under the connection's stripe lock
	joined sync.Map
}

func New(reg *app.Registry, policy app.Policy, opts Options) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		Policy:   policy,
	}
	o.Rooms = app.NewRoomManager(opts.RoomGrace, func(id domain.RoomID) core.RoomService {
		return core.NewRoomService(id, core.RoomOptions{
			MailboxSize: opts.MailboxSize,
			Resolver:    reg,
			OnFailure:   o.onDeliveryFailure,
		})
	})
	o.Presence = app.NewPresenceTracker(o.Rooms, reg)
	reg.OnDeregister(o.onDeregister)
	return o
}

func (o *Orchestrator) lockFor(id core.ConnectionID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &o.locks[h.Sum32()%lockStripes]
}

// Connect registers a transport and attaches the identity the session gate
// resolved for it. On failure the caller owns closing the transport.
func (o *Orchestrator) Connect(sig core.SignalConnection, user *domain.User) (core.ConnectionID, error) {
	id := o.Registry.Register(sig)
	if err := o.Registry.Authenticate(id, user); err != nil {
		o.Registry.Deregister(id)
		return "", err
	}
	return id, nil
}

// Disconnect is safe to call any number of times from any goroutine.
func (o *Orchestrator) Disconnect(id core.ConnectionID) {
	o.Registry.Deregister(id)
}

func (o *Orchestrator) onDeregister(c app.Connection) {
	if c.Signal != nil {
		c.Signal.Close()
	}
	mu := o.lockFor(c.ID)
	mu.Lock()
	defer mu.Unlock()
	o.leaveRoom(c.ID)
}

func (o *Orchestrator) onDeliveryFailure(roomID domain.RoomID, ms core.MemberSession, err error) {
	log.Warn().Err(err).Str("module", "orch").Str("room", string(roomID)).Str("conn", string(ms.ID())).Msg("delivery failure")
	if o.Policy == nil {
		o.Disconnect(ms.ID())
		return
	}
	switch o.Policy.OnDeliveryFailure(ms, err) {
	case app.DisconnectMember:
		o.Disconnect(ms.ID())
	case app.KickMember:
		if leaveErr := o.Leave(ms.ID(), roomID); leaveErr == nil {
			_ = ms.Signal().TrySend(core.ErrorFrame(err))
		}
	case app.NoAction:
	}
}

// EvictRoom stops the live channel of id and detaches every connection that
// was in it. Connections that join after the stop land in a fresh channel and
// are left alone.
func (o *Orchestrator) EvictRoom(id domain.RoomID) {
	room := o.Rooms.StopRoom(id)
	if room == nil {
		return
	}
	for _, c := range o.Registry.MembersOfRoom(id) {
		if o.detach(c.ID, room) {
			_ = c.Signal.TrySend(core.ErrorFrame(core.ErrRoomClosed))
		}
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("room evicted")
}
