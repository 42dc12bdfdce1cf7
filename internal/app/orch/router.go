package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/CodeRoom/internal/app"
	"github.com/dkeye/CodeRoom/internal/core"
	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/dkeye/CodeRoom/internal/storage"
	"github.com/rs/zerolog/log"
)

// Handle validates one raw client frame and dispatches it. Per-event errors
// are answered with an error frame to the sender and returned; they never
// close the connection.
func (o *Orchestrator) Handle(ctx context.Context, id core.ConnectionID, raw []byte) error {
	conn, ok := o.Registry.Lookup(id)
	if !ok {
		return core.ErrUnknownConnection
	}
	o.Registry.Touch(id)

	in, err := core.DecodeInbound(raw)
	if err == nil {
		err = o.dispatch(ctx, conn, in)
	}
	if err != nil {
		o.reject(conn, in.Type, err)
	}
	return err
}

func (o *Orchestrator) dispatch(ctx context.Context, conn app.Connection, in core.Inbound) error {
	if in.Type == core.EventPing {
		return conn.Signal.TrySend(core.PongFrame())
	}
	if conn.Identity == nil {
		return core.ErrUnauthenticated
	}

	switch in.Type {
	case core.EventJoinRoom:
		if in.UserID != "" && in.UserID != conn.Identity.ID {
			return fmt.Errorf("%w: userId does not match session", core.ErrMalformedEvent)
		}
		if err := o.checkRoomExists(ctx, in.RoomID); err != nil {
			return err
		}
		return o.Join(conn.ID, in.RoomID)
	case core.EventLeaveRoom:
		return o.Leave(conn.ID, in.RoomID)
	default:
		return o.relay(ctx, conn, in)
	}
}

func (o *Orchestrator) checkRoomExists(ctx context.Context, id domain.RoomID) error {
	if o.Directory == nil {
		return nil
	}
	_, err := o.Directory.GetRoom(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", core.ErrUnknownRoom, id)
	default:
		return fmt.Errorf("lookup room %s: %w", id, err)
	}
}

func (o *Orchestrator) relay(ctx context.Context, conn app.Connection, in core.Inbound) error {
	if conn.RoomID == "" {
		return core.ErrNotInRoom
	}
	if in.RoomID != conn.RoomID {
		return fmt.Errorf("%w: in room %q, not %q", core.ErrMalformedEvent, conn.RoomID, in.RoomID)
	}
	room, ok := o.joinedRoom(conn.ID)
	if !ok || room.ID() != conn.RoomID {
		return core.ErrNotInRoom
	}

	evt, err := core.NewEvent(in.Type, conn.RoomID, conn.ID, conn.Identity.ID, in.Payload)
	if err != nil {
		return err
	}
	switch err := room.Broadcast(evt, conn.ID); {
	case errors.Is(err, core.ErrRoomClosed):
		// the channel was stopped under this connection; free it to join again
		o.detach(conn.ID, room)
		return core.ErrNotInRoom
	case err != nil:
		return err
	}
	if p, ok := in.Payload.(core.ChatMessagePayload); ok && o.Chat != nil {
		o.persistChat(ctx, conn, p)
	}
	return nil
}

func (o *Orchestrator) persistChat(ctx context.Context, conn app.Connection, p core.ChatMessagePayload) {
	msg, err := domain.NewChatMessage(conn.RoomID, conn.Identity.ID, p.Message)
	if err == nil {
		err = o.Chat.CreateChatMessage(ctx, msg)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "orch.router").Str("conn", string(conn.ID)).Str("room", string(conn.RoomID)).Msg("chat persist failed")
	}
}

func (o *Orchestrator) reject(conn app.Connection, t core.EventType, err error) {
	log.Warn().
		Err(err).
		Str("module", "orch.router").
		Str("conn", string(conn.ID)).
		Str("type", string(t)).
		Str("code", core.ErrorCode(err)).
		Msg("event dropped")
	_ = conn.Signal.TrySend(core.ErrorFrame(err))
}
