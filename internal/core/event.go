package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/CodeRoom/internal/domain"
	"github.com/go-playground/validator/v10"
)

type EventType string

const (
	EventJoinRoom       EventType = "join-room"
	EventLeaveRoom      EventType = "leave-room"
	EventCodeChange     EventType = "code-change"
	EventCursorPosition EventType = "cursor-position"
	EventChatMessage    EventType = "chat-message"
	EventPresenceUpdate EventType = "presence-update"

	EventPing  EventType = "ping"
	EventPong  EventType = "pong"
	EventError EventType = "error"
)

// IsData reports whether t is relayed to the other members of a room.
func (t EventType) IsData() bool {
	switch t {
	case EventCodeChange, EventCursorPosition, EventChatMessage:
		return true
	}
	return false
}

func (t EventType) acceptedFromClient() bool {
	switch t {
	case EventJoinRoom, EventLeaveRoom, EventPing:
		return true
	}
	return t.IsData()
}

type CodeChangePayload struct {
	FileID string `json:"fileId" validate:"required,max=128"`
	Patch  string `json:"patch" validate:"max=262144"`
}

type CursorPositionPayload struct {
	FileID string `json:"fileId" validate:"required,max=128"`
	Line   int    `json:"line" validate:"min=0"`
	Column int    `json:"column" validate:"min=0"`
}

type ChatMessagePayload struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type PresencePayload struct {
	Members []PresenceMember `json:"members"`
	Change  *PresenceChange  `json:"change,omitempty"`
}

// Inbound is a decoded client frame that passed schema validation.
// Payload holds one of the *Payload types for data events and is nil otherwise.
type Inbound struct {
	Type    EventType
	RoomID  domain.RoomID
	UserID  domain.UserID
	Payload any
}

type inboundFrame struct {
	Type    EventType       `json:"type" validate:"required"`
	RoomID  string          `json:"roomId" validate:"required_unless=Type ping,max=128"`
	UserID  string          `json:"userId" validate:"max=36"`
	Payload json.RawMessage `json:"payload"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeInbound parses one client frame. Every failure wraps ErrMalformedEvent.
func DecodeInbound(raw []byte) (Inbound, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !f.Type.acceptedFromClient() {
		return Inbound{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, f.Type)
	}
	if err := validate.Struct(f); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	in := Inbound{
		Type:   f.Type,
		RoomID: domain.RoomID(f.RoomID),
		UserID: domain.UserID(f.UserID),
	}
	var err error
	switch f.Type {
	case EventCodeChange:
		var p CodeChangePayload
		err = decodePayload(f.Payload, &p)
		in.Payload = p
	case EventCursorPosition:
		var p CursorPositionPayload
		err = decodePayload(f.Payload, &p)
		in.Payload = p
	case EventChatMessage:
		var p ChatMessagePayload
		err = decodePayload(f.Payload, &p)
		in.Payload = p
	}
	if err != nil {
		return Inbound{}, err
	}
	return in, nil
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: payload required", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedEvent, err)
	}
	return nil
}

// Event is a server-side message ready to be relayed. It is never mutated
// after NewEvent; the room goroutine only stamps a sequence when encoding.
type Event struct {
	typ     EventType
	roomID  domain.RoomID
	sender  ConnectionID
	userID  domain.UserID
	payload json.RawMessage
	sentAt  time.Time
}

func NewEvent(t EventType, roomID domain.RoomID, sender ConnectionID, userID domain.UserID, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		raw = b
	}
	return Event{
		typ:     t,
		roomID:  roomID,
		sender:  sender,
		userID:  userID,
		payload: raw,
		sentAt:  time.Now().UTC(),
	}, nil
}

func (e Event) Type() EventType          { return e.typ }
func (e Event) RoomID() domain.RoomID    { return e.roomID }
func (e Event) Sender() ConnectionID     { return e.sender }
func (e Event) UserID() domain.UserID    { return e.userID }
func (e Event) SentAt() time.Time        { return e.sentAt }
func (e Event) Payload() json.RawMessage { return bytes.Clone(e.payload) }

// WireEvent is the JSON shape of every server-to-client event frame.
type WireEvent struct {
	Type     EventType       `json:"type"`
	RoomID   domain.RoomID   `json:"roomId,omitempty"`
	Seq      uint64          `json:"seq,omitempty"`
	SenderID ConnectionID    `json:"senderId,omitempty"`
	UserID   domain.UserID   `json:"userId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SentAt   time.Time       `json:"sentAt"`
}

// Encode renders the event with the room sequence assigned to it.
func (e Event) Encode(seq uint64) (Frame, error) {
	return json.Marshal(WireEvent{
		Type:     e.typ,
		RoomID:   e.roomID,
		Seq:      seq,
		SenderID: e.sender,
		UserID:   e.userID,
		Payload:  e.payload,
		SentAt:   e.sentAt,
	})
}

// ParseWireEvent decodes a server frame; used by clients and tests.
func ParseWireEvent(f Frame) (WireEvent, error) {
	var w WireEvent
	if err := json.Unmarshal(f, &w); err != nil {
		return WireEvent{}, err
	}
	return w, nil
}

func PongFrame() Frame {
	b, _ := json.Marshal(WireEvent{Type: EventPong, SentAt: time.Now().UTC()})
	return b
}
