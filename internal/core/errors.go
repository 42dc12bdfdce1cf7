package core

import (
	"encoding/json"
	"errors"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrAlreadyJoined     = errors.New("already joined another room")
	ErrNotInRoom         = errors.New("not in room")
	ErrMalformedEvent    = errors.New("malformed event")
	ErrDeliveryFailure   = errors.New("delivery failure")
	ErrUnknownRoom       = errors.New("room does not exist")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrRoomClosed        = errors.New("room closed")
	ErrBackpressure      = errors.New("backpressure")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimited       = errors.New("rate limited")
)

// ErrorCode maps an error to the stable code sent in error frames.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrMalformedEvent):
		return "malformed_event"
	case errors.Is(err, ErrUnknownRoom):
		return "unknown_room"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRoomClosed):
		return "room_closed"
	default:
		return "internal"
	}
}

type errorFrame struct {
	Type  EventType `json:"type"`
	Code  string    `json:"code"`
	Error string    `json:"error"`
}

// ErrorFrame renders err as a frame for the offending sender only.
func ErrorFrame(err error) Frame {
	b, _ := json.Marshal(errorFrame{
		Type:  EventError,
		Code:  ErrorCode(err),
		Error: err.Error(),
	})
	return b
}
