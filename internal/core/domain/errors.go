package domain

import "errors"

var (
	ErrRoomFull          = errors.New("room already has two members")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("illegal lifecycle transition")
	ErrWindowClosed      = errors.New("session window has ended")
	ErrWindowNotOpen     = errors.New("session window has not opened yet")
	ErrNotInRoom         = errors.New("connection is not a room member")
	ErrUnknownEvent      = errors.New("unknown signal event type")
)
