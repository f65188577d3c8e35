package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrMalformedMessage      = errors.New("malformed message")
	ErrInvalidQuoteState     = errors.New("invalid quote state")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrWSDisconnect          = errors.New("websocket disconnected")
	ErrLockHeld              = errors.New("lock already held")
	ErrContextDone           = errors.New("context cancelled")
)
