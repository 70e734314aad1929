package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrOutOfOrder        = errors.New("snapshot out of order")
	ErrStalePrice        = errors.New("current price unavailable")
	ErrUnknownPanel      = errors.New("unknown panel")
)
