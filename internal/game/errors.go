package game

import "github.com/cockroachdb/errors"

// All errors are recoverable and reported to the caller that triggered them.
var (
	ErrAlreadyExists    = errors.New("session already exists")
	ErrNotFound         = errors.New("session not found")
	ErrAlreadyConnected = errors.New("client already connected")
	ErrNotConnected     = errors.New("client not connected to this session")
	ErrInvalidEvent     = errors.New("invalid event name")
	ErrInvalidPayload   = errors.New("invalid event payload")
	ErrNotAllowed       = errors.New("action not allowed")
)
