package mediacache

import (
	"errors"

	"github.com/aweris/mediacache/internal/store"
	"github.com/aweris/mediacache/internal/transcode"
)

var (
	// ErrUnsupportedInput is returned when a file is neither an image nor a
	// video the chosen profile accepts.
	ErrUnsupportedInput = transcode.ErrUnsupportedInput
	// ErrTooLarge is returned when a raw upload exceeds the profile ceiling.
	ErrTooLarge = transcode.ErrTooLarge

	ErrUnknownProfile = errors.New("mediacache: unknown profile")
	ErrHandleNotFound = errors.New("mediacache: handle not found")
	// ErrEvicted means the handle is still registered but the durable store
	// no longer holds its bytes.
	ErrEvicted = errors.New("mediacache: cached object was evicted")
	ErrClosed  = errors.New("mediacache: cache is closed")

	ErrLocked   = store.ErrLocked
	ErrNotFound = store.ErrNotFound
)
