// Package store implements the durable layer of the media cache.
//
// The Store interface is a plain key/value abstraction over immutable
// objects: a variant is written once under a synthetic key and only ever
// removed by Delete or Clear. Two backends are provided:
// - LocalStore: one file per object on disk, zstd-compressed when it pays off
// - SQLiteStore: a single SQLite database, handy when the cache must live in one file
//
// Either can be wrapped with Cached to keep recently used objects in memory.
package store

import (
	"context"
	"errors"
	"regexp"
	"time"
)

var (
	ErrNotFound   = errors.New("store: object not found")
	ErrLocked     = errors.New("store: cache directory is locked by another process")
	ErrInvalidKey = errors.New("store: invalid object key")
)

// Object is one stored byte blob.
type Object struct {
	Key       string
	MIMEType  string
	Data      []byte
	CreatedAt time.Time
}

// Info describes an object without its payload.
type Info struct {
	Key       string    `json:"key"`
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store handles durable object storage.
type Store interface {
	// Get retrieves an object by key. Returns ErrNotFound on a miss.
	Get(ctx context.Context, key string) (*Object, error)

	// Put stores an object under obj.Key.
	Put(ctx context.Context, obj *Object) error

	// Has checks if an object exists.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List describes every stored object, oldest first.
	List(ctx context.Context) ([]Info, error)

	// Clear removes every object.
	Clear(ctx context.Context) error

	Close() error
}

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidKey reports whether key can be used as an object key by every backend.
func ValidKey(key string) bool {
	return len(key) <= 200 && keyPattern.MatchString(key)
}

func defaultMIMEType(mimeType string) string {
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
