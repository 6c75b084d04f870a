package mediacache

import (
	"context"
	"time"

	"github.com/aweris/mediacache/internal/resolve"
	"github.com/aweris/mediacache/internal/store"
)

// Cache is the surface the preview server and other collaborators consume.
type Cache interface {
	Store(ctx context.Context, f RawFile, profile string) (*ReferenceBundle, error)
	Retrieve(ctx context.Context, handle string) (*RawFile, error)
	Clear(ctx context.Context) error

	// Profile returns the named transcoding profile.
	Profile(name string) (Profile, bool)

	Resolve(ref string) string
	IsVideo(ref string) bool

	IsLiveHandle(ref string) bool
	ThumbnailOf(handle string) (string, bool)
	Stats(ctx context.Context) (*Stats, error)
}

// RawFile is a user-selected file before or after caching.
type RawFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the payload length in bytes.
func (f RawFile) Size() int64 { return int64(len(f.Data)) }

// ReferenceBundle is what a successful Store hands back to the caller.
type ReferenceBundle struct {
	Handle          string `json:"handle"`
	ThumbnailHandle string `json:"thumbnail_handle,omitempty"`
	IsVideo         bool   `json:"is_video"`
	CacheKey        string `json:"cache_key"`
	ThumbnailKey    string `json:"thumbnail_key,omitempty"`
}

// HasThumbnail reports whether a thumbnail variant was stored.
func (b *ReferenceBundle) HasThumbnail() bool { return b.ThumbnailHandle != "" }

// ReferenceForm names the rule a reference was resolved by.
type ReferenceForm = resolve.Form

// ObjectInfo describes a durable object without its payload.
type ObjectInfo = store.Info

// Stats describes the cache at one point in time.
type Stats struct {
	LiveHandles int       `json:"live_handles"`
	Objects     int       `json:"objects"`
	Bytes       int64     `json:"bytes"`
	Oldest      time.Time `json:"oldest,omitzero"`
}

// Observer receives cache telemetry. internal/metrics provides a Prometheus
// implementation; all methods must be safe for concurrent use.
type Observer interface {
	ObserveStore(kind, outcome string, bytes int64, d time.Duration)
	ObserveRetrieve(outcome string)
	ObserveResolve(form string)
	ObserveEscalation(step string)
	SetLiveHandles(n int)
}

// Store kinds and outcomes reported to the Observer.
const (
	KindImage = "image"
	KindVideo = "video"

	OutcomeStored   = "stored"
	OutcomeFallback = "fallback"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"

	RetrieveHit      = "hit"
	RetrieveNotFound = "not_found"
	RetrieveEvicted  = "evicted"
)

type nopObserver struct{}

func (nopObserver) ObserveStore(string, string, int64, time.Duration) {}
func (nopObserver) ObserveRetrieve(string)                            {}
func (nopObserver) ObserveResolve(string)                             {}
func (nopObserver) ObserveEscalation(string)                          {}
func (nopObserver) SetLiveHandles(int)                                {}
