package mediacache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/aweris/mediacache/internal/classify"
	"github.com/aweris/mediacache/internal/resolve"
	"github.com/aweris/mediacache/internal/store"
	"github.com/aweris/mediacache/internal/transcode"
)

// Cache key prefixes, one per kind of stored variant.
const (
	keyImageFull  = "temp-image-full-"
	keyImageThumb = "temp-image-thumb-"
	keyVideo      = "temp-video-"
	keyFile       = "temp-file-"
)

// Manager owns the durable store, the handle registry and the resolver.
// It is safe for concurrent use.
type Manager struct {
	store      store.Store
	registry   *registry
	resolver   *resolve.Resolver
	transcoder *transcode.Transcoder
	profiles   map[string]Profile
	observer   Observer
	log        logrus.FieldLogger
	dir        string
	backend    string

	// ops is held shared by Store and Retrieve and exclusively by Clear.
	ops    sync.RWMutex
	closed atomic.Bool
}

var _ Cache = (*Manager)(nil)

// Open creates or opens the media cache under the configured directory.
func Open(opts ...Option) (*Manager, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	profiles := make(map[string]Profile, len(options.Profiles))
	for name, p := range options.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		if err := p.Check(); err != nil {
			return nil, fmt.Errorf("invalid profile: %w", err)
		}
		profiles[name] = p
	}

	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	observer := options.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	dir := expandPath(options.CacheDir)
	backend, err := openBackend(dir, options, log)
	if err != nil {
		return nil, err
	}
	s, err := store.Cached(backend, options.MemoryCacheEntries)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	t := options.Transcoder
	if t == nil {
		t = transcode.New(log)
	}
	if t.Observer == nil {
		t.Observer = observer
	}

	reg := newRegistry(options.Origin)
	resolver := resolve.New(resolve.BaseURL(options.baseSettings()), reg, log)
	resolver.Observer = observer

	m := &Manager{
		store:      s,
		registry:   reg,
		resolver:   resolver,
		transcoder: t,
		profiles:   profiles,
		observer:   observer,
		log:        log.WithField("component", "manager"),
		dir:        dir,
		backend:    options.Backend,
	}
	m.log.WithFields(logrus.Fields{
		"dir":        dir,
		"backend":    options.Backend,
		"media_base": resolver.Base,
	}).Debug("opened media cache")
	return m, nil
}

func openBackend(dir string, options *Options, log logrus.FieldLogger) (store.Store, error) {
	switch options.Backend {
	case BackendFS, "":
		return store.NewLocalStore(dir, store.LocalOptions{
			Compression:      options.Compression,
			CompressionLevel: options.CompressionLevel,
			Log:              log,
		})
	case BackendSQLite:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		return store.OpenSQLite(context.Background(), filepath.Join(dir, sqliteFile))
	default:
		return nil, fmt.Errorf("mediacache: unknown backend %q", options.Backend)
	}
}

// Store caches f under the named profile and mints handles for it.
//
// Videos are stored verbatim. Images are transcoded into a full variant and,
// for profiles with a thumbnail, a linked thumbnail. When transcoding fails
// the original bytes are stored instead and a single handle is returned.
// ErrUnknownProfile, ErrUnsupportedInput and ErrTooLarge are returned before
// anything is written.
func (m *Manager) Store(ctx context.Context, f RawFile, profile string) (*ReferenceBundle, error) {
	start := time.Now()
	p, ok := m.profiles[profile]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}

	file := transcode.File{Name: f.Name, MIMEType: f.MIMEType, Data: f.Data}
	kind := KindImage
	validate := p.Validate
	if transcode.IsVideo(f.MIMEType) {
		kind = KindVideo
		validate = p.ValidateVideo
	}
	if err := validate(file); err != nil {
		m.observer.ObserveStore(kind, OutcomeRejected, 0, time.Since(start))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.ops.RLock()
	defer m.ops.RUnlock()
	if m.closed.Load() {
		return nil, ErrClosed
	}

	var (
		bundle  *ReferenceBundle
		written int64
		err     error
		outcome = OutcomeStored
	)
	if kind == KindVideo {
		bundle, written, err = m.storeSingle(ctx, keyVideo, f, true)
	} else if res, terr := m.transcoder.Transcode(ctx, file, p); terr != nil {
		m.log.WithError(terr).WithFields(logrus.Fields{
			"file":    f.Name,
			"profile": p.Name,
			"size":    humanize.IBytes(uint64(f.Size())),
		}).Warn("transcoding failed, storing original bytes")
		outcome = OutcomeFallback
		bundle, written, err = m.storeSingle(ctx, keyFile, f, false)
	} else {
		bundle, written, err = m.storeVariants(ctx, f.MIMEType, res)
	}
	if err != nil {
		m.observer.ObserveStore(kind, OutcomeFailed, 0, time.Since(start))
		return nil, err
	}

	m.observer.ObserveStore(kind, outcome, written, time.Since(start))
	m.observer.SetLiveHandles(m.registry.len())
	m.log.WithFields(logrus.Fields{
		"key":     bundle.CacheKey,
		"profile": p.Name,
		"outcome": outcome,
		"stored":  humanize.IBytes(uint64(written)),
	}).Debug("stored media")
	return bundle, nil
}

// storeSingle writes the bytes as they are and registers one handle.
func (m *Manager) storeSingle(ctx context.Context, prefix string, f RawFile, isVideo bool) (*ReferenceBundle, int64, error) {
	key := prefix + uuid.NewString()
	if err := m.put(ctx, key, f.MIMEType, f.Data); err != nil {
		return nil, 0, err
	}
	handle := m.registry.mint()
	m.registry.add(entry{
		handle:   handle,
		cacheKey: key,
		mimeType: f.MIMEType,
		size:     f.Size(),
		isVideo:  isVideo,
	})
	return &ReferenceBundle{Handle: handle, IsVideo: isVideo, CacheKey: key}, f.Size(), nil
}

// storeVariants writes the transcoded variants and registers their linked handles.
func (m *Manager) storeVariants(ctx context.Context, mimeType string, res *transcode.Result) (*ReferenceBundle, int64, error) {
	id := uuid.NewString()
	full := entry{
		handle:   m.registry.mint(),
		cacheKey: keyImageFull + id,
		mimeType: mimeType,
		size:     res.Full.Size(),
	}
	if err := m.put(ctx, full.cacheKey, mimeType, res.Full.Data); err != nil {
		return nil, 0, err
	}
	bundle := &ReferenceBundle{Handle: full.handle, CacheKey: full.cacheKey}
	written := full.size

	if res.Thumbnail == nil {
		m.registry.add(full)
		return bundle, written, nil
	}

	thumb := entry{
		handle:      m.registry.mint(),
		cacheKey:    keyImageThumb + id,
		mimeType:    mimeType,
		size:        res.Thumbnail.Size(),
		isThumbnail: true,
		linked:      full.handle,
	}
	if err := m.put(ctx, thumb.cacheKey, mimeType, res.Thumbnail.Data); err != nil {
		if derr := m.store.Delete(context.WithoutCancel(ctx), full.cacheKey); derr != nil {
			err = multierr.Append(err, derr)
		}
		return nil, 0, err
	}
	full.linked = thumb.handle
	m.registry.add(full, thumb)

	bundle.ThumbnailHandle = thumb.handle
	bundle.ThumbnailKey = thumb.cacheKey
	return bundle, written + thumb.size, nil
}

func (m *Manager) put(ctx context.Context, key, mimeType string, data []byte) error {
	err := m.store.Put(ctx, &store.Object{
		Key:       key,
		MIMEType:  mimeType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Retrieve returns the cached bytes behind a live handle, named after the
// cache key. ErrHandleNotFound means the handle is not registered in this
// process; ErrEvicted means it is, but the store lost the bytes.
func (m *Manager) Retrieve(ctx context.Context, handle string) (*RawFile, error) {
	m.ops.RLock()
	defer m.ops.RUnlock()

	e, ok := m.registry.lookup(handle)
	if !ok {
		m.observer.ObserveRetrieve(RetrieveNotFound)
		return nil, fmt.Errorf("%w: %s", ErrHandleNotFound, resolve.Truncate(handle))
	}

	obj, err := m.store.Get(ctx, e.cacheKey)
	if errors.Is(err, store.ErrNotFound) {
		m.observer.ObserveRetrieve(RetrieveEvicted)
		m.log.WithField("key", e.cacheKey).Warn("live handle lost its cached bytes")
		return nil, fmt.Errorf("%w: %s", ErrEvicted, e.cacheKey)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", e.cacheKey, err)
	}

	m.observer.ObserveRetrieve(RetrieveHit)
	data := bytes.Clone(obj.Data)
	return &RawFile{
		Name:     e.cacheKey + extensionFor(e.mimeType, data),
		MIMEType: e.mimeType,
		Data:     data,
	}, nil
}

// extensionFor prefers the recorded MIME type and falls back to sniffing.
func extensionFor(mimeType string, data []byte) string {
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return mimetype.Detect(data).Extension()
}

// Clear revokes every handle and deletes the whole durable store. The
// registry is emptied even when the store cannot be cleared.
func (m *Manager) Clear(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()
	if m.closed.Load() {
		return ErrClosed
	}

	var errs error
	revoked := m.registry.drain(func() {
		if err := m.store.Clear(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("clear store: %w", err))
			errs = multierr.Append(errs, m.deleteAll(context.WithoutCancel(ctx)))
		}
	})
	m.observer.SetLiveHandles(0)

	log := m.log.WithField("revoked", revoked)
	if errs != nil {
		log.WithError(errs).Warn("cleared media cache with errors")
		return errs
	}
	log.Info("cleared media cache")
	return nil
}

// deleteAll removes objects one by one after a failed Clear.
func (m *Manager) deleteAll(ctx context.Context) error {
	infos, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list store: %w", err)
	}
	var errs error
	for _, info := range infos {
		errs = multierr.Append(errs, m.store.Delete(ctx, info.Key))
	}
	return errs
}

// IsLiveHandle reports whether ref is a handle registered in this process.
func (m *Manager) IsLiveHandle(ref string) bool {
	return m.registry.IsLiveHandle(ref)
}

// IsVideoHandle reports whether ref is a live handle to a video.
func (m *Manager) IsVideoHandle(ref string) bool {
	e, ok := m.registry.lookup(ref)
	return ok && e.isVideo
}

// ThumbnailOf returns the thumbnail handle linked to a full-variant handle.
// Thumbnails themselves have no thumbnail.
func (m *Manager) ThumbnailOf(handle string) (string, bool) {
	e, ok := m.registry.lookup(handle)
	if !ok || e.isThumbnail || e.linked == "" {
		return "", false
	}
	return e.linked, true
}

// FullOf returns the full-variant handle a thumbnail handle belongs to.
func (m *Manager) FullOf(handle string) (string, bool) {
	e, ok := m.registry.lookup(handle)
	if !ok || !e.isThumbnail {
		return "", false
	}
	return e.linked, true
}

// Profile returns the named profile as configured at Open.
func (m *Manager) Profile(name string) (Profile, bool) {
	p, ok := m.profiles[name]
	return p, ok
}

// Handles returns the live handles, sorted.
func (m *Manager) Handles() []string {
	return m.registry.handles()
}

// IsVideo classifies any media reference. Handles are answered from the
// registry only; an unregistered handle is never a video.
func (m *Manager) IsVideo(ref string) bool {
	if classify.IsHandle(ref) {
		return m.IsVideoHandle(ref)
	}
	return classify.HasVideoExtension(ref)
}

// Resolve turns a stored media reference into a renderable URL. The empty
// string means a placeholder should be shown.
func (m *Manager) Resolve(ref string) string {
	return m.resolver.Resolve(ref)
}

// Classify reports what Resolve would return for ref and which rule
// matched, without logging or notifying the observer.
func (m *Manager) Classify(ref string) (string, ReferenceForm) {
	return m.resolver.Classify(ref)
}

// ResolveItem resolves the URL of a media item and keeps its caption.
func (m *Manager) ResolveItem(item MediaItem) MediaItem {
	item.Value = m.Resolve(item.Value)
	return item
}

// MediaBase returns the base URL server-relative references are resolved against.
func (m *Manager) MediaBase() string {
	return m.resolver.Base
}

// Dir returns the cache directory.
func (m *Manager) Dir() string { return m.dir }

// Backend returns the name of the durable store backend.
func (m *Manager) Backend() string { return m.backend }

// Objects describes every object in the durable store, oldest first.
func (m *Manager) Objects(ctx context.Context) ([]ObjectInfo, error) {
	return m.store.List(ctx)
}

// Stats reports live handles and the contents of the durable store.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	infos, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list store: %w", err)
	}
	stats := &Stats{LiveHandles: m.registry.len(), Objects: len(infos)}
	for i, info := range infos {
		stats.Bytes += info.Size
		if i == 0 {
			stats.Oldest = info.CreatedAt
		}
	}
	return stats, nil
}

// Close revokes every handle and releases the durable store.
func (m *Manager) Close() error {
	m.ops.Lock()
	defer m.ops.Unlock()
	if m.closed.Swap(true) {
		return nil
	}
	m.registry.drain(nil)
	m.observer.SetLiveHandles(0)
	return m.store.Close()
}
