package mediacache

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/aweris/mediacache/internal/compression"
	"github.com/aweris/mediacache/internal/resolve"
	"github.com/aweris/mediacache/internal/transcode"
)

// Backends
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

const (
	// DefaultOrigin is the handle origin of a page without one, as in "blob:null/<id>".
	DefaultOrigin             = "null"
	DefaultMemoryCacheEntries = 64
	sqliteFile                = "media.db"
)

// Profile is a named set of dimension and byte budgets.
type Profile = transcode.Profile

// Transcoder turns raw images into budgeted variants.
type Transcoder = transcode.Transcoder

// MediaSettings holds the configuration the media base URL is derived from.
type MediaSettings = resolve.Settings

// CompressionLevel selects the zstd level of the filesystem backend.
type CompressionLevel = compression.Level

const (
	CompressionFastest = compression.LevelFastest
	CompressionDefault = compression.LevelDefault
	CompressionBetter  = compression.LevelBetter
)

// Options configures a Manager.
type Options struct {
	CacheDir           string
	Backend            string
	Compression        bool
	CompressionLevel   CompressionLevel
	MemoryCacheEntries int
	Origin             string
	Media              MediaSettings
	Profiles           map[string]Profile
	Logger             logrus.FieldLogger
	Observer           Observer
	Transcoder         *Transcoder
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		CacheDir:           defaultCacheDir(),
		Backend:            BackendFS,
		Compression:        true,
		CompressionLevel:   CompressionDefault,
		MemoryCacheEntries: DefaultMemoryCacheEntries,
		Origin:             DefaultOrigin,
		Profiles:           transcode.DefaultProfiles(),
	}
}

// WithCacheDir sets the durable cache directory.
func WithCacheDir(dir string) Option {
	return func(o *Options) { o.CacheDir = dir }
}

// WithBackend selects the durable store: BackendFS or BackendSQLite.
func WithBackend(backend string) Option {
	return func(o *Options) { o.Backend = backend }
}

// WithCompression toggles zstd compression of filesystem objects.
func WithCompression(enabled bool, level CompressionLevel) Option {
	return func(o *Options) {
		o.Compression = enabled
		if level > 0 {
			o.CompressionLevel = level
		}
	}
}

// WithMemoryCache sets how many objects are kept in memory. Zero disables it.
func WithMemoryCache(entries int) Option {
	return func(o *Options) {
		if entries >= 0 {
			o.MemoryCacheEntries = entries
		}
	}
}

// WithOrigin sets the origin minted handles carry.
func WithOrigin(origin string) Option {
	return func(o *Options) {
		if origin != "" {
			o.Origin = origin
		}
	}
}

// WithMediaBase sets where server-relative references are resolved against.
func WithMediaBase(s MediaSettings) Option {
	return func(o *Options) { o.Media = s }
}

// WithProfile adds or replaces a profile. An empty name falls back to p.Name.
func WithProfile(name string, p Profile) Option {
	return func(o *Options) {
		if name == "" {
			name = p.Name
		}
		if p.Name == "" {
			p.Name = name
		}
		o.Profiles[name] = p
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Options) { o.Logger = log }
}

func WithObserver(obs Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

// WithTranscoder replaces the default transcoder, e.g. to tune the quality ladder.
func WithTranscoder(t *Transcoder) Option {
	return func(o *Options) { o.Transcoder = t }
}

func defaultCacheDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "mediacache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "mediacache")
	}
	return ".mediacache"
}

func expandPath(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// baseSettings fills in the origin fallback unless handles use the opaque default.
func (o *Options) baseSettings() MediaSettings {
	s := o.Media
	if s.Origin == "" && o.Origin != DefaultOrigin {
		s.Origin = o.Origin
	}
	return s
}
