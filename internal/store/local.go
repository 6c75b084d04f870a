package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/aweris/mediacache/internal/compression"
)

// LocalStore implements Store using the local filesystem.
//
// Storage layout:
//
//	basePath/
//	  .lock              (held for the lifetime of the store)
//	  objects/<key>      (payload, zstd frame when smaller)
//	  meta/<key>.json    (mime type, size, creation time)
//
// Only one process may open a directory at a time.
type LocalStore struct {
	basePath   string
	lock       *flock.Flock
	compressor *compression.Compressor
	log        logrus.FieldLogger
}

type objectMeta struct {
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// LocalOptions configures a LocalStore.
type LocalOptions struct {
	Compression      bool
	CompressionLevel compression.Level
	Log              logrus.FieldLogger
}

func NewLocalStore(basePath string, opts LocalOptions) (*LocalStore, error) {
	for _, dir := range []string{basePath, objectsDir(basePath), metaDir(basePath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	lock := flock.New(filepath.Join(basePath, ".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, basePath)
	}

	compressor, err := compression.NewCompressor(opts.CompressionLevel, opts.Compression)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create compressor: %w", err)
	}

	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &LocalStore{
		basePath:   basePath,
		lock:       lock,
		compressor: compressor,
		log:        log.WithField("component", "store"),
	}, nil
}

// Get retrieves an object by key.
func (s *LocalStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	raw, err := os.ReadFile(s.objectPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}

	data, err := s.compressor.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("decompress object %s: %w", key, err)
	}

	meta, err := s.readMeta(key)
	if err != nil {
		// The payload is still usable without its sidecar.
		s.log.WithError(err).WithField("key", key).Warn("object metadata unreadable")
		meta = objectMeta{Size: int64(len(data))}
	}

	return &Object{
		Key:       key,
		MIMEType:  defaultMIMEType(meta.MIMEType),
		Data:      data,
		CreatedAt: meta.CreatedAt,
	}, nil
}

// Put stores an object. Both files are written atomically via rename.
func (s *LocalStore) Put(ctx context.Context, obj *Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if obj == nil || !ValidKey(obj.Key) {
		return ErrInvalidKey
	}

	createdAt := obj.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	meta, err := json.Marshal(objectMeta{
		MIMEType:  defaultMIMEType(obj.MIMEType),
		Size:      int64(len(obj.Data)),
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := writeAtomic(s.metaPath(obj.Key), meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := writeAtomic(s.objectPath(obj.Key), s.compressor.Compress(obj.Data)); err != nil {
		_ = os.Remove(s.metaPath(obj.Key))
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// Has checks if an object exists.
func (s *LocalStore) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ValidKey(key) {
		return false, nil
	}

	_, err := os.Stat(s.objectPath(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	for _, path := range []string{s.objectPath(key), s.metaPath(key)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(objectsDir(s.basePath))
	if err != nil {
		return nil, fmt.Errorf("read objects directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		key := entry.Name()
		info := Info{Key: key, MIMEType: defaultMIMEType("")}
		if meta, err := s.readMeta(key); err == nil {
			info.MIMEType = defaultMIMEType(meta.MIMEType)
			info.Size = meta.Size
			info.CreatedAt = meta.CreatedAt
		} else if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
			info.CreatedAt = fi.ModTime().UTC()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Key < infos[j].Key
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

// Clear removes every object and recreates the empty layout. The lock file stays.
func (s *LocalStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, dir := range []string{objectsDir(s.basePath), metaDir(s.basePath)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	s.log.WithField("path", s.basePath).Debug("cleared local store")
	return nil
}

func (s *LocalStore) Close() error {
	_ = s.compressor.Close()
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("release cache lock: %w", err)
	}
	return nil
}

// Path returns the directory the store lives in.
func (s *LocalStore) Path() string { return s.basePath }

func (s *LocalStore) readMeta(key string) (objectMeta, error) {
	var meta objectMeta
	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse metadata: %w", err)
	}
	return meta, nil
}

func (s *LocalStore) objectPath(key string) string {
	return filepath.Join(objectsDir(s.basePath), key)
}

func (s *LocalStore) metaPath(key string) string {
	return filepath.Join(metaDir(s.basePath), key+".json")
}

func objectsDir(base string) string { return filepath.Join(base, "objects") }
func metaDir(base string) string    { return filepath.Join(base, "meta") }

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
