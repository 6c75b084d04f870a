package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/mediacache/internal/compression"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func backends() []backend {
	return []backend{
		{"local", func(t *testing.T) Store {
			s, err := NewLocalStore(t.TempDir(), LocalOptions{Compression: true, CompressionLevel: compression.LevelDefault, Log: quietLogger()})
			require.NoError(t, err)
			return s
		}},
		{"local-uncompressed", func(t *testing.T) Store {
			s, err := NewLocalStore(t.TempDir(), LocalOptions{Log: quietLogger()})
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "media.db"))
			require.NoError(t, err)
			return s
		}},
		{"cached-local", func(t *testing.T) Store {
			inner, err := NewLocalStore(t.TempDir(), LocalOptions{Compression: true, Log: quietLogger()})
			require.NoError(t, err)
			s, err := Cached(inner, 4)
			require.NoError(t, err)
			return s
		}},
	}
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			data := bytes.Repeat([]byte("jpeg-bytes"), 100)
			created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, s.Put(ctx, &Object{Key: "temp-image-full-abc", MIMEType: "image/jpeg", Data: data, CreatedAt: created}))

			obj, err := s.Get(ctx, "temp-image-full-abc")
			require.NoError(t, err)
			assert.Equal(t, data, obj.Data)
			assert.Equal(t, "image/jpeg", obj.MIMEType)
			assert.True(t, created.Equal(obj.CreatedAt))

			ok, err := s.Has(ctx, "temp-image-full-abc")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStoreMissingKey(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			_, err := s.Get(ctx, "temp-video-missing")
			assert.ErrorIs(t, err, ErrNotFound)

			ok, err := s.Has(ctx, "temp-video-missing")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Delete(ctx, "temp-video-missing"))
		})
	}
}

func TestStoreListAndClear(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			keys := []string{"temp-file-b", "temp-file-a", "temp-video-c"}
			for i, key := range keys {
				require.NoError(t, s.Put(ctx, &Object{Key: key, MIMEType: "video/mp4", Data: []byte{byte(i), 1, 2}, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
			}

			infos, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 3)
			assert.Equal(t, "temp-file-b", infos[0].Key)
			assert.Equal(t, "temp-video-c", infos[2].Key)
			assert.EqualValues(t, 3, infos[1].Size)

			require.NoError(t, s.Delete(ctx, "temp-file-a"))
			infos, err = s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, infos, 2)

			require.NoError(t, s.Clear(ctx))
			infos, err = s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, infos)

			_, err = s.Get(ctx, "temp-file-b")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreDefaultsMIMEType(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			require.NoError(t, s.Put(ctx, &Object{Key: "temp-file-x", Data: []byte("x")}))
			obj, err := s.Get(ctx, "temp-file-x")
			require.NoError(t, err)
			assert.Equal(t, "application/octet-stream", obj.MIMEType)
		})
	}
}

func TestLocalStoreRejectsInvalidKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), LocalOptions{Log: quietLogger()})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		assert.ErrorIs(t, s.Put(ctx, &Object{Key: key, Data: []byte("x")}), ErrInvalidKey, key)
	}
}

func TestLocalStoreLocksDirectory(t *testing.T) {
	dir := t.TempDir()
	first, err := NewLocalStore(dir, LocalOptions{Log: quietLogger()})
	require.NoError(t, err)

	_, err = NewLocalStore(dir, LocalOptions{Log: quietLogger()})
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())

	second, err := NewLocalStore(dir, LocalOptions{Log: quietLogger()})
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestLocalStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewLocalStore(dir, LocalOptions{Compression: true, Log: quietLogger()})
	require.NoError(t, err)
	data := bytes.Repeat([]byte{7}, 4096)
	require.NoError(t, first.Put(ctx, &Object{Key: "temp-image-thumb-1", MIMEType: "image/png", Data: data}))
	require.NoError(t, first.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "objects", "temp-image-thumb-1"))
	require.NoError(t, err)
	assert.True(t, compression.IsFrame(raw))

	second, err := NewLocalStore(dir, LocalOptions{Log: quietLogger()})
	require.NoError(t, err)
	defer second.Close()

	obj, err := second.Get(ctx, "temp-image-thumb-1")
	require.NoError(t, err)
	assert.Equal(t, data, obj.Data)
	assert.Equal(t, "image/png", obj.MIMEType)
}

func TestCachedStoreServesFromMemory(t *testing.T) {
	ctx := context.Background()
	inner, err := NewLocalStore(t.TempDir(), LocalOptions{Log: quietLogger()})
	require.NoError(t, err)
	defer inner.Close()

	s, err := Cached(inner, 2)
	require.NoError(t, err)
	cached := s.(*CachedStore)

	require.NoError(t, s.Put(ctx, &Object{Key: "temp-file-1", Data: []byte("one")}))
	assert.Equal(t, 1, cached.Len())

	// Out-of-band loss of the durable copy is masked while the object is hot.
	require.NoError(t, inner.Delete(ctx, "temp-file-1"))
	obj, err := s.Get(ctx, "temp-file-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), obj.Data)

	cached.Evict("temp-file-1")
	_, err = s.Get(ctx, "temp-file-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStoreCopiesCallerBuffer(t *testing.T) {
	ctx := context.Background()
	inner, err := NewLocalStore(t.TempDir(), LocalOptions{Log: quietLogger()})
	require.NoError(t, err)
	defer inner.Close()

	s, err := Cached(inner, 2)
	require.NoError(t, err)

	data := []byte("original payload")
	require.NoError(t, s.Put(ctx, &Object{Key: "temp-video-1", MIMEType: "video/mp4", Data: data}))
	copy(data, bytes.Repeat([]byte("X"), len(data)))

	obj, err := s.Get(ctx, "temp-video-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("original payload"), obj.Data)

	durable, err := inner.Get(ctx, "temp-video-1")
	require.NoError(t, err)
	assert.Equal(t, durable.Data, obj.Data)
}

func TestCachedDisabled(t *testing.T) {
	inner, err := NewLocalStore(t.TempDir(), LocalOptions{Log: quietLogger()})
	require.NoError(t, err)
	defer inner.Close()

	s, err := Cached(inner, 0)
	require.NoError(t, err)
	assert.Same(t, inner, s)
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("temp-image-full-0b6f3c5e-8d0a-4c1b-9b0e-2f8a1c3d4e5f"))
	assert.False(t, ValidKey(""))
	assert.False(t, ValidKey("a b"))
	assert.False(t, ValidKey(string(bytes.Repeat([]byte("a"), 201))))
}
