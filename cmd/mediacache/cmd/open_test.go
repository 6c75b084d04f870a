package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/mediacache"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestCompressionLevel(t *testing.T) {
	for name, want := range map[string]mediacache.CompressionLevel{
		"fastest": mediacache.CompressionFastest,
		"":        mediacache.CompressionDefault,
		"Better":  mediacache.CompressionBetter,
	} {
		got, err := compressionLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := compressionLevel("max")
	assert.Error(t, err)
}

func TestConfiguredProfilesOverlayDefaults(t *testing.T) {
	resetViper(t)
	viper.Set("profiles", map[string]any{
		"photo":  map[string]any{"max_width": 1280},
		"banner": map[string]any{"max_width": 2400, "max_height": 600, "thumbnail_width": 0},
	})

	profiles, err := configuredProfiles()
	require.NoError(t, err)

	photo := profiles["photo"]
	assert.Equal(t, 1280, photo.MaxWidth)
	assert.Equal(t, 1920, photo.MaxHeight)
	assert.EqualValues(t, 400<<10, photo.MaxStoredBytes)

	banner := profiles["banner"]
	assert.Equal(t, "banner", banner.Name)
	assert.Equal(t, 2400, banner.MaxWidth)
	assert.Equal(t, 600, banner.MaxHeight)
	assert.False(t, banner.HasThumbnail())
}

func TestOpenCacheFromConfig(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	viper.Set("cache_dir", dir)
	viper.Set("backend", mediacache.BackendSQLite)
	viper.Set("media.base_url", "https://media.example.com")

	m, err := openCache()
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "https://media.example.com", m.MediaBase())
	assert.Equal(t, mediacache.BackendSQLite, m.Backend())
	assert.FileExists(t, filepath.Join(dir, "media.db"))
}

func TestRenderObjects(t *testing.T) {
	out := renderObjects([]mediacache.ObjectInfo{
		{Key: "temp-video-a", MIMEType: "video/mp4", Size: 2048, CreatedAt: time.Now()},
		{Key: "temp-file-b", MIMEType: "image/webp", Size: 1024, CreatedAt: time.Now()},
	})
	assert.Contains(t, out, "temp-video-a")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "3.0 KiB")
	assert.Contains(t, out, "2 objects")
}

func TestReadRawFileSniffsType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.bin")
	require.NoError(t, os.WriteFile(path, []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), 0o644))

	f, err := readRawFile(path)
	require.NoError(t, err)
	assert.Equal(t, "clip.bin", f.Name)
	assert.Equal(t, "video/mp4", f.MIMEType)
}

func TestListWritesTSVWhenNotATerminal(t *testing.T) {
	resetViper(t)
	viper.Set("cache_dir", t.TempDir())

	m, err := openCache()
	require.NoError(t, err)
	_, err = m.Store(context.Background(), mediacache.RawFile{
		Name: "clip.mp4", MIMEType: "video/mp4", Data: []byte("\x00\x00\x00\x18ftypmp42"),
	}, "photo")
	require.NoError(t, err)
	require.NoError(t, m.Close())

	var buf bytes.Buffer
	listCmd.SetOut(&buf)
	t.Cleanup(func() { listCmd.SetOut(nil) })
	require.NoError(t, runList(listCmd, nil))

	assert.Regexp(t, `^temp-video-[0-9a-f-]+\tvideo/mp4\t\d+\t`, buf.String())
}
