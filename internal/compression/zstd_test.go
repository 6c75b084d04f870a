package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressorRoundTrip(t *testing.T) {
	c, err := NewCompressor(LevelDefault, true)
	require.NoError(t, err)
	defer c.Close()

	data := bytes.Repeat([]byte("media-cache "), 256)
	compressed := c.Compress(data)
	assert.True(t, IsFrame(compressed))
	assert.Less(t, len(compressed), len(data))

	out, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCompressorSkipsSmallPayloads(t *testing.T) {
	c, err := NewCompressor(LevelFastest, true)
	require.NoError(t, err)
	defer c.Close()

	data := []byte("tiny")
	assert.Equal(t, data, c.Compress(data))

	out, err := c.Decompress(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDisabledCompressorReadsFrames(t *testing.T) {
	enabled, err := NewCompressor(LevelBetter, true)
	require.NoError(t, err)
	defer enabled.Close()

	disabled, err := NewCompressor(LevelDefault, false)
	require.NoError(t, err)
	defer disabled.Close()

	data := bytes.Repeat([]byte{1, 2, 3, 4}, 512)
	assert.Equal(t, data, disabled.Compress(data))

	out, err := disabled.Decompress(enabled.Compress(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDecompressCorruptFrame(t *testing.T) {
	c, err := NewCompressor(LevelDefault, true)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decompress(append([]byte{0x28, 0xb5, 0x2f, 0xfd}, 0xff, 0xff, 0xff))
	assert.Error(t, err)
}
