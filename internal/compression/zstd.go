// Package compression wraps zstd for payloads written by the filesystem store.
//
// Compressed payloads are only kept when they are actually smaller than the
// input; most encoded media is already compressed, so the common case is a
// pass-through. Decompress recognises zstd frames by their magic number and
// returns anything else untouched.
package compression

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// minSize is the payload size below which compression is never attempted.
const minSize = 128

var frameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Level selects the zstd encoder speed/ratio trade-off.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 2
	LevelBetter  Level = 3
)

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor builds a compressor. A disabled compressor still decodes
// frames written earlier by an enabled one.
func NewCompressor(level Level, enabled bool) (*Compressor, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if !enabled {
		return &Compressor{decoder: decoder}, nil
	}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case LevelFastest:
		encoderLevel = zstd.SpeedFastest
	case LevelBetter:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
		enabled: true,
	}, nil
}

// Compress returns a zstd frame, or data itself when compression is disabled
// or would not shrink it.
func (c *Compressor) Compress(data []byte) []byte {
	if !c.enabled || len(data) < minSize {
		return data
	}

	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return data
	}
	return compressed
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if !IsFrame(data) {
		return data, nil
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode zstd frame: %w", err)
	}
	return decompressed, nil
}

// IsFrame reports whether data starts with the zstd frame magic number.
func IsFrame(data []byte) bool {
	return bytes.HasPrefix(data, frameMagic)
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
