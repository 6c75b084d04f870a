package transcode

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

type decodeFunc func(io.Reader) (image.Image, error)

type configFunc func(io.Reader) (image.Config, error)

type encodeFunc func(w io.Writer, img image.Image, quality float64) error

var decoders = map[string]decodeFunc{
	"image/jpeg":  jpeg.Decode,
	"image/jpg":   jpeg.Decode,
	"image/pjpeg": jpeg.Decode,
	"image/png":   png.Decode,
	"image/gif":   gif.Decode,
	"image/bmp":   bmp.Decode,
	"image/webp":  webp.Decode,
}

var configs = map[string]configFunc{
	"image/jpeg":  jpeg.DecodeConfig,
	"image/jpg":   jpeg.DecodeConfig,
	"image/pjpeg": jpeg.DecodeConfig,
	"image/png":   png.DecodeConfig,
	"image/gif":   gif.DecodeConfig,
	"image/bmp":   bmp.DecodeConfig,
	"image/webp":  webp.DecodeConfig,
}

// No webp encoder exists in pure Go; webp uploads fall back to the original bytes.
var encoders = map[string]encodeFunc{
	"image/jpeg":  encodeJPEG,
	"image/jpg":   encodeJPEG,
	"image/pjpeg": encodeJPEG,
	"image/png":   encodePNG,
	"image/gif":   encodeGIF,
	"image/bmp":   encodeBMP,
}

func decode(mimeType string, data []byte) (image.Image, error) {
	dec, ok := decoders[normalizeMIME(mimeType)]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for %s", ErrUnsupportedInput, mimeType)
	}
	img, err := dec(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnsupportedInput, mimeType, err)
	}
	return img, nil
}

// decodeConfig reads only the image header.
func decodeConfig(mimeType string, data []byte) (image.Config, error) {
	dec, ok := configs[normalizeMIME(mimeType)]
	if !ok {
		return image.Config{}, fmt.Errorf("%w: no decoder for %s", ErrUnsupportedInput, mimeType)
	}
	return dec(bytes.NewReader(data))
}

func encode(mimeType string, img image.Image, quality float64) ([]byte, error) {
	enc, ok := encoders[normalizeMIME(mimeType)]
	if !ok {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrTranscode, mimeType)
	}
	var buf bytes.Buffer
	if err := enc(&buf, img, quality); err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrTranscode, mimeType, err)
	}
	return buf.Bytes(), nil
}

// CanEncode reports whether variants can be produced in mimeType.
func CanEncode(mimeType string) bool {
	_, ok := encoders[normalizeMIME(mimeType)]
	return ok
}

func encodeJPEG(w io.Writer, img image.Image, quality float64) error {
	q := int(math.Round(quality * 100))
	q = max(1, min(q, 100))
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

// PNG is lossless; lower quality trades encode time for a smaller file.
func encodePNG(w io.Writer, img image.Image, quality float64) error {
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if quality < 0.9 {
		enc.CompressionLevel = png.BestCompression
	}
	return enc.Encode(w, img)
}

func encodeGIF(w io.Writer, img image.Image, _ float64) error {
	return gif.Encode(w, img, &gif.Options{NumColors: 256})
}

func encodeBMP(w io.Writer, img image.Image, _ float64) error {
	return bmp.Encode(w, img)
}
