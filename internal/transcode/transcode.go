// Package transcode produces size-budgeted image variants from raw uploads.
//
// A raw image is decoded once, then rendered into one variant (avatar profile,
// square crop) or two (photo profile, full and thumbnail). Each variant goes
// through a bounded budget loop: encode at the default quality, re-encode at
// a reduced quality, then shrink and re-encode. Whatever comes out of the last
// step is accepted even when it is still over budget.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/image/draw"
)

var (
	ErrUnsupportedInput = errors.New("transcode: unsupported input")
	ErrTooLarge         = errors.New("transcode: file too large")
	ErrTranscode        = errors.New("transcode: transcoding failed")
)

const (
	DefaultQuality = 0.9
	ReducedQuality = 0.7
	ShrinkFactor   = 0.8
)

// Escalation steps reported to the Observer.
const (
	StepQuality   = "quality"
	StepShrink    = "shrink"
	StepExhausted = "exhausted"
)

// File is a raw upload.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Variant is one encoded rendition of the source image.
type Variant struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Quality  float64
	// Shrunk is set when the dimensions were reduced to meet the budget.
	Shrunk bool
	// Attempts counts encodes, 1 to 3.
	Attempts int
	// OverBudget is set when every escalation step ran and the result is still too big.
	OverBudget bool
}

// Size returns the encoded size in bytes.
func (v Variant) Size() int64 { return int64(len(v.Data)) }

type Result struct {
	Full         Variant
	Thumbnail    *Variant
	SourceWidth  int
	SourceHeight int
}

// Observer is notified each time a variant needs an escalation step.
type Observer interface {
	ObserveEscalation(step string)
}

type Transcoder struct {
	DefaultQuality float64
	ReducedQuality float64
	ShrinkFactor   float64
	Log            logrus.FieldLogger
	Observer       Observer
}

// New returns a transcoder with the default quality ladder.
func New(log logrus.FieldLogger) *Transcoder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transcoder{
		DefaultQuality: DefaultQuality,
		ReducedQuality: ReducedQuality,
		ShrinkFactor:   ShrinkFactor,
		Log:            log.WithField("component", "transcoder"),
	}
}

// Transcode renders f according to p. Validation errors (ErrUnsupportedInput,
// ErrTooLarge) are returned before any decoding; everything that goes wrong
// afterwards wraps ErrTranscode or ErrUnsupportedInput for undecodable data.
func (t *Transcoder) Transcode(ctx context.Context, f File, p Profile) (*Result, error) {
	if err := p.Validate(f); err != nil {
		return nil, err
	}
	if !CanEncode(f.MIMEType) {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrTranscode, f.MIMEType)
	}

	src, err := decode(f.MIMEType, f.Data)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrUnsupportedInput)
	}

	result := &Result{SourceWidth: bounds.Dx(), SourceHeight: bounds.Dy()}

	var full geometry
	if p.Kind == KindAvatar {
		full = avatarGeometry(bounds, p.AvatarSize)
	} else {
		full = photoGeometry(bounds, p.MaxWidth, p.MaxHeight)
	}

	// Both variants read the same decoded source; nothing mutates it.
	workers := pool.New().WithContext(ctx).WithCancelOnError()
	workers.Go(func(context.Context) error {
		v, err := t.render(src, full, f.MIMEType, p.MaxStoredBytes)
		if err != nil {
			return fmt.Errorf("full variant: %w", err)
		}
		result.Full = v
		return nil
	})
	if p.HasThumbnail() {
		thumb := photoGeometry(bounds, p.ThumbnailWidth, p.ThumbnailHeight)
		workers.Go(func(context.Context) error {
			v, err := t.render(src, thumb, f.MIMEType, p.ThumbnailMaxBytes)
			if err != nil {
				return fmt.Errorf("thumbnail variant: %w", err)
			}
			result.Thumbnail = &v
			return nil
		})
	}
	if err := workers.Wait(); err != nil {
		return nil, err
	}

	entry := t.Log.WithFields(logrus.Fields{
		"profile": p.Name,
		"source":  fmt.Sprintf("%dx%d", result.SourceWidth, result.SourceHeight),
		"full":    fmt.Sprintf("%dx%d", result.Full.Width, result.Full.Height),
		"input":   humanize.IBytes(uint64(len(f.Data))),
		"output":  humanize.IBytes(uint64(result.Full.Size())),
	})
	if result.Thumbnail != nil {
		entry = entry.WithField("thumbnail", fmt.Sprintf("%dx%d", result.Thumbnail.Width, result.Thumbnail.Height))
	}
	entry.Debug("transcoded image")

	return result, nil
}

// render runs the bounded budget loop for one variant.
func (t *Transcoder) render(src image.Image, g geometry, mimeType string, budget int64) (Variant, error) {
	img := resample(src, g.crop, g.width, g.height)
	data, err := encode(mimeType, img, t.DefaultQuality)
	if err != nil {
		return Variant{}, err
	}
	v := Variant{
		Data:     data,
		MIMEType: mimeType,
		Width:    g.width,
		Height:   g.height,
		Quality:  t.DefaultQuality,
		Attempts: 1,
	}
	if budget <= 0 || v.Size() <= budget {
		return v, nil
	}

	t.observe(StepQuality)
	if v.Data, err = encode(mimeType, img, t.ReducedQuality); err != nil {
		return Variant{}, err
	}
	v.Quality = t.ReducedQuality
	v.Attempts++
	if v.Size() <= budget {
		return v, nil
	}

	t.observe(StepShrink)
	v.Width = shrink(g.width, t.ShrinkFactor)
	v.Height = shrink(g.height, t.ShrinkFactor)
	img = resample(src, g.crop, v.Width, v.Height)
	if v.Data, err = encode(mimeType, img, t.ReducedQuality); err != nil {
		return Variant{}, err
	}
	v.Shrunk = true
	v.Attempts++

	if v.Size() > budget {
		t.observe(StepExhausted)
		v.OverBudget = true
		t.Log.WithFields(logrus.Fields{
			"size":   humanize.IBytes(uint64(v.Size())),
			"budget": humanize.IBytes(uint64(budget)),
		}).Info("variant still over budget after escalation, keeping best effort")
	}
	return v, nil
}

func (t *Transcoder) observe(step string) {
	if t.Observer != nil {
		t.Observer.ObserveEscalation(step)
	}
}

// geometry is a source crop rectangle and the output size it is scaled to.
type geometry struct {
	crop   image.Rectangle
	width  int
	height int
}

// photoGeometry keeps the aspect ratio and only ever scales down.
func photoGeometry(bounds image.Rectangle, maxWidth, maxHeight int) geometry {
	w, h := bounds.Dx(), bounds.Dy()
	g := geometry{crop: bounds, width: w, height: h}
	if w <= maxWidth && h <= maxHeight {
		return g
	}

	scale := math.Min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	g.width = clamp(int(math.Round(float64(w)*scale)), 1, min(w, maxWidth))
	g.height = clamp(int(math.Round(float64(h)*scale)), 1, min(h, maxHeight))
	return g
}

// avatarGeometry takes the centred square of the source and scales it to
// size, or keeps it as is when the source is smaller.
func avatarGeometry(bounds image.Rectangle, size int) geometry {
	w, h := bounds.Dx(), bounds.Dy()
	edge := min(w, h)
	x0 := bounds.Min.X + (w-edge)/2
	y0 := bounds.Min.Y + (h-edge)/2
	side := min(size, edge)
	return geometry{
		crop:   image.Rect(x0, y0, x0+edge, y0+edge),
		width:  side,
		height: side,
	}
}

func resample(src image.Image, crop image.Rectangle, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

func shrink(n int, factor float64) int {
	return max(1, int(math.Round(float64(n)*factor)))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
