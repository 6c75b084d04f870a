package transcode

import (
	"fmt"
	"strings"
)

// Kind selects the geometry rules of a profile.
type Kind string

const (
	KindPhoto  Kind = "photo"
	KindAvatar Kind = "avatar"
)

// Profile is a named set of dimension and byte budgets.
type Profile struct {
	Name string `mapstructure:"name" json:"name"`
	Kind Kind   `mapstructure:"kind" json:"kind"`

	// Photo geometry: bounding box for the full variant.
	MaxWidth  int `mapstructure:"max_width" json:"max_width"`
	MaxHeight int `mapstructure:"max_height" json:"max_height"`

	// Avatar geometry: side of the square output.
	AvatarSize int `mapstructure:"avatar_size" json:"avatar_size"`

	// MaxStoredBytes is the budget the encoded full variant should fit in.
	MaxStoredBytes int64 `mapstructure:"max_stored_bytes" json:"max_stored_bytes"`
	// MaxUploadBytes rejects raw images before any decoding work.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`
	// MaxPixels rejects images whose header declares more pixels, before any
	// decoding. Zero means DefaultMaxPixels.
	MaxPixels int64 `mapstructure:"max_pixels" json:"max_pixels"`
	// MaxVideoBytes rejects raw videos; zero means videos are not accepted.
	MaxVideoBytes int64 `mapstructure:"max_video_bytes" json:"max_video_bytes"`

	// Thumbnail geometry and budget; photo profiles only.
	ThumbnailWidth    int   `mapstructure:"thumbnail_width" json:"thumbnail_width"`
	ThumbnailHeight   int   `mapstructure:"thumbnail_height" json:"thumbnail_height"`
	ThumbnailMaxBytes int64 `mapstructure:"thumbnail_max_bytes" json:"thumbnail_max_bytes"`
}

const (
	kib = 1 << 10
	mib = 1 << 20
)

// DefaultMaxPixels bounds the decoded size of an image, about 200 MiB as RGBA.
const DefaultMaxPixels = 50_000_000

// Photo is the default profile for general images.
func Photo() Profile {
	return Profile{
		Name:              string(KindPhoto),
		Kind:              KindPhoto,
		MaxWidth:          1920,
		MaxHeight:         1920,
		MaxStoredBytes:    400 * kib,
		MaxUploadBytes:    20 * mib,
		MaxPixels:         DefaultMaxPixels,
		MaxVideoBytes:     100 * mib,
		ThumbnailWidth:    400,
		ThumbnailHeight:   400,
		ThumbnailMaxBytes: 60 * kib,
	}
}

// Avatar is the default profile for square profile pictures.
func Avatar() Profile {
	return Profile{
		Name:           string(KindAvatar),
		Kind:           KindAvatar,
		AvatarSize:     256,
		MaxStoredBytes: 200 * kib,
		MaxUploadBytes: 5 * mib,
		MaxPixels:      16_000_000,
	}
}

// DefaultProfiles returns the built-in profiles keyed by name.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		string(KindPhoto):  Photo(),
		string(KindAvatar): Avatar(),
	}
}

// HasThumbnail reports whether the profile produces a second, smaller variant.
func (p Profile) HasThumbnail() bool {
	return p.Kind == KindPhoto && p.ThumbnailWidth > 0 && p.ThumbnailHeight > 0
}

// AcceptsVideo reports whether videos may be stored under this profile.
func (p Profile) AcceptsVideo() bool {
	return p.MaxVideoBytes > 0
}

// Check validates the profile's own settings.
func (p Profile) Check() error {
	switch p.Kind {
	case KindPhoto:
		if p.MaxWidth <= 0 || p.MaxHeight <= 0 {
			return fmt.Errorf("profile %q: photo bounds must be positive", p.Name)
		}
	case KindAvatar:
		if p.AvatarSize <= 0 {
			return fmt.Errorf("profile %q: avatar size must be positive", p.Name)
		}
	default:
		return fmt.Errorf("profile %q: unknown kind %q", p.Name, p.Kind)
	}
	if p.MaxUploadBytes <= 0 {
		return fmt.Errorf("profile %q: upload ceiling must be positive", p.Name)
	}
	if p.MaxPixels < 0 {
		return fmt.Errorf("profile %q: pixel ceiling must not be negative", p.Name)
	}
	return nil
}

// PixelLimit returns the effective pixel ceiling.
func (p Profile) PixelLimit() int64 {
	if p.MaxPixels > 0 {
		return p.MaxPixels
	}
	return DefaultMaxPixels
}

// Validate rejects files this profile cannot take as images. It reads the
// image header at most, so it is cheap enough to run before any storage
// mutation. A header that cannot be read is left to the transcoder.
func (p Profile) Validate(f File) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: empty file", ErrUnsupportedInput)
	}
	if !IsImage(f.MIMEType) {
		return fmt.Errorf("%w: %q is not an image", ErrUnsupportedInput, f.MIMEType)
	}
	if int64(len(f.Data)) > p.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %s limit of %d", ErrTooLarge, len(f.Data), p.Name, p.MaxUploadBytes)
	}
	if cfg, err := decodeConfig(f.MIMEType, f.Data); err == nil {
		if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.PixelLimit() {
			return fmt.Errorf("%w: %dx%d exceeds the %s limit of %d pixels", ErrTooLarge, cfg.Width, cfg.Height, p.Name, p.PixelLimit())
		}
	}
	return nil
}

// ValidateVideo applies the video ceiling of the profile.
func (p Profile) ValidateVideo(f File) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: empty file", ErrUnsupportedInput)
	}
	if !IsVideo(f.MIMEType) || !p.AcceptsVideo() {
		return fmt.Errorf("%w: %q is not accepted by the %s profile", ErrUnsupportedInput, f.MIMEType, p.Name)
	}
	if int64(len(f.Data)) > p.MaxVideoBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %s video limit of %d", ErrTooLarge, len(f.Data), p.Name, p.MaxVideoBytes)
	}
	return nil
}

// IsImage reports whether mimeType is an image type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(normalizeMIME(mimeType), "image/")
}

// IsVideo reports whether mimeType is a video type.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(normalizeMIME(mimeType), "video/")
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
