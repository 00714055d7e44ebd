package imaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fitroom/fitroom/internal/domain"
)

// MaxBytes is the per-image size ceiling. Anything larger is rejected before
// it can reach a slot or the network.
const MaxBytes = 10 << 20 // 10 MiB

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
)

// acceptedTypes is the fixed allow-list of declared media types. The backend
// only understands JPEG, PNG, and WebP; GIF uploads are rejected here rather
// than failing server-side.
var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// Validate reports whether an asset may enter the session. The check is pure
// and content-independent: it looks only at the declared media type and the
// byte length, never at the pixels. Returns nil, or an error matching
// ErrUnsupportedType or ErrTooLarge via errors.Is.
func Validate(asset domain.ImageAsset) error {
	if !acceptedTypes[strings.ToLower(asset.MIME)] {
		return fmt.Errorf("media type %q: %w", asset.MIME, ErrUnsupportedType)
	}
	if asset.Size() > MaxBytes {
		return fmt.Errorf("%d bytes (limit %d): %w", asset.Size(), int64(MaxBytes), ErrTooLarge)
	}
	return nil
}
