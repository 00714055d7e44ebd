package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/png" // decoder registrations for thumbnail generation

	_ "golang.org/x/image/webp"
)

// jpegQuality balances preview fidelity against the size of cached thumbnails.
const jpegQuality = 85

// Thumbnail downscales an image so its longest side is at most maxDim and
// re-encodes it as JPEG. It reports ok=false when the bytes cannot be decoded
// or the image is already within bounds; callers should then serve the
// original bytes unchanged. Thumbnailing is best-effort display plumbing and
// must never influence whether an asset was accepted.
func Thumbnail(data []byte, maxDim int) ([]byte, bool) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return nil, false
	}

	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
