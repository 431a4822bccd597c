package artifacts

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"strings"

	"github.com/disintegration/imaging"
)

const thumbEdge = 320

// Thumbnail renders a JPEG preview for an uploaded image, longest edge
// capped at 320px. Non-image inputs return an error; callers treat previews
// as best-effort.
func Thumbnail(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumb := imaging.Fit(img, thumbEdge, thumbEdge, imaging.Lanczos)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}

// IsImageContentType reports whether a MIME type is previewable.
func IsImageContentType(ct string) bool {
	switch {
	case strings.HasPrefix(ct, "image/jpeg"),
		strings.HasPrefix(ct, "image/png"),
		strings.HasPrefix(ct, "image/gif"),
		strings.HasPrefix(ct, "image/webp"),
		strings.HasPrefix(ct, "image/bmp"):
		return true
	}
	return false
}
