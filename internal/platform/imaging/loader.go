// Package imaging validates and decodes uploaded image payloads.
//
// The package is the single place content types are checked and pixel bounds
// are established; detection adapters rely on it before invoking a model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrUnsupportedType is returned for content types outside the allowlist.
var ErrUnsupportedType = errors.New("unsupported image content type")

// ErrUndecodable is returned when the payload cannot be decoded as an image.
var ErrUndecodable = errors.New("image data could not be decoded")

// allowedTypes mirrors the accepted upload formats (png, jpeg, gif).
var allowedTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
	"image/gif":  {},
}

// Bounds holds the pixel dimensions of a decoded image.
type Bounds struct {
	Width  int
	Height int
}

// Contains reports whether the box [x1,y1,x2,y2] lies fully inside the image.
func (b Bounds) Contains(box [4]float64) bool {
	return box[0] >= 0 && box[1] >= 0 &&
		box[2] <= float64(b.Width) && box[3] <= float64(b.Height) &&
		box[0] <= box[2] && box[1] <= box[3]
}

// Decode validates the declared content type against the allowlist and decodes
// the payload, returning its pixel bounds. The decoded pixels are discarded;
// only the dimensions are needed for box validation.
func Decode(data []byte, contentType string) (Bounds, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if _, ok := allowedTypes[mediaType]; !ok {
		return Bounds{}, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Bounds{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	r := img.Bounds()
	return Bounds{Width: r.Dx(), Height: r.Dy()}, nil
}
