// Package geometry derives the canonical dimensions of an uploaded image:
// the native pixel dimensions of the buffer and the display dimensions after
// the exif orientation tag is accounted for.
package geometry

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrUnsupportedFormat is returned when no registered codec can read the
// buffer. It is fatal to a pipeline invocation.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Geometry represents the dimensional facts of one image buffer.
//
// Invariant: when Orientation indicates a 90/270 degree rotation (exif values
// 6 and 8), DisplayWidth/DisplayHeight are the native values swapped;
// otherwise they equal the native values.
type Geometry struct {
	NativeWidth   int `json:"native_width"`
	NativeHeight  int `json:"native_height"`
	DisplayWidth  int `json:"display_width"`
	DisplayHeight int `json:"display_height"`

	// exif orientation code: 1 normal, 3 rotate 180, 6 rotate 90 cw,
	// 8 rotate 270 cw. 1 when the tag is absent.
	Orientation int `json:"orientation"`
}

// Analyze reads the native width/height and the exif orientation tag from the
// raw bytes and derives the display dimensions. It returns
// ErrUnsupportedFormat when the buffer cannot be decoded.
func Analyze(raw []byte) (*Geometry, error) {

	// decode the image header only; full pixel decode belongs to the
	// derivative generator
	config, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	// not all images have exif data, jpeg and tiff are the most common.
	// png, gif, and webp typically do not, so a failed decode means
	// "no orientation tag", not an error.
	orientation := 1
	if x, err := exif.Decode(bytes.NewReader(raw)); err == nil && x != nil {
		if tag, err := x.Get(exif.Orientation); err == nil && tag != nil {
			if o, err := tag.Int(0); err == nil && o >= 1 && o <= 8 {
				orientation = o
			}
		}
	}

	dw, dh := DisplayDims(orientation, config.Width, config.Height)

	return &Geometry{
		NativeWidth:   config.Width,
		NativeHeight:  config.Height,
		DisplayWidth:  dw,
		DisplayHeight: dh,
		Orientation:   orientation,
	}, nil
}

// DisplayDims applies the orientation swap rule to native dimensions: exif
// orientations 5 through 8 are the transposed cases, so width and height
// trade places; all other values leave the native dimensions untouched.
func DisplayDims(orientation, width, height int) (int, int) {
	switch orientation {
	case 5, 6, 7, 8:
		return height, width
	default:
		return width, height
	}
}

// Rotation converts an exif orientation code to clockwise rotation in
// degrees. Mirror cases map to their equivalent rotations.
func Rotation(orientation int) int {
	switch orientation {
	case 1: // normal
		return 0
	case 2: // mirror horizontal
		return 0
	case 3: // rotate 180
		return 180
	case 4: // mirror vertical
		return 180
	case 5: // mirror horizontal + rotate 270 clockwise
		return 270
	case 6: // rotate 90 clockwise
		return 90
	case 7: // mirror horizontal + rotate 90 clockwise
		return 90
	case 8: // rotate 270 clockwise
		return 270
	default:
		return 0
	}
}
