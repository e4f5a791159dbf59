// Package derivative generates the resized derivative family and the blur
// placeholder for an uploaded image. Orientation is baked into the output
// pixels so downstream consumers never re-rotate.
package derivative

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"sync"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/tdeslauriers/halide/internal/geometry"
	"github.com/tdeslauriers/halide/internal/util"
	"golang.org/x/sync/errgroup"

	redraw "golang.org/x/image/draw"
)

const (
	// DefaultJpegQuality is the fallback encode quality when a size spec
	// carries an out-of-range value.
	DefaultJpegQuality int = 85

	// maxConcurrentSizes bounds the derivative fan-out so a single upload
	// does not hold every decoded bitmap in memory at once.
	maxConcurrentSizes = 3
)

// Derivative is one generated derivative: its size name, final pixel
// dimensions, and encoded jpeg bytes.
type Derivative struct {
	Name   string
	Width  int
	Height int
	Data   []byte
}

// Set maps size names to generated derivatives. A size that failed to
// generate is simply absent.
type Set map[string]Derivative

// Generator produces the derivative family and the blur placeholder from one
// immutable raw buffer.
type Generator interface {

	// GenerateAll generates every configured derivative size from the raw
	// bytes, rotating pixels per the supplied geometry. A single size
	// failing is logged and omitted from the returned set; only a failure
	// to decode the source at all returns an error.
	GenerateAll(ctx context.Context, raw []byte, g *geometry.Geometry) (Set, error)

	// BlurPlaceholder generates the tiny progressive-loading placeholder
	// as an inline data url. It never fails: any error yields a
	// deterministic generated gradient placeholder instead.
	BlurPlaceholder(raw []byte, g *geometry.Geometry) string
}

// NewGenerator creates a new derivative generator over the default size
// family, returning a pointer to the concrete implementation.
func NewGenerator() Generator {
	return &generator{
		sizes:  DefaultSizes,
		encode: encodeToJpeg,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageDerivative)).
			With(slog.String(util.ComponentKey, util.ComponentDerivatives)),
	}
}

var _ Generator = (*generator)(nil)

// generator is the concrete implementation of the Generator interface.
type generator struct {
	sizes []SizeSpec

	// encode is swappable so tests can force a per-size failure
	encode func(src image.Image, quality int) ([]byte, error)

	logger *slog.Logger
}

// GenerateAll is the concrete implementation of the interface method which
// generates every configured derivative size from the raw bytes.
func (gen *generator) GenerateAll(ctx context.Context, raw []byte, g *geometry.Geometry) (Set, error) {

	// decode the full pixel buffer once; geometry analysis has already
	// vetted the format, so a failure here is genuinely exceptional
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for derivative generation: %v", err)
	}

	// bake the orientation into the pixels; the jpeg encoder writes no
	// exif, so the orientation tag is stripped from every derivative
	src = rotateImage(src, geometry.Rotation(g.Orientation))

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	set := make(Set, len(gen.sizes))
	var mu sync.Mutex

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentSizes)

	for _, spec := range gen.sizes {
		group.Go(func() error {

			// only cancellation aborts the family; per-size errors
			// are soft
			if err := ctx.Err(); err != nil {
				return err
			}

			w, h := TargetDimensions(srcW, srcH, spec)

			resized := resizeTo(src, w, h)
			encoded, err := gen.encode(resized, spec.Quality)
			if err != nil {
				gen.logger.Error(fmt.Sprintf("failed to generate '%s' derivative: %v", spec.Name, err))
				return nil
			}

			mu.Lock()
			set[spec.Name] = Derivative{
				Name:   spec.Name,
				Width:  w,
				Height: h,
				Data:   encoded,
			}
			mu.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("derivative generation cancelled: %v", err)
	}

	return set, nil
}

// rotateImage rotates an image based on the provided rotation in degrees.
func rotateImage(src image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 { // normalize degrees to [0, 360) -> accounts for negative degrees
	case 0:
		return src // no rotation needed
	case 90:
		return rotate90(src)
	case 180:
		return rotate180(src)
	case 270:
		return rotate270(src)
	default:
		return src // unsupported rotation, return original
	}
}

// rotate90 is a helper function to rotate an image 90 degrees clockwise.
func rotate90(src image.Image) image.Image {

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return dst
}

// rotate180 is a helper function to rotate an image 180 degrees.
func rotate180(src image.Image) image.Image {

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, h-1-y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return dst
}

// rotate270 is a helper function to rotate an image 270 degrees clockwise.
func rotate270(src image.Image) image.Image {

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	return dst
}

// resizeTo resizes the source image to exactly the provided dimensions using
// CatmullRom interpolation. Callers are expected to have computed
// aspect-preserving dimensions already.
func resizeTo(src image.Image, width, height int) image.Image {

	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	redraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, redraw.Over, nil)

	return dst
}

// encodeToJpeg is a helper which encodes the provided image to JPEG format
// with the specified quality and returns the encoded bytes.
func encodeToJpeg(src image.Image, quality int) ([]byte, error) {

	if quality < 1 || quality > 100 {
		quality = DefaultJpegQuality
	}

	// jpeg has no alpha channel; flatten transparency on white first
	if hasAlphaChannel(src) {
		src = flattenOnWhite(src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image to JPEG: %v", err)
	}

	return buf.Bytes(), nil
}

// hasAlphaChannel checks if the provided image has an alpha channel
func hasAlphaChannel(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Alpha, *image.Alpha16:
		return true
	default:
		// treat images without the above as not having an alpha channel by default
		return false
	}
}

// flattenOnWhite flattens an image with an alpha channel onto a white background, ie,
// it removes transparency by compositing the image over a white canvas.
func flattenOnWhite(src image.Image) image.Image {

	bounds := src.Bounds()

	dst := image.NewRGBA(bounds)

	// fill white into the destination image
	draw.Draw(dst, bounds, &image.Uniform{C: image.White}, image.Point{}, draw.Src)

	// composite the source image over the white background
	draw.Draw(dst, bounds, src, bounds.Min, draw.Over)

	return dst
}
