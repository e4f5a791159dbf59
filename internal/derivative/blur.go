package derivative

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"

	"github.com/tdeslauriers/halide/internal/geometry"
)

const (
	// BlurBox is the bounding box (long side in pixels) for the blur
	// placeholder image.
	BlurBox int = 20

	// BlurQuality is the jpeg encode quality for the placeholder. Heavy
	// compression is the point: the browser scales and blurs it anyway.
	BlurQuality int = 40

	// BlurDataUrlPrefix is the inline-image prefix every placeholder
	// string starts with.
	BlurDataUrlPrefix = "data:image/jpeg;base64,"
)

// blurSpec is the placeholder's bounding box expressed as a size spec so it
// shares TargetDimensions with the derivative family.
var blurSpec = SizeSpec{Name: "blur", MaxWidth: BlurBox, MaxHeight: BlurBox, Quality: BlurQuality}

// BlurPlaceholder is the concrete implementation of the interface method
// which generates the tiny progressive-loading placeholder as an inline data
// url. The placeholder is cosmetic, so every failure path falls back to a
// deterministic generated gradient rather than failing the upload.
func (gen *generator) BlurPlaceholder(raw []byte, g *geometry.Geometry) string {

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		gen.logger.Warn(fmt.Sprintf("failed to decode image for blur placeholder, using gradient fallback: %v", err))
		return gradientFallback()
	}

	// same orientation correction as the derivative family
	src = rotateImage(src, geometry.Rotation(g.Orientation))

	bounds := src.Bounds()
	w, h := TargetDimensions(bounds.Dx(), bounds.Dy(), blurSpec)

	encoded, err := gen.encode(resizeTo(src, w, h), BlurQuality)
	if err != nil {
		gen.logger.Warn(fmt.Sprintf("failed to encode blur placeholder, using gradient fallback: %v", err))
		return gradientFallback()
	}

	return BlurDataUrlPrefix + base64.StdEncoding.EncodeToString(encoded)
}

// gradientFallback builds the deterministic gray gradient placeholder used
// when the real placeholder cannot be generated.
func gradientFallback() string {

	img := image.NewRGBA(image.Rect(0, 0, BlurBox, BlurBox))
	for y := 0; y < BlurBox; y++ {
		for x := 0; x < BlurBox; x++ {
			// diagonal gray ramp
			v := uint8(100 + (x+y)*120/(2*BlurBox-2))
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	encoded, err := encodeToJpeg(img, BlurQuality)
	if err != nil {
		// stdlib jpeg encoding of an in-memory RGBA cannot fail in
		// practice; return a bare prefix rather than propagating
		return BlurDataUrlPrefix
	}

	return BlurDataUrlPrefix + base64.StdEncoding.EncodeToString(encoded)
}
