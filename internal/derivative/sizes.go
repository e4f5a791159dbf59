package derivative

import "math"

// SizeSpec describes one named derivative: the bounding box the resized image
// must fit inside and the jpeg encode quality for that size.
type SizeSpec struct {
	Name      string
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultSizes is the fixed derivative family generated for every upload,
// smallest to largest.
var DefaultSizes = []SizeSpec{
	{Name: SizeMicro, MaxWidth: 64, MaxHeight: 64, Quality: 60},
	{Name: SizeSmall, MaxWidth: 320, MaxHeight: 320, Quality: 70},
	{Name: SizeMedium, MaxWidth: 640, MaxHeight: 640, Quality: 78},
	{Name: SizeLarge, MaxWidth: 1280, MaxHeight: 1280, Quality: 82},
	{Name: SizeHero, MaxWidth: 1920, MaxHeight: 1920, Quality: 85},
}

const (
	SizeMicro  = "micro"
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
	SizeHero   = "hero"
)

// TargetDimensions computes the output dimensions for a source image fit
// inside the spec's bounding box: aspect ratio preserved, never upscaled.
func TargetDimensions(srcWidth, srcHeight int, spec SizeSpec) (int, int) {

	// degenerate sources pass through untouched
	if srcWidth <= 0 || srcHeight <= 0 || spec.MaxWidth <= 0 || spec.MaxHeight <= 0 {
		return srcWidth, srcHeight
	}

	scale := math.Min(
		float64(spec.MaxWidth)/float64(srcWidth),
		float64(spec.MaxHeight)/float64(srcHeight),
	)

	// scale-down only
	if scale >= 1 {
		return srcWidth, srcHeight
	}

	w := int(math.Round(float64(srcWidth) * scale))
	h := int(math.Round(float64(srcHeight) * scale))

	// rounding must never produce a zero dimension
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	return w, h
}
