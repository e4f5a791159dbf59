package geometry

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// newTestJpeg encodes an in-memory jpeg of the given dimensions.
func newTestJpeg(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}

	return buf.Bytes()
}

// withOrientation splices a minimal exif APP1 segment carrying the given
// orientation code into a jpeg, directly after the SOI marker.
func withOrientation(t *testing.T, jpg []byte, orientation byte) []byte {
	t.Helper()

	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Fatal("test jpeg does not start with an SOI marker")
	}

	// tiff block: little-endian header, one IFD with a single
	// orientation (0x0112) SHORT entry, zero next-IFD offset
	tiff := []byte{
		'I', 'I', 0x2A, 0x00, // byte order + magic
		0x08, 0x00, 0x00, 0x00, // offset of IFD0
		0x01, 0x00, // entry count
		0x12, 0x01, // tag 0x0112 orientation
		0x03, 0x00, // type SHORT
		0x01, 0x00, 0x00, 0x00, // count
		orientation, 0x00, 0x00, 0x00, // value
		0x00, 0x00, 0x00, 0x00, // next IFD offset
	}

	payload := append([]byte("Exif\x00\x00"), tiff...)
	length := len(payload) + 2

	app1 := []byte{0xFF, 0xE1, byte(length >> 8), byte(length & 0xFF)}
	app1 = append(app1, payload...)

	out := make([]byte, 0, len(jpg)+len(app1))
	out = append(out, jpg[:2]...)
	out = append(out, app1...)
	out = append(out, jpg[2:]...)

	return out
}

func TestAnalyzeNoOrientation(t *testing.T) {

	raw := newTestJpeg(t, 80, 60)

	g, err := Analyze(raw)
	if err != nil {
		t.Fatalf("failed to analyze jpeg without exif: %v", err)
	}

	if g.NativeWidth != 80 || g.NativeHeight != 60 {
		t.Errorf("expected native dimensions 80x60, got %dx%d", g.NativeWidth, g.NativeHeight)
	}

	if g.Orientation != 1 {
		t.Errorf("expected default orientation 1, got %d", g.Orientation)
	}

	// no orientation tag -> display equals native
	if g.DisplayWidth != 80 || g.DisplayHeight != 60 {
		t.Errorf("expected display dimensions 80x60, got %dx%d", g.DisplayWidth, g.DisplayHeight)
	}
}

func TestAnalyzeRotatedOrientation(t *testing.T) {

	// physically landscape bytes tagged as rotated 90 degrees clockwise,
	// ie, a portrait photo stored sideways
	raw := withOrientation(t, newTestJpeg(t, 80, 60), 6)

	g, err := Analyze(raw)
	if err != nil {
		t.Fatalf("failed to analyze jpeg with orientation 6: %v", err)
	}

	if g.Orientation != 6 {
		t.Fatalf("expected orientation 6, got %d", g.Orientation)
	}

	if g.NativeWidth != 80 || g.NativeHeight != 60 {
		t.Errorf("expected native dimensions 80x60, got %dx%d", g.NativeWidth, g.NativeHeight)
	}

	// orientation 6 swaps the display dimensions
	if g.DisplayWidth != 60 || g.DisplayHeight != 80 {
		t.Errorf("expected display dimensions 60x80, got %dx%d", g.DisplayWidth, g.DisplayHeight)
	}
}

func TestAnalyzeUnsupportedFormat(t *testing.T) {

	if _, err := Analyze([]byte("this is not an image")); err == nil {
		t.Error("expected an error analyzing a non-image buffer")
	}
}

func TestDisplayDims(t *testing.T) {

	tests := []struct {
		name        string
		orientation int
		w, h        int
		wantW       int
		wantH       int
	}{
		{"normal", 1, 4000, 3000, 4000, 3000},
		{"rotate 180", 3, 4000, 3000, 4000, 3000},
		{"rotate 90 cw", 6, 3000, 4000, 4000, 3000},
		{"rotate 270 cw", 8, 3000, 4000, 4000, 3000},
		{"transposed mirror", 5, 100, 200, 200, 100},
		{"absent tag", 0, 100, 200, 100, 200},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := DisplayDims(tc.orientation, tc.w, tc.h)
			if w != tc.wantW || h != tc.wantH {
				t.Errorf("orientation %d: expected %dx%d, got %dx%d", tc.orientation, tc.wantW, tc.wantH, w, h)
			}
		})
	}
}

func TestRotation(t *testing.T) {

	tests := []struct {
		orientation int
		degrees     int
	}{
		{1, 0}, {2, 0}, {3, 180}, {4, 180},
		{5, 270}, {6, 90}, {7, 90}, {8, 270},
		{0, 0}, {9, 0},
	}

	for _, tc := range tests {
		if got := Rotation(tc.orientation); got != tc.degrees {
			t.Errorf("orientation %d: expected %d degrees, got %d", tc.orientation, tc.degrees, got)
		}
	}
}
