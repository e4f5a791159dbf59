package meta

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestExtractNoExif(t *testing.T) {

	// a stdlib-encoded jpeg carries no exif block at all
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}

	if block := Extract(buf.Bytes()); block != nil {
		t.Errorf("expected nil metadata for jpeg without exif, got %+v", block)
	}
}

func TestExtractGarbage(t *testing.T) {

	// parsing failure is not an error, it is an absence of metadata
	if block := Extract([]byte("definitely not an image")); block != nil {
		t.Errorf("expected nil metadata for undecodable bytes, got %+v", block)
	}
}

func TestExtractEmpty(t *testing.T) {

	if block := Extract(nil); block != nil {
		t.Errorf("expected nil metadata for empty buffer, got %+v", block)
	}
}
