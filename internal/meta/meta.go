// Package meta extracts descriptive metadata (camera, exposure, gps,
// software fields) from an image's embedded exif data. Extraction is best
// effort: a format with no metadata, or metadata that cannot be parsed,
// yields nil rather than an error.
package meta

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/halide/pkg/api"
)

// Extract pulls descriptive metadata from the raw image bytes. It returns nil
// when the buffer has no readable exif data or when no descriptive field is
// present at all.
func Extract(raw []byte) *api.MetadataBlock {

	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil || x == nil {
		return nil
	}

	block := &api.MetadataBlock{}

	if s, ok := stringTag(x, exif.Make); ok {
		block.Make = s
	}

	if s, ok := stringTag(x, exif.Model); ok {
		block.Model = s
	}

	// best effort -> tries DateTimeOriginal, DateTimeDigitized, DateTime
	if taken, err := x.DateTime(); err == nil {
		block.TakenAt = &data.CustomTime{Time: taken.UTC()}
	}

	// exposure time reads better as the photographic fraction, eg "1/250"
	if tag, err := x.Get(exif.ExposureTime); err == nil && tag != nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			block.ExposureTime = fmt.Sprintf("%d/%d", num, den)
		}
	}

	if f, ok := ratTag(x, exif.FNumber); ok {
		block.Aperture = f
	}

	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil && tag != nil {
		if iso, err := tag.Int(0); err == nil {
			block.Iso = iso
		}
	}

	if f, ok := ratTag(x, exif.FocalLength); ok {
		block.FocalLength = f
	}

	// gps coordinates will not be present in most images
	if lat, lon, err := x.LatLong(); err == nil {
		block.Latitude = lat
		block.Longitude = lon
	}

	if f, ok := ratTag(x, exif.GPSAltitude); ok {
		block.Altitude = f
	}

	if s, ok := stringTag(x, exif.Software); ok {
		block.Software = s
	}

	if s, ok := stringTag(x, exif.Copyright); ok {
		block.Copyright = s
	}

	// absence of every field also yields nil
	if block.IsEmpty() {
		return nil
	}

	return block
}

// stringTag is a helper which reads an ascii exif tag, trimming padding.
func stringTag(x *exif.Exif, name exif.FieldName) (string, bool) {

	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return "", false
	}

	s, err := tag.StringVal()
	if err != nil {
		return "", false
	}

	s = strings.TrimSpace(strings.Trim(s, "\x00"))
	return s, s != ""
}

// ratTag is a helper which reads a rational exif tag as a float.
func ratTag(x *exif.Exif, name exif.FieldName) (float64, bool) {

	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return 0, false
	}

	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0, false
	}

	return float64(num) / float64(den), true
}
