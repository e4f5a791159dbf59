package api

import (
	"github.com/tdeslauriers/carapace/pkg/data"
)

// Photo is a model which represents a persisted photo record in API responses.
// It is the decrypted, caller-facing view of the photo record.
type Photo struct {
	Id               string          `json:"id,omitempty"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Slug             string          `json:"slug,omitempty"`
	FileName         string          `json:"file_name"`          // name of the stored file with its extension, eg, "slug.jpg"
	OriginalFileName string          `json:"original_file_name"` // file name as uploaded by the caller
	MimeType         string          `json:"mime_type"`
	Size             int64           `json:"size"`
	Fingerprint      string          `json:"fingerprint,omitempty"` // content hash of the raw bytes
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	DisplayWidth     int             `json:"display_width"`  // width after orientation is applied
	DisplayHeight    int             `json:"display_height"` // height after orientation is applied
	Orientation      int             `json:"orientation,omitempty"`
	Url              string          `json:"url,omitempty"` // serving url of the original file
	AlbumId          string          `json:"album_id,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	IsPublished      bool            `json:"is_published"`
	IsLeading        bool            `json:"is_leading"` // leading/cover photo of its album
	UploadedBy       string          `json:"uploaded_by,omitempty"`
	CreatedAt        data.CustomTime `json:"created_at,omitempty"`
	UpdatedAt        data.CustomTime `json:"updated_at,omitempty"`
}

// MetadataBlock is a model which represents the descriptive metadata extracted
// from an image file's embedded exif data. All fields are optional: extraction
// is best effort and a photo with no readable metadata has no block at all.
type MetadataBlock struct {
	Make         string           `json:"make,omitempty"`
	Model        string           `json:"model,omitempty"`
	TakenAt      *data.CustomTime `json:"taken_at,omitempty"`
	ExposureTime string           `json:"exposure_time,omitempty"` // eg, "1/250"
	Aperture     float64          `json:"aperture,omitempty"`      // f-number
	Iso          int              `json:"iso,omitempty"`
	FocalLength  float64          `json:"focal_length,omitempty"` // in mm
	Latitude     float64          `json:"latitude,omitempty"`
	Longitude    float64          `json:"longitude,omitempty"`
	Altitude     float64          `json:"altitude,omitempty"` // in meters
	Software     string           `json:"software,omitempty"`
	Copyright    string           `json:"copyright,omitempty"`
}

// IsEmpty returns true when no descriptive metadata field is populated.
func (m *MetadataBlock) IsEmpty() bool {
	return m.Make == "" &&
		m.Model == "" &&
		m.TakenAt == nil &&
		m.ExposureTime == "" &&
		m.Aperture == 0 &&
		m.Iso == 0 &&
		m.FocalLength == 0 &&
		m.Latitude == 0 &&
		m.Longitude == 0 &&
		m.Altitude == 0 &&
		m.Software == "" &&
		m.Copyright == ""
}
