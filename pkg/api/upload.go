package api

import (
	"fmt"
	"strings"

	"github.com/tdeslauriers/carapace/pkg/validate"
)

const (
	PhotoTitleMinLength = 1                           // Minimum length for photo title
	PhotoTitleMaxLength = 64                          // Maximum length for photo title
	PhotoTitleRegex     = `^[a-zA-Z0-9\-\/ ]{0,64}$`  // Regex for photo title, alphanumeric, spaces, dashes
	PhotoTitleDefault   = "untitled"                  // Title used when the caller supplies none

	PhotoDescriptionMaxLength = 255                         // Maximum length for photo description
	PhotoDescriptionRegex     = `^[\w\s.,!?'"()&-]{0,255}$` // Regex for photo description, allows alphanumeric, spaces, punctuation

	PhotoTagRegex = `^[a-z0-9\-]{1,32}$` // Regex for a single photo tag, lowercase kebab, max 32 chars
)

// AllowedFileTypes are the MIME types the ingestion pipeline accepts.
var AllowedFileTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// IsValidFiletype checks if the provided MIME type is one the pipeline accepts.
func IsValidFiletype(mimeType string) bool {
	for _, t := range AllowedFileTypes {
		if strings.EqualFold(mimeType, t) {
			return true
		}
	}
	return false
}

// IsValidExtension checks if the provided file extension, eg, ".jpg", is one
// the pipeline accepts.
func IsValidExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}

// UploadCmd is a model which represents the command to ingest a single raw
// upload through the pipeline. The raw bytes travel alongside the command, not
// inside it, so the command itself stays loggable.
type UploadCmd struct {
	Csrf string `json:"csrf,omitempty"` // this may not always be required, eg, s2s callers

	OriginalFileName string   `json:"original_file_name"`
	MimeType         string   `json:"mime_type"`
	AlbumId          string   `json:"album_id,omitempty"`
	Title            string   `json:"title,omitempty"`
	Description      string   `json:"description,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Replace          bool     `json:"replace_if_exists,omitempty"` // overwrite files of an existing duplicate record
	UploadedBy       string   `json:"uploaded_by,omitempty"`       // opaque user id; pipeline resolves a fallback if empty
}

// Validate validates the UploadCmd -> input validation.
func (cmd *UploadCmd) Validate() error {

	// if csrf is present, validate it
	if cmd.Csrf != "" && !validate.IsValidUuid(cmd.Csrf) {
		return fmt.Errorf("invalid CSRF token")
	}

	// validate the original file name and its extension
	if strings.TrimSpace(cmd.OriginalFileName) == "" {
		return fmt.Errorf("original file name is required")
	}

	dot := strings.LastIndex(cmd.OriginalFileName, ".")
	if dot < 1 || !IsValidExtension(cmd.OriginalFileName[dot:]) {
		return fmt.Errorf("original file name must include a valid file extension, eg, 'sunset.jpg'")
	}

	// validate the mime type
	if !IsValidFiletype(cmd.MimeType) {
		return fmt.Errorf("file type must be one of: %s", strings.Join(AllowedFileTypes, ", "))
	}

	// validate album id if present -> uploads do not require an album
	if cmd.AlbumId != "" && !validate.IsValidUuid(cmd.AlbumId) {
		return fmt.Errorf("invalid album id: %s", cmd.AlbumId)
	}

	// validate the title if present
	if cmd.Title != "" && !validate.MatchesRegex(strings.TrimSpace(cmd.Title), PhotoTitleRegex) {
		return fmt.Errorf("title must be alphanumeric and spaces, max %d chars", PhotoTitleMaxLength)
	}

	// validate the description if present
	if cmd.Description != "" && !validate.MatchesRegex(strings.TrimSpace(cmd.Description), PhotoDescriptionRegex) {
		return fmt.Errorf("description must be alphanumeric, spaces, and punctuation, max %d chars", PhotoDescriptionMaxLength)
	}

	// validate tags if present
	for _, tag := range cmd.Tags {
		if !validate.MatchesRegex(tag, PhotoTagRegex) {
			return fmt.Errorf("tag '%s' must be lowercase alphanumeric kebab-case, max 32 chars", tag)
		}
	}

	// validate the uploader id if present
	if cmd.UploadedBy != "" && !validate.IsValidUuid(cmd.UploadedBy) {
		return fmt.Errorf("invalid uploader id: %s", cmd.UploadedBy)
	}

	return nil
}

// UploadResult is a model which represents the uniform outcome of one pipeline
// invocation. A skipped duplicate is reported distinctly from a failure so
// bulk-import callers can report "n uploaded, n skipped, n failed".
type UploadResult struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"` // populated on skip
	Error   string `json:"error,omitempty"`  // populated on failure

	Photo        *Photo            `json:"photo,omitempty"`
	Thumbnails   map[string]string `json:"thumbnails,omitempty"`    // size name -> serving url
	ThumbnailUrl string            `json:"thumbnail_url,omitempty"` // legacy single-thumbnail fallback
	BlurDataUrl  string            `json:"blur_data_url,omitempty"`
	Metadata     *MetadataBlock    `json:"metadata,omitempty"`
}

// ImportFailure is a model which represents one failed file in a folder import.
type ImportFailure struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// ImportSkip is a model which represents one skipped (duplicate) file in a
// folder import.
type ImportSkip struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// ImportReport is a model which aggregates the outcomes of a bulk folder
// import. A single file's failure never aborts the batch.
type ImportReport struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`

	Successes    []string        `json:"successes,omitempty"` // file names uploaded
	SkippedItems []ImportSkip    `json:"skipped_items,omitempty"`
	Failures     []ImportFailure `json:"failures,omitempty"`
}

// ImportCmd is a model which represents the command to import a local folder
// of image files through the pipeline.
type ImportCmd struct {
	Csrf string `json:"csrf,omitempty"`

	Path       string   `json:"path"`
	AlbumId    string   `json:"album_id,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Replace    bool     `json:"replace_if_exists,omitempty"`
	UploadedBy string   `json:"uploaded_by,omitempty"`
}

// Validate validates the ImportCmd -> input validation.
func (cmd *ImportCmd) Validate() error {

	if cmd.Csrf != "" && !validate.IsValidUuid(cmd.Csrf) {
		return fmt.Errorf("invalid CSRF token")
	}

	if strings.TrimSpace(cmd.Path) == "" {
		return fmt.Errorf("path is required")
	}

	if cmd.AlbumId != "" && !validate.IsValidUuid(cmd.AlbumId) {
		return fmt.Errorf("invalid album id: %s", cmd.AlbumId)
	}

	for _, tag := range cmd.Tags {
		if !validate.MatchesRegex(tag, PhotoTagRegex) {
			return fmt.Errorf("tag '%s' must be lowercase alphanumeric kebab-case, max 32 chars", tag)
		}
	}

	if cmd.UploadedBy != "" && !validate.IsValidUuid(cmd.UploadedBy) {
		return fmt.Errorf("invalid uploader id: %s", cmd.UploadedBy)
	}

	return nil
}
