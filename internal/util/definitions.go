package util

const (
	// DefaultServePrefix is the path prefix the web tier serves stored
	// files from: /{serve-prefix}/{provider}/{url-encoded object path}.
	DefaultServePrefix = "files"

	// SystemUsername is the fallback uploader identity used when a caller
	// does not supply a user id, eg, the bulk folder importer.
	SystemUsername = "system@halide"
)
