package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdeslauriers/halide/pkg/api"
)

// ImportFolder is the concrete implementation of the interface method which
// ingests every supported image file in a local directory. Files are
// processed one at a time in directory order; a single file's failure is
// recorded and the batch continues.
func (p *pipeline) ImportFolder(ctx context.Context, cmd *api.ImportCmd) (*api.ImportReport, error) {

	if cmd == nil {
		return nil, fmt.Errorf("import command is nil")
	}

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid import command: %v", err)
	}

	info, err := os.Stat(cmd.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import path '%s': %v", cmd.Path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("import path '%s' is not a directory", cmd.Path)
	}

	entries, err := os.ReadDir(cmd.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to list import path '%s': %v", cmd.Path, err)
	}

	report := &api.ImportReport{}

	for _, entry := range entries {

		// cancellation stops the batch without discarding what completed
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("import of '%s' cancelled after %d of %d files: %v",
				cmd.Path, report.Total, len(entries), err)
		}

		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !api.IsValidExtension(ext) {
			continue
		}

		report.Total++

		raw, err := os.ReadFile(filepath.Join(cmd.Path, entry.Name()))
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, api.ImportFailure{
				FileName: entry.Name(),
				Error:    fmt.Sprintf("failed to read file: %v", err),
			})
			continue
		}

		upload := &api.UploadCmd{
			OriginalFileName: entry.Name(),
			MimeType:         mimeFromExtension(ext),
			AlbumId:          cmd.AlbumId,
			Tags:             cmd.Tags,
			Replace:          cmd.Replace,
			UploadedBy:       cmd.UploadedBy,
		}

		result := p.Upload(ctx, upload, raw)
		switch {
		case result.Success:
			report.Successful++
			report.Successes = append(report.Successes, entry.Name())
		case result.Skipped:
			report.Skipped++
			report.SkippedItems = append(report.SkippedItems, api.ImportSkip{
				FileName: entry.Name(),
				Reason:   result.Reason,
			})
		default:
			report.Failed++
			report.Failures = append(report.Failures, api.ImportFailure{
				FileName: entry.Name(),
				Error:    result.Error,
			})
		}
	}

	p.logger.Info(fmt.Sprintf("imported folder '%s': %d uploaded, %d skipped, %d failed",
		cmd.Path, report.Successful, report.Skipped, report.Failed))

	return report, nil
}

// mimeFromExtension maps a supported file extension to its MIME type.
func mimeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
