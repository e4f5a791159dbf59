// Package patron resolves the uploader identity attached to ingested photos.
package patron

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/carapace/pkg/validate"
	"github.com/tdeslauriers/halide/internal/util"
)

// ZeroIdentity is the sentinel uploader id persisted when no caller identity
// is supplied and the system identity lookup itself fails.
const ZeroIdentity = "00000000-0000-0000-0000-000000000000"

// Service is the interface for resolving the uploader identity of an ingested
// photo.
type Service interface {

	// ResolveUploader returns the caller-supplied user id when present,
	// the system patron's id when absent, and the zero-identity sentinel
	// when the system lookup fails. It never returns an error: identity
	// resolution must not block an upload.
	ResolveUploader(ctx context.Context, userId string) string
}

// NewService creates a new patron service instance, returning a pointer to
// the concrete implementation.
func NewService(sql data.SqlRepository, i data.Indexer) Service {
	return &patronService{
		sql:     sql,
		indexer: i,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackagePatron)).
			With(slog.String(util.ComponentKey, util.ComponentPatronService)),
	}
}

var _ Service = (*patronService)(nil)

// patronService is the concrete implementation of the Service interface.
type patronService struct {
	sql     data.SqlRepository
	indexer data.Indexer

	logger *slog.Logger
}

// ResolveUploader is the concrete implementation of the interface method
// which resolves the uploader identity for an ingested photo.
func (s *patronService) ResolveUploader(ctx context.Context, userId string) string {

	if userId != "" && validate.IsValidUuid(userId) {
		return userId
	}

	if err := ctx.Err(); err != nil {
		return ZeroIdentity
	}

	// fall back to the system patron
	index, err := s.indexer.ObtainBlindIndex(util.SystemUsername)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("failed to obtain blind index for system patron, using zero identity: %v", err))
		return ZeroIdentity
	}

	qry := `SELECT uuid FROM patron WHERE username_index = ?;`
	var id string
	if err := s.sql.SelectRecord(qry, &id, index); err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("system patron record not found, using zero identity")
		} else {
			s.logger.Warn(fmt.Sprintf("failed to query system patron, using zero identity: %v", err))
		}
		return ZeroIdentity
	}

	return id
}
