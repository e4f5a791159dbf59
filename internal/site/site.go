// Package site provides cached site-wide gallery settings such as the url
// prefix under which stored files are served.
package site

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tdeslauriers/halide/internal/util"
)

// RefreshInterval is how long loaded settings are served before the loader
// is consulted again.
const RefreshInterval = 5 * time.Minute

// Settings holds the site-wide values the ingestion pipeline needs.
type Settings struct {
	ServePrefix string
}

// Loader fetches the current settings from their source of record.
type Loader func() (*Settings, error)

// Service is the interface for reading cached site settings.
type Service interface {

	// ServePrefix returns the url path prefix under which stored files are
	// served, eg, "files".
	ServePrefix() string

	// FileUrl builds the public url for a stored file from its provider
	// name and provider-relative path.
	FileUrl(provider, path string) string
}

// NewService creates a new site settings service, returning a pointer to the
// concrete implementation. Settings are loaded lazily and refreshed after
// RefreshInterval elapses.
func NewService(load Loader) Service {
	return &siteService{
		load: load,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageSite)).
			With(slog.String(util.ComponentKey, util.ComponentSiteConfig)),
	}
}

var _ Service = (*siteService)(nil)

// siteService is the concrete implementation of the Service interface.
type siteService struct {
	load Loader

	mu            sync.Mutex
	current       *Settings
	lastRefreshed time.Time

	logger *slog.Logger
}

// ServePrefix is the concrete implementation of the interface method which
// returns the url path prefix for served files.
func (s *siteService) ServePrefix() string {
	return s.settings().ServePrefix
}

// FileUrl is the concrete implementation of the interface method which
// builds the public url for a stored file. Path segments are url-encoded
// individually so that separators survive encoding.
func (s *siteService) FileUrl(provider, path string) string {

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return fmt.Sprintf("/%s/%s/%s", s.settings().ServePrefix, provider, strings.Join(segments, "/"))
}

// settings returns the cached settings, refreshing them from the loader when
// stale. A failed refresh keeps serving the previous values; when nothing
// has ever loaded, defaults apply.
func (s *siteService) settings() *Settings {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && time.Since(s.lastRefreshed) < RefreshInterval {
		return s.current
	}

	loaded, err := s.load()
	if err != nil || loaded == nil || loaded.ServePrefix == "" {
		if err != nil {
			s.logger.Warn(fmt.Sprintf("failed to refresh site settings: %v", err))
		}
		if s.current == nil {
			s.current = &Settings{ServePrefix: util.DefaultServePrefix}
		}
		// retry on the next call rather than caching the fallback
		s.lastRefreshed = time.Time{}
		return s.current
	}

	s.current = loaded
	s.lastRefreshed = time.Now()
	return s.current
}
