// Package gallery wires the ingestion service together and runs it.
package gallery

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"os"

	"log/slog"
	"net/http"

	"github.com/tdeslauriers/carapace/pkg/config"
	"github.com/tdeslauriers/carapace/pkg/connect"
	"github.com/tdeslauriers/carapace/pkg/data"
	"github.com/tdeslauriers/carapace/pkg/diagnostics"
	"github.com/tdeslauriers/carapace/pkg/jwt"
	"github.com/tdeslauriers/carapace/pkg/sign"
	"github.com/tdeslauriers/halide/internal/album"
	"github.com/tdeslauriers/halide/internal/dedup"
	"github.com/tdeslauriers/halide/internal/derivative"
	"github.com/tdeslauriers/halide/internal/patron"
	"github.com/tdeslauriers/halide/internal/photo"
	"github.com/tdeslauriers/halide/internal/picture"
	"github.com/tdeslauriers/halide/internal/pipeline"
	"github.com/tdeslauriers/halide/internal/site"
	"github.com/tdeslauriers/halide/internal/storage"
	"github.com/tdeslauriers/halide/internal/util"
)

// environment variables for the optional storage back-ends
const (
	EnvLocalStorageRoot  = "HALIDE_LOCAL_STORAGE_ROOT"
	EnvDriveCredentials  = "HALIDE_DRIVE_CREDENTIALS_FILE"
	EnvDriveRootFolderId = "HALIDE_DRIVE_ROOT_FOLDER_ID"
)

// Gallery is the interface for the engine that runs this service.
type Gallery interface {

	// Run runs the gallery ingestion service
	Run() error

	// CloseDb closes the database connection
	CloseDb() error
}

// New creates a new Gallery service instance, returning a pointer to the concrete implementation.
func New(config *config.Config) (Gallery, error) {

	// server
	serverPki := &connect.Pki{
		CertFile: *config.Certs.ServerCert,
		KeyFile:  *config.Certs.ServerKey,
		CaFiles:  []string{*config.Certs.ServerCa},
	}

	serverTlsConfig, err := connect.NewTlsServerConfig(config.Tls, serverPki).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to configure %s ingestion service server tls: %v", config.ServiceName, err)
	}

	// db client
	dbClientPki := &connect.Pki{
		CertFile: *config.Certs.DbClientCert,
		KeyFile:  *config.Certs.DbClientKey,
		CaFiles:  []string{*config.Certs.DbCaCert},
	}

	dbClientConfig, err := connect.NewTlsClientConfig(dbClientPki).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to configure database client tls: %v", err)
	}

	// db config
	dbUrl := data.DbUrl{
		Name:     config.Database.Name,
		Addr:     config.Database.Url,
		Username: config.Database.Username,
		Password: config.Database.Password,
	}

	db, err := data.NewSqlDbConnector(dbUrl, dbClientConfig).Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	repository := data.NewSqlRepository(db)

	// indexer
	hmacSecret, err := base64.StdEncoding.DecodeString(config.Database.IndexSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hmac secret: %v", err)
	}

	indexer := data.NewIndexer(hmacSecret)

	// field level encryption
	aes, err := base64.StdEncoding.DecodeString(config.Database.FieldSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode field level encryption secret: %v", err)
	}

	cryptor := data.NewServiceAesGcmKey(aes)

	// s2s jwt verifing key
	s2sPublicKey, err := sign.ParsePublicEcdsaCert(config.Jwt.S2sVerifyingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s2s jwt verifying key: %v", err)
	}

	// jwt iamVerifier
	iamPublicKey, err := sign.ParsePublicEcdsaCert(config.Jwt.UserVerifyingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse iam verifying public key: %v", err)
	}

	// storage providers: the object store is always present and is the
	// default; local and drive back-ends attach when configured
	registry, err := buildProviderRegistry(config)
	if err != nil {
		return nil, err
	}

	// site settings loaded from the site_config table
	sites := site.NewService(func() (*site.Settings, error) {
		var prefix string
		qry := `SELECT config_value FROM site_config WHERE config_key = 'serve_prefix';`
		if err := repository.SelectRecord(qry, &prefix); err != nil {
			return nil, fmt.Errorf("failed to load serve prefix: %v", err)
		}
		return &site.Settings{ServePrefix: prefix}, nil
	})

	store := photo.NewStore(repository, indexer, cryptor)

	return &gallery{
		config:      *config,
		serverTls:   serverTlsConfig,
		repository:  repository,
		indexer:     indexer,
		cryptor:     cryptor,
		s2sVerifier: jwt.NewVerifier(config.ServiceName, s2sPublicKey),
		iamVerifier: jwt.NewVerifier(config.ServiceName, iamPublicKey),
		pipeline: pipeline.NewService(
			store,
			album.NewService(repository, cryptor),
			patron.NewService(repository, indexer),
			dedup.NewDetector(store),
			derivative.NewGenerator(),
			registry,
			sites,
		),

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageGallery)).
			With(slog.String(util.ComponentKey, util.ComponentGallery)),
	}, nil
}

// buildProviderRegistry creates the configured storage providers. The
// s3-compatible object store from the service config is the default; the
// local filesystem and remote drive back-ends attach when their environment
// variables are set.
func buildProviderRegistry(config *config.Config) (storage.Registry, error) {

	def, err := storage.NewMinioProvider(storage.MinioConfig{
		Endpoint:  config.ObjectStorage.Url,
		AccessKey: config.ObjectStorage.AccessKey,
		SecretKey: config.ObjectStorage.SecretKey,
		Bucket:    config.ObjectStorage.Bucket,
		UseSsl:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage provider: %v", err)
	}

	var others []storage.Provider

	if root := os.Getenv(EnvLocalStorageRoot); root != "" {
		local, err := storage.NewLocalProvider(root)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage provider: %v", err)
		}
		others = append(others, local)
	}

	if credsFile := os.Getenv(EnvDriveCredentials); credsFile != "" {
		creds, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read drive credentials file '%s': %v", credsFile, err)
		}
		drive, err := storage.NewDriveProvider(context.Background(), creds, os.Getenv(EnvDriveRootFolderId))
		if err != nil {
			return nil, fmt.Errorf("failed to create drive storage provider: %v", err)
		}
		others = append(others, drive)
	}

	return storage.NewRegistry(def, others...), nil
}

var _ Gallery = (*gallery)(nil)

// gallery is the concrete implementation of the Gallery interface.
type gallery struct {
	config      config.Config
	serverTls   *tls.Config
	repository  data.SqlRepository
	indexer     data.Indexer
	cryptor     data.Cryptor
	s2sVerifier jwt.Verifier
	iamVerifier jwt.Verifier
	pipeline    pipeline.Service

	logger *slog.Logger
}

// CloseDb closes the database connection.
func (g *gallery) CloseDb() error {
	if err := g.repository.Close(); err != nil {
		g.logger.Error(fmt.Sprintf("failed to close %s gallery database connection: %v", util.ServiceGallery, err))
	}
	return nil
}

// Run runs the gallery ingestion service.
func (g *gallery) Run() error {

	// register handlers
	mux := http.NewServeMux()
	mux.HandleFunc("/health", diagnostics.HealthCheckHandler)

	// ingestion handlers
	uploads := picture.NewUploadHandler(g.pipeline, g.s2sVerifier, g.iamVerifier)
	mux.HandleFunc("/photos/upload", uploads.HandleUpload)
	mux.HandleFunc("/photos/import", uploads.HandleImport)

	galleryServer := &connect.TlsServer{
		Addr:      g.config.ServicePort,
		Mux:       mux,
		TlsConfig: g.serverTls,
	}

	go func() {

		g.logger.Info(fmt.Sprintf("starting %s ingestion service on port %s", g.config.ServiceName, galleryServer.Addr[1:]))
		if err := galleryServer.Initialize(); err != http.ErrServerClosed {
			g.logger.Error(fmt.Sprintf("failed to start %s ingestion service: %v", g.config.ServiceName, err))
		}
	}()

	return nil
}
