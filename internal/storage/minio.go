package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tdeslauriers/halide/internal/util"
)

// minioApi is the subset of the minio client the provider uses, extracted so
// tests can substitute a fake.
type minioApi interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioConfig carries the connection settings for an s3-compatible object
// store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSsl    bool
}

// NewMinioProvider creates a storage provider over an s3-compatible object
// store, returning a pointer to the concrete implementation.
func NewMinioProvider(cfg MinioConfig) (Provider, error) {

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSsl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint '%s': %v", cfg.Endpoint, err)
	}

	return &minioProvider{
		client: client,
		bucket: cfg.Bucket,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceGallery)).
			With(slog.String(util.PackageKey, util.PackageStorage)).
			With(slog.String(util.ComponentKey, util.ComponentObjectStore)),
	}, nil
}

var _ Provider = (*minioProvider)(nil)

// minioProvider is the concrete implementation of the Provider interface over
// an s3-compatible object store. It is flat: folder paths are key prefixes
// and the folder operations are no-ops.
type minioProvider struct {
	client minioApi
	bucket string

	logger *slog.Logger
}

// Name is the concrete implementation of the interface method which returns
// the provider identifier.
func (p *minioProvider) Name() string {
	return ProviderMinio
}

// UploadFile is the concrete implementation of the interface method which
// puts the content under the folderPath/name key.
func (p *minioProvider) UploadFile(ctx context.Context, content []byte, name, mimeType, folderPath string, meta Metadata) (*StoredObject, error) {

	key := path.Join(folderPath, name)

	opts := minio.PutObjectOptions{
		ContentType:  mimeType,
		UserMetadata: meta,
	}

	if _, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(content), int64(len(content)), opts); err != nil {
		return nil, fmt.Errorf("failed to upload object '%s' to bucket '%s': %v", key, p.bucket, err)
	}

	return &StoredObject{
		Provider: ProviderMinio,
		Bucket:   p.bucket,
		Path:     key,
	}, nil
}

// DeleteFile is the concrete implementation of the interface method which
// removes the object at the given key. Removing a non-existent key is a no-op
// in s3 semantics, so idempotency comes for free.
func (p *minioProvider) DeleteFile(ctx context.Context, objPath string) error {

	if err := p.client.RemoveObject(ctx, p.bucket, objPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object '%s' from bucket '%s': %v", objPath, p.bucket, err)
	}

	return nil
}

// FolderExists is the concrete implementation of the interface method. Object
// stores have no folders; any prefix "exists".
func (p *minioProvider) FolderExists(ctx context.Context, folderPath string) (bool, error) {
	return true, nil
}

// CreateFolder is the concrete implementation of the interface method. Object
// stores have no folders to create.
func (p *minioProvider) CreateFolder(ctx context.Context, folderPath string) error {
	return nil
}
