// Package archive keeps a copy of delivered payloads in S3-compatible
// object storage. When no bucket is configured the NoopArchiver is used and
// nothing is stored; archiving is strictly best-effort and never affects
// the outcome of a sync.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tablecast/tablecast/internal/config"
)

// Archiver stores one delivered payload per delivery ID.
type Archiver interface {
	Store(ctx context.Context, docID, deliveryID string, payload []byte) error
}

// s3Client defines the minimal minio.Client surface used by S3Archiver,
// so tests can substitute a mock.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, payload []byte) error
}

type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, payload []byte) error {
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	_, err := w.client.PutObject(ctx, bucket, objectName, bytes.NewReader(payload), int64(len(payload)), opts)
	return err
}

// S3Archiver writes payloads to S3-compatible storage.
type S3Archiver struct {
	client s3Client
	bucket string
}

// Store uploads the payload under the document's key prefix.
func (a *S3Archiver) Store(ctx context.Context, docID, deliveryID string, payload []byte) error {
	if err := a.client.PutObject(ctx, a.bucket, objectKey(docID, deliveryID), payload); err != nil {
		return fmt.Errorf("archive payload: %w", err)
	}
	return nil
}

// NoopArchiver is used when object storage is not configured.
type NoopArchiver struct{}

// Store is a no-op.
func (a *NoopArchiver) Store(ctx context.Context, docID, deliveryID string, payload []byte) error {
	return nil
}

// NewArchiver creates the appropriate Archiver based on configuration.
// Returns NoopArchiver when bucket is empty, S3Archiver otherwise.
func NewArchiver(cfg config.ArchiveConfig) (Archiver, error) {
	if cfg.Bucket == "" {
		return &NoopArchiver{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Archiver{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// objectKey returns the object key for one delivered payload.
// Convention: {doc_id}/{date}/{delivery_id}.json
func objectKey(docID, deliveryID string) string {
	return fmt.Sprintf("%s/%s/%s.json", docID, time.Now().UTC().Format("2006-01-02"), deliveryID)
}
