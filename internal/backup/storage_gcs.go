package backup

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorageProvider uploads artifacts to Google Cloud Storage.
type GCSStorageProvider struct {
	client *storage.Client
	bucket string
}

// NewGCSStorageProvider creates an uploader from validated settings. Without
// an explicit credentials file the client falls back to application default
// credentials (environment or metadata server).
func NewGCSStorageProvider(ctx context.Context, settings StorageSettings) (*GCSStorageProvider, error) {
	var client *storage.Client
	var err error

	if settings.CredentialsFile != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(settings.CredentialsFile))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSStorageProvider{
		client: client,
		bucket: settings.Bucket,
	}, nil
}

// Upload streams the local artifact into the bucket under remoteName.
func (p *GCSStorageProvider) Upload(ctx context.Context, localPath, remoteName string) (*RemoteDescriptor, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, NewStorageError("failed to open artifact for upload", err)
	}
	defer file.Close()

	writer := p.client.Bucket(p.bucket).Object(remoteName).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"

	if _, err := io.Copy(writer, file); err != nil {
		_ = writer.Close()
		return nil, NewStorageError(fmt.Sprintf("failed to upload %s to bucket %s", remoteName, p.bucket), err)
	}
	if err := writer.Close(); err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to finalize upload of %s", remoteName), err)
	}

	return &RemoteDescriptor{
		Provider: StorageProviderGCS,
		Bucket:   p.bucket,
		Key:      remoteName,
		URL:      fmt.Sprintf("gs://%s/%s", p.bucket, remoteName),
	}, nil
}

// Close releases the underlying client.
func (p *GCSStorageProvider) Close() error {
	return p.client.Close()
}
