package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorageProvider copies artifacts into a directory on the host. Useful
// for on-host secondary copies and as the storage backend in tests.
type LocalStorageProvider struct {
	basePath string
}

// NewLocalStorageProvider creates an uploader rooted at the configured base
// path, creating it if necessary.
func NewLocalStorageProvider(settings StorageSettings) (*LocalStorageProvider, error) {
	if err := os.MkdirAll(settings.BasePath, 0750); err != nil {
		return nil, NewStorageError("failed to create local storage directory", err)
	}
	return &LocalStorageProvider{basePath: settings.BasePath}, nil
}

// Upload copies the local artifact to <basePath>/<remoteName>.
func (p *LocalStorageProvider) Upload(ctx context.Context, localPath, remoteName string) (*RemoteDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStorageError("upload canceled", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, NewStorageError("failed to open artifact for upload", err)
	}
	defer src.Close()

	destPath := filepath.Join(p.basePath, remoteName)
	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return nil, NewStorageError("failed to create destination file", err)
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		_ = os.Remove(destPath)
		return nil, NewStorageError(fmt.Sprintf("failed to copy artifact to %s", destPath), err)
	}
	if err := dest.Close(); err != nil {
		return nil, NewStorageError("failed to finalize destination file", err)
	}

	return &RemoteDescriptor{
		Provider: StorageProviderLocal,
		Bucket:   p.basePath,
		Key:      remoteName,
		URL:      "file://" + destPath,
	}, nil
}
