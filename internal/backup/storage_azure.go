package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureStorageProvider uploads artifacts to Azure Blob Storage.
type AzureStorageProvider struct {
	containerURL azblob.ContainerURL
	container    string
}

// NewAzureStorageProvider creates an uploader from validated settings. The
// account name rides in KeyID and the shared key in AppKey.
func NewAzureStorageProvider(settings StorageSettings) (*AzureStorageProvider, error) {
	credential, err := azblob.NewSharedKeyCredential(settings.KeyID, settings.AppKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", settings.KeyID))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStorageProvider{
		containerURL: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(settings.Bucket),
		container:    settings.Bucket,
	}, nil
}

// Upload copies the local artifact into the container under remoteName.
func (p *AzureStorageProvider) Upload(ctx context.Context, localPath, remoteName string) (*RemoteDescriptor, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, NewStorageError("failed to open artifact for upload", err)
	}
	defer file.Close()

	blobURL := p.containerURL.NewBlockBlobURL(remoteName)
	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: "application/octet-stream"},
	})
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to upload %s to container %s", remoteName, p.container), err)
	}

	return &RemoteDescriptor{
		Provider: StorageProviderAzure,
		Bucket:   p.container,
		Key:      remoteName,
	}, nil
}
