package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3StorageProvider uploads artifacts to Amazon S3 or any S3-compatible
// endpoint. Backblaze B2 is served through its S3-compatible gateway, so the
// historical B2 credential triple (key id, application key, bucket) maps
// directly onto this provider.
type S3StorageProvider struct {
	client   *s3.S3
	bucket   string
	provider string
}

// NewS3StorageProvider creates an uploader from validated settings.
func NewS3StorageProvider(settings StorageSettings) (*S3StorageProvider, error) {
	awsCfg := &aws.Config{
		Credentials: credentials.NewStaticCredentials(settings.KeyID, settings.AppKey, ""),
	}
	if settings.Region != "" {
		awsCfg.Region = aws.String(settings.Region)
	}

	endpoint := settings.Endpoint
	if endpoint == "" && settings.Provider == StorageProviderB2 {
		endpoint = fmt.Sprintf("https://s3.%s.backblazeb2.com", settings.Region)
	}
	if endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		// Compatible gateways generally route on the path, not the host.
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3StorageProvider{
		client:   s3.New(sess),
		bucket:   settings.Bucket,
		provider: settings.Provider,
	}, nil
}

// Upload puts the local artifact into the bucket under remoteName. A single
// attempt is made; transport and auth failures propagate to the caller.
func (p *S3StorageProvider) Upload(ctx context.Context, localPath, remoteName string) (*RemoteDescriptor, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, NewStorageError("failed to open artifact for upload", err)
	}
	defer file.Close()

	_, err = p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(remoteName),
		Body:        file,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to upload %s to bucket %s", remoteName, p.bucket), err)
	}

	return &RemoteDescriptor{
		Provider: p.provider,
		Bucket:   p.bucket,
		Key:      remoteName,
	}, nil
}
