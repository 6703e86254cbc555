package backup

import (
	"context"
	"fmt"
)

// Storage provider identifiers.
const (
	StorageProviderLocal = "local"
	StorageProviderS3    = "s3"
	StorageProviderB2    = "b2"
	StorageProviderGCS   = "gcs"
	StorageProviderAzure = "azure"
)

// StorageSettings identify where and with which credentials artifacts are
// uploaded. A target carries its own settings; empty fields fall back to the
// process-wide defaults via Merged.
type StorageSettings struct {
	// Provider is one of local, s3, b2, gcs, azure.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	// KeyID is the access key id (S3/B2) or account name (Azure).
	KeyID string `json:"key_id,omitempty" yaml:"key_id,omitempty"`

	// AppKey is the secret counterpart of KeyID. Never serialized.
	AppKey string `json:"-" yaml:"-"`

	// Bucket is the bucket (S3/B2/GCS) or container (Azure) name.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// CredentialsFile is the GCS service-account key path.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	// BasePath is the destination directory for the local provider.
	BasePath string `json:"base_path,omitempty" yaml:"base_path,omitempty"`
}

// Merged returns s with every empty field filled in from defaults.
func (s StorageSettings) Merged(defaults StorageSettings) StorageSettings {
	out := s
	if out.Provider == "" {
		out.Provider = defaults.Provider
	}
	if out.KeyID == "" {
		out.KeyID = defaults.KeyID
	}
	if out.AppKey == "" {
		out.AppKey = defaults.AppKey
	}
	if out.Bucket == "" {
		out.Bucket = defaults.Bucket
	}
	if out.Region == "" {
		out.Region = defaults.Region
	}
	if out.Endpoint == "" {
		out.Endpoint = defaults.Endpoint
	}
	if out.CredentialsFile == "" {
		out.CredentialsFile = defaults.CredentialsFile
	}
	if out.BasePath == "" {
		out.BasePath = defaults.BasePath
	}
	return out
}

// Validate checks that the settings are complete for the chosen provider.
func (s StorageSettings) Validate() error {
	switch s.Provider {
	case StorageProviderLocal:
		if s.BasePath == "" {
			return NewValidationError("local storage requires a base path", nil)
		}
	case StorageProviderS3, StorageProviderB2:
		if s.Bucket == "" {
			return NewValidationError("bucket name is required", nil)
		}
		if s.KeyID == "" || s.AppKey == "" {
			return NewValidationError("access key id and application key are required", nil)
		}
		if s.Provider == StorageProviderB2 && s.Region == "" && s.Endpoint == "" {
			return NewValidationError("b2 storage requires a region or an explicit endpoint", nil)
		}
	case StorageProviderGCS:
		if s.Bucket == "" {
			return NewValidationError("bucket name is required", nil)
		}
	case StorageProviderAzure:
		if s.Bucket == "" {
			return NewValidationError("container name is required", nil)
		}
		if s.KeyID == "" || s.AppKey == "" {
			return NewValidationError("account name and account key are required", nil)
		}
	case "":
		return NewValidationError("storage provider is not configured", nil)
	default:
		return NewValidationError(fmt.Sprintf("unsupported storage provider: %s", s.Provider), nil)
	}
	return nil
}

// NewStorageProvider creates the uploader for the given settings.
func NewStorageProvider(ctx context.Context, settings StorageSettings) (StorageProvider, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	switch settings.Provider {
	case StorageProviderLocal:
		return NewLocalStorageProvider(settings)
	case StorageProviderS3, StorageProviderB2:
		return NewS3StorageProvider(settings)
	case StorageProviderGCS:
		return NewGCSStorageProvider(ctx, settings)
	case StorageProviderAzure:
		return NewAzureStorageProvider(settings)
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported storage provider: %s", settings.Provider), nil)
	}
}

// SupportedStorageProviders lists the selectable provider identifiers.
func SupportedStorageProviders() []string {
	return []string{
		StorageProviderLocal,
		StorageProviderS3,
		StorageProviderB2,
		StorageProviderGCS,
		StorageProviderAzure,
	}
}
