package s3

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-release/aws/s3/s3types"
)

// WithRegion sets the signing region.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3-compatible endpoint URL. Path-style
// addressing is enabled automatically for custom endpoints.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
		if endpoint != "" {
			c.ForcePathStyle = true
		}
	}
}

// WithStaticCredentials uses a fixed access key pair instead of the default
// AWS credential chain.
func WithStaticCredentials(accessKeyID, secretAccessKey string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Credentials = &s3types.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}
	}
}

// WithForcePathStyle forces path-style URLs.
func WithForcePathStyle(forcePathStyle bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithMaxRetries sets the SDK retry attempts.
func WithMaxRetries(maxRetries int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithTimeout sets the HTTP client timeout for individual requests.
func WithTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Timeout = timeout
	}
}

// WithPartSize sets the multipart chunk size. Values below the S3 minimum of
// 5 MiB are raised to it.
func WithPartSize(partSize int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if partSize > 0 {
			c.PartSize = max(partSize, MinPartSize)
		}
	}
}

// WithMultipartThreshold sets the size at which uploads switch to multipart.
func WithMultipartThreshold(threshold int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if threshold > 0 {
			c.MultipartThreshold = threshold
		}
	}
}

// WithFilesystem sets the filesystem local files are read from.
func WithFilesystem(filesystem billy.Filesystem) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithAWSConfig supplies a prebuilt AWS configuration.
func WithAWSConfig(config *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithContentType overrides content type detection for an upload.
func WithContentType(contentType string) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		c.ContentType = contentType
	}
}

// WithCacheControl sets the Cache-Control header on the uploaded object.
func WithCacheControl(value string) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		c.CacheControl = value
	}
}

// WithMetadata adds user metadata to an upload.
func WithMetadata(metadata map[string]string) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// WithProgress sets a progress tracker for an upload.
func WithProgress(tracker s3types.ProgressTracker) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		c.ProgressTracker = tracker
	}
}
