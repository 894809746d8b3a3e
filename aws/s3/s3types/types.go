// Package s3types provides shared type definitions for the S3 module.
package s3types

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
)

// ProgressTracker receives transfer progress notifications.
type ProgressTracker interface {
	// Update is called with the cumulative bytes transferred.
	Update(bytesTransferred, totalBytes int64)
	// Complete is called once the transfer finished successfully.
	Complete()
	// Error is called when the transfer failed.
	Error(err error)
}

// Credentials holds a static access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ClientConfig holds configuration applied through Option values.
type ClientConfig struct {
	Region         string
	Endpoint       string
	Credentials    *Credentials
	ForcePathStyle bool
	MaxRetries     int
	Timeout        time.Duration

	// PartSize is the multipart chunk size.
	PartSize int64
	// MultipartThreshold is the size at or above which uploads are split.
	MultipartThreshold int64

	Filesystem      billy.Filesystem
	CustomAWSConfig *aws.Config
}

// UploadOptionConfig holds per-upload configuration.
type UploadOptionConfig struct {
	ContentType     string
	CacheControl    string
	Metadata        map[string]string
	ProgressTracker ProgressTracker
	PartSize        int64
}

// UploadResult describes a finished upload.
type UploadResult struct {
	Bucket      string
	Key         string
	Size        int64
	ETag        string
	ContentType string
	Multipart   bool
	Parts       int
	Duration    time.Duration
}

type (
	// Option configures the S3 client.
	Option func(*ClientConfig)
	// UploadOption configures a single upload.
	UploadOption func(*UploadOptionConfig)
)
