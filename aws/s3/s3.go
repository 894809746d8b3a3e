package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	s3errors "github.com/input-output-hk/catalyst-forge-release/aws/s3/errors"
	"github.com/input-output-hk/catalyst-forge-release/aws/s3/internal/validation"
	"github.com/input-output-hk/catalyst-forge-release/aws/s3/s3types"
)

// DefaultContentType is used when no better type can be determined.
const DefaultContentType = "application/octet-stream"

// releaseContentTypes pins the types download clients expect for release
// artifacts, which content sniffing would otherwise report differently.
var releaseContentTypes = map[string]string{
	".zip":      "application/zip",
	".exe":      "application/x-msdownload",
	".msi":      "application/x-msdownload",
	".apk":      "application/vnd.android.package-archive",
	".aab":      "application/octet-stream",
	".ipa":      "application/octet-stream",
	".dmg":      "application/x-apple-diskimage",
	".appimage": "application/octet-stream",
}

// UploadFile uploads the local file at path to bucket/key. Files at or above
// the multipart threshold are sent in sequential parts.
func (c *Client) UploadFile(
	ctx context.Context,
	bucket, key, path string,
	opts ...s3types.UploadOption,
) (*s3types.UploadResult, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, s3errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, s3errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}
	if path == "" {
		return nil, s3errors.NewError("uploadFile", s3errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("file path cannot be empty")
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, s3errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}
	if info.IsDir() {
		return nil, s3errors.NewError("uploadFile", s3errors.ErrInvalidInput).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("file path points to a directory")
	}

	cfg := &s3types.UploadOptionConfig{
		Metadata: make(map[string]string),
		PartSize: c.partSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ContentType == "" {
		cfg.ContentType = c.detectContentType(path)
	}

	file, err := c.fs.Open(path)
	if err != nil {
		return nil, s3errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}
	defer file.Close()

	start := time.Now()
	size := info.Size()

	var result *s3types.UploadResult
	if size >= c.threshold {
		result, err = c.uploadMultipart(ctx, bucket, key, file, size, cfg)
	} else {
		result, err = c.uploadSingle(ctx, bucket, key, file, size, cfg)
	}
	if err != nil {
		if cfg.ProgressTracker != nil {
			cfg.ProgressTracker.Error(err)
		}
		return nil, s3errors.NewError("uploadFile", err).WithBucket(bucket).WithKey(key)
	}

	if cfg.ProgressTracker != nil {
		cfg.ProgressTracker.Complete()
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (c *Client) uploadSingle(
	ctx context.Context,
	bucket, key string,
	body io.ReadSeeker,
	size int64,
	cfg *s3types.UploadOptionConfig,
) (*s3types.UploadResult, error) {
	// The file is streamed as the body. Being seekable lets the SDK rewind
	// it for checksums and retries.
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(cfg.ContentType),
		ContentLength: aws.Int64(size),
	}
	if cfg.CacheControl != "" {
		input.CacheControl = aws.String(cfg.CacheControl)
	}
	if len(cfg.Metadata) > 0 {
		input.Metadata = cfg.Metadata
	}

	if cfg.ProgressTracker != nil {
		cfg.ProgressTracker.Update(0, size)
	}

	out, err := c.api.PutObject(ctx, input)
	if err != nil {
		return nil, convertAWSError(err)
	}

	if cfg.ProgressTracker != nil {
		cfg.ProgressTracker.Update(size, size)
	}

	return &s3types.UploadResult{
		Bucket:      bucket,
		Key:         key,
		Size:        size,
		ETag:        aws.ToString(out.ETag),
		ContentType: cfg.ContentType,
		Parts:       1,
	}, nil
}

// Exists reports whether bucket/key exists.
func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return false, s3errors.NewError("exists", err).WithBucket(bucket).WithKey(key)
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return false, s3errors.NewError("exists", err).WithBucket(bucket).WithKey(key)
	}

	_, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		converted := convertAWSError(err)
		if s3errors.IsObjectNotFound(converted) {
			return false, nil
		}
		return false, s3errors.NewError("exists", converted).WithBucket(bucket).WithKey(key)
	}
	return true, nil
}

// Delete removes bucket/key. Deleting a missing object is not an error.
func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return s3errors.NewError("delete", err).WithBucket(bucket).WithKey(key)
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return s3errors.NewError("delete", err).WithBucket(bucket).WithKey(key)
	}

	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		converted := convertAWSError(err)
		if s3errors.IsObjectNotFound(converted) {
			return nil
		}
		return s3errors.NewError("delete", converted).WithBucket(bucket).WithKey(key)
	}
	return nil
}

// PublicURL joins a public download base URL and an object key, escaping
// each key segment.
func PublicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// detectContentType resolves a content type from the release extension
// table, then content sniffing, then the system MIME table.
func (c *Client) detectContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := releaseContentTypes[ext]; ok {
		return ct
	}

	if file, err := c.fs.Open(path); err == nil {
		defer file.Close()

		buf := make([]byte, 3072)
		n, _ := io.ReadFull(file, buf)
		if n > 0 {
			if mt := mimetype.Detect(buf[:n]); mt != nil && mt.String() != DefaultContentType {
				return mt.String()
			}
		}
	}

	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}

// convertAWSError maps smithy API error codes onto package sentinels while
// keeping the original error in the chain.
func convertAWSError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	var sentinel error
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		sentinel = s3errors.ErrObjectNotFound
	case "NoSuchBucket":
		sentinel = s3errors.ErrBucketNotFound
	case "AccessDenied", "Forbidden", "AllAccessDisabled":
		sentinel = s3errors.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidToken", "ExpiredToken":
		sentinel = s3errors.ErrInvalidCredentials
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
