package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-release/aws/s3/s3types"
)

// maxParts is the S3 limit on parts per upload.
const maxParts = 10000

// uploadMultipart streams r in sequential parts. A failed upload is aborted
// so the store does not retain orphaned parts.
func (c *Client) uploadMultipart(
	ctx context.Context,
	bucket, key string,
	r io.Reader,
	size int64,
	cfg *s3types.UploadOptionConfig,
) (*s3types.UploadResult, error) {
	partSize := max(cfg.PartSize, MinPartSize)
	// Grow the part size when the file would exceed the part limit.
	if size/partSize >= maxParts {
		partSize = size/(maxParts-1) + 1
	}

	create := &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(cfg.ContentType),
	}
	if cfg.CacheControl != "" {
		create.CacheControl = aws.String(cfg.CacheControl)
	}
	if len(cfg.Metadata) > 0 {
		create.Metadata = cfg.Metadata
	}

	created, err := c.api.CreateMultipartUpload(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("creating multipart upload: %w", convertAWSError(err))
	}
	uploadID := created.UploadId

	abort := func(cause error) error {
		_, abortErr := c.api.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if abortErr != nil {
			return errors.Join(cause, fmt.Errorf("aborting multipart upload: %w", abortErr))
		}
		return cause
	}

	var (
		completed   []types.CompletedPart
		transferred int64
		buf         = make([]byte, partSize)
	)

	if cfg.ProgressTracker != nil {
		cfg.ProgressTracker.Update(0, size)
	}

	for partNumber := int32(1); ; partNumber++ {
		n, readErr := io.ReadFull(r, buf)
		if n == 0 {
			if readErr == nil || errors.Is(readErr, io.EOF) {
				break
			}
			return nil, abort(fmt.Errorf("reading part %d: %w", partNumber, readErr))
		}
		if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
			return nil, abort(fmt.Errorf("reading part %d: %w", partNumber, readErr))
		}

		out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return nil, abort(fmt.Errorf("uploading part %d: %w", partNumber, convertAWSError(err)))
		}

		completed = append(completed, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		transferred += int64(n)
		if cfg.ProgressTracker != nil {
			cfg.ProgressTracker.Update(transferred, size)
		}

		if readErr != nil {
			break
		}
	}

	done, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, abort(fmt.Errorf("completing multipart upload: %w", convertAWSError(err)))
	}

	return &s3types.UploadResult{
		Bucket:      bucket,
		Key:         key,
		Size:        transferred,
		ETag:        aws.ToString(done.ETag),
		ContentType: cfg.ContentType,
		Multipart:   true,
		Parts:       len(completed),
	}, nil
}
