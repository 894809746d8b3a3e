// Package errors provides error types for S3 operations.
package errors

import (
	"errors"
	"fmt"
)

// Error is an S3 operation failure with the bucket and key involved.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("s3.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("s3.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("s3.%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage prefixes the underlying error with message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates an Error for op.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

var (
	// ErrObjectNotFound indicates the object does not exist.
	ErrObjectNotFound = errors.New("s3: object not found")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("s3: bucket not found")

	// ErrAccessDenied indicates the credentials lack permission.
	ErrAccessDenied = errors.New("s3: access denied")

	// ErrInvalidInput indicates a caller error.
	ErrInvalidInput = errors.New("s3: invalid input")

	// ErrInvalidObjectKey indicates the key violates S3 naming rules.
	ErrInvalidObjectKey = errors.New("s3: invalid object key")

	// ErrInvalidCredentials indicates the access key pair was rejected.
	ErrInvalidCredentials = errors.New("s3: invalid credentials")
)

// IsObjectNotFound reports whether err means the object is missing.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsAccessDenied reports whether err means access was denied.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrInvalidCredentials)
}
