// Package validation checks bucket names and object keys before they are
// sent to the storage endpoint.
package validation

import (
	"path"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-release/aws/s3/errors"
)

const maxKeyLength = 1024

// ValidateBucketName checks bucket naming rules shared by AWS and common
// S3-compatible stores. Underscores are accepted because several hosted
// storage APIs allow them.
func ValidateBucketName(bucket string) error {
	fail := func(msg string) error {
		return errors.NewError("validateBucketName", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage(msg)
	}

	if bucket == "" {
		return fail("bucket name cannot be empty")
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return fail("bucket name must be between 3 and 63 characters long")
	}
	for _, r := range bucket {
		if !isBucketChar(r) {
			return fail("bucket name can only contain lowercase letters, numbers, dots, hyphens, and underscores")
		}
	}
	first, last := rune(bucket[0]), rune(bucket[len(bucket)-1])
	if !isAlnum(first) || !isAlnum(last) {
		return fail("bucket name must start and end with a letter or number")
	}
	if strings.Contains(bucket, "..") {
		return fail("bucket name cannot contain adjacent dots")
	}
	return nil
}

// ValidateObjectKey rejects empty, oversized, traversing or control
// character keys.
func ValidateObjectKey(key string) error {
	fail := func(msg string) error {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(msg)
	}

	switch {
	case key == "":
		return fail("object key cannot be empty")
	case len(key) > maxKeyLength:
		return fail("object key cannot exceed 1024 characters")
	case hasPathTraversal(key):
		return fail("object key cannot contain path traversal sequences")
	case hasControlCharacters(key):
		return fail("object key cannot contain control characters")
	}
	return nil
}

func isBucketChar(r rune) bool {
	return isAlnum(r) || r == '.' || r == '-' || r == '_'
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func hasPathTraversal(key string) bool {
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return true
	}
	if len(key) >= 3 && key[1] == ':' && (key[2] == '\\' || key[2] == '/') {
		return true
	}
	for _, segment := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return true
		}
	}
	return strings.HasPrefix(path.Clean(key), "..")
}

func hasControlCharacters(key string) bool {
	for _, r := range key {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
