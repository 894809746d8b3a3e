package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/aws/s3/errors"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr string
	}{
		{name: "release bucket", bucket: "software"},
		{name: "with hyphens and digits", bucket: "release-artifacts-2"},
		{name: "with underscore", bucket: "app_builds"},
		{name: "max length", bucket: strings.Repeat("a", 63)},
		{name: "empty", bucket: "", wantErr: "cannot be empty"},
		{name: "too short", bucket: "ab", wantErr: "between 3 and 63"},
		{name: "too long", bucket: strings.Repeat("a", 64), wantErr: "between 3 and 63"},
		{name: "uppercase", bucket: "Software", wantErr: "can only contain"},
		{name: "leading hyphen", bucket: "-software", wantErr: "start and end"},
		{name: "trailing dot", bucket: "software.", wantErr: "start and end"},
		{name: "adjacent dots", bucket: "soft..ware", wantErr: "adjacent dots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBucketName(tt.bucket)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateObjectKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{name: "plain file", key: "mineglance-extension-v1.0.6.zip"},
		{name: "nested", key: "desktop/windows/setup.exe"},
		{name: "dots inside name", key: "app..v1.zip"},
		{name: "empty", key: "", wantErr: "cannot be empty"},
		{name: "absolute", key: "/etc/passwd", wantErr: "path traversal"},
		{name: "parent segment", key: "releases/../secret", wantErr: "path traversal"},
		{name: "windows drive", key: "C:\\setup.exe", wantErr: "path traversal"},
		{name: "control char", key: "setup\x00.exe", wantErr: "control characters"},
		{name: "too long", key: strings.Repeat("k", 1025), wantErr: "exceed 1024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectKey(tt.key)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidObjectKey)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
