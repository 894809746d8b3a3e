package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    bool
	}{
		{"exact match", "0.1.0", true},
		{"patch version higher", "0.1.5", true},
		{"build metadata", "0.1.0+build", true},
		{"minor version higher", "0.2.0", false},
		{"major version higher", "1.0.0", false},
		{"short format major only", "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsCompatible(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := IsCompatible("not-a-version")
	assert.Error(t, err)
}

func TestParseReleaseVersion(t *testing.T) {
	valid := []string{"1.3.7", "0.0.1", "2.0.0-beta.1", "1.2.3+build.5"}
	for _, v := range valid {
		_, err := ParseReleaseVersion(v)
		assert.NoError(t, err, v)
	}

	invalid := []string{"v1.3.7", "1.3", "1", "01.2.3", ""}
	for _, v := range invalid {
		_, err := ParseReleaseVersion(v)
		assert.Error(t, err, v)
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.3.7", "1.3.6", 1},
		{"v1.3.7", "1.3.7", 0},
		{"1.2.9", "1.10.0", -1},
		{"2.0.0-rc.1", "2.0.0", -1},
	}
	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}

	_, err := CompareVersions("x", "1.0.0")
	assert.Error(t, err)
}
