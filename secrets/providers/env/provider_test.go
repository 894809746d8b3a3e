package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/secrets"
)

func TestProvider_Resolve(t *testing.T) {
	vars := map[string]string{
		"SUPABASE_SERVICE_KEY": "service",
		"s3_secret":            "lower",
		"EMPTY":                "",
	}
	p := New(WithLookup(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}))

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "exact", path: "SUPABASE_SERVICE_KEY", want: "service"},
		{name: "lower-case fallback", path: "S3_SECRET", want: "lower"},
		{name: "upper-case fallback", path: "supabase_service_key", want: "service"},
		{name: "empty counts as missing", path: "EMPTY", wantErr: true},
		{name: "missing", path: "NOPE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret, err := p.Resolve(context.Background(), secrets.SecretRef{Path: tt.path})
			if tt.wantErr {
				assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, secret.String())
		})
	}
	assert.Equal(t, "env", p.Name())
}

func TestProvider_DefaultLookup(t *testing.T) {
	t.Setenv("FORGE_RELEASE_TEST_TOKEN", "abc")

	secret, err := New().Resolve(context.Background(), secrets.SecretRef{Path: "FORGE_RELEASE_TEST_TOKEN"})
	require.NoError(t, err)
	assert.Equal(t, "abc", secret.String())
}
