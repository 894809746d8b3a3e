package awssm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/secrets"
)

type mockManagerAPI struct {
	getSecretValueFunc func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	calls              atomic.Int32
}

func (m *mockManagerAPI) GetSecretValue(
	ctx context.Context,
	params *secretsmanager.GetSecretValueInput,
	optFns ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls.Add(1)
	return m.getSecretValueFunc(ctx, params, optFns...)
}

func newTestProvider(t *testing.T, api ManagerAPI) *Provider {
	t.Helper()
	p, err := New(context.Background(),
		WithAPI(api),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return p
}

func TestProvider_Resolve(t *testing.T) {
	const doc = `{"service_key":"eyJhbGci","s3_secret":"abc","port":5432}`

	api := &mockManagerAPI{
		getSecretValueFunc: func(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			switch aws.ToString(in.SecretId) {
			case "release/plain":
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("plain-value")}, nil
			case "release/binary":
				return &secretsmanager.GetSecretValueOutput{SecretBinary: []byte("bin-value")}, nil
			case "release/json":
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(doc)}, nil
			case "release/empty":
				return &secretsmanager.GetSecretValueOutput{}, nil
			case "release/denied":
				return nil, &smithy.GenericAPIError{Code: AccessDeniedException}
			case "release/throttled":
				return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
			default:
				return nil, &smithy.GenericAPIError{Code: ResourceNotFoundException}
			}
		},
	}
	p := newTestProvider(t, api)

	tests := []struct {
		name    string
		ref     secrets.SecretRef
		want    string
		wantErr error
		errText string
	}{
		{name: "string secret", ref: secrets.SecretRef{Path: "release/plain"}, want: "plain-value"},
		{name: "binary secret", ref: secrets.SecretRef{Path: "release/binary"}, want: "bin-value"},
		{name: "json key", ref: secrets.SecretRef{Path: "release/json", Key: "service_key"}, want: "eyJhbGci"},
		{name: "missing json key", ref: secrets.SecretRef{Path: "release/json", Key: "nope"}, wantErr: secrets.ErrSecretNotFound},
		{name: "non-string json key", ref: secrets.SecretRef{Path: "release/json", Key: "port"}, wantErr: secrets.ErrInvalidRef},
		{name: "key on plain secret", ref: secrets.SecretRef{Path: "release/plain", Key: "x"}, wantErr: secrets.ErrInvalidRef},
		{name: "empty", ref: secrets.SecretRef{Path: "release/empty"}, wantErr: secrets.ErrSecretEmpty},
		{name: "not found", ref: secrets.SecretRef{Path: "release/missing"}, wantErr: secrets.ErrSecretNotFound},
		{name: "denied", ref: secrets.SecretRef{Path: "release/denied"}, wantErr: secrets.ErrAccessDenied},
		{name: "other api error", ref: secrets.SecretRef{Path: "release/throttled"}, errText: "ThrottlingException: slow down"},
		{name: "empty path", ref: secrets.SecretRef{}, wantErr: secrets.ErrInvalidRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret, err := p.Resolve(context.Background(), tt.ref)
			switch {
			case tt.wantErr != nil:
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, secret.String())
			}
		})
	}
}

func TestProvider_CachesPerSecretID(t *testing.T) {
	api := &mockManagerAPI{
		getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"a":"1","b":"2"}`)}, nil
		},
	}
	p := newTestProvider(t, api)
	ctx := context.Background()

	a, err := p.Resolve(ctx, secrets.SecretRef{Path: "release", Key: "a"})
	require.NoError(t, err)
	b, err := p.Resolve(ctx, secrets.SecretRef{Path: "release", Key: "b"})
	require.NoError(t, err)

	assert.Equal(t, "1", a.String())
	assert.Equal(t, "2", b.String())
	assert.Equal(t, int32(1), api.calls.Load())

	require.NoError(t, p.Close())
	_, err = p.Resolve(ctx, secrets.SecretRef{Path: "release", Key: "a"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.calls.Load())
}

func TestProvider_PassesVersion(t *testing.T) {
	api := &mockManagerAPI{
		getSecretValueFunc: func(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			assert.Equal(t, "v2", aws.ToString(in.VersionId))
			return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("x")}, nil
		},
	}
	p := newTestProvider(t, api)

	_, err := p.Resolve(context.Background(), secrets.SecretRef{Path: "release", Version: "v2"})
	require.NoError(t, err)
}

func TestRetryer(t *testing.T) {
	r := newRetryer()

	assert.True(t, r.IsErrorRetryable(&smithy.GenericAPIError{Code: "ThrottlingException"}))
	assert.False(t, r.IsErrorRetryable(&smithy.GenericAPIError{Code: ResourceNotFoundException}))
	assert.False(t, r.IsErrorRetryable(errors.New("plain")))
	assert.Equal(t, 5, r.MaxAttempts())

	for attempt := 1; attempt <= 10; attempt++ {
		d, err := r.RetryDelay(attempt, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
		assert.LessOrEqual(t, d, r.maxDelay)
	}
}
