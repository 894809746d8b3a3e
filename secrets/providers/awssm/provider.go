// Package awssm resolves secrets from AWS Secrets Manager.
//
// References take the form "awssm:<secret-id>[#json-key][@version-id]".
// When a key is given the secret value must be a JSON object and the
// field's string value is returned. Values are fetched once per secret ID
// and reused for the lifetime of the provider.
//
// Required IAM permissions: secretsmanager:GetSecretValue, plus kms:Decrypt
// for secrets encrypted with a customer-managed key.
package awssm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-release/secrets"
)

// Name is the reference scheme handled by this provider.
const Name = "awssm"

// AWS error codes mapped onto package sentinels.
const (
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
)

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider resolves references against Secrets Manager. It is safe for
// concurrent use.
type Provider struct {
	api    ManagerAPI
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

type options struct {
	logger *slog.Logger
	region string
	api    ManagerAPI
}

// Option configures the provider.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegion overrides the AWS region.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithAPI injects a client, bypassing AWS configuration loading.
func WithAPI(api ManagerAPI) Option {
	return func(o *options) {
		o.api = api
	}
}

// New creates a provider. Credentials and region come from the default AWS
// chain unless overridden.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	api := o.api
	if api == nil {
		loadOpts := []func(*config.LoadOptions) error{
			config.WithRetryer(func() aws.Retryer { return newRetryer() }),
		}
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}

		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		api = secretsmanager.NewFromConfig(cfg)
	}

	return &Provider{
		api:    api,
		logger: o.logger,
		cache:  make(map[string]string),
	}, nil
}

// Name implements secrets.Provider.
func (p *Provider) Name() string {
	return Name
}

// Resolve implements secrets.Resolver.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if ref.Path == "" {
		return nil, secrets.ErrInvalidRef
	}

	raw, err := p.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	if ref.Key == "" {
		return &secrets.Secret{Value: []byte(raw), Version: ref.Version}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: secret is not a JSON object", secrets.ErrInvalidRef)
	}
	value, ok := fields[ref.Key]
	if !ok {
		return nil, fmt.Errorf("%w: key %q", secrets.ErrSecretNotFound, ref.Key)
	}
	str, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: key %q is not a string", secrets.ErrInvalidRef, ref.Key)
	}
	return &secrets.Secret{Value: []byte(str), Version: ref.Version}, nil
}

// Close implements secrets.Provider and drops cached values.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]string)
	return nil
}

func (p *Provider) fetch(ctx context.Context, ref secrets.SecretRef) (string, error) {
	cacheKey := ref.Path + "@" + ref.Version

	p.mu.Lock()
	if v, ok := p.cache[cacheKey]; ok {
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "retrieving secret", "secret_id", ref.Path)

	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref.Path)}
	if ref.Version != "" {
		input.VersionId = aws.String(ref.Version)
	}

	out, err := p.api.GetSecretValue(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case ResourceNotFoundException:
				return "", secrets.ErrSecretNotFound
			case AccessDeniedException:
				return "", secrets.ErrAccessDenied
			}
			p.logger.ErrorContext(ctx, "failed to retrieve secret", "secret_id", ref.Path, "code", apiErr.ErrorCode())
			return "", fmt.Errorf("GetSecretValue failed: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return "", fmt.Errorf("GetSecretValue failed: %w", err)
	}

	var value string
	switch {
	case out.SecretString != nil:
		value = *out.SecretString
	case out.SecretBinary != nil:
		value = string(out.SecretBinary)
	default:
		return "", secrets.ErrSecretEmpty
	}

	p.mu.Lock()
	p.cache[cacheKey] = value
	p.mu.Unlock()

	return value, nil
}
