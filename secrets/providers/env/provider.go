// Package env resolves secrets from process environment variables.
package env

import (
	"context"
	"os"
	"strings"

	"github.com/input-output-hk/catalyst-forge-release/secrets"
)

// Name is the reference scheme handled by this provider.
const Name = "env"

// Provider looks variables up by name, falling back to the lower-case
// spelling used by older .env files.
type Provider struct {
	lookup func(string) (string, bool)
}

// Option configures the provider.
type Option func(*Provider)

// WithLookup replaces os.LookupEnv, mainly for tests.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(p *Provider) {
		p.lookup = fn
	}
}

// New creates an environment provider.
func New(opts ...Option) *Provider {
	p := &Provider{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements secrets.Provider.
func (p *Provider) Name() string {
	return Name
}

// Resolve implements secrets.Resolver.
func (p *Provider) Resolve(_ context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	for _, name := range candidates(ref.Path) {
		if value, ok := p.lookup(name); ok && value != "" {
			return &secrets.Secret{Value: []byte(value)}, nil
		}
	}
	return nil, secrets.ErrSecretNotFound
}

// Close implements secrets.Provider.
func (p *Provider) Close() error {
	return nil
}

func candidates(name string) []string {
	out := []string{name}
	if lower := strings.ToLower(name); lower != name {
		out = append(out, lower)
	}
	if upper := strings.ToUpper(name); upper != name {
		out = append(out, upper)
	}
	return out
}
