package secrets

import "context"

// Resolver fetches a secret by reference.
type Resolver interface {
	Resolve(ctx context.Context, ref SecretRef) (*Secret, error)
}

// Provider is a named Resolver registered with a Manager. The name doubles
// as the reference scheme.
type Provider interface {
	Resolver

	// Name returns the scheme handled by the provider (e.g. "env", "awssm").
	Name() string

	// Close releases provider resources.
	Close() error
}
