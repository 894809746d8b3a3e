package secrets

import (
	"errors"
	"fmt"
)

var (
	// ErrSecretNotFound indicates the referenced secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretEmpty indicates the secret exists but has no value.
	ErrSecretEmpty = errors.New("secret value is empty")

	// ErrAccessDenied indicates the provider refused access.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidRef indicates a malformed reference.
	ErrInvalidRef = errors.New("invalid secret reference")

	// ErrUnknownProvider indicates no provider handles the scheme.
	ErrUnknownProvider = errors.New("unknown secret provider")
)

// ProviderError wraps a provider failure with the provider name and path.
// It never includes secret values.
type ProviderError struct {
	Provider string
	Ref      SecretRef
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error for secret %q: %v", e.Provider, e.Ref.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, ref SecretRef, err error) *ProviderError {
	return &ProviderError{Provider: provider, Ref: ref, Err: err}
}

// IsProviderError reports whether err contains a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
