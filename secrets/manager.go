package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Manager dispatches references to providers by scheme.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	autoClear bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAutoClear makes resolved secrets zero themselves after first use.
func WithAutoClear(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.autoClear = enabled
	}
}

// NewManager creates an empty Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{providers: make(map[string]Provider)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterProvider adds a provider under its Name.
func (m *Manager) RegisterProvider(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	name := provider.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("provider with name %q already registered", name)
	}
	m.providers[name] = provider
	return nil
}

// Providers returns the registered scheme names, sorted.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseRef splits a "<scheme>:<path>[#key][@version]" reference. ok is
// false when raw carries no registered scheme.
func (m *Manager) ParseRef(raw string) (scheme string, ref SecretRef, ok bool) {
	scheme, rest, found := strings.Cut(raw, ":")
	if !found {
		return "", SecretRef{}, false
	}

	m.mu.RLock()
	_, registered := m.providers[scheme]
	m.mu.RUnlock()
	if !registered {
		return "", SecretRef{}, false
	}

	if path, version, hasVersion := strings.Cut(rest, "@"); hasVersion {
		rest = path
		ref.Version = version
	}
	if path, key, hasKey := strings.Cut(rest, "#"); hasKey {
		rest = path
		ref.Key = key
	}
	ref.Path = strings.TrimPrefix(rest, "//")
	return scheme, ref, true
}

// IsReference reports whether raw names a registered provider.
func (m *Manager) IsReference(raw string) bool {
	_, _, ok := m.ParseRef(raw)
	return ok
}

// Resolve resolves raw. Literal values are returned as-is.
func (m *Manager) Resolve(ctx context.Context, raw string) (*Secret, error) {
	scheme, ref, ok := m.ParseRef(raw)
	if !ok {
		if raw == "" {
			return nil, ErrSecretEmpty
		}
		return &Secret{Value: []byte(raw), AutoClear: m.autoClear}, nil
	}
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: %q has an empty path", ErrInvalidRef, raw)
	}
	return m.ResolveFrom(ctx, scheme, ref)
}

// ResolveFrom resolves ref with the named provider.
func (m *Manager) ResolveFrom(ctx context.Context, providerName string, ref SecretRef) (*Secret, error) {
	m.mu.RLock()
	provider, exists := m.providers[providerName]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}

	secret, err := provider.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secret: %w", NewProviderError(providerName, ref, err))
	}
	if len(secret.Value) == 0 {
		return nil, NewProviderError(providerName, ref, ErrSecretEmpty)
	}

	secret.AutoClear = m.autoClear
	return secret, nil
}

// ResolveString resolves raw and returns its string value.
func (m *Manager) ResolveString(ctx context.Context, raw string) (string, error) {
	secret, err := m.Resolve(ctx, raw)
	if err != nil {
		return "", err
	}
	return secret.String(), nil
}

// Describe renders raw for display: references are shown verbatim and
// literals are masked.
func (m *Manager) Describe(raw string) string {
	switch {
	case raw == "":
		return "(unset)"
	case m.IsReference(raw):
		return raw
	default:
		return "********"
	}
}

// Close closes every provider.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, provider := range m.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}
	m.providers = make(map[string]Provider)
	return errors.Join(errs...)
}
