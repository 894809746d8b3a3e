// Package secrets resolves credential references used in configuration.
//
// A reference has the form "<scheme>:<path>", for example "env:S3_SECRET" or
// "awssm:release/supabase#service_key". Values without a registered scheme
// are treated as literals so simple setups can inline credentials.
//
//	manager := secrets.NewManager()
//	_ = manager.RegisterProvider(env.New())
//	key, err := manager.ResolveString(ctx, "env:SUPABASE_SERVICE_KEY")
//
// Resolved values are returned as *Secret, which can zero its memory after
// use.
package secrets

import "time"

// Secret is a resolved secret value.
type Secret struct {
	// Value holds the secret bytes. Never log it.
	Value []byte
	// Version is the provider's version identifier, if any.
	Version string
	// CreatedAt records when the provider created this version.
	CreatedAt time.Time
	// AutoClear zeros Value after the first String or Bytes call.
	AutoClear bool
}

// SecretRef identifies a secret within a provider.
type SecretRef struct {
	// Path is the provider-specific location, such as an environment
	// variable name or a Secrets Manager ID.
	Path string
	// Version pins a specific version; empty means latest.
	Version string
	// Key selects a field when the secret value is a JSON object.
	Key string
}

// String returns the value as a string.
func (s *Secret) String() string {
	if s.Value == nil {
		return ""
	}
	value := string(s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Bytes returns a copy of the value.
func (s *Secret) Bytes() []byte {
	if s.Value == nil {
		return nil
	}
	value := make([]byte, len(s.Value))
	copy(value, s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Clear zeros the value in memory.
func (s *Secret) Clear() {
	for i := range s.Value {
		s.Value[i] = 0
	}
	s.Value = nil
}
