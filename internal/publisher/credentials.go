package publisher

import (
	stderrors "errors"
	"strings"
)

// ErrMissingCredentials is matched by every CredentialError.
var ErrMissingCredentials = stderrors.New("missing credentials")

// CredentialError lists the settings a run cannot start without, together
// with instructions for the user.
type CredentialError struct {
	Service string
	Missing []string
	Hints   []string
}

func (e *CredentialError) Error() string {
	return "missing " + e.Service + " credentials: " + strings.Join(e.Missing, ", ")
}

// Is reports whether target is ErrMissingCredentials.
func (e *CredentialError) Is(target error) bool {
	return target == ErrMissingCredentials
}

// Credentials are the resolved secrets a publishing run needs.
type Credentials struct {
	DatabaseURL     string
	ServiceKey      string
	StorageEndpoint string
	AccessKeyID     string
	SecretAccessKey string
}

// CheckDatabase verifies the release table can be reached.
func CheckDatabase(c Credentials) error {
	var missing []string
	if strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "database.url")
	}
	if strings.TrimSpace(c.ServiceKey) == "" {
		missing = append(missing, "database.service_key")
	}
	if len(missing) == 0 {
		return nil
	}
	return &CredentialError{
		Service: "database",
		Missing: missing,
		Hints: []string{
			"Add to your .env file:",
			"  supabase_url=https://<project>.supabase.co",
			"  SUPABASE_SERVICE_KEY=<service-role-key>",
			"Get the service role key from:",
			"  Supabase Dashboard > Project Settings > API > service_role key",
		},
	}
}

// CheckStorage verifies the object store credentials are present.
func CheckStorage(c Credentials) error {
	var missing []string
	if strings.TrimSpace(c.StorageEndpoint) == "" {
		missing = append(missing, "storage.endpoint")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "storage.access_key_id")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "storage.secret_access_key")
	}
	if len(missing) == 0 {
		return nil
	}
	return &CredentialError{
		Service: "storage",
		Missing: missing,
		Hints:   []string{"Add to .env: s3_endpoint, S3_KEY_ID, S3_SECRET, s3_bucket"},
	}
}

// Hints returns the instructions attached to err, if any.
func Hints(err error) []string {
	var ce *CredentialError
	if stderrors.As(err, &ce) {
		return ce.Hints
	}
	return nil
}
