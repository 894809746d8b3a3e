package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"supabase_url", "s3_endpoint", "s3_region", "s3_bucket"} {
		for _, variant := range []string{name, upper(name)} {
			if value, ok := os.LookupEnv(variant); ok {
				require.NoError(t, os.Unsetenv(variant))
				t.Cleanup(func() { os.Setenv(variant, value) })
			}
		}
	}
}

func upper(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'a' && b <= 'z' {
			out[i] = b - 32
		}
	}
	return string(out)
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[workspace]
root = "`+filepath.ToSlash(dir)+`"
env_file = ""

[database]
url = "https://example.supabase.co/"
`)

	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)

	assert.Equal(t, "https://example.supabase.co", cfg.Database.URL)
	assert.Equal(t, "software_releases", cfg.Database.Table)
	assert.Equal(t, "env:SUPABASE_SERVICE_KEY", cfg.Database.ServiceKey)
	assert.Equal(t, "us-west-2", cfg.Storage.Region)
	assert.Equal(t, "software", cfg.Storage.Bucket)
	assert.Equal(t, filepath.Join(dir, "roadmap"), cfg.Workspace.StagingDir)
	assert.Equal(t, filepath.Join(dir, "roadmap", "releases.cue"), cfg.Workspace.Manifest)
	assert.Equal(t, "https://example.supabase.co/storage/v1/object/public/software", cfg.PublicBaseURL())
	assert.Equal(t, filepath.Join(dir, "desktop", "src-tauri", "target", "release", "bundle", "nsis"), cfg.BundleDir())
	assert.Equal(t, 10*time.Minute, cfg.BuildTimeout())
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 2*time.Minute, cfg.PushTimeout())
	assert.Equal(t, 45*time.Minute, cfg.EASTimeout())
	assert.Equal(t, 20*time.Second, cfg.GitHubPollInterval())
	assert.False(t, cfg.GitHubEnabled())
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), "[database]\nurll = \"x\"\n")
	_, _, _, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[workspace]
root = "`+filepath.ToSlash(dir)+`"

[storage]
region = "eu-west-1"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("supabase_url=https://fromenv.supabase.co\ns3_bucket=dotenv-bucket\n"), 0o600))

	t.Setenv("S3_REGION", "ap-south-1")
	t.Setenv("s3_endpoint", "https://fromenv.supabase.co/storage/v1/s3")
	t.Cleanup(func() { os.Unsetenv("supabase_url"); os.Unsetenv("s3_bucket") })

	cfg, _, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://fromenv.supabase.co", cfg.Database.URL)
	assert.Equal(t, "https://fromenv.supabase.co/storage/v1/s3", cfg.Storage.Endpoint)
	assert.Equal(t, "ap-south-1", cfg.Storage.Region)
	assert.Equal(t, "dotenv-bucket", cfg.Storage.Bucket)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad database url", func(c *Config) { c.Database.URL = "ftp://x" }, "database.url"},
		{"bad commit message", func(c *Config) { c.Git.CommitMessage = "Website updates" }, "git.commit_message"},
		{"half author", func(c *Config) { c.Git.AuthorName = "me" }, "author"},
		{"pattern without version", func(c *Config) { c.Desktop.InstallerPattern = "setup.exe" }, "installer_pattern"},
		{"filename with dir", func(c *Config) { c.Extension.Filename = "out/ext.zip" }, "extension.filename"},
		{"half github repo", func(c *Config) { c.GitHub.Owner = "org" }, "github.owner"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCommitMessage(t *testing.T) {
	assert.NoError(t, ValidateCommitMessage("chore(release): sync website updates"))
	assert.NoError(t, ValidateCommitMessage("fix: handle empty bundle dir"))
	assert.Error(t, ValidateCommitMessage("Website updates - auto-commit"))
}

func TestLookupAny(t *testing.T) {
	env := map[string]string{"S3_REGION": "ap-south-1", "blank": "  "}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	v, ok := lookupAny(lookup, "s3_region")
	assert.True(t, ok)
	assert.Equal(t, "ap-south-1", v)

	_, ok = lookupAny(lookup, "blank")
	assert.False(t, ok)
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Storage.SecretAccessKey = "literal-secret"

	redacted := cfg.Redacted(func(s string) string {
		if s == "literal-secret" {
			return "********"
		}
		return s
	})
	assert.Equal(t, "********", redacted.Storage.SecretAccessKey)
	assert.Equal(t, "env:S3_KEY_ID", redacted.Storage.AccessKeyID)
	assert.Equal(t, "literal-secret", cfg.Storage.SecretAccessKey)

	data, err := redacted.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), "[storage]")
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, CreateSample(path, false))
	assert.Error(t, CreateSample(path, false))
	require.NoError(t, CreateSample(path, true))

	clearEnv(t)
	cfg, _, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://your-project.supabase.co", cfg.Database.URL)
}
