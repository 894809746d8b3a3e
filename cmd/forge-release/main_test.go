package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/publisher"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// clearEnv blanks the variables that override configuration.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"supabase_url", "SUPABASE_URL", "s3_endpoint", "S3_ENDPOINT",
		"SUPABASE_SERVICE_KEY", "S3_KEY_ID", "S3_SECRET", "EXPO_TOKEN", "GITHUB_TOKEN",
		"FORGE_RELEASE_STAGING_DIR", "FORGE_RELEASE_LOG_LEVEL", "FORGE_RELEASE_LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
}

// workspace lays out an extension project with a JSON manifest and returns
// the config path.
func workspace(t *testing.T, extra string) (root, configPath string) {
	t.Helper()
	clearEnv(t)
	root = t.TempDir()
	writeFile(t, filepath.Join(root, "extension", "manifest.json"), `{"name": "MineGlance", "version": "1.0.6"}`)
	writeFile(t, filepath.Join(root, "extension", "popup.js"), "console.log('hi')")
	writeFile(t, filepath.Join(root, "roadmap", "releases.json"),
		`{"releases": [{"version": "1.0.6", "platform": "extension", "filename": "mineglance-extension-v1.0.6.zip", "is_latest": true}]}`)

	configPath = filepath.Join(root, "forge-release.toml")
	writeFile(t, configPath, fmt.Sprintf(`[workspace]
root = %q
staging_dir = "roadmap"
manifest = "roadmap/releases.json"
env_file = ".env"
journal_path = %q

[database]
service_key = "literal-service-key"

[git]
enabled = false
%s`, root, filepath.Join(root, "state", "journal.db"), extra))
	return root, configPath
}

func TestConfigInit(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration to "+path)
	assert.FileExists(t, path)

	_, _, err = runCLI(t, "config", "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runCLI(t, "config", "init", "--path", path, "--overwrite")
	require.NoError(t, err)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	_, configPath := workspace(t, "")

	out, _, err := runCLI(t, "--config", configPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# source: "+configPath)
	assert.Contains(t, out, "env:S3_KEY_ID")
	assert.NotContains(t, out, "literal-service-key")
}

func TestMissingConfigFile(t *testing.T) {
	clearEnv(t)
	_, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestHistoryEmpty(t *testing.T) {
	_, configPath := workspace(t, "")

	out, _, err := runCLI(t, "--config", configPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No releases recorded.")
}

func TestPublishDryRun(t *testing.T) {
	root, configPath := workspace(t, "")

	out, _, err := runCLI(t, "--config", configPath, "publish", "--dry-run", "--skip-git")
	require.NoError(t, err)
	assert.Contains(t, out, "Publishing 1 release(s) (dry run)")
	assert.Contains(t, out, "dry_run")
	assert.Contains(t, out, "would upload mineglance-extension-v1.0.6.zip")
	assert.Contains(t, out, "Dry run: nothing was uploaded or published.")
	assert.FileExists(t, filepath.Join(root, "roadmap", "mineglance-extension-v1.0.6.zip"))

	out, _, err = runCLI(t, "--config", configPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "extension")
	assert.Contains(t, out, "dry_run (dry run)")
}

func TestPublishOnlyFilter(t *testing.T) {
	_, configPath := workspace(t, "")

	out, _, err := runCLI(t, "--config", configPath, "--dry-run", "--only", "mobile_ios")
	require.NoError(t, err)
	assert.Contains(t, out, "No releases match the --only filter.")

	_, _, err = runCLI(t, "--config", configPath, "--dry-run", "--only", "windows95")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown platform "windows95"`)
}

func TestPublishRequiresCredentials(t *testing.T) {
	_, configPath := workspace(t, "")

	_, _, err := runCLI(t, "--config", configPath, "publish", "--skip-git")
	require.Error(t, err)
	assert.ErrorIs(t, err, publisher.ErrMissingCredentials)
	assert.Contains(t, err.Error(), "database.url")
	assert.NotEmpty(t, publisher.Hints(err))
}

func TestPublishLocked(t *testing.T) {
	root, configPath := workspace(t, "")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "roadmap"), 0o755))
	lock := flock.New(filepath.Join(root, "roadmap", ".forge-release.lock"))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	_, _, err = runCLI(t, "--config", configPath, "publish", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another forge-release run is in progress")
}

func TestDetectReportsNewestInstaller(t *testing.T) {
	root, configPath := workspace(t, "")
	writeFile(t, filepath.Join(root, "desktop", "src-tauri", "tauri.conf.json"), `{"version": "1.3.7"}`)
	bundle := filepath.Join(root, "desktop", "src-tauri", "target", "release", "bundle", "nsis")
	writeFile(t, filepath.Join(bundle, "MineGlance_1.3.6_x64-setup.exe"), "old")

	out, _, err := runCLI(t, "--config", configPath, "detect")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.Contains(t, out, "Newest built installer: MineGlance_1.3.6_x64-setup.exe (v1.3.6,")
	assert.NotContains(t, out, "Warning:")
}

func TestBuildExtension(t *testing.T) {
	root, configPath := workspace(t, "")

	out, _, err := runCLI(t, "--config", configPath, "build", "--platform", "extension")
	require.NoError(t, err)
	want := filepath.Join(root, "roadmap", "mineglance-extension-v1.0.6.zip")
	assert.Contains(t, out, want)
	assert.Contains(t, out, "local")
	assert.FileExists(t, want)
}

func TestBuildRejectsUnknownSource(t *testing.T) {
	_, configPath := workspace(t, "")

	_, _, err := runCLI(t, "--config", configPath, "build", "--platform", "extension", "--source", "ftp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown build source "ftp"`)
}
