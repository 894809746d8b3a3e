package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// AppName names the XDG subdirectories.
const AppName = "forge-release"

// Workspace locates the repository and the files a run works with.
type Workspace struct {
	Root        string `toml:"root"`
	StagingDir  string `toml:"staging_dir"`
	Manifest    string `toml:"manifest"`
	EnvFile     string `toml:"env_file"`
	Product     string `toml:"product"`
	JournalPath string `toml:"journal_path"`
}

// Database configures the release table's REST endpoint.
type Database struct {
	URL            string `toml:"url"`
	ServiceKey     string `toml:"service_key"`
	Table          string `toml:"table"`
	WriteFileName  bool   `toml:"write_file_name"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

// Storage configures the S3-compatible bucket artifacts are uploaded to.
type Storage struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	// PublicURL is the download URL prefix. Defaults to the database's
	// public storage path for Bucket.
	PublicURL             string `toml:"public_url"`
	CacheControl          string `toml:"cache_control"`
	MultipartThresholdMiB int    `toml:"multipart_threshold_mib"`
	PartSizeMiB           int    `toml:"part_size_mib"`
}

// Git configures the synchronization that runs before publishing.
type Git struct {
	Enabled              bool     `toml:"enabled"`
	Remote               string   `toml:"remote"`
	Branch               string   `toml:"branch"`
	CommitMessage        string   `toml:"commit_message"`
	AuthorName           string   `toml:"author_name"`
	AuthorEmail          string   `toml:"author_email"`
	ExtraPaths           []string `toml:"extra_paths"`
	FetchTimeoutSeconds  int      `toml:"fetch_timeout_seconds"`
	PushTimeoutSeconds   int      `toml:"push_timeout_seconds"`
	CommitTimeoutSeconds int      `toml:"commit_timeout_seconds"`
	MaxChanges           int      `toml:"max_changes"`
	MaxCommits           int      `toml:"max_commits"`
}

// Desktop configures the Tauri desktop build.
type Desktop struct {
	Dir                 string   `toml:"dir"`
	BundleDir           string   `toml:"bundle_dir"`
	TauriConfig         string   `toml:"tauri_config"`
	InstallerPattern    string   `toml:"installer_pattern"`
	InstallerPrefix     string   `toml:"installer_prefix"`
	Filename            string   `toml:"filename"`
	BuildCommand        []string `toml:"build_command"`
	BuildTimeoutSeconds int      `toml:"build_timeout_seconds"`
}

// Extension configures the browser extension archive.
type Extension struct {
	Dir      string   `toml:"dir"`
	Filename string   `toml:"filename"`
	Exclude  []string `toml:"exclude"`
}

// EAS configures Expo Application Services builds and submissions.
type EAS struct {
	Dir                  string `toml:"dir"`
	Binary               string `toml:"binary"`
	Profile              string `toml:"profile"`
	SubmitProfile        string `toml:"submit_profile"`
	Token                string `toml:"token"`
	PollIntervalSeconds  int    `toml:"poll_interval_seconds"`
	TimeoutMinutes       int    `toml:"timeout_minutes"`
	MaxConsecutiveErrors int    `toml:"max_consecutive_errors"`
}

// GitHub configures GitHub Actions builds.
type GitHub struct {
	APIURL               string `toml:"api_url"`
	Owner                string `toml:"owner"`
	Repo                 string `toml:"repo"`
	Workflow             string `toml:"workflow"`
	Ref                  string `toml:"ref"`
	Token                string `toml:"token"`
	ArtifactName         string `toml:"artifact_name"`
	ArtifactPattern      string `toml:"artifact_pattern"`
	PollIntervalSeconds  int    `toml:"poll_interval_seconds"`
	TimeoutMinutes       int    `toml:"timeout_minutes"`
	MaxConsecutiveErrors int    `toml:"max_consecutive_errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for forge-release.
type Config struct {
	Workspace Workspace `toml:"workspace"`
	Database  Database  `toml:"database"`
	Storage   Storage   `toml:"storage"`
	Git       Git       `toml:"git"`
	Desktop   Desktop   `toml:"desktop"`
	Extension Extension `toml:"extension"`
	EAS       EAS       `toml:"eas"`
	GitHub    GitHub    `toml:"github"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/forge-release/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.toml")
}

// DefaultJournalPath returns $XDG_DATA_HOME/forge-release/journal.db.
func DefaultJournalPath() string {
	return filepath.Join(xdg.DataHome, AppName, "journal.db")
}

// Load locates, parses, and validates a configuration file. An explicit
// path that does not exist is an error; a missing default file means
// defaults. It returns the config, the path consulted, and whether the file
// existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.loadEnvFile(); err != nil {
		return nil, "", false, err
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath := DefaultConfigPath()
	projectPath, err := filepath.Abs("forge-release.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// loadEnvFile loads workspace.env_file into the process environment.
// Existing variables win. A missing file is ignored.
func (c *Config) loadEnvFile() error {
	if strings.TrimSpace(c.Workspace.EnvFile) == "" {
		return nil
	}
	root, err := expandPath(c.Workspace.Root)
	if err != nil {
		return fmt.Errorf("workspace.root: %w", err)
	}
	path := resolveIn(root, c.Workspace.EnvFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Resolve returns path made absolute relative to the workspace root.
func (c *Config) Resolve(path string) string {
	return resolveIn(c.Workspace.Root, path)
}

// DesktopDir returns the absolute desktop project directory.
func (c *Config) DesktopDir() string {
	return c.Resolve(c.Desktop.Dir)
}

// BundleDir returns the absolute directory Tauri writes installers to.
func (c *Config) BundleDir() string {
	return resolveIn(c.DesktopDir(), c.Desktop.BundleDir)
}

// TauriConfigPath returns the absolute path of tauri.conf.json.
func (c *Config) TauriConfigPath() string {
	return resolveIn(c.DesktopDir(), c.Desktop.TauriConfig)
}

// LockPath returns the file used to serialize runs on the staging directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Workspace.StagingDir, ".forge-release.lock")
}

// PublicBaseURL returns the prefix download URLs are built from.
func (c *Config) PublicBaseURL() string {
	if c.Storage.PublicURL != "" {
		return c.Storage.PublicURL
	}
	if c.Database.URL == "" {
		return ""
	}
	return strings.TrimRight(c.Database.URL, "/") + "/storage/v1/object/public/" + c.Storage.Bucket
}

// DatabaseTimeout returns the per-request timeout for the release table.
func (c *Config) DatabaseTimeout() time.Duration {
	return time.Duration(c.Database.TimeoutSeconds) * time.Second
}

// BuildTimeout returns the desktop build timeout.
func (c *Config) BuildTimeout() time.Duration {
	return time.Duration(c.Desktop.BuildTimeoutSeconds) * time.Second
}

// FetchTimeout returns the git fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Git.FetchTimeoutSeconds) * time.Second
}

// PushTimeout returns the git push timeout.
func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.Git.PushTimeoutSeconds) * time.Second
}

// CommitTimeout returns the budget for staging and committing.
func (c *Config) CommitTimeout() time.Duration {
	return time.Duration(c.Git.CommitTimeoutSeconds) * time.Second
}

// EASPollInterval returns the EAS status poll interval.
func (c *Config) EASPollInterval() time.Duration {
	return time.Duration(c.EAS.PollIntervalSeconds) * time.Second
}

// EASTimeout returns the EAS build wait budget.
func (c *Config) EASTimeout() time.Duration {
	return time.Duration(c.EAS.TimeoutMinutes) * time.Minute
}

// GitHubPollInterval returns the workflow run poll interval.
func (c *Config) GitHubPollInterval() time.Duration {
	return time.Duration(c.GitHub.PollIntervalSeconds) * time.Second
}

// GitHubTimeout returns the workflow run wait budget.
func (c *Config) GitHubTimeout() time.Duration {
	return time.Duration(c.GitHub.TimeoutMinutes) * time.Minute
}

// GitHubEnabled reports whether a workflow is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHub.Owner != "" && c.GitHub.Repo != "" && c.GitHub.Workflow != ""
}

// Redacted returns a copy with every credential field passed through
// describe, which should mask literal secrets.
func (c *Config) Redacted(describe func(string) string) Config {
	out := *c
	out.Database.ServiceKey = describe(c.Database.ServiceKey)
	out.Storage.AccessKeyID = describe(c.Storage.AccessKeyID)
	out.Storage.SecretAccessKey = describe(c.Storage.SecretAccessKey)
	out.EAS.Token = describe(c.EAS.Token)
	out.GitHub.Token = describe(c.GitHub.Token)
	return out
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// CreateSample writes a sample configuration file to the specified location.
// An existing file is left untouched unless force is set.
func CreateSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

func resolveIn(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
