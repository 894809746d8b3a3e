package config

import (
	"fmt"
	"strings"
)

// envLookup matches os.LookupEnv.
type envLookup func(string) (string, bool)

// lookupAny tries name as written, then lower and upper case. Existing .env
// files use lower-case names and CI systems upper case.
func lookupAny(lookup envLookup, name string) (string, bool) {
	for _, candidate := range []string{name, strings.ToLower(name), strings.ToUpper(name)} {
		if value, ok := lookup(candidate); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

func (c *Config) applyEnv(lookup envLookup) {
	overrides := []struct {
		name   string
		target *string
	}{
		{"supabase_url", &c.Database.URL},
		{"s3_endpoint", &c.Storage.Endpoint},
		{"s3_region", &c.Storage.Region},
		{"s3_bucket", &c.Storage.Bucket},
		{"forge_release_staging_dir", &c.Workspace.StagingDir},
		{"forge_release_log_level", &c.Logging.Level},
		{"forge_release_log_format", &c.Logging.Format},
	}
	for _, o := range overrides {
		if value, ok := lookupAny(lookup, o.name); ok {
			*o.target = value
		}
	}
}

func (c *Config) normalize() error {
	if err := c.normalizeWorkspace(); err != nil {
		return err
	}
	c.normalizeDatabase()
	c.normalizeStorage()
	c.normalizeGit()
	c.normalizeDesktop()
	c.normalizeExtension()
	c.normalizeEAS()
	c.normalizeGitHub()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeWorkspace() error {
	var err error
	if strings.TrimSpace(c.Workspace.Root) == "" {
		c.Workspace.Root = "."
	}
	if c.Workspace.Root, err = expandPath(c.Workspace.Root); err != nil {
		return fmt.Errorf("workspace.root: %w", err)
	}
	if strings.TrimSpace(c.Workspace.StagingDir) == "" {
		c.Workspace.StagingDir = defaultStagingDir
	}
	c.Workspace.StagingDir = c.Resolve(strings.TrimSpace(c.Workspace.StagingDir))
	if strings.TrimSpace(c.Workspace.Manifest) != "" {
		c.Workspace.Manifest = c.Resolve(strings.TrimSpace(c.Workspace.Manifest))
	}
	if strings.TrimSpace(c.Workspace.JournalPath) == "" {
		c.Workspace.JournalPath = DefaultJournalPath()
	}
	if c.Workspace.JournalPath, err = expandPath(c.Workspace.JournalPath); err != nil {
		return fmt.Errorf("workspace.journal_path: %w", err)
	}
	c.Workspace.Product = strings.TrimSpace(c.Workspace.Product)
	if c.Workspace.Product == "" {
		c.Workspace.Product = defaultProduct
	}
	return nil
}

func (c *Config) normalizeDatabase() {
	c.Database.URL = strings.TrimRight(strings.TrimSpace(c.Database.URL), "/")
	c.Database.ServiceKey = strings.TrimSpace(c.Database.ServiceKey)
	if c.Database.Table = strings.TrimSpace(c.Database.Table); c.Database.Table == "" {
		c.Database.Table = defaultTable
	}
	if c.Database.TimeoutSeconds == 0 {
		c.Database.TimeoutSeconds = defaultDatabaseTimeout
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	if c.Storage.Region = strings.TrimSpace(c.Storage.Region); c.Storage.Region == "" {
		c.Storage.Region = defaultRegion
	}
	if c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket); c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)
	c.Storage.PublicURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicURL), "/")
}

func (c *Config) normalizeGit() {
	if c.Git.Remote = strings.TrimSpace(c.Git.Remote); c.Git.Remote == "" {
		c.Git.Remote = defaultRemote
	}
	if c.Git.Branch = strings.TrimSpace(c.Git.Branch); c.Git.Branch == "" {
		c.Git.Branch = defaultBranch
	}
	if c.Git.CommitMessage = strings.TrimSpace(c.Git.CommitMessage); c.Git.CommitMessage == "" {
		c.Git.CommitMessage = defaultCommitMessage
	}
	c.Git.AuthorName = strings.TrimSpace(c.Git.AuthorName)
	c.Git.AuthorEmail = strings.TrimSpace(c.Git.AuthorEmail)
	if c.Git.FetchTimeoutSeconds == 0 {
		c.Git.FetchTimeoutSeconds = defaultFetchTimeout
	}
	if c.Git.PushTimeoutSeconds == 0 {
		c.Git.PushTimeoutSeconds = defaultPushTimeout
	}
	if c.Git.CommitTimeoutSeconds == 0 {
		c.Git.CommitTimeoutSeconds = defaultCommitTimeout
	}
	if c.Git.MaxChanges == 0 {
		c.Git.MaxChanges = defaultMaxChanges
	}
	if c.Git.MaxCommits == 0 {
		c.Git.MaxCommits = defaultMaxCommits
	}
}

func (c *Config) normalizeDesktop() {
	if strings.TrimSpace(c.Desktop.Dir) == "" {
		c.Desktop.Dir = defaultDesktopDir
	}
	if strings.TrimSpace(c.Desktop.BundleDir) == "" {
		c.Desktop.BundleDir = defaultBundleDir
	}
	if strings.TrimSpace(c.Desktop.TauriConfig) == "" {
		c.Desktop.TauriConfig = defaultTauriConfig
	}
	if strings.TrimSpace(c.Desktop.InstallerPattern) == "" {
		c.Desktop.InstallerPattern = defaultInstallerPattern
	}
	if strings.TrimSpace(c.Desktop.Filename) == "" {
		c.Desktop.Filename = defaultDesktopFilename
	}
	if len(c.Desktop.BuildCommand) == 0 {
		c.Desktop.BuildCommand = append([]string(nil), defaultBuildCommand...)
	}
	if c.Desktop.BuildTimeoutSeconds == 0 {
		c.Desktop.BuildTimeoutSeconds = defaultBuildTimeout
	}
}

func (c *Config) normalizeExtension() {
	if strings.TrimSpace(c.Extension.Dir) == "" {
		c.Extension.Dir = defaultExtensionDir
	}
	if strings.TrimSpace(c.Extension.Filename) == "" {
		c.Extension.Filename = defaultExtensionFilename
	}
}

func (c *Config) normalizeEAS() {
	if strings.TrimSpace(c.EAS.Dir) == "" {
		c.EAS.Dir = defaultMobileDir
	}
	if strings.TrimSpace(c.EAS.Binary) == "" {
		c.EAS.Binary = defaultEASBinary
	}
	if strings.TrimSpace(c.EAS.Profile) == "" {
		c.EAS.Profile = defaultEASProfile
	}
	if c.EAS.PollIntervalSeconds == 0 {
		c.EAS.PollIntervalSeconds = defaultEASInterval
	}
	if c.EAS.TimeoutMinutes == 0 {
		c.EAS.TimeoutMinutes = defaultEASTimeout
	}
	if c.EAS.MaxConsecutiveErrors == 0 {
		c.EAS.MaxConsecutiveErrors = defaultMaxPollErrors
	}
}

func (c *Config) normalizeGitHub() {
	c.GitHub.APIURL = strings.TrimRight(strings.TrimSpace(c.GitHub.APIURL), "/")
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = defaultGitHubAPI
	}
	c.GitHub.Owner = strings.TrimSpace(c.GitHub.Owner)
	c.GitHub.Repo = strings.TrimSpace(c.GitHub.Repo)
	if strings.TrimSpace(c.GitHub.Ref) == "" {
		c.GitHub.Ref = c.Git.Branch
	}
	if strings.TrimSpace(c.GitHub.ArtifactPattern) == "" {
		c.GitHub.ArtifactPattern = defaultGitHubPattern
	}
	if c.GitHub.PollIntervalSeconds == 0 {
		c.GitHub.PollIntervalSeconds = defaultGitHubInterval
	}
	if c.GitHub.TimeoutMinutes == 0 {
		c.GitHub.TimeoutMinutes = defaultGitHubTimeout
	}
	if c.GitHub.MaxConsecutiveErrors == 0 {
		c.GitHub.MaxConsecutiveErrors = defaultMaxPollErrors
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
