package config

const (
	defaultProduct           = "mineglance"
	defaultStagingDir        = "roadmap"
	defaultManifest          = "roadmap/releases.cue"
	defaultEnvFile           = ".env"
	defaultTable             = "software_releases"
	defaultDatabaseTimeout   = 30
	defaultDatabaseRetries   = 4
	defaultServiceKeyRef     = "env:SUPABASE_SERVICE_KEY"
	defaultRegion            = "us-west-2"
	defaultBucket            = "software"
	defaultAccessKeyRef      = "env:S3_KEY_ID"
	defaultSecretKeyRef      = "env:S3_SECRET"
	defaultRemote            = "origin"
	defaultBranch            = "main"
	defaultCommitMessage     = "chore(release): sync website updates"
	defaultFetchTimeout      = 10
	defaultPushTimeout       = 120
	defaultCommitTimeout     = 30
	defaultMaxChanges        = 10
	defaultMaxCommits        = 5
	defaultDesktopDir        = "desktop"
	defaultBundleDir         = "src-tauri/target/release/bundle/nsis"
	defaultTauriConfig       = "src-tauri/tauri.conf.json"
	defaultInstallerPattern  = "MineGlance_{version}_x64-setup.exe"
	defaultInstallerPrefix   = "MineGlance"
	defaultDesktopFilename   = "{product}-desktop-{version}-windows.exe"
	defaultBuildTimeout      = 600
	defaultExtensionDir      = "extension"
	defaultExtensionFilename = "{product}-extension-v{version}.zip"
	defaultMobileDir         = "mobile"
	defaultEASBinary         = "eas"
	defaultEASProfile        = "production"
	defaultEASTokenRef       = "env:EXPO_TOKEN"
	defaultEASInterval       = 30
	defaultEASTimeout        = 45
	defaultGitHubAPI         = "https://api.github.com"
	defaultGitHubTokenRef    = "env:GITHUB_TOKEN"
	defaultGitHubWorkflow    = "build-macos.yml"
	defaultGitHubPattern     = "*.dmg"
	defaultGitHubInterval    = 20
	defaultGitHubTimeout     = 40
	defaultMaxPollErrors     = 5
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

var defaultBuildCommand = []string{"npm", "run", "tauri", "build"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Workspace: Workspace{
			Root:       ".",
			StagingDir: defaultStagingDir,
			Manifest:   defaultManifest,
			EnvFile:    defaultEnvFile,
			Product:    defaultProduct,
		},
		Database: Database{
			Table:          defaultTable,
			ServiceKey:     defaultServiceKeyRef,
			TimeoutSeconds: defaultDatabaseTimeout,
			MaxRetries:     defaultDatabaseRetries,
		},
		Storage: Storage{
			Region:          defaultRegion,
			Bucket:          defaultBucket,
			AccessKeyID:     defaultAccessKeyRef,
			SecretAccessKey: defaultSecretKeyRef,
		},
		Git: Git{
			Enabled:              true,
			Remote:               defaultRemote,
			Branch:               defaultBranch,
			CommitMessage:        defaultCommitMessage,
			ExtraPaths:           []string{".gitignore"},
			FetchTimeoutSeconds:  defaultFetchTimeout,
			PushTimeoutSeconds:   defaultPushTimeout,
			CommitTimeoutSeconds: defaultCommitTimeout,
			MaxChanges:           defaultMaxChanges,
			MaxCommits:           defaultMaxCommits,
		},
		Desktop: Desktop{
			Dir:                 defaultDesktopDir,
			BundleDir:           defaultBundleDir,
			TauriConfig:         defaultTauriConfig,
			InstallerPattern:    defaultInstallerPattern,
			InstallerPrefix:     defaultInstallerPrefix,
			Filename:            defaultDesktopFilename,
			BuildCommand:        append([]string(nil), defaultBuildCommand...),
			BuildTimeoutSeconds: defaultBuildTimeout,
		},
		Extension: Extension{
			Dir:      defaultExtensionDir,
			Filename: defaultExtensionFilename,
		},
		EAS: EAS{
			Dir:                  defaultMobileDir,
			Binary:               defaultEASBinary,
			Profile:              defaultEASProfile,
			Token:                defaultEASTokenRef,
			PollIntervalSeconds:  defaultEASInterval,
			TimeoutMinutes:       defaultEASTimeout,
			MaxConsecutiveErrors: defaultMaxPollErrors,
		},
		GitHub: GitHub{
			APIURL:               defaultGitHubAPI,
			Token:                defaultGitHubTokenRef,
			Workflow:             defaultGitHubWorkflow,
			Ref:                  defaultBranch,
			ArtifactPattern:      defaultGitHubPattern,
			PollIntervalSeconds:  defaultGitHubInterval,
			TimeoutMinutes:       defaultGitHubTimeout,
			MaxConsecutiveErrors: defaultMaxPollErrors,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
