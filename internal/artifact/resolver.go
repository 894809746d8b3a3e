package artifact

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/executor"
	"github.com/input-output-hk/catalyst-forge-release/internal/config"
)

// Default file names for platforms without a configured template.
var defaultFilenames = map[domain.Platform]string{
	domain.PlatformDesktopMacOS:  "{product}-desktop-{version}-macos.dmg",
	domain.PlatformMobileIOS:     "{product}-ios-{version}.ipa",
	domain.PlatformMobileAndroid: "{product}-android-{version}.apk",
}

// RemoteBuilder produces an entry's artifact on a CI system and writes it
// to dest. It returns the remote build identifier.
type RemoteBuilder interface {
	Build(ctx context.Context, entry domain.Entry, dest string) (string, error)
}

// Result describes a ready artifact.
type Result struct {
	Path    string
	Size    int64
	Source  domain.BuildSource
	BuildID string
}

// Options configures a Resolver.
type Options struct {
	Config *config.Config

	// BuildRunner runs the desktop build command's arguments. Defaults to
	// the command's first element on PATH.
	BuildRunner executor.Runner

	EAS    RemoteBuilder
	GitHub RemoteBuilder
	Logger *slog.Logger
}

// Resolver obtains artifacts for release entries.
type Resolver struct {
	cfg         *config.Config
	buildRunner executor.Runner
	eas         RemoteBuilder
	github      RemoteBuilder
	logger      *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "artifact resolver requires a configuration")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:         opts.Config,
		buildRunner: opts.BuildRunner,
		eas:         opts.EAS,
		github:      opts.GitHub,
		logger:      logger,
	}, nil
}

// Filename returns entry's artifact name, rendering the platform template
// when the entry carries none.
func (r *Resolver) Filename(entry domain.Entry) string {
	if entry.Filename != "" {
		return entry.Filename
	}
	tmpl := defaultFilenames[entry.Platform]
	switch entry.Platform {
	case domain.PlatformExtension:
		tmpl = r.cfg.Extension.Filename
	case domain.PlatformDesktopWindows:
		tmpl = r.cfg.Desktop.Filename
	}
	return RenderFilename(tmpl, r.cfg.Workspace.Product, entry.Version)
}

// Path returns where entry's artifact lives in the staging directory.
func (r *Resolver) Path(entry domain.Entry) string {
	return filepath.Join(r.cfg.Workspace.StagingDir, r.Filename(entry))
}

// Resolve makes entry's artifact available in the staging directory.
func (r *Resolver) Resolve(ctx context.Context, entry domain.Entry) (*Result, error) {
	dest := r.Path(entry)
	source := entry.Source()
	result := &Result{Path: dest, Source: source}
	start := time.Now()

	var err error
	switch source {
	case domain.BuildLocal:
		err = r.resolveLocal(ctx, entry, dest)
	case domain.BuildEAS:
		result.BuildID, err = r.remote(ctx, r.eas, "eas", entry, dest)
	case domain.BuildGitHub:
		result.BuildID, err = r.remote(ctx, r.github, "github", entry, dest)
	default:
		err = requireFile(dest)
	}
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeBuildFailed, "could not get artifact",
			map[string]any{"release": entry.String(), "source": string(source)})
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeNotFound, "artifact missing after resolve",
			map[string]any{"path": dest})
	}
	result.Size = info.Size()
	r.logger.Info("artifact ready",
		"release", entry.String(),
		"file", filepath.Base(dest),
		"size", humanize.IBytes(uint64(result.Size)),
		"source", string(source),
		"duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, entry domain.Entry, dest string) error {
	switch entry.Platform {
	case domain.PlatformExtension:
		return r.resolveExtension(ctx, entry, dest)
	case domain.PlatformDesktopWindows:
		return r.resolveDesktop(ctx, entry, dest)
	}
	// No local recipe; accept a file someone placed in staging.
	return requireFile(dest)
}

func (r *Resolver) resolveExtension(ctx context.Context, entry domain.Entry, dest string) error {
	dir := r.cfg.Resolve(r.cfg.Extension.Dir)
	if version, err := ExtensionVersion(dir); err != nil {
		r.logger.Warn("could not read extension manifest", "error", err)
	} else if version != entry.Version {
		r.logger.Warn("extension manifest version differs from release",
			"manifest", version, "release", entry.Version)
	}

	r.logger.Info("creating extension archive", "dir", dir, "file", filepath.Base(dest))
	count, err := ZipDir(ctx, dir, dest, r.cfg.Extension.Exclude)
	if err != nil {
		return err
	}
	r.logger.Debug("archived extension", "files", count)
	return nil
}

func (r *Resolver) remote(ctx context.Context, builder RemoteBuilder, name string, entry domain.Entry, dest string) (string, error) {
	if builder == nil {
		return "", errors.Newf(errors.CodeInvalidConfig, "%s builds are not configured", name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create staging directory")
	}
	r.logger.Info("starting remote build", "release", entry.String(), "via", name)
	return builder.Build(ctx, entry, dest)
}

func requireFile(path string) error {
	if !fileExists(path) {
		return errors.New(errors.CodeNotFound, "file not found: "+filepath.Base(path)).WithContext("path", path)
	}
	return nil
}
