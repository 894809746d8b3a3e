package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/executor"
	"github.com/input-output-hk/catalyst-forge-release/internal/config"
)

// InstallerName renders an installer pattern for version.
func InstallerName(pattern, version string) string {
	return strings.ReplaceAll(pattern, "{version}", version)
}

// RenderFilename expands {product} and {version} in tmpl.
func RenderFilename(tmpl, product, version string) string {
	return strings.NewReplacer("{product}", product, "{version}", version).Replace(tmpl)
}

// Installer is a desktop installer found in the bundle directory.
type Installer struct {
	Path    string
	Version string
	ModTime time.Time
}

// LatestDesktopInstaller returns the most recently modified .exe in
// bundleDir whose name contains prefix. Version is parsed from names like
// "<prefix>_1.3.7_x64-setup.exe" and is empty when the name does not
// follow that form.
func LatestDesktopInstaller(bundleDir, prefix string) (*Installer, error) {
	entries, err := os.ReadDir(bundleDir)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeNotFound, "bundle directory not readable",
			map[string]any{"path": bundleDir})
	}

	var found []Installer
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".exe") || !strings.Contains(name, prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, Installer{Path: filepath.Join(bundleDir, name), ModTime: info.ModTime()})
	}
	if len(found) == 0 {
		return nil, errors.New(errors.CodeNotFound, "no installers in bundle directory").WithContext("path", bundleDir)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].ModTime.After(found[j].ModTime) })
	latest := found[0]
	versionRE := regexp.MustCompile(regexp.QuoteMeta(prefix) + `_(\d+\.\d+\.\d+)_`)
	if m := versionRE.FindStringSubmatch(filepath.Base(latest.Path)); m != nil {
		latest.Version = m[1]
	}
	return &latest, nil
}

// DetectDesktopRelease builds a Windows desktop entry from the version in
// tauri.conf.json, provided the matching installer has been built.
func DetectDesktopRelease(cfg *config.Config) (*domain.Entry, error) {
	version, err := DesktopVersion(cfg.TauriConfigPath())
	if err != nil {
		return nil, err
	}

	installer := filepath.Join(cfg.BundleDir(), InstallerName(cfg.Desktop.InstallerPattern, version))
	if _, err := os.Stat(installer); err != nil {
		return nil, errors.New(errors.CodeNotFound,
			"no built installer for v"+version+"; run '"+strings.Join(cfg.Desktop.BuildCommand, " ")+"' in the desktop directory first").
			WithContext("expected", installer)
	}

	return &domain.Entry{
		Version:      version,
		Platform:     domain.PlatformDesktopWindows,
		ReleaseNotes: domain.DefaultNotes(domain.PlatformDesktopWindows, version),
		Filename:     RenderFilename(cfg.Desktop.Filename, cfg.Workspace.Product, version),
		IsLatest:     true,
		Build:        domain.BuildAuto,
	}, nil
}

// resolveDesktop locates the Windows installer for entry, building it when
// missing, and copies it into the staging directory as dest.
func (r *Resolver) resolveDesktop(ctx context.Context, entry domain.Entry, dest string) error {
	bundleDir := r.cfg.BundleDir()
	expected := filepath.Join(bundleDir, InstallerName(r.cfg.Desktop.InstallerPattern, entry.Version))

	if !fileExists(expected) {
		r.logger.Info("installer not found, building", "version", entry.Version, "expected", filepath.Base(expected))
		if err := r.buildDesktop(ctx); err != nil {
			return err
		}
	}

	source := expected
	if !fileExists(source) {
		r.logger.Warn("expected installer not found after build, scanning bundle directory",
			"expected", filepath.Base(expected), "dir", bundleDir)
		fallback, err := findVersionedExe(bundleDir, entry.Version)
		if err != nil {
			return err
		}
		r.logger.Info("using installer", "file", filepath.Base(fallback))
		source = fallback
	}

	size, err := copyFile(source, dest)
	if err != nil {
		return err
	}
	r.logger.Info("copied installer", "file", filepath.Base(dest), "size", humanize.IBytes(uint64(size)))
	return nil
}

func (r *Resolver) buildDesktop(ctx context.Context) error {
	dir := r.cfg.DesktopDir()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.New(errors.CodeNotFound, "desktop directory not found").WithContext("path", dir)
	}

	command := r.cfg.Desktop.BuildCommand
	runner := r.buildRunner
	if runner == nil {
		runner = executor.NewProgram(command[0])
	}

	timeout := r.cfg.BuildTimeout()
	r.logger.Info("running desktop build", "command", strings.Join(command, " "), "dir", dir, "timeout", timeout)
	start := time.Now()
	_, err := runner.Run(ctx, command[1:],
		executor.WithWorkingDir(dir),
		executor.WithTimeout(timeout),
		executor.CaptureAll(),
	)
	if err != nil {
		if errors.HasCode(err, errors.CodeTimeout) {
			return errors.Wrapf(err, errors.CodeBuildFailed, "desktop build timed out after %s", timeout)
		}
		return errors.Wrap(err, errors.CodeBuildFailed, "desktop build failed")
	}
	r.logger.Info("desktop build completed", "duration", time.Since(start).Round(time.Second))
	return nil
}

// findVersionedExe returns the first .exe in dir whose name contains
// version.
func findVersionedExe(dir, version string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeNotFound, "bundle directory not found after build",
			map[string]any{"path": dir})
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".exe") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", errors.New(errors.CodeNotFound, "no installers in bundle directory").WithContext("path", dir)
	}
	for _, name := range names {
		if strings.Contains(name, version) {
			return filepath.Join(dir, name), nil
		}
	}
	return "", errors.New(errors.CodeNotFound, "no installer matches version "+version).
		WithContext("found", strings.Join(names, ", "))
}

// copyFile copies src to dest atomically and keeps the modification time.
func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeNotFound, "open installer")
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "stat installer")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "create staging directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "create temporary file")
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.Wrap(err, errors.CodeInternal, "copy installer")
	}
	_ = os.Chtimes(tmpName, info.ModTime(), info.ModTime())
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.Wrap(err, errors.CodeInternal, "move installer into place")
	}
	return n, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
