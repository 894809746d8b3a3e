package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/input-output-hk/catalyst-forge-release/errors"
)

// ExtensionVersion reads the version field of dir/manifest.json.
func ExtensionVersion(dir string) (string, error) {
	path := filepath.Join(dir, "manifest.json")
	var manifest struct {
		Version string `json:"version"`
	}
	if err := readJSON(path, &manifest); err != nil {
		return "", err
	}
	if manifest.Version == "" {
		return "", errors.New(errors.CodeInvalidInput, "manifest.json has no version").WithContext("path", path)
	}
	return manifest.Version, nil
}

// DesktopVersion reads the app version from a tauri.conf.json. Tauri 2
// keeps it at the top level, Tauri 1 under package. A value ending in
// ".json" names a file, relative to the config, whose version is used.
func DesktopVersion(tauriConfig string) (string, error) {
	var conf struct {
		Version string `json:"version"`
		Package struct {
			Version string `json:"version"`
		} `json:"package"`
	}
	if err := readJSON(tauriConfig, &conf); err != nil {
		return "", err
	}

	version := conf.Version
	if version == "" {
		version = conf.Package.Version
	}
	if strings.HasSuffix(version, ".json") {
		var pkg struct {
			Version string `json:"version"`
		}
		if err := readJSON(filepath.Join(filepath.Dir(tauriConfig), version), &pkg); err != nil {
			return "", err
		}
		version = pkg.Version
	}
	if version == "" {
		return "", errors.New(errors.CodeInvalidInput, "tauri config has no version").WithContext("path", tauriConfig)
	}
	return version, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		code := errors.CodeInternal
		if os.IsNotExist(err) {
			code = errors.CodeNotFound
		}
		return errors.WrapWithContext(err, code, "could not read "+filepath.Base(path), map[string]any{"path": path})
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.WrapWithContext(err, errors.CodeInvalidInput, "could not parse "+filepath.Base(path),
			map[string]any{"path": path})
	}
	return nil
}
