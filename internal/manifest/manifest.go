// Package manifest loads the list of pending releases from a CUE or JSON
// manifest and validates it against the embedded release schema.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	schema "github.com/input-output-hk/catalyst-forge-release/schemas"
)

// Document is the decoded manifest.
type Document struct {
	SchemaVersion string         `json:"schema_version,omitempty"`
	Releases      []domain.Entry `json:"releases"`
}

// Loader reads manifests from a filesystem.
type Loader struct {
	fs     billy.Filesystem
	hostFS bool
}

// NewLoader creates a Loader. A nil filesystem reads from the OS.
func NewLoader(filesystem billy.Filesystem) *Loader {
	if filesystem == nil {
		return &Loader{fs: osfs.New("/"), hostFS: true}
	}
	return &Loader{fs: filesystem}
}

// Load reads and validates the manifest at path. A missing file yields an
// empty list so the caller can fall back to auto-detection.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.Entry, error) {
	data, err := util.ReadFile(l.fs, l.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapWithContext(err, errors.CodeInvalidInput,
			"failed to read release manifest", map[string]any{"path": path})
	}
	return LoadBytes(ctx, path, data)
}

func (l *Loader) resolve(path string) string {
	if l.hostFS {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return path
}

// Load reads the manifest at path from the OS filesystem.
func Load(ctx context.Context, path string) ([]domain.Entry, error) {
	return NewLoader(nil).Load(ctx, path)
}

// LoadBytes validates manifest content. name selects the format by
// extension (.json, otherwise CUE) and is used in error messages.
func LoadBytes(ctx context.Context, name string, data []byte) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	errCtx := map[string]any{"path": name}
	cctx := cuecontext.New()

	def := cctx.CompileString(schema.Release, cue.Filename(schema.ReleaseFilename)).
		LookupPath(cue.ParsePath(schema.ManifestDefinition))
	if err := def.Err(); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "release schema is invalid", errCtx)
	}

	value, err := compile(cctx, name, data)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidInput,
			"failed to parse release manifest", errCtx)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, errors.WrapWithContext(detailed(err), errors.CodeSchemaFailed,
			"release manifest does not match schema", errCtx)
	}

	var doc Document
	if err := unified.Decode(&doc); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeSchemaFailed,
			"failed to decode release manifest", errCtx)
	}

	if err := doc.validate(); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeSchemaFailed,
			"invalid release manifest", errCtx)
	}

	doc.applyDefaults()
	return doc.Releases, nil
}

func compile(cctx *cue.Context, name string, data []byte) (cue.Value, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		expr, err := cuejson.Extract(name, data)
		if err != nil {
			return cue.Value{}, err
		}
		v := cctx.BuildExpr(expr)
		return v, v.Err()
	}

	v := cctx.CompileBytes(data, cue.Filename(name))
	return v, v.Err()
}

// validate covers what the schema cannot express.
func (d *Document) validate() error {
	if d.SchemaVersion != "" {
		ok, err := schema.IsCompatible(d.SchemaVersion)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("schema_version %s is not compatible with %s", d.SchemaVersion, schema.SchemaVersion)
		}
	}

	seen := make(map[string]int, len(d.Releases))
	for i, e := range d.Releases {
		if _, err := schema.ParseReleaseVersion(e.Version); err != nil {
			return fmt.Errorf("releases[%d]: %w", i, err)
		}
		if first, dup := seen[e.Key()]; dup {
			return fmt.Errorf("releases[%d]: duplicate release %s (first declared at releases[%d])", i, e, first)
		}
		seen[e.Key()] = i
	}
	return nil
}

func (d *Document) applyDefaults() {
	for i := range d.Releases {
		e := &d.Releases[i]
		if strings.TrimSpace(e.ReleaseNotes) == "" {
			e.ReleaseNotes = domain.DefaultNotes(e.Platform, e.Version)
		}
		if e.Build == "" {
			e.Build = domain.BuildAuto
		}
	}
}

func detailed(err error) error {
	return fmt.Errorf("%s", strings.TrimSpace(cueerrors.Details(err, nil)))
}
