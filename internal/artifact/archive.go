package artifact

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/input-output-hk/catalyst-forge-release/errors"
)

// ZipDir archives the contents of src into dest. Entry names are relative
// to src and use forward slashes. Files or directories whose base name or
// relative path matches an exclude pattern are skipped. dest is written
// through a temporary file, so a failure never leaves a partial archive.
// It returns the number of files archived.
func ZipDir(ctx context.Context, src, dest string, exclude []string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, errors.WrapWithContext(err, errors.CodeNotFound, "source directory not found",
			map[string]any{"path": src})
	}
	if !info.IsDir() {
		return 0, errors.New(errors.CodeInvalidInput, "archive source is not a directory").WithContext("path", src)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "create staging directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "create temporary archive")
	}
	tmpName := tmp.Name()
	fail := func(err error) (int, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, err
	}

	zw := zip.NewWriter(tmp)
	count := 0
	walkErr := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if excluded(name, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// The archive being written may live inside src.
		if p == tmpName || p == dest {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		header.Name = name
		if d.IsDir() {
			header.Name += "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		_ = f.Close()
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if walkErr != nil {
		_ = zw.Close()
		return fail(errors.WrapWithContext(walkErr, errors.CodeBuildFailed, "failed to create archive",
			map[string]any{"source": src}))
	}
	if err := zw.Close(); err != nil {
		return fail(errors.Wrap(err, errors.CodeBuildFailed, "failed to finish archive"))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.Wrap(err, errors.CodeBuildFailed, "failed to write archive")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.Wrap(err, errors.CodeBuildFailed, "failed to move archive into place")
	}
	return count, nil
}

func excluded(name string, patterns []string) bool {
	base := path.Base(name)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
