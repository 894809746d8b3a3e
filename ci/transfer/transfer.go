// Package transfer holds the HTTP helpers shared by the CI clients.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/input-output-hk/catalyst-forge-release/errors"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Tracker receives download progress. *progress.Tracker satisfies it.
type Tracker interface {
	io.Writer
	Complete()
	Error(err error)
}

// NewTracker creates a tracker for a transfer of total bytes (-1 when
// unknown).
type NewTracker func(description string, total int64) Tracker

// CheckStatus returns nil when resp carries one of the accepted status
// codes and a classified error otherwise.
func CheckStatus(resp *http.Response, op string, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("%s: status=%d", op, resp.StatusCode)
	if text := strings.TrimSpace(string(body)); text != "" {
		msg += " body=" + text
	}

	code := errors.CodeExecutionFailed
	retryable := false
	switch {
	case resp.StatusCode == http.StatusNotFound:
		code = errors.CodeNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		code = errors.CodeUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		code = errors.CodeForbidden
	case resp.StatusCode == http.StatusTooManyRequests:
		code, retryable = errors.CodeRateLimit, true
	case resp.StatusCode >= 500:
		code, retryable = errors.CodeUnavailable, true
	}
	return &errors.PlatformError{Code: code, Message: msg, Retryable: retryable}
}

// Download streams the response to req into dest. The file is written to a
// temporary sibling and renamed into place once complete.
func Download(ctx context.Context, client *http.Client, req *http.Request, dest string, newTracker NewTracker) (int64, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeNetwork, "download request failed")
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp, "download "+req.URL.Redacted(), http.StatusOK); err != nil {
		return 0, err
	}
	return WriteAtomic(dest, resp.Body, resp.ContentLength, newTracker)
}

// WriteAtomic copies r into dest through a temporary file in the same
// directory.
func WriteAtomic(dest string, r io.Reader, size int64, newTracker NewTracker) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "create destination directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "create temporary file")
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	var w io.Writer = tmp
	var tracker Tracker
	if newTracker != nil {
		tracker = newTracker(filepath.Base(dest), size)
		w = io.MultiWriter(tmp, tracker)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		if tracker != nil {
			tracker.Error(err)
		}
		cleanup()
		return n, errors.Wrap(err, errors.CodeNetwork, "download interrupted")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return n, errors.Wrap(err, errors.CodeInternal, "close temporary file")
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return n, errors.Wrap(err, errors.CodeInternal, "move download into place")
	}
	if tracker != nil {
		tracker.Complete()
	}
	return n, nil
}

// ExtractJSON returns the first JSON document in out, skipping any log
// lines a CLI printed before it.
func ExtractJSON(out string) string {
	idx := strings.IndexAny(out, "[{")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(out[idx:])
}
