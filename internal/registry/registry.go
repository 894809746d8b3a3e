// Package registry reads and writes release records through the hosted
// database's PostgREST interface.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
)

// ErrAlreadyExists is returned by Publish when the platform already has a
// record for the version.
var ErrAlreadyExists = stderrors.New("release already exists")

const (
	// DefaultTable is the release table name.
	DefaultTable = "software_releases"

	defaultMaxRetries     = 4
	defaultInitialBackoff = 500 * time.Millisecond
	maxErrorBody          = 512
)

// HTTPDoer describes the HTTP client used by the registry.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the project URL, e.g. https://project.supabase.co.
	BaseURL string
	// ServiceKey authenticates every request.
	ServiceKey string
	Table      string

	// WriteFileName includes the file_name column on insert.
	WriteFileName bool

	HTTPClient     HTTPDoer
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Client talks to the release table.
type Client struct {
	endpoint   string
	serviceKey string
	opts       Options
	client     HTTPDoer
	logger     *slog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "database url is required")
	}
	if strings.TrimSpace(opts.ServiceKey) == "" {
		return nil, errors.New(errors.CodeUnauthorized, "database service key is required")
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		endpoint:   base + "/rest/v1/" + url.PathEscape(opts.Table),
		serviceKey: opts.ServiceKey,
		opts:       opts,
		client:     client,
		logger:     logger,
	}, nil
}

// Exists reports whether a record for platform and version exists.
func (c *Client) Exists(ctx context.Context, platform domain.Platform, version string) (bool, error) {
	rows, err := c.find(ctx, platform, version)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// find returns the ids of the records for platform and version.
func (c *Client) find(ctx context.Context, platform domain.Platform, version string) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("platform", "eq."+string(platform))
	q.Set("version", "eq."+version)
	q.Set("select", "id")

	var rows []map[string]any
	if err := c.do(ctx, request{method: http.MethodGet, query: q, out: &rows, accept: []int{http.StatusOK}}); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeDatabase, "failed to check existing release",
			map[string]any{"platform": platform, "version": version})
	}
	return rows, nil
}

// UnsetLatest clears is_latest on every record of platform.
func (c *Client) UnsetLatest(ctx context.Context, platform domain.Platform) error {
	q := url.Values{}
	q.Set("platform", "eq."+string(platform))

	headers := map[string]string{"Prefer": "return=minimal"}
	body := map[string]bool{"is_latest": false}
	req := request{method: http.MethodPatch, query: q, body: body, headers: headers, accept: []int{http.StatusOK, http.StatusNoContent}}
	if err := c.do(ctx, req); err != nil {
		return errors.WrapWithContext(err, errors.CodePublishFailed, "failed to unset latest release",
			map[string]any{"platform": platform})
	}
	return nil
}

// Insert writes rec and returns the new row's id, or "?" when the response
// carried none. The insert is not idempotent, so before a retry the table
// is checked for a row committed by the failed attempt.
func (c *Client) Insert(ctx context.Context, rec domain.Record) (string, error) {
	rec.ID = nil
	if !c.opts.WriteFileName {
		rec.FileName = ""
	}

	headers := map[string]string{"Prefer": "return=representation"}
	var rows []map[string]any
	req := request{
		method:  http.MethodPost,
		body:    rec,
		headers: headers,
		out:     &rows,
		accept:  []int{http.StatusOK, http.StatusCreated},
		committed: func(ctx context.Context) (bool, error) {
			found, err := c.find(ctx, rec.Platform, rec.Version)
			if err != nil {
				return false, err
			}
			if len(found) == 0 {
				return false, nil
			}
			rows = found
			c.logger.Warn("insert succeeded before the retry, not inserting again",
				"platform", rec.Platform, "version", rec.Version)
			return true, nil
		},
	}
	if err := c.do(ctx, req); err != nil {
		return "", errors.WrapWithContext(err, errors.CodePublishFailed, "failed to insert release",
			map[string]any{"platform": rec.Platform, "version": rec.Version})
	}
	if len(rows) == 0 || rows[0]["id"] == nil {
		return "?", nil
	}
	return formatID(rows[0]["id"]), nil
}

// Latest returns the record flagged latest for platform, or nil.
func (c *Client) Latest(ctx context.Context, platform domain.Platform) (*domain.Record, error) {
	q := url.Values{}
	q.Set("platform", "eq."+string(platform))
	q.Set("is_latest", "eq.true")
	q.Set("select", "*")
	q.Set("order", "released_at.desc")
	q.Set("limit", "1")

	// released_at may lack a zone when rows were written by older tools.
	var rows []struct {
		domain.Record
		ReleasedAt string `json:"released_at"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, query: q, out: &rows, accept: []int{http.StatusOK}}); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeDatabase, "failed to read latest release",
			map[string]any{"platform": platform})
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].Record
	rec.ReleasedAt = parseTimestamp(rows[0].ReleasedAt)
	return &rec, nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// PublishResult describes an inserted record.
type PublishResult struct {
	ID     string
	Record domain.Record
}

// Publish records entry with downloadURL. It returns ErrAlreadyExists when
// the version is already present. When the entry is latest, the previous
// latest flag is cleared first; a failure there is logged and the record is
// still inserted, since the artifact is already uploaded.
func (c *Client) Publish(ctx context.Context, entry domain.Entry, downloadURL, fileName string) (*PublishResult, error) {
	exists, err := c.Exists(ctx, entry.Platform, entry.Version)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", entry, ErrAlreadyExists)
	}

	if entry.IsLatest {
		if err := c.UnsetLatest(ctx, entry.Platform); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("could not clear previous latest release, inserting anyway",
				"platform", entry.Platform, "error", err)
		}
	}

	rec := domain.NewRecord(entry, downloadURL, c.opts.Now().UTC())
	rec.FileName = fileName
	id, err := c.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}

	c.logger.Info("release published", "release", entry.String(), "id", id)
	return &PublishResult{ID: id, Record: rec}, nil
}

// request describes one call to the table endpoint.
type request struct {
	method  string
	query   url.Values
	body    any
	headers map[string]string
	out     any
	accept  []int

	// committed is consulted before every retry. Returning true ends the
	// call successfully without sending the request again.
	committed func(ctx context.Context) (bool, error)
}

// do performs a request with retries on network errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, r request) error {
	method := r.method
	target := c.endpoint
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to encode request body")
		}
	}

	attempt := 0
	done := false
	operation := func() ([]byte, error) {
		attempt++
		if attempt > 1 && r.committed != nil {
			ok, err := r.committed(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, backoff.Permanent(ctx.Err())
				}
				return nil, &errors.PlatformError{
					Code: errors.CodeDatabase, Message: "could not verify previous " + method, Cause: err, Retryable: true,
				}
			}
			if ok {
				done = true
				return nil, nil
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, errors.CodeInternal, "failed to build request"))
		}
		req.Header.Set("apikey", c.serviceKey)
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("Accept", "application/json")
		if r.body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, &errors.PlatformError{
				Code: errors.CodeNetwork, Message: method + " request failed", Cause: err, Retryable: true,
			}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &errors.PlatformError{
				Code: errors.CodeNetwork, Message: "failed to read response", Cause: err, Retryable: true,
			}
		}

		for _, code := range r.accept {
			if resp.StatusCode == code {
				return data, nil
			}
		}

		statusErr := statusError(method, resp.StatusCode, data)
		if statusErr.Retryable {
			c.logger.Debug("registry request failed, retrying",
				"method", method, "status", resp.StatusCode, "attempt", attempt)
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialBackoff
	policy.MaxElapsedTime = 0
	var b backoff.BackOff = policy
	if c.opts.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries))
	}

	data, err := backoff.RetryWithData(operation, backoff.WithContext(b, ctx))
	if err != nil {
		return err
	}

	if done {
		return nil
	}
	if r.out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, r.out); err != nil {
			return errors.Wrap(err, errors.CodeDatabase, "failed to decode response")
		}
	}
	return nil
}

func statusError(method string, status int, body []byte) *errors.PlatformError {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}

	code := errors.CodeDatabase
	retryable := false
	switch {
	case status == http.StatusTooManyRequests:
		code, retryable = errors.CodeRateLimit, true
	case status >= 500:
		code, retryable = errors.CodeUnavailable, true
	case status == http.StatusUnauthorized:
		code = errors.CodeUnauthorized
	case status == http.StatusForbidden:
		code = errors.CodeForbidden
	case status == http.StatusConflict:
		code = errors.CodeConflict
	}

	return &errors.PlatformError{
		Code:      code,
		Message:   fmt.Sprintf("%s returned %d", method, status),
		Context:   map[string]any{"status": status, "body": text},
		Retryable: retryable,
	}
}

func formatID(v any) string {
	switch id := v.(type) {
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprint(id)
	default:
		return fmt.Sprint(id)
	}
}
