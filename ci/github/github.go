// Package github dispatches GitHub Actions workflows and collects the
// artifacts of their runs over the REST API.
package github

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/input-output-hk/catalyst-forge-release/ci/transfer"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/poll"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	// DefaultPollInterval is the run status poll interval.
	DefaultPollInterval = 20 * time.Second

	// DefaultTimeout is the run wait budget.
	DefaultTimeout = 40 * time.Minute

	// clockSkew is subtracted from the dispatch time when matching runs.
	clockSkew = 2 * time.Minute

	apiVersion = "2022-11-28"
)

// Run is a workflow run.
type Run struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HeadBranch string    `json:"head_branch"`
	Event      string    `json:"event"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Terminal reports whether the run completed.
func (r *Run) Terminal() bool {
	return r.Status == "completed"
}

// Succeeded reports whether the run completed successfully.
func (r *Run) Succeeded() bool {
	return r.Terminal() && r.Conclusion == "success"
}

// Artifact is an uploaded run artifact.
type Artifact struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	SizeInBytes        int64  `json:"size_in_bytes"`
	Expired            bool   `json:"expired"`
	ArchiveDownloadURL string `json:"archive_download_url"`
}

// Options configures a Client.
type Options struct {
	APIURL string
	Owner  string
	Repo   string

	// Token authenticates API calls. Anonymous access is rate limited and
	// cannot dispatch workflows.
	Token string

	PollInterval         time.Duration
	Timeout              time.Duration
	MaxConsecutiveErrors int

	// HTTPClient is used for unauthenticated artifact downloads after the
	// API redirects to blob storage, and as the base transport.
	HTTPClient *http.Client
	NewTracker transfer.NewTracker
	Logger     *slog.Logger
}

// Client is a GitHub Actions REST client bound to one repository.
type Client struct {
	api    *http.Client
	plain  *http.Client
	base   string
	opts   Options
	logger *slog.Logger
}

// New creates a Client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "github owner and repo are required")
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	plain := opts.HTTPClient
	if plain == nil {
		plain = &http.Client{}
	}

	api := plain
	if opts.Token != "" {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, plain)
		api = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api:    api,
		plain:  plain,
		base:   fmt.Sprintf("%s/repos/%s/%s", strings.TrimRight(opts.APIURL, "/"), url.PathEscape(opts.Owner), url.PathEscape(opts.Repo)),
		opts:   opts,
		logger: logger,
	}, nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}
	target := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		target = c.base + endpoint
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to build request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, body, out any, accepted ...int) error {
	req, err := c.request(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.api.Do(req)
	if err != nil {
		return &errors.PlatformError{Code: errors.CodeNetwork, Message: method + " " + endpoint + " failed", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	if err := transfer.CheckStatus(resp, method+" "+endpoint, accepted...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.CodeExecutionFailed, "failed to decode github response")
	}
	return nil
}

// Dispatch triggers workflow on ref with inputs.
func (c *Client) Dispatch(ctx context.Context, workflow, ref string, inputs map[string]string) error {
	body := map[string]any{"ref": ref}
	if len(inputs) > 0 {
		body["inputs"] = inputs
	}
	endpoint := "/actions/workflows/" + url.PathEscape(workflow) + "/dispatches"
	if err := c.call(ctx, http.MethodPost, endpoint, body, nil, http.StatusNoContent, http.StatusOK); err != nil {
		return errors.Wrapf(err, errors.CodeBuildFailed, "failed to dispatch workflow %s", workflow)
	}
	c.logger.Info("workflow dispatched", "workflow", workflow, "ref", ref)
	return nil
}

func (c *Client) listRuns(ctx context.Context, workflow, ref string) ([]Run, error) {
	q := url.Values{}
	q.Set("branch", ref)
	q.Set("event", "workflow_dispatch")
	q.Set("per_page", "20")
	endpoint := "/actions/workflows/" + url.PathEscape(workflow) + "/runs?" + q.Encode()

	var page struct {
		WorkflowRuns []Run `json:"workflow_runs"`
	}
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return page.WorkflowRuns, nil
}

// RunIDs returns the IDs of the recent workflow_dispatch runs of workflow on
// ref. Record them before a dispatch and pass them to FindRun so a run that
// already existed is never mistaken for the new one.
func (c *Client) RunIDs(ctx context.Context, workflow, ref string) (map[int64]bool, error) {
	runs, err := c.listRuns(ctx, workflow, ref)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeBuildFailed, "failed to list runs of %s", workflow)
	}
	ids := make(map[int64]bool, len(runs))
	for _, run := range runs {
		ids[run.ID] = true
	}
	return ids, nil
}

// FindRun returns the newest workflow_dispatch run of workflow on ref
// created at or after since and not in known, or nil when none exists yet.
func (c *Client) FindRun(ctx context.Context, workflow, ref string, since time.Time, known map[int64]bool) (*Run, error) {
	runs, err := c.listRuns(ctx, workflow, ref)
	if err != nil {
		return nil, err
	}

	cutoff := since.Add(-clockSkew)
	var newest *Run
	for i := range runs {
		run := &runs[i]
		if known[run.ID] || run.CreatedAt.Before(cutoff) {
			continue
		}
		if newest == nil || run.CreatedAt.After(newest.CreatedAt) {
			newest = run
		}
	}
	return newest, nil
}

// Run reads workflow run id.
func (c *Client) Run(ctx context.Context, id int64) (*Run, error) {
	var run Run
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/actions/runs/%d", id), nil, &run, http.StatusOK); err != nil {
		return nil, err
	}
	return &run, nil
}

// AwaitRun waits for the run started by a dispatch at since to appear.
// known holds the run IDs listed before the dispatch.
func (c *Client) AwaitRun(ctx context.Context, workflow, ref string, since time.Time, known map[int64]bool) (*Run, error) {
	return poll.Until(ctx, poll.Options{
		Interval:             min(c.opts.PollInterval, 5*time.Second),
		Timeout:              2 * time.Minute,
		MaxConsecutiveErrors: c.opts.MaxConsecutiveErrors,
		Logger:               c.logger,
		Name:                 "workflow run lookup",
	}, func(ctx context.Context) (*Run, bool, error) {
		run, err := c.FindRun(ctx, workflow, ref, since, known)
		if err != nil {
			return nil, false, err
		}
		return run, run != nil, nil
	})
}

// Wait polls run id until it completes. A run that does not conclude with
// success is an error.
func (c *Client) Wait(ctx context.Context, id int64) (*Run, error) {
	run, err := poll.Until(ctx, poll.Options{
		Interval:             c.opts.PollInterval,
		Timeout:              c.opts.Timeout,
		MaxConsecutiveErrors: c.opts.MaxConsecutiveErrors,
		Logger:               c.logger,
		Name:                 fmt.Sprintf("workflow run %d", id),
		OnTick: func(attempt int, elapsed time.Duration) {
			c.logger.Info("waiting for workflow run", "run_id", id, "attempt", attempt,
				"elapsed", elapsed.Round(time.Second))
		},
	}, func(ctx context.Context) (*Run, bool, error) {
		r, err := c.Run(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return r, r.Terminal(), nil
	})
	if err != nil {
		return run, err
	}
	if !run.Succeeded() {
		return run, errors.Newf(errors.CodeBuildFailed, "workflow run %d concluded %q (%s)", id, run.Conclusion, run.HTMLURL)
	}
	return run, nil
}

// Artifacts lists the artifacts of run id.
func (c *Client) Artifacts(ctx context.Context, id int64) ([]Artifact, error) {
	var page struct {
		Artifacts []Artifact `json:"artifacts"`
	}
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/actions/runs/%d/artifacts?per_page=100", id), nil, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return page.Artifacts, nil
}

// SelectArtifact picks the artifact called name, or the only unexpired
// artifact when name is empty.
func SelectArtifact(artifacts []Artifact, name string) (*Artifact, error) {
	var live []Artifact
	for _, a := range artifacts {
		if a.Expired {
			continue
		}
		if name != "" && a.Name == name {
			return &a, nil
		}
		live = append(live, a)
	}
	if name == "" && len(live) == 1 {
		return &live[0], nil
	}
	if name != "" {
		return nil, errors.Newf(errors.CodeNotFound, "artifact %q not found", name)
	}
	return nil, errors.Newf(errors.CodeNotFound, "expected one artifact, found %d", len(live))
}

// DownloadArtifact downloads the artifact archive and extracts the first
// member whose base name matches pattern into dest. It returns the member
// name.
func (c *Client) DownloadArtifact(ctx context.Context, artifact Artifact, pattern, dest string) (string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return "", errors.Wrapf(err, errors.CodeInvalidConfig, "invalid artifact pattern %q", pattern)
	}
	location, authenticated, err := c.artifactLocation(ctx, artifact)
	if err != nil {
		return "", err
	}
	httpClient := c.plain
	if authenticated {
		httpClient = c.api
	}

	archive, err := os.CreateTemp(filepath.Dir(dest), ".artifact-*.zip")
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create temporary archive")
	}
	archivePath := archive.Name()
	_ = archive.Close()
	defer os.Remove(archivePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to build request")
	}
	if _, err := transfer.Download(ctx, httpClient, req, archivePath, c.opts.NewTracker); err != nil {
		return "", err
	}
	return extractMember(archivePath, pattern, dest)
}

// artifactLocation resolves the pre-signed storage URL the API redirects
// to, so the token is never forwarded to the storage host. When the API
// serves the archive itself the location is the API URL and must be fetched
// with the authenticated client.
func (c *Client) artifactLocation(ctx context.Context, artifact Artifact) (string, bool, error) {
	req, err := c.request(ctx, http.MethodGet, artifact.ArchiveDownloadURL, nil)
	if err != nil {
		return "", false, err
	}
	noFollow := *c.api
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noFollow.Do(req)
	if err != nil {
		return "", false, &errors.PlatformError{Code: errors.CodeNetwork, Message: "artifact download request failed", Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusFound, http.StatusMovedPermanently, http.StatusTemporaryRedirect, http.StatusSeeOther:
		location := resp.Header.Get("Location")
		if location == "" {
			return "", false, errors.New(errors.CodeExecutionFailed, "artifact redirect carried no location")
		}
		return location, false, nil
	case http.StatusOK:
		return artifact.ArchiveDownloadURL, true, nil
	}
	return "", false, transfer.CheckStatus(resp, "download artifact "+artifact.Name, http.StatusFound)
}

func extractMember(archivePath, pattern, dest string) (string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeExecutionFailed, "artifact is not a zip archive")
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		ok, err := path.Match(pattern, path.Base(file.Name))
		if err != nil {
			return "", errors.Wrapf(err, errors.CodeInvalidConfig, "invalid artifact pattern %q", pattern)
		}
		if !ok {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", errors.Wrapf(err, errors.CodeExecutionFailed, "open %s", file.Name)
		}
		_, err = transfer.WriteAtomic(dest, rc, int64(file.UncompressedSize64), nil)
		_ = rc.Close()
		if err != nil {
			return "", err
		}
		return file.Name, nil
	}
	return "", errors.Newf(errors.CodeNotFound, "no artifact member matches %q", pattern)
}
