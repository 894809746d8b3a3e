// Package eas drives Expo Application Services builds and store
// submissions through the eas CLI.
package eas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/input-output-hk/catalyst-forge-release/ci/transfer"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/executor"
	"github.com/input-output-hk/catalyst-forge-release/internal/poll"
)

const (
	// DefaultPollInterval is the build status poll interval.
	DefaultPollInterval = 30 * time.Second

	// DefaultTimeout is the build wait budget.
	DefaultTimeout = 45 * time.Minute

	// TokenEnv is the environment variable the eas CLI reads its token from.
	TokenEnv = "EXPO_TOKEN"
)

// Build statuses reported by eas build:view.
const (
	StatusNew           = "NEW"
	StatusInQueue       = "IN_QUEUE"
	StatusInProgress    = "IN_PROGRESS"
	StatusPendingCancel = "PENDING_CANCEL"
	StatusFinished      = "FINISHED"
	StatusErrored       = "ERRORED"
	StatusCanceled      = "CANCELED"
)

// Build is the subset of an EAS build record the release flow needs.
type Build struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion"`
	Artifacts  struct {
		BuildURL              string `json:"buildUrl"`
		ApplicationArchiveURL string `json:"applicationArchiveUrl"`
	} `json:"artifacts"`
	Error *struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	} `json:"error"`
}

// Terminal reports whether the build can no longer change state.
func (b *Build) Terminal() bool {
	switch strings.ToUpper(b.Status) {
	case StatusFinished, StatusErrored, StatusCanceled:
		return true
	}
	return false
}

// Succeeded reports whether the build finished successfully.
func (b *Build) Succeeded() bool {
	return strings.ToUpper(b.Status) == StatusFinished
}

// ArtifactURL returns the download URL of the build output.
func (b *Build) ArtifactURL() string {
	if b.Artifacts.BuildURL != "" {
		return b.Artifacts.BuildURL
	}
	return b.Artifacts.ApplicationArchiveURL
}

// Options configures a Client.
type Options struct {
	// Runner executes the eas binary. Defaults to executor.NewProgram(Binary).
	Runner executor.Runner
	Binary string

	// Dir is the Expo project directory.
	Dir string

	Profile       string
	SubmitProfile string

	// Token is exported as EXPO_TOKEN when set.
	Token string

	PollInterval         time.Duration
	Timeout              time.Duration
	MaxConsecutiveErrors int

	HTTPClient *http.Client
	NewTracker transfer.NewTracker
	Logger     *slog.Logger
}

// Client wraps the eas CLI.
type Client struct {
	runner executor.Runner
	opts   Options
	logger *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Binary == "" {
		opts.Binary = "eas"
	}
	if opts.Profile == "" {
		opts.Profile = "production"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	runner := opts.Runner
	if runner == nil {
		runner = executor.NewProgram(opts.Binary)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{runner: runner, opts: opts, logger: logger}
}

func (c *Client) run(ctx context.Context, args ...string) (*executor.Result, error) {
	opts := []executor.Option{executor.SilentMode()}
	if c.opts.Dir != "" {
		opts = append(opts, executor.WithWorkingDir(c.opts.Dir))
	}
	if c.opts.Token != "" {
		opts = append(opts, executor.WithEnvVar(TokenEnv, c.opts.Token))
	}
	return c.runner.Run(ctx, args, opts...)
}

// Trigger starts a build for platform ("ios" or "android") without waiting
// for it.
func (c *Client) Trigger(ctx context.Context, platform string) (*Build, error) {
	res, err := c.run(ctx, "build",
		"--platform", platform,
		"--profile", c.opts.Profile,
		"--non-interactive", "--no-wait", "--json")
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeBuildFailed, "eas build for %s failed to start", platform)
	}

	builds, err := decodeBuilds(res.Output())
	if err != nil {
		return nil, err
	}
	for i := range builds {
		if builds[i].ID != "" && (builds[i].Platform == "" || strings.EqualFold(builds[i].Platform, platform)) {
			c.logger.Info("eas build queued", "platform", platform, "build_id", builds[i].ID)
			return &builds[i], nil
		}
	}
	return nil, errors.Newf(errors.CodeBuildFailed, "eas build output carried no %s build id", platform)
}

// Status reads the current state of build id.
func (c *Client) Status(ctx context.Context, id string) (*Build, error) {
	res, err := c.run(ctx, "build:view", id, "--json")
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeExecutionFailed, "eas build:view %s failed", id)
	}
	builds, err := decodeBuilds(res.Output())
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, errors.Newf(errors.CodeNotFound, "eas build %s not found", id)
	}
	return &builds[0], nil
}

// Wait polls build id until it reaches a terminal status. A build that
// ends in any status but FINISHED is an error.
func (c *Client) Wait(ctx context.Context, id string) (*Build, error) {
	start := time.Now()
	build, err := poll.Until(ctx, poll.Options{
		Interval:             c.opts.PollInterval,
		Timeout:              c.opts.Timeout,
		MaxConsecutiveErrors: c.opts.MaxConsecutiveErrors,
		Logger:               c.logger,
		Name:                 "eas build " + id,
		OnTick: func(attempt int, elapsed time.Duration) {
			c.logger.Info("waiting for eas build", "build_id", id, "attempt", attempt,
				"elapsed", elapsed.Round(time.Second))
		},
	}, func(ctx context.Context) (*Build, bool, error) {
		b, err := c.Status(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return b, b.Terminal(), nil
	})
	if err != nil {
		return build, err
	}
	if !build.Succeeded() {
		msg := fmt.Sprintf("eas build %s ended with status %s", id, build.Status)
		if build.Error != nil && build.Error.Message != "" {
			msg += ": " + build.Error.Message
		}
		return build, errors.New(errors.CodeBuildFailed, msg)
	}
	c.logger.Info("eas build finished", "build_id", id, "duration", time.Since(start).Round(time.Second))
	return build, nil
}

// Download fetches the build artifact into dest.
func (c *Client) Download(ctx context.Context, build *Build, dest string) (int64, error) {
	url := build.ArtifactURL()
	if url == "" {
		return 0, errors.Newf(errors.CodeNotFound, "eas build %s has no artifact url", build.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInvalidInput, "invalid artifact url")
	}
	return transfer.Download(ctx, c.opts.HTTPClient, req, dest, c.opts.NewTracker)
}

// Submit sends build id to the platform's store.
func (c *Client) Submit(ctx context.Context, platform, id string) error {
	args := []string{"submit", "--platform", platform, "--id", id, "--non-interactive"}
	if c.opts.SubmitProfile != "" {
		args = append(args, "--profile", c.opts.SubmitProfile)
	}
	if _, err := c.run(ctx, args...); err != nil {
		return errors.Wrapf(err, errors.CodeSubmitFailed, "eas submit of %s build %s failed", platform, id)
	}
	c.logger.Info("submitted to store", "platform", platform, "build_id", id)
	return nil
}

// decodeBuilds accepts either a single build object or an array.
func decodeBuilds(out string) ([]Build, error) {
	doc := transfer.ExtractJSON(out)
	if doc == "" {
		return nil, errors.New(errors.CodeExecutionFailed, "eas produced no JSON output")
	}
	if strings.HasPrefix(doc, "[") {
		var builds []Build
		if err := json.Unmarshal([]byte(doc), &builds); err != nil {
			return nil, errors.Wrap(err, errors.CodeExecutionFailed, "failed to decode eas output")
		}
		return builds, nil
	}
	var build Build
	if err := json.Unmarshal([]byte(doc), &build); err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionFailed, "failed to decode eas output")
	}
	return []Build{build}, nil
}
