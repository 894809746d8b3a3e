package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-release/aws/s3"
	"github.com/input-output-hk/catalyst-forge-release/aws/s3/s3types"
	"github.com/input-output-hk/catalyst-forge-release/ci/eas"
	"github.com/input-output-hk/catalyst-forge-release/ci/github"
	"github.com/input-output-hk/catalyst-forge-release/ci/transfer"
	"github.com/input-output-hk/catalyst-forge-release/internal/artifact"
	"github.com/input-output-hk/catalyst-forge-release/internal/config"
	"github.com/input-output-hk/catalyst-forge-release/internal/journal"
	"github.com/input-output-hk/catalyst-forge-release/internal/logging"
	"github.com/input-output-hk/catalyst-forge-release/internal/progress"
	"github.com/input-output-hk/catalyst-forge-release/internal/publisher"
	"github.com/input-output-hk/catalyst-forge-release/internal/registry"
	"github.com/input-output-hk/catalyst-forge-release/secrets"
	"github.com/input-output-hk/catalyst-forge-release/secrets/providers/awssm"
	"github.com/input-output-hk/catalyst-forge-release/secrets/providers/env"
)

const mib = 1 << 20

// services holds the clients a command needs. Fields are created lazily by
// the helpers below.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	secrets *secrets.Manager
	cmd     *cobra.Command
}

func newServices(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*services, error) {
	manager, err := newSecretManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &services{cfg: cfg, logger: logger, secrets: manager, cmd: cmd}, nil
}

func (s *services) Close() error {
	return s.secrets.Close()
}

// newSecretManager registers the env provider and, when any credential
// references it, AWS Secrets Manager.
func newSecretManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*secrets.Manager, error) {
	manager := secrets.NewManager()
	if err := manager.RegisterProvider(env.New()); err != nil {
		return nil, err
	}

	refs := []string{cfg.Database.ServiceKey, cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, cfg.EAS.Token, cfg.GitHub.Token}
	for _, ref := range refs {
		if !strings.HasPrefix(ref, awssm.Name+":") {
			continue
		}
		provider, err := awssm.New(ctx, awssm.WithLogger(logging.Component(logger, "secrets")))
		if err != nil {
			return nil, fmt.Errorf("aws secrets manager: %w", err)
		}
		if err := manager.RegisterProvider(provider); err != nil {
			return nil, err
		}
		break
	}
	return manager, nil
}

// resolve returns the secret behind raw. Unset or empty secrets resolve to
// "" so callers can report them as missing with a hint.
func (s *services) resolve(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	value, err := s.secrets.ResolveString(ctx, raw)
	if err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) || errors.Is(err, secrets.ErrSecretEmpty) {
			s.logger.Debug("secret not set", "ref", s.secrets.Describe(raw))
			return "", nil
		}
		return "", fmt.Errorf("resolve %s: %w", s.secrets.Describe(raw), err)
	}
	return value, nil
}

func (s *services) credentials(ctx context.Context) (publisher.Credentials, error) {
	creds := publisher.Credentials{
		DatabaseURL:     s.cfg.Database.URL,
		StorageEndpoint: s.cfg.Storage.Endpoint,
	}
	var err error
	if creds.ServiceKey, err = s.resolve(ctx, s.cfg.Database.ServiceKey); err != nil {
		return creds, err
	}
	if creds.AccessKeyID, err = s.resolve(ctx, s.cfg.Storage.AccessKeyID); err != nil {
		return creds, err
	}
	if creds.SecretAccessKey, err = s.resolve(ctx, s.cfg.Storage.SecretAccessKey); err != nil {
		return creds, err
	}
	return creds, nil
}

func (s *services) storage(ctx context.Context, creds publisher.Credentials) (*s3.Client, error) {
	opts := []s3types.Option{
		s3.WithRegion(s.cfg.Storage.Region),
		s3.WithEndpoint(creds.StorageEndpoint),
		s3.WithStaticCredentials(creds.AccessKeyID, creds.SecretAccessKey),
	}
	if s.cfg.Storage.PartSizeMiB > 0 {
		opts = append(opts, s3.WithPartSize(int64(s.cfg.Storage.PartSizeMiB)*mib))
	}
	if s.cfg.Storage.MultipartThresholdMiB > 0 {
		opts = append(opts, s3.WithMultipartThreshold(int64(s.cfg.Storage.MultipartThresholdMiB)*mib))
	}
	return s3.New(ctx, opts...)
}

func (s *services) registry(creds publisher.Credentials) (*registry.Client, error) {
	return registry.New(registry.Options{
		BaseURL:       creds.DatabaseURL,
		ServiceKey:    creds.ServiceKey,
		Table:         s.cfg.Database.Table,
		WriteFileName: s.cfg.Database.WriteFileName,
		HTTPClient:    &http.Client{Timeout: s.cfg.DatabaseTimeout()},
		MaxRetries:    s.cfg.Database.MaxRetries,
		Logger:        logging.Component(s.logger, "registry"),
	})
}

func (s *services) easClient(ctx context.Context) (*eas.Client, error) {
	token, err := s.resolve(ctx, s.cfg.EAS.Token)
	if err != nil {
		return nil, err
	}
	return eas.New(eas.Options{
		Binary:               s.cfg.EAS.Binary,
		Dir:                  s.cfg.Resolve(s.cfg.EAS.Dir),
		Profile:              s.cfg.EAS.Profile,
		SubmitProfile:        s.cfg.EAS.SubmitProfile,
		Token:                token,
		PollInterval:         s.cfg.EASPollInterval(),
		Timeout:              s.cfg.EASTimeout(),
		MaxConsecutiveErrors: s.cfg.EAS.MaxConsecutiveErrors,
		NewTracker:           s.downloadTracker(),
		Logger:               logging.Component(s.logger, "eas"),
	}), nil
}

func (s *services) githubBuilder(ctx context.Context) (*artifact.GitHubBuilder, error) {
	if !s.cfg.GitHubEnabled() {
		return nil, nil
	}
	token, err := s.resolve(ctx, s.cfg.GitHub.Token)
	if err != nil {
		return nil, err
	}
	client, err := github.New(ctx, github.Options{
		APIURL:               s.cfg.GitHub.APIURL,
		Owner:                s.cfg.GitHub.Owner,
		Repo:                 s.cfg.GitHub.Repo,
		Token:                token,
		PollInterval:         s.cfg.GitHubPollInterval(),
		Timeout:              s.cfg.GitHubTimeout(),
		MaxConsecutiveErrors: s.cfg.GitHub.MaxConsecutiveErrors,
		NewTracker:           s.downloadTracker(),
		Logger:               logging.Component(s.logger, "github"),
	})
	if err != nil {
		return nil, err
	}
	return &artifact.GitHubBuilder{
		Client:       client,
		Workflow:     s.cfg.GitHub.Workflow,
		Ref:          s.cfg.GitHub.Ref,
		ArtifactName: s.cfg.GitHub.ArtifactName,
		Pattern:      s.cfg.GitHub.ArtifactPattern,
	}, nil
}

// resolver wires the artifact resolver with both remote builders. The EAS
// client is returned as well because it also submits to the stores.
func (s *services) resolver(ctx context.Context) (*artifact.Resolver, *eas.Client, error) {
	easClient, err := s.easClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts := artifact.Options{
		Config: s.cfg,
		EAS:    &artifact.EASBuilder{Client: easClient, Logger: logging.Component(s.logger, "eas")},
		Logger: logging.Component(s.logger, "artifact"),
	}
	gh, err := s.githubBuilder(ctx)
	if err != nil {
		return nil, nil, err
	}
	if gh != nil {
		opts.GitHub = gh
	}
	resolver, err := artifact.NewResolver(opts)
	if err != nil {
		return nil, nil, err
	}
	return resolver, easClient, nil
}

// openJournal opens the run journal. Failing to open it only loses
// history, so the error is logged and nil returned.
func (s *services) openJournal(ctx context.Context) *journal.Store {
	store, err := journal.Open(ctx, s.cfg.Workspace.JournalPath)
	if err != nil {
		s.logger.Warn("run journal unavailable", "path", s.cfg.Workspace.JournalPath, "error", err)
		return nil
	}
	return store
}

func (s *services) downloadTracker() transfer.NewTracker {
	return func(description string, total int64) transfer.Tracker {
		return s.tracker(description, total)
	}
}

func (s *services) uploadTracker() publisher.NewTracker {
	return func(description string, total int64) s3types.ProgressTracker {
		return s.tracker(description, total)
	}
}

func (s *services) tracker(description string, total int64) *progress.Tracker {
	return progress.New(total, progress.Options{
		Description: description,
		Output:      s.cmd.ErrOrStderr(),
		Logger:      s.logger,
	})
}
