// Package gitsync commits and pushes pending website changes before a
// release run.
package gitsync

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/executor"
	"github.com/input-output-hk/catalyst-forge-release/git"
	"github.com/input-output-hk/catalyst-forge-release/internal/config"
)

// Defaults applied by New for zero options.
const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultPushTimeout   = 2 * time.Minute
	DefaultCommitTimeout = 30 * time.Second
	DefaultMaxChanges    = 10
	DefaultMaxCommits    = 5
)

// Options configures a Syncer.
type Options struct {
	Repo *git.Repo

	// Runner runs the git CLI for fetch and push, so credential helpers
	// configured by the user apply.
	Runner executor.Runner
	Dir    string

	Remote     string
	Branch     string
	Message    string
	Author     git.Signature
	ExtraPaths []string

	FetchTimeout  time.Duration
	PushTimeout   time.Duration
	CommitTimeout time.Duration
	MaxChanges    int
	MaxCommits    int

	DryRun bool
	Logger *slog.Logger
}

// Result describes what a sync did.
type Result struct {
	Branch        string
	Changes       []git.Change
	Unpushed      []git.CommitInfo
	UnpushedTotal int
	Staged        []string
	Commit        string
	Pushed        bool
	UpToDate      bool
	DryRun        bool
}

// Syncer stages, commits and pushes the working tree.
type Syncer struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns a Syncer.
func New(opts Options) (*Syncer, error) {
	if opts.Repo == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "git sync requires a repository")
	}
	if opts.Runner == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "git sync requires a command runner")
	}
	if err := config.ValidateCommitMessage(opts.Message); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid commit message")
	}
	if opts.Remote == "" {
		opts.Remote = git.DefaultRemoteName
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = DefaultCommitTimeout
	}
	if opts.MaxChanges <= 0 {
		opts.MaxChanges = DefaultMaxChanges
	}
	if opts.MaxCommits <= 0 {
		opts.MaxCommits = DefaultMaxCommits
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{opts: opts, logger: logger}, nil
}

// FromConfig opens the repository containing the workspace root and builds
// a Syncer that uses the git binary on PATH.
func FromConfig(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (*Syncer, error) {
	root, err := FindRoot(cfg.Workspace.Root)
	if err != nil {
		return nil, err
	}
	repo, err := git.Open(ctx, &git.Options{FS: osfs.New(root)})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "could not open git repository")
	}
	return New(Options{
		Repo:          repo,
		Runner:        executor.NewProgram("git"),
		Dir:           root,
		Remote:        cfg.Git.Remote,
		Branch:        cfg.Git.Branch,
		Message:       cfg.Git.CommitMessage,
		Author:        git.Signature{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail},
		ExtraPaths:    cfg.Git.ExtraPaths,
		FetchTimeout:  cfg.FetchTimeout(),
		PushTimeout:   cfg.PushTimeout(),
		CommitTimeout: cfg.CommitTimeout(),
		MaxChanges:    cfg.Git.MaxChanges,
		MaxCommits:    cfg.Git.MaxCommits,
		DryRun:        dryRun,
		Logger:        logger,
	})
}

// FindRoot returns the nearest directory at or above dir that contains a
// .git entry.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput, "resolve workspace root")
	}
	for current := abs; ; {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", errors.Wrap(git.ErrNotRepository, errors.CodeNotFound, "no git repository above "+abs)
		}
		current = parent
	}
}

// Sync commits tracked changes and pushes the current branch. A clean tree
// with nothing to push returns a Result with UpToDate set.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	repo := s.opts.Repo
	result := &Result{DryRun: s.opts.DryRun}

	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConflict, "cannot sync without a checked out branch")
	}
	result.Branch = branch
	if s.opts.Branch != "" && branch != s.opts.Branch {
		s.logger.Warn("current branch differs from configured branch", "current", branch, "configured", s.opts.Branch)
	}

	s.logger.Info("checking git status")
	result.Changes, err = repo.Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionFailed, "git status failed")
	}

	s.fetch(ctx, branch)
	result.Unpushed, result.UnpushedTotal, err = repo.Unpushed(ctx, s.opts.Remote, branch, s.opts.MaxCommits)
	if err != nil {
		if !stderrors.Is(err, git.ErrBranchMissing) {
			return nil, errors.Wrap(err, errors.CodeExecutionFailed, "could not list unpushed commits")
		}
		s.logger.Warn("no remote-tracking branch, skipping unpushed check", "ref", s.opts.Remote+"/"+branch)
	}

	if len(result.Changes) == 0 && result.UnpushedTotal == 0 {
		s.logger.Info("repository is up to date")
		result.UpToDate = true
		return result, nil
	}
	s.report(result)

	if s.opts.DryRun {
		s.logger.Info("dry run: not committing or pushing",
			"changes", len(result.Changes), "unpushed", result.UnpushedTotal)
		return result, nil
	}

	if len(result.Changes) > 0 {
		if err := s.commit(ctx, result); err != nil {
			return result, err
		}
	}
	if result.Commit == "" && result.UnpushedTotal == 0 {
		s.logger.Info("nothing to push")
		result.UpToDate = true
		return result, nil
	}

	if err := s.push(ctx, branch); err != nil {
		return result, err
	}
	result.Pushed = true
	return result, nil
}

func (s *Syncer) fetch(ctx context.Context, branch string) {
	_, err := s.opts.Runner.Run(ctx, []string{"fetch", s.opts.Remote, branch},
		executor.WithWorkingDir(s.opts.Dir),
		executor.WithTimeout(s.opts.FetchTimeout),
		executor.SilentMode(),
	)
	if err != nil {
		if errors.HasCode(err, errors.CodeTimeout) {
			s.logger.Warn("git fetch timed out, unpushed list may be stale", "timeout", s.opts.FetchTimeout)
			return
		}
		s.logger.Warn("git fetch failed, unpushed list may be stale", "error", err)
	}
}

func (s *Syncer) report(result *Result) {
	if len(result.Changes) > 0 {
		lines := make([]string, len(result.Changes))
		for i, c := range result.Changes {
			lines[i] = c.String()
		}
		s.logger.Info("uncommitted changes", "count", len(result.Changes))
		for _, line := range Truncate(lines, len(lines), s.opts.MaxChanges) {
			s.logger.Info("  " + line)
		}
	}
	if result.UnpushedTotal > 0 {
		lines := make([]string, len(result.Unpushed))
		for i, c := range result.Unpushed {
			lines[i] = c.String()
		}
		s.logger.Info("unpushed commits", "count", result.UnpushedTotal)
		for _, line := range Truncate(lines, result.UnpushedTotal, s.opts.MaxCommits) {
			s.logger.Info("  " + line)
		}
	}
}

func (s *Syncer) commit(ctx context.Context, result *Result) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CommitTimeout)
	defer cancel()

	staged, err := s.opts.Repo.StageTracked(ctx, s.opts.ExtraPaths...)
	if err != nil {
		return errors.Wrap(err, errors.CodeExecutionFailed, "could not stage changes")
	}
	result.Staged = staged
	if len(staged) == 0 {
		s.logger.Info("only untracked files changed, nothing to commit")
		return nil
	}

	author, err := s.author()
	if err != nil {
		return err
	}

	s.logger.Info("committing changes", "files", len(staged), "message", s.opts.Message)
	hash, err := s.opts.Repo.Commit(ctx, s.opts.Message, author)
	if err != nil {
		if stderrors.Is(err, git.ErrNothingToCommit) {
			s.logger.Info("no staged changes to commit")
			return nil
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.Wrapf(err, errors.CodeTimeout, "git commit timed out after %s", s.opts.CommitTimeout)
		}
		return errors.Wrap(err, errors.CodeExecutionFailed, "git commit failed")
	}
	result.Commit = hash
	s.logger.Info("committed", "commit", shortHash(hash))
	return nil
}

func (s *Syncer) author() (git.Signature, error) {
	if s.opts.Author.Name != "" && s.opts.Author.Email != "" {
		return s.opts.Author, nil
	}
	sig, err := s.opts.Repo.Identity()
	if err != nil {
		if stderrors.Is(err, git.ErrNoIdentity) {
			return git.Signature{}, errors.Wrap(err, errors.CodeInvalidConfig,
				"no commit author; set user.name and user.email in git or [git] author_name and author_email")
		}
		return git.Signature{}, errors.Wrap(err, errors.CodeExecutionFailed, "could not read git identity")
	}
	return sig, nil
}

func (s *Syncer) push(ctx context.Context, branch string) error {
	s.logger.Info("pushing", "remote", s.opts.Remote, "branch", branch)
	res, err := s.opts.Runner.Run(ctx, []string{"push", s.opts.Remote, branch},
		executor.WithWorkingDir(s.opts.Dir),
		executor.WithTimeout(s.opts.PushTimeout),
		executor.SilentMode(),
	)
	if err != nil {
		if errors.HasCode(err, errors.CodeTimeout) {
			return errors.Wrapf(err, errors.CodeTimeout, "git push timed out after %s", s.opts.PushTimeout)
		}
		detail := ""
		if res != nil {
			detail = strings.TrimSpace(res.Stderr)
		}
		return errors.WrapWithContext(err, errors.CodeExecutionFailed, "git push failed",
			map[string]any{"remote": s.opts.Remote, "branch": branch, "stderr": detail})
	}
	s.logger.Info("pushed to remote", "remote", s.opts.Remote, "branch", branch)
	return nil
}

// Truncate returns at most limit of lines, followed by "... and N more"
// when total exceeds the lines shown.
func Truncate(lines []string, total, limit int) []string {
	shown := lines
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	out := append([]string(nil), shown...)
	if total > len(shown) {
		out = append(out, fmt.Sprintf("... and %d more", total-len(shown)))
	}
	return out
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
