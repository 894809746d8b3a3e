package git

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// StageTracked stages modifications and deletions of files already in the
// index, like `git add -u`. Paths listed in extra are staged as well when
// they have any change, including being untracked. It returns the staged
// paths in order.
func (r *Repo) StageTracked(ctx context.Context, extra ...string) ([]string, error) {
	changes, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}

	var staged []string
	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return staged, err
		}
		if c.Untracked() && !slices.Contains(extra, c.Path) {
			continue
		}

		switch c.Worktree {
		case git.Unmodified:
			continue
		case git.Deleted:
			if _, err := r.worktree.Remove(c.Path); err != nil {
				return staged, WrapErrorf(err, "failed to stage removal of %s", c.Path)
			}
		default:
			if _, err := r.worktree.Add(c.Path); err != nil {
				return staged, WrapErrorf(err, "failed to stage %s", c.Path)
			}
		}
		staged = append(staged, c.Path)
	}
	return staged, nil
}

// HasStaged reports whether the index differs from HEAD.
func (r *Repo) HasStaged(ctx context.Context) (bool, error) {
	changes, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(changes, Change.Staged), nil
}

// Commit records the index as a new commit on the current branch and
// returns its hash.
func (r *Repo) Commit(ctx context.Context, msg string, sig Signature) (string, error) {
	staged, err := r.HasStaged(ctx)
	if err != nil {
		return "", err
	}
	if !staged {
		return "", ErrNothingToCommit
	}

	author := &object.Signature{Name: sig.Name, Email: sig.Email, When: time.Now()}
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{Author: author, Committer: author})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrNothingToCommit
		}
		return "", WrapError(err, "failed to commit")
	}
	return hash.String(), nil
}
