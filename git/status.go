package git

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
)

// Change is one entry of the working tree status.
type Change struct {
	Path     string
	Staging  git.StatusCode
	Worktree git.StatusCode
}

// String renders the change as a `git status --porcelain` line.
func (c Change) String() string {
	return fmt.Sprintf("%c%c %s", c.Staging, c.Worktree, c.Path)
}

// Untracked reports whether the path is not known to the index.
func (c Change) Untracked() bool {
	return c.Staging == git.Untracked && c.Worktree == git.Untracked
}

// Staged reports whether the index differs from HEAD for this path.
func (c Change) Staged() bool {
	return c.Staging != git.Unmodified && c.Staging != git.Untracked
}

// Status returns the changed paths sorted by name. Unmodified files are
// omitted, so an empty result means the tree is clean.
func (r *Repo) Status(ctx context.Context) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, err := r.worktree.Status()
	if err != nil {
		return nil, WrapError(err, "failed to get status")
	}

	changes := make([]Change, 0, len(st))
	for path, fs := range st {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		changes = append(changes, Change{Path: path, Staging: fs.Staging, Worktree: fs.Worktree})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}
