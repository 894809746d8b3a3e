package git

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// maxWalk bounds history traversal on very long histories.
const maxWalk = 10000

// CommitInfo summarizes a commit for display.
type CommitInfo struct {
	Hash    string
	Subject string
	Author  string
	When    time.Time
}

// ShortHash returns the abbreviated hash.
func (c CommitInfo) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// String renders the commit like `git log --oneline`.
func (c CommitInfo) String() string {
	return c.ShortHash() + " " + c.Subject
}

// Unpushed lists commits reachable from HEAD that are not reachable from
// refs/remotes/<remote>/<branch>, newest first. The total count is returned
// alongside at most limit entries; limit <= 0 means no limit.
func (r *Repo) Unpushed(ctx context.Context, remote, branch string, limit int) ([]CommitInfo, int, error) {
	if remote == "" {
		remote = DefaultRemoteName
	}

	head, err := r.repo.Head()
	if err != nil {
		return nil, 0, WrapError(err, "failed to resolve HEAD")
	}

	remoteRef, err := r.repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, 0, WrapErrorf(ErrBranchMissing, "%s/%s", remote, branch)
		}
		return nil, 0, WrapError(err, "failed to resolve remote branch")
	}

	if head.Hash() == remoteRef.Hash() {
		return nil, 0, nil
	}

	pushed := make(map[plumbing.Hash]struct{})
	if err := r.walk(ctx, remoteRef.Hash(), func(c *object.Commit) error {
		pushed[c.Hash] = struct{}{}
		return nil
	}); err != nil {
		return nil, 0, err
	}

	var out []CommitInfo
	total := 0
	err = r.walk(ctx, head.Hash(), func(c *object.Commit) error {
		if _, ok := pushed[c.Hash]; ok {
			return nil
		}
		total++
		if limit <= 0 || len(out) < limit {
			out = append(out, toInfo(c))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) walk(ctx context.Context, from plumbing.Hash, fn func(*object.Commit) error) error {
	iter, err := r.repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return WrapError(err, "failed to read history")
	}
	defer iter.Close()

	seen := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen++
		if seen > maxWalk {
			return storer.ErrStop
		}
		return fn(c)
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return WrapError(err, "failed to walk history")
	}
	return nil
}

func toInfo(c *object.Commit) CommitInfo {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return CommitInfo{
		Hash:    c.Hash.String(),
		Subject: subject,
		Author:  c.Author.Name,
		When:    c.Author.When,
	}
}
