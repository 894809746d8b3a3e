package git

import (
	"errors"
	"fmt"
)

// ErrNotRepository is returned when the filesystem does not contain a
// repository.
var ErrNotRepository = errors.New("not a git repository")

// ErrBranchMissing is returned when a branch or remote-tracking ref does not
// exist.
var ErrBranchMissing = errors.New("branch does not exist")

// ErrDetachedHead is returned when HEAD does not point at a branch.
var ErrDetachedHead = errors.New("HEAD is detached")

// ErrNothingToCommit is returned when a commit is requested with an empty
// index diff.
var ErrNothingToCommit = errors.New("nothing to commit")

// ErrNoIdentity is returned when no author name or email is configured.
var ErrNoIdentity = errors.New("no git identity configured")

// ErrInvalidOptions is returned for incomplete Options.
var ErrInvalidOptions = errors.New("invalid options")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted context.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
