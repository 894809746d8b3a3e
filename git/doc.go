// Package git is a small facade over go-git covering what a release run
// needs from the local checkout: porcelain status, staging of tracked
// changes, committing, and listing commits that have not reached the
// remote yet.
//
// Repositories are opened through a billy filesystem so the same code works
// against the working tree on disk and against an in-memory tree in tests:
//
//	repo, err := git.Open(ctx, &git.Options{FS: osfs.New("/path/to/repo")})
//	if err != nil {
//	    return err
//	}
//
//	changes, err := repo.Status(ctx)
//
// Network operations are deliberately absent. Fetch and push go through the
// git binary so that the user's credential helpers and SSH agent apply.
package git
