package git

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthor = Signature{Name: "Release Bot", Email: "release@example.com"}

type testRepo struct {
	repo *Repo
	fs   billy.Filesystem
	ctx  context.Context
}

func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	fs := memfs.New()
	repo, err := Init(context.Background(), &Options{FS: fs})
	require.NoError(t, err)
	return &testRepo{repo: repo, fs: fs, ctx: context.Background()}
}

func (tr *testRepo) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(tr.fs, path, []byte(content), 0o644))
}

func (tr *testRepo) commit(t *testing.T, msg string, files map[string]string) string {
	t.Helper()
	for path, content := range files {
		tr.write(t, path, content)
		_, err := tr.repo.worktree.Add(path)
		require.NoError(t, err)
	}
	hash, err := tr.repo.Commit(tr.ctx, msg, testAuthor)
	require.NoError(t, err)
	return hash
}

func (tr *testRepo) setRemoteBranch(t *testing.T, remote, branch, hash string) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(remote, branch), plumbing.NewHash(hash))
	require.NoError(t, tr.repo.repo.Storer.SetReference(ref))
}

func (tr *testRepo) setIdentity(t *testing.T, sig Signature) {
	t.Helper()
	cfg, err := tr.repo.repo.Config()
	require.NoError(t, err)
	cfg.User.Name = sig.Name
	cfg.User.Email = sig.Email
	require.NoError(t, tr.repo.repo.SetConfig(cfg))
}

func (tr *testRepo) head(t *testing.T) *object.Commit {
	t.Helper()
	ref, err := tr.repo.repo.Head()
	require.NoError(t, err)
	c, err := tr.repo.repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return c
}

func TestOptionsValidate(t *testing.T) {
	assert.ErrorIs(t, (&Options{}).Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, (&Options{FS: memfs.New(), StorerCacheSize: -1}).Validate(), ErrInvalidOptions)
	assert.NoError(t, (&Options{FS: memfs.New()}).Validate())
}

func TestOpen(t *testing.T) {
	t.Run("existing repository", func(t *testing.T) {
		tr := setupTestRepo(t)
		tr.commit(t, "chore: init", map[string]string{"README.md": "hi"})

		repo, err := Open(tr.ctx, &Options{FS: tr.fs})
		require.NoError(t, err)

		branch, err := repo.CurrentBranch(tr.ctx)
		require.NoError(t, err)
		assert.Equal(t, "master", branch)
	})

	t.Run("not a repository", func(t *testing.T) {
		_, err := Open(context.Background(), &Options{FS: memfs.New()})
		assert.ErrorIs(t, err, ErrNotRepository)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Open(ctx, &Options{FS: memfs.New()})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCurrentBranchUnborn(t *testing.T) {
	tr := setupTestRepo(t)

	branch, err := tr.repo.CurrentBranch(tr.ctx)
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestIdentity(t *testing.T) {
	tr := setupTestRepo(t)
	tr.setIdentity(t, testAuthor)

	sig, err := tr.repo.Identity()
	require.NoError(t, err)
	assert.Equal(t, testAuthor, sig)
}
