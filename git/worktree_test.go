package git

import (
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "chore: init", map[string]string{"a.txt": "a", "b.txt": "b"})

	tr.write(t, "a.txt", "changed")
	require.NoError(t, tr.fs.Remove("b.txt"))
	tr.write(t, "new.txt", "new")

	changes, err := tr.repo.Status(tr.ctx)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	assert.Equal(t, " M a.txt", changes[0].String())
	assert.Equal(t, " D b.txt", changes[1].String())
	assert.Equal(t, "?? new.txt", changes[2].String())
	assert.True(t, changes[2].Untracked())
}

func TestStatusClean(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "chore: init", map[string]string{"a.txt": "a"})

	changes, err := tr.repo.Status(tr.ctx)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestStageTracked(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "chore: init", map[string]string{"a.txt": "a", "b.txt": "b"})

	tr.write(t, "a.txt", "changed")
	require.NoError(t, tr.fs.Remove("b.txt"))
	tr.write(t, "scratch.log", "ignored")
	tr.write(t, ".gitignore", "*.log\n")

	staged, err := tr.repo.StageTracked(tr.ctx, ".gitignore")
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "a.txt", "b.txt"}, staged)

	changes, err := tr.repo.Status(tr.ctx)
	require.NoError(t, err)
	byPath := make(map[string]Change)
	for _, c := range changes {
		byPath[c.Path] = c
	}
	assert.Equal(t, git.Added, byPath[".gitignore"].Staging)
	assert.Equal(t, git.Modified, byPath["a.txt"].Staging)
	assert.Equal(t, git.Deleted, byPath["b.txt"].Staging)
	_, tracked := byPath["scratch.log"]
	assert.False(t, tracked, "ignored file must not appear")
}

func TestStageTrackedSkipsUntracked(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "chore: init", map[string]string{"a.txt": "a"})
	tr.write(t, "untracked.txt", "x")

	staged, err := tr.repo.StageTracked(tr.ctx)
	require.NoError(t, err)
	assert.Empty(t, staged)

	has, err := tr.repo.HasStaged(tr.ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCommitNothingStaged(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "chore: init", map[string]string{"a.txt": "a"})

	_, err := tr.repo.Commit(tr.ctx, "chore: empty", testAuthor)
	assert.ErrorIs(t, err, ErrNothingToCommit)
}

func TestCommit(t *testing.T) {
	tr := setupTestRepo(t)
	tr.commit(t, "chore: init", map[string]string{"a.txt": "a"})
	tr.write(t, "a.txt", "b")

	_, err := tr.repo.StageTracked(tr.ctx)
	require.NoError(t, err)

	hash, err := tr.repo.Commit(tr.ctx, "chore: release updates\n\nbody", testAuthor)
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	head := tr.head(t)
	assert.Equal(t, hash, head.Hash.String())
	assert.Equal(t, "chore: release updates\n\nbody", head.Message)
	assert.Equal(t, "Release Bot", head.Author.Name)
}
