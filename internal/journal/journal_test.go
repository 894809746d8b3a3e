package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return store
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	runID, err := store.BeginRun(ctx, false, 2)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	entry := domain.Entry{Version: "1.3.7", Platform: domain.PlatformDesktopWindows}
	require.NoError(t, store.RecordOutcome(ctx, runID, domain.Outcome{
		Entry:       entry,
		Status:      domain.OutcomePublished,
		Stage:       domain.StageDone,
		DownloadURL: "https://example.com/app.exe",
		Uploaded:    true,
		Published:   true,
		Duration:    1500 * time.Millisecond,
	}))
	require.NoError(t, store.RecordOutcome(ctx, runID, domain.Outcome{
		Entry:  domain.Entry{Version: "1.0.6", Platform: domain.PlatformExtension},
		Status: domain.OutcomeFailed,
		Stage:  domain.StageUpload,
		Detail: "upload failed",
	}))
	require.NoError(t, store.FinishRun(ctx, runID, domain.Summary{Uploaded: 1, Published: 1, Failed: 1}))

	runs, err := store.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.True(t, runs[0].Finished())
	assert.Equal(t, 2, runs[0].Entries)
	assert.Equal(t, domain.Summary{Uploaded: 1, Published: 1, Failed: 1}, runs[0].Summary)
	assert.True(t, runs[0].FinishedAt.After(runs[0].StartedAt))

	history, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.PlatformExtension, history[0].Platform, "newest first")
	assert.Equal(t, domain.OutcomeFailed, history[0].Status)
	assert.Equal(t, domain.StageUpload, history[0].Stage)
	assert.Equal(t, "upload failed", history[0].Detail)
	assert.Empty(t, history[0].DownloadURL)

	assert.Equal(t, "1.3.7", history[1].Version)
	assert.Equal(t, "https://example.com/app.exe", history[1].DownloadURL)
	assert.Equal(t, 1500*time.Millisecond, history[1].Duration)
	assert.False(t, history[1].DryRun)
}

func TestHistoryLimitAndRunOrder(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first, err := store.BeginRun(ctx, true, 1)
	require.NoError(t, err)
	second, err := store.BeginRun(ctx, false, 1)
	require.NoError(t, err)
	for _, id := range []string{first, second, second} {
		require.NoError(t, store.RecordOutcome(ctx, id, domain.Outcome{
			Entry:  domain.Entry{Version: "1.0.0", Platform: domain.PlatformMobileIOS},
			Status: domain.OutcomeDryRun,
			Stage:  domain.StageResolve,
		}))
	}

	history, err := store.History(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	runs, err := store.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.False(t, runs[0].Finished())
	assert.True(t, runs[1].DryRun)
}

func TestRunsOrderBySubsecondStart(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	later := base.Add(500 * time.Millisecond)

	store.now = func() time.Time { return later }
	newer, err := store.BeginRun(ctx, false, 1)
	require.NoError(t, err)
	store.now = func() time.Time { return base }
	older, err := store.BeginRun(ctx, false, 1)
	require.NoError(t, err)

	runs, err := store.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer, runs[0].ID)
	assert.Equal(t, older, runs[1].ID)
	assert.True(t, later.Equal(runs[0].StartedAt))
	assert.True(t, base.Equal(runs[1].StartedAt))
}

func TestFinishUnknownRun(t *testing.T) {
	store := openTestStore(t)
	err := store.FinishRun(context.Background(), "missing", domain.Summary{})
	assert.Error(t, err)
}

func TestRecordOutcomeRequiresRun(t *testing.T) {
	store := openTestStore(t)
	err := store.RecordOutcome(context.Background(), "missing", domain.Outcome{
		Entry: domain.Entry{Version: "1.0.0", Platform: domain.PlatformMobileIOS},
	})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.BeginRun(ctx, false, 0)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
