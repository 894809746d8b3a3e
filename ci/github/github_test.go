package github

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/logging"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeActions struct {
	t           *testing.T
	srv         *httptest.Server
	dispatched  map[string]any
	hasRun      atomic.Bool
	polls       atomic.Int32
	blobAuth    string
	archive     []byte
	conclusion  string
	runsCreated time.Time
}

func newFakeActions(t *testing.T) *fakeActions {
	f := &fakeActions{t: t, conclusion: "success", runsCreated: time.Now().UTC()}
	mux := http.NewServeMux()

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer gh-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Equal(t, apiVersion, r.Header.Get("X-GitHub-Api-Version"))
			next(w, r)
		}
	}

	mux.HandleFunc("POST /repos/acme/app/actions/workflows/build-macos.yml/dispatches", auth(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.dispatched))
		f.hasRun.Store(true)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /repos/acme/app/actions/workflows/build-macos.yml/runs", auth(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("branch"))
		assert.Equal(t, "workflow_dispatch", r.URL.Query().Get("event"))
		// Run 1 finished shortly before the dispatch, inside the clock skew
		// window. Run 2 only exists once the workflow was dispatched.
		if !f.hasRun.Load() {
			fmt.Fprintf(w, `{"workflow_runs":[{"id": 1, "status":"completed", "created_at":%q}]}`,
				f.runsCreated.Add(-90*time.Second).Format(time.RFC3339))
			return
		}
		fmt.Fprintf(w, `{"workflow_runs":[
			{"id": 2, "status":"queued", "created_at":%q},
			{"id": 1, "status":"completed", "created_at":%q}]}`,
			f.runsCreated.Format(time.RFC3339), f.runsCreated.Add(-90*time.Second).Format(time.RFC3339))
	}))
	mux.HandleFunc("GET /repos/acme/app/actions/runs/2", auth(func(w http.ResponseWriter, _ *http.Request) {
		if f.polls.Add(1) < 3 {
			_, _ = io.WriteString(w, `{"id":2,"status":"in_progress"}`)
			return
		}
		fmt.Fprintf(w, `{"id":2,"status":"completed","conclusion":%q,"html_url":"https://github.com/acme/app/actions/runs/2"}`, f.conclusion)
	}))
	mux.HandleFunc("GET /repos/acme/app/actions/runs/2/artifacts", auth(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"artifacts":[
			{"id":7,"name":"old","expired":true},
			{"id":8,"name":"macos","size_in_bytes":10,"archive_download_url":"%s/repos/acme/app/actions/artifacts/8/zip"}]}`, f.srv.URL)
	}))
	mux.HandleFunc("GET /repos/acme/app/actions/artifacts/8/zip", auth(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, f.srv.URL+"/blob/8.zip?sig=abc", http.StatusFound)
	}))
	mux.HandleFunc("GET /repos/acme/app/actions/artifacts/9/zip", auth(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(f.archive)
	}))
	mux.HandleFunc("GET /blob/8.zip", func(w http.ResponseWriter, r *http.Request) {
		f.blobAuth = r.Header.Get("Authorization")
		_, _ = w.Write(f.archive)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeActions) client(t *testing.T) *Client {
	c, err := New(context.Background(), Options{
		APIURL:       f.srv.URL,
		Owner:        "acme",
		Repo:         "app",
		Token:        "gh-token",
		PollInterval: time.Millisecond,
		Timeout:      time.Second,
		Logger:       logging.Discard(),
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresRepository(t *testing.T) {
	_, err := New(context.Background(), Options{Owner: "acme"})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func TestDispatchAndWait(t *testing.T) {
	f := newFakeActions(t)
	c := f.client(t)
	ctx := context.Background()

	known, err := c.RunIDs(ctx, "build-macos.yml", "main")
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true}, known)

	since := time.Now()
	require.NoError(t, c.Dispatch(ctx, "build-macos.yml", "main", map[string]string{"version": "1.3.7"}))
	assert.Equal(t, "main", f.dispatched["ref"])
	assert.Equal(t, map[string]any{"version": "1.3.7"}, f.dispatched["inputs"])

	run, err := c.AwaitRun(ctx, "build-macos.yml", "main", since, known)
	require.NoError(t, err)
	assert.Equal(t, int64(2), run.ID)

	run, err = c.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, run.Succeeded())
	assert.Equal(t, int32(3), f.polls.Load())
}

func TestWaitFailedConclusion(t *testing.T) {
	f := newFakeActions(t)
	f.conclusion = "failure"

	run, err := f.client(t).Wait(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeBuildFailed))
	assert.Equal(t, "failure", run.Conclusion)
}

func TestFindRunIgnoresOlderRuns(t *testing.T) {
	f := newFakeActions(t)
	run, err := f.client(t).FindRun(context.Background(), "build-macos.yml", "main", time.Now().Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestFindRunSkipsRunsListedBeforeDispatch(t *testing.T) {
	f := newFakeActions(t)
	c := f.client(t)
	ctx := context.Background()

	known, err := c.RunIDs(ctx, "build-macos.yml", "main")
	require.NoError(t, err)
	since := time.Now()

	// Without the listing, the finished run inside the skew window matches.
	run, err := c.FindRun(ctx, "build-macos.yml", "main", since, nil)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, int64(1), run.ID)

	run, err = c.FindRun(ctx, "build-macos.yml", "main", since, known)
	require.NoError(t, err)
	assert.Nil(t, run, "a run that existed before the dispatch must not match")

	require.NoError(t, c.Dispatch(ctx, "build-macos.yml", "main", nil))
	run, err = c.FindRun(ctx, "build-macos.yml", "main", since, known)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, int64(2), run.ID)
}

func TestDownloadArtifact(t *testing.T) {
	f := newFakeActions(t)
	f.archive = zipBytes(t, map[string]string{
		"README.txt":                "ignore me",
		"bundle/dmg/MineGlance.dmg": "dmg-bytes",
	})
	c := f.client(t)
	ctx := context.Background()

	artifacts, err := c.Artifacts(ctx, 2)
	require.NoError(t, err)
	artifact, err := SelectArtifact(artifacts, "")
	require.NoError(t, err)
	assert.Equal(t, "macos", artifact.Name)

	dest := filepath.Join(t.TempDir(), "mineglance-desktop-1.3.7-macos.dmg")
	member, err := c.DownloadArtifact(ctx, *artifact, "*.dmg", dest)
	require.NoError(t, err)
	assert.Equal(t, "bundle/dmg/MineGlance.dmg", member)
	assert.Empty(t, f.blobAuth, "token must not reach the storage host")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "dmg-bytes", string(data))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = c.DownloadArtifact(ctx, *artifact, "*.exe", dest+".exe")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestDownloadArtifactServedByAPI(t *testing.T) {
	f := newFakeActions(t)
	f.archive = zipBytes(t, map[string]string{"MineGlance.dmg": "dmg-bytes"})
	c := f.client(t)
	artifact := Artifact{ID: 9, Name: "macos", ArchiveDownloadURL: f.srv.URL + "/repos/acme/app/actions/artifacts/9/zip"}

	dest := filepath.Join(t.TempDir(), "app.dmg")
	member, err := c.DownloadArtifact(context.Background(), artifact, "*.dmg", dest)
	require.NoError(t, err)
	assert.Equal(t, "MineGlance.dmg", member)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "dmg-bytes", string(data))
}

func TestDownloadArtifactRejectsBadPattern(t *testing.T) {
	f := newFakeActions(t)
	f.archive = zipBytes(t, map[string]string{"MineGlance.dmg": "dmg-bytes"})
	artifact := Artifact{ID: 9, Name: "macos", ArchiveDownloadURL: f.srv.URL + "/repos/acme/app/actions/artifacts/9/zip"}

	dest := filepath.Join(t.TempDir(), "app.dmg")
	_, err := f.client(t).DownloadArtifact(context.Background(), artifact, "[", dest)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
	assert.NoFileExists(t, dest)

	archivePath := filepath.Join(t.TempDir(), "artifact.zip")
	require.NoError(t, os.WriteFile(archivePath, f.archive, 0o600))
	_, err = extractMember(archivePath, "[", dest)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func TestSelectArtifact(t *testing.T) {
	artifacts := []Artifact{{Name: "a"}, {Name: "b"}, {Name: "c", Expired: true}}

	got, err := SelectArtifact(artifacts, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	_, err = SelectArtifact(artifacts, "")
	assert.Error(t, err)

	_, err = SelectArtifact(artifacts, "c")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestUnauthorized(t *testing.T) {
	f := newFakeActions(t)
	c, err := New(context.Background(), Options{APIURL: f.srv.URL, Owner: "acme", Repo: "app", Logger: logging.Discard()})
	require.NoError(t, err)

	err = c.Dispatch(context.Background(), "build-macos.yml", "main", nil)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
}
