package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-release/domain"
	"github.com/input-output-hk/catalyst-forge-release/errors"
	"github.com/input-output-hk/catalyst-forge-release/internal/logging"
)

type recorded struct {
	Method string
	Query  string
	Prefer string
	Body   map[string]any
}

type fakeTable struct {
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r *http.Request, n int)
}

func (f *fakeTable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	n := len(f.requests)
	rec := recorded{Method: r.Method, Query: r.URL.RawQuery, Prefer: r.Header.Get("Prefer")}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	if r.Header.Get("apikey") != "service-key" || r.Header.Get("Authorization") != "Bearer service-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.URL.Path != "/rest/v1/software_releases" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	f.handler(w, r, n)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, n int)) (*Client, *fakeTable) {
	t.Helper()
	table := &fakeTable{handler: handler}
	srv := httptest.NewServer(table)
	t.Cleanup(srv.Close)

	client, err := New(Options{
		BaseURL:        srv.URL + "/",
		ServiceKey:     "service-key",
		InitialBackoff: time.Millisecond,
		MaxRetries:     2,
		Logger:         logging.Discard(),
		Now:            func() time.Time { return time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return client, table
}

func TestNewRequiresSettings(t *testing.T) {
	_, err := New(Options{ServiceKey: "k"})
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	_, err = New(Options{BaseURL: "https://x.supabase.co"})
	assert.Equal(t, errors.CodeUnauthorized, errors.GetCode(err))
}

func TestExists(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		if r.URL.Query().Get("version") == "eq.1.3.7" {
			_, _ = io.WriteString(w, `[{"id": 12}]`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})

	exists, err := client.Exists(context.Background(), domain.PlatformDesktopWindows, "1.3.7")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.Exists(context.Background(), domain.PlatformDesktopWindows, "1.3.8")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, "platform=eq.desktop_windows&select=id&version=eq.1.3.7", table.requests[0].Query)
}

func TestExistsNon200IsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"column does not exist"}`)
	})

	_, err := client.Exists(context.Background(), domain.PlatformExtension, "1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column does not exist")
	assert.Contains(t, err.Error(), "status=400")
}

func TestPublish(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `[]`)
		case http.MethodPatch:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[{"id": 42}]`)
		}
	})

	entry := domain.Entry{
		Version: "1.3.7", Platform: domain.PlatformDesktopWindows,
		ReleaseNotes: "v1.3.7 - Desktop Release", Filename: "app.exe", IsLatest: true,
	}
	res, err := client.Publish(context.Background(), entry, "https://cdn/app.exe", "app.exe")
	require.NoError(t, err)
	assert.Equal(t, "42", res.ID)

	require.Len(t, table.requests, 3)
	assert.Equal(t, http.MethodPatch, table.requests[1].Method)
	assert.Equal(t, "return=minimal", table.requests[1].Prefer)
	assert.Equal(t, map[string]any{"is_latest": false}, table.requests[1].Body)

	insert := table.requests[2]
	assert.Equal(t, "return=representation", insert.Prefer)
	assert.Equal(t, "1.3.7", insert.Body["version"])
	assert.Equal(t, "https://cdn/app.exe", insert.Body["download_url"])
	assert.Equal(t, true, insert.Body["is_latest"])
	assert.Equal(t, "2026-01-19T12:00:00Z", insert.Body["released_at"])
	assert.NotContains(t, insert.Body, "file_name")
	assert.NotContains(t, insert.Body, "id")
}

func TestPublishNotLatestSkipsUnset(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `[]`)
		case http.MethodPost:
			_, _ = io.WriteString(w, `[]`)
		}
	})

	res, err := client.Publish(context.Background(),
		domain.Entry{Version: "1.0.6", Platform: domain.PlatformExtension}, "https://cdn/x.zip", "")
	require.NoError(t, err)
	assert.Equal(t, "?", res.ID)
	require.Len(t, table.requests, 2)
	assert.Equal(t, http.MethodPost, table.requests[1].Method)
}

func TestPublishAlreadyExists(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		_, _ = io.WriteString(w, `[{"id": 1}]`)
	})

	_, err := client.Publish(context.Background(),
		domain.Entry{Version: "1.0.0", Platform: domain.PlatformExtension, IsLatest: true}, "u", "")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Len(t, table.requests, 1)
}

func TestRetriesTransientFailures(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, n int) {
		if n < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})

	exists, err := client.Exists(context.Background(), domain.PlatformExtension, "1.0.0")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Len(t, table.requests, 3)
}

func TestRetriesExhausted(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.UnsetLatest(context.Background(), domain.PlatformExtension)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRateLimit))
	assert.Len(t, table.requests, 3)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `duplicate key`)
	})

	_, err := client.Insert(context.Background(), domain.Record{Version: "1.0.0", Platform: domain.PlatformExtension})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))
	assert.True(t, errors.HasCode(err, errors.CodePublishFailed))
	assert.Len(t, table.requests, 1)
}

func TestInsertRetryDoesNotDuplicate(t *testing.T) {
	var mu sync.Mutex
	rows := 0
	client, table := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			rows++
			w.WriteHeader(http.StatusGatewayTimeout)
		case http.MethodGet:
			if rows > 0 {
				_, _ = io.WriteString(w, `[{"id": 7}]`)
				return
			}
			_, _ = io.WriteString(w, `[]`)
		}
	})

	id, err := client.Insert(context.Background(), domain.Record{Version: "1.0.0", Platform: domain.PlatformExtension})
	require.NoError(t, err)
	assert.Equal(t, "7", id)
	assert.Equal(t, 1, rows)

	methods := make([]string, len(table.requests))
	for i, req := range table.requests {
		methods[i] = req.Method
	}
	assert.Equal(t, []string{http.MethodPost, http.MethodGet}, methods)
	assert.Equal(t, "platform=eq.extension&select=id&version=eq.1.0.0", table.requests[1].Query)
}

func TestInsertRetriesWhenNothingCommitted(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, r *http.Request, n int) {
		switch {
		case r.Method == http.MethodPost && n == 0:
			w.WriteHeader(http.StatusBadGateway)
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[{"id": 8}]`)
		default:
			_, _ = io.WriteString(w, `[]`)
		}
	})

	id, err := client.Insert(context.Background(), domain.Record{Version: "1.0.0", Platform: domain.PlatformExtension})
	require.NoError(t, err)
	assert.Equal(t, "8", id)
	require.Len(t, table.requests, 3)
	assert.Equal(t, http.MethodGet, table.requests[1].Method)
	assert.Equal(t, http.MethodPost, table.requests[2].Method)
}

func TestPublishInsertsWhenUnsetLatestFails(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `[]`)
		case http.MethodPatch:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"bad filter"}`)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[{"id": 5}]`)
		}
	})

	res, err := client.Publish(context.Background(),
		domain.Entry{Version: "1.0.7", Platform: domain.PlatformExtension, IsLatest: true}, "https://cdn/x.zip", "")
	require.NoError(t, err)
	assert.Equal(t, "5", res.ID)
	require.Len(t, table.requests, 3)
	assert.Equal(t, http.MethodPatch, table.requests[1].Method)
	assert.Equal(t, http.MethodPost, table.requests[2].Method)
}

func TestWrongKeyIsUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {})
	client.serviceKey = "wrong"

	_, err := client.Exists(context.Background(), domain.PlatformExtension, "1.0.0")
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
}

func TestInsertWritesFileNameWhenEnabled(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		_, _ = io.WriteString(w, `[{"id": "abc"}]`)
	})
	client.opts.WriteFileName = true

	id, err := client.Insert(context.Background(), domain.Record{Version: "1.0.0", FileName: "x.zip"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, "x.zip", table.requests[0].Body["file_name"])
}

func TestLatest(t *testing.T) {
	client, table := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		if r.URL.Query().Get("platform") == "eq.extension" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{"id": 7, "version": "1.3.6", "platform": "desktop_windows",
			"download_url": "u", "is_latest": true, "released_at": "2026-01-10T08:30:00.123456"}]`)
	})

	rec, err := client.Latest(context.Background(), domain.PlatformDesktopWindows)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "1.3.6", rec.Version)
	assert.Equal(t, 2026, rec.ReleasedAt.Year())
	assert.Contains(t, table.requests[0].Query, "is_latest=eq.true")

	rec, err = client.Latest(context.Background(), domain.PlatformExtension)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusBadGateway)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Exists(ctx, domain.PlatformExtension, "1.0.0")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
}
