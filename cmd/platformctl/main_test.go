package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func setupEnv(t *testing.T) *atomic.Int64 {
	t.Helper()
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/api/mentors":
			fmt.Fprint(w, `[{"id":1,"name":"Ada"}]`)
		case "/api/contests/3":
			fmt.Fprint(w, `{"id":3,"title":"Finals","starts_at":"2020-01-01T00:00:00Z","ends_at":"2020-01-02T00:00:00Z"}`)
		case "/api/contests/3/standings":
			if r.URL.Query().Get("page") == "1" {
				fmt.Fprint(w, `[{"user_id":7,"username":"grace","rank":1,"score":300,"solved":3}]`)
				return
			}
			fmt.Fprint(w, `[]`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"Not found"}`)
		}
	}))
	t.Cleanup(ts.Close)

	t.Setenv("PLATFORM_API_BASE_URL", ts.URL+"/api/")
	t.Setenv("PLATFORM_CACHE_PATH", filepath.Join(t.TempDir(), "cache.db"))
	t.Setenv("PLATFORM_CACHE_VERSION", "test")
	t.Setenv("PLATFORM_LOG_LEVEL", "error")
	return &calls
}

func TestRun_GetPersistsAcrossRuns(t *testing.T) {
	calls := setupEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		var stdout, stderr bytes.Buffer
		if err := run(ctx, []string{"get", "-persist", "-ttl", "1h", "/mentors"}, &stdout, &stderr); err != nil {
			t.Fatalf("run %d: unexpected error: %v (stderr: %s)", i, err, stderr.String())
		}
		if !strings.Contains(stdout.String(), `"Ada"`) {
			t.Errorf("run %d: unexpected output %s", i, stdout.String())
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected the second run to be served from the persistent cache, got %d calls", n)
	}

	var stdout, stderr bytes.Buffer
	if err := run(ctx, []string{"invalidate", "mentors"}, &stdout, &stderr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := run(ctx, []string{"get", "-persist", "/mentors"}, &stdout, &stderr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected a network call after invalidation, got %d calls", n)
	}
}

func TestRun_GetNotFound(t *testing.T) {
	setupEnv(t)
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"get", "/missing"}, &stdout, &stderr)
	if err == nil || err.Error() != "Not found (status 404)" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRun_Standings(t *testing.T) {
	setupEnv(t)
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"standings", "3"}, &stdout, &stderr); err != nil {
		t.Fatalf("unexpected error: %v (stderr: %s)", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "grace") {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestRun_ClearPruneStats(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()
	for _, args := range [][]string{{"clear"}, {"prune"}, {"stats"}} {
		var stdout, stderr bytes.Buffer
		if err := run(ctx, args, &stdout, &stderr); err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
	}
}

func TestRun_BadInput(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()
	tests := [][]string{
		nil,
		{"bogus"},
		{"get"},
		{"standings", "abc"},
		{"invalidate", "-prefix", "-regexp", "x"},
		{"invalidate", "-regexp", "("},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if err := run(ctx, args, &stdout, &stderr); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}
