package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cexll/repowiki/internal/config"
	"github.com/cexll/repowiki/internal/mermaid"
	"github.com/cexll/repowiki/internal/repourl"
	"github.com/cexll/repowiki/internal/wikicache"
	"go.uber.org/zap"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("WIKI_CACHE_BACKEND", "memory")
	t.Setenv("GITHUB_APP_ID", "")
	t.Setenv("GITHUB_PRIVATE_KEY", "")
	t.Setenv("MERMAID_CONFIG_PATH", "")

	prev := loadDotEnv
	loadDotEnv = func(...string) error { return nil }
	t.Cleanup(func() { loadDotEnv = prev })
}

func TestRun_StartsServerWithValidConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "4321")

	var servedAddr string
	var servedHandler http.Handler

	serve := func(addr string, handler http.Handler) error {
		servedAddr = addr
		servedHandler = handler
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, serve); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	if servedAddr != ":4321" {
		t.Fatalf("serve addr = %q, want :4321", servedAddr)
	}
	if servedHandler == nil {
		t.Fatalf("serve handler is nil")
	}

	// Smoke test a couple of routes to ensure router wiring is intact.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	servedHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	servedHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("/ status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"service":"repowiki"`) {
		t.Fatalf("root body = %q, want service payload", body)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/diagrams/sanitize", strings.NewReader(`{"source":"A-->B"}`))
	servedHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cleaned":"A --> B"`) {
		t.Fatalf("sanitize = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRun_ReturnsErrorWhenServeFails(t *testing.T) {
	setRequiredEnv(t)

	expected := errors.New("listen failed")
	err := run(context.Background(), func(string, http.Handler) error {
		return expected
	})

	if err == nil {
		t.Fatalf("run() error = nil, want %v", expected)
	}
	if !errors.Is(err, expected) {
		t.Fatalf("run() error = %v, want to wrap %v", err, expected)
	}
}

func TestRun_InvalidConfiguration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WIKI_CACHE_BACKEND", "redis")

	called := false
	err := run(context.Background(), func(string, http.Handler) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("run() error = nil, want configuration error")
	}
	if called {
		t.Fatalf("serve should not be called when configuration fails")
	}
}

func TestRun_RenderConfigFromFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "mermaid.yaml")
	if err := os.WriteFile(path, []byte("theme: dark\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MERMAID_CONFIG_PATH", path)

	var handler http.Handler
	if err := run(context.Background(), func(_ string, h http.Handler) error {
		handler = h
		return nil
	}); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagrams/config", nil))
	if !strings.Contains(rec.Body.String(), `"theme":"dark"`) {
		t.Fatalf("config body = %s, want theme from file", rec.Body.String())
	}
}

func TestRun_RenderConfigError(t *testing.T) {
	setRequiredEnv(t)

	prev := loadRenderConfig
	defer func() { loadRenderConfig = prev }()
	loadRenderConfig = func(string) (mermaid.RenderConfig, error) {
		return mermaid.RenderConfig{}, errors.New("inject failure")
	}

	err := run(context.Background(), func(string, http.Handler) error {
		t.Fatalf("serve should not be called on render config failure")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "failed to load diagram render config") {
		t.Fatalf("error = %v, want render config failure", err)
	}
}

func TestRun_WikiCacheBackends(t *testing.T) {
	setRequiredEnv(t)

	prevBadger, prevPostgres := openBadgerStore, openPostgresStore
	defer func() { openBadgerStore, openPostgresStore = prevBadger, prevPostgres }()

	var badgerDir, postgresURL string
	openBadgerStore = func(dir string, _ *zap.Logger) (*wikicache.BadgerStore, error) {
		badgerDir = dir
		return wikicache.OpenBadgerStore("", nil)
	}
	openPostgresStore = func(_ context.Context, url string, _ *zap.Logger) (*wikicache.PostgresStore, error) {
		postgresURL = url
		return nil, errors.New("connection refused")
	}

	t.Setenv("WIKI_CACHE_BACKEND", "badger")
	t.Setenv("WIKI_CACHE_DIR", "/var/lib/repowiki")
	if err := run(context.Background(), func(string, http.Handler) error { return nil }); err != nil {
		t.Fatalf("badger run() error: %v", err)
	}
	if badgerDir != "/var/lib/repowiki" {
		t.Fatalf("badger dir = %q", badgerDir)
	}

	t.Setenv("WIKI_CACHE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://db/wiki")
	err := run(context.Background(), func(string, http.Handler) error {
		t.Fatal("serve should not be called when the cache cannot open")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "failed to open wiki cache") {
		t.Fatalf("error = %v, want wiki cache failure", err)
	}
	if postgresURL != "postgres://db/wiki" {
		t.Fatalf("postgres url = %q", postgresURL)
	}
}

func TestNewHostClientFunc(t *testing.T) {
	cfg := &config.Config{
		GitHubToken:     "ghp_env",
		GitLabBaseURL:   "https://gitlab.example.com",
		BitbucketAPIURL: "https://api.bitbucket.org/2.0",
	}
	newClient := newHostClientFunc(cfg, zap.NewNop())

	for _, typ := range []repourl.Type{repourl.GitHub, repourl.GitLab, repourl.Bitbucket} {
		c, err := newClient(typ, "")
		if err != nil {
			t.Fatalf("%s client error: %v", typ, err)
		}
		if c.Type() != typ {
			t.Fatalf("client type = %s, want %s", c.Type(), typ)
		}
	}

	if _, err := newClient(repourl.Local, ""); err == nil {
		t.Fatal("local repositories have no host client")
	}
}

func TestSelfHostedGitLab(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"https://gitlab.com", nil},
		{"https://GitLab.Example.com/", []string{"gitlab.example.com"}},
		{"", nil},
		{"::bad", nil},
	}
	for _, tt := range tests {
		got := selfHostedGitLab(tt.in)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("selfHostedGitLab(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
