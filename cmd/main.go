package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/cexll/repowiki/internal/config"
	"github.com/cexll/repowiki/internal/githost"
	"github.com/cexll/repowiki/internal/logging"
	"github.com/cexll/repowiki/internal/mermaid"
	"github.com/cexll/repowiki/internal/repourl"
	"github.com/cexll/repowiki/internal/web"
	"github.com/cexll/repowiki/internal/wikicache"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	loadDotEnv         = godotenv.Load
	newLogger          = logging.New
	loadRenderConfig   = mermaid.LoadRenderConfig
	openBadgerStore    = wikicache.OpenBadgerStore
	openPostgresStore  = wikicache.OpenPostgresStore
	defaultListenServe = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting repowiki server",
		zap.Int("port", cfg.Port),
		zap.String("wiki_cache", cfg.WikiCacheBackend),
		zap.Bool("github_app", cfg.HasGitHubApp()),
		zap.Duration("http_timeout", cfg.HTTPTimeout))

	renderConfig, err := loadRenderConfig(cfg.MermaidConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load diagram render config: %w", err)
	}

	cache, err := openWikiCache(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open wiki cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	handler := web.NewHandler(web.Options{
		Logger:       logger,
		Cache:        cache,
		RenderConfig: renderConfig,
		Parser:       repourl.Parser{GitLabHosts: selfHostedGitLab(cfg.GitLabBaseURL)},
		HostClient:   newHostClientFunc(cfg, logger),
	})

	r := mux.NewRouter()
	handler.RegisterRoutes(r)

	// Root endpoint with info
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"service":"repowiki","status":"running","wiki_cache":"%s"}`, cfg.WikiCacheBackend)
	}).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("server listening",
		zap.String("addr", addr),
		zap.String("health", fmt.Sprintf("http://localhost%s/health", addr)))

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

func openWikiCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (wikicache.Store, error) {
	switch cfg.WikiCacheBackend {
	case config.CacheBadger:
		return openBadgerStore(cfg.WikiCacheDir, logger)
	case config.CachePostgres:
		return openPostgresStore(ctx, cfg.DatabaseURL, logger)
	default:
		return wikicache.NewMemoryStore(), nil
	}
}

// newHostClientFunc builds clients from the configured hosts. A token sent
// with the request replaces the configured one.
func newHostClientFunc(cfg *config.Config, logger *zap.Logger) web.HostClientFunc {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var appAuth *githost.AppAuth
	if cfg.HasGitHubApp() {
		appAuth = &githost.AppAuth{
			AppID:      cfg.GitHubAppID,
			PrivateKey: cfg.GitHubPrivateKey,
			BaseURL:    cfg.GitHubAPIURL,
			HTTPClient: httpClient,
		}
	}

	return func(t repourl.Type, token string) (githost.Client, error) {
		opts := githost.Options{Token: token, HTTPClient: httpClient, Logger: logger}
		switch t {
		case repourl.GitHub:
			opts.BaseURL = cfg.GitHubAPIURL
			opts.AppAuth = appAuth
			if opts.Token == "" {
				opts.Token = cfg.GitHubToken
			}
		case repourl.GitLab:
			opts.BaseURL = cfg.GitLabBaseURL
			if opts.Token == "" {
				opts.Token = cfg.GitLabToken
			}
		case repourl.Bitbucket:
			opts.BaseURL = cfg.BitbucketAPIURL
			if opts.Token == "" {
				opts.Token = cfg.BitbucketToken
			}
		}
		return githost.NewClient(t, opts)
	}
}

// selfHostedGitLab returns the host of a GitLab instance other than
// gitlab.com so its URLs parse as GitLab repositories.
func selfHostedGitLab(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if host == "gitlab.com" {
		return nil
	}
	return []string{host}
}
