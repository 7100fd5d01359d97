package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Wiki cache backends.
const (
	CacheMemory   = "memory"
	CacheBadger   = "badger"
	CachePostgres = "postgres"
)

// Config holds all configuration for the repowiki service
type Config struct {
	// Server settings
	Port        int
	LogLevel    string
	HTTPTimeout time.Duration

	// GitHub settings. The App credentials are optional and only used when
	// no token is supplied.
	GitHubToken      string
	GitHubAPIURL     string
	GitHubAppID      string
	GitHubPrivateKey string

	// GitLab settings
	GitLabToken   string
	GitLabBaseURL string

	// Bitbucket settings
	BitbucketToken  string
	BitbucketAPIURL string

	// Wiki cache settings
	WikiCacheBackend string
	WikiCacheDir     string
	DatabaseURL      string

	// Path of a YAML file overriding the diagram render configuration
	MermaidConfigPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvInt("PORT", 8001),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		HTTPTimeout:       time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 20)) * time.Second,
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		GitHubAPIURL:      os.Getenv("GITHUB_API_URL"),
		GitHubAppID:       os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey:  normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		GitLabToken:       os.Getenv("GITLAB_TOKEN"),
		GitLabBaseURL:     getEnv("GITLAB_BASE_URL", "https://gitlab.com"),
		BitbucketToken:    os.Getenv("BITBUCKET_TOKEN"),
		BitbucketAPIURL:   getEnv("BITBUCKET_API_URL", "https://api.bitbucket.org/2.0"),
		WikiCacheBackend:  strings.ToLower(getEnv("WIKI_CACHE_BACKEND", CacheMemory)),
		WikiCacheDir:      getEnv("WIKI_CACHE_DIR", "data/wikicache"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		MermaidConfigPath: os.Getenv("MERMAID_CONFIG_PATH"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HasGitHubApp reports whether GitHub App credentials are configured.
func (c *Config) HasGitHubApp() bool {
	return c.GitHubAppID != "" && c.GitHubPrivateKey != ""
}

func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.TrimPrefix(trimmed, "\"")
		trimmed = strings.TrimSuffix(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.TrimPrefix(trimmed, "'")
		trimmed = strings.TrimSuffix(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}

	return trimmed
}

// validate checks that the configuration is usable
func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be greater than 0")
	}
	if err := c.validateGitHubApp(); err != nil {
		return err
	}
	return c.validateWikiCache()
}

func (c *Config) validateGitHubApp() error {
	if c.GitHubAppID != "" && c.GitHubPrivateKey == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY is required when GITHUB_APP_ID is set")
	}
	if c.GitHubPrivateKey != "" && c.GitHubAppID == "" {
		return fmt.Errorf("GITHUB_APP_ID is required when GITHUB_PRIVATE_KEY is set")
	}
	if c.GitHubAppID != "" {
		if _, err := strconv.ParseInt(c.GitHubAppID, 10, 64); err != nil {
			return fmt.Errorf("GITHUB_APP_ID must be numeric: %s", c.GitHubAppID)
		}
	}
	return nil
}

func (c *Config) validateWikiCache() error {
	switch c.WikiCacheBackend {
	case CacheMemory:
	case CacheBadger:
		if c.WikiCacheDir == "" {
			return fmt.Errorf("WIKI_CACHE_DIR is required for badger wiki cache")
		}
	case CachePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres wiki cache")
		}
	default:
		return fmt.Errorf("invalid WIKI_CACHE_BACKEND: %s (must be 'memory', 'badger' or 'postgres')", c.WikiCacheBackend)
	}
	return nil
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
