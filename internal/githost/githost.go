// Package githost reads repository metadata from GitHub, GitLab and
// Bitbucket: default branch, file listing and README.
package githost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cexll/repowiki/internal/repourl"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedProvider = errors.New("unsupported repository provider")
	// ErrTruncated comes with a partial file list when a host limit was hit.
	ErrTruncated = errors.New("file list truncated")
)

// StatusError is a non-success HTTP response from a host API.
type StatusError struct {
	Provider   repourl.Type
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}

// Is makes a 404 match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client reads one provider's repositories.
type Client interface {
	Type() repourl.Type
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	ListFiles(ctx context.Context, owner, repo, branch string) ([]string, error)
	Readme(ctx context.Context, owner, repo, branch string) (string, error)
}

// Options configures a Client. Zero values fall back to the public hosts.
type Options struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Retry      RetryPolicy

	// AppAuth supplies installation tokens for GitHub when Token is empty.
	AppAuth *AppAuth
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Retry == (RetryPolicy{}) {
		o.Retry = DefaultRetryPolicy()
	}
	return o
}

// NewClient returns the client for a provider.
func NewClient(t repourl.Type, opts Options) (Client, error) {
	opts = opts.withDefaults()
	switch t {
	case repourl.GitHub:
		return newGitHubClient(opts)
	case repourl.GitLab:
		return newGitLabClient(opts), nil
	case repourl.Bitbucket:
		return newBitbucketClient(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, t)
	}
}

// Structure is what the wiki generator needs to know about a repository.
type Structure struct {
	Type     repourl.Type `json:"type"`
	Owner    string       `json:"owner"`
	Repo     string       `json:"repo"`
	Branch   string       `json:"branch"`
	Files    []string     `json:"files"`
	FileTree string       `json:"file_tree"`
	Readme   string       `json:"readme"`
	Warnings []string     `json:"warnings,omitempty"`
}

var fallbackBranches = []string{"main", "master"}

// FetchStructure resolves the default branch, lists the files on it and
// fetches the README. When the default branch cannot be determined, main and
// then master are tried. README failures and truncated listings are reported
// as warnings.
func FetchStructure(ctx context.Context, c Client, owner, repo string) (*Structure, error) {
	var candidates []string
	var warnings []string

	branch, err := c.DefaultBranch(ctx, owner, repo)
	switch {
	case err == nil && branch != "":
		candidates = append(candidates, branch)
	case err != nil:
		warnings = append(warnings, fmt.Sprintf("default branch: %v", err))
	}
	candidates = lo.Uniq(append(candidates, fallbackBranches...))

	var files []string
	var lastErr error
	for _, b := range candidates {
		files, lastErr = c.ListFiles(ctx, owner, repo, b)
		if errors.Is(lastErr, ErrTruncated) {
			warnings = append(warnings, fmt.Sprintf("files: %v", lastErr))
			lastErr = nil
		}
		if lastErr == nil {
			branch = b
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(lastErr, ErrNotFound) {
			break
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("list files of %s/%s: %w", owner, repo, lastErr)
	}

	files = lo.Uniq(files)
	sort.Strings(files)

	readme, err := c.Readme(ctx, owner, repo, branch)
	if err != nil && !errors.Is(err, ErrNotFound) {
		warnings = append(warnings, fmt.Sprintf("readme: %v", err))
	}

	return &Structure{
		Type:     c.Type(),
		Owner:    owner,
		Repo:     repo,
		Branch:   branch,
		Files:    files,
		FileTree: strings.Join(files, "\n"),
		Readme:   readme,
		Warnings: warnings,
	}, nil
}
