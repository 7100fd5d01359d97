package githost

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/cexll/repowiki/internal/repourl"
	"github.com/google/go-github/v66/github"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type gitHubClient struct {
	opts    Options
	baseURL *url.URL
	logger  *zap.Logger
}

func newGitHubClient(opts Options) (*gitHubClient, error) {
	c := &gitHubClient{opts: opts, logger: opts.Logger.Named("github")}
	if opts.BaseURL != "" {
		u, err := parseBaseURL(opts.BaseURL)
		if err != nil {
			return nil, err
		}
		c.baseURL = u
	}
	return c, nil
}

func (c *gitHubClient) Type() repourl.Type { return repourl.GitHub }

// api builds a client authenticated with the user token, an App
// installation token, or nothing.
func (c *gitHubClient) api(ctx context.Context, owner, repo string) *github.Client {
	client := github.NewClient(c.opts.HTTPClient)
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}

	switch {
	case c.opts.Token != "":
		return client.WithAuthToken(c.opts.Token)
	case c.opts.AppAuth != nil:
		token, err := c.opts.AppAuth.Token(ctx, owner+"/"+repo)
		if err != nil {
			c.logger.Debug("no installation token, reading anonymously",
				zap.String("repo", owner+"/"+repo), zap.Error(err))
			return client
		}
		return client.WithAuthToken(token)
	default:
		return client
	}
}

func (c *gitHubClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	client := c.api(ctx, owner, repo)
	var branch string
	err := retryWithBackoff(ctx, c.logger, c.opts.Retry, "repositories.get", func() error {
		r, _, err := client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return wrapGitHubError(err)
		}
		branch = r.GetDefaultBranch()
		return nil
	})
	return branch, err
}

func (c *gitHubClient) ListFiles(ctx context.Context, owner, repo, branch string) ([]string, error) {
	client := c.api(ctx, owner, repo)
	var tree *github.Tree
	err := retryWithBackoff(ctx, c.logger, c.opts.Retry, "git.get_tree", func() error {
		t, _, err := client.Git.GetTree(ctx, owner, repo, branch, true)
		if err != nil {
			return wrapGitHubError(err)
		}
		tree = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	files := lo.FilterMap(tree.Entries, func(e *github.TreeEntry, _ int) (string, bool) {
		return e.GetPath(), e.GetType() == "blob"
	})
	if tree.GetTruncated() {
		return files, fmt.Errorf("%w by GitHub at %d entries", ErrTruncated, len(tree.Entries))
	}
	return files, nil
}

func (c *gitHubClient) Readme(ctx context.Context, owner, repo, branch string) (string, error) {
	client := c.api(ctx, owner, repo)
	var content string
	err := retryWithBackoff(ctx, c.logger, c.opts.Retry, "repositories.get_readme", func() error {
		rc, _, err := client.Repositories.GetReadme(ctx, owner, repo, &github.RepositoryContentGetOptions{Ref: branch})
		if err != nil {
			return wrapGitHubError(err)
		}
		decoded, err := rc.GetContent()
		if err != nil {
			return fmt.Errorf("decode readme: %w", err)
		}
		content = decoded
		return nil
	})
	return content, err
}

// wrapGitHubError turns API error responses into StatusError so callers can
// match ErrNotFound. Rate limit errors pass through untouched.
func wrapGitHubError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return err
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return &StatusError{Provider: repourl.GitHub, StatusCode: ghErr.Response.StatusCode, Body: ghErr.Message}
	}
	return err
}

var _ Client = (*gitHubClient)(nil)
