package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cexll/repowiki/internal/repourl"
	"github.com/samber/lo"
)

const (
	defaultGitLabURL = "https://gitlab.com"
	gitLabPerPage    = 100
	// upper bound on tree pages, 100 entries each
	gitLabMaxPages = 200
)

type gitLabClient struct {
	rest     *restClient
	baseURL  string
	maxPages int
}

func newGitLabClient(opts Options) *gitLabClient {
	base := strings.TrimRight(lo.Ternary(opts.BaseURL == "", defaultGitLabURL, opts.BaseURL), "/")
	token := opts.Token
	return &gitLabClient{
		baseURL:  base,
		maxPages: gitLabMaxPages,
		rest: &restClient{
			provider:   repourl.GitLab,
			httpClient: opts.HTTPClient,
			retry:      opts.Retry,
			logger:     opts.Logger.Named("gitlab"),
			authorize: func(r *http.Request) {
				if token != "" {
					r.Header.Set("PRIVATE-TOKEN", token)
				}
			},
		},
	}
}

func (c *gitLabClient) Type() repourl.Type { return repourl.GitLab }

func (c *gitLabClient) projectURL(owner, repo string) string {
	return fmt.Sprintf("%s/api/v4/projects/%s", c.baseURL, url.PathEscape(owner+"/"+repo))
}

func (c *gitLabClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var project struct {
		DefaultBranch string `json:"default_branch"`
	}
	if _, err := c.rest.getJSON(ctx, "projects.get", c.projectURL(owner, repo), &project); err != nil {
		return "", err
	}
	return project.DefaultBranch, nil
}

func (c *gitLabClient) ListFiles(ctx context.Context, owner, repo, branch string) ([]string, error) {
	type entry struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}

	var files []string
	page := "1"
	for n := 0; page != "" && n < c.maxPages; n++ {
		q := url.Values{}
		q.Set("recursive", "true")
		q.Set("per_page", strconv.Itoa(gitLabPerPage))
		q.Set("ref", branch)
		q.Set("page", page)

		var entries []entry
		resp, err := c.rest.getJSON(ctx, "repository.tree", c.projectURL(owner, repo)+"/repository/tree?"+q.Encode(), &entries)
		if err != nil {
			return nil, err
		}
		files = append(files, lo.FilterMap(entries, func(e entry, _ int) (string, bool) {
			return e.Path, e.Type == "blob"
		})...)
		page = strings.TrimSpace(resp.header.Get("X-Next-Page"))
	}
	if page != "" {
		return files, fmt.Errorf("%w after %d pages", ErrTruncated, c.maxPages)
	}
	return files, nil
}

func (c *gitLabClient) Readme(ctx context.Context, owner, repo, branch string) (string, error) {
	u := c.projectURL(owner, repo) + "/repository/files/README.md/raw?ref=" + url.QueryEscape(branch)
	resp, err := c.rest.get(ctx, "repository.files.raw", u)
	if err != nil {
		return "", err
	}
	return string(resp.body), nil
}

var _ Client = (*gitLabClient)(nil)
