package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cexll/repowiki/internal/repourl"
	"github.com/samber/lo"
)

const (
	defaultBitbucketAPI = "https://api.bitbucket.org/2.0"
	bitbucketPageLen    = 100
	bitbucketMaxDepth   = 50
	bitbucketMaxPages   = 200
)

type bitbucketClient struct {
	rest     *restClient
	baseURL  string
	maxPages int
}

func newBitbucketClient(opts Options) *bitbucketClient {
	base := strings.TrimRight(lo.Ternary(opts.BaseURL == "", defaultBitbucketAPI, opts.BaseURL), "/")
	token := opts.Token
	return &bitbucketClient{
		baseURL:  base,
		maxPages: bitbucketMaxPages,
		rest: &restClient{
			provider:   repourl.Bitbucket,
			httpClient: opts.HTTPClient,
			retry:      opts.Retry,
			logger:     opts.Logger.Named("bitbucket"),
			authorize: func(r *http.Request) {
				if token != "" {
					r.Header.Set("Authorization", "Bearer "+token)
				}
			},
		},
	}
}

func (c *bitbucketClient) Type() repourl.Type { return repourl.Bitbucket }

func (c *bitbucketClient) repoURL(owner, repo string) string {
	return fmt.Sprintf("%s/repositories/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
}

func (c *bitbucketClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var info struct {
		MainBranch struct {
			Name string `json:"name"`
		} `json:"mainbranch"`
	}
	if _, err := c.rest.getJSON(ctx, "repositories.get", c.repoURL(owner, repo), &info); err != nil {
		return "", err
	}
	return info.MainBranch.Name, nil
}

func (c *bitbucketClient) ListFiles(ctx context.Context, owner, repo, branch string) ([]string, error) {
	type page struct {
		Values []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"values"`
		Next string `json:"next"`
	}

	q := url.Values{}
	q.Set("pagelen", fmt.Sprint(bitbucketPageLen))
	q.Set("max_depth", fmt.Sprint(bitbucketMaxDepth))
	next := fmt.Sprintf("%s/src/%s/?%s", c.repoURL(owner, repo), url.PathEscape(branch), q.Encode())

	var files []string
	for n := 0; next != "" && n < c.maxPages; n++ {
		var p page
		if _, err := c.rest.getJSON(ctx, "src.list", next, &p); err != nil {
			return nil, err
		}
		for _, v := range p.Values {
			if v.Type == "commit_file" {
				files = append(files, v.Path)
			}
		}
		next = p.Next
	}
	if next != "" {
		return files, fmt.Errorf("%w after %d pages", ErrTruncated, c.maxPages)
	}
	return files, nil
}

func (c *bitbucketClient) Readme(ctx context.Context, owner, repo, branch string) (string, error) {
	u := fmt.Sprintf("%s/src/%s/README.md", c.repoURL(owner, repo), url.PathEscape(branch))
	resp, err := c.rest.get(ctx, "src.readme", u)
	if err != nil {
		return "", err
	}
	return string(resp.body), nil
}

var _ Client = (*bitbucketClient)(nil)
