package githost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cexll/repowiki/internal/repourl"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// restClient is the thin HTTP layer shared by the GitLab and Bitbucket
// adapters.
type restClient struct {
	provider   repourl.Type
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zap.Logger
	authorize  func(*http.Request)
}

type response struct {
	body   []byte
	header http.Header
}

func (c *restClient) get(ctx context.Context, op, rawURL string) (*response, error) {
	var out *response
	err := retryWithBackoff(ctx, c.logger, c.retry, op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.authorize != nil {
			c.authorize(req)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", c.provider, err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
		}

		out = &response{body: body, header: resp.Header}
		return nil
	})
	return out, err
}

func (c *restClient) getJSON(ctx context.Context, op, rawURL string, v any) (*response, error) {
	resp, err := c.get(ctx, op, rawURL)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.body, v); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.provider, err)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
