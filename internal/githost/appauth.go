package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v66/github"
)

// AppAuth exchanges GitHub App credentials for per-repository installation
// tokens, so private repositories the App is installed on can be read
// without a user token.
type AppAuth struct {
	AppID      string
	PrivateKey string
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.Mutex
	tokens map[string]InstallationToken
	now    func() time.Time
}

// InstallationToken is a GitHub App installation access token.
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// tokens expiring within this window are refreshed
const tokenRefreshMargin = time.Minute

// GenerateJWT creates the App JWT used to call the installation endpoints.
func (a *AppAuth) GenerateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	// backdated to tolerate clock drift
	now := a.clock()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// Token returns a cached or freshly minted installation token for
// "owner/repo".
func (a *AppAuth) Token(ctx context.Context, repo string) (string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}

	a.mu.Lock()
	if tok, ok := a.tokens[repo]; ok && a.clock().Add(tokenRefreshMargin).Before(tok.ExpiresAt) {
		a.mu.Unlock()
		return tok.Token, nil
	}
	a.mu.Unlock()

	tok, err := a.fetchInstallationToken(ctx, owner, name)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	if a.tokens == nil {
		a.tokens = make(map[string]InstallationToken)
	}
	a.tokens[repo] = tok
	a.mu.Unlock()

	return tok.Token, nil
}

func (a *AppAuth) fetchInstallationToken(ctx context.Context, owner, repo string) (InstallationToken, error) {
	signed, err := a.GenerateJWT()
	if err != nil {
		return InstallationToken{}, err
	}

	client, err := a.appClient(signed)
	if err != nil {
		return InstallationToken{}, err
	}

	inst, _, err := client.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return InstallationToken{}, fmt.Errorf("failed to get installation: %w", wrapGitHubError(err))
	}

	tok, _, err := client.Apps.CreateInstallationToken(ctx, inst.GetID(), nil)
	if err != nil {
		return InstallationToken{}, fmt.Errorf("failed to get access token: %w", wrapGitHubError(err))
	}

	return InstallationToken{Token: tok.GetToken(), ExpiresAt: tok.GetExpiresAt().Time}, nil
}

func (a *AppAuth) appClient(signedJWT string) (*github.Client, error) {
	client := github.NewClient(a.HTTPClient).WithAuthToken(signedJWT)
	if a.BaseURL != "" {
		u, err := parseBaseURL(a.BaseURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = u
	}
	return client, nil
}

func (a *AppAuth) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	return u, nil
}
