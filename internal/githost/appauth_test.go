package githost

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cexll/repowiki/internal/repourl"
	"github.com/golang-jwt/jwt/v5"
)

func newTestKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, string(pem.EncodeToMemory(block))
}

// newAppServer serves the two installation endpoints plus a repository
// lookup that requires the installation token.
func newAppServer(t *testing.T, key *rsa.PrivateKey, tokenCalls *int32) *httptest.Server {
	t.Helper()

	verifyJWT := func(r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if err != nil {
			t.Errorf("%s: invalid app JWT: %v", r.URL.Path, err)
			return
		}
		if claims.Issuer != "12345" {
			t.Errorf("JWT issuer = %q, want 12345", claims.Issuer)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/private/installation", func(w http.ResponseWriter, r *http.Request) {
		verifyJWT(r)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42})
	})
	mux.HandleFunc("/app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("access token method = %s, want POST", r.Method)
		}
		verifyJWT(r)
		atomic.AddInt32(tokenCalls, 1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "ghs_installation",
			"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/repos/owner/private", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ghs_installation" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"default_branch": "main"})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestAppAuth_TokenIsCached(t *testing.T) {
	key, pemKey := newTestKey(t)
	var calls int32
	ts := newAppServer(t, key, &calls)

	auth := &AppAuth{AppID: "12345", PrivateKey: pemKey, BaseURL: ts.URL}

	for i := 0; i < 3; i++ {
		tok, err := auth.Token(context.Background(), "owner/private")
		if err != nil {
			t.Fatalf("Token error: %v", err)
		}
		if tok != "ghs_installation" {
			t.Fatalf("Token = %q", tok)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("access token requested %d times, want 1", got)
	}
}

func TestAppAuth_RefreshesNearExpiry(t *testing.T) {
	key, pemKey := newTestKey(t)
	var calls int32
	ts := newAppServer(t, key, &calls)

	now := time.Now()
	auth := &AppAuth{AppID: "12345", PrivateKey: pemKey, BaseURL: ts.URL, now: func() time.Time { return now }}

	if _, err := auth.Token(context.Background(), "owner/private"); err != nil {
		t.Fatalf("Token error: %v", err)
	}
	// within the refresh margin of the one hour expiry
	now = now.Add(time.Hour - 30*time.Second)
	if _, err := auth.Token(context.Background(), "owner/private"); err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("access token requested %d times, want 2", got)
	}
}

func TestAppAuth_InvalidInput(t *testing.T) {
	_, pemKey := newTestKey(t)

	tests := []struct {
		name string
		auth *AppAuth
		repo string
	}{
		{"bad repo format", &AppAuth{AppID: "1", PrivateKey: pemKey}, "no-slash"},
		{"bad app id", &AppAuth{AppID: "abc", PrivateKey: pemKey}, "o/r"},
		{"bad key", &AppAuth{AppID: "1", PrivateKey: "not a key"}, "o/r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.auth.Token(context.Background(), tt.repo); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGitHubClient_UsesInstallationToken(t *testing.T) {
	key, pemKey := newTestKey(t)
	var calls int32
	ts := newAppServer(t, key, &calls)

	c, err := NewClient(repourl.GitHub, Options{
		BaseURL: ts.URL,
		Retry:   fastRetry,
		AppAuth: &AppAuth{AppID: "12345", PrivateKey: pemKey, BaseURL: ts.URL},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	branch, err := c.DefaultBranch(context.Background(), "owner", "private")
	if err != nil {
		t.Fatalf("DefaultBranch error: %v", err)
	}
	if branch != "main" {
		t.Fatalf("branch = %q, want main", branch)
	}
}
