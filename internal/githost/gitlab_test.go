package githost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cexll/repowiki/internal/repourl"
	"github.com/google/go-cmp/cmp"
)

func TestGitLabClient_FetchStructure(t *testing.T) {
	const project = "/api/v4/projects/group%2Fsub%2Fproject"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("PRIVATE-TOKEN"); got != "glpat-test" {
			t.Errorf("PRIVATE-TOKEN = %q", got)
		}

		switch r.URL.EscapedPath() {
		case project:
			_ = json.NewEncoder(w).Encode(map[string]any{"default_branch": "main"})
		case project + "/repository/tree":
			q := r.URL.Query()
			if q.Get("ref") != "main" || q.Get("recursive") != "true" {
				t.Errorf("unexpected tree query %q", r.URL.RawQuery)
			}
			switch q.Get("page") {
			case "1":
				w.Header().Set("X-Next-Page", "2")
				_ = json.NewEncoder(w).Encode([]map[string]string{
					{"path": "docs", "type": "tree"},
					{"path": "docs/intro.md", "type": "blob"},
				})
			case "2":
				w.Header().Set("X-Next-Page", "")
				_ = json.NewEncoder(w).Encode([]map[string]string{
					{"path": "go.mod", "type": "blob"},
				})
			default:
				t.Errorf("unexpected page %q", q.Get("page"))
			}
		case project + "/repository/files/README.md/raw":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"404 File Not Found"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c, err := NewClient(repourl.GitLab, Options{Token: "glpat-test", BaseURL: ts.URL + "/", Retry: fastRetry})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	got, err := FetchStructure(context.Background(), c, "group/sub", "project")
	if err != nil {
		t.Fatalf("FetchStructure error: %v", err)
	}
	if got.Branch != "main" {
		t.Fatalf("Branch = %q, want main", got.Branch)
	}
	if diff := cmp.Diff([]string{"docs/intro.md", "go.mod"}, got.Files); diff != "" {
		t.Fatalf("Files mismatch (-want +got):\n%s", diff)
	}
	if got.Readme != "" || len(got.Warnings) != 0 {
		t.Fatalf("missing README should be silent, got readme=%q warnings=%v", got.Readme, got.Warnings)
	}
}

func TestGitLabClient_PageLimitWarns(t *testing.T) {
	const project = "/api/v4/projects/group%2Fproject"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case project:
			_ = json.NewEncoder(w).Encode(map[string]any{"default_branch": "main"})
		case project + "/repository/tree":
			if page := r.URL.Query().Get("page"); page != "1" {
				t.Errorf("requested page %q past the limit", page)
			}
			w.Header().Set("X-Next-Page", "2")
			_ = json.NewEncoder(w).Encode([]map[string]string{{"path": "main.go", "type": "blob"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c, err := NewClient(repourl.GitLab, Options{BaseURL: ts.URL, Retry: fastRetry})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	c.(*gitLabClient).maxPages = 1

	files, err := c.ListFiles(context.Background(), "group", "project", "main")
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("ListFiles err = %v, want ErrTruncated", err)
	}
	if diff := cmp.Diff([]string{"main.go"}, files); diff != "" {
		t.Fatalf("Files mismatch (-want +got):\n%s", diff)
	}

	got, err := FetchStructure(context.Background(), c, "group", "project")
	if err != nil {
		t.Fatalf("FetchStructure error: %v", err)
	}
	if len(got.Warnings) != 1 || !strings.Contains(got.Warnings[0], "truncated") {
		t.Fatalf("Warnings = %v, want one truncation warning", got.Warnings)
	}
}

func TestGitLabClient_RetriesServerErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"default_branch": "trunk"})
	}))
	defer ts.Close()

	c, err := NewClient(repourl.GitLab, Options{BaseURL: ts.URL, Retry: fastRetry})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	branch, err := c.DefaultBranch(context.Background(), "group", "project")
	if err != nil {
		t.Fatalf("DefaultBranch error: %v", err)
	}
	if branch != "trunk" || calls != 2 {
		t.Fatalf("branch = %q after %d calls, want trunk after 2", branch, calls)
	}
}
