package githost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cexll/repowiki/internal/repourl"
	"github.com/google/go-cmp/cmp"
)

type fakeClient struct {
	defaultBranch    string
	defaultBranchErr error
	files            map[string][]string
	listErr          map[string]error
	readme           string
	readmeErr        error
	listed           []string
}

func (f *fakeClient) Type() repourl.Type { return repourl.GitHub }

func (f *fakeClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	return f.defaultBranch, f.defaultBranchErr
}

func (f *fakeClient) ListFiles(ctx context.Context, owner, repo, branch string) ([]string, error) {
	f.listed = append(f.listed, branch)
	if err := f.listErr[branch]; err != nil {
		return f.files[branch], err
	}
	files, ok := f.files[branch]
	if !ok {
		return nil, &StatusError{StatusCode: http.StatusNotFound}
	}
	return files, nil
}

func (f *fakeClient) Readme(ctx context.Context, owner, repo, branch string) (string, error) {
	return f.readme, f.readmeErr
}

func TestFetchStructure(t *testing.T) {
	c := &fakeClient{
		defaultBranch: "develop",
		files:         map[string][]string{"develop": {"src/b.go", "README.md", "src/a.go", "README.md"}},
		readme:        "# Project",
	}

	got, err := FetchStructure(context.Background(), c, "owner", "repo")
	if err != nil {
		t.Fatalf("FetchStructure error: %v", err)
	}

	want := &Structure{
		Type:     repourl.GitHub,
		Owner:    "owner",
		Repo:     "repo",
		Branch:   "develop",
		Files:    []string{"README.md", "src/a.go", "src/b.go"},
		FileTree: "README.md\nsrc/a.go\nsrc/b.go",
		Readme:   "# Project",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FetchStructure mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchStructure_FallsBackToMaster(t *testing.T) {
	c := &fakeClient{
		defaultBranchErr: errors.New("boom"),
		files:            map[string][]string{"master": {"main.go"}},
		readmeErr:        &StatusError{StatusCode: http.StatusNotFound},
	}

	got, err := FetchStructure(context.Background(), c, "owner", "repo")
	if err != nil {
		t.Fatalf("FetchStructure error: %v", err)
	}
	if got.Branch != "master" {
		t.Fatalf("Branch = %q, want master", got.Branch)
	}
	if diff := cmp.Diff([]string{"main", "master"}, c.listed); diff != "" {
		t.Fatalf("branches tried mismatch (-want +got):\n%s", diff)
	}
	if got.Readme != "" {
		t.Fatalf("Readme = %q, want empty", got.Readme)
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want only the default branch warning", got.Warnings)
	}
}

func TestFetchStructure_ReadmeFailureIsWarning(t *testing.T) {
	c := &fakeClient{
		defaultBranch: "main",
		files:         map[string][]string{"main": {"x"}},
		readmeErr:     &StatusError{StatusCode: http.StatusForbidden, Body: "nope"},
	}

	got, err := FetchStructure(context.Background(), c, "owner", "repo")
	if err != nil {
		t.Fatalf("FetchStructure error: %v", err)
	}
	if len(got.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want one readme warning", got.Warnings)
	}
}

func TestFetchStructure_NotFound(t *testing.T) {
	c := &fakeClient{defaultBranchErr: &StatusError{StatusCode: http.StatusNotFound}}

	_, err := FetchStructure(context.Background(), c, "owner", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchStructure_StopsOnAuthError(t *testing.T) {
	c := &fakeClient{
		defaultBranch: "main",
		listErr:       map[string]error{"main": &StatusError{StatusCode: http.StatusUnauthorized}},
	}

	if _, err := FetchStructure(context.Background(), c, "owner", "repo"); err == nil {
		t.Fatal("expected error")
	}
	if diff := cmp.Diff([]string{"main"}, c.listed); diff != "" {
		t.Fatalf("should not try other branches after an auth error (-want +got):\n%s", diff)
	}
}

func TestFetchStructure_TruncatedListIsWarning(t *testing.T) {
	c := &fakeClient{
		defaultBranch: "main",
		files:         map[string][]string{"main": {"b.go", "a.go"}},
		listErr:       map[string]error{"main": fmt.Errorf("%w after 1 pages", ErrTruncated)},
	}

	got, err := FetchStructure(context.Background(), c, "owner", "repo")
	if err != nil {
		t.Fatalf("FetchStructure error: %v", err)
	}
	if diff := cmp.Diff([]string{"a.go", "b.go"}, got.Files); diff != "" {
		t.Fatalf("Files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"files: file list truncated after 1 pages"}, got.Warnings); diff != "" {
		t.Fatalf("Warnings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"main"}, c.listed); diff != "" {
		t.Fatalf("a truncated listing should not fall back to other branches (-want +got):\n%s", diff)
	}
}

func TestNewClient(t *testing.T) {
	for _, typ := range []repourl.Type{repourl.GitHub, repourl.GitLab, repourl.Bitbucket} {
		c, err := NewClient(typ, Options{})
		if err != nil {
			t.Fatalf("NewClient(%s) error: %v", typ, err)
		}
		if c.Type() != typ {
			t.Fatalf("Type() = %s, want %s", c.Type(), typ)
		}
	}

	if _, err := NewClient(repourl.Local, Options{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Provider: repourl.GitLab, StatusCode: http.StatusNotFound, Body: "404 Project Not Found"}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("404 should match ErrNotFound")
	}
	if errors.Is(&StatusError{StatusCode: http.StatusForbidden}, ErrNotFound) {
		t.Fatal("403 should not match ErrNotFound")
	}
	if got := err.Error(); got != "gitlab API error: 404 - 404 Project Not Found" {
		t.Fatalf("Error() = %q", got)
	}
}
