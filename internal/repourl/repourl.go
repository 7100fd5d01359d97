// Package repourl turns the repository reference typed into the submit form
// into a provider, owner and repository name.
package repourl

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Type is the hosting provider of a repository.
type Type string

const (
	GitHub    Type = "github"
	GitLab    Type = "gitlab"
	Bitbucket Type = "bitbucket"
	Local     Type = "local"
)

var (
	ErrInvalidURL      = errors.New("invalid repository url")
	ErrUnsupportedHost = errors.New("unsupported repository host")
)

// Repo identifies a repository on a host or on the local disk.
type Repo struct {
	Type  Type   `json:"type"`
	Host  string `json:"host,omitempty"`
	Owner string `json:"owner"`
	Name  string `json:"repo"`
	URL   string `json:"url"`
	Path  string `json:"local_path,omitempty"`
}

// FullName returns "owner/repo".
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// Parser classifies hosts. Self-hosted GitLab instances are recognized only
// when listed in GitLabHosts.
type Parser struct {
	GitLabHosts []string
}

// Parse uses a Parser with no self-hosted instances.
func Parse(input string) (Repo, error) {
	return Parser{}.Parse(input)
}

// Parse accepts https URLs, scp-style ssh URLs, "owner/repo" shorthand for
// GitHub and absolute local paths.
func (p Parser) Parse(input string) (Repo, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Repo{}, fmt.Errorf("%w: empty input", ErrInvalidURL)
	}

	switch {
	case strings.HasPrefix(raw, "git@"):
		return p.parseSCP(raw)
	case strings.Contains(raw, "://"):
		return p.parseURL(raw)
	case filepath.IsAbs(raw) || isWindowsPath(raw):
		return parseLocal(raw)
	default:
		return parseShorthand(raw)
	}
}

func (p Parser) parseURL(raw string) (Repo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Repo{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ssh" {
		return Repo{}, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	return p.build(u.Hostname(), u.Path)
}

// git@host:owner/repo.git
func (p Parser) parseSCP(raw string) (Repo, error) {
	rest := strings.TrimPrefix(raw, "git@")
	host, path, ok := strings.Cut(rest, ":")
	if !ok || host == "" {
		return Repo{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return p.build(host, path)
}

func (p Parser) build(host, path string) (Repo, error) {
	host = strings.ToLower(host)
	typ, err := p.classify(host)
	if err != nil {
		return Repo{}, err
	}

	segments := splitPath(path)
	if typ == GitLab {
		// /group/subgroup/project/-/tree/main
		if i := lo.IndexOf(segments, "-"); i >= 0 {
			segments = segments[:i]
		}
	} else if len(segments) > 2 {
		segments = segments[:2]
	}
	if len(segments) < 2 {
		return Repo{}, fmt.Errorf("%w: expected owner/repo in %q", ErrInvalidURL, path)
	}

	owner := strings.Join(segments[:len(segments)-1], "/")
	name := strings.TrimSuffix(segments[len(segments)-1], ".git")
	if owner == "" || name == "" {
		return Repo{}, fmt.Errorf("%w: expected owner/repo in %q", ErrInvalidURL, path)
	}

	return Repo{
		Type:  typ,
		Host:  host,
		Owner: owner,
		Name:  name,
		URL:   fmt.Sprintf("https://%s/%s/%s", host, owner, name),
	}, nil
}

func (p Parser) classify(host string) (Type, error) {
	switch {
	case host == "github.com" || strings.HasSuffix(host, ".github.com"):
		return GitHub, nil
	case host == "gitlab.com" || strings.HasSuffix(host, ".gitlab.com"):
		return GitLab, nil
	case host == "bitbucket.org" || strings.HasSuffix(host, ".bitbucket.org"):
		return Bitbucket, nil
	}
	for _, h := range p.GitLabHosts {
		if strings.EqualFold(h, host) {
			return GitLab, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedHost, host)
}

func parseShorthand(raw string) (Repo, error) {
	segments := splitPath(raw)
	if len(segments) != 2 || strings.Contains(segments[0], ".") {
		return Repo{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	name := strings.TrimSuffix(segments[1], ".git")
	return Repo{
		Type:  GitHub,
		Host:  "github.com",
		Owner: segments[0],
		Name:  name,
		URL:   fmt.Sprintf("https://github.com/%s/%s", segments[0], name),
	}, nil
}

func parseLocal(raw string) (Repo, error) {
	clean := filepath.Clean(raw)
	name := filepath.Base(clean)
	owner := filepath.Base(filepath.Dir(clean))
	if name == "" || name == string(filepath.Separator) || name == "." {
		return Repo{}, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	if owner == string(filepath.Separator) || owner == "." {
		owner = "local"
	}
	return Repo{Type: Local, Owner: owner, Name: name, Path: clean}, nil
}

func isWindowsPath(raw string) bool {
	return len(raw) > 2 && raw[1] == ':' && (raw[2] == '\\' || raw[2] == '/')
}

func splitPath(path string) []string {
	return lo.Compact(strings.Split(strings.Trim(path, "/"), "/"))
}
