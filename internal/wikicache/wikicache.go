// Package wikicache stores generated wikis per repository and language.
package wikicache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrNotFound = errors.New("wiki cache entry not found")

// Languages lists the wiki languages the client offers.
var Languages = []string{"en", "ja", "zh", "zh-tw", "es", "kr", "vi", "pt-br", "fr", "ru"}

var validate = validator.New()

// Key identifies one cached wiki.
type Key struct {
	Owner    string `json:"owner" validate:"required,max=255"`
	Repo     string `json:"repo" validate:"required,max=255"`
	RepoType string `json:"repo_type" validate:"required,oneof=github gitlab bitbucket local"`
	Language string `json:"language" validate:"required,oneof=en ja zh zh-tw es kr vi pt-br fr ru"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s/%s:%s", k.RepoType, k.Owner, k.Repo, k.Language)
}

// Validate reports whether every field of k is set and supported.
func (k Key) Validate() error {
	if err := validate.Struct(k); err != nil {
		return fmt.Errorf("invalid cache key %s: %w", k, err)
	}
	return nil
}

// Page is one wiki page.
type Page struct {
	ID           string   `json:"id" validate:"required"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	FilePaths    []string `json:"filePaths,omitempty"`
	Importance   string   `json:"importance,omitempty" validate:"omitempty,oneof=high medium low"`
	RelatedPages []string `json:"relatedPages,omitempty"`
}

// Structure is the table of contents of a wiki.
type Structure struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Pages       []Page `json:"pages" validate:"dive"`
}

// Entry is a cached wiki.
type Entry struct {
	Key            Key             `json:"key"`
	RepoURL        string          `json:"repo_url,omitempty"`
	Structure      Structure       `json:"wiki_structure"`
	GeneratedPages map[string]Page `json:"generated_pages" validate:"dive"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Summary describes a cached wiki without its pages.
type Summary struct {
	Key       Key       `json:"key"`
	Title     string    `json:"title"`
	PageCount int       `json:"page_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Entry) summary() Summary {
	return Summary{Key: e.Key, Title: e.Structure.Title, PageCount: len(e.GeneratedPages), UpdatedAt: e.UpdatedAt}
}

// Store persists cached wikis.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key Key) error
	// List returns summaries, most recently updated first.
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// prepare validates entry and returns the cleaned copy that gets stored.
func prepare(entry *Entry, now time.Time) (*Entry, error) {
	if entry == nil {
		return nil, errors.New("nil cache entry")
	}
	if err := entry.Key.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(entry); err != nil {
		return nil, fmt.Errorf("invalid cache entry %s: %w", entry.Key, err)
	}

	out := *entry
	out.RepoURL = stripCredentials(entry.RepoURL)
	out.Structure.Title = CleanText(entry.Structure.Title)
	out.Structure.Description = CleanText(entry.Structure.Description)
	out.Structure.Pages = make([]Page, len(entry.Structure.Pages))
	for i, p := range entry.Structure.Pages {
		out.Structure.Pages[i] = cleanPage(p)
	}
	out.GeneratedPages = make(map[string]Page, len(entry.GeneratedPages))
	for id, p := range entry.GeneratedPages {
		out.GeneratedPages[id] = cleanPage(p)
	}
	out.UpdatedAt = now.UTC()
	return &out, nil
}

func cleanPage(p Page) Page {
	p.Title = CleanText(p.Title)
	p.Content = CleanContent(p.Content)
	return p
}

// stripCredentials drops user info such as https://token@host/ from a
// repository URL.
func stripCredentials(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return RedactTokens(raw)
	}
	u.User = nil
	return u.String()
}
