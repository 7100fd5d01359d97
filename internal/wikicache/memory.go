package wikicache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	cleaned, err := prepare(entry, s.now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[cleaned.Key] = cleaned
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.summary())
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// sortSummaries orders by UpdatedAt descending, then by key.
func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].Key.String() < s[j].Key.String()
	})
}

func cloneEntry(e *Entry) *Entry {
	out := *e
	out.Structure.Pages = make([]Page, len(e.Structure.Pages))
	for i, p := range e.Structure.Pages {
		out.Structure.Pages[i] = clonePage(p)
	}
	out.GeneratedPages = make(map[string]Page, len(e.GeneratedPages))
	for id, p := range e.GeneratedPages {
		out.GeneratedPages[id] = clonePage(p)
	}
	return &out
}

func clonePage(p Page) Page {
	p.FilePaths = append([]string(nil), p.FilePaths...)
	p.RelatedPages = append([]string(nil), p.RelatedPages...)
	return p
}

var _ Store = (*MemoryStore)(nil)
