package wikicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const badgerPrefix = "wiki:"

// BadgerStore persists entries in an embedded badger database, one JSON
// value per key.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenBadgerStore opens or creates a database in dir. An empty dir keeps the
// database in memory.
func OpenBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger wiki cache: %w", err)
	}
	return NewBadgerStore(db, logger), nil
}

func NewBadgerStore(db *badger.DB, logger *zap.Logger) *BadgerStore {
	return &BadgerStore{db: db, logger: logger.Named("wikicache.badger"), now: time.Now}
}

// badgerKey escapes each field so owners with slashes cannot collide.
func badgerKey(k Key) []byte {
	parts := []string{k.RepoType, k.Owner, k.Repo, k.Language}
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return []byte(badgerPrefix + strings.Join(parts, ":"))
}

func (s *BadgerStore) Get(_ context.Context, key Key) (*Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &entry)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read wiki cache %s: %w", key, err)
	}
	return &entry, nil
}

func (s *BadgerStore) Put(_ context.Context, entry *Entry) error {
	cleaned, err := prepare(entry, s.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return fmt.Errorf("encode wiki cache entry: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(cleaned.Key), data)
	}); err != nil {
		return fmt.Errorf("write wiki cache %s: %w", cleaned.Key, err)
	}
	s.logger.Debug("wiki cached", zap.String("key", cleaned.Key.String()), zap.Int("bytes", len(data)))
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		k := badgerKey(key)
		if _, err := txn.Get(k); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(k)
	})
}

func (s *BadgerStore) List(_ context.Context) ([]Summary, error) {
	var out []Summary
	prefix := []byte(badgerPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var e Entry
				if err := json.Unmarshal(v, &e); err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				out = append(out, e.summary())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list wiki cache: %w", err)
	}
	sortSummaries(out)
	return out, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

var _ Store = (*BadgerStore)(nil)
