package wikicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS wiki_cache (
  repo_type TEXT NOT NULL,
  owner TEXT NOT NULL,
  repo TEXT NOT NULL,
  language TEXT NOT NULL,
  repo_url TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  page_count INTEGER NOT NULL DEFAULT 0,
  entry JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (repo_type, owner, repo, language)
);

CREATE INDEX IF NOT EXISTS idx_wiki_cache_updated ON wiki_cache (updated_at DESC);
`

// PostgresStore keeps entries in the wiki_cache table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    func() time.Time
}

// Connect creates a connection pool tuned for a small service.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 10 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// AutoMigrate creates the wiki_cache table when missing.
func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// OpenPostgresStore connects to url and applies the schema.
func OpenPostgresStore(ctx context.Context, url string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate wiki cache schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger.Named("wikicache.postgres"), now: time.Now}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.pool.QueryRow(ctx, `
        SELECT entry FROM wiki_cache
        WHERE repo_type = $1 AND owner = $2 AND repo = $3 AND language = $4
    `, key.RepoType, key.Owner, key.Repo, key.Language).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read wiki cache %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode wiki cache %s: %w", key, err)
	}
	return &entry, nil
}

func (s *PostgresStore) Put(ctx context.Context, entry *Entry) error {
	cleaned, err := prepare(entry, s.now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return fmt.Errorf("encode wiki cache entry: %w", err)
	}

	k := cleaned.Key
	_, err = s.pool.Exec(ctx, `
        INSERT INTO wiki_cache (repo_type, owner, repo, language, repo_url, title, page_count, entry, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (repo_type, owner, repo, language) DO UPDATE
        SET repo_url = EXCLUDED.repo_url,
            title = EXCLUDED.title,
            page_count = EXCLUDED.page_count,
            entry = EXCLUDED.entry,
            updated_at = EXCLUDED.updated_at
    `, k.RepoType, k.Owner, k.Repo, k.Language, cleaned.RepoURL, cleaned.Structure.Title,
		len(cleaned.GeneratedPages), data, cleaned.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write wiki cache %s: %w", k, err)
	}
	s.logger.Debug("wiki cached", zap.String("key", k.String()))
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
        DELETE FROM wiki_cache
        WHERE repo_type = $1 AND owner = $2 AND repo = $3 AND language = $4
    `, key.RepoType, key.Owner, key.Repo, key.Language)
	if err != nil {
		return fmt.Errorf("delete wiki cache %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT repo_type, owner, repo, language, title, page_count, updated_at
        FROM wiki_cache
        ORDER BY updated_at DESC, repo_type, owner, repo, language
    `)
	if err != nil {
		return nil, fmt.Errorf("list wiki cache: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Key.RepoType, &sum.Key.Owner, &sum.Key.Repo, &sum.Key.Language,
			&sum.Title, &sum.PageCount, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan wiki cache row: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wiki cache: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
