// Package postgres implements store.ArticleStore on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/news-archiver/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for article rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store writes article rows into Postgres. The unique url column is the
// concurrency backstop.
type Store struct {
	pool  pool
	table string
}

// New connects a pool and ensures the articles table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// EnsureSchema creates the articles table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	url TEXT UNIQUE NOT NULL,
	title TEXT,
	published_at TEXT,
	author TEXT,
	text TEXT,
	html_path TEXT,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create articles table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Exists implements store.ArticleStore.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE url = $1)", s.table)
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("query article: %w", err)
	}
	return exists, nil
}

// Insert implements store.ArticleStore.
func (s *Store) Insert(ctx context.Context, rec store.ArticleRecord) (bool, error) {
	savedAt := rec.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	title,
	published_at,
	author,
	text,
	html_path,
	saved_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
) ON CONFLICT (url) DO NOTHING`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		rec.URL,
		rec.Title,
		rec.PublishedAt,
		rec.Author,
		rec.Text,
		rec.HTMLPath,
		savedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get implements store.ArticleStore.
func (s *Store) Get(ctx context.Context, id int64) (store.ArticleRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", columns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ArticleRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.ArticleRecord{}, fmt.Errorf("get article %d: %w", id, err)
	}
	return rec, nil
}

// Select implements store.ArticleStore.
func (s *Store) Select(ctx context.Context, sel store.Selection) ([]store.ArticleRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE true", columns, s.table)
	var args []any
	if !sel.Force {
		query += " AND " + emptyText
	}
	if sel.ID > 0 {
		args = append(args, sel.ID)
		query += " AND id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY id"
	if sel.Limit > 0 {
		args = append(args, sel.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select articles: %w", err)
	}
	defer rows.Close()

	var out []store.ArticleRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

// UpdateText implements store.ArticleStore.
func (s *Store) UpdateText(ctx context.Context, id int64, text string, force bool) (bool, error) {
	query := fmt.Sprintf("UPDATE %s SET text = $1 WHERE id = $2", s.table)
	if !force {
		query += " AND " + emptyText
	}
	tag, err := s.pool.Exec(ctx, query, text, id)
	if err != nil {
		return false, fmt.Errorf("update article %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

const (
	columns   = "id, url, title, published_at, author, text, html_path, saved_at"
	emptyText = "(text IS NULL OR trim(text) = '')"
)

func scanRecord(row pgx.Row) (store.ArticleRecord, error) {
	var (
		rec                    store.ArticleRecord
		title, published, text sql.NullString
		author, htmlPath       sql.NullString
		savedAt                sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.URL, &title, &published, &author, &text, &htmlPath, &savedAt); err != nil {
		return store.ArticleRecord{}, err //nolint:wrapcheck // callers wrap with context
	}
	rec.Title = title.String
	rec.PublishedAt = published.String
	rec.Text = text.String
	rec.HTMLPath = htmlPath.String
	rec.SavedAt = savedAt.Time
	if author.Valid {
		a := author.String
		rec.Author = &a
	}
	return rec, nil
}

var _ store.ArticleStore = (*Store)(nil)
