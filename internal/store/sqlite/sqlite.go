// Package sqlite implements store.ArticleStore on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/JakeFAU/news-archiver/internal/store"
)

// ErrDatabaseMissing is returned when Options.MustExist is set and the file is absent.
var ErrDatabaseMissing = errors.New("database file not found")

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY,
	url TEXT UNIQUE NOT NULL,
	title TEXT,
	published_at TEXT,
	author TEXT,
	text TEXT,
	html_path TEXT,
	saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const columns = "id, url, title, published_at, author, text, html_path, saved_at"

// emptyText matches rows still waiting for body text.
const emptyText = "(text IS NULL OR trim(text) = '')"

// Options tunes how the database is opened.
type Options struct {
	// MustExist refuses to create a new database file.
	MustExist bool
}

// Store persists articles in SQLite. Writes are serialized through a
// single connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.MustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseMissing, path)
		}
	} else if isFilePath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", withPragmas(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// isFilePath is false for in-memory and URI style DSNs.
func isFilePath(path string) bool {
	return path != ":memory:" && !strings.HasPrefix(path, "file:")
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err //nolint:wrapcheck // wrapped by Open
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists implements store.ArticleStore.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE url = ?", url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query article: %w", err)
	}
	return true, nil
}

// Insert implements store.ArticleStore.
func (s *Store) Insert(ctx context.Context, rec store.ArticleRecord) (bool, error) {
	savedAt := rec.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO articles (url, title, published_at, author, text, html_path, saved_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.URL, rec.Title, rec.PublishedAt, rec.Author, rec.Text, rec.HTMLPath, savedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n == 1, nil
}

// Get implements store.ArticleStore.
func (s *Store) Get(ctx context.Context, id int64) (store.ArticleRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM articles WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ArticleRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.ArticleRecord{}, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	return rec, nil
}

// Select implements store.ArticleStore.
func (s *Store) Select(ctx context.Context, sel store.Selection) ([]store.ArticleRecord, error) {
	query := "SELECT " + columns + " FROM articles WHERE 1 = 1"
	var args []any
	if !sel.Force {
		query += " AND " + emptyText
	}
	if sel.ID > 0 {
		query += " AND id = ?"
		args = append(args, sel.ID)
	}
	query += " ORDER BY id"
	if sel.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, sel.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select articles: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []store.ArticleRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return out, nil
}

// UpdateText implements store.ArticleStore.
func (s *Store) UpdateText(ctx context.Context, id int64, text string, force bool) (bool, error) {
	query := "UPDATE articles SET text = ? WHERE id = ?"
	if !force {
		query += " AND " + emptyText
	}
	res, err := s.db.ExecContext(ctx, query, text, id)
	if err != nil {
		return false, fmt.Errorf("failed to update article %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (store.ArticleRecord, error) {
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
