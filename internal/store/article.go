package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("article not found")

// ArticleRecord is one row of the articles table.
type ArticleRecord struct {
	ID          int64
	URL         string
	Title       string
	PublishedAt string
	Author      *string
	Text        string
	HTMLPath    string
	SavedAt     time.Time
}

// Selection picks records for re-extraction. Filters compose: Force lifts
// the empty-text filter, ID restricts to one row and Limit caps the count.
type Selection struct {
	Force bool
	ID    int64
	Limit int
}

// ArticleStore persists article metadata. URL uniqueness is enforced by the
// backend; Insert never overwrites an existing row.
type ArticleStore interface {
	// Exists reports whether url is already recorded.
	Exists(ctx context.Context, url string) (bool, error)
	// Insert adds rec unless its URL exists; inserted is false for duplicates.
	Insert(ctx context.Context, rec ArticleRecord) (inserted bool, err error)
	// Get returns the record with id or ErrNotFound.
	Get(ctx context.Context, id int64) (ArticleRecord, error)
	// Select returns re-extraction candidates ordered by id.
	Select(ctx context.Context, sel Selection) ([]ArticleRecord, error)
	// UpdateText stores text for id. Without force the write only lands
	// while the stored text is still empty; updated reports whether it did.
	UpdateText(ctx context.Context, id int64, text string, force bool) (updated bool, err error)
	Close() error
}
