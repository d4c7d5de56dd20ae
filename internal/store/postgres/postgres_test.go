package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-archiver/internal/store"
)

var recordColumns = []string{"id", "url", "title", "published_at", "author", "text", "html_path", "saved_at"}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithPool(mock, "articles")
	require.NoError(t, err)
	return s, mock
}

func TestInsertReportsConflictAsNotInserted(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rec := store.ArticleRecord{
		URL:         "https://news.example.com/a",
		Title:       "Headline",
		PublishedAt: "2024-01-02",
		Text:        "Body",
		HTMLPath:    "out/html/headline.html",
		SavedAt:     now,
	}

	mock.ExpectExec("INSERT INTO articles").
		WithArgs(rec.URL, rec.Title, rec.PublishedAt, rec.Author, rec.Text, rec.HTMLPath, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO articles").
		WithArgs(rec.URL, rec.Title, rec.PublishedAt, rec.Author, rec.Text, rec.HTMLPath, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.Insert(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://news.example.com/a").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Exists(context.Background(), "https://news.example.com/a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectBuildsFilters(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	saved := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("AND (text IS NULL OR trim(text) = '') AND id = $1 ORDER BY id LIMIT $2")).
		WithArgs(int64(7), 5).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow(int64(7), "https://news.example.com/a", "Headline", "2024-01-02", nil, nil, "out/html/headline.html", saved))

	recs, err := s.Select(context.Background(), store.Selection{ID: 7, Limit: 5})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "Headline", recs[0].Title)
	require.Nil(t, recs[0].Author)
	require.Empty(t, recs[0].Text)
	require.Equal(t, saved, recs[0].SavedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectForceSkipsEmptyFilter(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM articles WHERE true ORDER BY id")).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow(int64(1), "https://news.example.com/a", "A", "", "Jane", "old text", "a.html", time.Time{}).
			AddRow(int64(2), "https://news.example.com/b", "B", "", nil, "", "b.html", time.Time{}))

	recs, err := s.Select(context.Background(), store.Selection{Force: true})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].Author)
	require.Equal(t, "Jane", *recs[0].Author)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTextGuardsNonEmptyRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE articles SET text = $1 WHERE id = $2 AND (text IS NULL OR trim(text) = '')")).
		WithArgs("new body", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE articles SET text = $1 WHERE id = $2")).
		WithArgs("new body", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	updated, err := s.UpdateText(context.Background(), 3, "new body", false)
	require.NoError(t, err)
	require.False(t, updated)

	updated, err = s.UpdateText(context.Background(), 3, "new body", true)
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("WHERE id = ").
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), 42)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "articles; DROP TABLE x")
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS articles").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
