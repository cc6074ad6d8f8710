package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"wechat_digest/internal/domain"
)

type ArticleStore struct {
	db *sqlx.DB

	// Serializes day-id allocation so concurrent subscription syncs cannot
	// race on MAX(seq) for the same date.
	mu sync.Mutex
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// Insert stores an article and allocates the next day id for its calendar
// date. Duplicates of an already stored article, matched by normalized URL
// and then by content fingerprint, are skipped; existing day ids are never
// reassigned or renumbered.
func (s *ArticleStore) Insert(ctx context.Context, article *domain.Article, urlNorm string) (int, bool, error) {
	var existing int64
	err := s.db.GetContext(ctx, &existing, `
		SELECT id FROM articles
		WHERE subscription_id = ? AND (url_norm = ? OR fingerprint = ?)
		LIMIT 1`,
		article.SubscriptionID, urlNorm, article.Fingerprint,
	)
	if err == nil {
		return 0, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO articles (
			subscription_id, external_id, title, url, url_norm, published_at,
			calendar_date, fetched_at, excerpt, fingerprint,
			summary_text, summary_model, vector_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.SubscriptionID, article.ExternalID, article.Title, article.URL,
		urlNorm, article.PublishedAt, article.CalendarDate, article.FetchedAt,
		article.Excerpt, article.Fingerprint,
		article.SummaryText, article.SummaryModel, article.VectorJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	article.ID, err = res.LastInsertId()
	if err != nil {
		return 0, false, err
	}

	var seq int
	err = tx.GetContext(ctx, &seq,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM day_ids WHERE date = ?",
		article.CalendarDate,
	)
	if err != nil {
		return 0, false, err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO day_ids (date, seq, article_id) VALUES (?, ?, ?)",
		article.CalendarDate, seq, article.ID,
	)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return seq, true, nil
}

type itemRow struct {
	Seq         int       `db:"seq"`
	ArticleID   int64     `db:"article_id"`
	Name        string    `db:"name"`
	Title       string    `db:"title"`
	URL         string    `db:"url"`
	PublishedAt time.Time `db:"published_at"`
	SummaryText string    `db:"summary_text"`
	Excerpt     string    `db:"excerpt"`
	IsRead      bool      `db:"is_read"`
}

// ListByDate returns the assembled day view rows in day-id order.
func (s *ArticleStore) ListByDate(ctx context.Context, date string) ([]domain.ArticleItem, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT d.seq, a.id AS article_id, s.name, a.title, a.url, a.published_at,
			a.summary_text, a.excerpt,
			COALESCE(r.is_read, 0) AS is_read
		FROM day_ids d
		JOIN articles a ON a.id = d.article_id
		JOIN subscriptions s ON s.id = a.subscription_id
		LEFT JOIN read_states r ON r.article_id = a.id
		WHERE d.date = ?
		ORDER BY d.seq`,
		date,
	)
	if err != nil {
		return nil, err
	}

	items := make([]domain.ArticleItem, 0, len(rows))
	for _, row := range rows {
		summary := row.SummaryText
		if summary == "" {
			summary = row.Excerpt
		}
		items = append(items, domain.ArticleItem{
			DayID:        row.Seq,
			ArticleID:    row.ArticleID,
			Subscription: row.Name,
			Title:        row.Title,
			URL:          row.URL,
			PublishedAt:  row.PublishedAt,
			Summary:      summary,
			IsRead:       row.IsRead,
		})
	}
	return items, nil
}

// GetByDayID resolves a (date, day id) pair to the stored article.
func (s *ArticleStore) GetByDayID(ctx context.Context, date string, dayID int) (*domain.Article, error) {
	var article domain.Article
	err := s.db.GetContext(ctx, &article, `
		SELECT a.id, a.subscription_id, a.external_id, a.title, a.url,
			a.published_at, a.calendar_date, a.fetched_at, a.excerpt,
			a.fingerprint, a.summary_text, a.summary_model, a.vector_json
		FROM day_ids d
		JOIN articles a ON a.id = d.article_id
		WHERE d.date = ? AND d.seq = ?`,
		date, dayID,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}

// ArticlesByDate returns the full article rows for a date, for scoring.
func (s *ArticleStore) ArticlesByDate(ctx context.Context, date string) ([]domain.Article, error) {
	var articles []domain.Article
	err := s.db.SelectContext(ctx, &articles, `
		SELECT a.id, a.subscription_id, a.external_id, a.title, a.url,
			a.published_at, a.calendar_date, a.fetched_at, a.excerpt,
			a.fingerprint, a.summary_text, a.summary_model, a.vector_json
		FROM day_ids d
		JOIN articles a ON a.id = d.article_id
		WHERE d.date = ?
		ORDER BY d.seq`,
		date,
	)
	return articles, err
}

// ReadArticlesSince returns articles marked read after the given time, for
// building the reading profile.
func (s *ArticleStore) ReadArticlesSince(ctx context.Context, since time.Time) ([]domain.Article, error) {
	var articles []domain.Article
	err := s.db.SelectContext(ctx, &articles, `
		SELECT a.id, a.subscription_id, a.external_id, a.title, a.url,
			a.published_at, a.calendar_date, a.fetched_at, a.excerpt,
			a.fingerprint, a.summary_text, a.summary_model, a.vector_json
		FROM read_states r
		JOIN articles a ON a.id = r.article_id
		WHERE r.is_read = 1 AND r.updated_at >= ?`,
		since,
	)
	return articles, err
}

func (s *ArticleStore) SetSummary(ctx context.Context, articleID int64, text, model string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE articles SET summary_text = ?, summary_model = ? WHERE id = ?",
		text, model, articleID)
	return err
}

func (s *ArticleStore) SetVector(ctx context.Context, articleID int64, vectorJSON string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE articles SET vector_json = ? WHERE id = ?",
		vectorJSON, articleID)
	return err
}

// Dates lists recent calendar dates with article and read counts, newest
// first.
func (s *ArticleStore) Dates(ctx context.Context, limit int) ([]domain.DayCount, error) {
	var counts []domain.DayCount
	err := s.db.SelectContext(ctx, &counts, `
		SELECT d.date AS date,
			COUNT(*) AS total,
			COALESCE(SUM(r.is_read), 0) AS read
		FROM day_ids d
		LEFT JOIN read_states r ON r.article_id = d.article_id
		GROUP BY d.date
		ORDER BY d.date DESC
		LIMIT ?`,
		limit,
	)
	return counts, err
}
