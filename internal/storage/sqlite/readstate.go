package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

type ReadStateStore struct {
	db *sqlx.DB
}

func NewReadStateStore(db *sqlx.DB) *ReadStateStore {
	return &ReadStateStore{db: db}
}

// Set marks an article read or unread. Marking an already matching state is
// a harmless no-op apart from the timestamp refresh.
func (s *ReadStateStore) Set(ctx context.Context, articleID int64, isRead bool) error {
	var exists int64
	err := s.db.GetContext(ctx, &exists,
		"SELECT id FROM articles WHERE id = ?", articleID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO read_states (article_id, is_read, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (article_id) DO UPDATE SET
			is_read = excluded.is_read,
			updated_at = excluded.updated_at`,
		articleID, isRead, time.Now().UTC(),
	)
	return err
}

// Get reports whether an article is read. Unknown articles are unread.
func (s *ReadStateStore) Get(ctx context.Context, articleID int64) (bool, error) {
	var isRead bool
	err := s.db.GetContext(ctx, &isRead,
		"SELECT is_read FROM read_states WHERE article_id = ?", articleID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isRead, nil
}
