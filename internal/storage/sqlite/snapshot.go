package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"wechat_digest/internal/domain"
)

type SnapshotStore struct {
	db *sqlx.DB
}

func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save replaces the cached day view for one (subscription, date).
func (s *SnapshotStore) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	payload, err := json.Marshal(snapshot.Items)
	if err != nil {
		return fmt.Errorf("encode snapshot payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (subscription_id, date, payload, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subscription_id, date) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at`,
		snapshot.SubscriptionID, snapshot.Date, string(payload), snapshot.CachedAt.UTC(),
	)
	return err
}

// Get returns the cached day view for one (subscription, date), or
// ErrNotFound when nothing was ever cached.
func (s *SnapshotStore) Get(ctx context.Context, subscriptionID int64, date string) (*domain.Snapshot, error) {
	var row struct {
		Payload  string    `db:"payload"`
		CachedAt time.Time `db:"cached_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT payload, cached_at FROM snapshots
		WHERE subscription_id = ? AND date = ?`,
		subscriptionID, date,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var items []domain.ArticleItem
	if err := json.Unmarshal([]byte(row.Payload), &items); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	return &domain.Snapshot{
		SubscriptionID: subscriptionID,
		Date:           date,
		Items:          items,
		CachedAt:       row.CachedAt,
	}, nil
}
