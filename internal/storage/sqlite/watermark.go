package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

type WatermarkStore struct {
	db *sqlx.DB
}

func NewWatermarkStore(db *sqlx.DB) *WatermarkStore {
	return &WatermarkStore{db: db}
}

// Get returns the last successful sync time for a subscription. A zero time
// means the subscription has never been synced.
func (s *WatermarkStore) Get(ctx context.Context, subscriptionID int64) (time.Time, error) {
	var ts time.Time
	err := s.db.GetContext(ctx, &ts,
		"SELECT last_success_at FROM watermarks WHERE subscription_id = ?",
		subscriptionID)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// Advance moves the watermark forward. A value at or behind the stored one
// leaves the row untouched, so failed or replayed runs can never regress it.
func (s *WatermarkStore) Advance(ctx context.Context, subscriptionID int64, ts time.Time) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO watermarks (subscription_id, last_success_at)
		VALUES (?, ?)
		ON CONFLICT (subscription_id) DO UPDATE SET
			last_success_at = excluded.last_success_at
		WHERE excluded.last_success_at > watermarks.last_success_at`,
		subscriptionID, ts.UTC(),
	)
	return err
}
