package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"wechat_digest/internal/domain"
)

type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

// Record persists a finished sync run with its per-subscription outcomes.
// The run header and its items must land together, so callers wrap Record
// in TransactionManager.WithTransaction.
func (s *RunStore) Record(ctx context.Context, stats *domain.RunStats) error {
	ex := GetExecutor(ctx, s.db)

	ok, delayed, failed := stats.Counts()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, trigger_kind, started_at, finished_at,
			total, ok, delayed, failed, auth_aborted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.RunID, stats.Trigger, stats.StartedAt.UTC(), stats.FinishedAt.UTC(),
		len(stats.Results), ok, delayed, failed, stats.AuthAborted,
	)
	if err != nil {
		return err
	}

	for _, res := range stats.Results {
		_, err = ex.ExecContext(ctx, `
			INSERT INTO sync_run_items (
				run_id, subscription_id, subscription_name, outcome,
				strategy, new_articles, error_kind, error_message
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stats.RunID, res.SubscriptionID, res.Name, res.Outcome,
			res.Strategy, res.NewArticles, res.ErrorKind, res.ErrorMessage,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

type runRow struct {
	ID          string    `db:"id"`
	TriggerKind string    `db:"trigger_kind"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	Total       int       `db:"total"`
	OK          int       `db:"ok"`
	Delayed     int       `db:"delayed"`
	Failed      int       `db:"failed"`
	AuthAborted bool      `db:"auth_aborted"`
}

type itemDBRow struct {
	SubscriptionID   int64  `db:"subscription_id"`
	SubscriptionName string `db:"subscription_name"`
	Outcome          string `db:"outcome"`
	Strategy         string `db:"strategy"`
	NewArticles      int    `db:"new_articles"`
	ErrorKind        string `db:"error_kind"`
	ErrorMessage     string `db:"error_message"`
}

// LatestBetween returns the most recent run started in [from, to), with its
// per-subscription items, or ErrNotFound when no run exists in the window.
func (s *RunStore) LatestBetween(ctx context.Context, from, to time.Time) (*domain.RunStats, error) {
	var run runRow
	err := s.db.GetContext(ctx, &run, `
		SELECT * FROM sync_runs
		WHERE started_at >= ? AND started_at < ?
		ORDER BY started_at DESC
		LIMIT 1`,
		from.UTC(), to.UTC(),
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, run)
}

// Latest returns the most recent run overall, or ErrNotFound.
func (s *RunStore) Latest(ctx context.Context) (*domain.RunStats, error) {
	var run runRow
	err := s.db.GetContext(ctx, &run,
		"SELECT * FROM sync_runs ORDER BY started_at DESC LIMIT 1")
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, run)
}

func (s *RunStore) load(ctx context.Context, run runRow) (*domain.RunStats, error) {
	var items []itemDBRow
	err := s.db.SelectContext(ctx, &items, `
		SELECT subscription_id, subscription_name, outcome, strategy,
			new_articles, error_kind, error_message
		FROM sync_run_items
		WHERE run_id = ?
		ORDER BY subscription_name`,
		run.ID,
	)
	if err != nil {
		return nil, err
	}

	stats := &domain.RunStats{
		RunID:       run.ID,
		Trigger:     run.TriggerKind,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		AuthAborted: run.AuthAborted,
	}
	for _, item := range items {
		stats.Results = append(stats.Results, domain.SubscriptionResult{
			SubscriptionID: item.SubscriptionID,
			Name:           item.SubscriptionName,
			Outcome:        domain.Outcome(item.Outcome),
			Strategy:       item.Strategy,
			NewArticles:    item.NewArticles,
			ErrorKind:      item.ErrorKind,
			ErrorMessage:   item.ErrorMessage,
		})
	}
	return stats, nil
}
