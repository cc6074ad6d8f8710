// Package sqlite is the durable local store: subscriptions, articles with
// their per-day ids, read state, sync watermarks, run records and cached
// day snapshots.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	wechat_id TEXT NOT NULL DEFAULT '',
	bound_account TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subscription_id INTEGER NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
	external_id TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	url_norm TEXT NOT NULL,
	published_at TIMESTAMP NOT NULL,
	calendar_date TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	excerpt TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	summary_text TEXT NOT NULL DEFAULT '',
	summary_model TEXT NOT NULL DEFAULT '',
	vector_json TEXT NOT NULL DEFAULT '',
	UNIQUE (subscription_id, url_norm)
);
CREATE INDEX IF NOT EXISTS idx_articles_calendar_date ON articles (calendar_date);
CREATE INDEX IF NOT EXISTS idx_articles_fingerprint ON articles (subscription_id, fingerprint);

CREATE TABLE IF NOT EXISTS day_ids (
	date TEXT NOT NULL,
	seq INTEGER NOT NULL,
	article_id INTEGER NOT NULL UNIQUE REFERENCES articles(id) ON DELETE CASCADE,
	PRIMARY KEY (date, seq)
);

CREATE TABLE IF NOT EXISTS read_states (
	article_id INTEGER PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
	is_read INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS watermarks (
	subscription_id INTEGER PRIMARY KEY REFERENCES subscriptions(id) ON DELETE CASCADE,
	last_success_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	subscription_id INTEGER NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
	date TEXT NOT NULL,
	payload TEXT NOT NULL,
	cached_at TIMESTAMP NOT NULL,
	PRIMARY KEY (subscription_id, date)
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	trigger_kind TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	total INTEGER NOT NULL,
	ok INTEGER NOT NULL,
	delayed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	auth_aborted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs (started_at);

CREATE TABLE IF NOT EXISTS sync_run_items (
	run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
	subscription_id INTEGER NOT NULL,
	subscription_name TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	strategy TEXT NOT NULL DEFAULT '',
	new_articles INTEGER NOT NULL DEFAULT 0,
	error_kind TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, subscription_id)
);
`

// Open creates the database file if needed and prepares the schema.
func Open(path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

type ctxKey string

const txKey ctxKey = "tx"

// TransactionManager groups writes that must land together, like a run
// header with its per-subscription items. Stores discover the open
// transaction through the context via GetExecutor.
type TransactionManager struct {
	db *sqlx.DB
}

func NewTransactionManager(db *sqlx.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction runs fn inside a transaction, committing on nil and
// rolling back on error.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := tm.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func GetTxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey).(*sqlx.Tx)
	return tx
}

func GetExecutor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := GetTxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
