package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"wechat_digest/internal/domain"
)

type SubscriptionStore struct {
	db *sqlx.DB
}

func NewSubscriptionStore(db *sqlx.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// ErrDuplicateName is returned when a subscription with the same name exists.
var ErrDuplicateName = errors.New("subscription name already exists")

func (s *SubscriptionStore) Add(ctx context.Context, sub *domain.Subscription) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO subscriptions (name, wechat_id, bound_account, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		sub.Name, sub.WechatID, sub.BoundAccount, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	}
	sub.ID, err = res.LastInsertId()
	return err
}

func (s *SubscriptionStore) Remove(ctx context.Context, name string) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM subscriptions WHERE name = ?", name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SubscriptionStore) GetByName(ctx context.Context, name string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.GetContext(ctx, &sub,
		"SELECT * FROM subscriptions WHERE name = ?", name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SubscriptionStore) List(ctx context.Context) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := s.db.SelectContext(ctx, &subs,
		"SELECT * FROM subscriptions ORDER BY name")
	return subs, err
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *domain.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		UPDATE subscriptions
		SET wechat_id = ?, bound_account = ?, updated_at = ?
		WHERE id = ?`,
		sub.WechatID, sub.BoundAccount, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		// 2067 = SQLITE_CONSTRAINT_UNIQUE, 1555 = SQLITE_CONSTRAINT_PRIMARYKEY
		return se.Code() == 2067 || se.Code() == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
