package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"wechat_digest/internal/domain"
)

type SubscriptionStore interface {
	List(ctx context.Context) ([]domain.Subscription, error)
	GetByName(ctx context.Context, name string) (*domain.Subscription, error)
	Add(ctx context.Context, sub *domain.Subscription) error
	Remove(ctx context.Context, name string) error
}

type ArticleStore interface {
	Insert(ctx context.Context, article *domain.Article, urlNorm string) (int, bool, error)
	ListByDate(ctx context.Context, date string) ([]domain.ArticleItem, error)
	GetByDayID(ctx context.Context, date string, dayID int) (*domain.Article, error)
	ArticlesByDate(ctx context.Context, date string) ([]domain.Article, error)
	ReadArticlesSince(ctx context.Context, since time.Time) ([]domain.Article, error)
	SetSummary(ctx context.Context, articleID int64, text, model string) error
	SetVector(ctx context.Context, articleID int64, vectorJSON string) error
	Dates(ctx context.Context, limit int) ([]domain.DayCount, error)
}

type ReadStateStore interface {
	Set(ctx context.Context, articleID int64, isRead bool) error
	Get(ctx context.Context, articleID int64) (bool, error)
}

type WatermarkStore interface {
	Get(ctx context.Context, subscriptionID int64) (time.Time, error)
	Advance(ctx context.Context, subscriptionID int64, ts time.Time) error
}

type SnapshotStore interface {
	Save(ctx context.Context, snapshot *domain.Snapshot) error
	Get(ctx context.Context, subscriptionID int64, date string) (*domain.Snapshot, error)
}

type RunStore interface {
	Record(ctx context.Context, stats *domain.RunStats) error
	LatestBetween(ctx context.Context, from, to time.Time) (*domain.RunStats, error)
	Latest(ctx context.Context) (*domain.RunStats, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Discoverer interface {
	Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, string, error)
	Strategies() []string
}

type Summarizer interface {
	Summarize(ctx context.Context, article *domain.Article) (text, model string)
	Embed(ctx context.Context, text string) (vectorJSON, model string)
}
