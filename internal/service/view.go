package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/storage/sqlite"
)

// View modes. Source order groups by subscription, time order is newest
// first, recommend order is scored against the reading profile.
const (
	ModeSource    = "source"
	ModeTime      = "time"
	ModeRecommend = "recommend"
)

// DayView is the assembled reading list for one date.
type DayView struct {
	Date       string
	Mode       string
	StrictLive bool
	Items      []domain.ArticleItem
	// Degraded subscriptions whose cached items were substituted, with
	// their staleness, keyed by subscription name.
	Stale map[string]time.Duration
}

type ViewService struct {
	articles  ArticleStore
	snapshots SnapshotStore
	recommend *RecommendService
}

func NewViewService(articles ArticleStore, snapshots SnapshotStore, recommend *RecommendService) *ViewService {
	return &ViewService{articles: articles, snapshots: snapshots, recommend: recommend}
}

// Assemble builds the day view from stored articles, substituting cached
// snapshot items for subscriptions the run could not refresh. Strict-live
// drops those substitutions instead.
func (s *ViewService) Assemble(ctx context.Context, date, mode string, stats *domain.RunStats, strictLive bool) (*DayView, error) {
	view := &DayView{
		Date:       date,
		Mode:       mode,
		StrictLive: strictLive,
		Stale:      map[string]time.Duration{},
	}

	items, err := s.articles.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	live := map[string]bool{}
	if stats != nil {
		for _, res := range stats.Results {
			switch res.Outcome {
			case domain.OutcomeOK:
				live[res.Name] = true
			case domain.OutcomeDelayed:
				if strictLive {
					continue
				}
				view.Stale[res.Name] = res.CacheStaleness
				cached, err := s.cachedItems(ctx, res.SubscriptionID, date)
				if err != nil {
					return nil, err
				}
				items = mergeCached(items, cached, res.CacheStaleness)
			}
		}
	}

	// Strict-live keeps only subscriptions that refreshed live this run.
	if strictLive && stats != nil {
		items = lo.Filter(items, func(item domain.ArticleItem, _ int) bool {
			return live[item.Subscription]
		})
	}

	switch mode {
	case ModeTime:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		})
	case ModeRecommend:
		if s.recommend != nil {
			items, err = s.recommend.Order(ctx, date, items)
			if err != nil {
				return nil, err
			}
		}
	default:
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Subscription != items[j].Subscription {
				return items[i].Subscription < items[j].Subscription
			}
			return items[i].DayID < items[j].DayID
		})
	}

	view.Items = items
	return view, nil
}

// History lists stored articles for a past date. No network, no snapshot
// substitution; what is stored is what is shown.
func (s *ViewService) History(ctx context.Context, date string) ([]domain.ArticleItem, error) {
	return s.articles.ListByDate(ctx, date)
}

// Dates lists recent dates with totals for the history index.
func (s *ViewService) Dates(ctx context.Context, limit int) ([]domain.DayCount, error) {
	return s.articles.Dates(ctx, limit)
}

func (s *ViewService) cachedItems(ctx context.Context, subscriptionID int64, date string) ([]domain.ArticleItem, error) {
	snap, err := s.snapshots.Get(ctx, subscriptionID, date)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Items, nil
}

// mergeCached adds snapshot items that are not already present live,
// marking them cached with their staleness.
func mergeCached(items, cached []domain.ArticleItem, staleness time.Duration) []domain.ArticleItem {
	seen := lo.SliceToMap(items, func(item domain.ArticleItem) (int64, struct{}) {
		return item.ArticleID, struct{}{}
	})
	for _, item := range cached {
		if _, ok := seen[item.ArticleID]; ok {
			continue
		}
		item.Cached = true
		item.Staleness = staleness
		items = append(items, item)
	}
	return items
}
