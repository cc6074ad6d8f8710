package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"wechat_digest/internal/config"
	"wechat_digest/internal/discovery"
	"wechat_digest/internal/domain"
	"wechat_digest/internal/timeutil"
)

// errAuthAbort cancels the remaining subscriptions of a strict-auth run.
// Results committed before the abort stay committed.
var errAuthAbort = errors.New("authentication failure aborted sync")

type SyncService struct {
	subs       SubscriptionStore
	articles   ArticleStore
	watermarks WatermarkStore
	snapshots  SnapshotStore
	runs       RunStore
	txManager  TransactionManager
	chain      Discoverer
	summarizer Summarizer
	logger     *slog.Logger
	cfg        config.SyncConfig
	strictAuth bool
	clock      func() time.Time
}

func NewSyncService(
	subs SubscriptionStore,
	articles ArticleStore,
	watermarks WatermarkStore,
	snapshots SnapshotStore,
	runs RunStore,
	txManager TransactionManager,
	chain Discoverer,
	summarizer Summarizer,
	logger *slog.Logger,
	cfg config.SyncConfig,
	strictAuth bool,
) *SyncService {
	return &SyncService{
		subs:       subs,
		articles:   articles,
		watermarks: watermarks,
		snapshots:  snapshots,
		runs:       runs,
		txManager:  txManager,
		chain:      chain,
		summarizer: summarizer,
		logger:     logger,
		cfg:        cfg,
		strictAuth: strictAuth,
		clock:      time.Now,
	}
}

// Sync refreshes every subscription for the given viewing date and records
// the run. It never returns an error for per-subscription failures; those
// are reported as outcomes. The returned stats are also persisted.
func (s *SyncService) Sync(ctx context.Context, trigger, date string) (*domain.RunStats, error) {
	started := s.clock()
	stats := &domain.RunStats{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: started,
	}

	subs, err := s.subs.List(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("starting sync",
		"run_id", stats.RunID,
		"trigger", trigger,
		"date", date,
		"subscriptions", len(subs),
		"strategies", s.chain.Strategies(),
	)

	results := make([]domain.SubscriptionResult, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = domain.SubscriptionResult{
					SubscriptionID: sub.ID,
					Name:           sub.Name,
					Outcome:        domain.OutcomeFailed,
					ErrorKind:      string(discovery.KindAuthRequired),
					ErrorMessage:   "not attempted: run aborted on authentication failure",
				}
				return nil
			}

			result, abort := s.syncOne(gctx, sub, date, started)
			results[i] = result
			if abort {
				return errAuthAbort
			}
			return nil
		})
	}
	// Workers only signal the abort; the shared stats field is written here,
	// after every goroutine has finished.
	waitErr := g.Wait()
	if waitErr != nil && !errors.Is(waitErr, errAuthAbort) {
		return nil, waitErr
	}
	stats.AuthAborted = errors.Is(waitErr, errAuthAbort)

	stats.Results = results
	stats.FinishedAt = s.clock()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.runs.Record(txCtx, stats)
	})
	if err != nil {
		s.logger.Error("record sync run", "error", err)
	}

	ok, delayed, failed := stats.Counts()
	s.logger.Info("sync completed",
		"run_id", stats.RunID,
		"ok", ok,
		"delayed", delayed,
		"failed", failed,
		"duration", stats.FinishedAt.Sub(started),
	)

	return stats, nil
}

// syncOne handles a single subscription: discover, dedup, store, snapshot.
// On live failure it degrades to the cached snapshot when one exists. The
// abort flag is set only for auth failures under strict mode.
func (s *SyncService) syncOne(ctx context.Context, sub domain.Subscription, date string, started time.Time) (domain.SubscriptionResult, bool) {
	result := domain.SubscriptionResult{SubscriptionID: sub.ID, Name: sub.Name}

	if s.cfg.ExtremeLocalMode {
		return s.degrade(ctx, sub, date, started, result,
			discovery.Errf(discovery.KindTransient, "extreme local mode, no live strategies attempted")), false
	}

	since, err := s.sinceFor(ctx, sub)
	if err != nil {
		result.Outcome = domain.OutcomeFailed
		result.ErrorKind = string(discovery.KindTransient)
		result.ErrorMessage = err.Error()
		return result, false
	}

	discovered, strategy, err := s.chain.Discover(ctx, sub, since)
	if err != nil {
		kind := discovery.KindOf(err)
		if kind.Auth() && s.strictAuth {
			result.Outcome = domain.OutcomeFailed
			result.ErrorKind = string(kind)
			result.ErrorMessage = err.Error()
			return result, true
		}
		return s.degrade(ctx, sub, date, started, result, err), false
	}

	result.Strategy = strategy
	result.NewArticles = s.store(ctx, sub, discovered, started)
	result.Outcome = domain.OutcomeOK

	if err := s.snapshot(ctx, sub, date, started); err != nil {
		s.logger.Warn("save snapshot", "subscription", sub.Name, "error", err)
	}
	if err := s.watermarks.Advance(ctx, sub.ID, started); err != nil {
		s.logger.Warn("advance watermark", "subscription", sub.Name, "error", err)
	}

	return result, false
}

// sinceFor computes the incremental window start: last success minus the
// overlap. Never-synced subscriptions, and non-incremental mode, use the
// zero time and take everything the strategy offers.
func (s *SyncService) sinceFor(ctx context.Context, sub domain.Subscription) (time.Time, error) {
	if !s.cfg.Incremental() {
		return time.Time{}, nil
	}
	watermark, err := s.watermarks.Get(ctx, sub.ID)
	if err != nil {
		return time.Time{}, err
	}
	if watermark.IsZero() {
		return time.Time{}, nil
	}
	return watermark.Add(-s.cfg.Overlap()), nil
}

// store persists discovered articles, assigning calendar dates and day ids.
// Duplicates from the overlap window come back uninserted and are dropped
// silently.
func (s *SyncService) store(ctx context.Context, sub domain.Subscription, discovered []domain.DiscoveredArticle, now time.Time) int {
	var inserted int
	for _, d := range discovered {
		article := &domain.Article{
			SubscriptionID: sub.ID,
			ExternalID:     d.ExternalID,
			Title:          d.Title,
			URL:            d.URL,
			PublishedAt:    d.PublishedAt,
			CalendarDate:   timeutil.CalendarDate(d.PublishedAt, d.MidnightPublish, s.cfg.MidnightShiftDays),
			FetchedAt:      now,
			Excerpt:        d.Excerpt,
			Fingerprint:    d.Fingerprint,
		}

		_, ok, err := s.articles.Insert(ctx, article, discovery.NormalizeURL(d.URL))
		if err != nil {
			s.logger.Warn("store article", "subscription", sub.Name, "url", d.URL, "error", err)
			continue
		}
		if !ok {
			continue
		}
		inserted++
		s.enrich(ctx, article)
	}
	return inserted
}

// enrich attaches a summary and embedding vector. Best effort: the article
// is already durable, enrichment failures only degrade presentation.
func (s *SyncService) enrich(ctx context.Context, article *domain.Article) {
	if s.summarizer == nil {
		return
	}
	text, model := s.summarizer.Summarize(ctx, article)
	if text != "" {
		if err := s.articles.SetSummary(ctx, article.ID, text, model); err != nil {
			s.logger.Warn("store summary", "article", article.ID, "error", err)
		}
	}
	vector, _ := s.summarizer.Embed(ctx, article.Title+"\n"+article.Excerpt)
	if err := s.articles.SetVector(ctx, article.ID, vector); err != nil {
		s.logger.Warn("store vector", "article", article.ID, "error", err)
	}
}

// snapshot caches this subscription's slice of the day view for later
// degraded reads.
func (s *SyncService) snapshot(ctx context.Context, sub domain.Subscription, date string, now time.Time) error {
	items, err := s.articles.ListByDate(ctx, date)
	if err != nil {
		return err
	}
	own := make([]domain.ArticleItem, 0, len(items))
	for _, item := range items {
		if item.Subscription == sub.Name {
			own = append(own, item)
		}
	}
	return s.snapshots.Save(ctx, &domain.Snapshot{
		SubscriptionID: sub.ID,
		Date:           date,
		Items:          own,
		CachedAt:       now,
	})
}

// degrade substitutes the cached snapshot after a live failure. With a
// cache hit the outcome is DELAYED and still advances the watermark; a
// miss is FAILED with CACHE_UNAVAILABLE carrying the live error.
func (s *SyncService) degrade(ctx context.Context, sub domain.Subscription, date string, now time.Time, result domain.SubscriptionResult, liveErr error) domain.SubscriptionResult {
	snap, err := s.snapshots.Get(ctx, sub.ID, date)
	if err != nil {
		result.Outcome = domain.OutcomeFailed
		result.ErrorKind = string(discovery.KindCacheUnavailable)
		result.ErrorMessage = liveErr.Error()
		return result
	}

	result.Outcome = domain.OutcomeDelayed
	result.ErrorKind = string(discovery.KindOf(liveErr))
	result.ErrorMessage = liveErr.Error()
	result.CacheStaleness = now.Sub(snap.CachedAt)

	if err := s.watermarks.Advance(ctx, sub.ID, snap.CachedAt); err != nil {
		s.logger.Warn("advance watermark", "subscription", sub.Name, "error", err)
	}
	return result
}
