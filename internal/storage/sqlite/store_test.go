package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"

	"wechat_digest/internal/domain"
)

type StoreTestSuite struct {
	suite.Suite
	db  *sqlx.DB
	ctx context.Context

	subs       *SubscriptionStore
	articles   *ArticleStore
	reads      *ReadStateStore
	watermarks *WatermarkStore
	snapshots  *SnapshotStore
	runs       *RunStore

	sub domain.Subscription
}

func (s *StoreTestSuite) SetupTest() {
	db, err := Open(filepath.Join(s.T().TempDir(), "digest.db"))
	s.Require().NoError(err)
	s.db = db
	s.ctx = context.Background()

	s.subs = NewSubscriptionStore(db)
	s.articles = NewArticleStore(db)
	s.reads = NewReadStateStore(db)
	s.watermarks = NewWatermarkStore(db)
	s.snapshots = NewSnapshotStore(db)
	s.runs = NewRunStore(db)

	s.sub = domain.Subscription{Name: "科技早知道", WechatID: "techzao"}
	s.Require().NoError(s.subs.Add(s.ctx, &s.sub))
}

func (s *StoreTestSuite) TearDownTest() {
	s.db.Close()
}

func (s *StoreTestSuite) article(title, urlNorm, date string) *domain.Article {
	return &domain.Article{
		SubscriptionID: s.sub.ID,
		ExternalID:     "ext-" + title,
		Title:          title,
		URL:            "https://mp.weixin.qq.com/s?__biz=x&mid=" + title,
		PublishedAt:    time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC),
		CalendarDate:   date,
		FetchedAt:      time.Now().UTC(),
		Fingerprint:    "fp-" + title,
	}
}

func (s *StoreTestSuite) TestSubscriptionDuplicateName() {
	dup := domain.Subscription{Name: "科技早知道"}
	err := s.subs.Add(s.ctx, &dup)
	s.Require().ErrorIs(err, ErrDuplicateName)
}

func (s *StoreTestSuite) TestSubscriptionRemoveMissing() {
	s.Require().ErrorIs(s.subs.Remove(s.ctx, "nope"), ErrNotFound)
}

func (s *StoreTestSuite) TestDayIDsAreSequentialPerDate() {
	id1, inserted, err := s.articles.Insert(s.ctx, s.article("a", "norm-a", "2026-02-23"), "norm-a")
	s.Require().NoError(err)
	s.Require().True(inserted)
	id2, _, err := s.articles.Insert(s.ctx, s.article("b", "norm-b", "2026-02-23"), "norm-b")
	s.Require().NoError(err)
	otherDay, _, err := s.articles.Insert(s.ctx, s.article("c", "norm-c", "2026-02-24"), "norm-c")
	s.Require().NoError(err)

	s.Equal(1, id1)
	s.Equal(2, id2)
	s.Equal(1, otherDay)
}

func (s *StoreTestSuite) TestDayIDsSurviveDuplicateReplay() {
	// An overlap window replays the same article; the day id it was assigned
	// the first time must stay put.
	first := s.article("a", "norm-a", "2026-02-23")
	id1, inserted, err := s.articles.Insert(s.ctx, first, "norm-a")
	s.Require().NoError(err)
	s.Require().True(inserted)
	s.Equal(1, id1)

	_, inserted, err = s.articles.Insert(s.ctx, s.article("a", "norm-a", "2026-02-23"), "norm-a")
	s.Require().NoError(err)
	s.False(inserted)

	items, err := s.articles.ListByDate(s.ctx, "2026-02-23")
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(1, items[0].DayID)
}

func (s *StoreTestSuite) TestDedupByFingerprint() {
	_, inserted, err := s.articles.Insert(s.ctx, s.article("a", "norm-a", "2026-02-23"), "norm-a")
	s.Require().NoError(err)
	s.Require().True(inserted)

	// Same content discovered through a different URL.
	dup := s.article("a", "norm-other", "2026-02-23")
	dup.URL = "https://mp.weixin.qq.com/s/short"
	_, inserted, err = s.articles.Insert(s.ctx, dup, "norm-other")
	s.Require().NoError(err)
	s.False(inserted)
}

func (s *StoreTestSuite) TestGetByDayID() {
	_, _, err := s.articles.Insert(s.ctx, s.article("a", "norm-a", "2026-02-23"), "norm-a")
	s.Require().NoError(err)

	article, err := s.articles.GetByDayID(s.ctx, "2026-02-23", 1)
	s.Require().NoError(err)
	s.Equal("a", article.Title)

	_, err = s.articles.GetByDayID(s.ctx, "2026-02-23", 99)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestReadStateRoundTrip() {
	art := s.article("a", "norm-a", "2026-02-23")
	_, _, err := s.articles.Insert(s.ctx, art, "norm-a")
	s.Require().NoError(err)

	s.Require().NoError(s.reads.Set(s.ctx, art.ID, true))
	isRead, err := s.reads.Get(s.ctx, art.ID)
	s.Require().NoError(err)
	s.True(isRead)

	// Marking read twice is fine.
	s.Require().NoError(s.reads.Set(s.ctx, art.ID, true))

	s.Require().NoError(s.reads.Set(s.ctx, art.ID, false))
	isRead, err = s.reads.Get(s.ctx, art.ID)
	s.Require().NoError(err)
	s.False(isRead)
}

func (s *StoreTestSuite) TestReadStateUnknownArticle() {
	s.Require().ErrorIs(s.reads.Set(s.ctx, 12345, true), ErrNotFound)
}

func (s *StoreTestSuite) TestWatermarkNeverRegresses() {
	later := time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	s.Require().NoError(s.watermarks.Advance(s.ctx, s.sub.ID, later))
	s.Require().NoError(s.watermarks.Advance(s.ctx, s.sub.ID, earlier))

	got, err := s.watermarks.Get(s.ctx, s.sub.ID)
	s.Require().NoError(err)
	s.True(got.Equal(later))
}

func (s *StoreTestSuite) TestWatermarkUnsyncedIsZero() {
	got, err := s.watermarks.Get(s.ctx, 999)
	s.Require().NoError(err)
	s.True(got.IsZero())
}

func (s *StoreTestSuite) TestSnapshotRoundTrip() {
	snap := &domain.Snapshot{
		SubscriptionID: s.sub.ID,
		Date:           "2026-02-23",
		Items: []domain.ArticleItem{
			{DayID: 1, ArticleID: 7, Subscription: "科技早知道", Title: "a"},
		},
		CachedAt: time.Date(2026, 2, 23, 8, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.snapshots.Save(s.ctx, snap))

	got, err := s.snapshots.Get(s.ctx, s.sub.ID, "2026-02-23")
	s.Require().NoError(err)
	s.Require().Len(got.Items, 1)
	s.Equal("a", got.Items[0].Title)
	s.True(got.CachedAt.Equal(snap.CachedAt))

	_, err = s.snapshots.Get(s.ctx, s.sub.ID, "2026-02-24")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestRunRecordAndLatest() {
	stats := &domain.RunStats{
		RunID:      uuid.NewString(),
		Trigger:    "view",
		StartedAt:  time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 2, 23, 9, 0, 5, 0, time.UTC),
		Results: []domain.SubscriptionResult{
			{SubscriptionID: s.sub.ID, Name: s.sub.Name, Outcome: domain.OutcomeOK, Strategy: "feed_template", NewArticles: 3},
			{SubscriptionID: 99, Name: "zzz", Outcome: domain.OutcomeFailed, ErrorKind: "TRANSIENT", ErrorMessage: "boom"},
		},
	}
	s.Require().NoError(s.runs.Record(s.ctx, stats))

	got, err := s.runs.Latest(s.ctx)
	s.Require().NoError(err)
	s.Equal(stats.RunID, got.RunID)
	s.Require().Len(got.Results, 2)
	s.Equal(domain.OutcomeOK, got.Results[0].Outcome)

	windowed, err := s.runs.LatestBetween(s.ctx,
		time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Equal(stats.RunID, windowed.RunID)

	_, err = s.runs.LatestBetween(s.ctx,
		time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC))
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestTransactionCommitsRunWithItems() {
	tm := NewTransactionManager(s.db)
	stats := &domain.RunStats{
		RunID:      uuid.NewString(),
		Trigger:    "view",
		StartedAt:  time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 2, 23, 9, 0, 5, 0, time.UTC),
		Results: []domain.SubscriptionResult{
			{SubscriptionID: s.sub.ID, Name: s.sub.Name, Outcome: domain.OutcomeOK, Strategy: "feed_template"},
		},
	}

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		return s.runs.Record(ctx, stats)
	})
	s.Require().NoError(err)

	got, err := s.runs.Latest(s.ctx)
	s.Require().NoError(err)
	s.Equal(stats.RunID, got.RunID)
	s.Require().Len(got.Results, 1)
}

func (s *StoreTestSuite) TestTransactionRollsBackRun() {
	tm := NewTransactionManager(s.db)
	stats := &domain.RunStats{
		RunID:     uuid.NewString(),
		Trigger:   "view",
		StartedAt: time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC),
	}

	boom := errors.New("boom")
	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := s.runs.Record(ctx, stats); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.runs.Latest(s.ctx)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestDatesCounts() {
	a := s.article("a", "norm-a", "2026-02-23")
	_, _, err := s.articles.Insert(s.ctx, a, "norm-a")
	s.Require().NoError(err)
	_, _, err = s.articles.Insert(s.ctx, s.article("b", "norm-b", "2026-02-23"), "norm-b")
	s.Require().NoError(err)
	_, _, err = s.articles.Insert(s.ctx, s.article("c", "norm-c", "2026-02-24"), "norm-c")
	s.Require().NoError(err)
	s.Require().NoError(s.reads.Set(s.ctx, a.ID, true))

	counts, err := s.articles.Dates(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(counts, 2)
	s.Equal("2026-02-24", counts[0].Date)
	s.Equal(2, counts[1].Total)
	s.Equal(1, counts[1].Read)
}

func (s *StoreTestSuite) TestRemoveSubscriptionCascades() {
	art := s.article("a", "norm-a", "2026-02-23")
	_, _, err := s.articles.Insert(s.ctx, art, "norm-a")
	s.Require().NoError(err)

	s.Require().NoError(s.subs.Remove(s.ctx, s.sub.Name))

	_, err = s.articles.GetByDayID(s.ctx, "2026-02-23", 1)
	s.Require().True(errors.Is(err, ErrNotFound))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
