package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/service/mocks"
)

type ViewServiceTestSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	articles  *mocks.MockArticleStore
	snapshots *mocks.MockSnapshotStore
	svc       *ViewService
}

func (s *ViewServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.snapshots = mocks.NewMockSnapshotStore(s.ctrl)
	s.svc = NewViewService(s.articles, s.snapshots, nil)
}

func (s *ViewServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ViewServiceTestSuite) items() []domain.ArticleItem {
	base := time.Date(2026, 2, 23, 8, 0, 0, 0, time.UTC)
	return []domain.ArticleItem{
		{DayID: 1, ArticleID: 1, Subscription: "乙号", Title: "older", PublishedAt: base},
		{DayID: 2, ArticleID: 2, Subscription: "甲号", Title: "newer", PublishedAt: base.Add(time.Hour)},
	}
}

func (s *ViewServiceTestSuite) TestSourceOrderGroupsBySubscription() {
	s.articles.EXPECT().ListByDate(gomock.Any(), "2026-02-23").Return(s.items(), nil)

	view, err := s.svc.Assemble(context.Background(), "2026-02-23", ModeSource, nil, false)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 2)
	s.Equal("乙号", view.Items[0].Subscription)
	s.Equal("甲号", view.Items[1].Subscription)
}

func (s *ViewServiceTestSuite) TestTimeOrderNewestFirst() {
	s.articles.EXPECT().ListByDate(gomock.Any(), "2026-02-23").Return(s.items(), nil)

	view, err := s.svc.Assemble(context.Background(), "2026-02-23", ModeTime, nil, false)
	s.Require().NoError(err)
	s.Equal("newer", view.Items[0].Title)
}

func (s *ViewServiceTestSuite) TestDelayedSubscriptionMergesCache() {
	s.articles.EXPECT().ListByDate(gomock.Any(), "2026-02-23").Return(s.items(), nil)

	cached := &domain.Snapshot{
		SubscriptionID: 3,
		Date:           "2026-02-23",
		Items: []domain.ArticleItem{
			{DayID: 1, ArticleID: 9, Subscription: "丙号", Title: "from cache"},
		},
	}
	s.snapshots.EXPECT().Get(gomock.Any(), int64(3), "2026-02-23").Return(cached, nil)

	stats := &domain.RunStats{Results: []domain.SubscriptionResult{
		{SubscriptionID: 3, Name: "丙号", Outcome: domain.OutcomeDelayed, CacheStaleness: 26 * time.Hour},
	}}

	view, err := s.svc.Assemble(context.Background(), "2026-02-23", ModeTime, stats, false)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 3)
	s.Equal(26*time.Hour, view.Stale["丙号"])

	var cachedItem *domain.ArticleItem
	for i := range view.Items {
		if view.Items[i].ArticleID == 9 {
			cachedItem = &view.Items[i]
		}
	}
	s.Require().NotNil(cachedItem)
	s.True(cachedItem.Cached)
	s.Equal(26*time.Hour, cachedItem.Staleness)
}

func (s *ViewServiceTestSuite) TestStrictLiveDropsNonLiveSubscriptions() {
	s.articles.EXPECT().ListByDate(gomock.Any(), "2026-02-23").Return(s.items(), nil)

	stats := &domain.RunStats{Results: []domain.SubscriptionResult{
		{SubscriptionID: 1, Name: "乙号", Outcome: domain.OutcomeOK},
		{SubscriptionID: 2, Name: "甲号", Outcome: domain.OutcomeDelayed, CacheStaleness: time.Hour},
	}}

	view, err := s.svc.Assemble(context.Background(), "2026-02-23", ModeTime, stats, true)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.Equal("乙号", view.Items[0].Subscription)
	s.Empty(view.Stale)
}

func (s *ViewServiceTestSuite) TestHistoryReadsStoredOnly() {
	s.articles.EXPECT().ListByDate(gomock.Any(), "2026-02-20").Return(s.items(), nil)

	items, err := s.svc.History(context.Background(), "2026-02-20")
	s.Require().NoError(err)
	s.Len(items, 2)
}

func TestViewServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ViewServiceTestSuite))
}
