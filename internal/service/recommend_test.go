package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/service/mocks"
)

func encodeVector(t *testing.T, v []float64) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestRecommendOrderWithoutProfileRoundRobins(t *testing.T) {
	ctrl := gomock.NewController(t)
	articles := mocks.NewMockArticleStore(ctrl)
	svc := NewRecommendService(articles)

	articles.EXPECT().ReadArticlesSince(gomock.Any(), gomock.Any()).Return(nil, nil)

	base := time.Date(2026, 2, 23, 8, 0, 0, 0, time.UTC)
	items := []domain.ArticleItem{
		{DayID: 1, Subscription: "tech", Title: "tech-old", PublishedAt: base},
		{DayID: 2, Subscription: "tech", Title: "tech-new", PublishedAt: base.Add(3 * time.Hour)},
		{DayID: 3, Subscription: "finance", Title: "finance-only", PublishedAt: base.Add(time.Hour)},
	}
	got, err := svc.Order(context.Background(), "2026-02-23", items)
	require.NoError(t, err)

	titles := []string{got[0].Title, got[1].Title, got[2].Title}
	assert.Equal(t, []string{"tech-new", "finance-only", "tech-old"}, titles)
}

func TestRecommendOrderScoresBySimilarityAndFreshness(t *testing.T) {
	ctrl := gomock.NewController(t)
	articles := mocks.NewMockArticleStore(ctrl)
	svc := NewRecommendService(articles)

	now := time.Date(2026, 2, 23, 20, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	// The reader's history points along the first axis.
	read := []domain.Article{
		{ID: 100, VectorJSON: encodeVector(t, []float64{1, 0})},
	}
	articles.EXPECT().ReadArticlesSince(gomock.Any(), gomock.Any()).Return(read, nil)

	today := []domain.Article{
		{ID: 1, VectorJSON: encodeVector(t, []float64{0, 1})},
		{ID: 2, VectorJSON: encodeVector(t, []float64{1, 0})},
	}
	articles.EXPECT().ArticlesByDate(gomock.Any(), "2026-02-23").Return(today, nil)

	published := now.Add(-2 * time.Hour)
	items := []domain.ArticleItem{
		{DayID: 1, ArticleID: 1, Title: "off-topic", PublishedAt: published},
		{DayID: 2, ArticleID: 2, Title: "on-topic", PublishedAt: published},
	}

	got, err := svc.Order(context.Background(), "2026-02-23", items)
	require.NoError(t, err)
	assert.Equal(t, "on-topic", got[0].Title)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestRecommendFreshnessBreaksTies(t *testing.T) {
	ctrl := gomock.NewController(t)
	articles := mocks.NewMockArticleStore(ctrl)
	svc := NewRecommendService(articles)

	now := time.Date(2026, 2, 23, 20, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	read := []domain.Article{{ID: 100, VectorJSON: encodeVector(t, []float64{1, 0})}}
	articles.EXPECT().ReadArticlesSince(gomock.Any(), gomock.Any()).Return(read, nil)

	today := []domain.Article{
		{ID: 1, VectorJSON: encodeVector(t, []float64{1, 0})},
		{ID: 2, VectorJSON: encodeVector(t, []float64{1, 0})},
	}
	articles.EXPECT().ArticlesByDate(gomock.Any(), "2026-02-23").Return(today, nil)

	items := []domain.ArticleItem{
		{DayID: 1, ArticleID: 1, Title: "stale", PublishedAt: now.Add(-40 * time.Hour)},
		{DayID: 2, ArticleID: 2, Title: "fresh", PublishedAt: now.Add(-time.Hour)},
	}

	got, err := svc.Order(context.Background(), "2026-02-23", items)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got[0].Title)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float64{1, 0}, []float64{1, 0, 0}))
	assert.Zero(t, cosine(nil, nil))
}
