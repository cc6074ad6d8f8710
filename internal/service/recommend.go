package service

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"wechat_digest/internal/domain"
)

// Scoring weights: similarity to the reading profile dominates, freshness
// breaks ties. Freshness halves roughly every 33 hours.
const (
	similarityWeight = 0.7
	freshnessWeight  = 0.3
	freshnessScale   = 48 * time.Hour
	profileWindow    = 30 * 24 * time.Hour
)

type RecommendService struct {
	articles ArticleStore
	clock    func() time.Time
}

func NewRecommendService(articles ArticleStore) *RecommendService {
	return &RecommendService{articles: articles, clock: time.Now}
}

// Order ranks the day's items by interest. The reading profile is the mean
// vector of articles read in the last 30 days; without one, items fall back
// to recency interleaved across subscriptions so no single account dominates
// the top of the list.
func (s *RecommendService) Order(ctx context.Context, date string, items []domain.ArticleItem) ([]domain.ArticleItem, error) {
	profile, err := s.profile(ctx)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return coldStart(items), nil
	}

	vectors, err := s.vectorsByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	for i := range items {
		items[i].Score = s.score(profile, vectors[items[i].ArticleID], items[i].PublishedAt, now)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	return items, nil
}

// coldStart orders by recency within each subscription, then round-robins
// across subscriptions taking the freshest remaining item each pass.
func coldStart(items []domain.ArticleItem) []domain.ArticleItem {
	queues := make(map[string][]domain.ArticleItem)
	var names []string
	for _, item := range items {
		if _, ok := queues[item.Subscription]; !ok {
			names = append(names, item.Subscription)
		}
		queues[item.Subscription] = append(queues[item.Subscription], item)
	}
	for _, name := range names {
		queue := queues[name]
		sort.SliceStable(queue, func(i, j int) bool {
			return queue[i].PublishedAt.After(queue[j].PublishedAt)
		})
		queues[name] = queue
	}

	ordered := make([]domain.ArticleItem, 0, len(items))
	for len(ordered) < len(items) {
		for _, name := range names {
			if queue := queues[name]; len(queue) > 0 {
				ordered = append(ordered, queue[0])
				queues[name] = queue[1:]
			}
		}
	}
	return ordered
}

func (s *RecommendService) score(profile, vector []float64, publishedAt, now time.Time) float64 {
	similarity := cosine(profile, vector)
	age := now.Sub(publishedAt)
	if age < 0 {
		age = 0
	}
	freshness := math.Exp(-age.Hours() / freshnessScale.Hours())
	return similarityWeight*similarity + freshnessWeight*freshness
}

// profile averages the vectors of recently read articles. Nil when nothing
// has been read yet.
func (s *RecommendService) profile(ctx context.Context) ([]float64, error) {
	read, err := s.articles.ReadArticlesSince(ctx, s.clock().Add(-profileWindow))
	if err != nil {
		return nil, err
	}

	var profile []float64
	var count int
	for _, article := range read {
		vector := decodeVector(article.VectorJSON)
		if vector == nil {
			continue
		}
		if profile == nil {
			profile = make([]float64, len(vector))
		}
		if len(vector) != len(profile) {
			continue
		}
		for i, v := range vector {
			profile[i] += v
		}
		count++
	}
	if count == 0 {
		return nil, nil
	}
	for i := range profile {
		profile[i] /= float64(count)
	}
	return profile, nil
}

func (s *RecommendService) vectorsByDate(ctx context.Context, date string) (map[int64][]float64, error) {
	articles, err := s.articles.ArticlesByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	vectors := make(map[int64][]float64, len(articles))
	for _, article := range articles {
		if vector := decodeVector(article.VectorJSON); vector != nil {
			vectors[article.ID] = vector
		}
	}
	return vectors, nil
}

func decodeVector(raw string) []float64 {
	if raw == "" {
		return nil
	}
	var vector []float64
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil
	}
	return vector
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
