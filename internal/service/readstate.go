package service

import (
	"context"
	"errors"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/storage/sqlite"
)

type ReadService struct {
	articles ArticleStore
	reads    ReadStateStore
}

func NewReadService(articles ArticleStore, reads ReadStateStore) *ReadService {
	return &ReadService{articles: articles, reads: reads}
}

// MarkResult is the per-day-id outcome of a batch mark.
type MarkResult struct {
	DayID    int
	Title    string
	IsRead   bool
	NotFound bool
}

// Mark sets the read state for a batch of (date, day id) pairs. Unknown day
// ids are reported per id, not as a batch failure; valid ids in the same
// batch still apply.
func (s *ReadService) Mark(ctx context.Context, date string, dayIDs []int, isRead bool) ([]MarkResult, error) {
	results := make([]MarkResult, 0, len(dayIDs))
	for _, dayID := range dayIDs {
		result := MarkResult{DayID: dayID, IsRead: isRead}

		article, err := s.articles.GetByDayID(ctx, date, dayID)
		if errors.Is(err, sqlite.ErrNotFound) {
			result.NotFound = true
			results = append(results, result)
			continue
		}
		if err != nil {
			return results, err
		}

		if err := s.reads.Set(ctx, article.ID, isRead); err != nil {
			return results, err
		}
		result.Title = article.Title
		results = append(results, result)
	}
	return results, nil
}

// Toggle flips the read state of one (date, day id).
func (s *ReadService) Toggle(ctx context.Context, date string, dayID int) (*MarkResult, error) {
	article, err := s.articles.GetByDayID(ctx, date, dayID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return &MarkResult{DayID: dayID, NotFound: true}, nil
	}
	if err != nil {
		return nil, err
	}

	isRead, err := s.reads.Get(ctx, article.ID)
	if err != nil {
		return nil, err
	}
	if err := s.reads.Set(ctx, article.ID, !isRead); err != nil {
		return nil, err
	}
	return &MarkResult{DayID: dayID, Title: article.Title, IsRead: !isRead}, nil
}

// Resolve maps a (date, day id) to its article, for the open command.
func (s *ReadService) Resolve(ctx context.Context, date string, dayID int) (*domain.Article, error) {
	return s.articles.GetByDayID(ctx, date, dayID)
}
