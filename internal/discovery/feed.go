package discovery

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/SlyMarbo/rss"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/timeutil"
)

// FeedTemplateStrategy expands configured feed URL templates with the
// subscription's account id and parses whichever mirror answers first.
type FeedTemplateStrategy struct {
	templates []string
	client    *http.Client
}

func NewFeedTemplateStrategy(templates []string, timeout time.Duration) *FeedTemplateStrategy {
	return &FeedTemplateStrategy{
		templates: templates,
		client:    &http.Client{Timeout: timeout},
	}
}

func (s *FeedTemplateStrategy) Name() string { return "feed_template" }

func (s *FeedTemplateStrategy) Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, error) {
	if sub.WechatID == "" {
		return nil, Errf(KindNotFound, "subscription %q has no account id to expand templates with", sub.Name)
	}

	var lastErr error
	for _, template := range s.templates {
		if !strings.Contains(template, "{wechat_id}") {
			continue
		}
		feedURL := strings.ReplaceAll(template, "{wechat_id}", sub.WechatID)

		feed, err := loadFeed(ctx, s.client, feedURL)
		if err != nil {
			lastErr = err
			continue
		}
		return feedArticles(feed, sub, s.Name(), since), nil
	}

	if lastErr == nil {
		lastErr = Errf(KindNotFound, "no usable feed template for %q", sub.Name)
	}
	return nil, lastErr
}

// loadFeed runs the blocking rss fetch on a goroutine so the chain's call
// timeout still applies.
func loadFeed(ctx context.Context, client *http.Client, feedURL string) (*rss.Feed, error) {
	type result struct {
		feed *rss.Feed
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		feed, err := rss.FetchByClient(feedURL, client)
		ch <- result{feed: feed, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, Wrap(KindTransient, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, Wrap(KindTransient, res.err)
		}
		return res.feed, nil
	}
}

// feedArticles converts feed entries published at or after since. Feed items
// already carry title and date so no page fetch is needed.
func feedArticles(feed *rss.Feed, sub domain.Subscription, strategy string, since time.Time) []domain.DiscoveredArticle {
	articles := make([]domain.DiscoveredArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" || item.Date.Before(since) {
			continue
		}
		title := strings.TrimSpace(item.Title)
		excerpt := strings.TrimSpace(tagRe.ReplaceAllString(item.Summary, " "))
		articles = append(articles, domain.DiscoveredArticle{
			SubscriptionID:  sub.ID,
			ExternalID:      ExternalID(item.Link),
			Title:           title,
			URL:             item.Link,
			PublishedAt:     item.Date.UTC(),
			Excerpt:         excerpt,
			Fingerprint:     Fingerprint(title, item.Link, excerpt),
			Strategy:        strategy,
			MidnightPublish: timeutil.IsMidnightPublish(item.Date),
		})
	}
	return articles
}
