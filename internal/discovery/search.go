package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"wechat_digest/internal/domain"
)

var articleLinkRe = regexp.MustCompile(`https?://mp\.weixin\.qq\.com/s[^"'\s<>\\]+`)

// PublicSearchStrategy queries a public search index for recent articles by
// the account. It needs no session, which makes it the fallback of last
// resort before direct account connect.
type PublicSearchStrategy struct {
	endpoint     string
	client       *http.Client
	materializer *Materializer
	limit        int
}

func NewPublicSearchStrategy(endpoint string, timeout time.Duration, materializer *Materializer) *PublicSearchStrategy {
	return &PublicSearchStrategy{
		endpoint:     endpoint,
		client:       &http.Client{Timeout: timeout},
		materializer: materializer,
		limit:        6,
	}
}

func (s *PublicSearchStrategy) Name() string { return "public_search" }

func (s *PublicSearchStrategy) Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, error) {
	query := fmt.Sprintf(`site:mp.weixin.qq.com "%s"`, sub.Name)
	searchURL := s.endpoint + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, Wrap(KindTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Wrap(KindTransient, fmt.Errorf("search request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, Errf(KindRateLimited, "search index throttled the query")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Errf(ClassifyStatus(resp.StatusCode), "search index returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, Wrap(KindTransient, err)
	}

	refs := make([]Ref, 0, s.limit)
	seen := make(map[string]bool)
	for _, link := range articleLinkRe.FindAllString(string(body), -1) {
		norm := NormalizeURL(link)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		refs = append(refs, Ref{URL: link})
		if len(refs) >= s.limit {
			break
		}
	}

	if len(refs) == 0 {
		return nil, Errf(KindNotFound, "search index has no results for %q", sub.Name)
	}
	return s.materializer.Materialize(ctx, sub, s.Name(), refs, since)
}
