package discovery

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"wechat_digest/internal/domain"
)

var (
	anchorRe    = regexp.MustCompile(`(?i)<a href="(https://[^"]+/feed/[^"]+\.xml)"[^>]*>(.*?)</a>`)
	nonTokenRe  = regexp.MustCompile(`[^0-9a-z\x{4e00}-\x{9fff}]`)
	asciiWordRe = regexp.MustCompile(`[a-z0-9]{3,}`)
)

const directoryMinScore = 6

type directoryEntry struct {
	name       string
	url        string
	normalized string
}

// DirectoryStrategy resolves subscriptions against a public feed directory:
// the index page lists one feed per account, matched by normalized name.
type DirectoryStrategy struct {
	indexURL string
	client   *http.Client

	mu      sync.Mutex
	entries []directoryEntry
}

func NewDirectoryStrategy(indexURL string, timeout time.Duration) *DirectoryStrategy {
	return &DirectoryStrategy{
		indexURL: indexURL,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *DirectoryStrategy) Name() string { return "directory" }

func (s *DirectoryStrategy) Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, error) {
	if s.indexURL == "" {
		return nil, Errf(KindNotFound, "no directory index configured")
	}

	entries, err := s.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	best := s.bestMatch(entries, sub)
	if best == nil {
		return nil, Errf(KindNotFound, "subscription %q not listed in directory", sub.Name)
	}

	feed, err := loadFeed(ctx, s.client, best.url)
	if err != nil {
		return nil, err
	}
	return feedArticles(feed, sub, s.Name(), since), nil
}

func (s *DirectoryStrategy) loadIndex(ctx context.Context) ([]directoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries != nil {
		return s.entries, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.indexURL, nil)
	if err != nil {
		return nil, Wrap(KindTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Wrap(KindTransient, fmt.Errorf("fetch directory index: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, Errf(ClassifyStatus(resp.StatusCode), "directory index returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Wrap(KindTransient, err)
	}

	seen := make(map[string]directoryEntry)
	for _, m := range anchorRe.FindAllStringSubmatch(string(body), -1) {
		name := strings.TrimSpace(html.UnescapeString(m[2]))
		normalized := normalizeName(name)
		if normalized == "" {
			continue
		}
		seen[m[1]] = directoryEntry{name: name, url: m[1], normalized: normalized}
	}

	entries := make([]directoryEntry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	s.entries = entries
	return entries, nil
}

// bestMatch scores every directory entry against the subscription's name and
// account id. Entries below the baseline score are rejected so near-miss
// names do not hijack a subscription.
func (s *DirectoryStrategy) bestMatch(entries []directoryEntry, sub domain.Subscription) *directoryEntry {
	normName := normalizeName(sub.Name)
	normID := normalizeName(sub.WechatID)
	tokens := asciiTokens(sub.Name + " " + sub.WechatID)

	var best *directoryEntry
	bestScore := 0
	for i := range entries {
		entry := &entries[i]
		if len(tokens) > 0 && !containsAll(entry.normalized, tokens) {
			continue
		}
		idScore := matchScore(normID, entry.normalized)
		nameScore := matchScore(normName, entry.normalized)
		if normID != "" && len(normID) >= 4 && idScore < 4 {
			continue
		}
		score := max(idScore, nameScore)
		if score < directoryMinScore {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}
	return best
}

func normalizeName(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	lowered = spaceRe.ReplaceAllString(lowered, "")
	return nonTokenRe.ReplaceAllString(lowered, "")
}

func asciiTokens(value string) []string {
	return asciiWordRe.FindAllString(normalizeName(value), -1)
}

func containsAll(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			return false
		}
	}
	return true
}

func matchScore(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return min(len(a), len(b))
	}
	return 0
}
