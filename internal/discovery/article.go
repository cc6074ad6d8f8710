package discovery

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"wechat_digest/internal/domain"
	"wechat_digest/internal/timeutil"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2_1) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var (
	ogTitleRe     = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`)
	titleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	ctRe          = regexp.MustCompile(`\bct\s*=\s*"?(\d{10})"?`)
	publishTimeRe = regexp.MustCompile(`"publish_time"\s*:\s*"([^"]+)"`)
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// Ref is a discovered article link before its page has been fetched.
type Ref struct {
	URL         string
	TitleHint   string
	PublishedAt time.Time
}

// Materializer turns article URLs into fully populated DiscoveredArticles by
// fetching and parsing the pages. Strategies that only produce links share
// one instance so page fetches go through a single bounded client.
type Materializer struct {
	client *http.Client
}

func NewMaterializer(timeout time.Duration) *Materializer {
	return &Materializer{client: &http.Client{Timeout: timeout}}
}

// Materialize fetches each ref and keeps those published at or after since.
// Unreachable pages are skipped, not fatal: one dead link must not sink the
// strategy that found the rest.
func (m *Materializer) Materialize(ctx context.Context, sub domain.Subscription, strategy string, refs []Ref, since time.Time) ([]domain.DiscoveredArticle, error) {
	articles := make([]domain.DiscoveredArticle, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return articles, Wrap(KindTransient, err)
		}
		article, err := m.fetch(ctx, ref)
		if err != nil {
			continue
		}
		article.SubscriptionID = sub.ID
		article.Strategy = strategy
		if article.PublishedAt.Before(since) {
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

func (m *Materializer) fetch(ctx context.Context, ref Ref) (domain.DiscoveredArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return domain.DiscoveredArticle{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := m.client.Do(req)
	if err != nil {
		return domain.DiscoveredArticle{}, fmt.Errorf("fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.DiscoveredArticle{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return domain.DiscoveredArticle{}, fmt.Errorf("read body: %w", err)
	}
	page := string(body)

	title := extractTitle(page, ref.TitleHint)
	publishedAt, midnight := extractPublishTime(page, ref.PublishedAt)
	excerpt := extractExcerpt(page)

	return domain.DiscoveredArticle{
		ExternalID:      ExternalID(ref.URL),
		Title:           title,
		URL:             ref.URL,
		PublishedAt:     publishedAt,
		Excerpt:         excerpt,
		Fingerprint:     Fingerprint(title, ref.URL, excerpt),
		MidnightPublish: midnight,
	}, nil
}

func extractTitle(page, fallback string) string {
	if m := ogTitleRe.FindStringSubmatch(page); m != nil {
		if title := strings.TrimSpace(html.UnescapeString(m[1])); title != "" {
			return title
		}
	}
	if m := titleRe.FindStringSubmatch(page); m != nil {
		title := spaceRe.ReplaceAllString(html.UnescapeString(m[1]), " ")
		title = strings.TrimSpace(strings.NewReplacer(" - 微信公众号", "", "_微信公众平台", "").Replace(title))
		if title != "" {
			return title
		}
	}
	if fallback != "" {
		return fallback
	}
	return "Untitled"
}

// extractPublishTime prefers the ct unix field embedded in article pages,
// then the publish_time JSON fragment, then the hint from the ref.
func extractPublishTime(page string, hint time.Time) (time.Time, bool) {
	if m := ctRe.FindStringSubmatch(page); m != nil {
		secs, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			ts := time.Unix(secs, 0).UTC()
			return ts, timeutil.IsMidnightPublish(ts)
		}
	}
	if m := publishTimeRe.FindStringSubmatch(page); m != nil {
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
			if local, err := time.ParseInLocation(layout, strings.TrimSpace(m[1]), time.Local); err == nil {
				return local.UTC(), timeutil.IsMidnightPublish(local)
			}
		}
	}
	if !hint.IsZero() {
		return hint, timeutil.IsMidnightPublish(hint)
	}
	return time.Now().UTC(), false
}

func extractExcerpt(page string) string {
	text := scriptStyleRe.ReplaceAllString(page, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) > 2000 {
		return string(runes[:2000])
	}
	return text
}

// ExternalID derives a stable identifier from the wechat URL parameters,
// falling back to a hash of the whole URL.
func ExternalID(raw string) string {
	parsed, err := url.Parse(raw)
	if err == nil {
		q := parsed.Query()
		token := strings.Trim(strings.Join([]string{
			q.Get("__biz"), q.Get("mid"), q.Get("idx"), q.Get("sn"),
		}, "|"), "|")
		if token != "" {
			return token
		}
	}
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Fingerprint is the content hash used as the dedup fallback when two
// strategies surface the same article under different URLs.
func Fingerprint(title, rawURL, excerpt string) string {
	sum := sha256.Sum256([]byte(title + "|" + rawURL + "|" + excerpt))
	return hex.EncodeToString(sum[:])
}

// NormalizeURL produces the dedup form of an article URL: scheme and host
// lowercased, fragment dropped, query parameters kept but sorted so that
// reordered links collapse. The canonical record keeps the original URL.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return strings.TrimSpace(raw)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	q := parsed.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	parsed.RawQuery = b.String()
	return parsed.String()
}
