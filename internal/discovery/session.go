package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wechat_digest/internal/domain"
)

func copyBounded(dst io.Writer, src io.Reader, n int64) (int64, error) {
	return io.Copy(dst, io.LimitReader(src, n))
}

// CredentialSource hands out the stored session credential for a provider.
// Implementations return classified AUTH_REQUIRED / AUTH_EXPIRED errors;
// this package never looks at the vault directly.
type CredentialSource interface {
	Credential(ctx context.Context, provider string) (string, error)
}

// SessionSearchStrategy scrapes the provider's authenticated global search.
// With a live session it sees articles hours before the public mirrors do,
// but it costs a credential, so the open strategies run before it.
type SessionSearchStrategy struct {
	endpoint     string
	provider     string
	credentials  CredentialSource
	client       *http.Client
	materializer *Materializer
	limit        int
}

func NewSessionSearchStrategy(endpoint, provider string, credentials CredentialSource, timeout time.Duration, materializer *Materializer) *SessionSearchStrategy {
	return &SessionSearchStrategy{
		endpoint:     endpoint,
		provider:     provider,
		credentials:  credentials,
		client:       &http.Client{Timeout: timeout},
		materializer: materializer,
		limit:        6,
	}
}

func (s *SessionSearchStrategy) Name() string { return "session_search" }

func (s *SessionSearchStrategy) Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, error) {
	cookie, err := s.credentials.Credential(ctx, s.provider)
	if err != nil {
		return nil, err
	}

	searchURL := strings.TrimRight(s.endpoint, "/") + "/web/search/global?keyword=" + url.QueryEscape(sub.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, Wrap(KindTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json,text/plain,*/*")
	req.Header.Set("Referer", s.endpoint+"/")
	req.Header.Set("Cookie", cookie)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Wrap(KindTransient, fmt.Errorf("session search: %w", err))
	}
	defer resp.Body.Close()

	// Credential rejection surfaces here, at use time, not at login time.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, Errf(KindAuthExpired, "provider rejected the stored session (%d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Errf(ClassifyStatus(resp.StatusCode), "session search returned %d", resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, Wrap(KindTransient, fmt.Errorf("decode search payload: %w", err))
	}

	refs := collectArticleRefs(payload, s.limit)
	if len(refs) == 0 {
		return nil, Errf(KindNotFound, "session search has no article links for %q", sub.Name)
	}
	return s.materializer.Materialize(ctx, sub, s.Name(), refs, since)
}

// collectArticleRefs walks an arbitrary JSON payload for article URLs; the
// search response shape changes often enough that field names cannot be
// trusted.
func collectArticleRefs(payload any, limit int) []Ref {
	refs := make([]Ref, 0, limit)
	seen := make(map[string]bool)

	var walk func(node any)
	walk = func(node any) {
		if len(refs) >= limit {
			return
		}
		switch v := node.(type) {
		case map[string]any:
			for _, child := range v {
				walk(child)
			}
		case []any:
			for _, child := range v {
				walk(child)
			}
		case string:
			for _, link := range articleLinkRe.FindAllString(v, -1) {
				norm := NormalizeURL(link)
				if seen[norm] || len(refs) >= limit {
					continue
				}
				seen[norm] = true
				refs = append(refs, Ref{URL: link})
			}
		}
	}
	walk(payload)
	return refs
}

// AccountConnectStrategy reads the account's own article album. It needs
// both a bound account identifier and a live session, so it sits last in
// the chain as the most precise but most demanding backend.
type AccountConnectStrategy struct {
	provider     string
	credentials  CredentialSource
	client       *http.Client
	materializer *Materializer
}

func NewAccountConnectStrategy(provider string, credentials CredentialSource, timeout time.Duration, materializer *Materializer) *AccountConnectStrategy {
	return &AccountConnectStrategy{
		provider:     provider,
		credentials:  credentials,
		client:       &http.Client{Timeout: timeout},
		materializer: materializer,
	}
}

func (s *AccountConnectStrategy) Name() string { return "account_connect" }

func (s *AccountConnectStrategy) Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, error) {
	if sub.BoundAccount == "" {
		return nil, Errf(KindNotFound, "subscription %q has no bound account", sub.Name)
	}

	cookie, err := s.credentials.Credential(ctx, s.provider)
	if err != nil {
		return nil, err
	}

	profileURL := "https://mp.weixin.qq.com/mp/profile_ext?action=home&__biz=" + url.QueryEscape(sub.BoundAccount)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, Wrap(KindTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cookie", cookie)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Wrap(KindTransient, fmt.Errorf("account profile: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, Errf(KindAuthExpired, "provider rejected the stored session (%d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Errf(ClassifyStatus(resp.StatusCode), "account profile returned %d", resp.StatusCode)
	}

	var payload strings.Builder
	if _, err := copyBounded(&payload, resp.Body, 4<<20); err != nil {
		return nil, Wrap(KindTransient, err)
	}

	refs := make([]Ref, 0, 8)
	seen := make(map[string]bool)
	for _, link := range articleLinkRe.FindAllString(payload.String(), -1) {
		// Album pages escape URLs for embedding in script blocks.
		link = strings.NewReplacer(`\/`, "/", "&amp;", "&").Replace(link)
		norm := NormalizeURL(link)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		refs = append(refs, Ref{URL: link})
	}

	if len(refs) == 0 {
		return nil, Errf(KindNotFound, "account album has no article links for %q", sub.Name)
	}
	return s.materializer.Materialize(ctx, sub, s.Name(), refs, since)
}
