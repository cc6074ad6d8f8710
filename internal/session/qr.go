package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"wechat_digest/internal/discovery"
	"wechat_digest/internal/domain"
)

// Challenger issues a login challenge and polls for its confirmation.
type Challenger interface {
	Challenge(ctx context.Context) (id, qrURL string, err error)
	Poll(ctx context.Context, id string) (credential string, confirmed bool, err error)
}

const pollInterval = 2 * time.Second

// LoginQR runs the scan-to-confirm flow: issue a challenge, hand the QR URL
// to the caller for display, then poll until confirmation or the timeout.
func (s *Store) LoginQR(ctx context.Context, ch Challenger, timeout time.Duration, display func(qrURL string)) (domain.SessionMeta, error) {
	id, qrURL, err := ch.Challenge(ctx)
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("issue login challenge: %w", err)
	}
	display(qrURL)

	deadline := s.clock().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		credential, confirmed, err := ch.Poll(ctx, id)
		if err != nil {
			return domain.SessionMeta{}, err
		}
		if confirmed {
			return s.Login(credential)
		}
		if !s.clock().Before(deadline) {
			return domain.SessionMeta{}, discovery.Errf(discovery.KindAuthTimeout,
				"login not confirmed within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return domain.SessionMeta{}, discovery.Wrap(discovery.KindAuthTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// WebChallenger drives the provider's web login endpoints.
type WebChallenger struct {
	endpoint string
	client   *http.Client
}

func NewWebChallenger(endpoint string, timeout time.Duration) *WebChallenger {
	return &WebChallenger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type challengeResponse struct {
	UID string `json:"uid"`
}

type pollResponse struct {
	Scanned     bool   `json:"scanned"`
	AccessToken string `json:"accessToken"`
	Cookie      string `json:"cookie"`
}

func (c *WebChallenger) Challenge(ctx context.Context) (string, string, error) {
	reqURL := fmt.Sprintf("%s/web/login/getuid?device=%s", c.endpoint, uuid.NewString())
	var resp challengeResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return "", "", err
	}
	if resp.UID == "" {
		return "", "", discovery.Errf(discovery.KindTransient, "login endpoint returned no challenge id")
	}
	qrURL := fmt.Sprintf("%s/web/confirm?pf=2&uid=%s", c.endpoint, url.QueryEscape(resp.UID))
	return resp.UID, qrURL, nil
}

func (c *WebChallenger) Poll(ctx context.Context, id string) (string, bool, error) {
	reqURL := fmt.Sprintf("%s/web/login/getLoginInfo?uid=%s", c.endpoint, url.QueryEscape(id))
	var resp pollResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return "", false, err
	}
	if !resp.Scanned {
		return "", false, nil
	}
	credential := resp.Cookie
	if credential == "" {
		credential = resp.AccessToken
	}
	if credential == "" {
		return "", false, discovery.Errf(discovery.KindTransient, "confirmed login carried no credential")
	}
	return credential, true, nil
}

func (c *WebChallenger) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return discovery.Wrap(discovery.KindTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return discovery.Errf(discovery.ClassifyStatus(resp.StatusCode),
			"login endpoint returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return discovery.Wrap(discovery.KindTransient, fmt.Errorf("decode login response: %w", err))
	}
	return nil
}
