// Package session manages the authenticated session used by credentialed
// discovery strategies. Credentials live in the vault; this package owns
// their lifecycle and expiry bookkeeping.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wechat_digest/internal/discovery"
	"wechat_digest/internal/domain"
	"wechat_digest/internal/vault"
)

// envelope is the sealed record stored per provider.
type envelope struct {
	Credential string    `json:"credential"`
	IssuedAt   time.Time `json:"issued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type Store struct {
	vault    vault.Vault
	provider string
	ttl      time.Duration
	clock    func() time.Time
	logger   *slog.Logger
}

func NewStore(v vault.Vault, provider string, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		vault:    v,
		provider: provider,
		ttl:      ttl,
		clock:    time.Now,
		logger:   logger,
	}
}

func (s *Store) Provider() string { return s.provider }

// Login stores a credential obtained out of band and stamps its expiry.
func (s *Store) Login(credential string) (domain.SessionMeta, error) {
	return s.LoginWithTTL(credential, s.ttl)
}

// LoginWithTTL stores a credential with an explicit lifetime.
func (s *Store) LoginWithTTL(credential string, ttl time.Duration) (domain.SessionMeta, error) {
	if credential == "" {
		return domain.SessionMeta{}, errors.New("empty credential")
	}
	now := s.clock()
	env := envelope{
		Credential: credential,
		IssuedAt:   now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.save(env); err != nil {
		return domain.SessionMeta{}, err
	}
	s.logger.Info("session established",
		slog.String("provider", s.provider),
		slog.String("backend", s.vault.Backend()),
		slog.Time("expires_at", env.ExpiresAt))
	return s.meta(env), nil
}

func (s *Store) Logout() error {
	if err := s.vault.Delete(s.provider); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Status reports the stored session without touching the network. Expiry is
// derived from the stamp, never probed remotely.
func (s *Store) Status() (*domain.SessionMeta, domain.SessionState, error) {
	env, err := s.load()
	if errors.Is(err, vault.ErrNotFound) {
		return nil, domain.SessionMissing, nil
	}
	if err != nil {
		return nil, domain.SessionMissing, err
	}
	meta := s.meta(env)
	return &meta, meta.State(s.clock()), nil
}

// Credential implements discovery.CredentialSource. A missing session maps
// to AUTH_REQUIRED and an expired stamp to AUTH_EXPIRED; rejection by the
// remote end is classified by the strategy at use time.
func (s *Store) Credential(_ context.Context, provider string) (string, error) {
	if provider != s.provider {
		return "", discovery.Errf(discovery.KindAuthRequired, "no session for provider %s", provider)
	}
	env, err := s.load()
	if errors.Is(err, vault.ErrNotFound) {
		return "", discovery.Errf(discovery.KindAuthRequired, "not logged in, run: wechat-digest login")
	}
	if err != nil {
		return "", err
	}
	if !s.clock().Before(env.ExpiresAt) {
		return "", discovery.Errf(discovery.KindAuthExpired, "session expired at %s, run: wechat-digest login",
			env.ExpiresAt.Format(time.RFC3339))
	}
	return env.Credential, nil
}

func (s *Store) meta(env envelope) domain.SessionMeta {
	return domain.SessionMeta{
		Provider:  s.provider,
		Backend:   s.vault.Backend(),
		IssuedAt:  env.IssuedAt,
		ExpiresAt: env.ExpiresAt,
		UpdatedAt: env.UpdatedAt,
	}
}

func (s *Store) load() (envelope, error) {
	raw, err := s.vault.Get(s.provider)
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, fmt.Errorf("decode session envelope: %w", err)
	}
	return env, nil
}

func (s *Store) save(env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode session envelope: %w", err)
	}
	if err := s.vault.Set(s.provider, string(raw)); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}
