package discovery

import (
	"context"
	"log/slog"
	"time"

	"wechat_digest/internal/domain"
)

// Strategy is one interchangeable discovery backend.
type Strategy interface {
	Name() string
	// Discover returns articles for the subscription published at or after
	// since. An empty slice is a live success that found nothing new.
	Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, error)
}

// Policy controls chain traversal.
type Policy struct {
	// StrictAuth aborts the entire run on AUTH_* failures instead of
	// falling through to the next strategy.
	StrictAuth bool
	// CallTimeout bounds each individual strategy call.
	CallTimeout time.Duration
}

// Chain tries strategies in order until one succeeds. Order is meaningful:
// within one subscription the traversal is strictly sequential.
type Chain struct {
	strategies []Strategy
	policy     Policy
	logger     *slog.Logger
}

func NewChain(strategies []Strategy, policy Policy, logger *slog.Logger) *Chain {
	if policy.CallTimeout == 0 {
		policy.CallTimeout = 15 * time.Second
	}
	return &Chain{
		strategies: strategies,
		policy:     policy,
		logger:     logger.With("component", "discovery"),
	}
}

// Strategies exposes the configured order, mostly for status output.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Discover runs the chain for one subscription. On success it returns the
// articles and the name of the strategy that produced them. On exhaustion it
// returns the last classified error. An auth failure under strict policy is
// returned immediately so the caller can abort the whole run.
func (c *Chain) Discover(ctx context.Context, sub domain.Subscription, since time.Time) ([]domain.DiscoveredArticle, string, error) {
	var lastErr error

	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", Wrap(KindTransient, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.policy.CallTimeout)
		articles, err := strategy.Discover(callCtx, sub, since)
		cancel()

		if err == nil {
			c.logger.Debug("strategy succeeded",
				"subscription", sub.Name,
				"strategy", strategy.Name(),
				"articles", len(articles),
			)
			return articles, strategy.Name(), nil
		}

		classified := Wrap(KindTransient, err)
		classified.Strategy = strategy.Name()
		lastErr = classified

		if classified.Kind.Auth() && c.policy.StrictAuth {
			c.logger.Warn("auth failure under strict policy, aborting",
				"subscription", sub.Name,
				"strategy", strategy.Name(),
				"kind", classified.Kind,
			)
			return nil, strategy.Name(), classified
		}

		c.logger.Debug("strategy failed, falling through",
			"subscription", sub.Name,
			"strategy", strategy.Name(),
			"kind", classified.Kind,
			"error", classified.Err,
		)
	}

	if lastErr == nil {
		lastErr = Errf(KindNotFound, "no discovery strategies configured")
	}
	return nil, "", lastErr
}
