package discovery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wechat_digest/internal/domain"
)

type fakeStrategy struct {
	name     string
	articles []domain.DiscoveredArticle
	err      error
	calls    int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Discover(context.Context, domain.Subscription, time.Time) ([]domain.DiscoveredArticle, error) {
	f.calls++
	return f.articles, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testChain(policy Policy, strategies ...Strategy) *Chain {
	return NewChain(strategies, policy, testLogger())
}

func TestChainFirstSuccessShortCircuits(t *testing.T) {
	first := &fakeStrategy{name: "feed_template", articles: []domain.DiscoveredArticle{{Title: "a"}}}
	second := &fakeStrategy{name: "directory"}

	articles, strategy, err := testChain(Policy{}, first, second).
		Discover(context.Background(), domain.Subscription{Name: "号"}, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, "feed_template", strategy)
	assert.Len(t, articles, 1)
	assert.Zero(t, second.calls)
}

func TestChainEmptyResultIsStillSuccess(t *testing.T) {
	first := &fakeStrategy{name: "feed_template"}
	second := &fakeStrategy{name: "directory"}

	articles, strategy, err := testChain(Policy{}, first, second).
		Discover(context.Background(), domain.Subscription{}, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, "feed_template", strategy)
	assert.Empty(t, articles)
	assert.Zero(t, second.calls)
}

func TestChainFallsThroughOnFailure(t *testing.T) {
	first := &fakeStrategy{name: "feed_template", err: Errf(KindNotFound, "no feed")}
	second := &fakeStrategy{name: "public_search", err: Errf(KindRateLimited, "429")}
	third := &fakeStrategy{name: "directory", articles: []domain.DiscoveredArticle{{Title: "a"}}}

	articles, strategy, err := testChain(Policy{}, first, second, third).
		Discover(context.Background(), domain.Subscription{}, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, "directory", strategy)
	assert.Len(t, articles, 1)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChainExhaustionReturnsLastError(t *testing.T) {
	first := &fakeStrategy{name: "feed_template", err: Errf(KindNotFound, "no feed")}
	second := &fakeStrategy{name: "public_search", err: Errf(KindRateLimited, "429")}

	_, _, err := testChain(Policy{}, first, second).
		Discover(context.Background(), domain.Subscription{}, time.Time{})

	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestChainStrictAuthReturnsImmediately(t *testing.T) {
	first := &fakeStrategy{name: "session_search", err: Errf(KindAuthExpired, "cookie rejected")}
	second := &fakeStrategy{name: "directory", articles: []domain.DiscoveredArticle{{Title: "a"}}}

	_, strategy, err := testChain(Policy{StrictAuth: true}, first, second).
		Discover(context.Background(), domain.Subscription{}, time.Time{})

	require.Error(t, err)
	assert.Equal(t, KindAuthExpired, KindOf(err))
	assert.Equal(t, "session_search", strategy)
	assert.Zero(t, second.calls)
}

func TestChainPermissiveAuthFallsThrough(t *testing.T) {
	first := &fakeStrategy{name: "session_search", err: Errf(KindAuthRequired, "not logged in")}
	second := &fakeStrategy{name: "directory", articles: []domain.DiscoveredArticle{{Title: "a"}}}

	articles, strategy, err := testChain(Policy{}, first, second).
		Discover(context.Background(), domain.Subscription{}, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, "directory", strategy)
	assert.Len(t, articles, 1)
}

func TestChainUnclassifiedErrorBecomesTransient(t *testing.T) {
	first := &fakeStrategy{name: "feed_template", err: io.ErrUnexpectedEOF}

	_, _, err := testChain(Policy{}, first).
		Discover(context.Background(), domain.Subscription{}, time.Time{})

	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
}

func TestChainCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := &fakeStrategy{name: "feed_template"}
	_, _, err := testChain(Policy{}, first).Discover(ctx, domain.Subscription{}, time.Time{})

	require.Error(t, err)
	assert.Zero(t, first.calls)
}
