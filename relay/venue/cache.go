package venue

import (
	"context"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	gocache "github.com/patrickmn/go-cache"
)

// CachingExecutor wraps an Executor with a TTL cache over GetMarket, so the
// scheduler and HTTP surface can requote without hammering the venue. Execute
// always passes through.
type CachingExecutor struct {
	inner   Executor
	markets *gocache.Cache
}

// NewCachingExecutor wraps inner with the configured market metadata TTL.
func NewCachingExecutor(inner Executor) *CachingExecutor {
	ttl := params.Relay().MarketCacheTTL
	return &CachingExecutor{
		inner:   inner,
		markets: gocache.New(ttl, 2*ttl),
	}
}

// GetMarket returns cached metadata when fresh, falling through to the inner
// executor otherwise.
func (c *CachingExecutor) GetMarket(ctx context.Context, marketID string) (*Market, error) {
	if cached, ok := c.markets.Get(marketID); ok {
		return cached.(*Market), nil
	}
	m, err := c.inner.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	c.markets.SetDefault(marketID, m)
	return m, nil
}

// Execute passes through to the inner executor.
func (c *CachingExecutor) Execute(ctx context.Context, req *ExecuteRequest) (*Result, error) {
	return c.inner.Execute(ctx, req)
}
