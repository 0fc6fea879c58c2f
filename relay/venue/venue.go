// Package venue defines the pluggable market adapter the relay trades
// through. The relay never talks to a venue directly; it sees quotes, one
// aggregate swap per batch, and confirmed fills.
package venue

import (
	"context"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/pkg/errors"
)

// Canonical venue failures.
var (
	ErrMarketUnavailable     = errors.New("market_unavailable")
	ErrInsufficientLiquidity = errors.New("insufficient_liquidity")
)

// Market is the metadata the venue reports for one prediction market.
type Market struct {
	Title          string
	YesPriceMicros uint64 // USDC micro-units per whole share
	NoPriceMicros  uint64
	YesMint        string
	NoMint         string
	Status         string
}

// ExecuteRequest describes one aggregate trade.
type ExecuteRequest struct {
	MarketID    string
	Side        types.Side
	UsdcMicros  uint64
	SlippageBps uint32
	OutputMint  string
}

// Result is a confirmed fill. UsdcSpent never exceeds the requested amount;
// partial fills are legal and flagged.
type Result struct {
	UsdcSpentMicros uint64
	SharesReceived  uint64
	VenueTx         string
	AvgPriceMicros  uint64
	FillPercentage  float64
	PartialFill     bool
}

// Executor is the external trading adapter. Implementations must confirm the
// trade on-chain before returning a Result.
type Executor interface {
	GetMarket(ctx context.Context, marketID string) (*Market, error)
	Execute(ctx context.Context, req *ExecuteRequest) (*Result, error)
}
