package venue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
)

// Mock is a deterministic in-process venue used in dev mode and tests. It
// fills at a fixed price and fill ratio and records every execute call.
type Mock struct {
	mu sync.Mutex

	// PriceMicros is the USDC cost of one whole share (6 decimals).
	PriceMicros uint64
	// FillRatioBps caps how much of the requested notional fills.
	FillRatioBps uint32
	// Err, when set, fails every Execute call.
	Err error
	// MarketErr, when set, fails every GetMarket call.
	MarketErr error

	YesMint string
	NoMint  string

	Calls []*ExecuteRequest
}

// NewMock returns a full-fill mock at 0.50 USDC per share.
func NewMock() *Mock {
	return &Mock{
		PriceMicros:  500_000,
		FillRatioBps: types.BpsDenominator,
		YesMint:      "MockYesMint11111111111111111111111111111111",
		NoMint:       "MockNoMint111111111111111111111111111111111",
	}
}

// GetMarket implements Executor.
func (m *Mock) GetMarket(_ context.Context, marketID string) (*Market, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarketErr != nil {
		return nil, m.MarketErr
	}
	return &Market{
		Title:          marketID,
		YesPriceMicros: m.PriceMicros,
		NoPriceMicros:  1_000_000 - m.PriceMicros,
		YesMint:        m.YesMint,
		NoMint:         m.NoMint,
		Status:         "active",
	}, nil
}

// Execute implements Executor.
func (m *Mock) Execute(_ context.Context, req *ExecuteRequest) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	spent := req.UsdcMicros / uint64(types.BpsDenominator) * uint64(m.FillRatioBps)
	if m.FillRatioBps == types.BpsDenominator {
		spent = req.UsdcMicros
	}
	shares := uint64(0)
	if m.PriceMicros > 0 {
		shares = spent * 1_000_000 / m.PriceMicros
	}
	fillPct := 0.0
	if req.UsdcMicros > 0 {
		fillPct = float64(spent) / float64(req.UsdcMicros) * 100
	}
	return &Result{
		UsdcSpentMicros: spent,
		SharesReceived:  shares,
		VenueTx:         uuid.New().String(),
		AvgPriceMicros:  m.PriceMicros,
		FillPercentage:  fillPct,
		PartialFill:     spent < req.UsdcMicros,
	}, nil
}

// ExecuteCount returns how many trades the mock has seen.
func (m *Mock) ExecuteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
