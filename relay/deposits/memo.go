package deposits

import (
	"strconv"
	"strings"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
)

// MemoPrefix marks a structured deposit memo carrying a full trade intent.
const MemoPrefix = "APP"

// Structured-memo actions.
const (
	ActionBuyYes = "BUY_YES"
	ActionBuyNo  = "BUY_NO"
)

// StructuredMemo is a trade intent carried entirely inside a deposit memo:
// APP|action|marketTicker|outcomeMint|amount|slippageBps|dest1;dest2
type StructuredMemo struct {
	Side         types.Side
	MarketTicker string
	OutcomeMint  string
	AmountMicros uint64
	SlippageBps  uint32
	Destinations []string
}

// IsStructuredMemo reports whether a memo claims the structured format.
func IsStructuredMemo(memo string) bool {
	return strings.HasPrefix(memo, MemoPrefix+"|")
}

// ParseStructuredMemo decodes a structured memo. The amount is a decimal USDC
// string; destinations are semicolon-separated wallet addresses.
func ParseStructuredMemo(memo string) (*StructuredMemo, error) {
	parts := strings.Split(memo, "|")
	if len(parts) != 7 || parts[0] != MemoPrefix {
		return nil, types.NewError(types.KindBadInput, "memo has %d fields, want 7", len(parts))
	}
	var side types.Side
	switch parts[1] {
	case ActionBuyYes:
		side = types.SideYes
	case ActionBuyNo:
		side = types.SideNo
	default:
		return nil, types.NewError(types.KindBadInput, "unknown memo action %q", parts[1])
	}
	if parts[2] == "" {
		return nil, types.NewError(types.KindBadInput, "memo has no market ticker")
	}
	amount, err := field.ParseAmount(parts[4])
	if err != nil {
		return nil, types.NewError(types.KindBadInput, "memo amount: %v", err)
	}
	slippage, err := strconv.ParseUint(parts[5], 10, 32)
	if err != nil {
		return nil, types.NewError(types.KindBadInput, "memo slippage: %v", err)
	}
	var dests []string
	for _, d := range strings.Split(parts[6], ";") {
		if d = strings.TrimSpace(d); d != "" {
			dests = append(dests, d)
		}
	}
	if len(dests) == 0 {
		return nil, types.NewError(types.KindBadInput, "memo names no destinations")
	}
	return &StructuredMemo{
		Side:         side,
		MarketTicker: parts[2],
		OutcomeMint:  parts[3],
		AmountMicros: amount,
		SlippageBps:  uint32(slippage),
		Destinations: dests,
	}, nil
}
