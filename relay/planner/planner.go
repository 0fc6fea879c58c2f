// Package planner allocates an executed batch's shares and refunds across
// orders and their destinations. Every order receives shares pro rata to its
// slice of the funded total; the last destination of each order absorbs
// rounding residue so no share dust is lost.
package planner

import (
	"math/big"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/pkg/errors"
)

// Allocation is one destination's share of one order.
type Allocation struct {
	OrderID string `json:"orderId"`
	Address string `json:"destAddress"`
	Shares  uint64 `json:"shares"`
	Bps     uint32 `json:"bps"`
}

// OrderAllocation is the planner output for a single funded order.
type OrderAllocation struct {
	OrderID        string
	EffectiveSpent uint64
	Shares         uint64
	Refund         uint64
	Destinations   []Allocation
}

// Plan computes per-order and per-destination allocations for the funded
// orders of a batch, in the insertion order given. totalSpent and totalShares
// are the venue's actual fill; totalSpent never exceeds the funded total.
func Plan(orders []*types.Order, totalSpent, totalShares uint64) ([]OrderAllocation, error) {
	if len(orders) == 0 {
		return nil, errors.New("no funded orders to allocate")
	}
	var fundedTotal uint64
	for _, o := range orders {
		if o.AmountMicros == 0 {
			return nil, errors.Errorf("order %s has zero amount", o.ID)
		}
		fundedTotal += o.AmountMicros
	}
	if totalSpent > fundedTotal {
		return nil, errors.Errorf("venue spent %d exceeds funded total %d", totalSpent, fundedTotal)
	}

	t := new(big.Int).SetUint64(fundedTotal)
	spent := new(big.Int).SetUint64(totalSpent)
	shares := new(big.Int).SetUint64(totalShares)

	out := make([]OrderAllocation, 0, len(orders))
	for _, o := range orders {
		amt := new(big.Int).SetUint64(o.AmountMicros)

		// effectiveSpent = totalSpent * amount / fundedTotal, floored.
		eff := new(big.Int).Mul(spent, amt)
		eff.Div(eff, t)

		// orderShares = totalShares * amount / fundedTotal, floored.
		sh := new(big.Int).Mul(shares, amt)
		sh.Div(sh, t)

		alloc := OrderAllocation{
			OrderID:        o.ID,
			EffectiveSpent: eff.Uint64(),
			Shares:         sh.Uint64(),
			Refund:         o.AmountMicros - eff.Uint64(),
		}
		alloc.Destinations = splitDestinations(o, alloc.Shares)
		out = append(out, alloc)
	}
	return out, nil
}

// splitDestinations divides an order's shares across its declared
// destinations by basis points. The final destination absorbs the residual so
// the destination sum equals the order's shares exactly.
func splitDestinations(o *types.Order, orderShares uint64) []Allocation {
	dests := make([]Allocation, len(o.Distribution))
	var assigned uint64
	for i, d := range o.Distribution {
		var shares uint64
		if i == len(o.Distribution)-1 {
			shares = orderShares - assigned
		} else {
			v := new(big.Int).SetUint64(orderShares)
			v.Mul(v, new(big.Int).SetUint64(uint64(d.Bps)))
			v.Div(v, big.NewInt(types.BpsDenominator))
			shares = v.Uint64()
			assigned += shares
		}
		dests[i] = Allocation{
			OrderID: o.ID,
			Address: d.Address,
			Shares:  shares,
			Bps:     d.Bps,
		}
	}
	return dests
}

// Flatten lists every destination allocation in order-and-destination
// enumeration order, the exact ordering fed to the proof.
func Flatten(allocs []OrderAllocation) []Allocation {
	var out []Allocation
	for _, a := range allocs {
		out = append(out, a.Destinations...)
	}
	return out
}

// TotalShares sums the per-order share grants.
func TotalShares(allocs []OrderAllocation) uint64 {
	var total uint64
	for _, a := range allocs {
		total += a.Shares
	}
	return total
}
