// Package commitment derives the per-order commitment and distribution
// hashes. Both compositions are bound into the proving circuit; changing them
// invalidates every proof, so they are treated as frozen protocol constants.
package commitment

import (
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/algebra"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/pkg/errors"
)

// DistributionHash hashes an order's share-distribution plan. A single-entry
// plan collapses to the encoded primary address, which keeps legacy
// single-wallet commitments stable.
func DistributionHash(dist []types.Destination) (field.Element, error) {
	var zero field.Element
	if len(dist) == 0 {
		return zero, errors.New("empty distribution")
	}
	if len(dist) == 1 {
		return field.FromAddress(dist[0].Address)
	}
	leaves := make([]field.Element, len(dist))
	for i, d := range dist {
		addr, err := field.FromAddress(d.Address)
		if err != nil {
			return zero, errors.Wrapf(err, "destination %d", i)
		}
		var bps field.Element
		bps.SetUint64(uint64(d.Bps))
		leaves[i] = algebra.Hash2(addr, bps)
	}
	return algebra.Fold(leaves), nil
}

// Compute derives the commitment hash binding every order field:
//
//	Hash2(Hash5(ticker, side, amount, primaryAddress, salt), distributionHash)
func Compute(marketID string, side types.Side, amountMicros uint64, dist []types.Destination, salt field.Element) (field.Element, error) {
	var zero field.Element
	ticker, err := field.FromTicker(marketID)
	if err != nil {
		return zero, err
	}
	if len(dist) == 0 {
		return zero, errors.New("empty distribution")
	}
	primary, err := field.FromAddress(dist[0].Address)
	if err != nil {
		return zero, errors.Wrap(err, "primary address")
	}
	distHash, err := DistributionHash(dist)
	if err != nil {
		return zero, err
	}
	base := algebra.Hash5(
		ticker,
		field.FromSide(side == types.SideYes),
		field.FromAmountMicros(amountMicros),
		primary,
		salt,
	)
	return algebra.Hash2(base, distHash), nil
}
