// Package prover defines the proving-backend contract. The relay feeds the
// generator ordered commitments and allocations plus the aggregate totals and
// stores whatever blob comes back; it never interprets proof internals.
package prover

import (
	"context"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/planner"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
)

// Inputs binds one executed batch to its commitment set and distribution.
// Commitments and Allocations are ordered to match the Merkle leaf order.
// Encrypted batches omit Allocations.
type Inputs struct {
	Root        field.Element
	TotalIn     uint64 // committed funded USDC, micro-units
	TotalOut    uint64 // allocated shares, atomic units
	MarketID    string
	Side        types.Side
	Commitments []field.Element
	Allocations []planner.Allocation
	Encrypted   bool
}

// Proof is the opaque result of a generation run. The relay stores it
// unchanged.
type Proof struct {
	Blob         []byte
	PublicInputs []string
	Verified     bool
}

// Generator is the external proving backend.
type Generator interface {
	Generate(ctx context.Context, in *Inputs) (*Proof, error)
}
