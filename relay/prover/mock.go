package prover

import (
	"context"
	"strconv"
	"sync"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/algebra"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
)

// Mock derives a deterministic pseudo-proof from its inputs. Useful for dev
// mode and tests; it records every call.
type Mock struct {
	mu sync.Mutex

	// Err, when set, fails every Generate call.
	Err error
	// Unverified, when set, returns proofs with Verified=false.
	Unverified bool

	Calls []*Inputs
}

// NewMock returns a verifying mock generator.
func NewMock() *Mock {
	return &Mock{}
}

// Generate implements Generator. The blob is a hash chain over the root and
// totals, so identical inputs yield identical proofs.
func (m *Mock) Generate(_ context.Context, in *Inputs) (*Proof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, in)
	if m.Err != nil {
		return nil, m.Err
	}
	acc := algebra.Hash2(in.Root, field.FromAmountMicros(in.TotalIn))
	acc = algebra.Hash2(acc, field.FromAmountMicros(in.TotalOut))
	for _, c := range in.Commitments {
		acc = algebra.Hash2(acc, c)
	}
	blob := acc.Bytes()
	return &Proof{
		Blob: blob[:],
		PublicInputs: []string{
			field.Hex(in.Root),
			strconv.FormatUint(in.TotalIn, 10),
			strconv.FormatUint(in.TotalOut, 10),
		},
		Verified: !m.Unverified,
	}, nil
}

// GenerateCount returns how many proofs the mock has produced.
func (m *Mock) GenerateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
