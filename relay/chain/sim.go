package chain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TokenTransfer records one outbound send from the simulated custody wallet.
type TokenTransfer struct {
	Signature string
	Mint      string // empty for USDC sends
	Dest      string
	Amount    uint64
}

// Sim is an in-process chain backing the relay in dev mode and tests. It
// implements both Watcher and Sender. Deposits are appended by test or demo
// code and served back in insertion (chain) order.
type Sim struct {
	mu sync.Mutex

	custody  string
	deposits []*Deposit
	sends    []*TokenTransfer

	// FailNextSends makes the next N transfer calls return a transient
	// error, for retry tests.
	FailNextSends int

	usdcMicros  uint64
	solLamports uint64
}

var _ Watcher = (*Sim)(nil)
var _ Sender = (*Sim)(nil)

// NewSim creates a simulated chain with the given custody address.
func NewSim(custody string) *Sim {
	return &Sim{
		custody:     custody,
		solLamports: 1_000_000_000,
	}
}

// AddDeposit appends a confirmed custody deposit and returns its signature.
func (s *Sim) AddDeposit(sender string, amountMicros uint64, memo string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig := uuid.New().String()
	s.deposits = append(s.deposits, &Deposit{
		Signature:    sig,
		Sender:       sender,
		AmountMicros: amountMicros,
		Memo:         memo,
		ObservedAt:   time.Now(),
	})
	s.usdcMicros += amountMicros
	return sig
}

// DepositsSince implements Watcher.
func (s *Sim) DepositsSince(_ context.Context, cursor string) ([]*Deposit, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, d := range s.deposits {
			if d.Signature == cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(s.deposits) {
		return nil, cursor, nil
	}
	out := append([]*Deposit(nil), s.deposits[start:]...)
	return out, out[len(out)-1].Signature, nil
}

// CustodyAddress implements Watcher.
func (s *Sim) CustodyAddress() string {
	return s.custody
}

// TransferToken implements Sender.
func (s *Sim) TransferToken(_ context.Context, mint, dest string, amount uint64) (string, error) {
	return s.send(mint, dest, amount)
}

// TransferUsdc implements Sender.
func (s *Sim) TransferUsdc(_ context.Context, dest string, amountMicros uint64) (string, error) {
	sig, err := s.send("", dest, amountMicros)
	if err == nil {
		s.mu.Lock()
		if s.usdcMicros >= amountMicros {
			s.usdcMicros -= amountMicros
		}
		s.mu.Unlock()
	}
	return sig, err
}

func (s *Sim) send(mint, dest string, amount uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextSends > 0 {
		s.FailNextSends--
		return "", errors.New("rpc: transient send failure")
	}
	sig := uuid.New().String()
	s.sends = append(s.sends, &TokenTransfer{
		Signature: sig,
		Mint:      mint,
		Dest:      dest,
		Amount:    amount,
	})
	return sig, nil
}

// Balances implements Sender.
func (s *Sim) Balances(_ context.Context) (*Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Balances{SolLamports: s.solLamports, UsdcMicros: s.usdcMicros}, nil
}

// Address implements Sender.
func (s *Sim) Address() string {
	return s.custody
}

// Sends returns every outbound transfer in submission order.
func (s *Sim) Sends() []*TokenTransfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*TokenTransfer(nil), s.sends...)
}

// SendsTo filters the outbound transfers by destination.
func (s *Sim) SendsTo(dest string) []*TokenTransfer {
	var out []*TokenTransfer
	for _, tr := range s.Sends() {
		if tr.Dest == dest {
			out = append(out, tr)
		}
	}
	return out
}
