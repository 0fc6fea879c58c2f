// Package chain abstracts the relay's view of the ledger: a watcher that
// reports confirmed USDC credits to the custody account and a sender that
// moves tokens and USDC out of it.
package chain

import (
	"context"
	"time"
)

// Deposit is one confirmed USDC credit to the custody account. Sender is the
// owner whose USDC balance funded the credit; Memo carries correlation data
// when present.
type Deposit struct {
	Signature    string
	Sender       string
	AmountMicros uint64
	Memo         string
	ObservedAt   time.Time
}

// Watcher reads confirmed custody deposits in chain order.
type Watcher interface {
	// DepositsSince returns deposits newer than the cursor, oldest first,
	// along with the new cursor. An empty cursor means scan from the start.
	DepositsSince(ctx context.Context, cursor string) ([]*Deposit, string, error)
	// CustodyAddress is the account depositors send USDC to.
	CustodyAddress() string
}

// Balances is the custody wallet's current holdings.
type Balances struct {
	SolLamports uint64
	UsdcMicros  uint64
}

// Sender moves outcome tokens and USDC out of the custody account.
type Sender interface {
	// TransferToken sends outcome shares of the given mint and returns the
	// transaction signature.
	TransferToken(ctx context.Context, mint, dest string, amount uint64) (string, error)
	// TransferUsdc sends USDC micro-units and returns the transaction
	// signature.
	TransferUsdc(ctx context.Context, dest string, amountMicros uint64) (string, error)
	// Balances reports the custody wallet's holdings.
	Balances(ctx context.Context) (*Balances, error)
	// Address is the custody wallet address.
	Address() string
}
