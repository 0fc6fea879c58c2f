// Package types holds the relay's domain model: orders, batches, deposits and
// their status enums. Orders and batches reference each other by id only; the
// store owns both.
package types

import (
	"time"
)

// Side is the outcome side of a prediction-market order.
type Side string

// Order sides.
const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// OrderStatus tracks an order through its lifecycle. Orders never regress to
// an earlier status.
type OrderStatus string

// Order statuses.
const (
	OrderPendingDeposit OrderStatus = "pending_deposit"
	OrderPending        OrderStatus = "pending"
	OrderExecuting      OrderStatus = "executing"
	OrderCompleted      OrderStatus = "completed"
	OrderRefunded       OrderStatus = "refunded"
	OrderExpired        OrderStatus = "expired"
)

// BatchStatus tracks a batch through its state machine.
type BatchStatus string

// Batch statuses.
const (
	BatchCollecting   BatchStatus = "collecting"
	BatchReady        BatchStatus = "ready"
	BatchExecuting    BatchStatus = "executing"
	BatchProving      BatchStatus = "proving"
	BatchDistributing BatchStatus = "distributing"
	BatchCompleted    BatchStatus = "completed"
	BatchFailed       BatchStatus = "failed"
)

// BpsDenominator is the basis-point scale of distribution percentages.
const BpsDenominator = 10_000

// MaxDestinations caps the destinations of a single order.
const MaxDestinations = 10

// Destination is one entry of an order's share-distribution plan.
type Destination struct {
	Address string `json:"wallet"`
	Bps     uint32 `json:"percentage"`
}

// DistributionResult records the outcome of one destination transfer. TxID is
// empty when the send failed and is pending operator retry.
type DistributionResult struct {
	Address string `json:"address"`
	Shares  uint64 `json:"shares"`
	TxID    string `json:"txid,omitempty"`
}

// Order is a single committed trade intent. It lives in exactly one batch.
type Order struct {
	ID      string `json:"id"`
	BatchID string `json:"batchId"`

	MarketID     string        `json:"marketId"`
	Side         Side          `json:"side"`
	AmountMicros uint64        `json:"usdcAmount"`
	Distribution []Destination `json:"distribution"`
	SlippageBps  uint32        `json:"slippageBps"`

	Salt           string `json:"salt"`
	CommitmentHash string `json:"commitmentHash"`

	IsEncrypted bool   `json:"isEncrypted,omitempty"`
	Ciphertext  []byte `json:"ciphertext,omitempty"`

	Status           OrderStatus `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
	DepositExpiresAt time.Time   `json:"depositExpiresAt"`

	DepositTx          string     `json:"depositTx,omitempty"`
	DepositSender      string     `json:"depositSender,omitempty"`
	DepositConfirmedAt *time.Time `json:"depositConfirmedAt,omitempty"`

	EffectiveUsdcSpent  uint64               `json:"effectiveUsdcSpent"`
	SharesReceived      uint64               `json:"sharesReceived"`
	RefundAmount        uint64               `json:"refundAmount"`
	DistributionResults []DistributionResult `json:"distributionResults,omitempty"`

	YesTokenMint string `json:"yesTokenMint,omitempty"`
	NoTokenMint  string `json:"noTokenMint,omitempty"`
}

// PrimaryAddress is the first distribution destination; refunds return here.
func (o *Order) PrimaryAddress() string {
	if len(o.Distribution) == 0 {
		return ""
	}
	return o.Distribution[0].Address
}

// Funded reports whether the order's deposit has been confirmed.
func (o *Order) Funded() bool {
	return o.Status == OrderPending
}

// Batch groups orders for one (market, side) into a single aggregate trade.
type Batch struct {
	ID       string      `json:"id"`
	MarketID string      `json:"marketId"`
	Side     Side        `json:"side"`
	Status   BatchStatus `json:"status"`

	OrderIDs []string `json:"orderIds"`

	TotalUsdcCommitted uint64 `json:"totalUsdcCommitted"`
	FundedUsdcTotal    uint64 `json:"fundedUsdcTotal"`

	IsEncrypted bool `json:"isEncrypted,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// Post-execution.
	ActualUsdcSpent         uint64     `json:"actualUsdcSpent"`
	ActualSharesReceived    uint64     `json:"actualSharesReceived"`
	AveragePriceMicros      uint64     `json:"averagePrice"`
	FillPercentage          float64    `json:"fillPercentage"`
	VenueTx                 string     `json:"venueTx,omitempty"`
	FailureReason           string     `json:"failureReason,omitempty"`
	ExecutionCompletedAt    *time.Time `json:"executionCompletedAt,omitempty"`
	DistributionCompletedAt *time.Time `json:"distributionCompletedAt,omitempty"`

	// Proof.
	MerkleRoot    string   `json:"merkleRoot,omitempty"`
	ProofBlob     []byte   `json:"proofBlob,omitempty"`
	PublicInputs  []string `json:"publicInputs,omitempty"`
	ProofVerified bool     `json:"proofVerified"`

	// First order to supply a mint wins.
	YesTokenMint string `json:"yesTokenMint,omitempty"`
	NoTokenMint  string `json:"noTokenMint,omitempty"`
}

// Terminal reports whether the batch has reached a final state.
func (b *Batch) Terminal() bool {
	return b.Status == BatchCompleted || b.Status == BatchFailed
}

// UnmatchedDeposit is a custody credit the matcher could not tie to an order.
type UnmatchedDeposit struct {
	TxID         string     `json:"txid"`
	Sender       string     `json:"senderAddress"`
	AmountMicros uint64     `json:"amount"`
	Memo         string     `json:"memo,omitempty"`
	SeenAt       time.Time  `json:"seenAt"`
	Resolved     bool       `json:"resolved"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}
