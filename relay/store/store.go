// Package store is the in-memory catalog of orders and batches. It owns both
// record types, keeps the open-batch index consistent, and guards every
// mutation behind its lock; long-running work never happens inside the store.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "store")

var (
	ordersSubmittedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_orders_submitted_total",
		Help: "The number of orders accepted into batches",
	})
	openBatchesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_open_batches",
		Help: "The number of batches currently collecting orders",
	})
	unmatchedDepositsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_unmatched_deposits",
		Help: "The number of deposits retained for manual resolution",
	})
	processedDepositsCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_processed_deposits_total",
		Help: "The number of distinct deposit signatures consumed",
	})
)

type openKey struct {
	market    string
	side      types.Side
	encrypted bool
}

// Store catalogs orders, batches, unmatched deposits and the processed
// deposit-signature set.
type Store struct {
	mu         sync.RWMutex
	orders     map[string]*types.Order
	batches    map[string]*types.Batch
	open       map[openKey]string
	batchLocks map[string]*sync.Mutex
	unmatched  map[string]*types.UnmatchedDeposit
	processed  map[string]bool
	cursor     string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orders:     make(map[string]*types.Order),
		batches:    make(map[string]*types.Batch),
		open:       make(map[openKey]string),
		batchLocks: make(map[string]*sync.Mutex),
		unmatched:  make(map[string]*types.UnmatchedDeposit),
		processed:  make(map[string]bool),
	}
}

// BatchLock returns the mutex serializing lifecycle work on one batch.
// Callers hold it across a whole transition, never across venue or chain
// calls.
func (s *Store) BatchLock(batchID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.batchLocks[batchID]
	if !ok {
		l = &sync.Mutex{}
		s.batchLocks[batchID] = l
	}
	return l
}

// SubmitOrder places a fully-built order into the open batch for its
// (market, side, encrypted) key, creating a new batch when none is open or
// the open one is full. Returns the batch id the order landed in.
func (s *Store) SubmitOrder(o *types.Order) (string, error) {
	if o.ID == "" {
		return "", types.NewError(types.KindInternal, "order has no id")
	}
	maxSize := params.Relay().MaxBatchSize

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return "", types.NewError(types.KindStateConflict, "order %s already exists", o.ID)
	}

	key := openKey{market: o.MarketID, side: o.Side, encrypted: o.IsEncrypted}
	var b *types.Batch
	if id, ok := s.open[key]; ok {
		candidate := s.batches[id]
		if candidate != nil && candidate.Status == types.BatchCollecting && len(candidate.OrderIDs) < maxSize {
			b = candidate
		} else {
			// Stale index entry; drop it and open a fresh batch.
			delete(s.open, key)
		}
	}
	if b == nil {
		b = &types.Batch{
			ID:          uuid.New().String(),
			MarketID:    o.MarketID,
			Side:        o.Side,
			Status:      types.BatchCollecting,
			IsEncrypted: o.IsEncrypted,
			CreatedAt:   time.Now(),
		}
		s.batches[b.ID] = b
		s.open[key] = b.ID
		log.WithFields(logrus.Fields{
			"batch":  b.ID,
			"market": b.MarketID,
			"side":   b.Side,
		}).Info("Opened new batch")
	}

	o.BatchID = b.ID
	s.orders[o.ID] = o
	b.OrderIDs = append(b.OrderIDs, o.ID)
	b.TotalUsdcCommitted += o.AmountMicros
	if b.YesTokenMint == "" && o.YesTokenMint != "" {
		b.YesTokenMint = o.YesTokenMint
	}
	if b.NoTokenMint == "" && o.NoTokenMint != "" {
		b.NoTokenMint = o.NoTokenMint
	}
	if len(b.OrderIDs) >= maxSize {
		b.Status = types.BatchReady
		delete(s.open, key)
		log.WithField("batch", b.ID).Info("Batch reached capacity, marked ready")
	}
	ordersSubmittedCount.Inc()
	openBatchesGauge.Set(float64(len(s.open)))
	return b.ID, nil
}

// SubmitIsolatedOrder places an already-funded order into a fresh batch that
// is never registered in the open index and is immediately ready. Used for
// orders synthesized from structured deposit memos.
func (s *Store) SubmitIsolatedOrder(o *types.Order) (string, error) {
	if o.ID == "" {
		return "", types.NewError(types.KindInternal, "order has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return "", types.NewError(types.KindStateConflict, "order %s already exists", o.ID)
	}
	b := &types.Batch{
		ID:                 uuid.New().String(),
		MarketID:           o.MarketID,
		Side:               o.Side,
		Status:             types.BatchReady,
		IsEncrypted:        o.IsEncrypted,
		CreatedAt:          time.Now(),
		OrderIDs:           []string{o.ID},
		TotalUsdcCommitted: o.AmountMicros,
		YesTokenMint:       o.YesTokenMint,
		NoTokenMint:        o.NoTokenMint,
	}
	o.BatchID = b.ID
	s.orders[o.ID] = o
	s.batches[b.ID] = b
	ordersSubmittedCount.Inc()
	log.WithFields(logrus.Fields{
		"batch": b.ID,
		"order": o.ID,
	}).Info("Opened isolated batch for memo order")
	return b.ID, nil
}

// GetOrder returns a copy of the order.
func (s *Store) GetOrder(id string) (*types.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "unknown order %s", id)
	}
	return copyOrder(o), nil
}

// GetBatch returns a copy of the batch.
func (s *Store) GetBatch(id string) (*types.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "unknown batch %s", id)
	}
	return copyBatch(b), nil
}

// Orders returns copies of a batch's orders in insertion order.
func (s *Store) Orders(batchID string) ([]*types.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	out := make([]*types.Order, 0, len(b.OrderIDs))
	for _, id := range b.OrderIDs {
		if o, ok := s.orders[id]; ok {
			out = append(out, copyOrder(o))
		}
	}
	return out, nil
}

// FundedOrders returns copies of a batch's funded orders in insertion order.
func (s *Store) FundedOrders(batchID string) ([]*types.Order, error) {
	all, err := s.Orders(batchID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Order, 0, len(all))
	for _, o := range all {
		if o.Funded() || o.Status == types.OrderExecuting {
			out = append(out, o)
		}
	}
	return out, nil
}

// Batches returns copies of every batch.
func (s *Store) Batches() []*types.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, copyBatch(b))
	}
	return out
}

// OpenBatches returns copies of every collecting batch.
func (s *Store) OpenBatches() []*types.Batch {
	return s.batchesInStatus(types.BatchCollecting)
}

// ReadyBatches returns copies of every ready batch.
func (s *Store) ReadyBatches() []*types.Batch {
	return s.batchesInStatus(types.BatchReady)
}

func (s *Store) batchesInStatus(status types.BatchStatus) []*types.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Batch
	for _, b := range s.batches {
		if b.Status == status {
			out = append(out, copyBatch(b))
		}
	}
	return out
}

// PendingDepositOrders returns copies of every order still waiting on its
// deposit.
func (s *Store) PendingDepositOrders() []*types.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Order
	for _, o := range s.orders {
		if o.Status == types.OrderPendingDeposit {
			out = append(out, copyOrder(o))
		}
	}
	return out
}

// MarkReady transitions a collecting batch to ready and retires it from the
// open index. Calling it on an already-ready batch is a no-op.
func (s *Store) MarkReady(batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	switch b.Status {
	case types.BatchReady:
		return nil
	case types.BatchCollecting:
		b.Status = types.BatchReady
		delete(s.open, openKey{market: b.MarketID, side: b.Side, encrypted: b.IsEncrypted})
		openBatchesGauge.Set(float64(len(s.open)))
		return nil
	default:
		return types.NewError(types.KindStateConflict, "batch %s is %s, cannot close", batchID, b.Status)
	}
}

// CasBatchStatus performs a compare-and-set on the batch status.
func (s *Store) CasBatchStatus(batchID string, from, to types.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	if b.Status != from {
		return types.NewError(types.KindStateConflict, "batch %s is %s, want %s", batchID, b.Status, from)
	}
	b.Status = to
	return nil
}

// FailBatch moves a non-terminal batch to failed with a reason.
func (s *Store) FailBatch(batchID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	if b.Terminal() {
		return types.NewError(types.KindStateConflict, "batch %s is already %s", batchID, b.Status)
	}
	b.Status = types.BatchFailed
	b.FailureReason = reason
	delete(s.open, openKey{market: b.MarketID, side: b.Side, encrypted: b.IsEncrypted})
	openBatchesGauge.Set(float64(len(s.open)))
	return nil
}

// ActivateOrder confirms an order's deposit. Activation of anything but a
// pending_deposit order is a state conflict; callers treat that as a no-op
// signal. An encrypted order declares no amount up front, so whatever the
// deposit carried becomes its funded amount and joins the batch total.
func (s *Store) ActivateOrder(id, tx, sender string, depositMicros uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown order %s", id)
	}
	if o.Status != types.OrderPendingDeposit {
		return types.NewError(types.KindStateConflict, "order %s is %s, not pending_deposit", id, o.Status)
	}
	if o.IsEncrypted {
		if depositMicros == 0 {
			return types.NewError(types.KindBadInput, "encrypted order %s needs a positive deposit amount", id)
		}
		o.AmountMicros = depositMicros
		if b, ok := s.batches[o.BatchID]; ok {
			b.TotalUsdcCommitted += depositMicros
		}
	}
	o.Status = types.OrderPending
	o.DepositTx = tx
	o.DepositSender = sender
	confirmed := at
	o.DepositConfirmedAt = &confirmed
	return nil
}

// ExpireOrder expires an order whose deposit never arrived.
func (s *Store) ExpireOrder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown order %s", id)
	}
	if o.Status != types.OrderPendingDeposit {
		return types.NewError(types.KindStateConflict, "order %s is %s, not pending_deposit", id, o.Status)
	}
	o.Status = types.OrderExpired
	return nil
}

// MarkOrderExecuting moves a funded order into the execution pipeline.
func (s *Store) MarkOrderExecuting(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown order %s", id)
	}
	if o.Status != types.OrderPending {
		return types.NewError(types.KindStateConflict, "order %s is %s, not pending", id, o.Status)
	}
	o.Status = types.OrderExecuting
	return nil
}

// CompleteOrder finishes an executing order.
func (s *Store) CompleteOrder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown order %s", id)
	}
	if o.Status != types.OrderExecuting {
		return types.NewError(types.KindStateConflict, "order %s is %s, not executing", id, o.Status)
	}
	o.Status = types.OrderCompleted
	return nil
}

// RefundOrder marks an order as refunded.
func (s *Store) RefundOrder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown order %s", id)
	}
	switch o.Status {
	case types.OrderPendingDeposit, types.OrderPending, types.OrderExecuting:
		o.Status = types.OrderRefunded
		return nil
	default:
		return types.NewError(types.KindStateConflict, "order %s is %s, cannot refund", id, o.Status)
	}
}

// SetFundedTotal records the funded USDC total captured at batch close.
func (s *Store) SetFundedTotal(batchID string, micros uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	b.FundedUsdcTotal = micros
	return nil
}

// RecordExecution stamps a batch with the venue result.
func (s *Store) RecordExecution(batchID string, spent, shares, avgPriceMicros uint64, fillPct float64, venueTx string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	b.ActualUsdcSpent = spent
	b.ActualSharesReceived = shares
	b.AveragePriceMicros = avgPriceMicros
	b.FillPercentage = fillPct
	b.VenueTx = venueTx
	completed := at
	b.ExecutionCompletedAt = &completed
	return nil
}

// RecordProof stores the proof artifacts on a batch.
func (s *Store) RecordProof(batchID, merkleRoot string, blob []byte, publicInputs []string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	b.MerkleRoot = merkleRoot
	b.ProofBlob = blob
	b.PublicInputs = publicInputs
	b.ProofVerified = verified
	return nil
}

// SetOrderAllocation stamps the planner output on an order.
func (s *Store) SetOrderAllocation(orderID string, effectiveSpent, shares, refund uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown order %s", orderID)
	}
	o.EffectiveUsdcSpent = effectiveSpent
	o.SharesReceived = shares
	o.RefundAmount = refund
	return nil
}

// SetDistributionResults records per-destination transfer outcomes.
func (s *Store) SetDistributionResults(orderID string, results []types.DistributionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown order %s", orderID)
	}
	o.DistributionResults = append([]types.DistributionResult(nil), results...)
	return nil
}

// CompleteBatch finishes a distributing batch.
func (s *Store) CompleteBatch(batchID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown batch %s", batchID)
	}
	if b.Status != types.BatchDistributing {
		return types.NewError(types.KindStateConflict, "batch %s is %s, not distributing", batchID, b.Status)
	}
	b.Status = types.BatchCompleted
	done := at
	b.DistributionCompletedAt = &done
	return nil
}

// MarkProcessed consumes a deposit signature. It returns false when the
// signature was already processed.
func (s *Store) MarkProcessed(signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed[signature] {
		return false
	}
	s.processed[signature] = true
	processedDepositsCount.Inc()
	return true
}

// IsProcessed reports whether a deposit signature was already consumed.
func (s *Store) IsProcessed(signature string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processed[signature]
}

// SetCursor persists the deposit scan cursor.
func (s *Store) SetCursor(cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
}

// Cursor returns the deposit scan cursor.
func (s *Store) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// AddUnmatched retains a deposit for manual resolution.
func (s *Store) AddUnmatched(d *types.UnmatchedDeposit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmatched[d.TxID] = d
	unmatchedDepositsGauge.Set(float64(len(s.unmatched)))
}

// GetUnmatched returns a copy of one unmatched deposit.
func (s *Store) GetUnmatched(txid string) (*types.UnmatchedDeposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.unmatched[txid]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "unknown deposit %s", txid)
	}
	cp := *d
	return &cp, nil
}

// ListUnmatched returns copies of retained deposits, oldest first.
func (s *Store) ListUnmatched(includeResolved bool) []*types.UnmatchedDeposit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.UnmatchedDeposit
	for _, d := range s.unmatched {
		if !includeResolved && d.Resolved {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sortUnmatched(out)
	return out
}

// ResolveUnmatched marks a retained deposit as handled.
func (s *Store) ResolveUnmatched(txid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.unmatched[txid]
	if !ok {
		return types.NewError(types.KindNotFound, "unknown deposit %s", txid)
	}
	d.Resolved = true
	resolved := at
	d.ResolvedAt = &resolved
	return nil
}

// PruneUnmatched drops resolved deposits seen before the cutoff. Returns the
// number removed.
func (s *Store) PruneUnmatched(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, d := range s.unmatched {
		if d.Resolved && d.SeenAt.Before(before) {
			delete(s.unmatched, id)
			n++
		}
	}
	unmatchedDepositsGauge.Set(float64(len(s.unmatched)))
	return n
}

// Stats summarizes the catalog for the status endpoint.
type Stats struct {
	TotalBatches int `json:"totalBatches"`
	TotalOrders  int `json:"totalOrders"`
	Collecting   int `json:"collecting"`
	Completed    int `json:"completed"`
}

// Summary returns store-wide counts.
func (s *Store) Summary() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{TotalBatches: len(s.batches), TotalOrders: len(s.orders)}
	for _, b := range s.batches {
		switch b.Status {
		case types.BatchCollecting:
			st.Collecting++
		case types.BatchCompleted:
			st.Completed++
		}
	}
	return st
}

func copyOrder(o *types.Order) *types.Order {
	cp := *o
	cp.Distribution = append([]types.Destination(nil), o.Distribution...)
	cp.DistributionResults = append([]types.DistributionResult(nil), o.DistributionResults...)
	cp.Ciphertext = append([]byte(nil), o.Ciphertext...)
	return &cp
}

func copyBatch(b *types.Batch) *types.Batch {
	cp := *b
	cp.OrderIDs = append([]string(nil), b.OrderIDs...)
	cp.PublicInputs = append([]string(nil), b.PublicInputs...)
	cp.ProofBlob = append([]byte(nil), b.ProofBlob...)
	return &cp
}

func sortUnmatched(ds []*types.UnmatchedDeposit) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].SeenAt.Before(ds[j].SeenAt)
	})
}

func (k openKey) String() string {
	return fmt.Sprintf("%s|%s|%t", k.market, k.side, k.encrypted)
}
