// Package lifecycle drives batches through their state machine: order
// submission, deposit activation, closure, the aggregate venue trade, proof
// generation, and share distribution. Transitions happen under the batch
// lock; venue, prover and chain calls run outside it so one batch never
// blocks another.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/container/merkle"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/chain"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/commitment"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/planner"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/prover"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/store"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/venue"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "lifecycle")

var (
	batchesExecutedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_batches_executed_total",
		Help: "The number of batches that completed the execute pipeline",
	})
	batchesFailedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_batches_failed_total",
		Help: "The number of batches that entered the failed state",
	})
)

// Config wires the lifecycle's collaborators.
type Config struct {
	Store  *store.Store
	Venue  venue.Executor
	Prover prover.Generator
	Sender chain.Sender
}

// Service orchestrates batch and order state.
type Service struct {
	cfg *Config
}

// New builds a lifecycle service.
func New(cfg *Config) *Service {
	return &Service{cfg: cfg}
}

// SubmitRequest is a validated-on-entry order submission.
type SubmitRequest struct {
	MarketID     string
	Side         string
	UsdcAmount   string
	Distribution []types.Destination
	// LegacyWallet is the single-destination form older clients send.
	LegacyWallet string
	Salt         string
	SlippageBps  uint32
	YesTokenMint string
	NoTokenMint  string
}

// Submit validates, commits and batches a new order. The returned order copy
// is in pending_deposit with its deposit memo equal to the order id.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*types.Order, error) {
	dist, err := normalizeDistribution(req.Distribution, req.LegacyWallet)
	if err != nil {
		return nil, err
	}
	side := types.Side(req.Side)
	if !side.Valid() {
		return nil, types.NewError(types.KindBadInput, "side %q must be YES or NO", req.Side)
	}
	if req.MarketID == "" {
		return nil, types.NewError(types.KindBadInput, "marketId is required")
	}
	amountMicros, err := field.ParseAmount(req.UsdcAmount)
	if err != nil {
		return nil, types.NewError(types.KindBadInput, "usdcAmount: %v", err)
	}

	var salt field.Element
	if req.Salt != "" {
		salt, err = field.FromSalt(req.Salt)
		if err != nil {
			return nil, types.NewError(types.KindBadInput, "salt: %v", err)
		}
	} else {
		salt, err = field.RandomSalt()
		if err != nil {
			return nil, types.NewError(types.KindInternal, "could not generate salt: %v", err)
		}
	}

	commit, err := commitment.Compute(req.MarketID, side, amountMicros, dist, salt)
	if err != nil {
		return nil, types.NewError(types.KindBadInput, "commitment: %v", err)
	}

	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = params.Relay().DefaultSlippageBps
	}
	now := time.Now()
	order := &types.Order{
		ID:               uuid.New().String(),
		MarketID:         req.MarketID,
		Side:             side,
		AmountMicros:     amountMicros,
		Distribution:     dist,
		SlippageBps:      slippage,
		Salt:             field.Hex(salt),
		CommitmentHash:   field.Hex(commit),
		Status:           types.OrderPendingDeposit,
		CreatedAt:        now,
		DepositExpiresAt: now.Add(params.Relay().DepositExpiry),
		YesTokenMint:     req.YesTokenMint,
		NoTokenMint:      req.NoTokenMint,
	}
	if _, err := s.cfg.Store.SubmitOrder(order); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"order":  order.ID,
		"batch":  order.BatchID,
		"market": order.MarketID,
		"side":   order.Side,
		"amount": field.FormatAmount(order.AmountMicros),
	}).Info("Accepted order")
	return s.cfg.Store.GetOrder(order.ID)
}

// EncryptedSubmitRequest carries an order whose amount and distribution stay
// hidden from the relay.
type EncryptedSubmitRequest struct {
	MarketID       string
	Side           string
	Ciphertext     []byte
	CommitmentHash string
	Salt           string
}

// SubmitEncrypted batches an opaque ciphertext order. The client supplies the
// commitment hash; the relay only checks its shape.
func (s *Service) SubmitEncrypted(ctx context.Context, req *EncryptedSubmitRequest) (*types.Order, error) {
	side := types.Side(req.Side)
	if !side.Valid() {
		return nil, types.NewError(types.KindBadInput, "side %q must be YES or NO", req.Side)
	}
	if req.MarketID == "" {
		return nil, types.NewError(types.KindBadInput, "marketId is required")
	}
	if len(req.Ciphertext) == 0 {
		return nil, types.NewError(types.KindBadInput, "ciphertext is required")
	}
	if _, err := field.FromHex(req.CommitmentHash); err != nil {
		return nil, types.NewError(types.KindBadInput, "commitmentHash: %v", err)
	}
	now := time.Now()
	order := &types.Order{
		ID:               uuid.New().String(),
		MarketID:         req.MarketID,
		Side:             side,
		IsEncrypted:      true,
		Ciphertext:       req.Ciphertext,
		Salt:             req.Salt,
		CommitmentHash:   req.CommitmentHash,
		Status:           types.OrderPendingDeposit,
		CreatedAt:        now,
		DepositExpiresAt: now.Add(params.Relay().DepositExpiry),
	}
	if _, err := s.cfg.Store.SubmitOrder(order); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"order": order.ID,
		"batch": order.BatchID,
	}).Info("Accepted encrypted order")
	return s.cfg.Store.GetOrder(order.ID)
}

// Activate confirms an order's deposit. Activating anything but a
// pending_deposit order returns a state-conflict error; the deposit matcher
// treats that as a no-op. For an encrypted order the deposited amount becomes
// the funded amount, so depositMicros must be positive there.
func (s *Service) Activate(ctx context.Context, orderID, depositTx, sender string, depositMicros uint64) error {
	if err := s.cfg.Store.ActivateOrder(orderID, depositTx, sender, depositMicros, time.Now()); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"order":   orderID,
		"deposit": depositTx,
	}).Info("Order funded")
	return nil
}

// CloseBatch moves a collecting batch to ready.
func (s *Service) CloseBatch(ctx context.Context, batchID string) error {
	return s.cfg.Store.MarkReady(batchID)
}

// DepositAddress is the custody account advertised to depositors.
func (s *Service) DepositAddress() string {
	return s.cfg.Sender.Address()
}

// CustodyBalances reports the custody wallet's current holdings.
func (s *Service) CustodyBalances(ctx context.Context) (*chain.Balances, error) {
	return s.cfg.Sender.Balances(ctx)
}

// Execute runs a ready batch through trade, proof and distribution. The batch
// ends completed or failed; per-destination send failures are recorded
// without failing the batch.
func (s *Service) Execute(ctx context.Context, batchID string) error {
	lock := s.cfg.Store.BatchLock(batchID)

	lock.Lock()
	if err := s.cfg.Store.CasBatchStatus(batchID, types.BatchReady, types.BatchExecuting); err != nil {
		lock.Unlock()
		return err
	}
	funded, err := s.cfg.Store.FundedOrders(batchID)
	if err != nil {
		lock.Unlock()
		return err
	}
	var fundedTotal uint64
	for _, o := range funded {
		fundedTotal += o.AmountMicros
	}
	if err := s.cfg.Store.SetFundedTotal(batchID, fundedTotal); err != nil {
		lock.Unlock()
		return err
	}
	batch, err := s.cfg.Store.GetBatch(batchID)
	if err != nil {
		lock.Unlock()
		return err
	}
	lock.Unlock()

	if len(funded) == 0 {
		return s.fail(batchID, "no_funded_orders")
	}

	// Aggregate trade. Runs outside any lock.
	outputMint, err := s.outputMint(ctx, batch)
	if err != nil {
		return s.fail(batchID, "venue_failure: "+err.Error())
	}
	venueCtx, cancel := context.WithTimeout(ctx, params.Relay().VenueTimeout)
	result, err := s.cfg.Venue.Execute(venueCtx, &venue.ExecuteRequest{
		MarketID:    batch.MarketID,
		Side:        batch.Side,
		UsdcMicros:  fundedTotal,
		SlippageBps: slippageFor(funded),
		OutputMint:  outputMint,
	})
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return s.fail(batchID, "venue_timeout")
		}
		return s.fail(batchID, "venue_failure: "+err.Error())
	}
	if err := s.cfg.Store.RecordExecution(batchID, result.UsdcSpentMicros, result.SharesReceived,
		result.AvgPriceMicros, result.FillPercentage, result.VenueTx, time.Now()); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"batch":  batchID,
		"spent":  field.FormatAmount(result.UsdcSpentMicros),
		"shares": result.SharesReceived,
		"fill":   result.FillPercentage,
	}).Info("Venue trade confirmed")

	lock.Lock()
	err = s.cfg.Store.CasBatchStatus(batchID, types.BatchExecuting, types.BatchProving)
	lock.Unlock()
	if err != nil {
		return err
	}

	// Proof inputs: Merkle tree over funded commitments in insertion order,
	// allocations in the same enumeration order.
	commits := make([]field.Element, len(funded))
	for i, o := range funded {
		c, err := field.FromHex(o.CommitmentHash)
		if err != nil {
			return s.fail(batchID, "proof_failure: malformed commitment on order "+o.ID)
		}
		commits[i] = c
	}
	tree := merkle.NewTree(commits)
	root := tree.Root()

	allocs, err := planner.Plan(funded, result.UsdcSpentMicros, result.SharesReceived)
	if err != nil {
		return s.fail(batchID, "proof_failure: "+err.Error())
	}
	for _, a := range allocs {
		if err := s.cfg.Store.SetOrderAllocation(a.OrderID, a.EffectiveSpent, a.Shares, a.Refund); err != nil {
			return err
		}
	}

	proofInputs := &prover.Inputs{
		Root:        root,
		TotalIn:     fundedTotal,
		TotalOut:    planner.TotalShares(allocs),
		MarketID:    batch.MarketID,
		Side:        batch.Side,
		Commitments: commits,
		Encrypted:   batch.IsEncrypted,
	}
	if !batch.IsEncrypted {
		proofInputs.Allocations = planner.Flatten(allocs)
	}
	proof, err := s.cfg.Prover.Generate(ctx, proofInputs)
	if err != nil {
		return s.fail(batchID, "proof_failure: "+err.Error())
	}
	if err := s.cfg.Store.RecordProof(batchID, field.Hex(root), proof.Blob, proof.PublicInputs, proof.Verified); err != nil {
		return err
	}
	if !proof.Verified {
		return s.fail(batchID, "proof_failure: proof did not verify")
	}

	lock.Lock()
	err = s.cfg.Store.CasBatchStatus(batchID, types.BatchProving, types.BatchDistributing)
	lock.Unlock()
	if err != nil {
		return err
	}

	for _, o := range funded {
		if err := s.cfg.Store.MarkOrderExecuting(o.ID); err != nil {
			log.WithError(err).WithField("order", o.ID).Error("Could not move order into execution")
		}
	}

	// Distribution: destinations in declared order per order; failures are
	// recorded and do not abort the remaining sends.
	s.distribute(ctx, outputMint, allocs)

	for _, o := range funded {
		if err := s.cfg.Store.CompleteOrder(o.ID); err != nil {
			log.WithError(err).WithField("order", o.ID).Error("Could not complete order")
		}
	}
	if err := s.cfg.Store.CompleteBatch(batchID, time.Now()); err != nil {
		return err
	}
	batchesExecutedCount.Inc()
	log.WithField("batch", batchID).Info("Batch completed")
	return nil
}

// ExecuteReady runs every ready batch and returns how many were attempted.
func (s *Service) ExecuteReady(ctx context.Context) int {
	ready := s.cfg.Store.ReadyBatches()
	for _, b := range ready {
		if err := s.Execute(ctx, b.ID); err != nil {
			log.WithError(err).WithField("batch", b.ID).Error("Batch execution failed")
		}
	}
	return len(ready)
}

// ImpromptuRequest is an order carried entirely by a deposit's structured
// memo. The deposit is already confirmed, so the order activates immediately
// and its batch executes on its own.
type ImpromptuRequest struct {
	MarketID     string
	Side         types.Side
	AmountMicros uint64
	SlippageBps  uint32
	Destinations []string
	OutcomeMint  string
	DepositTx    string
	Sender       string
}

// Impromptu synthesizes a funded order from a structured deposit memo, places
// it in an isolated single-order batch and executes that batch.
func (s *Service) Impromptu(ctx context.Context, req *ImpromptuRequest) (string, error) {
	if !req.Side.Valid() {
		return "", types.NewError(types.KindBadInput, "side %q must be YES or NO", req.Side)
	}
	if req.AmountMicros == 0 {
		return "", types.NewError(types.KindBadInput, "amount must be positive")
	}
	dist, err := evenDistribution(req.Destinations)
	if err != nil {
		return "", err
	}
	salt, err := field.RandomSalt()
	if err != nil {
		return "", types.NewError(types.KindInternal, "could not generate salt: %v", err)
	}
	commit, err := commitment.Compute(req.MarketID, req.Side, req.AmountMicros, dist, salt)
	if err != nil {
		return "", types.NewError(types.KindBadInput, "commitment: %v", err)
	}
	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = params.Relay().DefaultSlippageBps
	}
	now := time.Now()
	confirmed := now
	order := &types.Order{
		ID:                 uuid.New().String(),
		MarketID:           req.MarketID,
		Side:               req.Side,
		AmountMicros:       req.AmountMicros,
		Distribution:       dist,
		SlippageBps:        slippage,
		Salt:               field.Hex(salt),
		CommitmentHash:     field.Hex(commit),
		Status:             types.OrderPending,
		CreatedAt:          now,
		DepositExpiresAt:   now,
		DepositTx:          req.DepositTx,
		DepositSender:      req.Sender,
		DepositConfirmedAt: &confirmed,
	}
	if req.Side == types.SideYes {
		order.YesTokenMint = req.OutcomeMint
	} else {
		order.NoTokenMint = req.OutcomeMint
	}
	batchID, err := s.cfg.Store.SubmitIsolatedOrder(order)
	if err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{
		"order": order.ID,
		"batch": batchID,
	}).Info("Accepted impromptu order from deposit memo")
	if err := s.Execute(ctx, batchID); err != nil {
		return order.ID, err
	}
	return order.ID, nil
}

func (s *Service) fail(batchID, reason string) error {
	if err := s.cfg.Store.FailBatch(batchID, reason); err != nil {
		return err
	}
	batchesFailedCount.Inc()
	log.WithFields(logrus.Fields{
		"batch":  batchID,
		"reason": reason,
	}).Warn("Batch failed")
	return nil
}

func (s *Service) outputMint(ctx context.Context, batch *types.Batch) (string, error) {
	mint := batch.YesTokenMint
	if batch.Side == types.SideNo {
		mint = batch.NoTokenMint
	}
	if mint != "" {
		return mint, nil
	}
	market, err := s.cfg.Venue.GetMarket(ctx, batch.MarketID)
	if err != nil {
		return "", err
	}
	if batch.Side == types.SideNo {
		return market.NoMint, nil
	}
	return market.YesMint, nil
}

// distribute sends shares to every destination and refunds to every primary
// address, retrying each send once on a transient error.
func (s *Service) distribute(ctx context.Context, mint string, allocs []planner.OrderAllocation) {
	for _, oa := range allocs {
		results := make([]types.DistributionResult, 0, len(oa.Destinations))
		for _, dest := range oa.Destinations {
			res := types.DistributionResult{Address: dest.Address, Shares: dest.Shares}
			if dest.Shares > 0 {
				txid, err := s.sendWithRetry(ctx, func() (string, error) {
					return s.cfg.Sender.TransferToken(ctx, mint, dest.Address, dest.Shares)
				})
				if err != nil {
					log.WithError(err).WithFields(logrus.Fields{
						"order": oa.OrderID,
						"dest":  dest.Address,
					}).Error("Share transfer failed, recorded for out-of-band retry")
				} else {
					res.TxID = txid
				}
			}
			results = append(results, res)
		}
		if err := s.cfg.Store.SetDistributionResults(oa.OrderID, results); err != nil {
			log.WithError(err).WithField("order", oa.OrderID).Error("Could not record distribution results")
		}

		if oa.Refund > 0 {
			// Refunds go to the primary destination; an encrypted order
			// declares none, so its deposit sender takes them instead.
			primary := ""
			if len(oa.Destinations) > 0 {
				primary = oa.Destinations[0].Address
			} else if o, err := s.cfg.Store.GetOrder(oa.OrderID); err == nil {
				primary = o.DepositSender
			}
			if primary == "" {
				log.WithField("order", oa.OrderID).Error("No refund destination on record")
				continue
			}
			if _, err := s.sendWithRetry(ctx, func() (string, error) {
				return s.cfg.Sender.TransferUsdc(ctx, primary, oa.Refund)
			}); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"order": oa.OrderID,
					"dest":  primary,
				}).Error("Refund transfer failed, recorded for out-of-band retry")
			}
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, send func() (string, error)) (string, error) {
	txid, err := send()
	if err == nil {
		return txid, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	return send()
}

func slippageFor(orders []*types.Order) uint32 {
	// The batch trades at the tightest slippage any member requested.
	slippage := params.Relay().DefaultSlippageBps
	for _, o := range orders {
		if o.SlippageBps > 0 && o.SlippageBps < slippage {
			slippage = o.SlippageBps
		}
	}
	return slippage
}

func normalizeDistribution(dist []types.Destination, legacyWallet string) ([]types.Destination, error) {
	if len(dist) == 0 {
		if legacyWallet == "" {
			return nil, types.NewError(types.KindBadInput, "distribution or destinationWallet is required")
		}
		dist = []types.Destination{{Address: legacyWallet, Bps: types.BpsDenominator}}
	}
	if len(dist) > types.MaxDestinations {
		return nil, types.NewError(types.KindBadInput, "distribution has %d entries, limit is %d", len(dist), types.MaxDestinations)
	}
	var total uint64
	for i, d := range dist {
		if d.Bps == 0 {
			return nil, types.NewError(types.KindBadInput, "distribution entry %d has zero percentage", i)
		}
		if !field.ValidAddress(d.Address) {
			return nil, types.NewError(types.KindBadInput, "distribution entry %d has invalid wallet %q", i, d.Address)
		}
		total += uint64(d.Bps)
	}
	if total != types.BpsDenominator {
		return nil, types.NewError(types.KindBadInput, "distribution percentages sum to %d, want %d", total, types.BpsDenominator)
	}
	return dist, nil
}

func evenDistribution(addrs []string) ([]types.Destination, error) {
	if len(addrs) == 0 {
		return nil, types.NewError(types.KindBadInput, "memo names no destinations")
	}
	if len(addrs) > types.MaxDestinations {
		return nil, types.NewError(types.KindBadInput, "memo names %d destinations, limit is %d", len(addrs), types.MaxDestinations)
	}
	share := uint32(types.BpsDenominator / len(addrs))
	dist := make([]types.Destination, len(addrs))
	var assigned uint32
	for i, a := range addrs {
		if !field.ValidAddress(a) {
			return nil, types.NewError(types.KindBadInput, "memo destination %q is invalid", a)
		}
		bps := share
		if i == len(addrs)-1 {
			bps = types.BpsDenominator - assigned
		}
		dist[i] = types.Destination{Address: a, Bps: bps}
		assigned += bps
	}
	return dist, nil
}
