// Package deposits watches the custody account and ties confirmed USDC
// credits to orders. Matching is memo-driven: an order id funds that order, a
// structured memo synthesizes a whole trade, anything else is retained for
// manual resolution. Every deposit signature is consumed exactly once.
package deposits

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/async"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/chain"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/lifecycle"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/store"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "deposits")

var (
	depositsMatchedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_deposits_matched_total",
		Help: "The number of deposits matched to a waiting order",
	})
	depositsOrphanedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_deposits_orphaned_total",
		Help: "The number of deposits retained for manual resolution",
	})
	depositsRefundedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_deposits_refunded_total",
		Help: "The number of deposits refunded to their sender",
	})
)

// Config wires the matcher's collaborators.
type Config struct {
	Store     *store.Store
	Watcher   chain.Watcher
	Sender    chain.Sender
	Lifecycle *lifecycle.Service
}

// Service polls the chain watcher and resolves each new deposit.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc

	lock    sync.RWMutex
	lastErr error
}

// NewService builds the deposit matcher.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Start begins the poll loop.
func (s *Service) Start() {
	log.WithField("interval", params.Relay().DepositPollInterval).Info("Starting deposit matcher")
	async.RunEvery(s.ctx, params.Relay().DepositPollInterval, func() {
		if err := s.ScanOnce(s.ctx); err != nil {
			log.WithError(err).Error("Deposit scan failed")
		}
	})
}

// Stop halts the poll loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status reports the most recent scan error, if any.
func (s *Service) Status() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastErr
}

// ScanOnce pulls every deposit newer than the stored cursor and processes
// each in chain order. The cursor only advances after a full pass.
func (s *Service) ScanOnce(ctx context.Context) error {
	deps, cursor, err := s.cfg.Watcher.DepositsSince(ctx, s.cfg.Store.Cursor())
	s.lock.Lock()
	s.lastErr = err
	s.lock.Unlock()
	if err != nil {
		return err
	}
	for _, d := range deps {
		s.process(ctx, d)
	}
	if cursor != s.cfg.Store.Cursor() {
		s.cfg.Store.SetCursor(cursor)
	}
	return nil
}

func (s *Service) process(ctx context.Context, d *chain.Deposit) {
	if !s.cfg.Store.MarkProcessed(d.Signature) {
		return
	}
	memo := strings.TrimSpace(d.Memo)

	if IsStructuredMemo(memo) {
		s.processStructured(ctx, d, memo)
		return
	}

	order, err := s.cfg.Store.GetOrder(memo)
	if err != nil {
		s.orphan(d, "memo matches no order")
		return
	}
	if order.Status != types.OrderPendingDeposit {
		s.orphan(d, "order already "+string(order.Status))
		return
	}
	if time.Now().After(order.DepositExpiresAt) {
		s.orphan(d, "deposit window expired")
		return
	}
	// An encrypted order hides its amount, so any deposit carrying its memo
	// funds it at the deposited amount. Plain orders must match what they
	// declared.
	if !order.IsEncrypted && !withinTolerance(d.AmountMicros, order.AmountMicros) {
		s.refundMismatch(ctx, d, order)
		return
	}
	if err := s.cfg.Lifecycle.Activate(ctx, order.ID, d.Signature, d.Sender, d.AmountMicros); err != nil {
		log.WithError(err).WithField("order", order.ID).Error("Could not activate funded order")
		s.orphan(d, "activation failed")
		return
	}
	depositsMatchedCount.Inc()
}

func (s *Service) processStructured(ctx context.Context, d *chain.Deposit, memo string) {
	parsed, err := ParseStructuredMemo(memo)
	if err != nil {
		s.orphan(d, "bad structured memo: "+err.Error())
		return
	}
	if !withinTolerance(d.AmountMicros, parsed.AmountMicros) {
		s.refundStructuredMismatch(ctx, d, parsed)
		return
	}
	orderID, err := s.cfg.Lifecycle.Impromptu(ctx, &lifecycle.ImpromptuRequest{
		MarketID:     parsed.MarketTicker,
		Side:         parsed.Side,
		AmountMicros: parsed.AmountMicros,
		SlippageBps:  parsed.SlippageBps,
		Destinations: parsed.Destinations,
		OutcomeMint:  parsed.OutcomeMint,
		DepositTx:    d.Signature,
		Sender:       d.Sender,
	})
	if err != nil {
		if orderID == "" {
			s.orphan(d, "bad memo order: "+err.Error())
			return
		}
		log.WithError(err).WithField("order", orderID).Error("Memo order execution failed")
		return
	}
	depositsMatchedCount.Inc()
	log.WithFields(logrus.Fields{
		"order":   orderID,
		"deposit": d.Signature,
	}).Info("Executed memo-carried order")
}

// refundMismatch sends a wrong-amount deposit straight back and leaves the
// order waiting for a correct one.
func (s *Service) refundMismatch(ctx context.Context, d *chain.Deposit, order *types.Order) {
	log.WithFields(logrus.Fields{
		"deposit":  d.Signature,
		"order":    order.ID,
		"got":      field.FormatAmount(d.AmountMicros),
		"expected": field.FormatAmount(order.AmountMicros),
	}).Warn("Deposit amount mismatch, refunding sender")
	s.refund(ctx, d, "amount mismatch for order "+order.ID)
}

func (s *Service) refundStructuredMismatch(ctx context.Context, d *chain.Deposit, m *StructuredMemo) {
	log.WithFields(logrus.Fields{
		"deposit":  d.Signature,
		"got":      field.FormatAmount(d.AmountMicros),
		"expected": field.FormatAmount(m.AmountMicros),
	}).Warn("Memo amount disagrees with deposit, refunding sender")
	s.refund(ctx, d, "memo amount mismatch")
}

func (s *Service) refund(ctx context.Context, d *chain.Deposit, reason string) {
	now := time.Now()
	rec := &types.UnmatchedDeposit{
		TxID:         d.Signature,
		Sender:       d.Sender,
		AmountMicros: d.AmountMicros,
		Memo:         d.Memo,
		SeenAt:       now,
	}
	if _, err := s.cfg.Sender.TransferUsdc(ctx, d.Sender, d.AmountMicros); err != nil {
		log.WithError(err).WithField("deposit", d.Signature).Error("Auto-refund failed, retaining deposit")
		s.cfg.Store.AddUnmatched(rec)
		depositsOrphanedCount.Inc()
		return
	}
	rec.Resolved = true
	rec.ResolvedAt = &now
	rec.Memo = d.Memo + " (" + reason + ")"
	s.cfg.Store.AddUnmatched(rec)
	depositsRefundedCount.Inc()
}

func (s *Service) orphan(d *chain.Deposit, reason string) {
	log.WithFields(logrus.Fields{
		"deposit": d.Signature,
		"sender":  d.Sender,
		"amount":  field.FormatAmount(d.AmountMicros),
		"reason":  reason,
	}).Warn("Retaining unmatched deposit")
	s.cfg.Store.AddUnmatched(&types.UnmatchedDeposit{
		TxID:         d.Signature,
		Sender:       d.Sender,
		AmountMicros: d.AmountMicros,
		Memo:         d.Memo,
		SeenAt:       time.Now(),
	})
	depositsOrphanedCount.Inc()
}

// MatchDeposit ties a retained deposit to an order by operator decision. The
// amount tolerance is deliberately not enforced here.
func (s *Service) MatchDeposit(ctx context.Context, txid, orderID string) error {
	d, err := s.cfg.Store.GetUnmatched(txid)
	if err != nil {
		return err
	}
	if d.Resolved {
		return types.NewError(types.KindStateConflict, "deposit %s is already resolved", txid)
	}
	if err := s.cfg.Lifecycle.Activate(ctx, orderID, d.TxID, d.Sender, d.AmountMicros); err != nil {
		return err
	}
	depositsMatchedCount.Inc()
	return s.cfg.Store.ResolveUnmatched(txid, time.Now())
}

// RefundDeposit returns a retained deposit to its sender by operator decision
// and reports the refund signature.
func (s *Service) RefundDeposit(ctx context.Context, txid string) (string, error) {
	d, err := s.cfg.Store.GetUnmatched(txid)
	if err != nil {
		return "", err
	}
	if d.Resolved {
		return "", types.NewError(types.KindStateConflict, "deposit %s is already resolved", txid)
	}
	sig, err := s.cfg.Sender.TransferUsdc(ctx, d.Sender, d.AmountMicros)
	if err != nil {
		return "", err
	}
	depositsRefundedCount.Inc()
	return sig, s.cfg.Store.ResolveUnmatched(txid, time.Now())
}

func withinTolerance(got, want uint64) bool {
	tol := params.Relay().AmountToleranceMicros
	if got > want {
		return got-want <= tol
	}
	return want-got <= tol
}
