// Package scheduler runs the relay's clock-driven work: closing aged
// batches, executing ready ones under a concurrency cap, expiring stale
// deposit windows and pruning resolved deposits.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/async"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/lifecycle"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/store"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "scheduler")

// Config wires the scheduler's collaborators.
type Config struct {
	Store     *store.Store
	Lifecycle *lifecycle.Service
}

// Service ticks the relay forward.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc

	// sem bounds concurrent batch executions.
	sem chan struct{}
	wg  sync.WaitGroup

	// inFlight guards against re-launching a batch the previous tick
	// already dispatched.
	mu       sync.Mutex
	inFlight map[string]bool
}

// NewService builds the scheduler.
func NewService(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, params.Relay().MaxConcurrentExecutions),
		inFlight: make(map[string]bool),
	}
}

// Start begins the tick loop.
func (s *Service) Start() {
	log.WithField("tick", params.Relay().SchedulerTick).Info("Starting scheduler")
	async.RunEvery(s.ctx, params.Relay().SchedulerTick, func() {
		s.Tick(s.ctx, time.Now())
	})
}

// Stop halts the loop and waits for in-flight executions.
func (s *Service) Stop() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// Status implements runtime.Service.
func (s *Service) Status() error {
	return nil
}

// Tick performs one scheduling pass at the given instant.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	s.closeAgedBatches(now)
	s.launchReady(ctx)
	s.expireStaleOrders(now)
	s.pruneUnmatched(now)
}

// closeAgedBatches moves collecting batches past the batch timeout to ready,
// provided they hold at least the minimum number of orders.
func (s *Service) closeAgedBatches(now time.Time) {
	cfg := params.Relay()
	for _, b := range s.cfg.Store.OpenBatches() {
		if now.Sub(b.CreatedAt) < cfg.BatchTimeout || len(b.OrderIDs) < cfg.MinBatchSize {
			continue
		}
		if err := s.cfg.Store.MarkReady(b.ID); err != nil {
			log.WithError(err).WithField("batch", b.ID).Error("Could not close aged batch")
			continue
		}
		log.WithFields(logrus.Fields{
			"batch":  b.ID,
			"orders": len(b.OrderIDs),
			"age":    now.Sub(b.CreatedAt),
		}).Info("Closed batch on timeout")
	}
}

// launchReady dispatches every ready batch onto the bounded execution pool.
func (s *Service) launchReady(ctx context.Context) {
	for _, b := range s.cfg.Store.ReadyBatches() {
		batchID := b.ID
		s.mu.Lock()
		if s.inFlight[batchID] {
			s.mu.Unlock()
			continue
		}
		s.inFlight[batchID] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.inFlight, batchID)
				s.mu.Unlock()
			}()
			select {
			case s.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-s.sem }()
			if err := s.cfg.Lifecycle.Execute(ctx, batchID); err != nil {
				log.WithError(err).WithField("batch", batchID).Error("Scheduled execution failed")
			}
		}()
	}
}

// expireStaleOrders expires orders whose deposit window closed unfunded.
func (s *Service) expireStaleOrders(now time.Time) {
	for _, o := range s.cfg.Store.PendingDepositOrders() {
		if now.Before(o.DepositExpiresAt) {
			continue
		}
		if err := s.cfg.Store.ExpireOrder(o.ID); err != nil {
			log.WithError(err).WithField("order", o.ID).Error("Could not expire order")
			continue
		}
		log.WithField("order", o.ID).Info("Expired unfunded order")
	}
}

// pruneUnmatched drops resolved deposits past the retention window.
func (s *Service) pruneUnmatched(now time.Time) {
	cutoff := now.Add(-params.Relay().UnmatchedRetention)
	if n := s.cfg.Store.PruneUnmatched(cutoff); n > 0 {
		log.WithField("count", n).Info("Pruned resolved deposits")
	}
}
