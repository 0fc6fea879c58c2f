// Package node assembles the relay: state restore, service registry wiring
// and coordinated shutdown with a final state snapshot.
package node

import (
	"context"
	"crypto/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/async"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/chain"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/deposits"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/lifecycle"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/prover"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/rpc"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/scheduler"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/store"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/venue"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/runtime"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "node")

// RelayNode owns every service of a running relay.
type RelayNode struct {
	ctx      context.Context
	cancel   context.CancelFunc
	services *runtime.ServiceRegistry
	store    *store.Store

	lock sync.RWMutex
	stop chan struct{}
}

// New assembles a relay node against the active configuration. Dev mode runs
// a simulated chain, a mock venue and a mock prover end to end.
func New(ctx context.Context) (*RelayNode, error) {
	cfg := params.Relay()
	ctx, cancel := context.WithCancel(ctx)

	st := store.New()
	if err := st.Load(cfg.SnapshotPath); err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not restore relay state")
	}

	custody := cfg.CustodyAddress
	if custody == "" {
		var err error
		custody, err = randomAddress()
		if err != nil {
			cancel()
			return nil, err
		}
		log.WithField("address", custody).Warn("No custody address configured, generated a throwaway dev address")
	}
	sim := chain.NewSim(custody)

	var executor venue.Executor = venue.NewCachingExecutor(venue.NewMock())

	lc := lifecycle.New(&lifecycle.Config{
		Store:  st,
		Venue:  executor,
		Prover: prover.NewMock(),
		Sender: sim,
	})

	n := &RelayNode{
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		store:    st,
		stop:     make(chan struct{}),
	}

	matcher := deposits.NewService(ctx, &deposits.Config{
		Store:     st,
		Watcher:   sim,
		Sender:    sim,
		Lifecycle: lc,
	})
	if err := n.services.RegisterService(matcher); err != nil {
		cancel()
		return nil, err
	}
	if err := n.services.RegisterService(scheduler.NewService(ctx, &scheduler.Config{
		Store:     st,
		Lifecycle: lc,
	})); err != nil {
		cancel()
		return nil, err
	}
	if err := n.services.RegisterService(rpc.NewService(&rpc.Config{
		Addr:      cfg.HTTPAddr,
		Store:     st,
		Lifecycle: lc,
		Matcher:   matcher,
	})); err != nil {
		cancel()
		return nil, err
	}
	return n, nil
}

// Start launches every service and blocks until a shutdown signal or Close.
func (n *RelayNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	async.RunEvery(n.ctx, params.Relay().SnapshotInterval, n.snapshot)
	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the relay node")
	}()

	<-stop
}

// Close stops every service in reverse registration order and writes a final
// snapshot.
func (n *RelayNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping relay node")
	n.services.StopAll()
	n.snapshot()
	n.cancel()
	close(n.stop)
}

func (n *RelayNode) snapshot() {
	path := params.Relay().SnapshotPath
	if err := n.store.Save(path); err != nil {
		log.WithError(err).Error("Could not save state snapshot")
	}
}

func randomAddress() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "could not generate custody address")
	}
	return base58.Encode(raw), nil
}
