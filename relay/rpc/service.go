// Package rpc exposes the relay over HTTP: order intake, batch inspection,
// execution triggers and deposit administration.
package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/config/params"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/deposits"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/lifecycle"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/relay/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "rpc")

// Config wires the HTTP surface to the relay's services.
type Config struct {
	Addr      string
	Store     *store.Store
	Lifecycle *lifecycle.Service
	Matcher   *deposits.Service
}

// Service is the relay's HTTP server.
type Service struct {
	cfg    *Config
	server *http.Server
	router *mux.Router

	lock    sync.RWMutex
	lastErr error
}

// NewService builds the HTTP server and registers every route.
func NewService(cfg *Config) *Service {
	s := &Service{cfg: cfg, router: mux.NewRouter()}
	s.registerRoutes()

	handler := cors.New(cors.Options{
		AllowedOrigins: params.Relay().AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Service) registerRoutes() {
	r := s.router
	r.HandleFunc("/order", s.submitOrder).Methods(http.MethodPost)
	r.HandleFunc("/order/encrypted", s.submitEncryptedOrder).Methods(http.MethodPost)
	r.HandleFunc("/order/{id}", s.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/order/{id}/activate", s.activateOrder).Methods(http.MethodPost)
	r.HandleFunc("/batch/{id}", s.getBatch).Methods(http.MethodGet)
	r.HandleFunc("/batch/{id}/proof", s.getProof).Methods(http.MethodGet)
	r.HandleFunc("/batch/{id}/execute", s.executeBatch).Methods(http.MethodPost)
	r.HandleFunc("/batches", s.listBatches).Methods(http.MethodGet)
	r.HandleFunc("/batches/ready", s.listReadyBatches).Methods(http.MethodGet)
	r.HandleFunc("/execute-ready", s.executeReady).Methods(http.MethodPost)
	r.HandleFunc("/deposits/unmatched", s.listUnmatched).Methods(http.MethodGet)
	r.HandleFunc("/deposits/match", s.matchDeposit).Methods(http.MethodPost)
	r.HandleFunc("/deposits/refund", s.refundDeposit).Methods(http.MethodPost)
	r.HandleFunc("/deposit-address", s.depositAddress).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Router exposes the mux for tests.
func (s *Service) Router() *mux.Router {
	return s.router
}

// Start begins serving. Implements runtime.Service.
func (s *Service) Start() {
	log.WithField("address", s.cfg.Addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("HTTP server failed")
		s.lock.Lock()
		s.lastErr = err
		s.lock.Unlock()
	}
}

// Stop shuts the server down, draining in-flight requests.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status implements runtime.Service.
func (s *Service) Status() error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.lastErr
}
