// Package rpc exposes a thin HTTP/JSON admin API over the chain, mempool,
// and peer-to-peer state: block and transaction lookups, submission
// endpoints for miners and wallets, and read/write network introspection.
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pastellaproject/pastella/config"
	"github.com/pastellaproject/pastella/internal/chain"
	"github.com/pastellaproject/pastella/internal/consensus"
	klog "github.com/pastellaproject/pastella/internal/log"
	"github.com/pastellaproject/pastella/internal/mempool"
	"github.com/pastellaproject/pastella/internal/p2p"
	"github.com/pastellaproject/pastella/internal/utxo"
)

// Version is the daemon version string reported by the info endpoint.
const Version = "0.1.0"

// Server serves the admin HTTP API over the node's chain, mempool, and
// network state.
type Server struct {
	cfg    *config.Config
	chain  *chain.Chain
	utxos  *utxo.Store
	pool   *mempool.Pool
	p2p    *p2p.Node
	engine consensus.Engine

	validator *consensus.Validator
	startedAt time.Time
	http      *http.Server
}

// New creates a Server. Call Start to begin listening.
func New(cfg *config.Config, ch *chain.Chain, utxos *utxo.Store, pool *mempool.Pool, node *p2p.Node, engine consensus.Engine) *Server {
	return &Server{
		cfg:       cfg,
		chain:     ch,
		utxos:     utxos,
		pool:      pool,
		p2p:       node,
		engine:    engine,
		validator: consensus.NewValidator(engine),
		startedAt: time.Now(),
	}
}

// Start binds the configured address and begins serving in the background.
// An empty Host binds loopback only (127.0.0.1); a zero Port lets the OS
// assign one.
func (s *Server) Start() error {
	host := s.cfg.API.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(s.cfg.API.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}

	s.http = &http.Server{Handler: s.routes()}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			klog.WithComponent("rpc").Error().Err(err).Msg("listener stopped")
		}
	}()

	klog.WithComponent("rpc").Info().Str("addr", addr).Msg("admin api started")
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler returns the server's routed http.Handler, for callers that want
// to run it behind their own listener (e.g. tests).
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/info", s.handleInfo)
	mux.HandleFunc("GET /api/daemon/status", s.handleDaemonStatus)

	mux.HandleFunc("GET /api/blockchain/status", s.handleBlockchainStatus)
	mux.HandleFunc("GET /api/blockchain/blocks", s.handleListBlocks)
	mux.HandleFunc("GET /api/blockchain/blocks/{i}", s.handleGetBlock)
	mux.HandleFunc("GET /api/blockchain/latest", s.handleLatestBlock)
	mux.HandleFunc("GET /api/blockchain/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/blockchain/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("POST /api/blockchain/transactions", s.handleSubmitTransaction)

	mux.HandleFunc("POST /api/blocks/submit", s.handleSubmitBlock)
	mux.HandleFunc("GET /api/blocks/pending", s.handlePendingBlock)
	mux.HandleFunc("POST /api/blocks/validate", s.handleValidateBlock)

	mux.HandleFunc("GET /api/network/status", s.handleNetworkStatus)
	mux.HandleFunc("GET /api/network/peers", s.handleNetworkPeers)
	mux.HandleFunc("GET /api/network/reputation", s.handleNetworkReputation)
	mux.HandleFunc("GET /api/network/partition-stats", s.handlePartitionStats)
	mux.HandleFunc("GET /api/network/message-validation", s.handleMessageValidation)
	mux.HandleFunc("POST /api/network/connect", s.requireAPIKey(s.handleNetworkConnect))
	mux.HandleFunc("POST /api/network/partition-reset", s.requireAPIKey(s.handlePartitionReset))
	mux.HandleFunc("POST /api/network/message-validation/reset", s.requireAPIKey(s.handleMessageValidationReset))

	return s.withLogging(mux)
}

// requireAPIKey wraps a handler so it 401s unless the request carries the
// configured API key in its X-Api-Key header. A node with no key configured
// (only valid when API.Host is loopback, enforced by config.Validate) is
// left open to local callers.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.API.APIKey != "" && r.Header.Get("X-Api-Key") != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		next(w, r)
	}
}

// withLogging logs each request at debug level, keyed by the component
// logger so it interleaves sensibly with chain/p2p activity.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		klog.WithComponent("rpc").Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}
