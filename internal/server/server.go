// Package server assembles the HTTP API: routes, middleware chain, and the
// WebSocket endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nationforge/economy/internal/domain"
	"github.com/nationforge/economy/internal/server/handler"
	"github.com/nationforge/economy/internal/server/middleware"
	"github.com/nationforge/economy/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Per-client request rate limiting; disabled when RateLimit is zero or
	// no limiter is supplied.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Accounts   *handler.AccountHandler
	Auctions   *handler.AuctionHandler
	Assets     *handler.AssetHandler
	Settlement *handler.SettlementHandler
}

// Server is the HTTP + WebSocket API server for the economy service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (logging, CORS, auth, optional rate limit) applied.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Ledger endpoints.
	mux.HandleFunc("GET /api/accounts/{id}/balance", handlers.Accounts.GetBalance)
	mux.HandleFunc("GET /api/accounts/{id}/transactions", handlers.Accounts.ListTransactions)
	mux.HandleFunc("POST /api/accounts/{id}/earn", handlers.Accounts.Earn)
	mux.HandleFunc("POST /api/accounts/{id}/spend", handlers.Accounts.Spend)
	mux.HandleFunc("POST /api/accounts/{id}/adjust", handlers.Accounts.Adjust)
	mux.HandleFunc("POST /api/accounts/{id}/login", handlers.Accounts.RecordLogin)

	// Auction endpoints.
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("GET /api/auctions/{id}/bids", handlers.Auctions.ListBids)
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bids", handlers.Auctions.PlaceBid)
	mux.HandleFunc("POST /api/auctions/{id}/buyout", handlers.Auctions.ExecuteBuyout)
	mux.HandleFunc("DELETE /api/auctions/{id}", handlers.Auctions.CancelAuction)

	// Asset registry endpoints for the surrounding platform.
	if handlers.Assets != nil {
		mux.HandleFunc("POST /api/assets/grant", handlers.Assets.Grant)
		mux.HandleFunc("GET /api/assets/{item_ref}/owners/{owner_id}", handlers.Assets.GetOwnership)
	}

	// Settlement trigger for external cron systems.
	if handlers.Settlement != nil {
		mux.HandleFunc("POST /api/settlement/sweep", handlers.Settlement.TriggerSweep)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
