// Package server assembles the marketplace HTTP API: route registration,
// middleware chain, and graceful lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DevKavathiya11/marketd/internal/domain"
	"github.com/DevKavathiya11/marketd/internal/server/handler"
	"github.com/DevKavathiya11/marketd/internal/server/middleware"
	"github.com/DevKavathiya11/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	APIToken     string // if empty, authentication is disabled
	RateLimit    int    // requests per RateWindow per client; 0 disables
	RateWindow   time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Listings *handler.ListingHandler
	Auctions *handler.AuctionHandler
	Trades   *handler.TradeHandler
}

// Server is the HTTP + WebSocket API server for the marketplace daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limit) and attaches the
// WebSocket hub. limiter may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	// Listing endpoints.
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("POST /api/listings/batch-purchase", handlers.Listings.BatchPurchase)
	mux.HandleFunc("GET /api/listings/{item}", handlers.Listings.GetListing)
	mux.HandleFunc("DELETE /api/listings/{item}", handlers.Listings.CancelListing)
	mux.HandleFunc("POST /api/listings/{item}/purchase", handlers.Listings.Purchase)

	// Auction endpoints.
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("GET /api/auctions/{item}", handlers.Auctions.GetAuction)
	mux.HandleFunc("DELETE /api/auctions/{item}", handlers.Auctions.CancelAuction)
	mux.HandleFunc("POST /api/auctions/{item}/bids", handlers.Auctions.Bid)
	mux.HandleFunc("POST /api/auctions/{item}/settle", handlers.Auctions.Settle)

	// Trade history.
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply rate limiting closest to the handlers so rejected requests are
	// still logged.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply auth middleware (skips if APIToken is empty).
	h = middleware.Auth(cfg.APIToken)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
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
