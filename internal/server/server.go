// Package server exposes receipt parsing, categorization and rule management over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/zombor/budgetwise/internal/categorize"
	"github.com/zombor/budgetwise/internal/receipt"
	"github.com/zombor/budgetwise/internal/rules"
)

// Services are the domain services the HTTP API is built on
type Services struct {
	Receipts   *receipt.Service
	Classifier *categorize.Classifier
	Batch      *categorize.BatchCategorizer
	Rules      *rules.Service
}

// Config holds HTTP-level settings
type Config struct {
	// JWTSecret enables bearer authentication. Empty means every request
	// acts as DefaultUser.
	JWTSecret string
	// RateLimit is requests per second allowed per user; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

// Server handles HTTP requests for receipts, transactions and rules
type Server struct {
	services Services
	auth     *Authenticator
	limiter  *userLimiter
	mux      *http.ServeMux
	handler  http.Handler
	http     *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(services Services, cfg Config) *Server {
	return NewServerWithMux(services, cfg, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(services Services, cfg Config, mux *http.ServeMux) *Server {
	s := &Server{
		services: services,
		auth:     NewAuthenticator(cfg.JWTSecret),
		limiter:  newUserLimiter(cfg.RateLimit, cfg.RateBurst),
		mux:      mux,
	}
	s.http = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	s.registerRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	})
	s.handler = instrument(c.Handler(s.mux))
	return s
}

// registerRoutes registers all API routes on the server's mux.
// More specific patterns win regardless of registration order.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Receipts
	s.mux.HandleFunc("POST /api/receipts/parse", s.requireAuth(s.handleParseReceipt))
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetReceiptFile))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleUploadReceipt))

	// Transactions
	s.mux.HandleFunc("POST /api/transactions/categorize", s.requireAuth(s.handleCategorize))
	s.mux.HandleFunc("POST /api/transactions/corrections", s.requireAuth(s.handleCorrection))

	// Rules
	s.mux.HandleFunc("GET /api/rules/{id}", s.requireAuth(s.handleGetRule))
	s.mux.HandleFunc("PUT /api/rules/{id}", s.requireAuth(s.handleUpdateRule))
	s.mux.HandleFunc("DELETE /api/rules/{id}", s.requireAuth(s.handleDeleteRule))
	s.mux.HandleFunc("GET /api/rules", s.requireAuth(s.handleListRules))
	s.mux.HandleFunc("POST /api/rules", s.requireAuth(s.handleCreateRule))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	slog.Info("Starting server", "address", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a server started with Start
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
