package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/cache"
)

// CacheInterface defines what the embedded servers need from the cache
type CacheInterface interface {
	Stats() cache.Stats
	InvalidateObject(ctx context.Context, id string) error
	InvalidateAll(ctx context.Context) error
	Sync(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

// AdminServer provides admin HTTP endpoints
type AdminServer struct {
	cache  CacheInterface
	port   int
	token  string
	logger zerolog.Logger

	server *http.Server
	addr   string
}

// NewAdminServer creates a new admin server. An empty token disables
// bearer auth on the /admin routes.
func NewAdminServer(cache CacheInterface, port int, token string, logger zerolog.Logger) *AdminServer {
	return &AdminServer{
		cache:  cache,
		port:   port,
		token:  token,
		logger: logger,
	}
}

// Start binds the listener and serves in the background. Port 0 picks a
// free port; Addr reports the bound address.
func (a *AdminServer) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("admin server listen failed: %w", err)
	}
	a.addr = listener.Addr().String()

	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("admin server stopped")
		}
	}()

	a.logger.Info().Str("addr", a.addr).Msg("admin server listening")
	return nil
}

// Stop shuts the server down gracefully
func (a *AdminServer) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Addr returns the bound address once Start has succeeded
func (a *AdminServer) Addr() string {
	return a.addr
}

// Handler returns the routed handler wrapped with request middleware
func (a *AdminServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check stays open; management routes sit behind the token
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/admin/stats", a.requireAuth(a.handleStats))
	mux.HandleFunc("/admin/invalidate", a.requireAuth(a.handleInvalidate))
	mux.HandleFunc("/admin/invalidate-all", a.requireAuth(a.handleInvalidateAll))
	mux.HandleFunc("/admin/refresh", a.requireAuth(a.handleRefresh))

	return RequestLogger(a.logger)(mux)
}

func (a *AdminServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if a.token == "" {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := a.cache.HealthCheck(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "degraded",
			"error":     err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (a *AdminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.cache.Stats())
}

func (a *AdminServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	if err := a.cache.InvalidateObject(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"id":     id,
	})
}

func (a *AdminServer) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := a.cache.InvalidateAll(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *AdminServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := a.cache.Sync(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
