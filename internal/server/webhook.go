package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/logging"
)

// signatureHeader carries the hex HMAC-SHA256 of the request body
const signatureHeader = "X-Bolide-Signature"

// WebhookServer ingests push notifications from a feed mirror
type WebhookServer struct {
	cache  CacheInterface
	port   int
	secret string
	logger zerolog.Logger

	server *http.Server
	addr   string
}

// WebhookPayload is the body of a feed notification
type WebhookPayload struct {
	Event     string   `json:"event"`
	ObjectIDs []string `json:"object_ids"`
	Timestamp string   `json:"timestamp"`
}

// NewWebhookServer creates a new webhook server. An empty secret disables
// signature verification.
func NewWebhookServer(cache CacheInterface, port int, secret string, logger zerolog.Logger) *WebhookServer {
	return &WebhookServer{
		cache:  cache,
		port:   port,
		secret: secret,
		logger: logger,
	}
}

// Start binds the listener and serves in the background
func (s *WebhookServer) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("webhook server listen failed: %w", err)
	}
	s.addr = listener.Addr().String()

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("webhook server stopped")
		}
	}()

	s.logger.Info().Str("addr", s.addr).Msg("webhook server listening")
	return nil
}

// Stop shuts the server down gracefully
func (s *WebhookServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once Start has succeeded
func (s *WebhookServer) Addr() string {
	return s.addr
}

// Handler returns the routed handler wrapped with request middleware
func (s *WebhookServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)

	return RequestLogger(s.logger)(mux)
}

func (s *WebhookServer) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(rw, "Failed to read body", http.StatusBadRequest)
		return
	}

	if s.secret != "" {
		if !s.verifySignature(r, body) {
			http.Error(rw, "Invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	s.handleEvent(r.Context(), payload)

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{
		"status":   "ok",
		"event_id": uuid.NewString(),
	})
}

func (s *WebhookServer) verifySignature(r *http.Request, body []byte) bool {
	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *WebhookServer) handleEvent(ctx context.Context, payload WebhookPayload) {
	logger := logging.FromContext(ctx)

	switch payload.Event {
	case "feed.updated":
		if err := s.cache.Sync(ctx); err != nil {
			logger.Warn().Err(err).Msg("webhook resync failed")
		}

	case "object.updated":
		for _, id := range payload.ObjectIDs {
			if err := s.cache.InvalidateObject(ctx, id); err != nil {
				logger.Warn().Err(err).Str("object_id", id).Msg("webhook invalidation failed")
			}
		}

	default:
		logger.Debug().Str("event", payload.Event).Msg("ignoring unknown webhook event")
	}
}
