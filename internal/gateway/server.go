package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/mattjoyce/flowgate/internal/config"
	"github.com/mattjoyce/flowgate/internal/conversation"
	"github.com/mattjoyce/flowgate/internal/events"
	"github.com/mattjoyce/flowgate/internal/flow"
	"github.com/mattjoyce/flowgate/internal/flowcrypto"
	"github.com/mattjoyce/flowgate/internal/metrics"
	"github.com/mattjoyce/flowgate/internal/webhook"
	"github.com/mattjoyce/flowgate/internal/worker"
)

// Banner is served on GET at the base path.
const Banner = "Nothing to see here.\n"

// Cipher decrypts flow requests and encrypts their responses.
type Cipher interface {
	DecryptBody(body []byte) (*flowcrypto.Exchange, error)
	EncryptResponse(x *flowcrypto.Exchange, payload any) (string, error)
}

// FlowHandler produces the response for a decrypted flow request.
type FlowHandler interface {
	Handle(ctx context.Context, req flow.Request) (flow.Response, error)
}

// MessageHandler processes one inbound message after it has been acknowledged.
type MessageHandler interface {
	Handle(ctx context.Context, msg *webhook.Message) (conversation.Outcome, error)
}

// TaskSubmitter queues background work.
type TaskSubmitter interface {
	Submit(t worker.Task) error
	Depth() int
}

// Config holds HTTP server settings.
type Config struct {
	Listen          string
	BasePath        string
	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	SignatureHeader string
	RejectionStatus int
	VerifyToken     string
	RateLimit       rate.Limit
	RateBurst       int
	// MetricsPath is empty when the metrics endpoint is disabled.
	MetricsPath string
}

// ConfigFrom extracts the server settings from the service configuration.
func ConfigFrom(cfg *config.Config) Config {
	out := Config{
		Listen:          cfg.Server.Listen,
		BasePath:        cfg.Server.BasePath,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		SignatureHeader: cfg.Signature.Header,
		RejectionStatus: cfg.Signature.RejectionStatus,
		VerifyToken:     cfg.Webhook.VerifyToken,
		RateLimit:       rate.Limit(cfg.Server.RateLimit.RPS),
		RateBurst:       cfg.Server.RateLimit.Burst,
	}
	if cfg.Metrics.IsEnabled() {
		out.MetricsPath = cfg.Metrics.Path
	}
	return out
}

// Deps are the collaborators the server dispatches to.
type Deps struct {
	Verifier *webhook.Verifier
	Cipher   Cipher
	Flows    FlowHandler
	Messages MessageHandler
	Tasks    TaskSubmitter
	Events   *events.Hub
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Server is the flow endpoint HTTP server.
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	limiter   *IPRateLimiter
	handler   http.Handler
	server    *http.Server
	startedAt time.Time
}

// New creates a server. All dependencies except Logger are required.
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Verifier == nil:
		return nil, errors.New("gateway: verifier is required")
	case deps.Cipher == nil:
		return nil, errors.New("gateway: cipher is required")
	case deps.Flows == nil:
		return nil, errors.New("gateway: flow handler is required")
	case deps.Messages == nil:
		return nil, errors.New("gateway: message handler is required")
	case deps.Tasks == nil:
		return nil, errors.New("gateway: task submitter is required")
	case deps.Events == nil:
		return nil, errors.New("gateway: events hub is required")
	case deps.Metrics == nil:
		return nil, errors.New("gateway: metrics are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultMaxBodySize
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Hub-Signature-256"
	}
	if cfg.RejectionStatus == 0 {
		cfg.RejectionStatus = 432
	}

	s := &Server{
		config:    cfg,
		deps:      deps,
		logger:    deps.Logger,
		startedAt: time.Now(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewIPRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("flow gateway starting",
		"listen", s.config.Listen,
		"base_path", s.config.BasePath,
		"signing", s.deps.Verifier.Enabled(),
		"metrics_path", s.config.MetricsPath,
	)

	if s.limiter != nil {
		go s.limiter.RunCleanup(ctx, time.Minute, 10*time.Minute)
	}

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("flow gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("gateway server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, s.deps.Metrics.Handler())
	}

	routes := func(r chi.Router) {
		r.Get("/", s.handleBanner)
		r.Get("/webhook", s.handleVerify)
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.rateLimitMiddleware)
			}
			r.Post("/", s.handleFlow)
			r.Post("/webhook", s.handleWebhook)
		})
	}
	if s.config.BasePath == "" || s.config.BasePath == "/" {
		routes(r)
	} else {
		r.Route(s.config.BasePath, routes)
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Log request (no body, signature or key material)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(Banner))
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
