// server.go implements the Server organism that wires middleware,
// handlers, and the HTTP listener together.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"charforge/core"
	"charforge/credits"
	"charforge/db"
	"charforge/imagegen"
	"charforge/logging"
	"charforge/metrics"
	"charforge/payments"

	"charforge/charclient"
)

// WelcomeCredits is granted to the interactive pool on signup.
const WelcomeCredits = 10

// GenerationPipeline is what the generate endpoint needs from the image
// pipeline. Satisfied by *imagegen.Generator.
type GenerationPipeline interface {
	Generate(ctx context.Context, config charclient.CharacterConfig) (*imagegen.Result, error)
}

// Deps are the wired components the Server composes.
type Deps struct {
	Config    *core.Config
	Logger    *logging.Logger
	Store     *db.Store
	Ledger    *credits.Ledger
	Guard     *credits.Guard
	Generator GenerationPipeline
	Images    *ImageStore
	Metrics   *metrics.Store

	// Checkout and Webhook are nil when payments are not configured; the
	// payment endpoints then answer 503.
	Checkout *payments.Checkout
	Webhook  *payments.Webhook
}

// Server is the CharacterForge HTTP API server.
type Server struct {
	config        *core.Config
	log           *logging.Logger
	store         *db.Store
	ledger        *credits.Ledger
	guard         *credits.Guard
	generator     GenerationPipeline
	images        *ImageStore
	checkout      *payments.Checkout
	webhook       *payments.Webhook
	metrics       *metrics.Store
	limiter       *RateLimiter
	authenticator *Authenticator
	validate      *validator.Validate

	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer wires the API server. Every dependency except Checkout and
// Webhook is required.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("server: config cannot be nil")
	case deps.Logger == nil:
		return nil, fmt.Errorf("server: logger cannot be nil")
	case deps.Store == nil:
		return nil, fmt.Errorf("server: store cannot be nil")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("server: ledger cannot be nil")
	case deps.Guard == nil:
		return nil, fmt.Errorf("server: guard cannot be nil")
	case deps.Generator == nil:
		return nil, fmt.Errorf("server: generator cannot be nil")
	case deps.Images == nil:
		return nil, fmt.Errorf("server: image store cannot be nil")
	case deps.Metrics == nil:
		return nil, fmt.Errorf("server: metrics store cannot be nil")
	}

	authenticator, err := NewAuthenticator(deps.Store, deps.Logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:        deps.Config,
		log:           deps.Logger.Named("server"),
		store:         deps.Store,
		ledger:        deps.Ledger,
		guard:         deps.Guard,
		generator:     deps.Generator,
		images:        deps.Images,
		checkout:      deps.Checkout,
		webhook:       deps.Webhook,
		metrics:       deps.Metrics,
		limiter:       NewRateLimiter(deps.Config.RateLimitPerMinute, deps.Config.RateLimitBurst),
		authenticator: authenticator,
		validate:      validator.New(),
		mux:           http.NewServeMux(),
	}
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", deps.Config.Host, deps.Config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	s.log.Info("server wired",
		zap.String("addr", addr),
		zap.Bool("payments_enabled", deps.Checkout != nil))
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/logout", s.requireAuth(s.handleLogout))

	s.mux.HandleFunc("POST /generate-character", s.requireAuth(s.handleGenerate))
	s.mux.HandleFunc("GET /credits", s.requireAuth(s.handleCredits))
	s.mux.HandleFunc("GET /history", s.requireAuth(s.handleHistory))

	s.mux.HandleFunc("GET /api-keys", s.requireAuth(s.handleListAPIKeys))
	s.mux.HandleFunc("POST /api-keys", s.requireAuth(s.handleMintAPIKey))
	s.mux.HandleFunc("DELETE /api-keys/{id}", s.requireAuth(s.handleRevokeAPIKey))

	s.mux.HandleFunc("POST /create-checkout", s.requireAuth(s.handleCheckout))
	s.mux.HandleFunc("POST /stripe-webhook", s.handleStripeWebhook)

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /vocabulary", s.handleVocabulary)
	s.mux.HandleFunc("GET /images/{name}", s.handleImage)
}

// Handler returns the full middleware-wrapped handler, exported for tests.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withCORS(s.mux))
}

// Start runs the listener until Shutdown. http.ErrServerClosed is the
// normal shutdown signal, not an error.
func (s *Server) Start() error {
	s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listener failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.httpServer.Shutdown(ctx)
}
