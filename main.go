// CharacterForge API server: character image generation with credit
// accounting, Stripe checkout, and API key access for plugins.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"charforge/core"
	"charforge/credits"
	"charforge/db"
	"charforge/imagegen"
	"charforge/logging"
	"charforge/metrics"
	"charforge/payments"
	"charforge/server"
)

// Version is stamped by the build; "dev" for local runs.
var Version = "dev"

// shutdownGrace is how long in-flight requests get to finish.
const shutdownGrace = 15 * time.Second

// sweepInterval drives the periodic session and limiter cleanup.
const sweepInterval = 10 * time.Minute

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	isDevelopment := os.Getenv("DEV_MODE") == "true"

	logger, err := logging.NewLogger(isDevelopment, getLogPath())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Failed to sync logger: %v\n", syncErr)
		}
	}()

	os.Exit(run(logger, isDevelopment))
}

func getLogPath() string {
	if path := os.Getenv("LOG_FILE"); path != "" {
		return path
	}
	return "charforge.log"
}

// run wires and starts the server, returning the process exit code.
// Separated from main so deferred cleanup runs before os.Exit.
func run(logger *logging.Logger, isDevelopment bool) int {
	config, err := core.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return core.ExitCodeError
	}

	logger.Info("Configuration loaded",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.DatabasePath),
		zap.String("images_dir", config.ImagesDir),
		zap.Int64("generation_cost", config.GenerationCost),
		zap.Duration("ai_timeout", config.AITimeout),
		zap.Int("rate_limit_per_minute", config.RateLimitPerMinute),
		zap.Bool("payments_enabled", config.PaymentsEnabled()),
		zap.Bool("dev_mode", isDevelopment),
	)

	conn, err := openDatabase(config)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return core.ExitCodeError
	}
	defer conn.Close()

	if !runStartupValidation(config, conn) {
		return core.ExitCodeError
	}

	store, err := db.NewStore(conn)
	if err != nil {
		logger.Error("Failed to create store", zap.Error(err))
		return core.ExitCodeError
	}

	srv, err := wireServer(config, conn, store, logger)
	if err != nil {
		logger.Error("Failed to wire server", zap.Error(err))
		return core.ExitCodeError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runSweeps(ctx, store, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return core.ExitCodeError
		}
		return core.ExitCodeSuccess
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown did not complete cleanly", zap.Error(err))
		return core.ExitCodeError
	}

	logger.Info("Goodbye!")
	return core.ExitCodeSuccess
}

func openDatabase(config *core.Config) (*sql.DB, error) {
	conn, err := db.OpenWithDefaults(config.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// wireServer builds the full dependency graph: storage, ledger, image
// pipeline, payments, and the HTTP server on top.
func wireServer(config *core.Config, conn *sql.DB, store *db.Store, logger *logging.Logger) (*server.Server, error) {
	ledger, err := credits.NewLedger(conn)
	if err != nil {
		return nil, err
	}
	guard, err := credits.NewGuard(ledger, config.GenerationCost, logger)
	if err != nil {
		return nil, err
	}

	provider, err := imagegen.NewOpenAIProvider(config)
	if err != nil {
		return nil, err
	}
	downloader := imagegen.NewDownloader(imagegen.DownloaderConfig{
		HTTPClient: core.GetHTTPClient(config.AITimeout),
	})
	generator, err := imagegen.NewGenerator(provider, downloader, logger)
	if err != nil {
		return nil, err
	}

	images, err := server.NewImageStore(config.ImagesDir, config.PublicBaseURL, logger)
	if err != nil {
		return nil, err
	}

	deps := server.Deps{
		Config:    config,
		Logger:    logger,
		Store:     store,
		Ledger:    ledger,
		Guard:     guard,
		Generator: generator,
		Images:    images,
		Metrics:   metrics.NewStore(Version, time.Now()),
	}

	if config.PaymentsEnabled() {
		checkout, err := payments.NewCheckout(payments.CheckoutConfig{
			SecretKey:  config.StripeSecretKey,
			SuccessURL: config.CheckoutSuccessURL,
			CancelURL:  config.CheckoutCancelURL,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		webhook, err := payments.NewWebhook(config.StripeWebhookSecret, ledger, logger)
		if err != nil {
			return nil, err
		}
		deps.Checkout = checkout
		deps.Webhook = webhook
	}

	return server.NewServer(deps)
}

// runSweeps deletes expired sessions on a fixed interval until ctx ends.
func runSweeps(ctx context.Context, store *db.Store, logger *logging.Logger) {
	log := logger.Named("sweeper")
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.DeleteExpiredSessions(ctx)
			if err != nil {
				log.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				log.Info("expired sessions removed", zap.Int64("count", removed))
			}
		}
	}
}
