package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/auction-house/internal/api"
	"github.com/leafsii/auction-house/internal/config"
	"github.com/leafsii/auction-house/internal/jobs"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/log"
	"github.com/leafsii/auction-house/internal/metrics"
	"github.com/leafsii/auction-house/internal/repository"
	"github.com/leafsii/auction-house/internal/settlement"
	"github.com/leafsii/auction-house/internal/store"
	"github.com/leafsii/auction-house/internal/ws"
	"github.com/leafsii/auction-house/pkg/kv"

	_ "github.com/leafsii/auction-house/pkg/kv/memory"
	_ "github.com/leafsii/auction-house/pkg/kv/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting auction house settlement server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"ledger_backend", cfg.Ledger.Backend,
		"kv_backend", cfg.Cache.Backend,
		"verify_signatures", cfg.Security.VerifySignatures,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("auction-house")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ledger
	ledgerStore, err := ledger.Open(cfg.Ledger.Backend, cfg.Ledger.Dir)
	if err != nil {
		logger.Fatalw("Failed to open ledger", "error", err)
	}
	defer ledgerStore.Close()
	if err := loadGenesis(ctx, ledgerStore, cfg.Ledger.GenesisPath, logger); err != nil {
		logger.Fatalw("Failed to load genesis", "path", cfg.Ledger.GenesisPath, "error", err)
	}

	// Settlement history
	var history repository.History
	if cfg.Database.PostgresDSN == "" {
		logger.Warnw("AH_POSTGRES_DSN not set; settlement history is kept in memory")
		history = repository.NewMemory()
	} else {
		repo, err := repository.Open(ctx, cfg.Database.PostgresDSN, log.Named(logger, "repository"))
		if err != nil {
			logger.Fatalw("Failed to initialize database", "error", err)
		}
		defer repo.Close()
		history = repo
		logger.Infow("Database initialized")
	}

	// Receipt cache
	kvStore, err := kv.NewStoreFromConfig(cfg.KV(logger.Warnw))
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	cache := store.NewCache(kvStore, log.Named(logger, "cache"), metricsObj)
	defer cache.Close()

	if err := cache.Ping(ctx); err != nil {
		logger.Fatalw("Cache ping failed", "error", err)
	}
	logger.Infow("Cache connection established")

	svc := settlement.NewService(ledgerStore, history, cache, metricsObj, log.Named(logger, "settlement"), settlement.Options{
		ReceiptTTL:       cfg.Cache.ReceiptTTL,
		VerifySignatures: cfg.Security.VerifySignatures,
	})

	// Setup WebSocket hub
	wsHub := ws.NewHub(cache, log.Named(logger, "ws"), metricsObj, cfg.Security.CORSAllowedOrigins)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go wsHub.Run(hubCtx)

	candles := jobs.NewCandlePublisher(cache, log.Named(logger, "candles"), jobs.DefaultCandlePublisherConfig())
	go func() {
		if err := candles.Start(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("Candle publisher stopped", "error", err)
		}
	}()

	// Setup API handler and middleware
	handler := api.NewHandler(svc, wsHub, log.Named(logger, "api"))
	middleware := api.NewMiddleware(logger, metricsObj)
	router := handler.Routes(middleware, api.RouteOptions{
		CORSOrigins:    cfg.Security.CORSAllowedOrigins,
		RateLimitRPM:   cfg.Security.RateLimitRPM,
		RequestTimeout: cfg.Security.RequestTimeout,
		Metrics:        metricsHandler,
	})

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Setup HTTP server
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
		hubCancel()

		logger.Infow("Server stopped")
	}
}

// loadGenesis seeds an empty ledger from path. A ledger that already holds
// accounts is left alone.
func loadGenesis(ctx context.Context, s *ledger.Store, path string, logger *zap.SugaredLogger) error {
	if path == "" {
		return nil
	}
	empty := true
	if err := s.ForEach(func(ledger.Pubkey, *ledger.Account) bool {
		empty = false
		return false
	}); err != nil {
		return err
	}
	if !empty {
		logger.Infow("Ledger already initialized; skipping genesis", "path", path)
		return nil
	}

	g, err := ledger.ReadGenesis(path)
	if err != nil {
		return err
	}
	if err := s.Load(ctx, g); err != nil {
		return err
	}
	logger.Infow("Genesis loaded", "path", path, "accounts", len(g.Accounts))
	return nil
}
