package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankledger/internal/cache"
	"bankledger/internal/config"
	"bankledger/internal/db"
	"bankledger/internal/events"
	"bankledger/internal/handlers"
	"bankledger/internal/identifiers"
	"bankledger/internal/middleware"
	"bankledger/internal/services"
	"bankledger/internal/store"
	"bankledger/internal/websocket"
)

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.AppEnv, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	owners := store.NewOwnerStore(database)
	accounts := store.NewAccountStore(database)
	movements := store.NewMovementStore(database)
	jobs := store.NewJobStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database, cfg.Ledger.TxMaxAttempts, logger)
	hub := websocket.NewHub()

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.Kafka.Topic, logger)
		logger.Info("publishing movement events to kafka", "brokers", brokers, "topic", cfg.Kafka.Topic)
	}
	defer publisher.Close()

	var idempotency middleware.IdempotencyStore
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisIdempotencyCache(cfg.Redis.URL, cfg.Redis.KeyPrefix, cfg.Redis.IdempotencyTTL, logger)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, idempotency keys will not be replayed until it recovers", "error", err)
		}
		cancel()
		idempotency = redisCache
	}

	engine := services.NewEngine(txRunner, accounts, movements, audit, hub, publisher, logger)
	ownerService := services.NewOwnerService(txRunner, owners, accounts, jobs, audit,
		identifiers.HolderCodes().WithMaxAttempts(cfg.Ledger.IdentifierMaxAttempts), logger)
	accountService := services.NewAccountService(txRunner, engine, owners, accounts, movements, audit, services.AccountServiceConfig{
		OpeningWindow:     cfg.Ledger.AccountOpeningWindow,
		WelcomeBonusMinor: cfg.Ledger.WelcomeBonusMinor,
		Numbers:           identifiers.AccountNumbers().WithMaxAttempts(cfg.Ledger.IdentifierMaxAttempts),
	}, logger)
	teller := services.NewTeller(engine, accounts, owners, jobs)

	handler := handlers.New(cfg, ownerService, accountService, teller,
		websocket.NewServer(hub, cfg.AllowedOrigins, logger), idempotency, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ledger API listening", "addr", server.Addr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
