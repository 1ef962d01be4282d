package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/fxledger/internal/adapter/http"
	"github.com/iho/fxledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/fxledger/internal/adapter/http/middleware"
	"github.com/iho/fxledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/fxledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/fxledger/internal/adapter/repository/redis"
	"github.com/iho/fxledger/internal/infrastructure/config"
	"github.com/iho/fxledger/internal/infrastructure/eventpublisher"
	"github.com/iho/fxledger/internal/infrastructure/logger"
	"github.com/iho/fxledger/internal/infrastructure/metrics"
	"github.com/iho/fxledger/internal/infrastructure/postgres"
	"github.com/iho/fxledger/internal/infrastructure/redis"
	"github.com/iho/fxledger/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logger
	l := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "fxledger"})
	logger.SetGlobal(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

// run serves HTTP until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, l zerolog.Logger) error {
	application, err := newApp(ctx, cfg, l, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer application.close()

	// Outbox relay
	publisherCtx, cancelPublisher := context.WithCancel(ctx)
	defer cancelPublisher()
	go func() {
		if err := application.publisher.Start(publisherCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("event publisher stopped")
		}
	}()

	if application.rateLimiter != nil {
		go sweepRateLimiter(publisherCtx, application.rateLimiter)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      application.router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	l.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// app is the wired server: router, outbox relay and whatever must be
// closed on exit.
type app struct {
	router      http.Handler
	publisher   *eventpublisher.EventPublisher
	rateLimiter *apimiddleware.RateLimiter
	closers     []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// storage groups the repositories the ledger runs on.
type storage struct {
	txManager  usecase.TransactionManager
	retrier    usecase.Retrier
	entries    usecase.EntryRepository
	balances   usecase.BalanceRepository
	orders     usecase.OrderRepository
	documents  usecase.DocumentRepository
	masterData usecase.MasterDataRepository
	outbox     usecase.OutboxRepository
	db         handler.Pinger
}

func newApp(ctx context.Context, cfg *config.Config, l zerolog.Logger, reg prometheus.Registerer) (*app, error) {
	m := metrics.New(reg)
	a := &app{}

	store, closeStore, err := openStorage(ctx, cfg, l, m)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	var (
		cache            usecase.Cache
		idempotencyStore usecase.IdempotencyStore
		redisClient      *goredis.Client
		publisher        eventpublisher.Publisher = eventpublisher.NewLogPublisher(l)
	)
	if cfg.RedisEnabled {
		client, err := redis.NewClient(ctx, cfg.RedisURL, redis.WithPoolSize(cfg.RedisPoolSize))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		l.Info().Msg("connected to redis")

		redisClient = client
		cache = redisRepo.NewCache(client)
		idempotencyStore = redisRepo.NewIdempotencyStore(client)
		publisher = eventpublisher.NewRedisPublisher(client, cfg.EventsChannel)
	}

	deps := usecase.LedgerDeps{
		TxManager:  store.txManager,
		Retrier:    store.retrier,
		Entries:    store.entries,
		Balances:   store.balances,
		Orders:     store.orders,
		Documents:  store.documents,
		MasterData: store.masterData,
		Outbox:     store.outbox,
		IDGen:      postgresRepo.NewULIDGenerator(),
		Cache:      cache,
		Metrics:    m,
		Logger:     l,
		PoolSeed:   usecase.PoolSeedPolicy{Enabled: cfg.PoolAutoSeed, Balance: cfg.SeedBalance()},
		Tolerance:  cfg.Tolerance(),
	}

	processor := usecase.NewTransactionProcessor(deps)
	deleter := usecase.NewSoftDeleteRecalculator(deps)

	healthHandler := handler.NewHealthHandler(store.db, nil)
	if redisClient != nil {
		healthHandler = handler.NewHealthHandler(store.db, redisClient)
	}

	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = apimiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	metricsHandler := promhttp.Handler()
	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	a.router = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		OrderHandler:       handler.NewOrderHandler(processor, deleter),
		DocumentHandler:    handler.NewDocumentHandler(processor, deleter),
		AdjustmentHandler:  handler.NewAdjustmentHandler(processor),
		BalanceHandler:     handler.NewBalanceHandler(usecase.NewBalanceQuery(store.entries, store.balances, cache, m, l)),
		LedgerHandler:      handler.NewLedgerHandler(usecase.NewConsistencyValidator(deps), usecase.NewDateReconciler(deps)),
		HealthHandler:      healthHandler,
		IdempotencyStore:   idempotencyStore,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		RateLimiter:        a.rateLimiter,
		Logger:             l,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: store.outbox,
		Publisher:  publisher,
		Logger:     l,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})

	return a, nil
}

// openStorage connects the configured storage driver.
func openStorage(ctx context.Context, cfg *config.Config, l zerolog.Logger, m *metrics.Metrics) (*storage, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		store := memory.NewStore()
		if cfg.SeedDemoData {
			store.SeedDemo()
		}
		l.Warn().Msg("using in-memory storage, data is lost on exit")

		return &storage{
			txManager:  store.TxManager(),
			entries:    store.Entries(),
			balances:   store.Balances(),
			orders:     store.Orders(),
			documents:  store.Documents(),
			masterData: store.MasterData(),
			outbox:     store.Outbox(),
		}, func() {}, nil
	}

	if cfg.RunMigrations {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	l.Info().Msg("connected to postgres")

	return &storage{
		txManager: postgresRepo.NewTxManager(pool),
		retrier: postgresRepo.NewRetrier(
			postgresRepo.WithRetryLogger(l),
			postgresRepo.WithRetryHook(m.IncTxRetry),
		),
		entries:    postgresRepo.NewEntryRepository(pool),
		balances:   postgresRepo.NewBalanceRepository(pool),
		orders:     postgresRepo.NewOrderRepository(),
		documents:  postgresRepo.NewDocumentRepository(),
		masterData: postgresRepo.NewMasterDataRepository(pool),
		outbox:     postgresRepo.NewOutboxRepository(pool),
		db:         pool,
	}, pool.Close, nil
}

// sweepRateLimiter forgets clients that have been idle for an hour.
func sweepRateLimiter(ctx context.Context, rl *apimiddleware.RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.CleanupLimiters(time.Hour)
		}
	}
}
