package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/cors"

	"github.com/leadflow/backend/internal/auth"
	"github.com/leadflow/backend/internal/config"
	"github.com/leadflow/backend/internal/db"
	"github.com/leadflow/backend/internal/execution"
	"github.com/leadflow/backend/internal/handlers"
	"github.com/leadflow/backend/internal/ledger"
	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/middleware"
	"github.com/leadflow/backend/internal/notify"
	"github.com/leadflow/backend/internal/repository"
	"github.com/leadflow/backend/internal/router"
	"github.com/leadflow/backend/internal/services"
)

// lateInserter forwards to the river client once it exists. The dispatcher
// is needed to build the workers, which the client needs in turn.
type lateInserter struct {
	mu     sync.Mutex
	client *river.Client[pgx.Tx]
}

func (l *lateInserter) set(c *river.Client[pgx.Tx]) {
	l.mu.Lock()
	l.client = c
	l.mu.Unlock()
}

func (l *lateInserter) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	l.mu.Lock()
	c := l.client
	l.mu.Unlock()
	if c == nil {
		return nil, errors.New("river insert not wired")
	}
	return c.Insert(ctx, args, opts)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	requestRepo := repository.NewRequestRepo(pool)
	offerRepo := repository.NewOfferRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	proRepo := repository.NewProRepo(pool)
	categories := repository.NewCachedCategoryRepo(repository.NewCategoryRepo(pool), cfg.CategoryCacheTTL)

	// Ledger
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), logger)

	// Notifications: enqueue through river, deliver over Redis pub/sub
	inserter := &lateInserter{}
	dispatcher := notify.NewDispatcher(inserter, logger)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable, notifications will retry until it is back", "addr", cfg.RedisAddr, "error", err)
	}

	deps := services.Deps{
		Pool:        pool,
		Requests:    requestRepo,
		Offers:      offerRepo,
		Jobs:        jobRepo,
		Acceptances: repository.NewAcceptanceRepo(pool),
		Ratings:     repository.NewRatingRepo(pool),
		ProRatings:  proRepo,
		Categories:  categories,
		Ledger:      ledgerSvc,
		Notifier:    dispatcher,
		Logger:      logger,
	}
	selector := services.NewSelector(proRepo, cfg.MaxDistanceKm, !cfg.AllowConcurrentJobs)
	broadcaster := services.NewBroadcaster(deps, selector, cfg.OfferTTL, cfg.RequestTTL)
	arbiter := services.NewArbiter(deps, cfg.AllowConcurrentJobs)
	sweeper := services.NewSweeper(deps, cfg.SweepBatchSize, cfg.SweepWorkers)
	lifecycle := services.NewLifecycle(deps)

	// Background work: periodic sweep and notification delivery
	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewSweepWorker(sweeper, time.Minute))
	river.AddWorker(workers, notify.NewDeliverWorker(notify.NewRedisPublisher(rdb), cfg.NotifyChannelPrefix))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverMaxWorkers},
			notify.QueueNotify: {MaxWorkers: cfg.RiverMaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{execution.PeriodicSweep(cfg.SweepInterval)},
		Logger:       logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	inserter.set(riverClient)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	validator, err := services.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	api := router.New(router.Handlers{
		Leads: &handlers.LeadHandler{
			Leads:     broadcaster,
			Requests:  requestRepo,
			Offers:    offerRepo,
			Validator: validator,
			Logger:    logger,
		},
		Offers:  &handlers.OfferHandler{Offers: arbiter, Validator: validator, Logger: logger},
		Jobs:    &handlers.JobHandler{Jobs: lifecycle, Reader: jobRepo, Validator: validator, Logger: logger},
		Pros:    &handlers.ProHandler{Pros: proRepo, Logger: logger},
		Wallets: &handlers.WalletHandler{Wallets: ledgerSvc, Validator: validator, Logger: logger},
		Admin:   &handlers.AdminHandler{Sweeper: sweeper, Logger: logger},
		Metrics: metrics.Handler(reg),
	}, auth.NewService(cfg.JWTSecret, 24*time.Hour), middleware.NewAcceptLimiter(cfg.AcceptRatePerMin, logger))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(api)

	// Start River client (sweeps and notification delivery)
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River stop failed", "error", err)
	}
}
