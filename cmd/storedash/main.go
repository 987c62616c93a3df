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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/storedash/storedash/internal/app"
	"github.com/storedash/storedash/internal/auth"
	"github.com/storedash/storedash/internal/catalog/categories"
	"github.com/storedash/storedash/internal/catalog/products"
	"github.com/storedash/storedash/internal/dashboard"
	"github.com/storedash/storedash/internal/docstore"
	"github.com/storedash/storedash/internal/observability"
	"github.com/storedash/storedash/internal/orders"
	"github.com/storedash/storedash/internal/platform/cache"
	"github.com/storedash/storedash/internal/platform/db"
	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/revenue"
	"github.com/storedash/storedash/internal/shared"
	"github.com/storedash/storedash/internal/view"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var (
		store    docstore.Store
		authRepo auth.Repository
	)
	switch cfg.DocStoreDriver {
	case app.DocStoreMemory:
		logger.Warn("using in-memory document and user stores; data is lost on restart")
		store = docstore.NewMemoryStore()
		authRepo = auth.NewMemoryRepository()
	default:
		var pool *pgxpool.Pool
		pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("migrate postgres", slog.Any("error", err))
			os.Exit(1)
		}
		store = docstore.NewPGStore(pool)
		authRepo = auth.NewRepository(pool)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, revenue cache disabled", slog.Any("error", err))
	} else {
		defer closeRedis(redisClient, logger)
	}

	metrics := observability.NewMetrics()
	metrics.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	templates, err := view.NewEngine(cfg.AdminPrefix)
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := shared.NewSessionManager(cfg.SessionCookie, cfg.SessionSecure || cfg.IsProduction())
	guard := rbac.Middleware{
		Gate:     rbac.NewGate(cfg.AdminPrefix),
		Sessions: sessions,
		Logger:   logger,
		Recorder: metrics,
	}

	authService := auth.NewService(authRepo)
	if err := app.EnsureAdmin(ctx, cfg, authService, logger); err != nil {
		logger.Error("bootstrap admin", slog.Any("error", err))
		os.Exit(1)
	}

	categoryService := categories.NewService(store)
	productService := products.NewService(store, categoryService)
	revenueService := revenue.NewService(store, revenue.NewCache(redisClient, cfg.RevenueCacheTTL), logger)
	orderService := orders.NewService(store, revenueService, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Guard:            guard,
		AuthHandler:      auth.NewHandler(logger, authService, templates, sessions, guard),
		ProductHandler:   products.NewHandler(logger, productService, metrics),
		CategoryHandler:  categories.NewHandler(logger, categoryService),
		OrderHandler:     orders.NewHandler(logger, orderService),
		RevenueHandler:   revenue.NewHandler(logger, revenueService),
		DashboardHandler: dashboard.NewHandler(logger, templates, guard.Gate, productService, categoryService, orderService, revenueService, metrics),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("docstore", cfg.DocStoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
