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

	"golang.org/x/sync/errgroup"

	"github.com/recore-erp/recore-erp/internal/app"
	"github.com/recore-erp/recore-erp/internal/observability"
	"github.com/recore-erp/recore-erp/internal/platform/cache"
	"github.com/recore-erp/recore-erp/internal/platform/db"
	"github.com/recore-erp/recore-erp/internal/returns"
	"github.com/recore-erp/recore-erp/internal/sales/orders"
	"github.com/recore-erp/recore-erp/internal/shared"
	"github.com/recore-erp/recore-erp/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var debtCache *orders.DebtCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, debt listings uncached", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		debtCache = orders.NewDebtCache(redisClient, cfg.DebtCacheTTL)
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, debtCache, auditLogger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	returnsRepo := returns.NewRepository(pool)
	returnsService := returns.NewService(returnsRepo, debtCache, auditLogger, idempotency)
	returnsHandler := returns.NewHandler(logger, returnsService)

	reportHandler := report.NewHandler(report.NewClient(cfg.GotenbergURL), returnsService, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        observability.NewMetrics(),
		OrdersHandler:  ordersHandler,
		ReturnsHandler: returnsHandler,
		ReportHandler:  reportHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
