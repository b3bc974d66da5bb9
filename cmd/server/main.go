package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/pelicanworks/trove/internal"
	"github.com/pelicanworks/trove/internal/cache"
	"github.com/pelicanworks/trove/internal/events"
	"github.com/pelicanworks/trove/internal/form"
	"github.com/pelicanworks/trove/internal/handler"
	"github.com/pelicanworks/trove/internal/handler/admin"
	"github.com/pelicanworks/trove/internal/handler/storefront"
	"github.com/pelicanworks/trove/internal/image"
	"github.com/pelicanworks/trove/internal/middleware"
	"github.com/pelicanworks/trove/internal/postgres"
	"github.com/pelicanworks/trove/internal/service"
)

func run() error {
	ctx := context.Background()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// database/sql connection for migrations only
	logger.Info().Msg("connecting to database")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info().Msg("running database migrations")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	metrics := middleware.NewMetrics("trove")

	// Invalidation events are optional; without a broker URL writes only
	// invalidate the local cache.
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NatsURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsPub.Close()
		publisher = natsPub
	} else {
		logger.Warn().Msg("NATS_URL not set, invalidation events disabled")
	}

	variantStore := postgres.NewVariantStore(pool, logger)
	productStore := postgres.NewProductStore(pool, logger)

	validator := form.NewValidator()
	normalizer := image.NewNormalizer(logger, metrics.Registry())
	renderCache := cache.NewMemory(metrics.Registry())

	variantService := service.NewVariantService(
		variantStore, validator, normalizer, renderCache, publisher, cfg.CacheTTL, logger)
	productService := service.NewProductService(
		productStore, normalizer, renderCache, publisher, cfg.CacheTTL, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(fmt.Sprintf("%d", cfg.MaxUploadBytes)))
	e.Use(middleware.RequestID)
	e.Use(middleware.RequestLogger(logger))
	e.Use(metrics.Middleware())

	e.GET("/health", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", metrics.Handler())

	admin.NewHandler(variantService, productService, logger).Register(e.Group("/admin/api"))
	storefront.NewHandler(productService, variantService, logger).Register(e.Group("/api"))

	// Serve until interrupted, then drain in-flight requests.
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
