package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Stupremee/fhir/internal/config"
	"github.com/Stupremee/fhir/internal/domain/entity"
	"github.com/Stupremee/fhir/internal/platform/db"
	"github.com/Stupremee/fhir/internal/platform/fhir"
	"github.com/Stupremee/fhir/internal/platform/metrics"
	"github.com/Stupremee/fhir/internal/platform/middleware"
	"github.com/Stupremee/fhir/internal/platform/schema"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg != nil && cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if cfg != nil {
		logger = logger.Level(cfg.Level())
	}
	return logger
}

// newEcho builds the HTTP surface around an entity handler.
func newEcho(cfg *config.Config, logger zerolog.Logger, h *entity.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = fhir.HTTPErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if cfg.MetricsEnabled {
		e.Use(middleware.Metrics())
	}
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	h.RegisterRoutes(e.Group("/fhir"))
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("invalid config")
	}
	logger := newLogger(cfg)

	if err := schema.Compile(); err != nil {
		logger.Fatal().Err(err).Msg("failed to compile FHIR schema")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if cfg.MetricsEnabled {
		if err := metrics.RegisterPool(metrics.Registry, func() metrics.PoolStat { return pool.Stat() }); err != nil {
			logger.Fatal().Err(err).Msg("failed to register pool metrics")
		}
	}

	svc, err := newEntityService(pool, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build entity service")
	}

	e := newEcho(cfg, logger, entity.NewHandler(svc, logger))
	e.GET("/health/db", db.PoolHealthHandler(pool))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
