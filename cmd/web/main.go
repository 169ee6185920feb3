package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"assesscore/internal/app"
	"assesscore/internal/db"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "assesscore").Logger()

	cfg, err := app.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)
	if cfg.AppEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.OpenWithConfig(ctx, cfg.DBDriver, cfg.DBDSN, cfg.PoolConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("driver", string(cfg.DBDriver)).Msg("database error")
	}
	defer dbConn.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, dbConn, cfg.DBDriver); err != nil {
			logger.Fatal().Err(err).Msg("migrate error")
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, dbConn, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddr).Str("driver", string(cfg.DBDriver)).Msg("assesscore web listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	<-drained
	logger.Info().Msg("server stopped")
}
