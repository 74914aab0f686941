package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/chigenori053/mathlang/internal/api"
	"github.com/chigenori053/mathlang/internal/buildconfig"
	"github.com/chigenori053/mathlang/internal/config"
	"github.com/chigenori053/mathlang/internal/knowledge"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	registry, err := loadRegistry()
	if err != nil {
		logger.Fatal("failed to load knowledge base", zap.Error(err))
	}
	logger.Info("knowledge base loaded", zap.Int("rules", registry.Len()))

	ctx := context.Background()

	// Persistence is optional; without DATABASE_URL sessions are memory-only.
	var pool *pgxpool.Pool
	if dbURL := config.DatabaseURL(); dbURL != "" {
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		logger.Info("connected to database")
	} else {
		logger.Info("no DATABASE_URL set, running without persistence")
	}

	app := api.NewApp(registry, pool, logger)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", buildconfig.Version()),
			zap.String("commit", buildconfig.Commit()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// loadRegistry uses the built-in rules unless RULES_PATH points at a
// directory of YAML rule files.
func loadRegistry() (*knowledge.Registry, error) {
	if path := config.RulesPath(); path != "" {
		return knowledge.LoadDir(path)
	}
	return knowledge.Default()
}
