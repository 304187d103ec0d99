// Command stubindex serves an in-memory search index over HTTP for local
// development and end-to-end tests. It accepts the same batch requests as the
// real service and answers with per-action results.
//
// Usage:
//
//	go run ./cmd/stubindex [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/internal/stubindex"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	policy, err := stubindex.ParseDeletePolicy(cfg.Stub.DeleteMissing)
	if err != nil {
		slog.Error("invalid delete policy", "error", err)
		os.Exit(1)
	}
	store := stubindex.NewStore(cfg.Index.Name, cfg.Index.KeyField, stubindex.WithDeletePolicy(policy))

	m := metrics.New()
	srv := stubindex.NewServer(stubindex.ServerConfig{
		APIKey:         cfg.Stub.APIKey,
		MaxBatchSize:   cfg.Index.MaxBatchSize,
		RequestTimeout: cfg.Stub.RequestTimeout,
		Metrics:        m,
	}, store)

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, nil)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Stub.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Stub.RequestTimeout,
		WriteTimeout: cfg.Stub.RequestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("stub index listening",
		"addr", server.Addr,
		"index", cfg.Index.Name,
		"key_field", cfg.Index.KeyField,
		"delete_missing", policy.String(),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("stub index stopped", "documents", store.Count())
}
