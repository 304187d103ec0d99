// Command feeder consumes index actions from Kafka and submits them in
// batches. Actions that fail are republished to the retry topic, which the
// feeder also consumes, until they succeed or are dead-lettered. Outcomes are
// recorded in PostgreSQL when a database is configured.
//
// Usage:
//
//	go run ./cmd/feeder [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/internal/feeder"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/postgres"
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
	slog.Info("starting feeder",
		"index", cfg.Index.Name,
		"topics", []string{cfg.Kafka.Topics.Actions, cfg.Kafka.Topics.Retry},
		"batch_size", cfg.Feeder.BatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	t, err := app.Transport(cfg, m)
	if err != nil {
		slog.Error("failed to create transport", "error", err)
		os.Exit(1)
	}
	client := app.Client(cfg, t, m)
	checker.Register("index", health.HTTPCheck(&http.Client{Timeout: 3 * time.Second}, cfg.Index.Endpoint))

	opts := []feeder.Option{feeder.WithMetrics(m)}
	var outcomes feeder.OutcomeReader
	if cfg.Postgres.Enabled() {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ledger := feeder.NewPostgresLedger(db, cfg.Index.Name)
		if err := ledger.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare outcome ledger", "error", err)
			os.Exit(1)
		}
		opts = append(opts, feeder.WithLedger(ledger))
		outcomes = ledger
		checker.Register("postgres", db.HealthCheck())
		slog.Info("outcome ledger enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	retry := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Retry)
	defer retry.Close()
	deadLetter := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DeadLetter)
	defer deadLetter.Close()

	f := feeder.New(client, retry, deadLetter, feeder.Config{
		KeyField:      cfg.Index.KeyField,
		BatchSize:     cfg.Feeder.BatchSize,
		MaxAttempts:   cfg.Feeder.MaxAttempts,
		Backoff:       app.Retry(cfg),
		SubmitTimeout: cfg.Feeder.SubmitTimeout,
	}, opts...)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Actions, cfg.Kafka.Topics.Retry)
	defer consumer.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if outcomes != nil {
		mux.Handle("GET /outcomes/{key}", feeder.OutcomeHandler(outcomes))
	}
	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Feeder.HealthPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return consumer.StartBatch(gctx, cfg.Feeder.BatchSize, cfg.Feeder.FlushInterval, f.Handle)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("feeder stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("feeder stopped")
}
