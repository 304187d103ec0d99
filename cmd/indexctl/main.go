// Command indexctl submits index actions read from JSON-lines files.
//
// Every file is split into batches of index.maxBatchSize actions. Files are
// submitted concurrently; batches of one file go out in order. Failed actions
// of a partially failed batch are resubmitted with backoff until they succeed
// or retry.maxAttempts is reached.
//
// Usage:
//
//	go run ./cmd/indexctl -file hotels.jsonl [-file rooms.jsonl] [-config configs/development.yaml] [-stub]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/internal/batchfile"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/internal/stubindex"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/resilience"
)

type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

type totals struct {
	succeeded atomic.Int64
	failed    atomic.Int64
}

func main() {
	var files fileList
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Var(&files, "file", "JSON-lines file of index actions (repeatable)")
	parallel := flag.Int("parallel", 4, "files submitted concurrently")
	stub := flag.Bool("stub", false, "submit to an in-process stub index instead of the endpoint")
	flag.Parse()

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "indexctl: at least one -file is required")
		flag.Usage()
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	m := metrics.New()
	var transport indexing.Transport
	if *stub {
		store := stubindex.NewStore(cfg.Index.Name, cfg.Index.KeyField)
		transport = store.Transport()
		slog.Info("submitting to in-process stub index", "index", cfg.Index.Name)
	} else {
		t, err := app.Transport(cfg, m)
		if err != nil {
			slog.Error("failed to create transport", "error", err)
			os.Exit(1)
		}
		transport = t
		slog.Info("submitting to index", "url", t.URL())
	}
	client := app.Client(cfg, transport, m)
	retry := app.Retry(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sum totals
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*parallel, 1))
	for _, path := range files {
		g.Go(func() error {
			return submitFile(ctx, cfg, client, retry, m, path, &sum)
		})
	}
	err = g.Wait()

	fmt.Printf("succeeded=%d failed=%d\n", sum.succeeded.Load(), sum.failed.Load())
	if err != nil {
		slog.Error("indexing aborted", "error", err)
		os.Exit(1)
	}
	if sum.failed.Load() > 0 {
		os.Exit(1)
	}
}

// submitFile returns an error only when the file cannot be read or a batch
// cannot be submitted at all; failed actions are logged and counted.
func submitFile(ctx context.Context, cfg *config.Config, client *indexing.Client, retry resilience.RetryConfig, m *metrics.Metrics, path string, sum *totals) error {
	log := slog.Default().With("file", path)
	actions, err := batchfile.ReadFile(path, cfg.Index.KeyField)
	if err != nil {
		return err
	}
	batches, err := batchfile.Split(actions, cfg.Index.MaxBatchSize)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Info("file loaded", "actions", len(actions), "batches", len(batches))

	for i, batch := range batches {
		bctx := logger.WithBatchID(ctx, fmt.Sprintf("%s#%d", path, i))
		out, err := resilience.RetryPartial(bctx, retry, m, batch, client.Index)
		failed := out.Failed()
		sum.succeeded.Add(int64(batch.Len() - len(failed)))
		sum.failed.Add(int64(len(failed)))
		for _, r := range failed {
			if r.StatusCode == 0 {
				// never answered
				continue
			}
			log.Warn("action failed", "batch", i, "key", r.Key, "status_code", r.StatusCode, "message", r.Message())
		}
		if err != nil {
			log.Error("batch incomplete", "batch", i, "attempts", out.Attempts, "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}
