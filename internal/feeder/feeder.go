// Package feeder drives index batches from Kafka. Each consumed batch of
// action events is submitted as one or more index batches; actions that fail
// are republished to the retry topic until they run out of attempts and are
// dead-lettered. Republished actions carry a not-before time that spaces out
// their attempts.
package feeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/resilience"
)

// Dispositions recorded per action.
const (
	Indexed      = "indexed"
	Retried      = "retried"
	DeadLettered = "dead_lettered"
	Invalid      = "invalid"
)

// Header names set on dead-lettered events.
const (
	HeaderError      = "error"
	HeaderStatusCode = "status-code"
)

// HeaderNotBefore holds the RFC 3339 time before which a republished action
// is not submitted again.
const HeaderNotBefore = "not-before"

// ActionEvent is the message payload on the action, retry and dead-letter
// topics. Action holds one encoded index action.
type ActionEvent struct {
	Attempt int             `json:"attempt"`
	Action  json.RawMessage `json:"action"`
}

// Publisher writes events to one topic. *kafka.Producer implements it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Config bounds the feeder's batches and retries.
type Config struct {
	KeyField    string
	BatchSize   int
	MaxAttempts int
	// Backoff spaces out attempts of republished actions. A zero
	// InitialDelay republishes them for immediate resubmission.
	Backoff resilience.RetryConfig
	// SubmitTimeout bounds each index submission. Zero leaves it unbounded.
	SubmitTimeout time.Duration
}

// Feeder turns consumed action events into index submissions.
type Feeder struct {
	client        *indexing.Client
	keyField      string
	batchSize     int
	maxAttempts   int
	backoff       resilience.RetryConfig
	submitTimeout time.Duration
	retry         Publisher
	deadLetter    Publisher
	ledger        Ledger
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
	sleep         func(context.Context, time.Duration) error
}

type Option func(*Feeder)

// WithLedger records the outcome of every submitted action.
func WithLedger(l Ledger) Option {
	return func(f *Feeder) { f.ledger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Feeder) { f.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Feeder) { f.logger = l }
}

// New creates a Feeder that submits through client and republishes failed
// actions to retry or deadLetter.
func New(client *indexing.Client, retry, deadLetter Publisher, cfg Config, opts ...Option) *Feeder {
	f := &Feeder{
		client:        client,
		keyField:      cfg.KeyField,
		batchSize:     cfg.BatchSize,
		maxAttempts:   cfg.MaxAttempts,
		backoff:       cfg.Backoff,
		submitTimeout: cfg.SubmitTimeout,
		retry:         retry,
		deadLetter:    deadLetter,
		logger:        slog.Default().With("component", "feeder"),
		now:           time.Now,
		sleep:         resilience.Sleep,
	}
	if f.batchSize <= 0 || f.batchSize > indexing.DefaultMaxBatchSize {
		f.batchSize = indexing.DefaultMaxBatchSize
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type pending struct {
	action  indexing.Action
	attempt int
}

// Handle is a kafka.BatchHandler. Undecodable messages are skipped. When any
// message carries a not-before time in the future, the whole batch waits for
// the latest one. It returns an error only when the batch should be
// redelivered; actions of chunks submitted before the error are then
// submitted again.
func (f *Feeder) Handle(ctx context.Context, msgs []kafka.Message) error {
	items := make([]pending, 0, len(msgs))
	var notBefore time.Time
	for _, m := range msgs {
		p, err := f.decode(m)
		if err != nil {
			f.logger.Error("skipping undecodable action event",
				"topic", m.Topic,
				"partition", m.Partition,
				"offset", m.Offset,
				"key", string(m.Key),
				"error", err,
			)
			f.count(Invalid, 1)
			continue
		}
		items = append(items, p)
		if at, ok := f.parseNotBefore(m); ok && at.After(notBefore) {
			notBefore = at
		}
	}

	if wait := notBefore.Sub(f.now()); len(items) > 0 && wait > 0 {
		logger.Attach(ctx, f.logger).Debug("holding batch for retry backoff", "actions", len(items), "wait", wait)
		if err := f.sleep(ctx, wait); err != nil {
			return fmt.Errorf("waiting out retry backoff: %w", err)
		}
	}

	for start := 0; start < len(items); start += f.batchSize {
		chunk := items[start:min(start+f.batchSize, len(items))]
		if err := f.submit(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feeder) parseNotBefore(m kafka.Message) (time.Time, bool) {
	raw, ok := m.Headers[HeaderNotBefore]
	if !ok {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		f.logger.Warn("ignoring malformed not-before header", "offset", m.Offset, "value", raw)
		return time.Time{}, false
	}
	return at, true
}

func (f *Feeder) decode(m kafka.Message) (pending, error) {
	ev, err := kafka.DecodeJSON[ActionEvent](m.Value)
	if err != nil {
		return pending{}, err
	}
	action, err := indexing.DecodeAction(ev.Action, f.keyField)
	if err != nil {
		return pending{}, err
	}
	return pending{action: action, attempt: max(ev.Attempt, 1)}, nil
}

func (f *Feeder) submit(ctx context.Context, chunk []pending) error {
	actions := make([]indexing.Action, len(chunk))
	for i, p := range chunk {
		actions[i] = p.action
	}
	batch, err := indexing.NewBatch(actions...)
	if err != nil {
		return fmt.Errorf("building batch: %w", err)
	}
	log := logger.Attach(ctx, f.logger)

	sctx := ctx
	if f.submitTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, f.submitTimeout)
		defer cancel()
	}
	res, err := f.client.Index(sctx, batch)
	if err == nil {
		f.record(ctx, outcomesFor(chunk, res.Results, Indexed))
		f.count(Indexed, len(chunk))
		log.Info("batch indexed", "actions", len(chunk))
		return nil
	}

	var pf *indexing.PartialFailureError
	if errors.As(err, &pf) {
		if _, rerr := pf.RetryActions(); rerr != nil {
			log.Error("results do not line up with the batch", "error", rerr)
			return f.deadLetterAll(ctx, chunk, 0, rerr.Error())
		}
		return f.handlePartial(ctx, chunk, pf.Results)
	}

	var reqErr *indexing.RequestError
	if errors.As(err, &reqErr) && reqErr.Terminal() {
		log.Error("batch rejected", "actions", len(chunk), "status_code", reqErr.StatusCode, "error", reqErr)
		return f.deadLetterAll(ctx, chunk, reqErr.StatusCode, reqErr.Error())
	}
	return fmt.Errorf("submitting %d actions: %w", len(chunk), err)
}

func (f *Feeder) handlePartial(ctx context.Context, chunk []pending, results []indexing.IndexingResult) error {
	var retry, dead []kafka.Event
	outcomes := make([]Outcome, len(chunk))
	for i, p := range chunk {
		r := results[i]
		o := newOutcome(p, r, Indexed)
		switch {
		case r.Succeeded:
		case p.attempt >= f.maxAttempts:
			o.Disposition = DeadLettered
			ev, err := event(p.action, p.attempt, deadHeaders(r.StatusCode, r.Message()))
			if err != nil {
				return err
			}
			dead = append(dead, ev)
		default:
			o.Disposition = Retried
			ev, err := event(p.action, p.attempt+1, f.retryHeaders(p.attempt))
			if err != nil {
				return err
			}
			retry = append(retry, ev)
		}
		outcomes[i] = o
	}

	if err := f.publish(ctx, f.retry, retry); err != nil {
		return fmt.Errorf("publishing retries: %w", err)
	}
	if err := f.publish(ctx, f.deadLetter, dead); err != nil {
		return fmt.Errorf("publishing dead letters: %w", err)
	}
	f.record(ctx, outcomes)
	f.count(Indexed, len(chunk)-len(retry)-len(dead))
	f.count(Retried, len(retry))
	f.count(DeadLettered, len(dead))
	logger.Attach(ctx, f.logger).Warn("batch partially indexed",
		"actions", len(chunk),
		"retried", len(retry),
		"dead_lettered", len(dead),
	)
	return nil
}

func (f *Feeder) deadLetterAll(ctx context.Context, chunk []pending, statusCode int, reason string) error {
	events := make([]kafka.Event, len(chunk))
	outcomes := make([]Outcome, len(chunk))
	for i, p := range chunk {
		ev, err := event(p.action, p.attempt, deadHeaders(statusCode, reason))
		if err != nil {
			return err
		}
		events[i] = ev
		outcomes[i] = Outcome{
			Key:         p.action.Key(),
			Action:      p.action.Type().String(),
			Attempt:     p.attempt,
			StatusCode:  statusCode,
			Message:     reason,
			Disposition: DeadLettered,
		}
	}
	if err := f.publish(ctx, f.deadLetter, events); err != nil {
		return fmt.Errorf("publishing dead letters: %w", err)
	}
	f.record(ctx, outcomes)
	f.count(DeadLettered, len(chunk))
	return nil
}

func (f *Feeder) publish(ctx context.Context, p Publisher, events []kafka.Event) error {
	if len(events) == 0 {
		return nil
	}
	return p.PublishBatch(ctx, events)
}

// record stores outcomes; a ledger failure is logged and does not hold the
// batch back.
func (f *Feeder) record(ctx context.Context, outcomes []Outcome) {
	if f.ledger == nil {
		return
	}
	if err := f.ledger.Record(ctx, outcomes); err != nil {
		logger.Attach(ctx, f.logger).Error("failed to record outcomes", "outcomes", len(outcomes), "error", err)
	}
}

func (f *Feeder) count(disposition string, n int) {
	if f.metrics == nil || n == 0 {
		return
	}
	f.metrics.FeederMessagesTotal.WithLabelValues(disposition).Add(float64(n))
}

func event(a indexing.Action, attempt int, headers map[string]string) (kafka.Event, error) {
	raw, err := a.MarshalJSON()
	if err != nil {
		return kafka.Event{}, fmt.Errorf("encoding action %s: %w", a.Key(), err)
	}
	return kafka.Event{
		Key:     a.Key(),
		Value:   ActionEvent{Attempt: attempt, Action: raw},
		Headers: headers,
	}, nil
}

// retryHeaders schedules the attempt after the failed one.
func (f *Feeder) retryHeaders(failed int) map[string]string {
	if f.backoff.InitialDelay <= 0 {
		return nil
	}
	at := f.now().Add(resilience.Backoff(failed, f.backoff))
	return map[string]string{HeaderNotBefore: at.UTC().Format(time.RFC3339Nano)}
}

func deadHeaders(statusCode int, reason string) map[string]string {
	h := map[string]string{HeaderError: reason}
	if statusCode != 0 {
		h[HeaderStatusCode] = strconv.Itoa(statusCode)
	}
	return h
}

func outcomesFor(chunk []pending, results []indexing.IndexingResult, disposition string) []Outcome {
	out := make([]Outcome, len(chunk))
	for i, p := range chunk {
		out[i] = newOutcome(p, results[i], disposition)
	}
	return out
}

func newOutcome(p pending, r indexing.IndexingResult, disposition string) Outcome {
	return Outcome{
		Key:         p.action.Key(),
		Action:      p.action.Type().String(),
		Attempt:     p.attempt,
		Succeeded:   r.Succeeded,
		StatusCode:  r.StatusCode,
		Message:     r.Message(),
		Disposition: disposition,
	}
}
