// Package transport sends index batches to a search service over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/resilience"
)

const DefaultAPIVersion = "2024-07-01"

// maxErrorBody caps how much of a rejected response is read for its message.
const maxErrorBody = 1 << 20

// Config addresses one index of a search service.
type Config struct {
	Endpoint   string
	Index      string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

// HTTPTransport implements indexing.Transport against the service's
// docs/index endpoint.
type HTTPTransport struct {
	url     string
	apiKey  string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

type Option func(*HTTPTransport)

func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) { t.client = c }
}

// WithBreaker guards submissions with cb. Only failures to reach the service
// and 5xx or 429 responses count against it.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(t *HTTPTransport) { t.breaker = cb }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = l }
}

func New(cfg Config, opts ...Option) (*HTTPTransport, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid endpoint %q", apperrors.ErrInvalidInput, cfg.Endpoint)
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("%w: index name is required", apperrors.ErrInvalidInput)
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	base = base.JoinPath("indexes", cfg.Index, "docs", "index")
	base.RawQuery = url.Values{"api-version": {version}}.Encode()

	t := &HTTPTransport{
		url:    base.String(),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "http-transport", "index", cfg.Index),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// URL returns the address batches are posted to.
func (t *HTTPTransport) URL() string { return t.url }

// errUnavailable marks responses that count against the breaker but are
// still handed back as a Response.
var errUnavailable = errors.New("service unavailable")

// Submit posts batch and decodes the response. A 200 or 207 yields ordered
// results; any other status yields a Response with the service's message.
// Only a failure to exchange the request is returned as an error.
func (t *HTTPTransport) Submit(ctx context.Context, batch *indexing.Batch) (*indexing.Response, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}
	if t.breaker == nil {
		return t.do(ctx, body)
	}

	var resp *indexing.Response
	err = t.breaker.Execute(func() error {
		var derr error
		resp, derr = t.do(ctx, body)
		if derr != nil {
			return derr
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return errUnavailable
		}
		return nil
	})
	if err != nil && !errors.Is(err, errUnavailable) {
		return nil, err
	}
	return resp, nil
}

func (t *HTTPTransport) do(ctx context.Context, body []byte) (*indexing.Response, error) {
	log := logger.Attach(ctx, t.logger)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, t.apiKey)
	}

	start := time.Now()
	httpResp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("posting batch: %w", err)
	}
	defer httpResp.Body.Close()
	log.Debug("index request sent", "status_code", httpResp.StatusCode, "bytes", len(body), "elapsed", time.Since(start))

	switch httpResp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusMultiStatus:
		var rb indexing.ResultsBody
		if err := json.NewDecoder(httpResp.Body).Decode(&rb); err != nil {
			return nil, fmt.Errorf("decoding results (status %d): %w", httpResp.StatusCode, err)
		}
		return &indexing.Response{StatusCode: httpResp.StatusCode, Results: rb.Value}, nil
	default:
		return &indexing.Response{StatusCode: httpResp.StatusCode, Message: errorMessage(httpResp)}, nil
	}
}

func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb indexing.ErrorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
