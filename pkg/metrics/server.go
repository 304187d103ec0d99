package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StartServer serves /metrics for the default registry on port, plus any
// extra routes, until the returned shutdown function is called.
func StartServer(port int, extra map[string]http.Handler) (shutdown func(context.Context) error) {
	return StartServerFor(port, prometheus.DefaultGatherer, extra)
}

// StartServerFor is StartServer for the collectors of g.
func StartServerFor(port int, g prometheus.Gatherer, extra map[string]http.Handler) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewMux(g, extra),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

// NewMux routes /metrics to g, an index page to /, and the extra patterns to
// their handlers.
func NewMux(g prometheus.Gatherer, extra map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	if g == prometheus.DefaultGatherer {
		mux.Handle("/metrics", Handler())
	} else {
		mux.Handle("/metrics", HandlerFor(g))
	}
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>searchbatch</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})
	return mux
}
