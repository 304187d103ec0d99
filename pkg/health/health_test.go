package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestChecker_WorstStatusWins(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("ledger", up)
	c.Register("index", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "slow"}
	})
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Components, 2)
	assert.Equal(t, "slow", report.Components["index"].Message)
	assert.NotEmpty(t, report.Components["ledger"].Latency)

	c.Register("index", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDown}
	})
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("ledger", up)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUp, report.Status)

	c.Register("index", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPCheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)

	check := HTTPCheck(srv.Client(), srv.URL+"/health")
	assert.Equal(t, StatusUp, check(context.Background()).Status)

	status.Store(http.StatusBadGateway)
	got := check(context.Background())
	assert.Equal(t, StatusDown, got.Status)
	assert.Equal(t, "502 Bad Gateway", got.Message)

	srv.Close()
	assert.Equal(t, StatusDown, check(context.Background()).Status)
}
