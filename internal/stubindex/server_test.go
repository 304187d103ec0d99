package stubindex

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
)

func newTestServer(t *testing.T, cfg ServerConfig) (*Store, *httptest.Server) {
	t.Helper()
	st := NewStore("hotels", "hotelId")
	srv := httptest.NewServer(NewServer(cfg, st).Handler())
	t.Cleanup(srv.Close)
	return st, srv
}

func do(t *testing.T, method, url, body string, header map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

const indexPath = "/indexes/hotels/docs/index?api-version=2024-07-01"

func TestServer_IndexAndLookup(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})

	status, body := do(t, http.MethodPost, srv.URL+indexPath, `{"value":[
		{"@search.action":"upload","hotelId":"1","hotelName":"Fancy Stay","baseRate":199.0},
		{"@search.action":"merge","hotelId":"2","hotelName":"Nowhere"}
	]}`, nil)
	assert.Equal(t, http.StatusMultiStatus, status)

	var rb indexing.ResultsBody
	require.NoError(t, json.Unmarshal([]byte(body), &rb))
	require.Len(t, rb.Value, 2)
	assert.True(t, rb.Value[0].Succeeded)
	assert.Equal(t, http.StatusCreated, rb.Value[0].StatusCode)
	assert.False(t, rb.Value[1].Succeeded)
	assert.Equal(t, MsgDocumentNotFound, rb.Value[1].Message())

	status, body = do(t, http.MethodGet, srv.URL+"/indexes/hotels/docs/1?api-version=2024-07-01", "", nil)
	assert.Equal(t, http.StatusOK, status)
	var doc document.Document
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	rate, _ := doc.Get("baseRate")
	assert.Equal(t, document.Float(199), rate)

	status, body = do(t, http.MethodGet, srv.URL+"/indexes/hotels/docs/$count?api-version=2024-07-01", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1", body)

	status, _ = do(t, http.MethodGet, srv.URL+"/indexes/hotels/docs/2?api-version=2024-07-01", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RejectsBadRequests(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{MaxBatchSize: 1})

	status, body := do(t, http.MethodPost, srv.URL+indexPath, `{"value":[{"hotelName":"no id"}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, MsgKeyMissing)

	status, _ = do(t, http.MethodPost, srv.URL+indexPath, `{"value":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, srv.URL+indexPath, `{"value":[{"hotelId":"1"},{"hotelId":"2"}]}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)

	status, _ = do(t, http.MethodPost, srv.URL+indexPath, `{"value":[{"@search.action":"replace","hotelId":"1"}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/indexes/hotels/docs/index", `{"value":[{"hotelId":"1"}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, status, "api-version is required")

	status, body = do(t, http.MethodPost, srv.URL+"/indexes/rooms/docs/index?api-version=1", `{"value":[{"hotelId":"1"}]}`, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "rooms")
}

func TestServer_APIKey(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{APIKey: "secret"})
	payload := `{"value":[{"hotelId":"1"}]}`

	status, _ := do(t, http.MethodPost, srv.URL+indexPath, payload, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, http.MethodPost, srv.URL+indexPath, payload, map[string]string{"api-key": "nope"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, http.MethodPost, srv.URL+indexPath, payload, map[string]string{"api-key": "secret"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_RecordsRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, srv := newTestServer(t, ServerConfig{Metrics: metrics.NewWithRegistry(reg)})

	do(t, http.MethodGet, srv.URL+"/indexes/hotels/docs/a?api-version=1", "", nil)
	do(t, http.MethodGet, srv.URL+"/indexes/hotels/docs/b?api-version=1", "", nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, fam := range families {
		if fam.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" {
					assert.Equal(t, "/indexes/{index}/docs/{key}", lp.GetValue())
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, total)
}
