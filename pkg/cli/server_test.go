package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/mchmarny/pulse/pkg/config"
	"github.com/mchmarny/pulse/pkg/data"
	"github.com/mchmarny/pulse/pkg/export"
	"github.com/mchmarny/pulse/pkg/intel"
	"github.com/mchmarny/pulse/pkg/middleware"
)

const testDataset = "aadhaar_test"

type testPincode struct {
	state, district string
	pin             int
	lat, lon, scale float64
}

var testPincodes = []testPincode{
	{"Delhi", "New Delhi", 110001, 28.61, 77.20, 10},
	{"Delhi", "New Delhi", 110002, 28.63, 77.22, 12},
	{"Delhi", "South Delhi", 110017, 28.52, 77.21, 8},
	{"Maharashtra", "Mumbai", 400001, 18.93, 72.83, 20},
}

// writeDataset writes ten days of counters for the test pincodes as one
// chunk file and returns its directory.
func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString(strings.Join(data.Columns, ",") + "\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for day := range 10 {
		for _, p := range testPincodes {
			s := p.scale
			if p.pin == 400001 && day == 9 {
				s *= 10
			}
			fmt.Fprintf(&b, "%s,%s,%s,%d,%.2f,%.2f,%.0f,%.0f,%.0f,%.0f,%.0f,%.0f,%.0f\n",
				start.AddDate(0, 0, day).Format(data.DateLayout), p.state, p.district, p.pin, p.lat, p.lon,
				2*s, 3*s, 5*s, 1*s, 4*s, 2*s, 3*s)
		}
	}

	path := filepath.Join(dir, testDataset+"_chunk_1.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return dir
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Data.Dir = dir
	cfg.Data.Dataset = testDataset
	cfg.RateLimit.Enabled = false
	cfg.Chat.APIKey = ""
	return cfg
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *server {
	t.Helper()
	cfg := testConfig(writeDataset(t))
	if mutate != nil {
		mutate(cfg)
	}
	ds, err := loadDataset(context.Background(), cfg)
	require.NoError(t, err)
	return newServer(cfg, ds, nil)
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLoadDataset(t *testing.T) {
	cfg := testConfig(writeDataset(t))
	ds, err := loadDataset(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, intel.Stats{Records: 40, Pincodes: 4, Districts: 3, States: 2}, ds.Stats())
	assert.NotEmpty(t, ds.Fingerprint())

	cfg.Data.Dataset = "missing"
	_, err = loadDataset(context.Background(), cfg)
	assert.ErrorIs(t, err, data.ErrNoData)
}

func TestStatusRoutes(t *testing.T) {
	h := newTestServer(t, nil).handler()

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]any](t, rec)
	assert.Equal(t, statusOperational, root["status"])
	assert.Contains(t, root, "features")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = do(t, h, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, true, health["data_loaded"])

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := decode[map[string]map[string]any](t, rec)
	assert.Contains(t, metrics["performance"], "GET /{$}")
	assert.EqualValues(t, 4, metrics["data"]["pincodes"])

	rec = do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoutes(t *testing.T) {
	h := newTestServer(t, nil).handler()

	rec := do(t, h, http.MethodGet, "/api/metrics/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[intel.Listing](t, rec)
	assert.Equal(t, 4, all.TotalRecords)

	rec = do(t, h, http.MethodGet, "/api/metrics/sector/hunger?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sec := decode[intel.SectorListing](t, rec)
	assert.Len(t, sec.Data, 2)
	assert.Equal(t, "migrant_hunger_score", sec.Metric)
	assert.GreaterOrEqual(t, sec.Data[0].Hunger, sec.Data[1].Hunger)

	rec = do(t, h, http.MethodGet, "/api/metrics/pincode/110001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[intel.PincodeDetail](t, rec)
	assert.Equal(t, 110001, detail.Summary.Pincode)
	assert.Len(t, detail.TimeSeries, 10)

	rec = do(t, h, http.MethodGet, "/api/anomalies/top-rank?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[intel.AnomalyRanking](t, rec)
	assert.Len(t, top.Data, 3)

	rec = do(t, h, http.MethodGet, "/api/report/400001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[intel.PincodeReport](t, rec)
	assert.True(t, strings.HasPrefix(rep.ID, "GOV-400001-"), rep.ID)

	rec = do(t, h, http.MethodGet, "/api/stats/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decode[intel.Overview](t, rec)
	assert.Equal(t, 4, ov.TotalPincodes)
	assert.Equal(t, 2, ov.TotalStates)
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(t, nil).handler()

	tests := []struct {
		path string
		code int
	}{
		{"/api/metrics/sector/defense", http.StatusBadRequest},
		{"/api/metrics/pincode/abc", http.StatusBadRequest},
		{"/api/metrics/pincode/12", http.StatusBadRequest},
		{"/api/metrics/pincode/999999", http.StatusNotFound},
		{"/api/report/999999", http.StatusNotFound},
		{"/api/analytics/pincode-forecast/999999", http.StatusNotFound},
		{"/api/intelligence/district-report/gotham", http.StatusNotFound},
		{"/api/export/pdf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.path, nil)
		assert.Equal(t, tt.code, rec.Code, tt.path)
		assert.Contains(t, decode[map[string]any](t, rec), "error", tt.path)
	}

	rec := do(t, h, http.MethodGet, "/api/intelligence/district-report/gotham", nil)
	body := decode[map[string]any](t, rec)
	assert.ElementsMatch(t, []any{"New Delhi", "South Delhi", "Mumbai"}, body["available_districts"])
}

func TestETag(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.handler()

	rec := do(t, h, http.MethodGet, "/api/stats/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	assert.Equal(t, `"`+s.ds.Fingerprint()+`"`, etag)

	rec = do(t, h, http.MethodGet, "/api/stats/overview", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/metrics/sector/bogus", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))

	// served from the cache
	_, ok := s.cache.Get("/api/stats/overview")
	assert.True(t, ok)
	rec = do(t, h, http.MethodGet, "/api/stats/overview", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMapRoutes(t *testing.T) {
	h := newTestServer(t, nil).handler()

	rec := do(t, h, http.MethodGet, "/api/map/geojson?sector=education", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	layer := decode[map[string]any](t, rec)
	assert.Equal(t, "FeatureCollection", layer["type"])
	assert.Len(t, layer["features"], 4)

	rec = do(t, h, http.MethodGet, "/api/map/district-aggregation?sector=labor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agg := decode[map[string]any](t, rec)
	assert.Equal(t, "skill_gap_migration_flow", agg["metric"])
	assert.EqualValues(t, 3, agg["total_districts"])

	rec = do(t, h, http.MethodGet, "/api/map/district-aggregation", nil)
	assert.Equal(t, compositeMetric, decode[map[string]any](t, rec)["metric"])

	for _, p := range []string{"/api/map/state-aggregation", "/api/stats/by-state", "/api/analytics/state-risk"} {
		rec = do(t, h, http.MethodGet, p, nil)
		require.Equal(t, http.StatusOK, rec.Code, p)
		assert.EqualValues(t, 2, decode[map[string]any](t, rec)["total_states"], p)
	}

	rec = do(t, h, http.MethodGet, "/api/map/filtered-pincodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	filtered := decode[map[string]any](t, rec)
	assert.EqualValues(t, 4, filtered["total"])
	assert.EqualValues(t, 0, filtered["excluded"])
}

func TestIntelligenceRoutes(t *testing.T) {
	h := newTestServer(t, nil).handler()

	rec := do(t, h, http.MethodGet, "/api/intelligence/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3, status["districts_available"])
	assert.Equal(t, false, status["chat_model"])

	rec = do(t, h, http.MethodGet, "/api/intelligence/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, intel.DefaultRole, decode[map[string]any](t, rec)["default"])

	rec = do(t, h, http.MethodGet, "/api/intelligence/districts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	districts := decode[struct {
		Total  int                 `json:"total_districts"`
		States map[string][]string `json:"states"`
	}](t, rec)
	assert.Equal(t, 3, districts.Total)
	assert.Equal(t, []string{"New Delhi", "South Delhi"}, districts.States["Delhi"])

	rec = do(t, h, http.MethodGet, "/api/intelligence/district-report/mumbai?role=police", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[intel.DistrictReport](t, rec)
	assert.Equal(t, "Mumbai", rep.District)
	assert.Equal(t, "police", rep.Role)
	assert.Contains(t, rep.Forecasts, intel.HorizonKey(5))

	rec = do(t, h, http.MethodGet, "/api/intelligence/sample-questions?role=unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[map[string]any](t, rec)
	assert.Equal(t, intel.DefaultRole, q["role"])
	assert.NotEmpty(t, q["questions"])

	rec = do(t, h, http.MethodGet, "/api/intelligence/forecast-matrix?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["total"])
}

func TestChatRoute(t *testing.T) {
	h := newTestServer(t, nil).handler()

	rec := do(t, h, http.MethodPost, "/api/intelligence/chat",
		[]byte(`{"message":"what is the risk?","district":"mumbai"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[intel.ChatResponse](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, intel.IntentRisk, res.Intent)
	assert.Equal(t, intel.SourceReport, res.Source)
	assert.Equal(t, "Mumbai", res.District)

	rec = do(t, h, http.MethodPost, "/api/intelligence/chat", []byte(`{"message":" "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/intelligence/chat", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/intelligence/chat", []byte(`{"message":"risk","district":"gotham"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/intelligence/chat", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	disabled := newTestServer(t, func(c *config.Config) { c.Chat.Enabled = false }).handler()
	rec = do(t, disabled, http.MethodPost, "/api/intelligence/chat", []byte(`{"message":"risk"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsRoutes(t *testing.T) {
	h := newTestServer(t, nil).handler()

	rec := do(t, h, http.MethodGet, "/api/analytics/forecasts?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["total"])

	rec = do(t, h, http.MethodGet, "/api/analytics/clusters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["enabled"])

	rec = do(t, h, http.MethodGet, "/api/analytics/government-insights", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]any](t, rec), "data")

	rec = do(t, h, http.MethodGet, "/api/analytics/pincode-forecast/110001?periods=6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fc := decode[intel.PincodeForecast](t, rec)
	assert.Equal(t, 6, fc.Periods)
	assert.Equal(t, 10, fc.History)

	disabled := newTestServer(t, func(c *config.Config) { c.Forecast.Enabled = false }).handler()
	for _, p := range []string{
		"/api/analytics/forecasts",
		"/api/intelligence/forecast-matrix",
		"/api/analytics/pincode-forecast/110001",
	} {
		rec = do(t, disabled, http.MethodGet, p, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
}

func TestExportRoute(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) { c.Export.MaxRows = 3 }).handler()

	rec := do(t, h, http.MethodGet, "/api/export/csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentTypeCSV, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), exportFilePrefix)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4, "header plus capped rows")
	assert.Equal(t, strings.Join(export.Header, ","), lines[0])

	rec = do(t, h, http.MethodGet, "/api/export/xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	disabled := newTestServer(t, func(c *config.Config) { c.Export.Enabled = false }).handler()
	rec = do(t, disabled, http.MethodGet, "/api/export/csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKey(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Security.APIKeyEnabled = true
		c.Security.APIKey = "secret"
	}).handler()

	rec := do(t, h, http.MethodGet, "/api/stats/overview", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/stats/overview", nil, middleware.APIKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/stats/overview", nil, middleware.APIKeyHeader, "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.Requests = 2
		c.RateLimit.Window = time.Minute
	}).handler()

	for range 2 {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", nil).Code)
	}
	rec := do(t, h, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Server.CORSOrigins = []string{"https://dash.example.in"}
	}).handler()

	rec := do(t, h, http.MethodGet, "/ready", nil, "Origin", "https://dash.example.in")
	assert.Equal(t, "https://dash.example.in", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/ready", nil, "Origin", "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAlertsWebSocket(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.WebSocket.AlertInterval = 50 * time.Millisecond
		c.WebSocket.AlertLimit = 2
		c.Thresholds.Critical = 0
	})
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for range 2 {
		var msg alertMessage
		require.NoError(t, websocket.JSON.Receive(conn, &msg))
		assert.Equal(t, alertMessageType, msg.Type)
		assert.Equal(t, 2, msg.CriticalCount)
		require.Len(t, msg.Alerts, 2)
		assert.Equal(t, 110001, msg.Alerts[0].Pincode)
		assert.NotEmpty(t, msg.Alerts[0].Type)
	}
}

func TestAlertsWebSocket_Rejected(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Server.CORSOrigins = []string{"https://dash.example.in"}
	})
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	_, err := websocket.Dial(wsURL, "", "https://evil.example.com")
	assert.Error(t, err)

	disabled := newTestServer(t, func(c *config.Config) { c.WebSocket.Enabled = false })
	rec := do(t, disabled.handler(), http.MethodGet, "/ws/alerts", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
