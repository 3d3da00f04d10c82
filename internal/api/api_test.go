package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/pvwatch/internal/history"
	"github.com/tejusbharadwaj/pvwatch/internal/ingest"
	"github.com/tejusbharadwaj/pvwatch/internal/metrics"
	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

type fakeQueries struct {
	latest    models.Reading
	latestErr error
	records   []models.Record
	stats     models.Stats
	err       error
	windows   []time.Duration
}

func (f *fakeQueries) FetchLatest(ctx context.Context) (models.Reading, error) {
	return f.latest, f.latestErr
}

func (f *fakeQueries) QueryRange(ctx context.Context, window time.Duration) ([]models.Record, error) {
	f.windows = append(f.windows, window)
	return f.records, f.err
}

func (f *fakeQueries) Aggregate(ctx context.Context, window time.Duration) (models.Stats, error) {
	f.windows = append(f.windows, window)
	return f.stats, f.err
}

func (f *fakeQueries) Series(ctx context.Context, window time.Duration, metric string) ([]models.SeriesPoint, error) {
	f.windows = append(f.windows, window)
	if f.err != nil {
		return nil, f.err
	}
	return []models.SeriesPoint{{Time: time.Unix(0, 0).UTC(), Value: 1}}, nil
}

type fixedStatus ingest.Status

func (s fixedStatus) Status() ingest.Status { return ingest.Status(s) }

func newTestApp(t *testing.T, q *fakeQueries, status ingest.Status, cfg ServerConfig) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	return NewApp(q, fixedStatus(status), reg, cfg, logger)
}

func get(t *testing.T, app *fiber.App, target string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	_ = json.Unmarshal(body, &decoded)
	return resp, decoded
}

func TestLatest(t *testing.T) {
	q := &fakeQueries{latest: models.Reading{LivePower: 4, TotalEnergy: 120.5}}
	app := newTestApp(t, q, ingest.Status{}, DefaultServerConfig())

	resp, body := get(t, app, "/api/v1/readings/latest")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4.0, body["live_power"])
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestLatest_Unavailable(t *testing.T) {
	q := &fakeQueries{latestErr: fmt.Errorf("%w: no snapshot", history.ErrUnavailable)}
	app := newTestApp(t, q, ingest.Status{}, DefaultServerConfig())

	resp, body := get(t, app, "/api/v1/readings/latest")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, true, body["error"])
}

func TestReadings_Window(t *testing.T) {
	q := &fakeQueries{records: []models.Record{{ID: 2}, {ID: 1}}}
	app := newTestApp(t, q, ingest.Status{}, DefaultServerConfig())

	resp, body := get(t, app, "/api/v1/readings?window=6")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2.0, body["count"])
	assert.Equal(t, []time.Duration{6 * time.Hour}, q.windows)

	resp, _ = get(t, app, "/api/v1/readings")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, history.DefaultWindow, q.windows[1])
}

func TestReadings_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{name: "bad window", target: "/api/v1/readings?window=soon", want: http.StatusBadRequest},
		{name: "window too large", target: "/api/v1/stats?window=1000d", want: http.StatusBadRequest},
		{name: "no data", target: "/api/v1/stats?window=6", err: history.ErrNoData, want: http.StatusNotFound},
		{name: "storage failure", target: "/api/v1/readings?window=6", err: errors.New("disk"), want: http.StatusInternalServerError},
		{name: "unknown metric", target: "/api/v1/series?metric=voltage", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, &fakeQueries{err: tt.err}, ingest.Status{}, DefaultServerConfig())
			resp, _ := get(t, app, tt.target)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestStats(t *testing.T) {
	q := &fakeQueries{stats: models.Stats{Count: 3, AvgPower: 4}}
	app := newTestApp(t, q, ingest.Status{}, DefaultServerConfig())

	resp, body := get(t, app, "/api/v1/stats?window=24h")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, 3.0, stats["reading_count"])
	assert.Equal(t, "24h0m0s", body["window"])
}

func TestSeries(t *testing.T) {
	app := newTestApp(t, &fakeQueries{}, ingest.Status{}, DefaultServerConfig())

	resp, body := get(t, app, "/api/v1/series?metric=efficiency&window=12")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "efficiency", body["metric"])
	assert.Len(t, body["points"], 1)
}

func TestSeries_AcceptsEveryMetric(t *testing.T) {
	for _, metric := range history.Metrics() {
		t.Run(metric, func(t *testing.T) {
			app := newTestApp(t, &fakeQueries{}, ingest.Status{}, DefaultServerConfig())
			resp, body := get(t, app, "/api/v1/series?metric="+metric)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, metric, body["metric"])
		})
	}

	app := newTestApp(t, &fakeQueries{}, ingest.Status{}, DefaultServerConfig())
	resp, body := get(t, app, "/api/v1/series?metric=voltage")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "live_power")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &fakeQueries{}, ingest.Status{Ticks: 1, Healthy: true, LastOutcome: ingest.OutcomeIngested}, DefaultServerConfig())
	resp, body := get(t, app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pvwatch", body["service"])

	app = newTestApp(t, &fakeQueries{}, ingest.Status{Ticks: 3, LastOutcome: ingest.OutcomeUnreachable}, DefaultServerConfig())
	resp, _ = get(t, app, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	app := newTestApp(t, &fakeQueries{}, ingest.Status{}, ServerConfig{RateLimit: 0.001, RateLimitBurst: 1})

	resp, _ := get(t, app, "/api/v1/readings/latest")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, app, "/api/v1/readings/latest")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health and metrics are not rate limited.
	resp, _ = get(t, app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, &fakeQueries{}, ingest.Status{}, DefaultServerConfig())
	get(t, app, "/api/v1/readings/latest")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "pvwatch_http_requests_total"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	app := newTestApp(t, &fakeQueries{}, ingest.Status{}, DefaultServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}
