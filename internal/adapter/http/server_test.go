package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/discharge-forecast-service/internal/adapter/http"
	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/observability"
	"github.com/couchcryptid/discharge-forecast-service/internal/query"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockConsulter struct {
	res      query.Result
	err      error
	lat, lon float64
	calls    int
}

func (m *mockConsulter) Consult(_ context.Context, lat, lon float64) (query.Result, error) {
	m.calls++
	m.lat, m.lon = lat, lon
	if m.err != nil {
		return query.Result{}, m.err
	}
	res := m.res
	res.Lat, res.Lon = lat, lon
	return res, nil
}

func newTestServer(c httpadapter.Consulter, readyErr error) (*httpadapter.Server, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return httpadapter.NewServer(":0", c, &mockReadiness{err: readyErr}, m, slog.Default()), m
}

func get(srv http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func sampleResult() query.Result {
	return query.Result{
		Source: "20251014.nc",
		Mean: domain.Resolution{
			Variable: domain.VarMeanDischarge,
			Value:    domain.Value{Horizons: map[int]float64{24: 1.5, 48: 2.5}},
			Outcome:  domain.Outcome{Status: domain.StatusOK},
		},
		Std: domain.Resolution{
			Variable: domain.VarStdDischarge,
			Outcome:  domain.Outcome{Status: domain.StatusFailed, Err: domain.ErrVariableNotFound},
		},
		Thresholds: []query.Threshold{
			{File: "rl_2.nc", Resolution: domain.Resolution{Variable: "rl_2", Value: domain.ScalarValue(12), Outcome: domain.Outcome{Status: domain.StatusOK}}},
			{File: "broken.nc", Resolution: domain.Resolution{Outcome: domain.Outcome{Status: domain.StatusFailed}}},
		},
	}
}

func TestConsultReturnsForecast(t *testing.T) {
	c := &mockConsulter{res: sampleResult()}
	srv, m := newTestServer(c, nil)

	rec := get(srv, "/consultar?lat=-30.5&lon=-71.25")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, -30.5, c.lat)
	assert.Equal(t, -71.25, c.lon)

	assert.JSONEq(t, `{
		"lat": -30.5,
		"lon": -71.25,
		"source": "20251014.nc",
		"dis24_mean": {"24": 1.5, "48": 2.5},
		"dis24_std": null,
		"thresholds": {"rl_2.nc": 12, "broken.nc": null}
	}`, rec.Body.String())
	assert.InDelta(t, 1, testutil.ToFloat64(m.QueryRequests.WithLabelValues("ok")), 0)
}

func TestConsultAcceptsZeroCoordinates(t *testing.T) {
	c := &mockConsulter{}
	srv, _ := newTestServer(c, nil)

	rec := get(srv, "/consultar?lat=0&lon=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lat":0,"lon":0,"source":"","dis24_mean":null,"dis24_std":null,"thresholds":{}}`, rec.Body.String())
}

func TestConsultRejectsBadParameters(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"", "lat is required"},
		{"lat=-30", "lon is required"},
		{"lat=abc&lon=1", "lat must be a number"},
		{"lat=1&lon=east", "lon must be a number"},
		{"lat=91&lon=0", "lat must be between -90 and 90"},
		{"lat=0&lon=-180.5", "lon must be between -180 and 180"},
		{"lat=NaN&lon=0", "lat must be between -90 and 90"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c := &mockConsulter{}
			srv, m := newTestServer(c, nil)

			rec := get(srv, "/consultar?"+tt.query)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["error"])
			assert.Equal(t, 0, c.calls)
			assert.InDelta(t, 1, testutil.ToFloat64(m.QueryRequests.WithLabelValues("bad_request")), 0)
		})
	}
}

func TestConsultNoSnapshotReturns404(t *testing.T) {
	srv, m := newTestServer(&mockConsulter{err: fmt.Errorf("%w: download is empty", query.ErrNoSnapshot)}, nil)

	rec := get(srv, "/consultar?lat=-30&lon=-71")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
	assert.InDelta(t, 1, testutil.ToFloat64(m.QueryRequests.WithLabelValues("no_snapshot")), 0)
}

func TestConsultUpstreamFailureReturns500(t *testing.T) {
	srv, m := newTestServer(&mockConsulter{err: fmt.Errorf("%w: %w", query.ErrUpstream, errors.New("timeout"))}, nil)

	rec := get(srv, "/consultar?lat=-30&lon=-71")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
	assert.NotContains(t, body["error"], "timeout")
	assert.InDelta(t, 1, testutil.ToFloat64(m.QueryRequests.WithLabelValues("upstream_error")), 0)
}

func TestConsultUnencodableResultReturns500(t *testing.T) {
	res := sampleResult()
	res.Thresholds = []query.Threshold{{File: "rl_2.nc", Resolution: domain.Resolution{
		Variable: "rl_2", Value: domain.ScalarValue(math.Inf(1)), Outcome: domain.Outcome{Status: domain.StatusOK},
	}}}
	srv, m := newTestServer(&mockConsulter{res: res}, nil)

	rec := get(srv, "/consultar?lat=-30&lon=-71")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "response could not be encoded", body["error"])
	assert.InDelta(t, 1, testutil.ToFloat64(m.QueryRequests.WithLabelValues("encode_error")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.QueryRequests.WithLabelValues("ok")), 0)
}

func TestConsultNotRoutedWithoutConsulter(t *testing.T) {
	srv, _ := newTestServer(nil, nil)
	rec := get(srv, "/consultar?lat=0&lon=0")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestEndpoint(t *testing.T) {
	srv, _ := newTestServer(nil, nil)
	rec := get(srv, "/test")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","message":"service is running"}`, rec.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(nil, nil)

	first := get(srv, "/test").Header().Get("X-Request-ID")
	second := get(srv, "/test").Header().Get("X-Request-ID")

	_, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(nil, nil)
	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv, _ := newTestServer(nil, nil)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv, _ := newTestServer(nil, fmt.Errorf("not ready yet"))
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(nil, nil)
	rec := get(srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
