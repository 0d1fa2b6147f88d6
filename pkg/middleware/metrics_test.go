package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectMetric returns the first metric of c whose labels include all of labels.
func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if m.Write(d) != nil {
			continue
		}
		got := make(map[string]string, len(d.GetLabel()))
		for _, lp := range d.GetLabel() {
			got[lp.GetName()] = lp.GetValue()
		}
		match := true
		for k, v := range labels {
			if got[k] != v {
				match = false
				break
			}
		}
		if match {
			return d
		}
	}
	return nil
}

func counterValue(t *testing.T, labels map[string]string) float64 {
	t.Helper()
	m := collectMetric(t, httpRequestsTotal, labels)
	if m == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func TestPrometheusMetrics_CountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics())
	r.Get("/api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	labels := map[string]string{"method": "GET", "route": "/api/products/{id}", "status": "200"}
	before := counterValue(t, labels)

	for _, id := range []string{"p-1", "p-2", "p-3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products/"+id, nil))
	}

	assert.Equal(t, before+3, counterValue(t, labels))
}

func TestPrometheusMetrics_CapturesStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics())
	r.Post("/api/cart/items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	labels := map[string]string{"method": "POST", "route": "/api/cart/items", "status": "401"}
	before := counterValue(t, labels)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/cart/items", nil))

	assert.Equal(t, before+1, counterValue(t, labels))
}

func TestPrometheusMetrics_ObservesDuration(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics())
	r.Get("/api/cart", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	m := collectMetric(t, httpRequestDuration, map[string]string{"method": "GET", "route": "/api/cart"})
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestPrometheusMetrics_InFlightReturnsToBaseline(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics())

	var during float64
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		during = collectMetric(t, httpRequestsInFlight, nil).GetGauge().GetValue()
	})

	before := collectMetric(t, httpRequestsInFlight, nil).GetGauge().GetValue()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
	after := collectMetric(t, httpRequestsInFlight, nil).GetGauge().GetValue()

	assert.Equal(t, before+1, during)
	assert.Equal(t, before, after)
}

func TestStatusRecorder_FirstWriteHeaderWins(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusInternalServerError)
	_, _ = rec.Write([]byte("abc"))

	assert.Equal(t, http.StatusCreated, rec.status)
	assert.Equal(t, 3, rec.bytes)
}

func TestStatusRecorder_FlushDelegates(t *testing.T) {
	under := httptest.NewRecorder()
	rec := newStatusRecorder(under)
	rec.Flush()
	assert.True(t, under.Flushed)
}
