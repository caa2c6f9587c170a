package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsLabelsByWorkerAndRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics("7"))
	r.Get("/api/productos/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	for _, id := range []string{"a1", "b2", "c3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/productos/"+id, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues("7", http.MethodGet, "/api/productos/{id}", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(httpInFlight.WithLabelValues("7")))
}

func TestMetricsKeepsWorkersApart(t *testing.T) {
	for _, worker := range []string{"8", "9"} {
		r := chi.NewRouter()
		r.Use(Metrics(worker))
		r.Get("/heartbeat", func(w http.ResponseWriter, r *http.Request) {})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/heartbeat", nil))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("8", http.MethodGet, "/heartbeat", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("9", http.MethodGet, "/heartbeat", "200")))
}
