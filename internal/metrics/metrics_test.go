package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serialrent-backend/internal/domain"
)

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()
	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/serials/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler())

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/serials/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "/serials/{id}", "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "http_request_duration_seconds"))
	assert.True(t, strings.Contains(body, `path="/serials/{id}"`))
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.SerialTransition(domain.SerialStateAvailable, domain.SerialStateReserved)
	m.SerialTransition(domain.SerialStateAvailable, domain.SerialStateReserved)
	m.AllocationFailed("insufficient stock")
	m.ReturnProcessed(domain.ConditionLost)
	m.ScanHandled(domain.ScanActionVerify, domain.ScanLevelWarning)
	m.JobFinished("overdue", nil)
	m.JobFinished("overdue", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("AVAILABLE", "RESERVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocFails.WithLabelValues("insufficient stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.returns.WithLabelValues("LOST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("verify", "warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("overdue", "failure")))

	n, err := testutil.GatherAndCount(m.Gatherer(), "serial_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
