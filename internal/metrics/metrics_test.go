package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounts(t *testing.T) {
	m := New()
	m.IncEvaluation("skipped")
	m.IncEvaluation("skipped")
	m.IncEvaluation("topped_up")
	m.IncConfirmation("confirmed")
	m.IncNotification("dropped")
	m.SetFunderBalance(123.5)
	m.ObservePolls(3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.evaluations.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.evaluations.WithLabelValues("topped_up")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.confirmations.WithLabelValues("confirmed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.notifications.WithLabelValues("dropped")), 0)
	assert.InDelta(t, 123.5, testutil.ToFloat64(m.funderBalance), 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.IncEvaluation("skipped")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tronfunder_evaluations_total{result="skipped"} 1`)
}

func TestNilRegistryIsSafe(t *testing.T) {
	var m *Registry
	m.IncEvaluation("x")
	m.IncConfirmation("x")
	m.IncNotification("x")
	m.ObservePolls(1)
	m.SetFunderBalance(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
