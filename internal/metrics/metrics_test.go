package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/liftlog/internal/errors"
)

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.StoreOpsTotal)
	assert.NotNil(t, m.StoreOpDuration)
	assert.NotNil(t, m.MirrorStepsTotal)
	assert.NotNil(t, m.CelebrationsTotal)
	assert.NotNil(t, m.SessionAnomalies)
}

func TestMetrics_ObserveStore(t *testing.T) {
	m := New()
	m.ObserveStore("write", time.Now(), nil)
	m.ObserveStore("write", time.Now(), fmt.Errorf("writing prs.yaml: %w", perrors.ErrConflict))
	m.ObserveStore("read", time.Now(), perrors.NewAPIError("github", 404, "missing"))

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `liftlog_store_operations_total{op="write",result="ok"} 1`)
	assert.Contains(t, body, `liftlog_store_operations_total{op="write",result="conflict"} 1`)
	assert.Contains(t, body, `liftlog_store_operations_total{op="read",result="not_found"} 1`)
	assert.Contains(t, body, "liftlog_store_operation_duration_seconds")
}

func TestMetrics_Celebrations(t *testing.T) {
	m := New()
	m.RecordCelebration("milestone")
	m.RecordCelebration("milestone")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `liftlog_pr_celebrations_total{type="milestone"} 2`)
}

func TestMetrics_MirrorAndJobs(t *testing.T) {
	m := New()
	m.RecordMirrorStep("fetch", perrors.ErrUnavailable)
	m.ObserveJob("log_session", time.Now(), nil)
	m.SetSessionAnomalies(2)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `liftlog_mirror_steps_total{result="unavailable",step="fetch"} 1`)
	assert.Contains(t, body, `liftlog_jobs_total{job="log_session",result="ok"} 1`)
	assert.Contains(t, body, "liftlog_session_anomalies 2")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStore("read", time.Now(), nil)
		m.RecordMirrorStep("clone", nil)
		m.RecordCelebration("weight")
		m.ObserveJob("retro", time.Now(), errors.New("boom"))
		m.SetSessionAnomalies(1)
	})
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "inconsistent", Result(perrors.ErrInconsistentState))
	assert.Equal(t, "unavailable", Result(perrors.NewAPIError("github", 503, "down")))
	assert.Equal(t, "error", Result(errors.New("other")))
}

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	return strings.TrimSpace(string(body))
}
