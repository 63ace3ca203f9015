package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.IncScans()
	m.IncScans()
	m.IncCandidate("GOLD")
	m.IncEntryBlocked("LOSS_STREAK")
	m.IncOrder("buy", nil)
	m.IncOrder("sell", errors.New("x"))
	m.ObserveExit("stop_loss", -10)
	m.ObserveExit("trailing_stop", 5)
	m.ObserveExit("time_limit", 0)
	m.SetEquity(1_000_000)
	m.SetOpenPositions(1)
	m.ObserveLimiterWait(20 * time.Millisecond)
	m.ObservePaperFill("buy", 150)
	m.ObservePaperFill("sell", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scans))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.candidates.WithLabelValues("GOLD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entryBlocked.WithLabelValues("LOSS_STREAK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("sell", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.trades.WithLabelValues("loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("win")))
	assert.Equal(t, 1_000_000.0, testutil.ToFloat64(m.equity))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paperFills.WithLabelValues("sell")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.paperFees))
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncScans()
		m.IncOrder("buy", nil)
		m.ObserveExit("stop_loss", -1)
		m.SetOpenPositions(0)
		m.ObserveLimiterWait(time.Second)
		m.ObservePaperFill("buy", 1)
	})
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServerEndpoints(t *testing.T) {
	t.Parallel()

	m := New()
	m.IncScans()
	s := NewServer("127.0.0.1:0", m, nil)
	h := s.Handler()

	code, _ := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	s.SetReady(true)
	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "gradebot_scans_total 1")
}
