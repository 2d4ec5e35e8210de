package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/asterisk-popup/internal/tracker"
)

func TestConnectionGauges(t *testing.T) {
	m := New()

	m.SetConnected(true)
	m.SetReconnectAttempts(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reconnectAttempts))

	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestConnectCounters(t *testing.T) {
	m := New()

	m.ConnectSucceeded()
	m.ConnectFailed("connection_refused")
	m.ConnectFailed("connection_refused")
	m.ConnectFailed("auth_failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues(ResultFailure)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectFailures.WithLabelValues("connection_refused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectFailures.WithLabelValues("auth_failed")))
}

func TestCallNotifier(t *testing.T) {
	m := New()
	var n tracker.Notifier = m

	n.OnIncomingCall(tracker.Call{Channel: "SIP/test-1"})
	n.OnCallStatusChange("SIP/test-1", tracker.StatusAnswered)
	n.OnCallStatusChange("SIP/test-1", tracker.StatusHangup)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("ringing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("hangup")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SetConnected(true)
		m.SetReconnectAttempts(1)
		m.ConnectSucceeded()
		m.ConnectFailed("timeout")
		m.EventDispatched("Newstate")
		m.DispatchPanicked()
		m.SetQueueDepth(2)
		m.SetActiveCalls(1)
		m.OnIncomingCall(tracker.Call{})
		m.OnCallStatusChange("x", tracker.StatusHangup)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.EventDispatched("Newstate")
	m.SetActiveCalls(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `asterisk_popup_ami_events_total{event="Newstate"} 1`)
	assert.Contains(t, string(body), "asterisk_popup_active_calls 2")
}
