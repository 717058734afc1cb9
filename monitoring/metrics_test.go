package monitoring

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keyoracle/keyoracle/dispatcher"
	"github.com/keyoracle/keyoracle/session"
	"github.com/keyoracle/keyoracle/signer"
	"github.com/keyoracle/keyoracle/walletunlocker"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestOutcome checks the error classification.
func TestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err error
		exp string
	}{
		{nil, OutcomeOK},
		{signer.ErrDeclined, OutcomeDeclined},
		{signer.ErrForeignChange, OutcomePolicy},
		{fmt.Errorf("wrapped: %w", signer.ErrOutputCount), OutcomePolicy},
		{session.ErrNotUnlocked, OutcomeLocked},
		{walletunlocker.ErrAuthFailed, OutcomeAuth},
		{errors.New("boom"), OutcomeError},
	}
	for _, tc := range tests {
		require.Equal(t, tc.exp, Outcome(tc.err), "%v", tc.err)
	}
}

// TestRequestDone checks the counters and the exported text.
func TestRequestDone(t *testing.T) {
	t.Parallel()

	m := New(&Config{
		Version:  "0.1.0",
		Unlocked: func() bool { return true },
	})

	m.RequestDone(dispatcher.KindSign, nil, time.Second)
	m.RequestDone(dispatcher.KindSign, signer.ErrForeignChange, time.Second)
	m.RequestDone(dispatcher.KindSign, nil, time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(
		m.requests.WithLabelValues("sign", OutcomeOK),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.requests.WithLabelValues("sign", OutcomePolicy),
	))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	require.True(t, strings.Contains(body,
		`keyoracle_requests_total{kind="sign",outcome="ok"} 2`))
	require.Contains(t, body, "keyoracle_request_duration_seconds_count")
	require.Contains(t, body, "keyoracle_session_unlocked 1")
	require.Contains(t, body, `keyoracle_version{commit="",version="0.1.0"} 1`)
}

// TestStartStop runs the exporter on an ephemeral port.
func TestStartStop(t *testing.T) {
	t.Parallel()

	m := New(&Config{Listen: "127.0.0.1:0"})
	require.NoError(t, m.Start())
	require.NoError(t, m.Start())
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

// TestKindsPreregistered checks that every request kind is exported before
// any request finished.
func TestKindsPreregistered(t *testing.T) {
	t.Parallel()

	m := New(&Config{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, kind := range dispatcher.Kinds {
		series := fmt.Sprintf(
			`keyoracle_requests_total{kind="%v",outcome="ok"} 0`,
			kind,
		)
		require.Contains(t, body, series)
		require.Contains(t, body, fmt.Sprintf(
			`keyoracle_request_duration_seconds_count{kind="%v"} 0`,
			kind,
		))
	}
}

// TestUptime checks that the uptime gauge follows the configured clock.
func TestUptime(t *testing.T) {
	t.Parallel()

	start := time.Date(2009, time.January, 3, 12, 0, 0, 0, time.UTC)
	testClock := clock.NewTestClock(start)
	m := New(&Config{Clock: testClock})

	testClock.SetTime(start.Add(90 * time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Contains(t, rec.Body.String(), "keyoracle_uptime_seconds 90")
}
