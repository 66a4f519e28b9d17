package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.TransactionProcessed(true, 1500, time.Millisecond)
	m.TransactionProcessed(false, 300, time.Millisecond)
	m.TransactionRejected()
	m.InstructionExecuted("clicker", true)
	m.Airdrop(1_000_000_000)
	m.SetSlot(9)
	m.RPCRequest("getHealth", true, time.Microsecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("rejected")))
	require.Equal(t, 9.0, testutil.ToFloat64(m.slot))
	require.Equal(t, 1e9, testutil.ToFloat64(m.airdropLamport))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "clicker_rpc_requests_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.TransactionProcessed(true, 1, time.Second)
		m.TransactionRejected()
		m.InstructionExecuted("system", false)
		m.SetSlot(1)
		m.Airdrop(1)
		m.RPCRequest("getSlot", true, time.Second)
	})
}
