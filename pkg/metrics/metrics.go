// Package metrics exposes ledger and RPC counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clicker"

// Metrics holds every collector the ledger reports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transactions   *prometheus.CounterVec
	instructions   *prometheus.CounterVec
	computeUnits   prometheus.Histogram
	executionTime  prometheus.Histogram
	slot           prometheus.Gauge
	rpcRequests    *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	airdropLamport prometheus.Counter
}

// New creates a Metrics set registered on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "transactions_total",
			Help:      "Transactions processed, by result.",
		}, []string{"result"}),
		instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "instructions_total",
			Help:      "Top-level instructions executed, by program and result.",
		}, []string{"program", "result"}),
		computeUnits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "compute_units",
			Help:      "Compute units consumed per transaction.",
			Buckets:   prometheus.ExponentialBuckets(500, 2, 10),
		}),
		executionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execution_seconds",
			Help:      "Wall time spent executing and committing a transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "slot",
			Help:      "Current ledger slot.",
		}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests, by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_seconds",
			Help:      "JSON-RPC request latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		airdropLamport: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "airdrop_lamports_total",
			Help:      "Lamports credited by the faucet.",
		}),
	}
	m.registry.MustRegister(
		m.transactions,
		m.instructions,
		m.computeUnits,
		m.executionTime,
		m.slot,
		m.rpcRequests,
		m.rpcDuration,
		m.airdropLamport,
	)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// TransactionProcessed records one executed transaction.
func (m *Metrics) TransactionProcessed(ok bool, computeUnits uint64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(result(ok)).Inc()
	m.computeUnits.Observe(float64(computeUnits))
	m.executionTime.Observe(elapsed.Seconds())
}

// TransactionRejected records a transaction refused before execution.
func (m *Metrics) TransactionRejected() {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues("rejected").Inc()
}

// InstructionExecuted records one top-level instruction.
func (m *Metrics) InstructionExecuted(program string, ok bool) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(program, result(ok)).Inc()
}

// SetSlot updates the slot gauge.
func (m *Metrics) SetSlot(slot uint64) {
	if m == nil {
		return
	}
	m.slot.Set(float64(slot))
}

// Airdrop records a faucet credit.
func (m *Metrics) Airdrop(lamports uint64) {
	if m == nil {
		return
	}
	m.airdropLamport.Add(float64(lamports))
}

// RPCRequest records one JSON-RPC call.
func (m *Metrics) RPCRequest(method string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, result(ok)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
