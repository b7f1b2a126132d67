// Package metrics provides Prometheus metrics for the faucet runtime and RPC
// server.
//
// Metrics are registered on a private registry so tests and multiple
// instances in one process never collide. All methods are safe on a nil
// *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "faucet"

// Instruction results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the collectors exported by a faucet node.
type Metrics struct {
	registry *prometheus.Registry

	BuildInfo            *prometheus.GaugeVec
	InstructionsTotal    *prometheus.CounterVec
	InstructionDuration  *prometheus.HistogramVec
	ComputeUnitsConsumed *prometheus.HistogramVec
	FaucetBalance        *prometheus.GaugeVec
	AirdropsRateLimited  prometheus.Counter
	RPCRequestsTotal     *prometheus.CounterVec
	AccountsCount        prometheus.Gauge
}

// New creates a Metrics instance with its own registry. Go runtime and
// process collectors are registered alongside the faucet metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information of the faucet node",
			},
			[]string{"version"},
		),

		InstructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instructions_total",
				Help:      "Total number of executed instructions",
			},
			[]string{"program", "instruction", "result"},
		),

		InstructionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "instruction_duration_seconds",
				Help:      "Duration of instruction execution including commit",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14), // 50us to ~0.8s
			},
			[]string{"program", "instruction"},
		),

		ComputeUnitsConsumed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compute_units_consumed",
				Help:      "Compute units consumed per instruction",
				Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
			},
			[]string{"program"},
		),

		FaucetBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "balance_lamports",
				Help:      "Lamport balance of a faucet account after the last committed instruction",
			},
			[]string{"faucet"},
		),

		AirdropsRateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "airdrops_rate_limited_total",
				Help:      "Total number of airdrop requests rejected by the rate limiter",
			},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_requests_total",
				Help:      "Total number of JSON-RPC requests",
			},
			[]string{"method", "status"},
		),

		AccountsCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "accounts",
				Help:      "Number of accounts in the ledger",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetBuildInfo records the running version.
func (m *Metrics) SetBuildInfo(version string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
}

// ObserveInstruction records one executed top-level instruction.
func (m *Metrics) ObserveInstruction(program, instruction string, err error, d time.Duration, computeUnits uint64) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.InstructionsTotal.WithLabelValues(program, instruction, result).Inc()
	m.InstructionDuration.WithLabelValues(program, instruction).Observe(d.Seconds())
	m.ComputeUnitsConsumed.WithLabelValues(program).Observe(float64(computeUnits))
}

// SetFaucetBalance records the balance of a faucet account.
func (m *Metrics) SetFaucetBalance(faucet string, lamports uint64) {
	if m == nil {
		return
	}
	m.FaucetBalance.WithLabelValues(faucet).Set(float64(lamports))
}

// IncRateLimited counts a rejected airdrop request.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.AirdropsRateLimited.Inc()
}

// IncRPCRequest counts one JSON-RPC request.
func (m *Metrics) IncRPCRequest(method, status string) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
}

// SetAccountsCount records the number of stored accounts.
func (m *Metrics) SetAccountsCount(n uint64) {
	if m == nil {
		return
	}
	m.AccountsCount.Set(float64(n))
}
