// Package metrics exposes Prometheus instrumentation for the wallet engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wallet"

const (
	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	Broadcasts  *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec
	DeFiActions *prometheus.CounterVec
	SagaSteps   *prometheus.CounterVec
	Derivations *prometheus.CounterVec
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Signed transactions handed to a node, by chain and result.",
		}, []string{"chain", "result"}),
		RPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Latency of node RPC calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain", "method"}),
		DeFiActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defi_actions_total",
			Help:      "DeFi actions executed, by protocol, action and result.",
		}, []string{"protocol", "action", "result"}),
		SagaSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_steps_total",
			Help:      "Approve/act saga steps, by stage and result.",
		}, []string{"stage", "result"}),
		Derivations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_derivations_total",
			Help:      "Key pairs derived, by chain.",
		}, []string{"chain"}),
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func (m *Metrics) ObserveBroadcast(chain string, err error) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(chain, result(err)).Inc()
}

func (m *Metrics) ObserveRPC(chain string, method string, started time.Time) {
	if m == nil {
		return
	}
	m.RPCDuration.WithLabelValues(chain, method).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveDeFi(protocol string, action string, err error) {
	if m == nil {
		return
	}
	m.DeFiActions.WithLabelValues(protocol, action, result(err)).Inc()
}

func (m *Metrics) ObserveSagaStep(stage string, err error) {
	if m == nil {
		return
	}
	m.SagaSteps.WithLabelValues(stage, result(err)).Inc()
}

func (m *Metrics) ObserveDerivation(chain string) {
	if m == nil {
		return
	}
	m.Derivations.WithLabelValues(chain).Inc()
}
