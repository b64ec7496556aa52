package scope

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts scope activity. A nil *Metrics is valid and counts nothing,
// so callers without a metrics pipeline pass nothing at all.
type Metrics struct {
	ScopesRun         prometheus.Counter
	ScopeFailures     prometheus.Counter
	ResourcesAcquired prometheus.Counter
	ReleaseFailures   prometheus.Counter
}

// NewMetrics builds and registers the scope counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScopesRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "goioc_scopes_run_total",
			Help: "Scopes executed, success or failure.",
		}),
		ScopeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "goioc_scope_failures_total",
			Help: "Scopes that finished with an error (resolution, task or release).",
		}),
		ResourcesAcquired: factory.NewCounter(prometheus.CounterOpts{
			Name: "goioc_resources_acquired_total",
			Help: "Resource instances acquired across all scopes.",
		}),
		ReleaseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "goioc_release_failures_total",
			Help: "ReleaseAll invocations that reported at least one failure.",
		}),
	}
}

func (m *Metrics) incRun() {
	if m != nil {
		m.ScopesRun.Inc()
	}
}

func (m *Metrics) incFailure() {
	if m != nil {
		m.ScopeFailures.Inc()
	}
}

func (m *Metrics) incAcquired() {
	if m != nil {
		m.ResourcesAcquired.Inc()
	}
}

func (m *Metrics) incReleaseFailure() {
	if m != nil {
		m.ReleaseFailures.Inc()
	}
}
