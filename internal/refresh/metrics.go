package refresh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds refresh and probe metrics.
type Metrics struct {
	runs          *prometheus.CounterVec
	joins         *prometheus.CounterVec
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
}

// Metric label values for run and join results.
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultPartial = "partial"
	resultJoined  = "joined"
	resultTimeout = "timeout"
)

// NewMetrics creates the metrics and registers them with reg when it is not
// nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "refresh_runs_total",
			Help:      "Refresh executions by result (ok, partial, failed).",
		}, []string{"result"}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "refresh_joins_total",
			Help:      "Refresh calls that joined an in-flight refresh, by result.",
		}, []string{"result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet",
			Name:      "account_probes_total",
			Help:      "Per-account refresh outcomes by provider and state.",
		}, []string{"provider", "state"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fleet",
			Name:      "probe_duration_seconds",
			Help:      "Duration of a single provider probe.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.runs, m.joins, m.probes, m.probeDuration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) recordRun(s *Summary, err error) {
	if m == nil {
		return
	}
	result := resultOK
	switch {
	case err != nil || s == nil:
		result = resultFailed
	case !s.OK:
		result = resultPartial
	}
	m.runs.WithLabelValues(result).Inc()
}

func (m *Metrics) recordJoin(err error) {
	if m == nil {
		return
	}
	result := resultJoined
	if err != nil {
		result = resultTimeout
	}
	m.joins.WithLabelValues(result).Inc()
}

func (m *Metrics) recordAccount(provider, state string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(provider, state).Inc()
}

func (m *Metrics) observeProbe(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.probeDuration.WithLabelValues(provider).Observe(d.Seconds())
}
