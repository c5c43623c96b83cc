package agent

import (
	"emperror.dev/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voluzi/pagepulse/pkg/sampler"
	"github.com/voluzi/pagepulse/pkg/snapshot"
)

const namespace = "pagepulse"

type metrics struct {
	running      prometheus.Gauge
	healthy      prometheus.Gauge
	stress       prometheus.Gauge
	domNodes     prometheus.Gauge
	resourceRate prometheus.Gauge
	errorRate    prometheus.Gauge
	longTaskRate prometheus.Gauge
	points       prometheus.Gauge
	samples      prometheus.Counter
	failures     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &metrics{
		running:      gauge("sampler_running", "Whether the sampler is running"),
		healthy:      gauge("sampler_healthy", "Whether the last collection succeeded"),
		stress:       gauge("stress_score", "Stress score of the latest point (0-100)"),
		domNodes:     gauge("dom_nodes", "Document node count of the latest sample"),
		resourceRate: gauge("resources_per_minute", "Network resources loaded per minute"),
		errorRate:    gauge("errors_per_minute", "Console errors per minute"),
		longTaskRate: gauge("long_tasks_per_minute", "Long tasks per minute"),
		points:       gauge("history_points", "Number of points retained in the history"),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total number of successful collections",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_failures_total",
			Help:      "Total number of failed collections",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.running, m.healthy, m.stress, m.domNodes,
		m.resourceRate, m.errorRate, m.longTaskRate, m.points,
		m.samples, m.failures,
	)
	return m
}

func (m *metrics) observe(u sampler.Update) {
	m.running.Set(boolToFloat(u.State == sampler.Running))
	m.healthy.Set(boolToFloat(u.Health == sampler.Healthy))
	m.points.Set(float64(len(u.View.Points)))

	if u.View.Totals != nil {
		m.domNodes.Set(float64(u.View.Totals.DOMNodes))
	}
	if u.View.Rates != nil {
		m.resourceRate.Set(u.View.Rates.ResourcePerMin)
		m.errorRate.Set(u.View.Rates.ErrorPerMin)
		m.longTaskRate.Set(u.View.Rates.LongTaskPerMin)
	}
	if n := len(u.View.Points); n > 0 {
		m.stress.Set(float64(u.View.Points[n-1].Stress))
	}

	if !u.Collected {
		return
	}
	if u.Err == nil {
		m.samples.Inc()
		return
	}
	m.failures.WithLabelValues(failureReason(u.Err)).Inc()
}

func failureReason(err error) string {
	var se *snapshot.SnapshotError
	if errors.As(err, &se) {
		return "snapshot"
	}
	return "collection"
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
