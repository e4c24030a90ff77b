package updatemanager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	processesTotal  *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	activeProcess   prometheus.Gauge
}

// newMetrics registers on reg; a nil reg keeps the collectors unregistered
func newMetrics(reg prometheus.Registerer) *metrics {
	promFactory := promauto.With(reg)
	return &metrics{
		processesTotal: promFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appupdate_processes_total",
				Help: "Total number of concluded update processes labelled by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		processDuration: promFactory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appupdate_process_duration_seconds",
				Help:    "Duration of update processes from start to conclusion",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		activeProcess: promFactory.NewGauge(prometheus.GaugeOpts{
			Name: "appupdate_process_active",
			Help: "1 while an update process is running",
		}),
	}
}

func (m *metrics) processStarted() {
	m.activeProcess.Set(1)
}

func (m *metrics) processConcluded(p *Process) {
	m.processesTotal.WithLabelValues(p.Kind().String(), p.Outcome().String()).Inc()
	m.processDuration.WithLabelValues(p.Kind().String()).Observe(time.Since(p.StartedAt()).Seconds())
}

func (m *metrics) processFinished() {
	m.activeProcess.Set(0)
}
