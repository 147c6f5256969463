package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/notification"
	"github.com/JakeFAU/batchwatch/internal/progress"
)

// PrometheusSink exports dashboard state via Prometheus. It owns all
// collectors for handled notifications, progress, job statuses and units.
type PrometheusSink struct {
	notifications  *prometheus.CounterVec
	resets         prometheus.Counter
	progress       prometheus.Gauge
	jobs           *prometheus.GaugeVec
	unitsExecuted  prometheus.Gauge
	unitsToExecute prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batchwatch_notifications_total",
			Help: "Notifications handled partitioned by operation type and outcome.",
		}, []string{"operation_type", "outcome"}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batchwatch_dashboard_resets_total",
			Help: "Times the dashboard was reinitialized.",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batchwatch_progress_percent",
			Help: "Insert progress of the tracked process.",
		}),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batchwatch_jobs",
			Help: "Job slots of the tracked process partitioned by status.",
		}, []string{"status"}),
		unitsExecuted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batchwatch_units_executed",
			Help: "Units executed across all jobs of the tracked process.",
		}),
		unitsToExecute: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "batchwatch_units_to_execute",
			Help: "Units the tracked process will execute.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.notifications,
		s.resets,
		s.progress,
		s.jobs,
		s.unitsExecuted,
		s.unitsToExecute,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register dashboard collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Update) error {
	for _, u := range batch {
		s.consumeUpdate(u)
	}
	return nil
}

func (s *PrometheusSink) consumeUpdate(u progress.Update) {
	s.notifications.WithLabelValues(operationLabel(u.OperationType), string(u.Outcome)).Inc()
	if u.Outcome == dashboard.OutcomeReset {
		s.resets.Inc()
	}
	if !u.Changed() {
		return
	}
	s.observeView(u.View)
}

// operationLabel keeps the operation_type label to a fixed set of values.
func operationLabel(op notification.OperationType) string {
	switch {
	case op == "":
		return "none"
	case op.Known():
		return string(op)
	default:
		return "other"
	}
}

func (s *PrometheusSink) observeView(v dashboard.View) {
	s.progress.Set(v.Progress)
	s.unitsExecuted.Set(float64(v.UnitsExecuted))
	s.unitsToExecute.Set(float64(v.UnitsToExecute))

	counts := map[dashboard.JobStatus]int{
		dashboard.StatusPending:    0,
		dashboard.StatusCompleted:  0,
		dashboard.StatusFailed:     0,
		dashboard.StatusTerminated: 0,
	}
	for _, job := range v.Jobs {
		counts[job.Status]++
	}
	for status, n := range counts {
		s.jobs.WithLabelValues(string(status)).Set(float64(n))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
