package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/activator/internal/model"
	"github.com/slok/activator/internal/progress"
)

// Recorder records the activation metrics.
type Recorder interface {
	// ObserveOperation records a finished handler operation on a resource.
	ObserveOperation(ctx context.Context, kind model.ResourceKind, step model.Step, status progress.Status, duration time.Duration)
	ObservePollIteration(ctx context.Context)
	ObservePollTimeout(ctx context.Context)
}

// Noop is a Recorder that doesn't record anything.
var Noop Recorder = noop{}

type noop struct{}

func (noop) ObserveOperation(context.Context, model.ResourceKind, model.Step, progress.Status, time.Duration) {
}

func (noop) ObservePollIteration(context.Context) {}
func (noop) ObservePollTimeout(context.Context)   {}

// PrometheusConfig is the configuration of the Prometheus recorder.
type PrometheusConfig struct {
	Registerer prometheus.Registerer
	Namespace  string
	// Buckets are the operation duration histogram buckets in seconds.
	Buckets []float64
}

func (c *PrometheusConfig) defaults() error {
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
	if c.Namespace == "" {
		c.Namespace = "activator"
	}
	if len(c.Buckets) == 0 {
		// Operations go from milliseconds on synchronous providers to tens of minutes on jobs.
		c.Buckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800}
	}
	return nil
}

// Prometheus is a Recorder backed by Prometheus.
type Prometheus struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	pollIterations    prometheus.Counter
	pollTimeouts      prometheus.Counter
}

var _ Recorder = &Prometheus{}

// NewPrometheus returns a new Prometheus recorder with its metrics registered.
func NewPrometheus(cfg PrometheusConfig) (*Prometheus, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Prometheus{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "operations_total",
				Help:      "Total number of resource lifecycle operations by final status.",
			},
			[]string{"kind", "step", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of resource lifecycle operations, including the completion polling.",
				Buckets:   cfg.Buckets,
			},
			[]string{"kind", "step"},
		),
		pollIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "poll_iterations_total",
			Help:      "Total number of status queries of in progress operations.",
		}),
		pollTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "poll_timeouts_total",
			Help:      "Total number of in progress operations that reached the polling timeout.",
		}),
	}

	for _, c := range []prometheus.Collector{p.operations, p.operationDuration, p.pollIterations, p.pollTimeouts} {
		if err := cfg.Registerer.Register(c); err != nil {
			return nil, fmt.Errorf("could not register metrics: %w", err)
		}
	}

	return p, nil
}

func (p *Prometheus) ObserveOperation(_ context.Context, kind model.ResourceKind, step model.Step, status progress.Status, duration time.Duration) {
	p.operations.WithLabelValues(string(kind), string(step), string(status)).Inc()
	p.operationDuration.WithLabelValues(string(kind), string(step)).Observe(duration.Seconds())
}

func (p *Prometheus) ObservePollIteration(_ context.Context) { p.pollIterations.Inc() }

func (p *Prometheus) ObservePollTimeout(_ context.Context) { p.pollTimeouts.Inc() }
