package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for gateway operations.
type Observer interface {
	RecordOperation(op string, duration time.Duration, err error)
}

// PrometheusObserver exports gateway metrics to Prometheus.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewPrometheusObserver registers the gateway metrics with reg, or with the
// default registerer when reg is nil.
func NewPrometheusObserver(project string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{}
	if project != "" {
		labels["project"] = project
	}

	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "corner",
			Subsystem:   "storage",
			Name:        "operation_duration_seconds",
			Help:        "Latency of object storage gateway operations.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "corner",
			Subsystem:   "storage",
			Name:        "operation_errors_total",
			Help:        "Count of failed object storage gateway operations.",
			ConstLabels: labels,
		}, []string{"operation"}),
	}

	c, err := register(reg, o.duration)
	if err != nil {
		return nil, err
	}
	o.duration = c.(*prometheus.HistogramVec)

	if c, err = register(reg, o.errors); err != nil {
		return nil, err
	}
	o.errors = c.(*prometheus.CounterVec)
	return o, nil
}

// register returns the collector to use, which is the previously registered
// one when an identical metric already exists.
func register(reg prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, fmt.Errorf("register storage metric: %w", err)
	}
	return c, nil
}

// RecordOperation tracks the duration and failure of op.
func (o *PrometheusObserver) RecordOperation(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) RecordOperation(string, time.Duration, error) {}
