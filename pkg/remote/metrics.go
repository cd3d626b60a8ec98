// Copyright © 2018 One Concern

package remote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "otarepo"

// M describes metrics for remote calls
type M struct {
	Calls   *prometheus.CounterVec
	Latency *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*M, error) {
	if reg == nil {
		return nil, nil
	}
	m := &M{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "number of calls to the remote repository, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "remote",
			Name:      "call_duration_seconds",
			Help:      "duration of calls to the remote repository, by endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	var err error
	if m.Calls, err = register(reg, m.Calls); err != nil {
		return nil, err
	}
	if m.Latency, err = register(reg, m.Latency); err != nil {
		return nil, err
	}
	return m, nil
}

// register a collector, or reuse the one already registered
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, err
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return c, err
		}
		return existing, nil
	}
	return c, nil
}

// record the outcome of a call
func (m *M) record(endpoint string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Calls.WithLabelValues(endpoint, outcome).Inc()
	m.Latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
