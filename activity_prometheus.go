package auth

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusActivitySink counts activity events by type and provider
type PrometheusActivitySink struct {
	events *prometheus.CounterVec
}

// NewPrometheusActivitySink registers the event counter on reg
func NewPrometheusActivitySink(reg prometheus.Registerer) (*PrometheusActivitySink, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Authentication and session lifecycle events.",
	}, []string{"event", "provider"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			return nil, err
		}
	}

	return &PrometheusActivitySink{events: events}, nil
}

// Record implements ActivitySink
func (s *PrometheusActivitySink) Record(_ context.Context, event ActivityEvent) error {
	provider, _ := event.Metadata["provider"].(string)
	if provider == "" {
		provider = "password"
	}
	s.events.WithLabelValues(string(event.EventType), provider).Inc()
	return nil
}

// Collector exposes the underlying counter vector
func (s *PrometheusActivitySink) Collector() *prometheus.CounterVec {
	return s.events
}
