// Package observe records OpenTelemetry metrics for speech sessions, remote
// calls and HTTP requests. InitProvider bridges them to a Prometheus registry
// so they can be scraped from /metrics.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"mimitomo/internal/domain"
)

const meterName = "mimitomo"

// Metrics holds the instruments. It implements ports.SessionMetrics and
// ports.RemoteMetrics.
type Metrics struct {
	SessionStarts        metric.Int64Counter
	SessionRestarts      metric.Int64Counter
	SessionFinalizations metric.Int64Counter
	SessionEngineErrors  metric.Int64Counter
	RemoteDuration       metric.Float64Histogram
	HTTPRequestDuration  metric.Float64Histogram
	EventSubscribers     metric.Int64UpDownCounter
}

// latencyBuckets are in seconds and cover storage round trips up to slow
// model replies.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionStarts, err = m.Int64Counter("mimitomo.session.starts",
		metric.WithDescription("Speech sessions started by session and mode."),
	); err != nil {
		return nil, err
	}
	if met.SessionRestarts, err = m.Int64Counter("mimitomo.session.restarts",
		metric.WithDescription("Ambient engine restarts by session."),
	); err != nil {
		return nil, err
	}
	if met.SessionFinalizations, err = m.Int64Counter("mimitomo.session.finalizations",
		metric.WithDescription("Command transcripts finalized by session."),
	); err != nil {
		return nil, err
	}
	if met.SessionEngineErrors, err = m.Int64Counter("mimitomo.session.engine_errors",
		metric.WithDescription("Recognition errors by session and kind."),
	); err != nil {
		return nil, err
	}
	if met.RemoteDuration, err = m.Float64Histogram("mimitomo.remote.duration",
		metric.WithDescription("Latency of persistence and generative calls by op and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mimitomo.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.EventSubscribers, err = m.Int64UpDownCounter("mimitomo.events.subscribers",
		metric.WithDescription("Connected event stream clients."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) SessionStarted(session string, mode domain.SessionMode) {
	m.SessionStarts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("session", session),
		attribute.String("mode", string(mode)),
	))
}

func (m *Metrics) SessionRestarted(session string) {
	m.SessionRestarts.Add(context.Background(), 1, metric.WithAttributes(attribute.String("session", session)))
}

func (m *Metrics) SessionFinalized(session string) {
	m.SessionFinalizations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("session", session)))
}

func (m *Metrics) EngineError(session string, kind domain.ErrorKind) {
	m.SessionEngineErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("session", session),
		attribute.String("kind", string(kind)),
	))
}

func (m *Metrics) RemoteCall(op string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RemoteDuration.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// SubscriberJoined and SubscriberLeft track live event stream clients.
func (m *Metrics) SubscriberJoined() {
	m.EventSubscribers.Add(context.Background(), 1)
}

func (m *Metrics) SubscriberLeft() {
	m.EventSubscribers.Add(context.Background(), -1)
}
