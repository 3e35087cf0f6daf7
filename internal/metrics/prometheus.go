package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink with Prometheus collectors.
// Registration errors are logged and never propagated.
type PrometheusSink struct {
	eventsDecoded   *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	unknownEvents   prometheus.Counter
	reduceDuration  prometheus.Histogram
	eventsReduced   prometheus.Counter
	contentResolved *prometheus.CounterVec
	sequenceGaps    prometheus.Counter

	logger *zap.Logger
}

func NewPrometheusSink(reg prometheus.Registerer, logger *zap.Logger) *PrometheusSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PrometheusSink{logger: logger}

	s.eventsDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobevents_events_decoded_total",
		Help: "Total number of job events decoded, by event type.",
	}, []string{"type"})
	s.decodeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobevents_decode_failures_total",
		Help: "Total number of job events whose payload could not be decoded.",
	}, []string{"type"})
	s.unknownEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobevents_unknown_events_total",
		Help: "Total number of job events with an unknown type tag.",
	})
	s.reduceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "jobevents_reduce_duration_seconds",
		Help:    "Duration of a full decode, reduce and diff pass in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	s.eventsReduced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobevents_events_reduced_total",
		Help: "Total number of events folded into job snapshots.",
	})
	s.contentResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobevents_content_resolutions_total",
		Help: "Total number of content resolution attempts, by kind and outcome.",
	}, []string{"kind", "outcome"})
	s.sequenceGaps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobevents_sequence_gaps_total",
		Help: "Total number of incremental appends rejected for a sequence gap.",
	})

	s.register(reg, s.eventsDecoded, "jobevents_events_decoded_total")
	s.register(reg, s.decodeFailures, "jobevents_decode_failures_total")
	s.register(reg, s.unknownEvents, "jobevents_unknown_events_total")
	s.register(reg, s.reduceDuration, "jobevents_reduce_duration_seconds")
	s.register(reg, s.eventsReduced, "jobevents_events_reduced_total")
	s.register(reg, s.contentResolved, "jobevents_content_resolutions_total")
	s.register(reg, s.sequenceGaps, "jobevents_sequence_gaps_total")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("metrics registration failed", zap.String("metric", name), zap.Error(err))
	}
}

func (s *PrometheusSink) EventDecoded(eventType string) {
	s.eventsDecoded.WithLabelValues(eventType).Inc()
}

func (s *PrometheusSink) DecodeFailed(eventType string) {
	s.decodeFailures.WithLabelValues(eventType).Inc()
}

func (s *PrometheusSink) UnknownEvent() {
	s.unknownEvents.Inc()
}

func (s *PrometheusSink) ReduceCompleted(events int, duration time.Duration) {
	s.reduceDuration.Observe(duration.Seconds())
	s.eventsReduced.Add(float64(events))
}

func (s *PrometheusSink) ContentResolved(kind string, ok bool) {
	outcome := "placeholder"
	if ok {
		outcome = "resolved"
	}
	s.contentResolved.WithLabelValues(kind, outcome).Inc()
}

func (s *PrometheusSink) SequenceGap() {
	s.sequenceGaps.Inc()
}
