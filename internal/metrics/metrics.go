// Package metrics records pipeline activity.
package metrics

import "time"

// Sink receives pipeline measurements. All methods must be non-blocking.
type Sink interface {
	EventDecoded(eventType string)
	DecodeFailed(eventType string)
	UnknownEvent()
	ReduceCompleted(events int, duration time.Duration)
	ContentResolved(kind string, ok bool)
	SequenceGap()
}

// NoopSink discards everything.
type NoopSink struct{}

func (NoopSink) EventDecoded(string)                {}
func (NoopSink) DecodeFailed(string)                {}
func (NoopSink) UnknownEvent()                      {}
func (NoopSink) ReduceCompleted(int, time.Duration) {}
func (NoopSink) ContentResolved(string, bool)       {}
func (NoopSink) SequenceGap()                       {}

// OrNoop returns s, or a NoopSink when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return NoopSink{}
	}
	return s
}
