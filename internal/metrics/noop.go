package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                        {}
func (n *NoopSink) TickCompleted(duration time.Duration, reportsTriggered int, e error) {}
func (n *NoopSink) TickDrift(drift time.Duration)                                       {}
func (n *NoopSink) RunCompleted(report, outcome string, duration time.Duration)         {}
func (n *NoopSink) RunsInFlightIncr()                                                   {}
func (n *NoopSink) RunsInFlightDecr()                                                   {}
func (n *NoopSink) ShopifyRequestCompleted(statusClass string, d time.Duration)         {}
func (n *NoopSink) EmailSendCompleted(outcome string)                                   {}
func (n *NoopSink) BufferSizeUpdate(size int)                                           {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                      {}
func (n *NoopSink) BufferSaturationUpdate(saturation float64)                           {}
func (n *NoopSink) EmitError()                                                          {}
func (n *NoopSink) AbandonedInvocationsUpdate(count int)                                {}
func (n *NoopSink) InvocationLatencyObserve(latencySeconds float64)                     {}
