package metrics

import (
	"errors"
	"testing"
	"time"
)

var _ Sink = (*NoopSink)(nil)

// All methods must be safe to call; nothing to assert beyond not panicking.
func TestNoopSink_AllMethods(t *testing.T) {
	s := NewNoopSink()

	s.TickStarted()
	s.TickCompleted(50*time.Millisecond, 2, nil)
	s.TickCompleted(50*time.Millisecond, 0, errors.New("store down"))
	s.TickDrift(10 * time.Millisecond)

	s.RunCompleted("product_validation", OutcomeSucceeded, 3*time.Second)
	s.RunCompleted("inventory", OutcomeIssuesFound, time.Second)
	s.RunsInFlightIncr()
	s.RunsInFlightDecr()

	s.ShopifyRequestCompleted(StatusClass2xx, 120*time.Millisecond)
	s.EmailSendCompleted(OutcomeSucceeded)

	s.BufferSizeUpdate(3)
	s.BufferCapacitySet(100)
	s.BufferSaturationUpdate(0.03)
	s.EmitError()

	s.AbandonedInvocationsUpdate(1)
	s.InvocationLatencyObserve(0.25)
}
