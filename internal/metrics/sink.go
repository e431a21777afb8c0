package metrics

import (
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Scheduler metrics
	TickStarted()
	TickCompleted(duration time.Duration, reportsTriggered int, err error)
	TickDrift(drift time.Duration)

	// Runner metrics
	RunCompleted(report string, outcome string, duration time.Duration)
	RunsInFlightIncr()
	RunsInFlightDecr()

	// Outbound client metrics
	ShopifyRequestCompleted(statusClass string, duration time.Duration)
	EmailSendCompleted(outcome string)

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()

	// Reconciler metrics
	AbandonedInvocationsUpdate(count int)
	InvocationLatencyObserve(latencySeconds float64)
}

// Outcome constants for RunCompleted and EmailSendCompleted metrics.
// Bounded cardinality; every runner exit maps to exactly one value.
const (
	OutcomeSucceeded      = "succeeded"
	OutcomeIssuesFound    = "issues_found"
	OutcomeError          = "error"
	OutcomeMissingBinding = "missing_binding"
	OutcomeUnknownReport  = "unknown_report"
)

// StatusClass constants for ShopifyRequestCompleted.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
			return StatusClassTimeout
		}
		if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") ||
			strings.Contains(errStr, "network is unreachable") || strings.Contains(errStr, "dial") {
			return StatusClassConnectionError
		}
		return StatusClassOtherError
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
