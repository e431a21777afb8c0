package domain

import (
	"time"

	"github.com/google/uuid"
)

type InvocationKind string

const (
	InvocationKindScheduled InvocationKind = "scheduled"
	InvocationKindManual    InvocationKind = "manual"
)

type InvocationStatus string

const (
	InvocationStatusQueued    InvocationStatus = "queued"
	InvocationStatusRunning   InvocationStatus = "running"
	InvocationStatusSucceeded InvocationStatus = "succeeded"
	InvocationStatusFailed    InvocationStatus = "failed"
)

// IsTerminal reports whether the status is final. Terminal invocations
// never change status again.
func (s InvocationStatus) IsTerminal() bool {
	return s == InvocationStatusSucceeded || s == InvocationStatusFailed
}

// Invocation records that a report fired at a specific time.
type Invocation struct {
	ID uuid.UUID

	Report string
	Kind   InvocationKind

	ScheduledAt time.Time
	FiredAt     time.Time
	Status      InvocationStatus

	CreatedAt time.Time
}

// RunAttempt records one execution of a report body for an invocation.
type RunAttempt struct {
	ID           uuid.UUID
	InvocationID uuid.UUID

	ProductsChecked int
	IssuesFound     int
	ReportFile      string
	Error           string

	StartedAt  time.Time
	FinishedAt time.Time
}
