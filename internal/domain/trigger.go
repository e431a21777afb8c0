package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerEvent is emitted when a report invocation fires, either from the
// scheduler or from a manual dispatch.
type TriggerEvent struct {
	InvocationID uuid.UUID

	Report string
	Kind   InvocationKind

	ScheduledAt    time.Time // intended fire time (UTC)
	FiredAt        time.Time // actual emission time
	IdempotencyKey string

	CreatedAt time.Time
}
