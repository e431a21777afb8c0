package channel

import (
	"context"
	"errors"
	"time"

	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
)

// ErrBufferFull is returned when an emit times out because the buffer is full.
var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink defines the interface for recording event bus metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

type Option func(*EventBus)

// WithEmitTimeout bounds how long Emit blocks on a full buffer before
// returning ErrBufferFull. Zero means block until the context is done.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = sink
	}
}

// EventBus is a buffered in-process channel carrying trigger events from
// the scheduler (and manual dispatch) to the runner.
type EventBus struct {
	ch          chan domain.TriggerEvent
	emitTimeout time.Duration
	metrics     MetricsSink
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch: make(chan domain.TriggerEvent, buffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

func (b *EventBus) Emit(ctx context.Context, event domain.TriggerEvent) error {
	var timeout <-chan time.Time
	if b.emitTimeout > 0 {
		timer := time.NewTimer(b.emitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.ch <- event:
		b.updateBufferMetrics()
		return nil
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	case <-timeout:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.TriggerEvent {
	return b.ch
}

func (b *EventBus) updateBufferMetrics() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	b.metrics.BufferSizeUpdate(size)
	if cap(b.ch) > 0 {
		b.metrics.BufferSaturationUpdate(float64(size) / float64(cap(b.ch)))
	}
}
