// Package reconciler abandons stale invocations.
//
// An invocation is stale when it is still queued or running long after it
// fired, typically because the process crashed mid-run or a buffered event
// was lost. Since a report run gets exactly one attempt, a stale invocation
// is never re-emitted: the reconciler marks it failed so the history does
// not show it as forever in flight. The next scheduled firing produces a
// fresh invocation on its own.
package reconciler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
)

// Store defines the interface for finding and finalizing stale invocations.
type Store interface {
	GetStaleInvocations(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.Invocation, error)
	UpdateInvocationStatus(ctx context.Context, invocationID uuid.UUID, status domain.InvocationStatus) error
}

// Metrics receives reconciler instrumentation.
type Metrics interface {
	AbandonedInvocationsUpdate(count int)
}

type noopMetrics struct{}

func (noopMetrics) AbandonedInvocationsUpdate(int) {}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which a non-terminal invocation is
	// considered stale. Must comfortably exceed the run timeout.
	// Default: 45 minutes.
	Threshold time.Duration

	// BatchSize is the maximum number of stale invocations per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 45 * time.Minute,
		BatchSize: 100,
	}
}

// Reconciler marks stale invocations as failed.
type Reconciler struct {
	config  Config
	store   Store
	metrics Metrics
	clock   func() time.Time

	// terminalGuard is the error stores return for terminal invocations.
	terminalGuard error
}

// New creates a new Reconciler. terminalGuard is the sentinel error the
// store returns when an invocation is already terminal.
func New(config Config, store Store, terminalGuard error) *Reconciler {
	return &Reconciler{
		config:        config,
		store:         store,
		metrics:       noopMetrics{},
		clock:         time.Now,
		terminalGuard: terminalGuard,
	}
}

// WithMetrics attaches a metrics sink.
func (r *Reconciler) WithMetrics(m Metrics) *Reconciler {
	if m != nil {
		r.metrics = m
	}
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, threshold=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.BatchSize)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	stale, err := r.store.GetStaleInvocations(ctx, threshold, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to fetch stale invocations: %v", err)
		return
	}

	if len(stale) == 0 {
		r.metrics.AbandonedInvocationsUpdate(0)
		return
	}

	log.Printf("reconciler: found %d stale invocations", len(stale))

	abandoned := 0
	failed := 0

	for _, inv := range stale {
		// Check context before each update to allow graceful shutdown
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, processed %d/%d", abandoned+failed, len(stale))
			return
		}

		err := r.store.UpdateInvocationStatus(ctx, inv.ID, domain.InvocationStatusFailed)
		if err != nil {
			if r.terminalGuard != nil && errors.Is(err, r.terminalGuard) {
				// A runner finished it between the scan and the update.
				continue
			}
			log.Printf("reconciler: failed to abandon invocation=%s report=%s: %v", inv.ID, inv.Report, err)
			failed++
			continue
		}

		log.Printf("reconciler: abandoned invocation=%s report=%s fired_at=%s (age=%s)",
			inv.ID, inv.Report, inv.FiredAt.Format(time.RFC3339),
			now.Sub(inv.FiredAt).Round(time.Second))
		abandoned++
	}

	r.metrics.AbandonedInvocationsUpdate(abandoned)
	log.Printf("reconciler: cycle complete, abandoned=%d, failed=%d", abandoned, failed)
}
