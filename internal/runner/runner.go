package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenartsandletters/shopify-reports/internal/config"
	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
	"github.com/kitchenartsandletters/shopify-reports/internal/metrics"
	"github.com/kitchenartsandletters/shopify-reports/internal/report"
)

// ErrStatusTransitionDenied is returned when a status update would regress
// from a terminal state (succeeded/failed).
var ErrStatusTransitionDenied = errors.New("status transition denied: invocation already in terminal state")

// DefaultRunTimeout bounds a single report run.
const DefaultRunTimeout = 30 * time.Minute

// DefaultDrainTimeout is the maximum time to wait for buffered events during shutdown.
const DefaultDrainTimeout = 30 * time.Second

type Store interface {
	InsertRunAttempt(ctx context.Context, attempt domain.RunAttempt) error
	// UpdateInvocationStatus sets the invocation status. Implementations MUST
	// reject transitions from terminal states (succeeded/failed) and return
	// ErrStatusTransitionDenied. This ensures idempotency on replay.
	UpdateInvocationStatus(ctx context.Context, invocationID uuid.UUID, status domain.InvocationStatus) error
}

type AnalyticsSink interface {
	Record(ctx context.Context, event domain.TriggerEvent, config domain.AnalyticsConfig)
}

// MetricsSink defines the interface for recording runner metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	RunCompleted(report string, outcome string, duration time.Duration)
	RunsInFlightIncr()
	RunsInFlightDecr()
	InvocationLatencyObserve(latencySeconds float64)
}

// Runner executes report bodies for trigger events. A run gets exactly one
// attempt: any error is fatal for the invocation and surfaces through the
// stored status, never through retries.
type Runner struct {
	store    Store
	reports  map[string]report.Report
	catalog  map[string]domain.Report
	bindings func() config.Bindings

	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled

	runTimeout   time.Duration
	drainTimeout time.Duration
	clock        func() time.Time
}

func New(store Store, catalog []domain.Report, reports []report.Report, bindings func() config.Bindings) *Runner {
	r := &Runner{
		store:        store,
		reports:      make(map[string]report.Report, len(reports)),
		catalog:      make(map[string]domain.Report, len(catalog)),
		bindings:     bindings,
		runTimeout:   DefaultRunTimeout,
		drainTimeout: DefaultDrainTimeout,
		clock:        time.Now,
	}
	for _, rep := range reports {
		r.reports[rep.Name()] = rep
	}
	for _, entry := range catalog {
		r.catalog[entry.Name] = entry
	}
	return r
}

func (r *Runner) WithAnalytics(sink AnalyticsSink) *Runner {
	r.analytics = sink
	return r
}

// WithMetrics attaches a metrics sink to the runner.
func (r *Runner) WithMetrics(sink MetricsSink) *Runner {
	r.metrics = sink
	return r
}

func (r *Runner) WithRunTimeout(d time.Duration) *Runner {
	if d > 0 {
		r.runTimeout = d
	}
	return r
}

func (r *Runner) WithDrainTimeout(d time.Duration) *Runner {
	if d > 0 {
		r.drainTimeout = d
	}
	return r
}

// Run processes events from the channel until context is cancelled.
// After cancellation, it drains remaining buffered events with a timeout.
func (r *Runner) Run(ctx context.Context, ch <-chan domain.TriggerEvent) {
	for {
		select {
		case <-ctx.Done():
			r.drain(ch)
			return
		case event := <-ch:
			if err := r.Process(ctx, event); err != nil {
				log.Printf("runner: error: %v", err)
			}
		}
	}
}

// drain processes remaining events in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (r *Runner) drain(ch <-chan domain.TriggerEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("runner: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("runner: drain complete, processed %d events", count)
				return
			}
			if err := r.Process(drainCtx, event); err != nil {
				log.Printf("runner: drain error: %v", err)
			}
			count++
		default:
			// No more buffered events
			if count > 0 {
				log.Printf("runner: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// Process runs the report named by the event and records the outcome.
func (r *Runner) Process(ctx context.Context, event domain.TriggerEvent) error {
	if r.metrics != nil {
		r.metrics.RunsInFlightIncr()
		defer r.metrics.RunsInFlightDecr()
	}

	entry, known := r.catalog[event.Report]
	rep, runnable := r.reports[event.Report]
	if !known || !runnable {
		r.recordOutcome(event.Report, metrics.OutcomeUnknownReport, 0)
		r.finish(ctx, event, domain.InvocationStatusFailed)
		return fmt.Errorf("unknown report %q", event.Report)
	}

	// Analytics counts invocations, not successful runs.
	r.writeAnalytics(ctx, event, entry)

	if err := r.store.UpdateInvocationStatus(ctx, event.InvocationID, domain.InvocationStatusRunning); err != nil {
		if errors.Is(err, ErrStatusTransitionDenied) {
			// Invocation already terminal (likely reprocessing). Safe to ignore.
			log.Printf("runner: report=%s invocation=%s already terminal, skipping", event.Report, event.InvocationID)
			return nil
		}
		return fmt.Errorf("mark running: %w", err)
	}

	// Every one of the five bindings must be present before the report body
	// starts; a missing one fails the invocation without a partial run.
	if missing := r.bindings().Missing(); len(missing) > 0 {
		now := r.clock().UTC()
		r.recordAttempt(ctx, event, report.Result{}, fmt.Sprintf("missing bindings: %s", strings.Join(missing, ", ")), now, now)
		r.recordOutcome(event.Report, metrics.OutcomeMissingBinding, 0)
		r.finish(ctx, event, domain.InvocationStatusFailed)
		return fmt.Errorf("report %s: missing bindings: %s", event.Report, strings.Join(missing, ", "))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	startedAt := r.clock().UTC()
	result, runErr := rep.Run(runCtx)
	finishedAt := r.clock().UTC()
	duration := finishedAt.Sub(startedAt)

	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	r.recordAttempt(ctx, event, result, errText, startedAt, finishedAt)

	if r.metrics != nil {
		r.metrics.InvocationLatencyObserve(finishedAt.Sub(event.ScheduledAt).Seconds())
	}

	switch {
	case runErr != nil:
		log.Printf("runner: report=%s failed: %v", event.Report, runErr)
		r.recordOutcome(event.Report, metrics.OutcomeError, duration)
		r.finish(ctx, event, domain.InvocationStatusFailed)
		return nil
	case result.IssuesFound > 0:
		// Issues are the report working as intended, but the invocation is
		// recorded as failed so the history shows which weeks needed action.
		log.Printf("runner: report=%s found %d products with issues", event.Report, result.IssuesFound)
		r.recordOutcome(event.Report, metrics.OutcomeIssuesFound, duration)
		r.finish(ctx, event, domain.InvocationStatusFailed)
		return nil
	default:
		log.Printf("runner: report=%s succeeded, checked %d products", event.Report, result.ProductsChecked)
		r.recordOutcome(event.Report, metrics.OutcomeSucceeded, duration)
		r.finish(ctx, event, domain.InvocationStatusSucceeded)
		return nil
	}
}

func (r *Runner) recordAttempt(ctx context.Context, event domain.TriggerEvent, result report.Result, errText string, startedAt, finishedAt time.Time) {
	attempt := domain.RunAttempt{
		ID:              uuid.New(),
		InvocationID:    event.InvocationID,
		ProductsChecked: result.ProductsChecked,
		IssuesFound:     result.IssuesFound,
		ReportFile:      result.ReportFile,
		Error:           errText,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
	}
	if err := r.store.InsertRunAttempt(ctx, attempt); err != nil {
		log.Printf("runner: failed to record attempt: %v", err)
	}
}

func (r *Runner) recordOutcome(reportName, outcome string, duration time.Duration) {
	if r.metrics != nil {
		r.metrics.RunCompleted(reportName, outcome, duration)
	}
}

func (r *Runner) finish(ctx context.Context, event domain.TriggerEvent, status domain.InvocationStatus) {
	if err := r.store.UpdateInvocationStatus(ctx, event.InvocationID, status); err != nil {
		if errors.Is(err, ErrStatusTransitionDenied) {
			log.Printf("runner: report=%s invocation=%s already terminal, skipping status update", event.Report, event.InvocationID)
			return
		}
		log.Printf("runner: failed to update invocation status: %v", err)
	}
}

func (r *Runner) writeAnalytics(ctx context.Context, event domain.TriggerEvent, entry domain.Report) {
	if r.analytics == nil {
		if entry.Analytics.Enabled {
			log.Printf("runner: report=%s analytics enabled but no sink configured", event.Report)
		}
		return
	}
	if !entry.Analytics.Enabled {
		return
	}
	r.analytics.Record(ctx, event, entry.Analytics)
}
