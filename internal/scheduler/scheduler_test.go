package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
)

// mockStore tracks invocations and enforces idempotency.
type mockStore struct {
	mu          sync.Mutex
	invocations map[string]domain.Invocation // key: report + scheduled_at
}

func newMockStore() *mockStore {
	return &mockStore{
		invocations: make(map[string]domain.Invocation),
	}
}

func (s *mockStore) InsertInvocation(ctx context.Context, inv domain.Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inv.Report + "|" + inv.ScheduledAt.Format(time.RFC3339)
	if _, exists := s.invocations[key]; exists {
		return ErrDuplicateInvocation
	}
	s.invocations[key] = inv
	return nil
}

func (s *mockStore) invocationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invocations)
}

// mockEmitter tracks emitted events.
type mockEmitter struct {
	mu     sync.Mutex
	events []domain.TriggerEvent
}

func (e *mockEmitter) Emit(ctx context.Context, event domain.TriggerEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *mockEmitter) eventCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

// mockCronParser returns a schedule that fires at fixed times.
type mockCronParser struct {
	fireTimes []time.Time
}

func (p *mockCronParser) Parse(expression string, timezone string) (CronSchedule, error) {
	return &mockCronSchedule{fireTimes: p.fireTimes}, nil
}

type mockCronSchedule struct {
	fireTimes []time.Time
}

func (s *mockCronSchedule) Next(after time.Time) time.Time {
	for _, t := range s.fireTimes {
		if t.After(after) {
			return t
		}
	}
	// Return far future if no more fire times
	return after.Add(24 * time.Hour)
}

func testReport(name string) domain.Report {
	return domain.Report{
		Name:    name,
		Enabled: true,
		Schedule: domain.Schedule{
			CronExpression: "0 14 * * 1",
			Timezone:       "UTC",
		},
	}
}

// TestScheduler_Idempotency_SameReportSameTime verifies that the scheduler
// cannot create duplicate invocations for the same (report, scheduled_at).
func TestScheduler_Idempotency_SameReportSameTime(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	// Fire time that will be within our tick window
	fireTime := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

	parser := &mockCronParser{fireTimes: []time.Time{fireTime}}

	sched := New(
		Config{TickInterval: time.Minute},
		[]domain.Report{testReport("product_validation")},
		store,
		parser,
		emitter,
	)

	// Simulate clock at fire time + 30 seconds
	now := fireTime.Add(30 * time.Second)
	sched.clock = func() time.Time { return now }
	sched.lastTick = fireTime.Add(-time.Minute) // Last tick was before fire time

	ctx := context.Background()

	// First tick - should create invocation
	err := sched.processTick(ctx)
	if err != nil {
		t.Fatalf("first tick failed: %v", err)
	}

	if store.invocationCount() != 1 {
		t.Errorf("expected 1 invocation after first tick, got %d", store.invocationCount())
	}
	if emitter.eventCount() != 1 {
		t.Errorf("expected 1 event after first tick, got %d", emitter.eventCount())
	}

	// Reset lastTick to simulate overlapping tick or restart
	sched.lastTick = fireTime.Add(-time.Minute)

	// Second tick with same time window - should NOT create duplicate
	err = sched.processTick(ctx)
	if err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	// Still only 1 invocation (idempotent)
	if store.invocationCount() != 1 {
		t.Errorf("expected 1 invocation after second tick (idempotent), got %d", store.invocationCount())
	}

	// Event count should also be 1 (no duplicate emit)
	if emitter.eventCount() != 1 {
		t.Errorf("expected 1 event after second tick (idempotent), got %d", emitter.eventCount())
	}
}

// TestScheduler_Idempotency_AcrossTicks verifies idempotency is maintained
// even when the scheduler processes the same fire time across multiple ticks.
func TestScheduler_Idempotency_AcrossTicks(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	fireTime := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	parser := &mockCronParser{fireTimes: []time.Time{fireTime}}

	sched := New(
		Config{TickInterval: 30 * time.Second},
		[]domain.Report{testReport("product_validation")},
		store,
		parser,
		emitter,
	)

	ctx := context.Background()

	// Tick 1: 13:59:30 -> 14:00:00 (fire time is in window)
	sched.clock = func() time.Time { return fireTime }
	sched.lastTick = fireTime.Add(-30 * time.Second)
	_ = sched.processTick(ctx)

	// Tick 2: 14:00:00 -> 14:00:30 (overlapping due to clock skew or restart)
	// lastTick might be reset to before fire time
	sched.clock = func() time.Time { return fireTime.Add(30 * time.Second) }
	sched.lastTick = fireTime.Add(-30 * time.Second) // Simulate restart
	_ = sched.processTick(ctx)

	// Tick 3: Another attempt at same window
	sched.clock = func() time.Time { return fireTime.Add(45 * time.Second) }
	sched.lastTick = fireTime.Add(-15 * time.Second)
	_ = sched.processTick(ctx)

	// Should still have exactly 1 invocation
	if store.invocationCount() != 1 {
		t.Errorf("expected exactly 1 invocation across all ticks, got %d", store.invocationCount())
	}
}

// TestScheduler_DifferentReportsSameTime verifies that different reports can
// have invocations at the same scheduled time.
func TestScheduler_DifferentReportsSameTime(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	fireTime := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	parser := &mockCronParser{fireTimes: []time.Time{fireTime}}

	sched := New(
		Config{TickInterval: time.Minute},
		[]domain.Report{testReport("product_validation"), testReport("inventory")},
		store,
		parser,
		emitter,
	)

	sched.clock = func() time.Time { return fireTime.Add(30 * time.Second) }
	sched.lastTick = fireTime.Add(-time.Minute)

	ctx := context.Background()
	_ = sched.processTick(ctx)

	// Should have 2 invocations (one per report)
	if store.invocationCount() != 2 {
		t.Errorf("expected 2 invocations (one per report), got %d", store.invocationCount())
	}
}

// TestScheduler_SameReportDifferentTimes verifies that the same report can
// have multiple invocations at different scheduled times.
func TestScheduler_SameReportDifferentTimes(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	fireTime1 := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	fireTime2 := time.Date(2024, 1, 22, 14, 0, 0, 0, time.UTC)

	parser := &mockCronParser{fireTimes: []time.Time{fireTime1, fireTime2}}

	sched := New(
		Config{TickInterval: time.Minute},
		[]domain.Report{testReport("product_validation")},
		store,
		parser,
		emitter,
	)

	sched.clock = func() time.Time { return fireTime2.Add(30 * time.Second) }
	sched.lastTick = fireTime1.Add(-time.Minute)

	ctx := context.Background()
	_ = sched.processTick(ctx)

	// Should have 2 invocations (same report, different times)
	if store.invocationCount() != 2 {
		t.Errorf("expected 2 invocations (different times), got %d", store.invocationCount())
	}
}

// TestScheduler_DisabledReportDoesNotFire verifies that disabled reports are
// skipped entirely.
func TestScheduler_DisabledReportDoesNotFire(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	fireTime := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	parser := &mockCronParser{fireTimes: []time.Time{fireTime}}

	report := testReport("inventory")
	report.Enabled = false

	sched := New(
		Config{TickInterval: time.Minute},
		[]domain.Report{report},
		store,
		parser,
		emitter,
	)

	sched.clock = func() time.Time { return fireTime.Add(30 * time.Second) }
	sched.lastTick = fireTime.Add(-time.Minute)

	ctx := context.Background()
	_ = sched.processTick(ctx)

	if store.invocationCount() != 0 {
		t.Errorf("expected 0 invocations for disabled report, got %d", store.invocationCount())
	}
}

// TestScheduler_NoFireOutsideWindow verifies that a fire time after the
// current tick is not emitted early.
func TestScheduler_NoFireOutsideWindow(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	fireTime := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	parser := &mockCronParser{fireTimes: []time.Time{fireTime}}

	sched := New(
		Config{TickInterval: time.Minute},
		[]domain.Report{testReport("product_validation")},
		store,
		parser,
		emitter,
	)

	// Tick window ends two minutes before the fire time.
	sched.clock = func() time.Time { return fireTime.Add(-2 * time.Minute) }
	sched.lastTick = fireTime.Add(-3 * time.Minute)

	ctx := context.Background()
	_ = sched.processTick(ctx)

	if store.invocationCount() != 0 {
		t.Errorf("expected 0 invocations before fire time, got %d", store.invocationCount())
	}
}

// TestScheduler_EmittedEventCarriesIdempotencyKey verifies the event payload.
func TestScheduler_EmittedEventCarriesIdempotencyKey(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}

	fireTime := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	parser := &mockCronParser{fireTimes: []time.Time{fireTime}}

	sched := New(
		Config{TickInterval: time.Minute},
		[]domain.Report{testReport("product_validation")},
		store,
		parser,
		emitter,
	)

	sched.clock = func() time.Time { return fireTime.Add(30 * time.Second) }
	sched.lastTick = fireTime.Add(-time.Minute)

	ctx := context.Background()
	_ = sched.processTick(ctx)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(emitter.events))
	}
	ev := emitter.events[0]
	if ev.Report != "product_validation" {
		t.Errorf("event report = %q, want product_validation", ev.Report)
	}
	if ev.Kind != domain.InvocationKindScheduled {
		t.Errorf("event kind = %q, want scheduled", ev.Kind)
	}
	if !ev.ScheduledAt.Equal(fireTime) {
		t.Errorf("event scheduled_at = %s, want %s", ev.ScheduledAt, fireTime)
	}
	want := generateIdempotencyKey("product_validation", fireTime)
	if ev.IdempotencyKey != want {
		t.Errorf("idempotency key = %q, want %q", ev.IdempotencyKey, want)
	}
	if ev.InvocationID == uuid.Nil {
		t.Error("expected non-zero invocation ID")
	}
}
