package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
)

var ErrDuplicateInvocation = errors.New("invocation already exists")

type Store interface {
	InsertInvocation(ctx context.Context, inv domain.Invocation) error
}

type CronParser interface {
	Parse(expression string, timezone string) (CronSchedule, error)
}

type CronSchedule interface {
	Next(after time.Time) time.Time
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.TriggerEvent) error
}

// Metrics receives scheduler instrumentation. All calls are fire-and-forget.
type Metrics interface {
	TickStarted()
	TickCompleted(duration time.Duration, reportsTriggered int, err error)
	TickDrift(drift time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) TickStarted()                            {}
func (noopMetrics) TickCompleted(time.Duration, int, error) {}
func (noopMetrics) TickDrift(time.Duration)                 {}

type Config struct {
	TickInterval time.Duration
}

// Scheduler walks the report catalog on every tick and emits an invocation
// for each cron firing that fell between the previous tick and now. The
// catalog is fixed at construction; reports are declared in configuration.
type Scheduler struct {
	config   Config
	catalog  []domain.Report
	store    Store
	parser   CronParser
	emitter  EventEmitter
	metrics  Metrics
	clock    func() time.Time
	lastTick time.Time
}

type Option func(*Scheduler)

func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func New(config Config, catalog []domain.Report, store Store, parser CronParser, emitter EventEmitter, opts ...Option) *Scheduler {
	s := &Scheduler{
		config:  config,
		catalog: catalog,
		store:   store,
		parser:  parser,
		emitter: emitter,
		metrics: noopMetrics{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Printf("scheduler: started, tick=%s reports=%d", s.config.TickInterval, len(s.catalog))
	s.lastTick = s.clock().UTC()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.processTick(ctx); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context) error {
	s.metrics.TickStarted()
	start := s.clock().UTC()

	if !s.lastTick.IsZero() {
		s.metrics.TickDrift(start.Sub(s.lastTick) - s.config.TickInterval)
	}

	triggered := 0
	var firstErr error
	for _, report := range s.catalog {
		if !report.Enabled {
			continue
		}
		n, err := s.processReport(ctx, report, s.lastTick, start)
		triggered += n
		if err != nil {
			log.Printf("scheduler: report %s error: %v", report.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.lastTick = start
	s.metrics.TickCompleted(s.clock().UTC().Sub(start), triggered, firstErr)
	return firstErr
}

func (s *Scheduler) processReport(ctx context.Context, report domain.Report, lastTick, now time.Time) (int, error) {
	schedule := report.Schedule

	tz := schedule.Timezone
	if tz == "" {
		tz = "UTC"
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("load tz %s: %w", tz, err)
	}

	lastTickInTZ := lastTick.In(loc)
	nowInTZ := now.In(loc)

	cronSched, err := s.parser.Parse(schedule.CronExpression, tz)
	if err != nil {
		return 0, fmt.Errorf("parse cron: %w", err)
	}

	// Loop through all due times since last tick
	const maxIterations = 1000
	triggered := 0
	t := cronSched.Next(lastTickInTZ)

	for i := 0; i < maxIterations && !t.After(nowInTZ); i++ {
		scheduledAtUTC := t.UTC().Truncate(time.Minute)

		if err := s.emitInvocation(ctx, report, scheduledAtUTC, now); err != nil {
			log.Printf("scheduler: report %s at %s error: %v", report.Name, scheduledAtUTC.Format(time.RFC3339), err)
		} else {
			triggered++
		}

		t = cronSched.Next(t)
	}

	return triggered, nil
}

func (s *Scheduler) emitInvocation(ctx context.Context, report domain.Report, scheduledAt, now time.Time) error {
	idempotencyKey := generateIdempotencyKey(report.Name, scheduledAt)
	invocationID := uuid.New()

	invocation := domain.Invocation{
		ID:          invocationID,
		Report:      report.Name,
		Kind:        domain.InvocationKindScheduled,
		ScheduledAt: scheduledAt,
		FiredAt:     now,
		Status:      domain.InvocationStatusQueued,
		CreatedAt:   now,
	}

	if err := s.store.InsertInvocation(ctx, invocation); err != nil {
		if errors.Is(err, ErrDuplicateInvocation) {
			return nil // already emitted
		}
		return fmt.Errorf("insert invocation: %w", err)
	}

	event := domain.TriggerEvent{
		InvocationID:   invocationID,
		Report:         report.Name,
		Kind:           domain.InvocationKindScheduled,
		ScheduledAt:    scheduledAt,
		FiredAt:        now,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	}

	if err := s.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("emit: %w", err)
	}

	log.Printf("scheduler: emitted report=%s scheduled_at=%s", report.Name, scheduledAt.Format(time.RFC3339))
	return nil
}

func generateIdempotencyKey(report string, scheduledAt time.Time) string {
	data := fmt.Sprintf("%s:%d", report, scheduledAt.Unix())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
