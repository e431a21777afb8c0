package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
)

// RedisSink records per-report invocation counts in time buckets.
// Used for the dispatch-rate view in ops dashboards; losing a write never
// affects a report run.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Record counts an invocation. Errors are logged, not returned; analytics
// is strictly best-effort.
func (s *RedisSink) Record(ctx context.Context, event domain.TriggerEvent, config domain.AnalyticsConfig) {
	if !config.Enabled {
		return
	}

	if err := s.write(ctx, event, config); err != nil {
		log.Printf("analytics: report=%s: %v", event.Report, err)
	}
}

func (s *RedisSink) write(ctx context.Context, event domain.TriggerEvent, config domain.AnalyticsConfig) error {
	key := buildKey(event.Report, config.Type, event.ScheduledAt, config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, config.Retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

func buildKey(report string, typ domain.AnalyticsType, t time.Time, window time.Duration) string {
	bucket := truncateToBucket(t, window)
	return fmt.Sprintf("r:%s:%s:%s", report, typ, bucket)
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
