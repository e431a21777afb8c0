package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kitchenartsandletters/shopify-reports/internal/analytics"
	"github.com/kitchenartsandletters/shopify-reports/internal/api"
	"github.com/kitchenartsandletters/shopify-reports/internal/circuitbreaker"
	"github.com/kitchenartsandletters/shopify-reports/internal/config"
	"github.com/kitchenartsandletters/shopify-reports/internal/cron"
	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
	"github.com/kitchenartsandletters/shopify-reports/internal/email"
	"github.com/kitchenartsandletters/shopify-reports/internal/metrics"
	"github.com/kitchenartsandletters/shopify-reports/internal/reconciler"
	"github.com/kitchenartsandletters/shopify-reports/internal/report"
	"github.com/kitchenartsandletters/shopify-reports/internal/runner"
	"github.com/kitchenartsandletters/shopify-reports/internal/scheduler"
	"github.com/kitchenartsandletters/shopify-reports/internal/shopify"
	"github.com/kitchenartsandletters/shopify-reports/internal/store/postgres"
	"github.com/kitchenartsandletters/shopify-reports/internal/transport/channel"
	"github.com/kitchenartsandletters/shopify-reports/internal/validation"

	_ "github.com/lib/pq"
)

// cronParserAdapter adapts internal/cron.Parser to scheduler.CronParser interface.
type cronParserAdapter struct {
	parser *cron.Parser
}

func (a *cronParserAdapter) Parse(expression string, timezone string) (scheduler.CronSchedule, error) {
	sched, err := a.parser.Parse(expression, timezone)
	if err != nil {
		return nil, err
	}
	return &cronScheduleAdapter{sched: sched}, nil
}

// cronScheduleAdapter adapts internal/cron.Schedule to scheduler.CronSchedule interface.
type cronScheduleAdapter struct {
	sched cron.Schedule
}

func (a *cronScheduleAdapter) Next(after time.Time) time.Time {
	return a.sched.Next(after)
}

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`shopreports - scheduled Shopify catalog validation reports

Usage:
  shopreports <command>

Commands:
  serve      Start the scheduler, runner, and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL                 PostgreSQL connection string (required)
  REDIS_ADDR                   Redis address for analytics (optional)
  HTTP_ADDR                    HTTP server address (default: ":8080")
  TICK_INTERVAL                Scheduler tick interval (default: "30s")

  SHOP_URL                     Shopify shop domain (required at run time)
  SHOPIFY_ACCESS_TOKEN         Shopify Admin API access token (required at run time)
  SENDGRID_API_KEY             SendGrid API key (required at run time)
  EMAIL_SENDER                 Report sender address (required at run time)
  EMAIL_RECIPIENTS             Report recipients (default: "gil@kitchenartsandletters.com")

  SHOPIFY_API_VERSION          Admin API version (default: "2025-01")
  PRODUCT_FETCH_LIMIT          Max products fetched per run (default: "20000")
  OUTPUT_DIR                   Directory for CSV report files (default: "output")
  PRODUCT_VALIDATION_SCHEDULE  Cron expression (default: "0 14 * * 1")
  INVENTORY_SCHEDULE           Cron expression (default: "0 6 * * *")
  INVENTORY_ENABLED            Enable the inventory report (default: "false")
  REPORT_TIMEZONE              Timezone for report schedules (default: "UTC")
  RUN_TIMEOUT                  Max duration for a single report run (default: "30m")

  DB_OP_TIMEOUT                Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS            Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS            Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME         Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME        Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT        Graceful HTTP shutdown timeout (default: "10s")
  RUNNER_DRAIN_TIMEOUT         Runner event drain timeout (default: "30s")
  EVENTBUS_BUFFER_SIZE         Trigger event buffer size (default: "100")

  CIRCUIT_BREAKER_THRESHOLD    Failures before the Shopify breaker opens; 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN     Breaker cooldown after opening (default: "2m")

  METRICS_ENABLED              Enable Prometheus metrics (default: "false")
  METRICS_PATH                 Metrics endpoint path (default: "/metrics")
  METRICS_PORT                 Metrics server port (default: "9090")

  RECONCILE_ENABLED            Enable stale invocation reconciler (default: "false")
  RECONCILE_INTERVAL           How often to scan for stale invocations (default: "5m")
  RECONCILE_THRESHOLD          Age before an invocation is abandoned (default: "45m")
  RECONCILE_BATCH_SIZE         Max abandoned invocations per cycle (default: "100")`)
}

// logConfigWarnings surfaces configuration combinations that are valid but
// likely to surprise the operator.
func logConfigWarnings(cfg *config.Config) {
	if !cfg.ReconcileEnabled {
		log.Println("shopreports: WARNING [P0]: RECONCILE_ENABLED=false - invocations stuck in queued/running after a crash will never be marked failed")
	}
	if !cfg.MetricsEnabled {
		log.Println("shopreports: WARNING [P1]: METRICS_ENABLED=false - report run outcomes will not be observable")
	}
	if cfg.ReconcileEnabled && cfg.ReconcileThreshold <= cfg.RunTimeout {
		log.Printf("shopreports: WARNING [P1]: RECONCILE_THRESHOLD=%s is not greater than RUN_TIMEOUT=%s - healthy in-flight runs may be abandoned",
			cfg.ReconcileThresholdStr, cfg.RunTimeoutStr)
	}
	if missing := cfg.Bindings().Missing(); len(missing) > 0 {
		log.Printf("shopreports: INFO: unresolved bindings at startup: %v - report runs will fail until they are set", missing)
	}
}

// buildCatalog assembles the report catalog from configuration.
func buildCatalog(cfg config.Config) []domain.Report {
	analyticsCfg := domain.AnalyticsConfig{
		Enabled:   cfg.RedisAddr != "",
		Type:      domain.AnalyticsTypeCount,
		Window:    time.Hour,
		Retention: 30 * 24 * time.Hour,
	}

	return []domain.Report{
		{
			Name:    report.ProductValidationName,
			Enabled: true,
			Schedule: domain.Schedule{
				CronExpression: cfg.ProductValidationSchedule,
				Timezone:       cfg.ReportTimezone,
			},
			Recipients: cfg.Bindings().Recipients(),
			Analytics:  analyticsCfg,
		},
		{
			Name:    report.InventoryName,
			Enabled: cfg.InventoryEnabled,
			Schedule: domain.Schedule{
				CronExpression: cfg.InventorySchedule,
				Timezone:       cfg.ReportTimezone,
			},
			Recipients: cfg.Bindings().Recipients(),
			Analytics:  analyticsCfg,
		},
	}
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("shopreports: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)
	cronParser := &cronParserAdapter{parser: cron.NewParser()}
	catalog := buildCatalog(cfg)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("shopreports: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		// Start metrics HTTP server on separate port
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("shopreports: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("shopreports: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("shopreports: METRICS_ENABLED not set; metrics disabled")
	}

	// Create event bus with optional metrics
	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewEventBus(cfg.EventBusBufferSize, busOpts...)

	var schedOpts []scheduler.Option
	if metricsSink != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(metricsSink))
	}
	sched := scheduler.New(
		scheduler.Config{TickInterval: cfg.TickInterval},
		catalog,
		store,
		cronParser,
		bus,
		schedOpts...,
	)

	// Shopify client. Bindings are re-read per run by the runner; the client
	// is built from the startup values since the endpoint is fixed.
	bindings := cfg.Bindings()
	var shopifyOpts []shopify.Option
	if cfg.CircuitBreakerThreshold > 0 {
		breaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		shopifyOpts = append(shopifyOpts, shopify.WithBreaker(breaker))
	}
	if metricsSink != nil {
		shopifyOpts = append(shopifyOpts, shopify.WithMetrics(metricsSink))
	}
	shopClient := shopify.New(bindings.ShopURL, bindings.ShopifyAccessToken, cfg.ShopifyAPIVersion, shopifyOpts...)

	var emailOpts []email.Option
	if metricsSink != nil {
		emailOpts = append(emailOpts, email.WithMetrics(metricsSink))
	}
	emailClient := email.New(bindings.SendGridAPIKey, emailOpts...)

	validator := validation.New(validation.DefaultConfig(), nil)

	reports := []report.Report{
		report.NewProductValidation(
			report.ProductValidationConfig{
				ProductLimit: cfg.ProductFetchLimit,
				OutputDir:    cfg.OutputDir,
				Sender:       bindings.EmailSender,
				Recipients:   bindings.Recipients(),
			},
			shopClient,
			validator,
			emailClient,
		),
		report.NewInventory(
			report.InventoryConfig{
				ProductLimit: cfg.ProductFetchLimit,
				Sender:       bindings.EmailSender,
				Recipients:   bindings.Recipients(),
			},
			shopClient,
			validator,
			emailClient,
		),
	}

	run := runner.New(store, catalog, reports, cfg.Bindings).
		WithRunTimeout(cfg.RunTimeout).
		WithDrainTimeout(cfg.RunnerDrainTimeout)
	if metricsSink != nil {
		run = run.WithMetrics(metricsSink)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient)
		run = run.WithAnalytics(sink)
		log.Printf("shopreports: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("shopreports: REDIS_ADDR not set; analytics disabled")
	}

	// Create API handler with the same store instance
	apiHandler := api.NewHandler(catalog, store, bus).WithHealthChecker(db)

	// Start HTTP server with API handler
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("shopreports: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("shopreports: http server error: %v", err)
		}
	}()

	// Use separate contexts for scheduler, runner, and reconciler to enable ordered shutdown.
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	runnerCtx, cancelRunner := context.WithCancel(context.Background())

	var schedulerWg sync.WaitGroup
	var runnerWg sync.WaitGroup
	var reconcilerWg sync.WaitGroup
	var cancelReconciler context.CancelFunc

	schedulerWg.Add(1)
	go func() {
		defer schedulerWg.Done()
		sched.Run(schedulerCtx)
	}()

	runnerWg.Add(1)
	go func() {
		defer runnerWg.Done()
		run.Run(runnerCtx, bus.Channel())
	}()

	// Start reconciler if enabled
	if cfg.ReconcileEnabled {
		var reconcilerCtx context.Context
		reconcilerCtx, cancelReconciler = context.WithCancel(context.Background())
		recon := reconciler.New(
			reconciler.Config{
				Interval:  cfg.ReconcileInterval,
				Threshold: cfg.ReconcileThreshold,
				BatchSize: cfg.ReconcileBatchSize,
			},
			store,
			runner.ErrStatusTransitionDenied,
		)
		if metricsSink != nil {
			recon = recon.WithMetrics(metricsSink)
		}
		reconcilerWg.Add(1)
		go func() {
			defer reconcilerWg.Done()
			recon.Run(reconcilerCtx)
		}()
		log.Printf("shopreports: reconciler enabled (interval=%s, threshold=%s, batch=%d)",
			cfg.ReconcileInterval, cfg.ReconcileThreshold, cfg.ReconcileBatchSize)
	} else {
		log.Println("shopreports: RECONCILE_ENABLED not set; reconciler disabled")
	}

	log.Printf("shopreports: started (tick=%s, http=%s)", cfg.TickInterval, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("shopreports: received signal %v, shutting down", received)

	// Phase 1: Stop scheduler (no new events emitted)
	log.Println("shopreports: stopping scheduler...")
	cancelScheduler()
	schedulerWg.Wait()
	log.Println("shopreports: scheduler stopped")

	// Phase 2: Stop reconciler
	if cancelReconciler != nil {
		log.Println("shopreports: stopping reconciler...")
		cancelReconciler()
		reconcilerWg.Wait()
		log.Println("shopreports: reconciler stopped")
	}

	// Phase 3: Stop runner (will drain buffered events before returning)
	log.Println("shopreports: stopping runner (draining events)...")
	cancelRunner()
	runnerWg.Wait()
	log.Println("shopreports: runner stopped")

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Println("shopreports: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("shopreports: http server shutdown error: %v", err)
	}
	log.Println("shopreports: http server stopped")

	// Phase 5: Stop metrics server if running (with same timeout)
	if metricsServer != nil {
		log.Println("shopreports: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("shopreports: metrics server shutdown error: %v", err)
		}
		log.Println("shopreports: metrics server stopped")
	}

	log.Println("shopreports: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("shopreports version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
