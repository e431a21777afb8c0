package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	ticksTotal            prometheus.Counter
	tickErrorsTotal       prometheus.Counter
	reportsTriggeredTotal prometheus.Counter
	tickDuration          prometheus.Histogram
	tickDrift             prometheus.Histogram

	// Runner metrics
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runsInFlight prometheus.Gauge

	// Outbound client metrics
	shopifyRequestsTotal *prometheus.CounterVec
	shopifyDuration      prometheus.Histogram
	emailSendsTotal      *prometheus.CounterVec

	// EventBus metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter

	// Reconciler metrics
	abandonedInvocations prometheus.Gauge
	invocationLatency    prometheus.Histogram
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initRunnerMetrics(reg)
	s.initClientMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initReconcilerMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopreports_scheduler_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopreports_scheduler_tick_errors_total",
		Help: "Total number of scheduler tick errors.",
	})
	s.reportsTriggeredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopreports_scheduler_reports_triggered_total",
		Help: "Total number of report invocations emitted.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopreports_scheduler_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.tickDrift = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopreports_scheduler_tick_drift_seconds",
		Help:    "Difference between actual tick time and expected interval in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	s.register(reg, s.ticksTotal, "shopreports_scheduler_ticks_total")
	s.register(reg, s.tickErrorsTotal, "shopreports_scheduler_tick_errors_total")
	s.register(reg, s.reportsTriggeredTotal, "shopreports_scheduler_reports_triggered_total")
	s.register(reg, s.tickDuration, "shopreports_scheduler_tick_duration_seconds")
	s.register(reg, s.tickDrift, "shopreports_scheduler_tick_drift_seconds")
}

func (s *PrometheusSink) initRunnerMetrics(reg prometheus.Registerer) {
	s.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopreports_runner_runs_total",
		Help: "Total number of report runs by report and outcome.",
	}, []string{"report", "outcome"})

	s.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopreports_runner_run_duration_seconds",
		Help:    "Report run duration in seconds.",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
	})

	s.runsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopreports_runner_runs_in_flight",
		Help: "Number of report runs currently executing.",
	})

	s.register(reg, s.runsTotal, "shopreports_runner_runs_total")
	s.register(reg, s.runDuration, "shopreports_runner_run_duration_seconds")
	s.register(reg, s.runsInFlight, "shopreports_runner_runs_in_flight")
}

func (s *PrometheusSink) initClientMetrics(reg prometheus.Registerer) {
	s.shopifyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopreports_shopify_requests_total",
		Help: "Total number of Shopify GraphQL requests by status class.",
	}, []string{"status_class"})

	s.shopifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopreports_shopify_request_duration_seconds",
		Help:    "Shopify GraphQL request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.emailSendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopreports_email_sends_total",
		Help: "Total number of report email sends by outcome.",
	}, []string{"outcome"})

	s.register(reg, s.shopifyRequestsTotal, "shopreports_shopify_requests_total")
	s.register(reg, s.shopifyDuration, "shopreports_shopify_request_duration_seconds")
	s.register(reg, s.emailSendsTotal, "shopreports_email_sends_total")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopreports_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopreports_eventbus_buffer_capacity",
		Help: "Configured capacity of the event bus buffer.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopreports_eventbus_buffer_saturation",
		Help: "Event bus buffer fill ratio (0.0 to 1.0).",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopreports_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or cancelled).",
	})

	s.register(reg, s.bufferSize, "shopreports_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "shopreports_eventbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "shopreports_eventbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "shopreports_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initReconcilerMetrics(reg prometheus.Registerer) {
	s.abandonedInvocations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shopreports_reconciler_abandoned_invocations",
		Help: "Number of stale invocations abandoned in the last reconcile cycle.",
	})
	s.invocationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shopreports_invocation_latency_seconds",
		Help:    "Seconds between intended fire time and run completion.",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
	})

	s.register(reg, s.abandonedInvocations, "shopreports_reconciler_abandoned_invocations")
	s.register(reg, s.invocationLatency, "shopreports_invocation_latency_seconds")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, reportsTriggered int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.reportsTriggeredTotal.Add(float64(reportsTriggered))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) TickDrift(drift time.Duration) {
	// Record absolute drift value
	d := drift.Seconds()
	if d < 0 {
		d = -d
	}
	s.tickDrift.Observe(d)
}

// Runner metrics implementation

func (s *PrometheusSink) RunCompleted(report, outcome string, duration time.Duration) {
	s.runsTotal.WithLabelValues(report, outcome).Inc()
	s.runDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) RunsInFlightIncr() {
	s.runsInFlight.Inc()
}

func (s *PrometheusSink) RunsInFlightDecr() {
	s.runsInFlight.Dec()
}

// Outbound client metrics implementation

func (s *PrometheusSink) ShopifyRequestCompleted(statusClass string, duration time.Duration) {
	s.shopifyRequestsTotal.WithLabelValues(statusClass).Inc()
	s.shopifyDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) EmailSendCompleted(outcome string) {
	s.emailSendsTotal.WithLabelValues(outcome).Inc()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Reconciler metrics implementation

func (s *PrometheusSink) AbandonedInvocationsUpdate(count int) {
	s.abandonedInvocations.Set(float64(count))
}

func (s *PrometheusSink) InvocationLatencyObserve(latencySeconds float64) {
	s.invocationLatency.Observe(latencySeconds)
}
