package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"
)

// DefaultEmailRecipients is the declared recipient list for report emails.
// It is configuration, not a secret; override with EMAIL_RECIPIENTS.
const DefaultEmailRecipients = "gil@kitchenartsandletters.com"

// DefaultShopifyAPIVersion is the Admin API version used for GraphQL calls.
const DefaultShopifyAPIVersion = "2025-01"

// Config holds all configuration for the shopreports application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	// Invocation bindings: four secrets plus declared recipients.
	ShopURL            string `json:"shop_url"`
	ShopifyAccessToken string `json:"shopify_access_token"`
	SendGridAPIKey     string `json:"sendgrid_api_key"`
	EmailSender        string `json:"email_sender"`
	EmailRecipients    string `json:"email_recipients"`

	ShopifyAPIVersion string `json:"shopify_api_version"`
	ProductFetchLimit int    `json:"product_fetch_limit"`
	OutputDir         string `json:"output_dir"`

	ProductValidationSchedule string `json:"product_validation_schedule"`
	InventorySchedule         string `json:"inventory_schedule"`
	InventoryEnabled          bool   `json:"inventory_enabled"`
	ReportTimezone            string `json:"report_timezone"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	RunTimeout    time.Duration `json:"-"`
	RunTimeoutStr string        `json:"run_timeout"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`
	RunnerDrainTimeout     time.Duration `json:"-"`
	RunnerDrainTimeoutStr  string        `json:"runner_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`

	// ReconcileThreshold must exceed the longest expected report run
	// (RunTimeout), or in-flight invocations get abandoned prematurely.
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`

	ReconcileBatchSize int `json:"reconcile_batch_size"`
	EventBusBufferSize int `json:"eventbus_buffer_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		ShopURL:                   os.Getenv("SHOP_URL"),
		ShopifyAccessToken:        os.Getenv("SHOPIFY_ACCESS_TOKEN"),
		SendGridAPIKey:            os.Getenv("SENDGRID_API_KEY"),
		EmailSender:               os.Getenv("EMAIL_SENDER"),
		EmailRecipients:           os.Getenv("EMAIL_RECIPIENTS"),
		ShopifyAPIVersion:         os.Getenv("SHOPIFY_API_VERSION"),
		OutputDir:                 os.Getenv("OUTPUT_DIR"),
		ProductValidationSchedule: os.Getenv("PRODUCT_VALIDATION_SCHEDULE"),
		InventorySchedule:         os.Getenv("INVENTORY_SCHEDULE"),
		InventoryEnabled:          os.Getenv("INVENTORY_ENABLED") == "true",
		ReportTimezone:            os.Getenv("REPORT_TIMEZONE"),
		TickIntervalStr:           os.Getenv("TICK_INTERVAL"),
		RunTimeoutStr:             os.Getenv("RUN_TIMEOUT"),
		DBOpTimeoutStr:            os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:      os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:      os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		RunnerDrainTimeoutStr:     os.Getenv("RUNNER_DRAIN_TIMEOUT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		MetricsPort:               os.Getenv("METRICS_PORT"),
		ReconcileEnabled:          os.Getenv("RECONCILE_ENABLED") == "true",
		ReconcileIntervalStr:      os.Getenv("RECONCILE_INTERVAL"),
		ReconcileThresholdStr:     os.Getenv("RECONCILE_THRESHOLD"),
	}

	if limitStr := os.Getenv("PRODUCT_FETCH_LIMIT"); limitStr != "" {
		if n, err := parseInt(limitStr); err == nil && n > 0 {
			cfg.ProductFetchLimit = n
		} else {
			log.Printf("config: invalid PRODUCT_FETCH_LIMIT %q (must be a positive integer), using default 20000", limitStr)
		}
	}
	if cfg.ProductFetchLimit == 0 {
		cfg.ProductFetchLimit = 20000
	}

	if batchStr := os.Getenv("RECONCILE_BATCH_SIZE"); batchStr != "" {
		if batch, err := parseInt(batchStr); err == nil && batch > 0 {
			cfg.ReconcileBatchSize = batch
		}
	}
	if cfg.ReconcileBatchSize == 0 {
		cfg.ReconcileBatchSize = 100
	}

	if bufStr := os.Getenv("EVENTBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.EventBusBufferSize = n
		} else {
			log.Printf("config: invalid EVENTBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.EventBusBufferSize == 0 {
		cfg.EventBusBufferSize = 100
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 5
	}

	cfg.CircuitBreakerCooldownStr = os.Getenv("CIRCUIT_BREAKER_COOLDOWN")

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.EmailRecipients == "" {
		cfg.EmailRecipients = DefaultEmailRecipients
	}
	if cfg.ShopifyAPIVersion == "" {
		cfg.ShopifyAPIVersion = DefaultShopifyAPIVersion
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.ProductValidationSchedule == "" {
		cfg.ProductValidationSchedule = "0 14 * * 1"
	}
	if cfg.InventorySchedule == "" {
		cfg.InventorySchedule = "0 6 * * *"
	}
	if cfg.ReportTimezone == "" {
		cfg.ReportTimezone = "UTC"
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "30s"
	}
	if cfg.RunTimeoutStr == "" {
		cfg.RunTimeoutStr = "30m"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.RunnerDrainTimeoutStr == "" {
		cfg.RunnerDrainTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "5m"
	}
	if cfg.ReconcileThresholdStr == "" {
		cfg.ReconcileThresholdStr = "45m"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.RunTimeoutStr); err == nil {
		cfg.RunTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.RunnerDrainTimeoutStr); err == nil {
		cfg.RunnerDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileIntervalStr); err == nil {
		cfg.ReconcileInterval = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileThresholdStr); err == nil {
		cfg.ReconcileThreshold = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}

	return cfg
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL               string `json:"database_url"`
		RedisAddr                 string `json:"redis_addr,omitempty"`
		HTTPAddr                  string `json:"http_addr"`
		ShopURL                   string `json:"shop_url"`
		ShopifyAccessToken        string `json:"shopify_access_token"`
		SendGridAPIKey            string `json:"sendgrid_api_key"`
		EmailSender               string `json:"email_sender"`
		EmailRecipients           string `json:"email_recipients"`
		ShopifyAPIVersion         string `json:"shopify_api_version"`
		ProductFetchLimit         int    `json:"product_fetch_limit"`
		OutputDir                 string `json:"output_dir"`
		ProductValidationSchedule string `json:"product_validation_schedule"`
		InventorySchedule         string `json:"inventory_schedule"`
		InventoryEnabled          bool   `json:"inventory_enabled"`
		ReportTimezone            string `json:"report_timezone"`
		TickInterval              string `json:"tick_interval"`
		RunTimeout                string `json:"run_timeout"`
		DBOpTimeout               string `json:"db_op_timeout"`
		DBMaxOpenConns            int    `json:"db_max_open_conns"`
		DBMaxIdleConns            int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime         string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime         string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout       string `json:"http_shutdown_timeout"`
		RunnerDrainTimeout        string `json:"runner_drain_timeout"`
		MetricsEnabled            bool   `json:"metrics_enabled"`
		MetricsPath               string `json:"metrics_path"`
		MetricsPort               string `json:"metrics_port"`
		ReconcileEnabled          bool   `json:"reconcile_enabled"`
		ReconcileInterval         string `json:"reconcile_interval"`
		ReconcileThreshold        string `json:"reconcile_threshold"`
		ReconcileBatchSize        int    `json:"reconcile_batch_size"`
		EventBusBufferSize        int    `json:"eventbus_buffer_size"`
		CircuitBreakerThreshold   int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown    string `json:"circuit_breaker_cooldown"`
	}{
		DatabaseURL:               maskSecret(c.DatabaseURL),
		RedisAddr:                 c.RedisAddr,
		HTTPAddr:                  c.HTTPAddr,
		ShopURL:                   maskSecret(c.ShopURL),
		ShopifyAccessToken:        maskSecret(c.ShopifyAccessToken),
		SendGridAPIKey:            maskSecret(c.SendGridAPIKey),
		EmailSender:               maskSecret(c.EmailSender),
		EmailRecipients:           c.EmailRecipients,
		ShopifyAPIVersion:         c.ShopifyAPIVersion,
		ProductFetchLimit:         c.ProductFetchLimit,
		OutputDir:                 c.OutputDir,
		ProductValidationSchedule: c.ProductValidationSchedule,
		InventorySchedule:         c.InventorySchedule,
		InventoryEnabled:          c.InventoryEnabled,
		ReportTimezone:            c.ReportTimezone,
		TickInterval:              c.TickIntervalStr,
		RunTimeout:                c.RunTimeoutStr,
		DBOpTimeout:               c.DBOpTimeoutStr,
		DBMaxOpenConns:            c.DBMaxOpenConns,
		DBMaxIdleConns:            c.DBMaxIdleConns,
		DBConnMaxLifetime:         c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:         c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:       c.HTTPShutdownTimeoutStr,
		RunnerDrainTimeout:        c.RunnerDrainTimeoutStr,
		MetricsEnabled:            c.MetricsEnabled,
		MetricsPath:               c.MetricsPath,
		MetricsPort:               c.MetricsPort,
		ReconcileEnabled:          c.ReconcileEnabled,
		ReconcileInterval:         c.ReconcileIntervalStr,
		ReconcileThreshold:        c.ReconcileThresholdStr,
		ReconcileBatchSize:        c.ReconcileBatchSize,
		EventBusBufferSize:        c.EventBusBufferSize,
		CircuitBreakerThreshold:   c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:    c.CircuitBreakerCooldownStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(s, scheme) {
			return scheme + "***"
		}
	}
	return "***"
}
