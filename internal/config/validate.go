package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
//
// The invocation bindings (SHOP_URL etc.) are deliberately not required
// here: their absence is an invocation-time failure, not a boot failure.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// DATABASE_URL is required
	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	// TICK_INTERVAL must be a valid positive duration
	if cfg.TickIntervalStr != "" {
		d, err := time.ParseDuration(cfg.TickIntervalStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	// RUN_TIMEOUT must be a valid positive duration
	if cfg.RunTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.RunTimeoutStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "RUN_TIMEOUT",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "RUN_TIMEOUT",
				Message: "must be positive",
			})
		}
	}

	if err := validateCron(cfg.ProductValidationSchedule); err != nil {
		errs = append(errs, ValidationError{
			Field:   "PRODUCT_VALIDATION_SCHEDULE",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}
	if err := validateCron(cfg.InventorySchedule); err != nil {
		errs = append(errs, ValidationError{
			Field:   "INVENTORY_SCHEDULE",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	if cfg.ReportTimezone != "" {
		if _, err := time.LoadLocation(cfg.ReportTimezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "REPORT_TIMEZONE",
				Message: fmt.Sprintf("invalid timezone: %v", err),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCron(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	return err
}
