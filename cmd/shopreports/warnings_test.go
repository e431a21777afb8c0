package main

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/kitchenartsandletters/shopify-reports/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func fullConfig() *config.Config {
	return &config.Config{
		ReconcileEnabled:   true,
		MetricsEnabled:     true,
		RunTimeout:         30 * time.Minute,
		ReconcileThreshold: 45 * time.Minute,
		ShopURL:            "example.myshopify.com",
		ShopifyAccessToken: "shpat_test",
		SendGridAPIKey:     "SG.test",
		EmailSender:        "reports@example.com",
		EmailRecipients:    "gil@kitchenartsandletters.com",
	}
}

func TestLogConfigWarnings_AllHealthy(t *testing.T) {
	output := captureLogOutput(fullConfig())

	if strings.Contains(output, "WARNING") {
		t.Error("did not expect any warnings, got:", output)
	}
	if strings.Contains(output, "INFO") {
		t.Error("did not expect any INFO messages, got:", output)
	}
}

func TestLogConfigWarnings_ReconcilerDisabled(t *testing.T) {
	cfg := fullConfig()
	cfg.ReconcileEnabled = false
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P0]: RECONCILE_ENABLED=false") {
		t.Error("expected reconciler P0 warning, got:", output)
	}
}

func TestLogConfigWarnings_MetricsDisabled(t *testing.T) {
	cfg := fullConfig()
	cfg.MetricsEnabled = false
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: METRICS_ENABLED=false") {
		t.Error("expected metrics P1 warning, got:", output)
	}
}

func TestLogConfigWarnings_ThresholdNotAboveRunTimeout(t *testing.T) {
	cfg := fullConfig()
	cfg.ReconcileThreshold = 30 * time.Minute
	cfg.ReconcileThresholdStr = "30m"
	cfg.RunTimeoutStr = "30m"
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "RECONCILE_THRESHOLD=30m is not greater than RUN_TIMEOUT=30m") {
		t.Error("expected threshold warning, got:", output)
	}
}

func TestLogConfigWarnings_ThresholdWarningOnlyWhenReconcilerEnabled(t *testing.T) {
	cfg := fullConfig()
	cfg.ReconcileEnabled = false
	cfg.ReconcileThreshold = 10 * time.Minute
	output := captureLogOutput(cfg)

	if strings.Contains(output, "healthy in-flight runs may be abandoned") {
		t.Error("did not expect threshold warning with reconciler disabled, got:", output)
	}
}

func TestLogConfigWarnings_MissingBindings(t *testing.T) {
	cfg := fullConfig()
	cfg.SendGridAPIKey = ""
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "unresolved bindings at startup") {
		t.Error("expected unresolved bindings INFO, got:", output)
	}
	if !strings.Contains(output, "SENDGRID_API_KEY") {
		t.Error("expected SENDGRID_API_KEY named in output, got:", output)
	}
}
