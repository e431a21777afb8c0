package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kitchenartsandletters/shopify-reports/internal/shopify"
	"github.com/kitchenartsandletters/shopify-reports/internal/validation"
)

func newInventory(t *testing.T, fetcher *fakeFetcher, sender *fakeSender) *Inventory {
	t.Helper()
	r := NewInventory(InventoryConfig{
		ProductLimit: 20000,
		Sender:       "reports@kitchenartsandletters.com",
		Recipients:   []string{"gil@kitchenartsandletters.com"},
	}, fetcher, validation.New(validation.DefaultConfig(), validation.LoadExclusions()), sender)
	r.clock = func() time.Time { return time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC) }
	return r
}

func TestInventory_NoIssuesNoEmail(t *testing.T) {
	fetcher := &fakeFetcher{products: []shopify.Product{
		cleanProduct("gid://shopify/Product/1", "Book One"),
	}}
	sender := &fakeSender{}
	r := newInventory(t, fetcher, sender)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.IssuesFound != 0 {
		t.Errorf("issues found = %d, want 0", result.IssuesFound)
	}
	if len(sender.messages) != 0 {
		t.Errorf("expected no email, got %d", len(sender.messages))
	}
}

func TestInventory_IssuesProducePlainTextEmail(t *testing.T) {
	fetcher := &fakeFetcher{products: []shopify.Product{
		cleanProduct("gid://shopify/Product/1", "Book One"),
		brokenProduct("gid://shopify/Product/2", "Book Two"),
	}}
	sender := &fakeSender{}
	r := newInventory(t, fetcher, sender)

	result, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ProductsChecked != 2 {
		t.Errorf("products checked = %d, want 2", result.ProductsChecked)
	}
	if result.IssuesFound != 1 {
		t.Errorf("issues found = %d, want 1", result.IssuesFound)
	}
	if result.ReportFile != "" {
		t.Errorf("inventory report should not produce a file, got %q", result.ReportFile)
	}

	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.Subject != "Daily Product Validation Report" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("expected no attachments, got %v", msg.Attachments)
	}
	if !strings.Contains(msg.Content, "Book Two (gid://shopify/Product/2)") {
		t.Errorf("content missing product line: %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "No images found") {
		t.Errorf("content missing issue: %q", msg.Content)
	}
	if !strings.Contains(msg.Content, "Products with issues: 1") {
		t.Errorf("content missing count: %q", msg.Content)
	}
}
