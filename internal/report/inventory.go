package report

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/kitchenartsandletters/shopify-reports/internal/email"
	"github.com/kitchenartsandletters/shopify-reports/internal/validation"
)

// InventoryName identifies the daily product data report.
const InventoryName = "inventory"

// Inventory runs the same validations as the weekly report but delivers a
// plain-text summary instead of a CSV attachment. It is the daily
// early-warning counterpart to the weekly report.
type Inventory struct {
	fetcher   ProductFetcher
	validator *validation.Validator
	sender    EmailSender

	limit      int
	from       string
	recipients []string

	clock func() time.Time
}

type InventoryConfig struct {
	ProductLimit int
	Sender       string
	Recipients   []string
}

func NewInventory(cfg InventoryConfig, fetcher ProductFetcher, validator *validation.Validator, sender EmailSender) *Inventory {
	return &Inventory{
		fetcher:    fetcher,
		validator:  validator,
		sender:     sender,
		limit:      cfg.ProductLimit,
		from:       cfg.Sender,
		recipients: cfg.Recipients,
		clock:      time.Now,
	}
}

func (r *Inventory) Name() string {
	return InventoryName
}

func (r *Inventory) Run(ctx context.Context) (Result, error) {
	log.Printf("report %s: starting", r.Name())

	products, err := r.fetcher.FetchActiveProducts(ctx, r.limit)
	if err != nil {
		return Result{}, fmt.Errorf("fetch products: %w", err)
	}

	var found []ProductIssues
	for _, p := range products {
		if issues := r.validator.ValidateProduct(p); len(issues) > 0 {
			found = append(found, ProductIssues{ProductID: p.ID, Title: p.Title, Issues: issues})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Title < found[j].Title })

	log.Printf("report %s: checked %d products, %d with issues", r.Name(), len(products), len(found))

	result := Result{ProductsChecked: len(products), IssuesFound: len(found)}
	if len(found) == 0 {
		return result, nil
	}

	msg := email.Message{
		Subject:    "Daily Product Validation Report",
		Content:    formatInventoryReport(r.clock(), found),
		Sender:     r.from,
		Recipients: r.recipients,
	}
	if err := r.sender.Send(ctx, msg); err != nil {
		return result, fmt.Errorf("send report email: %w", err)
	}

	return result, nil
}

func formatInventoryReport(now time.Time, found []ProductIssues) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily Product Data Validation Report\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Products with issues: %d\n\n", len(found))

	for _, p := range found {
		fmt.Fprintf(&b, "%s (%s)\n", p.Title, p.ProductID)
		for _, issue := range p.Issues {
			if issue.Details != "" {
				fmt.Fprintf(&b, "  - [%s] %s: %s\n", issue.Severity, issue.Message, issue.Details)
			} else {
				fmt.Fprintf(&b, "  - [%s] %s\n", issue.Severity, issue.Message)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}
