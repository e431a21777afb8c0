package report

import (
	"context"

	"github.com/kitchenartsandletters/shopify-reports/internal/email"
	"github.com/kitchenartsandletters/shopify-reports/internal/shopify"
	"github.com/kitchenartsandletters/shopify-reports/internal/validation"
)

// Result summarizes one report run. IssuesFound > 0 means the run surfaced
// problems; the invocation is recorded as failed even though the report
// body completed.
type Result struct {
	ProductsChecked int
	IssuesFound     int
	ReportFile      string
}

// Report is a runnable report body.
type Report interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// ProductFetcher pulls the product catalog from Shopify.
type ProductFetcher interface {
	FetchActiveProducts(ctx context.Context, limit int) ([]shopify.Product, error)
}

// EmailSender delivers the report email.
type EmailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

// ProductIssues groups validation findings for a single product.
type ProductIssues struct {
	ProductID string
	Title     string
	Issues    []validation.Issue
}
