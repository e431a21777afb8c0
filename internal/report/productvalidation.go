package report

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/kitchenartsandletters/shopify-reports/internal/email"
	"github.com/kitchenartsandletters/shopify-reports/internal/validation"
)

// ProductValidationName identifies the weekly product validation report.
const ProductValidationName = "product_validation"

// ProductValidation fetches the active catalog, validates every active
// product, and emails a CSV of findings when any product fails.
type ProductValidation struct {
	fetcher   ProductFetcher
	validator *validation.Validator
	sender    EmailSender

	limit      int
	outputDir  string
	from       string
	recipients []string

	clock func() time.Time
}

type ProductValidationConfig struct {
	ProductLimit int
	OutputDir    string
	Sender       string
	Recipients   []string
}

func NewProductValidation(cfg ProductValidationConfig, fetcher ProductFetcher, validator *validation.Validator, sender EmailSender) *ProductValidation {
	return &ProductValidation{
		fetcher:    fetcher,
		validator:  validator,
		sender:     sender,
		limit:      cfg.ProductLimit,
		outputDir:  cfg.OutputDir,
		from:       cfg.Sender,
		recipients: cfg.Recipients,
		clock:      time.Now,
	}
}

func (r *ProductValidation) Name() string {
	return ProductValidationName
}

func (r *ProductValidation) Run(ctx context.Context) (Result, error) {
	log.Printf("report %s: starting", r.Name())

	products, err := r.fetcher.FetchActiveProducts(ctx, r.limit)
	if err != nil {
		return Result{}, fmt.Errorf("fetch products: %w", err)
	}
	log.Printf("report %s: fetched %d products", r.Name(), len(products))

	var found []ProductIssues
	checked := 0
	for _, p := range products {
		if p.Status != "ACTIVE" {
			continue
		}
		checked++
		if issues := r.validator.ValidateProduct(p); len(issues) > 0 {
			found = append(found, ProductIssues{ProductID: p.ID, Title: p.Title, Issues: issues})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Title < found[j].Title })

	log.Printf("report %s: validated %d products, %d with issues", r.Name(), checked, len(found))

	result := Result{ProductsChecked: checked, IssuesFound: len(found)}
	if len(found) == 0 {
		return result, nil
	}

	now := r.clock()
	csvPath, err := WriteIssuesCSV(r.outputDir, now, found)
	if err != nil {
		return result, err
	}
	result.ReportFile = csvPath

	filename := filepath.Base(csvPath)
	msg := email.Message{
		Subject:    fmt.Sprintf("Daily Product Validation Report - %s", now.Format("2006-01-02")),
		Content:    formatEmailContent(now, checked, len(found), filename),
		Sender:     r.from,
		Recipients: r.recipients,
		Attachments: []email.Attachment{{
			Filename:    filename,
			ContentType: "text/csv",
			Path:        csvPath,
		}},
	}

	if err := r.sender.Send(ctx, msg); err != nil {
		return result, fmt.Errorf("send report email: %w", err)
	}

	return result, nil
}

func formatEmailContent(now time.Time, totalProducts, issuesCount int, filename string) string {
	return fmt.Sprintf(`Product Validation Report Summary
Generated: %s

Total Products Checked: %d
Products with Issues: %d

Details are attached in: %s`,
		now.Format("2006-01-02 15:04:05"), totalProducts, issuesCount, filename)
}
