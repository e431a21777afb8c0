package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var csvHeader = []string{"Product Title", "Product ID", "Issue Type", "Issue Description", "Details"}

// WriteIssuesCSV writes one row per issue to a timestamped file under
// outputDir, creating the directory if needed. Returns the file path.
func WriteIssuesCSV(outputDir string, now time.Time, products []ProductIssues) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("validation_report_%s.csv", now.Format("20060102_150405"))
	path := filepath.Join(outputDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	for _, p := range products {
		for _, issue := range p.Issues {
			row := []string{p.Title, p.ProductID, issue.Severity, issue.Message, issue.Details}
			if err := w.Write(row); err != nil {
				return "", fmt.Errorf("write row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report file: %w", err)
	}
	return path, nil
}
