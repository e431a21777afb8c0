package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kitchenartsandletters/shopify-reports/internal/shopify"
)

// Issue severities.
const (
	SeverityError   = "ERROR"
	SeverityWarning = "WARNING"
)

// Issue is a single validation finding for a product.
type Issue struct {
	Severity string
	Message  string
	Details  string
}

// Config holds validation thresholds. Zero values are replaced by
// DefaultConfig values, so a partially filled Config stays usable.
type Config struct {
	MinImages            int
	MinDescriptionLength int
	MinPrice             float64
	RequiredCollections  []string
	RequiredMetafields   []string
}

// DefaultConfig returns the thresholds used by the product validation report.
func DefaultConfig() Config {
	return Config{
		MinImages:            1,
		MinDescriptionLength: 100,
		MinPrice:             0.01,
		RequiredCollections:  []string{"All Books"},
		RequiredMetafields:   []string{"isbn", "author", "publisher", "publication_date"},
	}
}

// Validator checks products for required data. Products matched by the
// exclusion list are skipped entirely.
type Validator struct {
	config     Config
	exclusions *ExclusionList
}

func New(config Config, exclusions *ExclusionList) *Validator {
	def := DefaultConfig()
	if config.MinImages == 0 {
		config.MinImages = def.MinImages
	}
	if config.MinDescriptionLength == 0 {
		config.MinDescriptionLength = def.MinDescriptionLength
	}
	if config.MinPrice == 0 {
		config.MinPrice = def.MinPrice
	}
	if config.RequiredCollections == nil {
		config.RequiredCollections = def.RequiredCollections
	}
	if config.RequiredMetafields == nil {
		config.RequiredMetafields = def.RequiredMetafields
	}
	if exclusions == nil {
		exclusions = LoadExclusions()
	}
	return &Validator{config: config, exclusions: exclusions}
}

// ValidateProduct returns all issues found for a product, or nil when the
// product is clean or excluded.
func (v *Validator) ValidateProduct(p shopify.Product) []Issue {
	if excluded, _ := v.exclusions.ShouldExclude(p); excluded {
		return nil
	}

	var issues []Issue

	if len(p.Images) < v.config.MinImages {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  "No images found",
			Details:  fmt.Sprintf("found %d, need at least %d", len(p.Images), v.config.MinImages),
		})
	}

	desc := strings.TrimSpace(stripTags(p.DescriptionHTML))
	if desc == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  "Missing description",
		})
	} else if len(desc) < v.config.MinDescriptionLength {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  "Description too short",
			Details:  fmt.Sprintf("%d characters, need at least %d", len(desc), v.config.MinDescriptionLength),
		})
	}

	price, err := strconv.ParseFloat(p.MinPrice, 64)
	if err != nil || price < v.config.MinPrice {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  "Invalid or missing price",
			Details:  fmt.Sprintf("minimum variant price %q", p.MinPrice),
		})
	}

	if len(p.Tags) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  "No tags assigned",
		})
	}

	if len(p.Collections) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  "Not assigned to any collection",
		})
	} else if missing := v.missingCollections(p); len(missing) > 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  "Missing required collections",
			Details:  strings.Join(missing, ", "),
		})
	}

	if missing := v.missingMetafields(p); len(missing) > 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  "Missing metafields",
			Details:  strings.Join(missing, ", "),
		})
	}

	issues = append(issues, v.validateVariants(p)...)

	return issues
}

func (v *Validator) missingCollections(p shopify.Product) []string {
	have := make(map[string]bool, len(p.Collections))
	for _, c := range p.Collections {
		have[c] = true
	}
	var missing []string
	for _, required := range v.config.RequiredCollections {
		if !have[required] {
			missing = append(missing, required)
		}
	}
	return missing
}

func (v *Validator) missingMetafields(p shopify.Product) []string {
	var missing []string
	for _, key := range v.config.RequiredMetafields {
		if strings.TrimSpace(p.Metafields[key]) == "" {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func (v *Validator) validateVariants(p shopify.Product) []Issue {
	var issues []Issue
	for _, variant := range p.Variants {
		if strings.TrimSpace(variant.SKU) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Message:  "Variant missing SKU",
				Details:  variant.ID,
			})
		}
		if variant.Barcode != "" && !IsValidISBN(variant.Barcode) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Message:  "Barcode is not a valid ISBN",
				Details:  fmt.Sprintf("variant %s barcode %s", variant.ID, variant.Barcode),
			})
		}
		for _, loc := range variant.Locations {
			if !loc.Active {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Message:  "Stocked at inactive location",
					Details:  fmt.Sprintf("variant %s location %s", variant.ID, loc.Name),
				})
				continue
			}
			if !loc.FulfillsOnlineOrders {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Message:  "Stocked at location that does not fulfill online orders",
					Details:  fmt.Sprintf("variant %s location %s", variant.ID, loc.Name),
				})
			}
		}
	}
	return issues
}

// IsValidISBN reports whether a barcode looks like an ISBN-13.
func IsValidISBN(barcode string) bool {
	return strings.HasPrefix(barcode, "978")
}

// stripTags removes HTML tags so description length reflects visible text.
func stripTags(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
