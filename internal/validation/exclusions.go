package validation

import (
	"fmt"
	"regexp"

	"github.com/kitchenartsandletters/shopify-reports/internal/shopify"
)

// ExclusionList filters products that are never validated: gift cards,
// classes, out-of-print listings and other non-book inventory.
type ExclusionList struct {
	exactTitles map[string]bool
	patterns    []titlePattern
	barcodes    map[string]bool
	urls        map[string]bool
}

type titlePattern struct {
	raw string
	re  *regexp.Regexp
}

type matchType int

const (
	matchStartsWith matchType = iota
	matchContains
)

type patternSpec struct {
	pattern string
	match   matchType
}

var defaultPatterns = []patternSpec{
	{"Class:", matchStartsWith},
	{"Gift Card", matchContains},
	{"Limited Edition", matchContains},
	{"Clean Out", matchContains},
	{"OP:", matchStartsWith},
	{"Talk & Taste", matchStartsWith},
	{"Le Journal du Patissier", matchStartsWith},
	{"Cookbook Club", matchContains},
}

var defaultExactTitles = []string{
	"Kitchen Arts & Letters Gift Card",
}

// LoadExclusions builds the exclusion list from the built-in rules.
func LoadExclusions() *ExclusionList {
	e := &ExclusionList{
		exactTitles: make(map[string]bool),
		barcodes:    make(map[string]bool),
		urls:        make(map[string]bool),
	}
	for _, title := range defaultExactTitles {
		e.exactTitles[title] = true
	}
	for _, spec := range defaultPatterns {
		e.addPattern(spec)
	}
	return e
}

func (e *ExclusionList) addPattern(spec patternSpec) {
	var expr string
	switch spec.match {
	case matchStartsWith:
		expr = "(?i)^" + regexp.QuoteMeta(spec.pattern)
	case matchContains:
		expr = "(?i)" + regexp.QuoteMeta(spec.pattern)
	default:
		return
	}
	e.patterns = append(e.patterns, titlePattern{raw: spec.pattern, re: regexp.MustCompile(expr)})
}

// AddBarcode excludes any product carrying the barcode on a variant.
func (e *ExclusionList) AddBarcode(barcode string) {
	e.barcodes[barcode] = true
}

// AddURL excludes a product by its storefront URL.
func (e *ExclusionList) AddURL(url string) {
	e.urls[url] = true
}

// ShouldExclude reports whether a product is exempt from validation, and why.
func (e *ExclusionList) ShouldExclude(p shopify.Product) (bool, string) {
	if p.Title == "" {
		return false, ""
	}

	if e.exactTitles[p.Title] {
		return true, fmt.Sprintf("exact title match: %s", p.Title)
	}

	for _, pat := range e.patterns {
		if pat.re.MatchString(p.Title) {
			return true, fmt.Sprintf("partial title match: %s", pat.raw)
		}
	}

	for _, variant := range p.Variants {
		if variant.Barcode != "" && e.barcodes[variant.Barcode] {
			return true, fmt.Sprintf("barcode match: %s", variant.Barcode)
		}
	}

	if p.Handle != "" {
		url := fmt.Sprintf("https://kitchenartsandletters.com/products/%s", p.Handle)
		if e.urls[url] {
			return true, fmt.Sprintf("url match: %s", url)
		}
	}

	return false, ""
}
