package validation

import (
	"testing"

	"github.com/kitchenartsandletters/shopify-reports/internal/shopify"
)

func TestExclusionList_TitleRules(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{"exact gift card title", "Kitchen Arts & Letters Gift Card", true},
		{"class prefix", "Class: Knife Skills 101", true},
		{"class not at start", "Masterclass: Bread", false},
		{"gift card anywhere", "Holiday Gift Card Bundle", true},
		{"limited edition anywhere", "Noma 2.0 Limited Edition", true},
		{"clean out", "Clean Out Sale: Assorted", true},
		{"op prefix", "OP: The Escoffier Cookbook", true},
		{"op not at start", "SHOP: Tools", false},
		{"talk and taste prefix", "Talk & Taste with Jacques", true},
		{"le journal prefix", "Le Journal du Patissier #412", true},
		{"cookbook club anywhere", "March Cookbook Club Pick", true},
		{"case insensitive", "GIFT CARD", true},
		{"ordinary book", "The French Laundry Cookbook", false},
		{"empty title", "", false},
	}

	e := LoadExclusions()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := e.ShouldExclude(shopify.Product{Title: tt.title})
			if got != tt.want {
				t.Errorf("ShouldExclude(%q) = %v (%s), want %v", tt.title, got, reason, tt.want)
			}
		})
	}
}

func TestExclusionList_Barcode(t *testing.T) {
	e := LoadExclusions()
	e.AddBarcode("9999999999999")

	p := shopify.Product{
		Title: "Ordinary Book",
		Variants: []shopify.Variant{
			{Barcode: "9780486479637"},
			{Barcode: "9999999999999"},
		},
	}

	got, reason := e.ShouldExclude(p)
	if !got {
		t.Fatal("expected barcode exclusion")
	}
	if reason != "barcode match: 9999999999999" {
		t.Errorf("reason = %q", reason)
	}
}

func TestExclusionList_URL(t *testing.T) {
	e := LoadExclusions()
	e.AddURL("https://kitchenartsandletters.com/products/retired-title")

	got, _ := e.ShouldExclude(shopify.Product{Title: "Retired Title", Handle: "retired-title"})
	if !got {
		t.Fatal("expected url exclusion")
	}

	got, _ = e.ShouldExclude(shopify.Product{Title: "Other Title", Handle: "other-title"})
	if got {
		t.Fatal("unexpected exclusion for unlisted handle")
	}
}

func TestExclusionList_ReasonIncludesPattern(t *testing.T) {
	e := LoadExclusions()

	got, reason := e.ShouldExclude(shopify.Product{Title: "OP: Out of Print Title"})
	if !got {
		t.Fatal("expected exclusion")
	}
	if reason != "partial title match: OP:" {
		t.Errorf("reason = %q", reason)
	}
}
