package config

import "strings"

// Bindings is the set of named values exposed to every report invocation.
// Four are secrets resolved from the environment; EmailRecipients is
// declared configuration with a literal default.
type Bindings struct {
	ShopURL            string
	ShopifyAccessToken string
	SendGridAPIKey     string
	EmailSender        string
	EmailRecipients    string
}

// Bindings extracts the invocation binding set from the configuration.
func (c Config) Bindings() Bindings {
	return Bindings{
		ShopURL:            c.ShopURL,
		ShopifyAccessToken: c.ShopifyAccessToken,
		SendGridAPIKey:     c.SendGridAPIKey,
		EmailSender:        c.EmailSender,
		EmailRecipients:    c.EmailRecipients,
	}
}

// Missing returns the environment variable names of unresolved bindings.
// An invocation must not run the report body while any name is missing.
func (b Bindings) Missing() []string {
	var missing []string
	if b.ShopURL == "" {
		missing = append(missing, "SHOP_URL")
	}
	if b.ShopifyAccessToken == "" {
		missing = append(missing, "SHOPIFY_ACCESS_TOKEN")
	}
	if b.SendGridAPIKey == "" {
		missing = append(missing, "SENDGRID_API_KEY")
	}
	if b.EmailSender == "" {
		missing = append(missing, "EMAIL_SENDER")
	}
	if b.EmailRecipients == "" {
		missing = append(missing, "EMAIL_RECIPIENTS")
	}
	return missing
}

// Recipients splits the comma-separated recipient list, trimming whitespace
// and dropping empty entries.
func (b Bindings) Recipients() []string {
	var out []string
	for _, r := range strings.Split(b.EmailRecipients, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
