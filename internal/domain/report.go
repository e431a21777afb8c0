package domain

// Report is a schedulable report definition. Reports are declared in
// configuration, not stored; the catalog is fixed for the process lifetime.
type Report struct {
	Name    string
	Enabled bool

	Schedule Schedule

	// Recipients receive the report email. Comma-joined into the
	// EMAIL_RECIPIENTS binding at invocation time.
	Recipients []string

	Analytics AnalyticsConfig
}

// Schedule describes when a report fires automatically.
type Schedule struct {
	CronExpression string
	Timezone       string // IANA timezone, defaults to UTC
}
