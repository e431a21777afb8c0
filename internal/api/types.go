package api

import "time"

type ReportResponse struct {
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	CronExpression string   `json:"cron_expression"`
	Timezone       string   `json:"timezone"`
	Recipients     []string `json:"recipients"`
}

type ListReportsResponse struct {
	Reports []ReportResponse `json:"reports"`
}

type InvocationResponse struct {
	ID          string `json:"id"`
	Report      string `json:"report"`
	Kind        string `json:"kind"`
	ScheduledAt string `json:"scheduled_at"`
	FiredAt     string `json:"fired_at"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type ListInvocationsResponse struct {
	Invocations []InvocationResponse `json:"invocations"`
}

type DispatchResponse struct {
	InvocationID string `json:"invocation_id"`
	Report       string `json:"report"`
	Status       string `json:"status"`
	FiredAt      string `json:"fired_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
