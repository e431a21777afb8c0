package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
	"github.com/kitchenartsandletters/shopify-reports/internal/scheduler"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Store interface {
	InsertInvocation(ctx context.Context, inv domain.Invocation) error
	ListInvocations(ctx context.Context, report string, limit, offset int) ([]domain.Invocation, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.TriggerEvent) error
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Handler serves the operational HTTP API: report catalog, invocation
// history, and manual dispatch.
type Handler struct {
	catalog map[string]domain.Report
	store   Store
	emitter EventEmitter
	db      HealthChecker
	clock   func() time.Time
}

func NewHandler(catalog []domain.Report, store Store, emitter EventEmitter) *Handler {
	h := &Handler{
		catalog: make(map[string]domain.Report, len(catalog)),
		store:   store,
		emitter: emitter,
		clock:   time.Now,
	}
	for _, r := range catalog {
		h.catalog[r.Name] = r
	}
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/reports" && r.Method == http.MethodGet:
		h.listReports(w, r)

	case strings.HasSuffix(path, "/dispatch") && r.Method == http.MethodPost:
		h.dispatch(w, r)

	case strings.HasSuffix(path, "/invocations") && r.Method == http.MethodGet:
		h.listInvocations(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	// Check database connectivity with timeout
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	resp := ListReportsResponse{Reports: make([]ReportResponse, 0, len(h.catalog))}
	for _, entry := range h.catalog {
		resp.Reports = append(resp.Reports, ReportResponse{
			Name:           entry.Name,
			Enabled:        entry.Enabled,
			CronExpression: entry.Schedule.CronExpression,
			Timezone:       entry.Schedule.Timezone,
			Recipients:     entry.Recipients,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// dispatch fires a report immediately, outside its schedule. The invocation
// lands on the same bus as scheduled ones and goes through the same runner.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	// Path: /reports/{name}/dispatch
	name, ok := reportFromPath(r.URL.Path, "dispatch")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	entry, exists := h.catalog[name]
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown report %q", name))
		return
	}
	if !entry.Enabled {
		writeError(w, http.StatusConflict, fmt.Sprintf("report %q is disabled", name))
		return
	}

	now := h.clock().UTC()
	invocation := domain.Invocation{
		ID:          uuid.New(),
		Report:      name,
		Kind:        domain.InvocationKindManual,
		ScheduledAt: now.Truncate(time.Minute),
		FiredAt:     now,
		Status:      domain.InvocationStatusQueued,
		CreatedAt:   now,
	}

	if err := h.store.InsertInvocation(r.Context(), invocation); err != nil {
		if errors.Is(err, scheduler.ErrDuplicateInvocation) {
			writeError(w, http.StatusConflict, "an invocation for this report already exists in the current minute")
			return
		}
		log.Printf("api: dispatch %s error: %v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to create invocation")
		return
	}

	event := domain.TriggerEvent{
		InvocationID: invocation.ID,
		Report:       name,
		Kind:         domain.InvocationKindManual,
		ScheduledAt:  invocation.ScheduledAt,
		FiredAt:      now,
		CreatedAt:    now,
	}

	if err := h.emitter.Emit(r.Context(), event); err != nil {
		log.Printf("api: dispatch %s emit error: %v", name, err)
		writeError(w, http.StatusServiceUnavailable, "event buffer full, try again")
		return
	}

	writeJSON(w, http.StatusAccepted, DispatchResponse{
		InvocationID: invocation.ID.String(),
		Report:       name,
		Status:       string(invocation.Status),
		FiredAt:      formatTime(now),
	})
}

func (h *Handler) listInvocations(w http.ResponseWriter, r *http.Request) {
	// Path: /reports/{name}/invocations
	name, ok := reportFromPath(r.URL.Path, "invocations")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if _, exists := h.catalog[name]; !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown report %q", name))
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	invocations, err := h.store.ListInvocations(r.Context(), name, limit, offset)
	if err != nil {
		log.Printf("api: list invocations error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list invocations")
		return
	}

	resp := ListInvocationsResponse{Invocations: make([]InvocationResponse, len(invocations))}
	for i, inv := range invocations {
		resp.Invocations[i] = InvocationResponse{
			ID:          inv.ID.String(),
			Report:      inv.Report,
			Kind:        string(inv.Kind),
			ScheduledAt: formatTime(inv.ScheduledAt),
			FiredAt:     formatTime(inv.FiredAt),
			Status:      string(inv.Status),
			CreatedAt:   formatTime(inv.CreatedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// reportFromPath extracts the report name from /reports/{name}/{suffix}.
func reportFromPath(path, suffix string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "reports" || parts[2] != suffix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return fmt.Sprintf("limit exceeds maximum of %d", e.max)
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}
