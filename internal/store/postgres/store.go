package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenartsandletters/shopify-reports/internal/domain"
	"github.com/kitchenartsandletters/shopify-reports/internal/reconciler"
	"github.com/kitchenartsandletters/shopify-reports/internal/runner"
	"github.com/kitchenartsandletters/shopify-reports/internal/scheduler"
)

// Store persists invocation history in PostgreSQL. It backs the scheduler,
// the runner, the reconciler, and the HTTP API.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a new PostgreSQL store with the given database connection.
// opTimeout bounds each individual database operation; 0 disables the bound.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

// withTimeout derives a context bounded by the store's operation timeout.
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// InsertInvocation inserts a new invocation record.
// Returns scheduler.ErrDuplicateInvocation if (report, scheduled_at) already exists.
func (s *Store) InsertInvocation(ctx context.Context, inv domain.Invocation) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertInvocation,
		inv.ID,
		inv.Report,
		string(inv.Kind),
		inv.ScheduledAt,
		inv.FiredAt,
		string(inv.Status),
		inv.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return scheduler.ErrDuplicateInvocation
		}
		return err
	}
	return nil
}

// InsertRunAttempt inserts a run attempt record.
func (s *Store) InsertRunAttempt(ctx context.Context, attempt domain.RunAttempt) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertRunAttempt,
		attempt.ID,
		attempt.InvocationID,
		attempt.ProductsChecked,
		attempt.IssuesFound,
		attempt.ReportFile,
		attempt.Error,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	return err
}

// UpdateInvocationStatus updates the status of an invocation.
// Returns runner.ErrStatusTransitionDenied if the invocation is already in a
// terminal state. This uses an atomic UPDATE with WHERE clause to prevent
// TOCTOU race conditions.
func (s *Store) UpdateInvocationStatus(ctx context.Context, invocationID uuid.UUID, status domain.InvocationStatus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Single atomic update with guard in WHERE clause.
	// PostgreSQL acquires row lock before evaluating WHERE,
	// ensuring serialized access under concurrency.
	result, err := s.db.ExecContext(ctx, queryUpdateInvocationStatus, string(status), invocationID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Either: (a) invocation not found, or (b) already in terminal state.
		// Distinguish by checking if the row exists.
		var currentStatus string
		err := s.db.QueryRowContext(ctx, queryGetInvocationStatus, invocationID).Scan(&currentStatus)
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		if err != nil {
			return err
		}
		// Row exists but wasn't updated => terminal state
		return runner.ErrStatusTransitionDenied
	}

	return nil
}

// ListInvocations returns invocations for a report, newest first, paginated
// by limit and offset.
func (s *Store) ListInvocations(ctx context.Context, report string, limit, offset int) ([]domain.Invocation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListInvocations, report, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvocations(rows)
}

// GetStaleInvocations returns non-terminal invocations that fired before the
// given threshold time, oldest first, limited to maxResults.
func (s *Store) GetStaleInvocations(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.Invocation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetStaleInvocations, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvocations(rows)
}

// ListRunAttempts returns the run attempts for an invocation.
func (s *Store) ListRunAttempts(ctx context.Context, invocationID uuid.UUID) ([]domain.RunAttempt, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListRunAttempts, invocationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RunAttempt
	for rows.Next() {
		var attempt domain.RunAttempt
		err := rows.Scan(
			&attempt.ID,
			&attempt.InvocationID,
			&attempt.ProductsChecked,
			&attempt.IssuesFound,
			&attempt.ReportFile,
			&attempt.Error,
			&attempt.StartedAt,
			&attempt.FinishedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanInvocations(rows *sql.Rows) ([]domain.Invocation, error) {
	var result []domain.Invocation
	for rows.Next() {
		var inv domain.Invocation
		var kind, status string

		err := rows.Scan(
			&inv.ID,
			&inv.Report,
			&kind,
			&inv.ScheduledAt,
			&inv.FiredAt,
			&status,
			&inv.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		inv.Kind = domain.InvocationKind(kind)
		inv.Status = domain.InvocationStatus(status)
		result = append(result, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	// PostgreSQL unique violation error code is 23505
	errStr := err.Error()
	return strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "duplicate key")
}

// Compile-time interface assertions
var (
	_ scheduler.Store  = (*Store)(nil)
	_ runner.Store     = (*Store)(nil)
	_ reconciler.Store = (*Store)(nil)
)
