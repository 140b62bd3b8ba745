package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/activity-credit-api/internal/models"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
)

// ErrTxConflict marks a transient transaction conflict the caller may
// retry once.
var ErrTxConflict = errors.New("transaction conflict")

// Postgres error codes.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// AttendanceRepository owns the append-only attendance ledger.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const entryColumns = `id, registration_id, cycle, phase, captured_at, note, evidence_bucket, evidence_path, evidence_url, verdict, score, resolved_by, resolved_at, created_at`

// ListByRegistration returns the ledger entries of one registration
// cycle in capture order.
func (r *AttendanceRepository) ListByRegistration(ctx context.Context, registrationID string, cycle int) ([]models.AttendanceEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_entries WHERE registration_id = $1 AND cycle = $2 ORDER BY captured_at ASC`, entryColumns)
	var entries []models.AttendanceEntry
	if err := r.db.SelectContext(ctx, &entries, query, registrationID, cycle); err != nil {
		return nil, fmt.Errorf("list attendance entries: %w", err)
	}
	return entries, nil
}

// Summarize reduces the current cycle's ledger to the check-in and
// check-out capture times.
func (r *AttendanceRepository) Summarize(ctx context.Context, registrationID string, cycle int) (models.LedgerSummary, error) {
	entries, err := r.ListByRegistration(ctx, registrationID, cycle)
	if err != nil {
		return models.LedgerSummary{}, err
	}
	var summary models.LedgerSummary
	for i := range entries {
		e := entries[i]
		switch e.Phase {
		case models.PhaseCheckin:
			summary.CheckinAt = &entries[i].CapturedAt
		case models.PhaseCheckout:
			summary.CheckoutAt = &entries[i].CapturedAt
		}
	}
	return summary, nil
}

// Append inserts a ledger entry and, when newStatus is non-nil,
// transitions the registration in the same transaction. The unique
// index on (registration_id, cycle, phase) is the authoritative
// duplicate-phase safeguard; a violation surfaces as DuplicatePhase so
// losers of the race get the idempotency signal rather than a generic
// failure.
func (r *AttendanceRepository) Append(ctx context.Context, entry *models.AttendanceEntry, newStatus *models.RegistrationStatus, completedAt *time.Time) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO attendance_entries (id, registration_id, cycle, phase, captured_at, note, evidence_bucket, evidence_path, evidence_url, verdict, score)
        VALUES (:id, :registration_id, :cycle, :phase, :captured_at, :note, :evidence_bucket, :evidence_path, :evidence_url, :verdict, :score)`
	if _, err := tx.NamedExecContext(ctx, insert, entry); err != nil {
		return classifyTxError(err, "append attendance entry")
	}

	if newStatus != nil {
		const update = `UPDATE registrations SET status = $2, completed_at = $3, updated_at = NOW() WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, entry.RegistrationID, *newStatus, completedAt); err != nil {
			return classifyTxError(err, "transition registration")
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyTxError(err, "commit attendance tx")
	}
	return nil
}

// ListForReview returns flagged entries joined with student context.
func (r *AttendanceRepository) ListForReview(ctx context.Context, filter models.AttendanceEntryFilter) ([]models.AttendanceEntryDetail, error) {
	query := `SELECT e.id, e.registration_id, e.cycle, e.phase, e.captured_at, e.note,
        e.evidence_bucket, e.evidence_path, e.evidence_url, e.verdict, e.score, e.resolved_by, e.resolved_at, e.created_at,
        r.student_id, u.full_name AS student_name, r.activity_id
        FROM attendance_entries e
        JOIN registrations r ON r.id = e.registration_id AND r.cycle = e.cycle
        JOIN users u ON u.id = r.student_id`
	var conditions []string
	var args []interface{}
	if filter.ActivityID != "" {
		conditions = append(conditions, fmt.Sprintf("r.activity_id = $%d", len(args)+1))
		args = append(args, filter.ActivityID)
	}
	if filter.Verdict != "" {
		conditions = append(conditions, fmt.Sprintf("e.verdict = $%d", len(args)+1))
		args = append(args, filter.Verdict)
	}
	if filter.Phase != "" {
		conditions = append(conditions, fmt.Sprintf("e.phase = $%d", len(args)+1))
		args = append(args, filter.Phase)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	query += fmt.Sprintf(" ORDER BY e.captured_at DESC LIMIT %d OFFSET %d", size, (page-1)*size)

	var rows []models.AttendanceEntryDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list review entries: %w", err)
	}
	return rows, nil
}

// Resolve records a manual verdict override on a reviewed entry.
func (r *AttendanceRepository) Resolve(ctx context.Context, entryID string, verdict models.MatchVerdict, reviewerID string, at time.Time) error {
	const query = `UPDATE attendance_entries SET verdict = $2, resolved_by = $3, resolved_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, entryID, verdict, reviewerID, at)
	if err != nil {
		return fmt.Errorf("resolve attendance entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// FindEntry returns one ledger entry by ID.
func (r *AttendanceRepository) FindEntry(ctx context.Context, id string) (*models.AttendanceEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_entries WHERE id = $1`, entryColumns)
	var entry models.AttendanceEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

func classifyTxError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return appErrors.ErrDuplicatePhase
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%s: %w", op, ErrTxConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
