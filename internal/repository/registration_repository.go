package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/activity-credit-api/internal/models"
)

// RegistrationRepository handles persistence of activity registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, activity_id, student_id, status, cycle, cancel_reason, registered_at, approved_at, completed_at, created_at, updated_at`

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1`, registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindByStudentAndActivity returns the registration for a (student,
// activity) pair regardless of status. At most one row exists per pair;
// re-registration recycles it.
func (r *RegistrationRepository) FindByStudentAndActivity(ctx context.Context, studentID, activityID string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE student_id = $1 AND activity_id = $2`, registrationColumns)
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, studentID, activityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// CountActive counts registrations occupying activity capacity.
func (r *RegistrationRepository) CountActive(ctx context.Context, activityID string) (int, error) {
	const query = `SELECT COUNT(*) FROM registrations WHERE activity_id = $1 AND status IN ($2, $3, $4)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, activityID,
		models.StatusRegistered, models.StatusAttended, models.StatusPendingReview); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// Create persists a fresh registration.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = models.StatusRegistered
	}
	if reg.Cycle == 0 {
		reg.Cycle = 1
	}
	const query = `INSERT INTO registrations (id, activity_id, student_id, status, cycle, cancel_reason, registered_at, approved_at, completed_at)
        VALUES (:id, :activity_id, :student_id, :status, :cycle, :cancel_reason, :registered_at, :approved_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// Cancel marks a registration cancelled with the provided reason.
func (r *RegistrationRepository) Cancel(ctx context.Context, id string, reason *string, at time.Time) error {
	const query = `UPDATE registrations SET status = $2, cancel_reason = $3, updated_at = $4 WHERE id = $1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, id, models.StatusCancelled, reason, at)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reactivate starts a fresh registration cycle on a cancelled row:
// status back to registered, cancellation reason and attendance
// timestamps cleared, cycle bumped so a new ledger begins.
func (r *RegistrationRepository) Reactivate(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE registrations
        SET status = $2, cycle = cycle + 1, cancel_reason = NULL, approved_at = NULL, completed_at = NULL, registered_at = $3, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.StatusRegistered, at, models.StatusCancelled)
	if err != nil {
		return fmt.Errorf("reactivate registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByStudent returns the student's registrations joined with their
// activity windows, newest first.
func (r *RegistrationRepository) ListByStudent(ctx context.Context, studentID string, filter models.RegistrationFilter) ([]models.RegistrationRow, error) {
	query := `SELECT r.id, r.activity_id, r.student_id, r.status, r.cycle, r.cancel_reason, r.registered_at, r.approved_at, r.completed_at, r.created_at, r.updated_at,
        a.title AS activity_title, a.start_time AS activity_start, a.end_time AS activity_end,
        a.method AS activity_method, a.credit_points
        FROM registrations r
        JOIN activities a ON a.id = r.activity_id
        WHERE r.student_id = $1`
	args := []interface{}{studentID}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND r.status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.FeedbackStatus != "" {
		query += fmt.Sprintf(` AND EXISTS (
            SELECT 1 FROM feedbacks f
            WHERE f.registration_id = r.id AND f.status = $%d
        )`, len(args)+1)
		args = append(args, filter.FeedbackStatus)
	}
	query += " ORDER BY r.registered_at DESC"

	var rows []models.RegistrationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return rows, nil
}

// SweepEligibleIDs computes registrations that should be swept to
// absent: still registered, activity ended, and no ledger entry in the
// current cycle. Empty studentID widens the sweep to everyone.
func (r *RegistrationRepository) SweepEligibleIDs(ctx context.Context, studentID string, now time.Time) ([]string, error) {
	query := `SELECT r.id FROM registrations r
        JOIN activities a ON a.id = r.activity_id
        WHERE r.status = $1 AND a.end_time < $2
        AND NOT EXISTS (
            SELECT 1 FROM attendance_entries e
            WHERE e.registration_id = r.id AND e.cycle = r.cycle
        )`
	args := []interface{}{models.StatusRegistered, now}
	if studentID != "" {
		query += fmt.Sprintf(" AND r.student_id = $%d", len(args)+1)
		args = append(args, studentID)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("compute sweep candidates: %w", err)
	}
	return ids, nil
}

// MarkAbsent transitions the given registrations to absent in one
// batched update. The status guard keeps concurrent sweeps idempotent:
// rows already swept are untouched and the returned count reflects only
// actual transitions.
func (r *RegistrationRepository) MarkAbsent(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE registrations SET status = $1, updated_at = $2 WHERE id = ANY($3) AND status = $4`
	res, err := r.db.ExecContext(ctx, query, models.StatusAbsent, at, pq.Array(ids), models.StatusRegistered)
	if err != nil {
		return 0, fmt.Errorf("mark absences: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return affected, nil
}

// UpdateStatus sets the registration status, recording the completion
// timestamp for terminal attendance outcomes.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus, completedAt *time.Time) error {
	const query = `UPDATE registrations SET status = $2, completed_at = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, completedAt); err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	return nil
}

// Roster returns the participant list of an activity with the current
// cycle's check-in and check-out times. Cancelled registrations are
// excluded.
func (r *RegistrationRepository) Roster(ctx context.Context, activityID string) ([]models.RosterRow, error) {
	const query = `SELECT r.id AS registration_id, r.student_id, u.full_name AS student_name, u.email AS student_email,
        r.status, r.registered_at,
        MIN(e.captured_at) FILTER (WHERE e.phase = $2) AS checkin_at,
        MIN(e.captured_at) FILTER (WHERE e.phase = $3) AS checkout_at
        FROM registrations r
        JOIN users u ON u.id = r.student_id
        LEFT JOIN attendance_entries e ON e.registration_id = r.id AND e.cycle = r.cycle
        WHERE r.activity_id = $1 AND r.status <> $4
        GROUP BY r.id, u.full_name, u.email
        ORDER BY u.full_name ASC`
	var rows []models.RosterRow
	if err := r.db.SelectContext(ctx, &rows, query, activityID,
		models.PhaseCheckin, models.PhaseCheckout, models.StatusCancelled); err != nil {
		return nil, fmt.Errorf("load activity roster: %w", err)
	}
	return rows, nil
}
