package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-credit-api/internal/models"
)

// FeedbackRepository persists post-attendance feedback.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository constructs the repository.
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

const feedbackColumns = `id, registration_id, content, status, reviewed_by, review_note, created_at, updated_at`

// FindByRegistration returns the feedback for a registration, or nil.
func (r *FeedbackRepository) FindByRegistration(ctx context.Context, registrationID string) (*models.Feedback, error) {
	query := fmt.Sprintf(`SELECT %s FROM feedbacks WHERE registration_id = $1`, feedbackColumns)
	var fb models.Feedback
	if err := r.db.GetContext(ctx, &fb, query, registrationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find feedback: %w", err)
	}
	return &fb, nil
}

// FindByRegistrations returns feedback mapped by registration ID.
func (r *FeedbackRepository) FindByRegistrations(ctx context.Context, registrationIDs []string) (map[string]*models.Feedback, error) {
	if len(registrationIDs) == 0 {
		return map[string]*models.Feedback{}, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM feedbacks WHERE registration_id IN (?)`, feedbackColumns), registrationIDs)
	if err != nil {
		return nil, fmt.Errorf("build feedback query: %w", err)
	}
	query = r.db.Rebind(query)
	var rows []models.Feedback
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find feedbacks: %w", err)
	}
	result := make(map[string]*models.Feedback, len(rows))
	for i := range rows {
		result[rows[i].RegistrationID] = &rows[i]
	}
	return result, nil
}

// FindByID returns one feedback row.
func (r *FeedbackRepository) FindByID(ctx context.Context, id string) (*models.Feedback, error) {
	query := fmt.Sprintf(`SELECT %s FROM feedbacks WHERE id = $1`, feedbackColumns)
	var fb models.Feedback
	if err := r.db.GetContext(ctx, &fb, query, id); err != nil {
		return nil, err
	}
	return &fb, nil
}

// Create persists new feedback in pending state.
func (r *FeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Status == "" {
		fb.Status = models.FeedbackPending
	}
	const query = `INSERT INTO feedbacks (id, registration_id, content, status)
        VALUES (:id, :registration_id, :content, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, fb); err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// UpdateStatus records a moderation decision.
func (r *FeedbackRepository) UpdateStatus(ctx context.Context, id string, status models.FeedbackStatus, reviewerID string, note *string, at time.Time) error {
	const query = `UPDATE feedbacks SET status = $2, reviewed_by = $3, review_note = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reviewerID, note, at); err != nil {
		return fmt.Errorf("update feedback status: %w", err)
	}
	return nil
}
