package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-credit-api/internal/lifecycle"
	"github.com/noah-isme/activity-credit-api/internal/models"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
)

type feedbackRepository interface {
	FindByRegistration(ctx context.Context, registrationID string) (*models.Feedback, error)
	FindByID(ctx context.Context, id string) (*models.Feedback, error)
	Create(ctx context.Context, fb *models.Feedback) error
	UpdateStatus(ctx context.Context, id string, status models.FeedbackStatus, reviewerID string, note *string, at time.Time) error
}

type feedbackRegistrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
}

type feedbackActivityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
}

type feedbackLedgerRepository interface {
	Summarize(ctx context.Context, registrationID string, cycle int) (models.LedgerSummary, error)
}

// FeedbackService handles post-attendance reflections and their
// moderation. Approval is what finally awards credit points.
type FeedbackService struct {
	feedbacks     feedbackRepository
	registrations feedbackRegistrationRepository
	activities    feedbackActivityRepository
	ledger        feedbackLedgerRepository
	notifications notifier
	policy        lifecycle.FeedbackPolicy
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewFeedbackService constructs the feedback service.
func NewFeedbackService(feedbacks feedbackRepository, registrations feedbackRegistrationRepository, activities feedbackActivityRepository, ledger feedbackLedgerRepository, notifications notifier, policy lifecycle.FeedbackPolicy, validate *validator.Validate, logger *zap.Logger, now func() time.Time) *FeedbackService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Cooldown <= 0 {
		policy = lifecycle.DefaultFeedbackPolicy
	}
	if now == nil {
		now = time.Now
	}
	return &FeedbackService{
		feedbacks:     feedbacks,
		registrations: registrations,
		activities:    activities,
		ledger:        ledger,
		notifications: notifications,
		policy:        policy,
		validator:     validate,
		logger:        logger,
		now:           now,
	}
}

// SubmitFeedbackRequest is the student's reflection payload.
type SubmitFeedbackRequest struct {
	Content string `json:"content" validate:"required,min=10,max=4000"`
}

// Submit files feedback for an attended registration once the cooldown
// window opens.
func (s *FeedbackService) Submit(ctx context.Context, studentID, registrationID string, req SubmitFeedbackRequest) (*models.Feedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}

	reg, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg.StudentID != studentID {
		return nil, appErrors.ErrForbidden
	}
	if reg.Status != models.StatusAttended {
		return nil, appErrors.Clone(appErrors.ErrFeedbackNotOpen, "feedback opens after attendance is confirmed")
	}

	existing, err := s.feedbacks.FindByRegistration(ctx, registrationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "feedback already submitted")
	}

	activity, err := s.activities.FindByID(ctx, reg.ActivityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	summary, err := s.ledger.Summarize(ctx, reg.ID, reg.Cycle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}

	now := s.now().UTC()
	availableAt := s.policy.FeedbackAvailableAt(activity, reg, summary)
	if now.Before(availableAt) {
		return nil, appErrors.Clone(appErrors.ErrFeedbackNotOpen,
			fmt.Sprintf("feedback opens at %s", availableAt.UTC().Format(time.RFC3339)))
	}

	fb := &models.Feedback{
		ID:             uuid.NewString(),
		RegistrationID: registrationID,
		Content:        strings.TrimSpace(req.Content),
		Status:         models.FeedbackPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.feedbacks.Create(ctx, fb); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store feedback")
	}
	return fb, nil
}

// ModerateFeedbackRequest approves or rejects a pending feedback.
type ModerateFeedbackRequest struct {
	Status string  `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Note   *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// Moderate settles a pending feedback and notifies the student.
func (s *FeedbackService) Moderate(ctx context.Context, reviewerID, feedbackID string, req ModerateFeedbackRequest) (*models.Feedback, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid moderation payload")
	}

	fb, err := s.feedbacks.FindByID(ctx, feedbackID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "feedback not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback")
	}
	if fb.Status != models.FeedbackPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "feedback already moderated")
	}

	status := models.FeedbackStatus(strings.ToUpper(req.Status))
	now := s.now().UTC()
	if err := s.feedbacks.UpdateStatus(ctx, feedbackID, status, reviewerID, req.Note, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to moderate feedback")
	}

	fb.Status = status
	fb.ReviewedBy = &reviewerID
	fb.ReviewNote = req.Note
	fb.UpdatedAt = now

	s.notifyModerated(ctx, fb)
	return fb, nil
}

func (s *FeedbackService) notifyModerated(ctx context.Context, fb *models.Feedback) {
	if s.notifications == nil {
		return
	}
	reg, err := s.registrations.FindByID(ctx, fb.RegistrationID)
	if err != nil {
		s.logger.Warn("failed to load registration for moderation notice", zap.String("feedback_id", fb.ID), zap.Error(err))
		return
	}
	message := "Your activity feedback was reviewed."
	if fb.Status == models.FeedbackApproved {
		if activity, err := s.activities.FindByID(ctx, reg.ActivityID); err == nil {
			message = fmt.Sprintf("Feedback for %q approved. %d credit points awarded.", activity.Title, activity.CreditPoints)
		}
	} else if fb.ReviewNote != nil {
		message = fmt.Sprintf("Your feedback was rejected: %s", *fb.ReviewNote)
	}
	s.notifications.Notify(Notification{
		UserID:  reg.StudentID,
		Type:    NotificationFeedbackModerated,
		Title:   "Feedback reviewed",
		Message: message,
		Data:    map[string]interface{}{"registration_id": reg.ID, "status": string(fb.Status)},
	})
}
