package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-credit-api/internal/lifecycle"
	"github.com/noah-isme/activity-credit-api/internal/models"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
)

type registrationRepository interface {
	FindByStudentAndActivity(ctx context.Context, studentID, activityID string) (*models.Registration, error)
	CountActive(ctx context.Context, activityID string) (int, error)
	Create(ctx context.Context, reg *models.Registration) error
	Cancel(ctx context.Context, id string, reason *string, at time.Time) error
	Reactivate(ctx context.Context, id string, at time.Time) error
	ListByStudent(ctx context.Context, studentID string, filter models.RegistrationFilter) ([]models.RegistrationRow, error)
	SweepEligibleIDs(ctx context.Context, studentID string, now time.Time) ([]string, error)
	MarkAbsent(ctx context.Context, ids []string, at time.Time) (int64, error)
}

type registrationActivityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
}

type registrationLedgerRepository interface {
	Summarize(ctx context.Context, registrationID string, cycle int) (models.LedgerSummary, error)
}

type registrationFeedbackRepository interface {
	FindByRegistrations(ctx context.Context, registrationIDs []string) (map[string]*models.Feedback, error)
}

type registrationProfileReader interface {
	Get(ctx context.Context, userID string) (*models.FaceProfile, error)
}

// RegistrationService manages the student/activity relation: signup,
// cancellation, re-registration and the projected listing.
type RegistrationService struct {
	registrations registrationRepository
	activities    registrationActivityRepository
	ledger        registrationLedgerRepository
	feedbacks     registrationFeedbackRepository
	profiles      registrationProfileReader
	notifications notifier
	metrics       *MetricsService
	policy        lifecycle.FeedbackPolicy
	minEnrolled   int
	logger        *zap.Logger
	now           func() time.Time
}

// RegistrationServiceDeps bundles the service's collaborators.
type RegistrationServiceDeps struct {
	Registrations registrationRepository
	Activities    registrationActivityRepository
	Ledger        registrationLedgerRepository
	Feedbacks     registrationFeedbackRepository
	Profiles      registrationProfileReader
	Notifications notifier
	Metrics       *MetricsService
	Policy        lifecycle.FeedbackPolicy
	MinEnrolled   int
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewRegistrationService constructs the registration service.
func NewRegistrationService(deps RegistrationServiceDeps) *RegistrationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy.Cooldown <= 0 {
		deps.Policy = lifecycle.DefaultFeedbackPolicy
	}
	if deps.MinEnrolled <= 0 {
		deps.MinEnrolled = 5
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &RegistrationService{
		registrations: deps.Registrations,
		activities:    deps.Activities,
		ledger:        deps.Ledger,
		feedbacks:     deps.Feedbacks,
		profiles:      deps.Profiles,
		notifications: deps.Notifications,
		metrics:       deps.Metrics,
		policy:        deps.Policy,
		minEnrolled:   deps.MinEnrolled,
		logger:        deps.Logger,
		now:           deps.Now,
	}
}

// Register signs the student up for an activity. A previously cancelled
// registration is reactivated with a bumped cycle, which gives the new
// participation a clean attendance ledger.
func (s *RegistrationService) Register(ctx context.Context, studentID, activityID string) (*models.Registration, error) {
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	if !activity.Published {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
	}

	now := s.now().UTC()
	if now.After(activity.EndTime) {
		return nil, appErrors.ErrEnded
	}

	if activity.Method.RequiresBiometric() {
		profile, err := s.profiles.Get(ctx, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load face profile")
		}
		if !profile.Usable(s.minEnrolled) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled,
				fmt.Sprintf("this activity verifies attendance by photo; enroll at least %d face samples first", s.minEnrolled))
		}
	}

	existing, err := s.registrations.FindByStudentAndActivity(ctx, studentID, activityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if existing != nil && existing.Status != models.StatusCancelled {
		return nil, appErrors.ErrAlreadyRegistered
	}

	if activity.MaxParticipants > 0 {
		active, err := s.registrations.CountActive(ctx, activityID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
		}
		if active >= activity.MaxParticipants {
			return nil, appErrors.ErrActivityFull
		}
	}

	var reg *models.Registration
	if existing != nil {
		if err := s.registrations.Reactivate(ctx, existing.ID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrAlreadyRegistered
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-register")
		}
		reg = existing
		reg.Status = models.StatusRegistered
		reg.Cycle = existing.Cycle + 1
		reg.CancelReason = nil
		reg.ApprovedAt = nil
		reg.CompletedAt = nil
		reg.RegisteredAt = now
	} else {
		reg = &models.Registration{
			ID:           uuid.NewString(),
			ActivityID:   activityID,
			StudentID:    studentID,
			Status:       models.StatusRegistered,
			Cycle:        1,
			RegisteredAt: now,
		}
		if err := s.registrations.Create(ctx, reg); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
		}
	}

	if s.notifications != nil {
		s.notifications.Notify(Notification{
			UserID:  studentID,
			Type:    NotificationRegistration,
			Title:   "Registration confirmed",
			Message: fmt.Sprintf("You are registered for %q.", activity.Title),
			Data:    map[string]interface{}{"activity_id": activity.ID},
		})
	}
	return reg, nil
}

// Cancel withdraws the caller's active registration.
func (s *RegistrationService) Cancel(ctx context.Context, studentID, activityID string, reason *string) error {
	reg, err := s.registrations.FindByStudentAndActivity(ctx, studentID, activityID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg == nil || reg.Status == models.StatusCancelled {
		return appErrors.ErrNotRegistered
	}
	if reg.Status == models.StatusAttended || reg.Status == models.StatusAbsent {
		return appErrors.Clone(appErrors.ErrConflict, "participation already settled, cannot cancel")
	}
	if err := s.registrations.Cancel(ctx, reg.ID, reason, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotRegistered
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	return nil
}

// RegistrationView is one listing row with its derived state.
type RegistrationView struct {
	models.RegistrationRow
	State               lifecycle.DerivedState `json:"derived_state"`
	FeedbackAvailableAt *time.Time             `json:"feedback_available_at,omitempty"`
}

// List returns the student's registrations with their projected states.
// The absence sweep runs first so closed windows without ledger entries
// surface as absent rather than stale.
func (s *RegistrationService) List(ctx context.Context, studentID string, filter models.RegistrationFilter) ([]RegistrationView, error) {
	if _, err := s.SweepAbsences(ctx, studentID); err != nil {
		// Sweep failures must not block reads; the next call retries.
		s.logger.Warn("absence sweep failed", zap.String("student_id", studentID), zap.Error(err))
	}

	rows, err := s.registrations.ListByStudent(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	if len(rows) == 0 {
		return []RegistrationView{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	feedbacks, err := s.feedbacks.FindByRegistrations(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback")
	}

	now := s.now().UTC()
	views := make([]RegistrationView, 0, len(rows))
	for _, row := range rows {
		activity := row.ActivityWindow()
		summary, err := s.ledger.Summarize(ctx, row.ID, row.Cycle)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
		}
		reg := row.Registration
		view := RegistrationView{
			RegistrationRow: row,
			State:           lifecycle.DeriveState(&activity, &reg, summary, feedbacks[row.ID], s.policy, now),
		}
		if reg.Status == models.StatusAttended {
			availableAt := s.policy.FeedbackAvailableAt(&activity, &reg, summary)
			view.FeedbackAvailableAt = &availableAt
		}
		views = append(views, view)
	}
	return views, nil
}

// SweepAbsences lazily marks registrations absent once their activity
// window closed with no ledger entries in the current cycle. The sweep
// is idempotent; concurrent sweeps settle on the same rows.
func (s *RegistrationService) SweepAbsences(ctx context.Context, studentID string) (int64, error) {
	now := s.now().UTC()
	ids, err := s.registrations.SweepEligibleIDs(ctx, studentID, now)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	swept, err := s.registrations.MarkAbsent(ctx, ids, now)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		if s.metrics != nil {
			s.metrics.RecordSweep(swept)
		}
		s.logger.Info("absence sweep settled registrations",
			zap.String("student_id", studentID),
			zap.Int64("rows", swept))
	}
	return swept, nil
}
