package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-credit-api/internal/face"
	"github.com/noah-isme/activity-credit-api/internal/lifecycle"
	"github.com/noah-isme/activity-credit-api/internal/models"
	"github.com/noah-isme/activity-credit-api/internal/repository"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
	"github.com/noah-isme/activity-credit-api/pkg/storage"
)

type attendanceRegistrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByStudentAndActivity(ctx context.Context, studentID, activityID string) (*models.Registration, error)
}

type attendanceActivityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
}

type attendanceLedgerRepository interface {
	ListByRegistration(ctx context.Context, registrationID string, cycle int) ([]models.AttendanceEntry, error)
	Summarize(ctx context.Context, registrationID string, cycle int) (models.LedgerSummary, error)
	Append(ctx context.Context, entry *models.AttendanceEntry, newStatus *models.RegistrationStatus, completedAt *time.Time) error
	ListForReview(ctx context.Context, filter models.AttendanceEntryFilter) ([]models.AttendanceEntryDetail, error)
	FindEntry(ctx context.Context, id string) (*models.AttendanceEntry, error)
	Resolve(ctx context.Context, entryID string, verdict models.MatchVerdict, reviewerID string, at time.Time) error
}

type faceProfileReader interface {
	Get(ctx context.Context, userID string) (*models.FaceProfile, error)
}

type attendanceFeedbackRepository interface {
	FindByRegistration(ctx context.Context, registrationID string) (*models.Feedback, error)
}

type notifier interface {
	Notify(n Notification)
}

// AttendanceService runs the check-in/check-out pipeline: window and
// phase-order guards, biometric verification, evidence capture and the
// atomic ledger append.
type AttendanceService struct {
	registrations attendanceRegistrationRepository
	activities    attendanceActivityRepository
	ledger        attendanceLedgerRepository
	profiles      faceProfileReader
	feedbacks     attendanceFeedbackRepository
	store         storage.ObjectStorage
	matcher       *face.Matcher
	notifications notifier
	metrics       *MetricsService
	policy        lifecycle.FeedbackPolicy
	minEnrolled   int
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// AttendanceServiceDeps bundles the service's collaborators.
type AttendanceServiceDeps struct {
	Registrations attendanceRegistrationRepository
	Activities    attendanceActivityRepository
	Ledger        attendanceLedgerRepository
	Profiles      faceProfileReader
	Feedbacks     attendanceFeedbackRepository
	Storage       storage.ObjectStorage
	Matcher       *face.Matcher
	Notifications notifier
	Metrics       *MetricsService
	Policy        lifecycle.FeedbackPolicy
	MinEnrolled   int
	Validator     *validator.Validate
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(deps AttendanceServiceDeps) *AttendanceService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Matcher == nil {
		deps.Matcher = face.NewMatcher(face.MatcherConfig{})
	}
	if deps.Policy.Cooldown <= 0 {
		deps.Policy = lifecycle.DefaultFeedbackPolicy
	}
	if deps.MinEnrolled <= 0 {
		deps.MinEnrolled = 3
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &AttendanceService{
		registrations: deps.Registrations,
		activities:    deps.Activities,
		ledger:        deps.Ledger,
		profiles:      deps.Profiles,
		feedbacks:     deps.Feedbacks,
		store:         deps.Storage,
		matcher:       deps.Matcher,
		notifications: deps.Notifications,
		metrics:       deps.Metrics,
		policy:        deps.Policy,
		minEnrolled:   deps.MinEnrolled,
		validator:     deps.Validator,
		logger:        deps.Logger,
		now:           deps.Now,
	}
}

// RecordAttendanceRequest is the check-in/check-out payload. Evidence
// is a base64-encoded photo; Descriptor is required for photo-method
// activities and ignored otherwise.
type RecordAttendanceRequest struct {
	Phase      string    `json:"phase" validate:"required"`
	Descriptor []float64 `json:"descriptor,omitempty"`
	Evidence   string    `json:"evidence,omitempty"`
	Note       *string   `json:"note,omitempty"`
	// Absent declares the participation lost at check-out time; the
	// registration settles as VANG_MAT instead of DA_THAM_GIA.
	Absent bool `json:"absent,omitempty"`
}

// AttendanceResult reports the recorded entry and the projection the
// client should render next.
type AttendanceResult struct {
	Entry          *models.AttendanceEntry `json:"entry"`
	State          lifecycle.DerivedState  `json:"state"`
	RequiresReview bool                    `json:"requires_review"`
	Message        string                  `json:"message"`
}

// Record appends one attendance entry for the caller's registration.
// A failed face match is still recorded, with a REJECTED verdict; the
// request errors only on guard violations.
func (s *AttendanceService) Record(ctx context.Context, studentID, activityID string, req RecordAttendanceRequest) (*AttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	phase := models.AttendancePhase(strings.ToUpper(req.Phase))
	if !phase.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "phase must be CHECKIN or CHECKOUT")
	}

	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}

	reg, err := s.registrations.FindByStudentAndActivity(ctx, studentID, activityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg == nil || reg.Status == models.StatusCancelled {
		return nil, appErrors.ErrNotRegistered
	}

	now := s.now().UTC()
	if now.Before(activity.StartTime) {
		return nil, appErrors.ErrNotStarted
	}
	if now.After(activity.EndTime) {
		return nil, appErrors.ErrEnded
	}

	summary, err := s.ledger.Summarize(ctx, reg.ID, reg.Cycle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance ledger")
	}
	switch phase {
	case models.PhaseCheckin:
		if summary.HasCheckin() {
			return nil, appErrors.ErrDuplicatePhase
		}
	case models.PhaseCheckout:
		if !summary.HasCheckin() {
			return nil, appErrors.ErrCheckinRequired
		}
		if summary.HasCheckout() {
			return nil, appErrors.ErrDuplicatePhase
		}
	}

	entry := &models.AttendanceEntry{
		RegistrationID: reg.ID,
		Cycle:          reg.Cycle,
		Phase:          phase,
		CapturedAt:     now,
		Note:           req.Note,
	}

	explicitAbsent := req.Absent && phase == models.PhaseCheckout

	var match *face.MatchResult
	if activity.Method.RequiresBiometric() && !explicitAbsent {
		match, err = s.verify(ctx, studentID, req.Descriptor)
		if err != nil {
			return nil, err
		}
		verdict := models.MatchVerdict(match.Verdict)
		entry.Verdict = &verdict
		entry.Score = &match.Confidence
		if s.metrics != nil {
			s.metrics.ObserveMatchDistance(match.Distance)
		}
	}

	if req.Evidence != "" {
		ref, err := s.uploadEvidence(ctx, reg.ID, phase, req.Evidence)
		if err != nil {
			return nil, err
		}
		entry.EvidenceBucket = &ref.Bucket
		entry.EvidencePath = &ref.Path
		entry.EvidenceURL = &ref.URL
	}

	newStatus, completedAt := s.transition(phase, entry.Verdict, explicitAbsent, now)
	if err := s.appendWithRetry(ctx, entry, newStatus, completedAt); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		verdictLabel := ""
		if entry.Verdict != nil {
			verdictLabel = string(*entry.Verdict)
		}
		s.metrics.RecordAttendance(string(phase), verdictLabel)
	}

	regAfter := *reg
	if newStatus != nil {
		regAfter.Status = *newStatus
		regAfter.CompletedAt = completedAt
	}
	summaryAfter := summary
	switch phase {
	case models.PhaseCheckin:
		summaryAfter.CheckinAt = &entry.CapturedAt
	case models.PhaseCheckout:
		summaryAfter.CheckoutAt = &entry.CapturedAt
	}

	feedback, err := s.feedbacks.FindByRegistration(ctx, reg.ID)
	if err != nil {
		s.logger.Warn("failed to load feedback for state projection", zap.String("registration_id", reg.ID), zap.Error(err))
	}
	state := lifecycle.DeriveState(activity, &regAfter, summaryAfter, feedback, s.policy, now)

	result := &AttendanceResult{
		Entry: entry,
		State: state,
	}
	if entry.Verdict != nil {
		result.RequiresReview = entry.Verdict.NeedsReview()
	}
	result.Message = attendanceMessage(phase, entry.Verdict, explicitAbsent)

	s.notifyRecorded(studentID, activity, phase, entry.Verdict)
	return result, nil
}

// verify loads the caller's profile and classifies the submitted
// descriptor. Guard failures return errors; a low-confidence match does
// not.
func (s *AttendanceService) verify(ctx context.Context, studentID string, raw []float64) (*face.MatchResult, error) {
	profile, err := s.profiles.Get(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load face profile")
	}
	if !profile.Usable(s.minEnrolled) {
		return nil, appErrors.ErrNotEnrolled
	}
	if len(raw) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "face descriptor is required for this activity")
	}
	candidate, err := face.ParseDescriptor(raw)
	if err != nil {
		return nil, err
	}
	result := s.matcher.Match(profile.Descriptors, candidate)
	return &result, nil
}

func (s *AttendanceService) uploadEvidence(ctx context.Context, registrationID string, phase models.AttendancePhase, encoded string) (*storage.ObjectRef, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence must be base64 encoded")
	}
	hint := fmt.Sprintf("%s-%s.jpg", strings.ToLower(string(phase)), registrationID)
	ref, err := s.store.Upload(ctx, data, hint)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
	}
	return &ref, nil
}

// transition decides the registration status change that rides in the
// same transaction as the ledger append. Only check-out transitions:
// an approved or reviewable match completes the cycle as attended, a
// rejected one parks it for manual review without completing, and an
// explicit absence settles it as VANG_MAT.
func (s *AttendanceService) transition(phase models.AttendancePhase, verdict *models.MatchVerdict, absent bool, now time.Time) (*models.RegistrationStatus, *time.Time) {
	if phase != models.PhaseCheckout {
		return nil, nil
	}
	if absent {
		status := models.StatusAbsent
		return &status, &now
	}
	if verdict != nil && *verdict == models.VerdictRejected {
		status := models.StatusPendingReview
		return &status, nil
	}
	status := models.StatusAttended
	return &status, &now
}

// appendWithRetry retries serialization conflicts once. Duplicate-phase
// violations surface as-is; the unique index is the authoritative guard
// under concurrency.
func (s *AttendanceService) appendWithRetry(ctx context.Context, entry *models.AttendanceEntry, newStatus *models.RegistrationStatus, completedAt *time.Time) error {
	err := s.ledger.Append(ctx, entry, newStatus, completedAt)
	if errors.Is(err, repository.ErrTxConflict) {
		s.logger.Warn("ledger append conflicted, retrying",
			zap.String("registration_id", entry.RegistrationID),
			zap.String("phase", string(entry.Phase)))
		err = s.ledger.Append(ctx, entry, newStatus, completedAt)
	}
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return nil
}

func (s *AttendanceService) notifyRecorded(studentID string, activity *models.Activity, phase models.AttendancePhase, verdict *models.MatchVerdict) {
	if s.notifications == nil {
		return
	}
	n := Notification{
		UserID: studentID,
		Type:   NotificationAttendanceRecorded,
		Title:  "Attendance recorded",
		Data: map[string]interface{}{
			"activity_id": activity.ID,
			"phase":       string(phase),
		},
	}
	switch {
	case verdict != nil && verdict.NeedsReview():
		n.Type = NotificationAttendanceReview
		n.Message = fmt.Sprintf("Your %s for %q needs manual review.", strings.ToLower(string(phase)), activity.Title)
	case phase == models.PhaseCheckout:
		n.Message = fmt.Sprintf("Check-out for %q recorded. You earned %d credit points once feedback is approved.", activity.Title, activity.CreditPoints)
	default:
		n.Message = fmt.Sprintf("Check-in for %q recorded.", activity.Title)
	}
	s.notifications.Notify(n)
}

func attendanceMessage(phase models.AttendancePhase, verdict *models.MatchVerdict, absent bool) string {
	if absent {
		return "absence recorded"
	}
	if verdict != nil {
		switch *verdict {
		case models.VerdictReview:
			return "attendance recorded, pending manual review"
		case models.VerdictRejected:
			return "face match failed, entry recorded for manual review"
		}
	}
	if phase == models.PhaseCheckout {
		return "check-out recorded"
	}
	return "check-in recorded"
}

// History returns the caller's ledger entries for the current cycle.
func (s *AttendanceService) History(ctx context.Context, studentID, activityID string) ([]models.AttendanceEntry, error) {
	reg, err := s.registrations.FindByStudentAndActivity(ctx, studentID, activityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg == nil {
		return nil, appErrors.ErrNotRegistered
	}
	entries, err := s.ledger.ListByRegistration(ctx, reg.ID, reg.Cycle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance entries")
	}
	return entries, nil
}

// EvidenceLink mints a short-lived signed token for an entry's evidence
// photo. Reviewers see any entry; students only their own.
func (s *AttendanceService) EvidenceLink(ctx context.Context, signer *storage.SignedURLSigner, callerID string, callerRole models.UserRole, entryID string) (string, time.Time, error) {
	entry, err := s.ledger.FindEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "attendance entry not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance entry")
	}
	if entry.EvidencePath == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "entry has no evidence")
	}
	if callerRole == models.RoleStudent {
		reg, err := s.registrations.FindByID(ctx, entry.RegistrationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", time.Time{}, appErrors.ErrForbidden
			}
			return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
		}
		if reg.StudentID != callerID {
			return "", time.Time{}, appErrors.ErrForbidden
		}
	}
	token, expiresAt, err := signer.Generate(entry.ID, *entry.EvidencePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign evidence link")
	}
	return token, expiresAt, nil
}

// ReviewQueue lists entries flagged for manual review.
func (s *AttendanceService) ReviewQueue(ctx context.Context, filter models.AttendanceEntryFilter) ([]models.AttendanceEntryDetail, error) {
	if filter.Verdict == "" {
		filter.Verdict = models.VerdictReview
	}
	entries, err := s.ledger.ListForReview(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review queue")
	}
	return entries, nil
}

// ResolveEntry lets a reviewer overturn or confirm a flagged verdict.
func (s *AttendanceService) ResolveEntry(ctx context.Context, reviewerID, entryID string, approve bool) error {
	entry, err := s.ledger.FindEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance entry")
	}
	if entry.Verdict == nil || !entry.Verdict.NeedsReview() {
		return appErrors.Clone(appErrors.ErrConflict, "entry is not awaiting review")
	}
	verdict := models.VerdictRejected
	if approve {
		verdict = models.VerdictApproved
	}
	if err := s.ledger.Resolve(ctx, entryID, verdict, reviewerID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve attendance entry")
	}
	return nil
}
