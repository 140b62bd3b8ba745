// Package lifecycle derives the user-facing state of a student's
// relationship to an activity. Derivation is a pure projection over the
// persisted registration status, the activity window, the current
// attendance ledger and feedback moderation.
package lifecycle

import (
	"time"

	"github.com/noah-isme/activity-credit-api/internal/models"
)

// DerivedState is recomputed per read and never persisted.
type DerivedState string

const (
	StateGuest             DerivedState = "guest"
	StateEnded             DerivedState = "ended"
	StateRegistered        DerivedState = "registered"
	StateConfirmIn         DerivedState = "confirm_in"
	StateConfirmOut        DerivedState = "confirm_out"
	StateAttendanceOpen    DerivedState = "attendance_open"
	StateAttendanceClosed  DerivedState = "attendance_closed"
	StateAttendanceReview  DerivedState = "attendance_review"
	StateCancelled         DerivedState = "cancelled"
	StateFeedbackWaiting   DerivedState = "feedback_waiting"
	StateFeedbackPending   DerivedState = "feedback_pending"
	StateFeedbackReviewing DerivedState = "feedback_reviewing"
	StateFeedbackAccepted  DerivedState = "feedback_accepted"
	StateFeedbackDenied    DerivedState = "feedback_denied"
)

// FeedbackPolicy controls when feedback opens after attendance. The
// anchor precedence (approval, then check-in, then activity end) mirrors
// the legacy behaviour; the cooldown gives checkout and grading time to
// settle.
type FeedbackPolicy struct {
	Cooldown time.Duration
}

// DefaultFeedbackPolicy waits one day.
var DefaultFeedbackPolicy = FeedbackPolicy{Cooldown: 24 * time.Hour}

// FeedbackAvailableAt returns the instant feedback submission opens for
// the registration.
func (p FeedbackPolicy) FeedbackAvailableAt(activity *models.Activity, reg *models.Registration, ledger models.LedgerSummary) time.Time {
	anchor := activity.EndTime
	switch {
	case reg != nil && reg.ApprovedAt != nil:
		anchor = *reg.ApprovedAt
	case ledger.CheckinAt != nil:
		anchor = *ledger.CheckinAt
	}
	return anchor.Add(p.Cooldown)
}

// DeriveState projects the activity window, registration status, ledger
// and feedback into one user-facing state. The switch is exhaustive
// over RegistrationStatus so new statuses fail loudly at review time
// rather than silently falling through string comparisons.
func DeriveState(activity *models.Activity, reg *models.Registration, ledger models.LedgerSummary, feedback *models.Feedback, policy FeedbackPolicy, now time.Time) DerivedState {
	if reg == nil {
		if now.After(activity.EndTime) {
			return StateEnded
		}
		return StateGuest
	}

	switch reg.Status {
	case models.StatusCancelled:
		return StateCancelled

	case models.StatusAbsent:
		return StateAttendanceClosed

	case models.StatusAttended:
		return deriveFeedbackState(activity, reg, ledger, feedback, policy, now)

	case models.StatusPendingReview:
		// Pending review covers both an unapproved registration and a
		// cycle parked after a rejected match. Ledger activity tells
		// them apart.
		if ledger.HasCheckin() {
			return StateAttendanceReview
		}
		return StateRegistered

	case models.StatusRegistered:
		if now.Before(activity.StartTime) {
			return StateConfirmIn
		}
		if now.After(activity.EndTime) {
			// Window closed with an incomplete ledger: a lone check-in
			// goes to review, nothing at all is simply closed.
			if ledger.HasCheckin() && !ledger.HasCheckout() {
				return StateAttendanceReview
			}
			return StateAttendanceClosed
		}
		if ledger.HasCheckin() && !ledger.HasCheckout() {
			return StateConfirmOut
		}
		return StateAttendanceOpen
	}

	return StateGuest
}

func deriveFeedbackState(activity *models.Activity, reg *models.Registration, ledger models.LedgerSummary, feedback *models.Feedback, policy FeedbackPolicy, now time.Time) DerivedState {
	if feedback == nil {
		if now.Before(policy.FeedbackAvailableAt(activity, reg, ledger)) {
			return StateFeedbackWaiting
		}
		return StateFeedbackPending
	}
	switch feedback.Status {
	case models.FeedbackApproved:
		return StateFeedbackAccepted
	case models.FeedbackRejected:
		return StateFeedbackDenied
	default:
		return StateFeedbackReviewing
	}
}
