package models

import "time"

// RegistrationStatus is the authoritative persisted status of a
// student's registration. The Vietnamese literals are the legacy wire
// values and are kept for client compatibility.
type RegistrationStatus string

const (
	StatusRegistered    RegistrationStatus = "DANG_KY"
	StatusCancelled     RegistrationStatus = "DA_HUY"
	StatusAttended      RegistrationStatus = "DA_THAM_GIA"
	StatusAbsent        RegistrationStatus = "VANG_MAT"
	StatusPendingReview RegistrationStatus = "CHO_DUYET"
)

// Valid returns true when the status is a supported value.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusRegistered, StatusCancelled, StatusAttended, StatusAbsent, StatusPendingReview:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends the current registration
// cycle. Cancellation is terminal but re-enterable via re-registration.
func (s RegistrationStatus) Terminal() bool {
	switch s {
	case StatusAttended, StatusAbsent, StatusCancelled:
		return true
	default:
		return false
	}
}

// Registration ties a student to an activity. Cycle counts registration
// generations: cancelling and re-registering bumps it, which starts a
// fresh attendance ledger without touching the append-only entries of
// earlier cycles.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	ActivityID   string             `db:"activity_id" json:"activity_id"`
	StudentID    string             `db:"student_id" json:"student_id"`
	Status       RegistrationStatus `db:"status" json:"status"`
	Cycle        int                `db:"cycle" json:"cycle"`
	CancelReason *string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
	RegisteredAt time.Time          `db:"registered_at" json:"registered_at"`
	ApprovedAt   *time.Time         `db:"approved_at" json:"approved_at,omitempty"`
	CompletedAt  *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}

// RegistrationFilter scopes registration listings.
type RegistrationFilter struct {
	StudentID      string
	ActivityID     string
	Status         RegistrationStatus
	FeedbackStatus FeedbackStatus
	Page           int
	PageSize       int
}

// RegistrationRow joins a registration with the activity columns the
// state projection needs.
type RegistrationRow struct {
	Registration
	ActivityTitle  string           `db:"activity_title" json:"activity_title"`
	ActivityStart  time.Time        `db:"activity_start" json:"activity_start"`
	ActivityEnd    time.Time        `db:"activity_end" json:"activity_end"`
	ActivityMethod AttendanceMethod `db:"activity_method" json:"activity_method"`
	CreditPoints   int              `db:"credit_points" json:"credit_points"`
}

// ActivityWindow rebuilds the activity shape state derivation expects.
func (r RegistrationRow) ActivityWindow() Activity {
	return Activity{
		ID:           r.ActivityID,
		Title:        r.ActivityTitle,
		StartTime:    r.ActivityStart,
		EndTime:      r.ActivityEnd,
		Method:       r.ActivityMethod,
		CreditPoints: r.CreditPoints,
		Published:    true,
	}
}

// RosterRow is one participant line in an activity roster export.
// Check-in/check-out times come from the registration's current cycle.
type RosterRow struct {
	RegistrationID string             `db:"registration_id" json:"registration_id"`
	StudentID      string             `db:"student_id" json:"student_id"`
	StudentName    string             `db:"student_name" json:"student_name"`
	StudentEmail   string             `db:"student_email" json:"student_email"`
	Status         RegistrationStatus `db:"status" json:"status"`
	RegisteredAt   time.Time          `db:"registered_at" json:"registered_at"`
	CheckinAt      *time.Time         `db:"checkin_at" json:"checkin_at,omitempty"`
	CheckoutAt     *time.Time         `db:"checkout_at" json:"checkout_at,omitempty"`
}
