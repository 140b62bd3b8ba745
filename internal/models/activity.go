package models

import "time"

// AttendanceMethod determines how attendance is verified for an activity.
type AttendanceMethod string

const (
	MethodQR    AttendanceMethod = "qr"
	MethodPhoto AttendanceMethod = "photo"
)

// Valid returns true when the method is a supported value.
func (m AttendanceMethod) Valid() bool {
	switch m {
	case MethodQR, MethodPhoto:
		return true
	default:
		return false
	}
}

// RequiresBiometric reports whether attendance submissions must carry a
// face descriptor.
func (m AttendanceMethod) RequiresBiometric() bool {
	return m == MethodPhoto
}

// Activity is a social/volunteer activity students register for. The
// time window is immutable once published and gates every attendance
// request.
type Activity struct {
	ID              string           `db:"id" json:"id"`
	Title           string           `db:"title" json:"title"`
	Description     *string          `db:"description" json:"description,omitempty"`
	Location        *string          `db:"location" json:"location,omitempty"`
	StartTime       time.Time        `db:"start_time" json:"start_time"`
	EndTime         time.Time        `db:"end_time" json:"end_time"`
	Method          AttendanceMethod `db:"method" json:"method"`
	MaxParticipants int              `db:"max_participants" json:"max_participants"`
	CreditPoints    int              `db:"credit_points" json:"credit_points"`
	Published       bool             `db:"published" json:"published"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// ActivityView decorates an activity for listings.
type ActivityView struct {
	Activity
	RegisteredCount    int  `db:"registered_count" json:"registered_count"`
	RequiresEnrollment bool `json:"requires_enrollment"`
}

// ActivityFilter scopes catalogue queries.
type ActivityFilter struct {
	Method    AttendanceMethod
	From      *time.Time
	To        *time.Time
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
