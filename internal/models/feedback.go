package models

import "time"

// FeedbackStatus tracks moderation of post-attendance feedback.
type FeedbackStatus string

const (
	FeedbackPending  FeedbackStatus = "PENDING"
	FeedbackApproved FeedbackStatus = "APPROVED"
	FeedbackRejected FeedbackStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s FeedbackStatus) Valid() bool {
	switch s {
	case FeedbackPending, FeedbackApproved, FeedbackRejected:
		return true
	default:
		return false
	}
}

// Feedback is a student's post-attendance reflection. Approval awards
// the activity's credit points.
type Feedback struct {
	ID             string         `db:"id" json:"id"`
	RegistrationID string         `db:"registration_id" json:"registration_id"`
	Content        string         `db:"content" json:"content"`
	Status         FeedbackStatus `db:"status" json:"status"`
	ReviewedBy     *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNote     *string        `db:"review_note" json:"review_note,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
