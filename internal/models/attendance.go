package models

import "time"

// AttendancePhase is one half of a single attendance cycle.
type AttendancePhase string

const (
	PhaseCheckin  AttendancePhase = "CHECKIN"
	PhaseCheckout AttendancePhase = "CHECKOUT"
)

// Valid returns true when the phase is a supported value.
func (p AttendancePhase) Valid() bool {
	return p == PhaseCheckin || p == PhaseCheckout
}

// MatchVerdict classifies a face match attempt. A REJECTED verdict is
// a recorded low-confidence outcome, not a request failure.
type MatchVerdict string

const (
	VerdictApproved MatchVerdict = "APPROVED"
	VerdictReview   MatchVerdict = "REVIEW"
	VerdictRejected MatchVerdict = "REJECTED"
)

// NeedsReview reports whether the entry should be routed to manual review.
func (v MatchVerdict) NeedsReview() bool {
	return v == VerdictReview || v == VerdictRejected
}

// AttendanceEntry is one append-only ledger row. The submitted
// descriptor is never persisted; only the verdict and score survive.
type AttendanceEntry struct {
	ID             string          `db:"id" json:"id"`
	RegistrationID string          `db:"registration_id" json:"registration_id"`
	Cycle          int             `db:"cycle" json:"cycle"`
	Phase          AttendancePhase `db:"phase" json:"phase"`
	CapturedAt     time.Time       `db:"captured_at" json:"captured_at"`
	Note           *string         `db:"note" json:"note,omitempty"`
	EvidenceBucket *string         `db:"evidence_bucket" json:"evidence_bucket,omitempty"`
	EvidencePath   *string         `db:"evidence_path" json:"evidence_path,omitempty"`
	EvidenceURL    *string         `db:"evidence_url" json:"evidence_url,omitempty"`
	Verdict        *MatchVerdict   `db:"verdict" json:"verdict,omitempty"`
	Score          *float64        `db:"score" json:"score,omitempty"`
	ResolvedBy     *string         `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// LedgerSummary condenses the current cycle's ledger for state
// derivation and phase-order guards.
type LedgerSummary struct {
	CheckinAt  *time.Time `json:"checkin_at,omitempty"`
	CheckoutAt *time.Time `json:"checkout_at,omitempty"`
}

// HasCheckin reports whether a check-in entry exists in this cycle.
func (s LedgerSummary) HasCheckin() bool { return s.CheckinAt != nil }

// HasCheckout reports whether a check-out entry exists in this cycle.
func (s LedgerSummary) HasCheckout() bool { return s.CheckoutAt != nil }

// AttendanceEntryFilter scopes ledger review listings.
type AttendanceEntryFilter struct {
	ActivityID string
	Verdict    MatchVerdict
	Phase      AttendancePhase
	Page       int
	PageSize   int
}

// AttendanceEntryDetail joins an entry with its registration context
// for the review queue.
type AttendanceEntryDetail struct {
	AttendanceEntry
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	ActivityID  string `db:"activity_id" json:"activity_id"`
}
