package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/activity-credit-api/internal/face"
)

// FaceProfile is a student's enrolled biometric profile: an ordered
// descriptor collection plus parallel opaque sample references.
// Enrollment replaces the whole collection atomically.
type FaceProfile struct {
	UserID      string             `db:"user_id" json:"user_id"`
	Descriptors face.DescriptorSet `db:"descriptors" json:"-"`
	SampleRefs  SampleRefs         `db:"sample_refs" json:"-"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// Usable reports whether the profile holds enough descriptors for
// matching.
func (p *FaceProfile) Usable(minSamples int) bool {
	return p != nil && len(p.Descriptors) >= minSamples
}

// FaceProfileSummary is the only profile shape exposed to callers that
// do not own the profile. Descriptors never leave the service.
type FaceProfileSummary struct {
	Registered      bool       `json:"registered"`
	DescriptorCount int        `json:"descriptor_count"`
	SampleCount     int        `json:"sample_count"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// SampleRef points at one stored enrollment sample.
type SampleRef struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
}

// SampleRefs is stored as a JSONB column.
type SampleRefs []SampleRef

// Value implements driver.Valuer.
func (r SampleRefs) Value() (driver.Value, error) {
	if r == nil {
		r = SampleRefs{}
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *SampleRefs) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported sample refs type %T", src)
	}
}
