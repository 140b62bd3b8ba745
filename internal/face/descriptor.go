// Package face implements descriptor validation and nearest-neighbor
// match classification for attendance verification. Descriptor
// extraction (image to vector) is an external capability; this package
// only consumes already-extracted vectors.
package face

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"

	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
)

// DescriptorLength is the dimensionality of every face descriptor.
// Vectors of any other length are rejected at construction.
const DescriptorLength = 128

// Descriptor is a fixed-length face embedding. Using an array type
// makes mismatched lengths unrepresentable past validation.
type Descriptor [DescriptorLength]float64

// ParseDescriptor validates a raw vector. Wrong length or non-finite
// components are rejected, never coerced.
func ParseDescriptor(raw []float64) (Descriptor, error) {
	var d Descriptor
	if len(raw) != DescriptorLength {
		return d, appErrors.Clone(appErrors.ErrInvalidDescriptor,
			fmt.Sprintf("descriptor must have %d components, got %d", DescriptorLength, len(raw)))
	}
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return d, appErrors.Clone(appErrors.ErrInvalidDescriptor,
				fmt.Sprintf("descriptor component %d is not finite", i))
		}
		d[i] = v
	}
	return d, nil
}

// ParseDescriptorSet filters invalid vectors out of a collection and
// fails when fewer than minCount valid descriptors remain.
func ParseDescriptorSet(raw [][]float64, minCount int) (DescriptorSet, error) {
	set := make(DescriptorSet, 0, len(raw))
	for _, vec := range raw {
		d, err := ParseDescriptor(vec)
		if err != nil {
			continue
		}
		set = append(set, d)
	}
	if len(set) < minCount {
		return nil, appErrors.Clone(appErrors.ErrInsufficientSamples,
			fmt.Sprintf("at least %d valid face samples required, got %d", minCount, len(set)))
	}
	return set, nil
}

// DescriptorSet is an enrolled descriptor collection, stored as JSONB.
type DescriptorSet []Descriptor

// Value implements driver.Valuer.
func (s DescriptorSet) Value() (driver.Value, error) {
	if s == nil {
		s = DescriptorSet{}
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *DescriptorSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported descriptor set type %T", src)
	}
}
