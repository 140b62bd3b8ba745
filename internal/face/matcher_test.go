package face

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// descriptorAt builds a descriptor at exactly dist from the zero vector.
func descriptorAt(dist float64) Descriptor {
	var d Descriptor
	d[0] = dist
	return d
}

func TestDistanceSymmetry(t *testing.T) {
	var a, b Descriptor
	for i := range a {
		a[i] = float64(i) * 0.013
		b[i] = float64(DescriptorLength-i) * 0.007
	}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-12)
	assert.Zero(t, Distance(a, a))
}

func TestMatchVerdictBoundaries(t *testing.T) {
	m := NewMatcher(MatcherConfig{})
	enrolled := DescriptorSet{descriptorAt(0)}

	cases := []struct {
		distance float64
		verdict  Verdict
	}{
		{0.0, Approved},
		{0.39, Approved},
		{0.4, Approved},
		{0.41, Review},
		{0.59, Review},
		{0.6, Review},
		{0.61, Rejected},
		{0.9, Rejected},
	}
	for _, tc := range cases {
		result := m.Match(enrolled, descriptorAt(tc.distance))
		assert.Equal(t, tc.verdict, result.Verdict, "distance %v", tc.distance)
		assert.InDelta(t, tc.distance, result.Distance, 1e-9)
	}
}

func TestMatchConfidenceMonotonicAndClamped(t *testing.T) {
	m := NewMatcher(MatcherConfig{})
	enrolled := DescriptorSet{descriptorAt(0)}

	prev := math.Inf(1)
	for _, dist := range []float64{0, 0.2, 0.4, 0.6, 0.9, 1.2, 2.0} {
		result := m.Match(enrolled, descriptorAt(dist))
		assert.LessOrEqual(t, result.Confidence, prev, "distance %v", dist)
		assert.GreaterOrEqual(t, result.Confidence, 0.0)
		assert.LessOrEqual(t, result.Confidence, 1.0)
		prev = result.Confidence
	}

	assert.InDelta(t, 1.0, m.Match(enrolled, descriptorAt(0)).Confidence, 1e-9)
	assert.Zero(t, m.Match(enrolled, descriptorAt(2.0)).Confidence)
}

func TestMatchUsesNearestEnrolledDescriptor(t *testing.T) {
	m := NewMatcher(MatcherConfig{})
	enrolled := DescriptorSet{descriptorAt(0.9), descriptorAt(1.4), descriptorAt(0.7)}

	result := m.Match(enrolled, descriptorAt(0.8))
	require.InDelta(t, 0.1, result.Distance, 1e-9)
	assert.Equal(t, Approved, result.Verdict)
}

func TestMatchEmptyEnrolledSetRejects(t *testing.T) {
	m := NewMatcher(MatcherConfig{})
	result := m.Match(nil, descriptorAt(0))
	assert.Equal(t, Rejected, result.Verdict)
	assert.Zero(t, result.Confidence)
	assert.True(t, math.IsInf(result.Distance, 1))
}

func TestMatcherConfigOverrides(t *testing.T) {
	m := NewMatcher(MatcherConfig{ApproveThreshold: 0.2, ReviewThreshold: 0.3})
	enrolled := DescriptorSet{descriptorAt(0)}

	assert.Equal(t, Review, m.Match(enrolled, descriptorAt(0.25)).Verdict)
	assert.Equal(t, Rejected, m.Match(enrolled, descriptorAt(0.35)).Verdict)
}
