package face

import "math"

// Classification thresholds on the best (minimum) Euclidean distance
// between the candidate and the enrolled set. They govern the
// false-accept/false-reject tradeoff and are surfaced to
// administrators, so overrides come in through MatcherConfig.
const (
	ApproveThreshold = 0.4
	ReviewThreshold  = 0.6
	ConfidenceScale  = 1.2
)

// Verdict classifies a match attempt.
type Verdict string

const (
	Approved Verdict = "APPROVED"
	Review   Verdict = "REVIEW"
	Rejected Verdict = "REJECTED"
)

// MatchResult carries the classification of one candidate descriptor
// against an enrolled set.
type MatchResult struct {
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	Verdict    Verdict `json:"verdict"`
}

// MatcherConfig overrides the default thresholds. Zero values fall back
// to the package constants.
type MatcherConfig struct {
	ApproveThreshold float64
	ReviewThreshold  float64
	ConfidenceScale  float64
}

// Matcher classifies candidate descriptors. It is pure and
// deterministic; it holds tuning only, never state.
type Matcher struct {
	approve float64
	review  float64
	scale   float64
}

// NewMatcher builds a matcher from config, defaulting unset fields.
func NewMatcher(cfg MatcherConfig) *Matcher {
	m := &Matcher{approve: cfg.ApproveThreshold, review: cfg.ReviewThreshold, scale: cfg.ConfidenceScale}
	if m.approve <= 0 {
		m.approve = ApproveThreshold
	}
	if m.review <= 0 {
		m.review = ReviewThreshold
	}
	if m.scale <= 0 {
		m.scale = ConfidenceScale
	}
	return m
}

// Distance returns the Euclidean distance between two descriptors.
func Distance(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Match computes the distance from the candidate to every enrolled
// descriptor, keeps the minimum, and classifies it. An empty enrolled
// set rejects with zero confidence.
func (m *Matcher) Match(enrolled DescriptorSet, candidate Descriptor) MatchResult {
	if len(enrolled) == 0 {
		return MatchResult{Distance: math.Inf(1), Confidence: 0, Verdict: Rejected}
	}

	best := math.Inf(1)
	for _, d := range enrolled {
		if dist := Distance(d, candidate); dist < best {
			best = dist
		}
	}

	confidence := 1 - best/m.scale
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	verdict := Rejected
	switch {
	case best <= m.approve:
		verdict = Approved
	case best <= m.review:
		verdict = Review
	}

	return MatchResult{Distance: best, Confidence: confidence, Verdict: verdict}
}
