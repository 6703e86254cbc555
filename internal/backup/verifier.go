package backup

import "math"

// Verifier flags statistically implausible size drift between consecutive
// artifacts of the same target. A large swing usually indicates a broken
// extraction (empty dump, runaway growth, partial data) rather than organic
// change.
type Verifier struct {
	// ThresholdPercent is the maximum tolerated average-relative delta.
	ThresholdPercent float64
}

// DefaultDriftThresholdPercent matches the historical alarm level.
const DefaultDriftThresholdPercent = 10.0

// NewVerifier creates a verifier with the given drift threshold. A zero or
// negative threshold falls back to the default.
func NewVerifier(thresholdPercent float64) *Verifier {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultDriftThresholdPercent
	}
	return &Verifier{ThresholdPercent: thresholdPercent}
}

// Check compares the new artifact's size against the previous successful
// artifact's size. previous is nil for a target's first-ever backup, which
// trivially passes.
//
// The delta is relative to the average of the two sizes:
//
//	delta% = |previous - current| / ((previous + current) / 2) * 100
func (v *Verifier) Check(previous *int64, current int64) error {
	if previous == nil {
		return nil
	}
	delta := DeltaPercent(*previous, current)
	if delta > v.ThresholdPercent {
		return &AnomalyError{
			PreviousBytes: *previous,
			CurrentBytes:  current,
			DeltaPercent:  delta,
			Threshold:     v.ThresholdPercent,
		}
	}
	return nil
}

// DeltaPercent computes the average-relative size delta between two artifact
// sizes, in percent.
func DeltaPercent(previous, current int64) float64 {
	mean := (float64(previous) + float64(current)) / 2
	if mean == 0 {
		return 0
	}
	return math.Abs(float64(previous)-float64(current)) / mean * 100
}
