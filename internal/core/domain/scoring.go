package domain

import (
	"math"
	"time"
)

const (
	saturationReporters = 10.0
	decayWindowDays     = 90.0
	dampingThreshold    = 5
	dampingDivisor      = 20.0

	// QuarantineScoreCap bounds the score of a number under quarantine.
	QuarantineScoreCap = 0.75
)

// CalculateConfidenceScore derives a [0,1] spam confidence from the report
// history of a number. It is a pure function; callers pass now explicitly.
//
// The base grows linearly with unique reporters and saturates at ten. It
// decays linearly to zero ninety days after the last report, and five or
// more "not spam" corrections damp it further.
func CalculateConfidenceScore(uniqueReporters, negativeSignals int, lastReportedAt *time.Time, now time.Time) float64 {
	if uniqueReporters <= 0 || lastReportedAt == nil {
		return 0
	}

	base := math.Min(float64(uniqueReporters)/saturationReporters, 1.0)

	days := now.Sub(*lastReportedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	decay := math.Max(0, 1-days/decayWindowDays)

	score := base * decay
	if negativeSignals >= dampingThreshold {
		score *= math.Max(0, 1-float64(negativeSignals)/dampingDivisor)
	}

	return score
}

// CapScore applies the quarantine cap when quarantined is true.
func CapScore(score float64, quarantined bool) float64 {
	if quarantined && score > QuarantineScoreCap {
		return QuarantineScoreCap
	}
	return score
}
