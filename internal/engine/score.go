package engine

import "github.com/threatlens/threatlens/pkg/threat"

// corroborationBonus is added per detection beyond the first, capped so
// a pile of low-severity matches cannot fabricate a critical score.
const (
	corroborationBonus    = 5
	corroborationBonusCap = 15
)

// Score folds detections into a 0–100 risk score. The score is a
// monotonic function of the highest-severity detection: adding a
// detection never lowers it, and no detections means zero.
func Score(detections []threat.Detection) int {
	if len(detections) == 0 {
		return 0
	}

	base := 0
	for _, d := range detections {
		if w := d.Severity.Weight(); w > base {
			base = w
		}
	}

	bonus := corroborationBonus * (len(detections) - 1)
	if bonus > corroborationBonusCap {
		bonus = corroborationBonusCap
	}

	score := base + bonus
	if score > 100 {
		score = 100
	}
	return score
}

// Confidence is the certainty of the overall verdict: the strongest
// single detection, nudged upward when independent detectors agree.
func Confidence(detections []threat.Detection) float64 {
	if len(detections) == 0 {
		return 0
	}

	best := 0.0
	detectors := map[string]bool{}
	for _, d := range detections {
		if d.Confidence > best {
			best = d.Confidence
		}
		detectors[d.Detector] = true
	}

	// Corroboration across detectors is stronger evidence than
	// multiple hits from the same one.
	if len(detectors) > 1 {
		best += 0.05 * float64(len(detectors)-1)
	}
	if best > 0.99 {
		best = 0.99
	}
	return best
}
