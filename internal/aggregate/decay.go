package aggregate

// recencyHorizonDays is the age at which a source stops contributing.
const recencyHorizonDays = 365.0

// RecencyWeight computes the linear recency discount of a source:
// max(0, 1 - ageDays/365). Future-dated data counts as current.
func RecencyWeight(ageDays float64) float64 {
	if ageDays <= 0 {
		return 1
	}
	w := 1 - ageDays/recencyHorizonDays
	if w < 0 {
		return 0
	}
	return w
}

// EffectiveWeight discounts a source prior by recency and match quality.
func EffectiveWeight(baseWeight, recency, matchQuality float64) float64 {
	return baseWeight * recency * clamp01(matchQuality)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
