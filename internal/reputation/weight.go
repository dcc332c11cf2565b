package reputation

import "math"

// WeightCeiling caps interpolation above the top tier's base weight.
const WeightCeiling = 10.0

// FuzzyPenalty halves the weight of submissions made near a rotation
// boundary, where the client may be observing either rotation.
const FuzzyPenalty = 0.5

// Negative scores decay from just under the Rookie base weight down to a
// floor that keeps their submissions non-zero but strongly discounted.
const (
	negativeCeiling = 0.1
	negativeFloor   = 0.0001
)

// WeightForScore converts a reputation score to a submission base weight.
//
// Non-negative scores interpolate linearly between the containing tier's
// base weight and the next tier's, proportional to the position inside the
// tier's score band; the top tier interpolates toward WeightCeiling.
// Negative scores bypass the tier table entirely and decay logarithmically
// from negativeCeiling toward negativeFloor at MinScore.
func WeightForScore(score int) (float64, error) {
	if score < 0 {
		return negativeWeight(score), nil
	}

	tier, err := TierForScore(score)
	if err != nil {
		return 0, err
	}

	upper := WeightCeiling
	if next, ok := tier.Next(); ok {
		upper = next.BaseWeight
	}

	span := tier.MaxScore - tier.MinScore
	if span == 0 {
		return tier.BaseWeight, nil
	}
	frac := float64(score-tier.MinScore) / float64(span)
	return tier.BaseWeight + (upper-tier.BaseWeight)*frac, nil
}

func negativeWeight(score int) float64 {
	if score <= MinScore {
		return negativeFloor
	}
	// Log-linear in the weight domain: score 0 maps to the ceiling,
	// MinScore to the floor.
	frac := float64(-score) / float64(-MinScore)
	w := negativeCeiling * math.Pow(negativeFloor/negativeCeiling, frac)
	return math.Min(negativeCeiling, math.Max(negativeFloor, w))
}

// SubmissionWeight combines the reporter's score weight with the fuzzy
// discount for submissions made near a rotation boundary.
func SubmissionWeight(score int, fuzzy bool) (float64, error) {
	weight, err := WeightForScore(score)
	if err != nil {
		return 0, err
	}
	if fuzzy {
		weight *= FuzzyPenalty
	}
	return weight, nil
}
