package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightForScore_Interpolation(t *testing.T) {
	tests := []struct {
		score    int
		expected float64
	}{
		{0, 0.1},     // Rookie base
		{50, 0.3},    // top of Rookie meets Assistant base
		{25, 0.2},    // midway through Rookie
		{51, 0.3},    // Assistant base
		{9501, 9.0},  // Grandmaster base
		{10000, 10.0}, // top of ladder hits the ceiling
	}

	for _, tt := range tests {
		weight, err := WeightForScore(tt.score)
		require.NoError(t, err, "score %d", tt.score)
		assert.InDelta(t, tt.expected, weight, 1e-9, "score %d", tt.score)
	}
}

func TestWeightForScore_NonDecreasingAndBounded(t *testing.T) {
	prev := 0.0
	for score := MinScore; score <= MaxScore; score += 25 {
		weight, err := WeightForScore(score)
		require.NoError(t, err, "score %d", score)

		assert.Greater(t, weight, 0.0, "score %d", score)
		assert.LessOrEqual(t, weight, WeightCeiling, "score %d", score)
		assert.GreaterOrEqual(t, weight, prev, "score %d must not drop below %f", score, prev)
		prev = weight
	}
}

func TestWeightForScore_NegativeDecay(t *testing.T) {
	floor, err := WeightForScore(MinScore)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, floor, 1e-9)

	nearZero, err := WeightForScore(-1)
	require.NoError(t, err)
	assert.Less(t, nearZero, 0.1)
	assert.Greater(t, nearZero, 0.09)

	mid, err := WeightForScore(-5000)
	require.NoError(t, err)
	assert.Less(t, mid, nearZero)
	assert.Greater(t, mid, floor)
}

func TestWeightForScore_OutOfRange(t *testing.T) {
	_, err := WeightForScore(MaxScore + 1)
	assert.ErrorIs(t, err, ErrScoreOutOfRange)
}

func TestSubmissionWeight_FuzzyDiscount(t *testing.T) {
	full, err := SubmissionWeight(1500, false)
	require.NoError(t, err)

	halved, err := SubmissionWeight(1500, true)
	require.NoError(t, err)

	assert.InDelta(t, full*FuzzyPenalty, halved, 1e-9)
}
