package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/idverify/internal/inspection"
)

func allSignals(docValid, authentic, match bool, authScore, faceScore float64) inspection.SignalSet {
	return inspection.SignalSet{
		Document: &inspection.DocumentExtraction{
			IsValid:         docValid,
			ConfidenceLabel: inspection.ConfidenceHigh,
		},
		Authenticity: &inspection.AuthenticityAssessment{
			IsAuthentic:     authentic,
			Score:           authScore,
			ConfidenceLabel: inspection.ConfidenceHigh,
		},
		Facial: &inspection.FacialSimilarityAssessment{
			Match:           match,
			Score:           faceScore,
			ConfidenceLabel: inspection.ConfidenceHigh,
		},
	}
}

func TestAggregateAllSignalsAgree(t *testing.T) {
	verdict, err := Aggregate(allSignals(true, true, true, 0.9, 0.95), DefaultWeights)
	require.NoError(t, err)

	// 0.30*1.0 + 0.30*0.9 + 0.40*0.95 = 0.95
	assert.InDelta(t, 0.95, verdict.ConfidenceScore, 1e-9)
	assert.True(t, verdict.Verified)
	assert.Contains(t, verdict.Summary, "verified")
}

func TestAggregateFaceMismatchBlocksVerification(t *testing.T) {
	verdict, err := Aggregate(allSignals(true, true, false, 0.9, 0.4), DefaultWeights)
	require.NoError(t, err)

	// 0.30 + 0.27 + 0.16 = 0.73, but the face gate fails.
	assert.InDelta(t, 0.73, verdict.ConfidenceScore, 1e-9)
	assert.False(t, verdict.Verified)
}

func TestAggregateRenormalizesMissingSignal(t *testing.T) {
	signals := inspection.SignalSet{
		Document: &inspection.DocumentExtraction{IsValid: true},
		Facial:   &inspection.FacialSimilarityAssessment{Score: 0.8, Match: true},
	}
	verdict, err := Aggregate(signals, DefaultWeights)
	require.NoError(t, err)

	// doc 0.30/0.70 = 0.4286, face 0.40/0.70 = 0.5714
	// 0.4286*1.0 + 0.5714*0.8 = 0.8857 -> rounds to 0.89
	assert.InDelta(t, 0.89, verdict.ConfidenceScore, 1e-9)

	// The authenticity gate is missing, so verification must fail even
	// though the numeric score is high.
	assert.False(t, verdict.Verified)
}

func TestAggregateNoSignalsIsInconclusive(t *testing.T) {
	verdict, err := Aggregate(inspection.SignalSet{}, DefaultWeights)
	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, ErrInconclusive)
}

func TestAggregateSingleGateFlipBlocksVerification(t *testing.T) {
	cases := map[string]inspection.SignalSet{
		"document invalid":   allSignals(false, true, true, 0.9, 0.95),
		"not authentic":      allSignals(true, false, true, 0.9, 0.95),
		"faces do not match": allSignals(true, true, false, 0.9, 0.95),
	}
	for name, signals := range cases {
		t.Run(name, func(t *testing.T) {
			verdict, err := Aggregate(signals, DefaultWeights)
			require.NoError(t, err)
			assert.False(t, verdict.Verified)
		})
	}
}

func TestAggregateDeterministicAndIdempotent(t *testing.T) {
	signals := allSignals(true, true, true, 0.73, 0.81)
	first, err := Aggregate(signals, DefaultWeights)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Aggregate(signals, DefaultWeights)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAggregateScoreAlwaysInUnitInterval(t *testing.T) {
	grid := []float64{0, 0.25, 0.5, 0.75, 1}
	for _, authScore := range grid {
		for _, faceScore := range grid {
			for _, docValid := range []bool{true, false} {
				verdict, err := Aggregate(allSignals(docValid, true, true, authScore, faceScore), DefaultWeights)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, verdict.ConfidenceScore, 0.0)
				assert.LessOrEqual(t, verdict.ConfidenceScore, 1.0)
			}
		}
	}
}

func TestAggregateCustomWeights(t *testing.T) {
	weights := Weights{Document: 0.5, Authenticity: 0.25, Facial: 0.25}
	verdict, err := Aggregate(allSignals(true, true, true, 1.0, 1.0), weights)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, verdict.ConfidenceScore, 1e-9)
	assert.True(t, verdict.Verified)
}
