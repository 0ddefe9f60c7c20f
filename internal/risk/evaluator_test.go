package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

// noJitter returns a source with zero jitter and no anomaly.
func noJitter() *ScriptedSource {
	return &ScriptedSource{Uniforms: []float64{0}, Bernoullis: []bool{false}}
}

func TestEvaluate_EqualToAverage(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), noJitter())

	a, err := e.Evaluate(Input{Amount: 200.0, HistoricalAverage: ptr(200.0)})
	require.NoError(t, err)

	assert.Equal(t, 20.0, a.Score)
	assert.Equal(t, LabelSafe, a.Label)
	assert.False(t, a.Blocked)
	assert.False(t, a.VerificationRequired)
	assert.Equal(t, VerificationNone, a.VerificationStatus)
	assert.Empty(t, a.Reasons)
	assert.NotNil(t, a.Reasons, "reasons should serialize as an empty list")
	assert.Equal(t, 20.0, a.Factors["ratio"])
}

func TestEvaluate_LargeAmountClampsAndBlocks(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), noJitter())

	a, err := e.Evaluate(Input{Amount: 20000.0, HistoricalAverage: ptr(200.0)})
	require.NoError(t, err)

	assert.Equal(t, 2000.0, a.Factors["ratio"])
	assert.Equal(t, 95.0, a.Score)
	assert.Equal(t, LabelHighRisk, a.Label)
	assert.True(t, a.Blocked)
	assert.False(t, a.VerificationRequired)
	assert.Equal(t, DefaultReasons, a.Reasons)
}

func TestEvaluate_EmptyHistoryUsesBaseline(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), noJitter())

	a, err := e.Evaluate(Input{Amount: 400.0})
	require.NoError(t, err)

	assert.Equal(t, DefaultBaselineAverage, a.Factors["baseline_avg"])
	assert.Equal(t, 40.0, a.Score)
}

func TestEvaluate_FloorClamp(t *testing.T) {
	src := &ScriptedSource{Uniforms: []float64{-10}, Bernoullis: []bool{false}}
	e := NewEvaluator(DefaultConfig(), src)

	a, err := e.Evaluate(Input{Amount: 1.0, HistoricalAverage: ptr(200.0)})
	require.NoError(t, err)
	assert.Equal(t, DefaultFloor, a.Score)
}

func TestEvaluate_SmallAverageUsesUnitDivisor(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), noJitter())

	a, err := e.Evaluate(Input{Amount: 2.0, HistoricalAverage: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, 40.0, a.Score)
}

func TestEvaluate_AnomalyAddsExactBonus(t *testing.T) {
	base := NewEvaluator(DefaultConfig(), &ScriptedSource{Uniforms: []float64{3}, Bernoullis: []bool{false}})
	anomalous := NewEvaluator(DefaultConfig(), &ScriptedSource{Uniforms: []float64{3}, Bernoullis: []bool{true}})

	in := Input{Amount: 400.0, HistoricalAverage: ptr(200.0)}
	a, err := base.Evaluate(in)
	require.NoError(t, err)
	b, err := anomalous.Evaluate(in)
	require.NoError(t, err)

	assert.Equal(t, 43.0, a.Score)
	assert.Equal(t, 63.0, b.Score)
	assert.Equal(t, DefaultAnomalyBonus, b.Factors["anomaly_bonus"])
}

func TestEvaluate_AnomalyCappedAtMax(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), &ScriptedSource{Uniforms: []float64{0}, Bernoullis: []bool{true}})

	a, err := e.Evaluate(Input{Amount: 20000.0, HistoricalAverage: ptr(200.0)})
	require.NoError(t, err)
	assert.Equal(t, MaxScore, a.Score)
	assert.True(t, a.Blocked)
}

func TestEvaluate_Idempotent(t *testing.T) {
	in := Input{Amount: 1234.56, HistoricalAverage: ptr(321.0)}

	first, err := NewEvaluator(DefaultConfig(), NewRand(42)).Evaluate(in)
	require.NoError(t, err)
	second, err := NewEvaluator(DefaultConfig(), NewRand(42)).Evaluate(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEvaluate_UniformMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryAware = false
	e := NewEvaluator(cfg, &ScriptedSource{Uniforms: []float64{42.424}})

	a, err := e.Evaluate(Input{Amount: 99999})
	require.NoError(t, err)
	assert.Equal(t, 42.42, a.Score)
	assert.Equal(t, DefaultUniformMin, a.Factors["uniform_min"])
}

func TestEvaluate_InvalidInput(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), noJitter())

	for _, amount := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.Evaluate(Input{Amount: amount})
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %v", amount)
	}

	for _, avg := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		_, err := e.Evaluate(Input{Amount: 10, HistoricalAverage: ptr(avg)})
		assert.ErrorIs(t, err, ErrInvalidHistory, "avg %v", avg)
	}
}

func TestEvaluate_PropertiesHoldForRandomInputs(t *testing.T) {
	for _, historyAware := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.HistoryAware = historyAware
		rng := NewRand(7)
		e := NewEvaluator(cfg, rng)

		for i := 0; i < 5000; i++ {
			in := Input{Amount: rng.Uniform(0.01, 50000)}
			if i%3 != 0 {
				in.HistoricalAverage = ptr(rng.Uniform(0, 5000))
			}
			a, err := e.Evaluate(in)
			require.NoError(t, err)

			require.GreaterOrEqual(t, a.Score, 0.0)
			require.LessOrEqual(t, a.Score, MaxScore)
			require.InDelta(t, math.Round(a.Score*100), a.Score*100, 1e-6, "score %v not rounded to 2 places", a.Score)

			require.Equal(t, a.Score > BlockThreshold, a.Blocked)
			require.Equal(t, a.Score > SuspiciousThreshold && a.Score <= BlockThreshold, a.VerificationRequired)
			require.False(t, a.Blocked && a.VerificationRequired)
			if a.VerificationRequired {
				require.Equal(t, VerificationPending, a.VerificationStatus)
			} else {
				require.Equal(t, VerificationNone, a.VerificationStatus)
			}
		}
	}
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		score        float64
		label        Label
		blocked      bool
		verification bool
	}{
		{0, LabelSafe, false, false},
		{69.99, LabelSafe, false, false},
		{70, LabelSuspicious, false, false},
		{70.01, LabelSuspicious, false, true},
		{90, LabelSuspicious, false, true},
		{90.01, LabelHighRisk, true, false},
		{100, LabelHighRisk, true, false},
	}

	e := NewEvaluator(DefaultConfig(), nil)
	for _, tt := range tests {
		a := e.Classify(tt.score)
		assert.Equal(t, tt.label, a.Label, "score %v", tt.score)
		assert.Equal(t, tt.blocked, a.Blocked, "score %v", tt.score)
		assert.Equal(t, tt.verification, a.VerificationRequired, "score %v", tt.score)
	}
}

func TestClassify_SafeAtLowerBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SafeAtLowerBound = true
	e := NewEvaluator(cfg, nil)

	a := e.Classify(70)
	assert.Equal(t, LabelSafe, a.Label)
	assert.False(t, a.VerificationRequired)

	// Only the exact boundary moves.
	assert.Equal(t, LabelSuspicious, e.Classify(70.01).Label)
}

func TestClassify_ReasonsThreshold(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), nil)
	assert.Empty(t, e.Classify(75).Reasons)
	assert.Equal(t, DefaultReasons, e.Classify(75.01).Reasons)

	cfg := DefaultConfig()
	cfg.ReasonsThreshold = LegacyReasonsThreshold
	legacy := NewEvaluator(cfg, nil)
	assert.Empty(t, legacy.Classify(78).Reasons)
	assert.Empty(t, legacy.Classify(80).Reasons)
	assert.Equal(t, DefaultReasons, legacy.Classify(80.5).Reasons)
}

func TestClassify_DecoratedLabels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecoratedLabels = true
	e := NewEvaluator(cfg, nil)

	a := e.Classify(95)
	assert.Equal(t, LabelHighRisk, a.Label)
	assert.Equal(t, "High Risk 🚨", a.DisplayLabel)

	plain := NewEvaluator(DefaultConfig(), nil).Classify(95)
	assert.Equal(t, "High Risk", plain.DisplayLabel)
}

func TestScriptedSourceCycles(t *testing.T) {
	s := &ScriptedSource{Uniforms: []float64{1, 2}, Ints: []int{7}}
	assert.Equal(t, 1.0, s.Uniform(0, 10))
	assert.Equal(t, 2.0, s.Uniform(0, 10))
	assert.Equal(t, 1.0, s.Uniform(0, 10))
	assert.Equal(t, 2, s.IntN(5))
	assert.False(t, s.Bernoulli(1))

	empty := &ScriptedSource{}
	assert.Equal(t, 5.0, empty.Uniform(0, 10))
}

// Halves round away from zero on the shortest decimal form of the float,
// not on its binary expansion.
func TestRound2_HalvesRoundAwayFromZero(t *testing.T) {
	assert.Equal(t, 2.68, Round2(2.675))
	assert.Equal(t, 0.13, Round2(0.125))
	assert.Equal(t, -0.13, Round2(-0.125))
	assert.Equal(t, 19.99, Round2(19.994))
	assert.Equal(t, 100.0, Round2(99.999))
}
