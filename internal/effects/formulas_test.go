package effects

import (
	"math"
	"math/rand"
	"testing"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanDifferenceWorkedExample(t *testing.T) {
	est, err := MeanDifference(
		ma.ContinuousArm{Mean: 10, SD: 2, N: 30},
		ma.ContinuousArm{Mean: 8, SD: 2.5, N: 28},
	)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, est.Value, 1e-12)
	assert.InDelta(t, math.Sqrt(4.0/30+6.25/28), est.SE, 1e-12)
	assert.Equal(t, ma.Adjustment{}, est.Adjustment)
}

func TestMeanDifferenceRejectsNonPositiveN(t *testing.T) {
	for _, n := range []float64{0, -3} {
		_, err := MeanDifference(ma.ContinuousArm{Mean: 1, SD: 1, N: n}, ma.ContinuousArm{Mean: 1, SD: 1, N: 10})
		assert.ErrorIs(t, err, ma.ErrInvalidSampleSize)

		_, err = MeanDifference(ma.ContinuousArm{Mean: 1, SD: 1, N: 10}, ma.ContinuousArm{Mean: 1, SD: 1, N: n})
		assert.ErrorIs(t, err, ma.ErrInvalidSampleSize)
	}
}

func TestMeanDifferenceDomain(t *testing.T) {
	_, err := MeanDifference(ma.ContinuousArm{Mean: 1, SD: -1, N: 10}, ma.ContinuousArm{Mean: 1, SD: 1, N: 10})
	assert.ErrorIs(t, err, ma.ErrInvalidFieldValue)

	_, err = MeanDifference(ma.ContinuousArm{Mean: math.NaN(), SD: 1, N: 10}, ma.ContinuousArm{Mean: 1, SD: 1, N: 10})
	assert.ErrorIs(t, err, ma.ErrInvalidFieldValue)

	est, err := MeanDifference(ma.ContinuousArm{Mean: 3, SD: 0, N: 10}, ma.ContinuousArm{Mean: 1, SD: 0, N: 10})
	require.NoError(t, err)
	assert.Equal(t, 0.0, est.SE)
}

// MD SE is non-negative and bit-reproducible over random valid inputs.
func TestMeanDifferenceProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		tr := ma.ContinuousArm{Mean: rng.NormFloat64() * 50, SD: rng.Float64() * 20, N: float64(1 + rng.Intn(500))}
		ct := ma.ContinuousArm{Mean: rng.NormFloat64() * 50, SD: rng.Float64() * 20, N: float64(1 + rng.Intn(500))}

		first, err := MeanDifference(tr, ct)
		require.NoError(t, err)
		second, err := MeanDifference(tr, ct)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, first.SE, 0.0)
		assert.Equal(t, math.Float64bits(first.Value), math.Float64bits(second.Value))
		assert.Equal(t, math.Float64bits(first.SE), math.Float64bits(second.SE))
	}
}

func TestStandardizedMeanDifference(t *testing.T) {
	tr := ma.ContinuousArm{Mean: 10, SD: 2, N: 30}
	ct := ma.ContinuousArm{Mean: 8, SD: 2.5, N: 28}

	est, err := StandardizedMeanDifference(tr, ct, false)
	require.NoError(t, err)

	sp := math.Sqrt((29*4 + 27*6.25) / 56)
	d := 2 / sp
	assert.InDelta(t, d, est.Value, 1e-12)
	assert.InDelta(t, math.Sqrt(58.0/(30*28)+d*d/(2*58)), est.SE, 1e-12)
	assert.False(t, est.Adjustment.SmallSample)

	corrected, err := StandardizedMeanDifference(tr, ct, true)
	require.NoError(t, err)
	j := 1 - 3.0/223
	assert.InDelta(t, d*j, corrected.Value, 1e-12)
	assert.InDelta(t, est.SE*j, corrected.SE, 1e-12)
	assert.True(t, corrected.Adjustment.SmallSample)
}

func TestStandardizedMeanDifferenceDegenerate(t *testing.T) {
	_, err := StandardizedMeanDifference(ma.ContinuousArm{Mean: 2, SD: 1, N: 1}, ma.ContinuousArm{Mean: 1, SD: 1, N: 1}, false)
	assert.ErrorIs(t, err, ma.ErrDegenerateVariance, "n_treat+n_ctrl=2")

	_, err = StandardizedMeanDifference(ma.ContinuousArm{Mean: 2, SD: 0, N: 10}, ma.ContinuousArm{Mean: 1, SD: 0, N: 10}, false)
	assert.ErrorIs(t, err, ma.ErrDegenerateVariance, "zero pooled SD")

	_, err = StandardizedMeanDifference(ma.ContinuousArm{Mean: 2, SD: 1, N: 2}, ma.ContinuousArm{Mean: 1, SD: 1, N: 1}, true)
	assert.ErrorIs(t, err, ma.ErrDegenerateVariance, "Hedges' J undefined for n=3")

	est, err := StandardizedMeanDifference(ma.ContinuousArm{Mean: 2, SD: 1, N: 1.1}, ma.ContinuousArm{Mean: 1, SD: 1, N: 1.1}, false)
	require.NoError(t, err, "defined without the correction")
	assert.InDelta(t, 1.0, est.Value, 1e-9)
	_, err = StandardizedMeanDifference(ma.ContinuousArm{Mean: 2, SD: 1, N: 1.1}, ma.ContinuousArm{Mean: 1, SD: 1, N: 1.1}, true)
	assert.ErrorIs(t, err, ma.ErrDegenerateVariance, "4(n_treat+n_ctrl)-9 < 0 would inflate J above 1")

	_, err = StandardizedMeanDifference(ma.ContinuousArm{Mean: 2, SD: 1, N: 0}, ma.ContinuousArm{Mean: 1, SD: 1, N: 5}, false)
	assert.ErrorIs(t, err, ma.ErrInvalidSampleSize)
}

func TestLogOddsRatioWorkedExample(t *testing.T) {
	est, err := LogOddsRatio(ma.BinaryArm{Events: 10, Total: 50}, ma.BinaryArm{Events: 5, Total: 45}, 0)
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, est.Value, 1e-12)
	assert.InDelta(t, math.Sqrt(1.0/10+1.0/40+1.0/5+1.0/40), est.SE, 1e-12)
}

func TestLogRiskRatioWorkedExample(t *testing.T) {
	est, err := LogRiskRatio(ma.BinaryArm{Events: 10, Total: 50}, ma.BinaryArm{Events: 5, Total: 45}, 0)
	require.NoError(t, err)
	assert.InDelta(t, math.Log((10.0/50)/(5.0/45)), est.Value, 1e-12)
	assert.InDelta(t, math.Sqrt(1.0/10-1.0/50+1.0/5-1.0/45), est.SE, 1e-12)
}

func TestRatioMeasuresRejectZeroCells(t *testing.T) {
	cases := map[string][2]ma.BinaryArm{
		"a=0": {{Events: 0, Total: 20}, {Events: 5, Total: 20}},
		"b=0": {{Events: 20, Total: 20}, {Events: 5, Total: 20}},
		"c=0": {{Events: 4, Total: 20}, {Events: 0, Total: 20}},
		"d=0": {{Events: 4, Total: 20}, {Events: 20, Total: 20}},
	}
	for name, arms := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LogOddsRatio(arms[0], arms[1], 0)
			assert.ErrorIs(t, err, ma.ErrZeroCellCount)
			_, err = LogRiskRatio(arms[0], arms[1], 0)
			assert.ErrorIs(t, err, ma.ErrZeroCellCount)
		})
	}
}

func TestContinuityCorrectionIsOptIn(t *testing.T) {
	tr := ma.BinaryArm{Events: 0, Total: 20}
	ct := ma.BinaryArm{Events: 5, Total: 20}

	est, err := LogOddsRatio(tr, ct, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, math.Log((0.5*15.5)/(20.5*5.5)), est.Value, 1e-12)
	assert.Equal(t, 0.5, est.Adjustment.ContinuityCorrection)

	rr, err := LogRiskRatio(tr, ct, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, math.Log((0.5/21)/(5.5/21)), rr.Value, 1e-12)

	clean, err := LogOddsRatio(ma.BinaryArm{Events: 10, Total: 50}, ma.BinaryArm{Events: 5, Total: 45}, 0.5)
	require.NoError(t, err)
	assert.Zero(t, clean.Adjustment.ContinuityCorrection, "tables without zero cells are never corrected")
}

func TestBinaryDomain(t *testing.T) {
	_, err := LogOddsRatio(ma.BinaryArm{Events: 60, Total: 50}, ma.BinaryArm{Events: 5, Total: 45}, 0)
	assert.ErrorIs(t, err, ma.ErrInvalidFieldValue)

	_, err = LogRiskRatio(ma.BinaryArm{Events: 1, Total: 0}, ma.BinaryArm{Events: 5, Total: 45}, 0)
	assert.ErrorIs(t, err, ma.ErrInvalidSampleSize)

	_, err = LogRiskRatio(ma.BinaryArm{Events: -1, Total: 10}, ma.BinaryArm{Events: 5, Total: 45}, 0)
	assert.ErrorIs(t, err, ma.ErrInvalidFieldValue)
}

func TestComputeDispatch(t *testing.T) {
	est, err := Compute(ma.MDInputs{Treat: ma.ContinuousArm{Mean: 5, SD: 1, N: 10}, Ctrl: ma.ContinuousArm{Mean: 3, SD: 1, N: 10}}, FormulaOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, est.Value, 1e-12)

	_, err = Compute(nil, FormulaOptions{})
	assert.ErrorIs(t, err, ma.ErrMissingRequiredField)
}
