package effects

import (
	"fmt"
	"math"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// Estimate is a point estimate with its standard error. Ratio measures are
// on the natural-log scale.
type Estimate struct {
	Value      float64
	SE         float64
	Adjustment ma.Adjustment
}

// FormulaOptions holds the opt-in corrections. The zero value applies none.
type FormulaOptions struct {
	// ContinuityCorrection, when > 0, is added to every cell of a 2x2 table
	// that contains a zero cell. Zero means such tables are rejected.
	ContinuityCorrection float64
	// SmallSampleCorrection applies Hedges' J to SMD.
	SmallSampleCorrection bool
}

// Compute dispatches to the formula for the variant of in.
func Compute(in ma.Inputs, opts FormulaOptions) (Estimate, error) {
	switch v := in.(type) {
	case ma.MDInputs:
		return MeanDifference(v.Treat, v.Ctrl)
	case ma.SMDInputs:
		return StandardizedMeanDifference(v.Treat, v.Ctrl, opts.SmallSampleCorrection)
	case ma.LogORInputs:
		return LogOddsRatio(v.Treat, v.Ctrl, opts.ContinuityCorrection)
	case ma.RRInputs:
		return LogRiskRatio(v.Treat, v.Ctrl, opts.ContinuityCorrection)
	case nil:
		return Estimate{}, ma.NewMissingFieldError("inputs")
	}
	return Estimate{}, ma.NewUnsupportedTypeError(fmt.Sprintf("%T", in))
}

// CheckDomain verifies the numeric domain of every input field.
func CheckDomain(in ma.Inputs) error {
	switch v := in.(type) {
	case ma.MDInputs:
		return checkContinuous(v.Treat, v.Ctrl)
	case ma.SMDInputs:
		return checkContinuous(v.Treat, v.Ctrl)
	case ma.LogORInputs:
		return checkBinary(v.Treat, v.Ctrl)
	case ma.RRInputs:
		return checkBinary(v.Treat, v.Ctrl)
	case nil:
		return ma.NewMissingFieldError("inputs")
	}
	return ma.NewUnsupportedTypeError(fmt.Sprintf("%T", in))
}

func checkContinuous(t, c ma.ContinuousArm) error {
	arms := []struct {
		arm            ma.ContinuousArm
		mean, sd, size ma.Field
	}{
		{t, ma.FieldMeanTreat, ma.FieldSDTreat, ma.FieldNTreat},
		{c, ma.FieldMeanCtrl, ma.FieldSDCtrl, ma.FieldNCtrl},
	}
	for _, a := range arms {
		if !finite(a.arm.N) {
			return ma.NewInvalidFieldError(a.size, "not a finite number")
		}
		if a.arm.N <= 0 {
			return ma.NewSampleSizeError(a.size, a.arm.N)
		}
		if !finite(a.arm.Mean) {
			return ma.NewInvalidFieldError(a.mean, "not a finite number")
		}
		if !finite(a.arm.SD) || a.arm.SD < 0 {
			return ma.NewInvalidFieldError(a.sd, "must be a finite number >= 0")
		}
	}
	return nil
}

func checkBinary(t, c ma.BinaryArm) error {
	arms := []struct {
		arm           ma.BinaryArm
		events, total ma.Field
	}{
		{t, ma.FieldEventsTreat, ma.FieldTotalTreat},
		{c, ma.FieldEventsCtrl, ma.FieldTotalCtrl},
	}
	for _, a := range arms {
		if !finite(a.arm.Total) {
			return ma.NewInvalidFieldError(a.total, "not a finite number")
		}
		if a.arm.Total <= 0 {
			return ma.NewSampleSizeError(a.total, a.arm.Total)
		}
		if !finite(a.arm.Events) || a.arm.Events < 0 {
			return ma.NewInvalidFieldError(a.events, "must be a finite number >= 0")
		}
		if a.arm.Events > a.arm.Total {
			return ma.NewInvalidFieldError(a.events, fmt.Sprintf("exceeds %s", a.total))
		}
	}
	return nil
}

// MeanDifference computes mean_t - mean_c with SE sqrt(sd_t²/n_t + sd_c²/n_c).
func MeanDifference(t, c ma.ContinuousArm) (Estimate, error) {
	if err := checkContinuous(t, c); err != nil {
		return Estimate{}, err
	}
	value := t.Mean - c.Mean
	se := math.Sqrt(t.SD*t.SD/t.N + c.SD*c.SD/c.N)
	return finish(Estimate{Value: value, SE: se})
}

// StandardizedMeanDifference divides the mean difference by the pooled SD.
// With smallSample set, Hedges' J = 1 - 3/(4(n_t+n_c)-9) scales both the
// value and the SE.
func StandardizedMeanDifference(t, c ma.ContinuousArm, smallSample bool) (Estimate, error) {
	if err := checkContinuous(t, c); err != nil {
		return Estimate{}, err
	}
	total := t.N + c.N
	if total <= 2 {
		return Estimate{}, fmt.Errorf("%w: n_treat+n_ctrl must exceed 2, got %g", ma.ErrDegenerateVariance, total)
	}
	sp := math.Sqrt(((t.N-1)*t.SD*t.SD + (c.N-1)*c.SD*c.SD) / (total - 2))
	if sp == 0 {
		return Estimate{}, fmt.Errorf("%w: pooled standard deviation is zero", ma.ErrDegenerateVariance)
	}

	d := (t.Mean - c.Mean) / sp
	se := math.Sqrt(total/(t.N*c.N) + d*d/(2*total))

	est := Estimate{Value: d, SE: se}
	if smallSample {
		df := 4*total - 9
		j := 1 - 3/df
		if df <= 0 || j <= 0 {
			return Estimate{}, fmt.Errorf("%w: small-sample correction undefined for n=%g", ma.ErrDegenerateVariance, total)
		}
		est.Value *= j
		est.SE *= j
		est.Adjustment.SmallSample = true
	}
	return finish(est)
}

// table is a 2x2 contingency table: a/b events/non-events in the treatment
// arm, c/d in the control arm.
type table struct{ a, b, c, d float64 }

func newTable(t, c ma.BinaryArm) table {
	return table{a: t.Events, b: t.Total - t.Events, c: c.Events, d: c.Total - c.Events}
}

func (tb table) hasZero() bool {
	return tb.a == 0 || tb.b == 0 || tb.c == 0 || tb.d == 0
}

// corrected applies the zero-cell policy: reject unless correction > 0.
func (tb table) corrected(correction float64) (table, float64, error) {
	if !tb.hasZero() {
		return tb, 0, nil
	}
	if correction <= 0 {
		return tb, 0, fmt.Errorf("%w: a=%g b=%g c=%g d=%g", ma.ErrZeroCellCount, tb.a, tb.b, tb.c, tb.d)
	}
	return table{a: tb.a + correction, b: tb.b + correction, c: tb.c + correction, d: tb.d + correction}, correction, nil
}

// LogOddsRatio computes ln(ad/bc) with SE sqrt(1/a+1/b+1/c+1/d).
func LogOddsRatio(t, c ma.BinaryArm, correction float64) (Estimate, error) {
	if err := checkBinary(t, c); err != nil {
		return Estimate{}, err
	}
	tb, applied, err := newTable(t, c).corrected(correction)
	if err != nil {
		return Estimate{}, err
	}
	value := math.Log((tb.a * tb.d) / (tb.b * tb.c))
	se := math.Sqrt(1/tb.a + 1/tb.b + 1/tb.c + 1/tb.d)
	return finish(Estimate{Value: value, SE: se, Adjustment: ma.Adjustment{ContinuityCorrection: applied}})
}

// LogRiskRatio computes ln((a/n_t)/(c/n_c)) with SE sqrt(1/a-1/n_t+1/c-1/n_c).
func LogRiskRatio(t, c ma.BinaryArm, correction float64) (Estimate, error) {
	if err := checkBinary(t, c); err != nil {
		return Estimate{}, err
	}
	tb, applied, err := newTable(t, c).corrected(correction)
	if err != nil {
		return Estimate{}, err
	}
	nt := tb.a + tb.b
	nc := tb.c + tb.d
	value := math.Log((tb.a / nt) / (tb.c / nc))
	se := math.Sqrt(1/tb.a - 1/nt + 1/tb.c - 1/nc)
	return finish(Estimate{Value: value, SE: se, Adjustment: ma.Adjustment{ContinuityCorrection: applied}})
}

func finish(est Estimate) (Estimate, error) {
	if !finite(est.Value) || !finite(est.SE) || est.SE < 0 {
		return Estimate{}, fmt.Errorf("%w: non-finite result (effect=%g, se=%g)", ma.ErrDegenerateVariance, est.Value, est.SE)
	}
	return est, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
