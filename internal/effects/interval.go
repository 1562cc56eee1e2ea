package effects

import (
	"fmt"
	"math"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultLevel is the confidence level used when none is configured.
const DefaultLevel = 0.95

// CriticalValue returns the two-sided standard-normal critical value for level.
func CriticalValue(level float64) (float64, error) {
	if math.IsNaN(level) || level <= 0 || level >= 1 {
		return 0, fmt.Errorf("%w: %g is outside (0,1)", ma.ErrInvalidConfidenceLevel, level)
	}
	return distuv.UnitNormal.Quantile(1 - (1-level)/2), nil
}

// BuildInterval returns effect ± z(level)·se under a normal assumption.
func BuildInterval(effect, se, level float64) (ma.Interval, error) {
	z, err := CriticalValue(level)
	if err != nil {
		return ma.Interval{}, err
	}
	if !finite(se) || se < 0 {
		return ma.Interval{}, fmt.Errorf("%w: standard error %g", ma.ErrInvalidFieldValue, se)
	}
	if !finite(effect) {
		return ma.Interval{}, fmt.Errorf("%w: effect %g", ma.ErrInvalidFieldValue, effect)
	}
	half := z * se
	return ma.Interval{Low: effect - half, High: effect + half, Level: level}, nil
}
