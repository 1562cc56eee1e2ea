package effects

import (
	"math"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"

	"github.com/montanaflynn/stats"
)

// Presentation is the display view of an effect. Ratio measures are stored
// on the log scale and exponentiated here, exactly once.
type Presentation struct {
	Label  string   `json:"label"`
	Scale  string   `json:"scale"`
	Value  float64  `json:"value"`
	SE     float64  `json:"se"`
	CILow  *float64 `json:"ci_low,omitempty"`
	CIHigh *float64 `json:"ci_high,omitempty"`
	Level  float64  `json:"ci_level,omitempty"`
}

var labels = map[ma.EffectType]string{
	ma.MD:    "MD",
	ma.SMD:   "SMD",
	ma.LogOR: "OR",
	ma.RR:    "RR",
}

// Present converts a stored effect for display, rounding to places decimals.
// The SE of ratio measures stays on the log scale.
func Present(e ma.Effect, places int) Presentation {
	transform := func(x float64) float64 { return x }
	scale := "linear"
	if e.Type.LogScale() {
		transform = math.Exp
		scale = "ratio"
	}

	p := Presentation{
		Label: labels[e.Type],
		Scale: scale,
		Value: round(transform(e.Value), places),
		SE:    round(e.SE, places),
	}
	if e.CI != nil {
		low := round(transform(e.CI.Low), places)
		high := round(transform(e.CI.High), places)
		p.CILow, p.CIHigh, p.Level = &low, &high, e.CI.Level
	}
	return p
}

func round(x float64, places int) float64 {
	r, err := stats.Round(x, places)
	if err != nil {
		return x
	}
	return r
}
