// Package effects derives standardized effect measures from raw per-arm
// statistics and validates the resulting records against their study graph.
//
// Everything in this package is pure: no I/O, no shared mutable state, no
// logging. It is safe for concurrent use.
package effects

import (
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// Requirements describes the raw inputs an effect type consumes.
type Requirements struct {
	Type EffectType
	// Required fields must all be present before derivation.
	Required []ma.Field
	// Irrelevant fields are ignored if supplied.
	Irrelevant []ma.Field
	// Descriptive types reference a single arm; comparative types an arm pair.
	Descriptive bool
}

// EffectType is re-exported for callers that only import the engine.
type EffectType = ma.EffectType

var continuousFields = []ma.Field{
	ma.FieldMeanTreat, ma.FieldSDTreat, ma.FieldNTreat,
	ma.FieldMeanCtrl, ma.FieldSDCtrl, ma.FieldNCtrl,
}

var binaryFields = []ma.Field{
	ma.FieldEventsTreat, ma.FieldTotalTreat,
	ma.FieldEventsCtrl, ma.FieldTotalCtrl,
}

var requirements = map[ma.EffectType]Requirements{
	ma.MD:    {Type: ma.MD, Required: continuousFields, Irrelevant: binaryFields},
	ma.SMD:   {Type: ma.SMD, Required: continuousFields, Irrelevant: binaryFields},
	ma.LogOR: {Type: ma.LogOR, Required: binaryFields, Irrelevant: continuousFields},
	ma.RR:    {Type: ma.RR, Required: binaryFields, Irrelevant: continuousFields},
}

// Resolve returns the input requirements for t.
func Resolve(t ma.EffectType) (Requirements, error) {
	req, ok := requirements[t]
	if !ok {
		return Requirements{}, ma.NewUnsupportedTypeError(string(t))
	}
	return req, nil
}

// ResolveSymbol parses a user-supplied symbol and resolves it.
func ResolveSymbol(symbol string) (Requirements, error) {
	t, err := ma.ParseEffectType(symbol)
	if err != nil {
		return Requirements{}, err
	}
	return Resolve(t)
}

// Bind checks that every field required by t is present on raw and builds
// the typed inputs. Irrelevant fields are dropped. Numeric domains are not
// checked here; see CheckDomain.
func Bind(t ma.EffectType, raw ma.RawInput) (ma.Inputs, error) {
	req, err := Resolve(t)
	if err != nil {
		return nil, err
	}
	for _, f := range req.Required {
		if raw.Value(f) == nil {
			return nil, ma.NewMissingFieldError(f)
		}
	}

	switch t {
	case ma.MD:
		return ma.MDInputs{Treat: continuousTreat(raw), Ctrl: continuousCtrl(raw)}, nil
	case ma.SMD:
		return ma.SMDInputs{Treat: continuousTreat(raw), Ctrl: continuousCtrl(raw)}, nil
	case ma.LogOR:
		return ma.LogORInputs{Treat: binaryTreat(raw), Ctrl: binaryCtrl(raw)}, nil
	case ma.RR:
		return ma.RRInputs{Treat: binaryTreat(raw), Ctrl: binaryCtrl(raw)}, nil
	}
	return nil, ma.NewUnsupportedTypeError(string(t))
}

func continuousTreat(raw ma.RawInput) ma.ContinuousArm {
	return ma.ContinuousArm{Mean: *raw.MeanTreat, SD: *raw.SDTreat, N: *raw.NTreat}
}

func continuousCtrl(raw ma.RawInput) ma.ContinuousArm {
	return ma.ContinuousArm{Mean: *raw.MeanCtrl, SD: *raw.SDCtrl, N: *raw.NCtrl}
}

func binaryTreat(raw ma.RawInput) ma.BinaryArm {
	return ma.BinaryArm{Events: *raw.EventsTreat, Total: *raw.TotalTreat}
}

func binaryCtrl(raw ma.RawInput) ma.BinaryArm {
	return ma.BinaryArm{Events: *raw.EventsCtrl, Total: *raw.TotalCtrl}
}
