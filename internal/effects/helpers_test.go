package effects

import (
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

func f(v float64) *float64 { return &v }

// testContext has study s1 with arms a1/a2 and outcome o1, plus foreign
// entities from study s2 in the same arena.
func testContext() ma.StudyContext {
	n := 30
	return ma.NewStudyContext(
		ma.Study{ID: "s1", Title: "Cytokines in DCM"},
		[]ma.Arm{
			{ID: "a1", StudyID: "s1", Label: "DCM", N: &n},
			{ID: "a2", StudyID: "s1", Label: "Healthy"},
			{ID: "x1", StudyID: "s2", Label: "Foreign"},
		},
		[]ma.Outcome{
			{ID: "o1", StudyID: "s1", Name: "IL6", Unit: "pg/mL"},
			{ID: "o2", StudyID: "s2", Name: "TNF"},
		},
		[]ma.Covariate{{ID: "c1", StudyID: "s1", Name: "% males", Value: "78"}},
	)
}

func mdRaw() ma.RawInput {
	return ma.RawInput{
		StudyID: "s1", OutcomeID: "o1", ArmTreatID: "a1", ArmCtrlID: "a2",
		MeanTreat: f(10), SDTreat: f(2), NTreat: f(30),
		MeanCtrl: f(8), SDCtrl: f(2.5), NCtrl: f(28),
	}
}

func binaryRaw() ma.RawInput {
	return ma.RawInput{
		StudyID: "s1", OutcomeID: "o1", ArmTreatID: "a1", ArmCtrlID: "a2",
		EventsTreat: f(10), TotalTreat: f(50),
		EventsCtrl: f(5), TotalCtrl: f(45),
	}
}
