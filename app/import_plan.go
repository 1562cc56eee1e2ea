package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal/coerce"
	"github.com/plew99/cytokines-metaanalysis/ports"
)

// effectJob is one Effects row waiting for derivation
type effectJob struct {
	record     string
	effectType ma.EffectType
	raw        ma.RawInput
}

// importPlan accumulates the entities of one workbook. Rows reference each
// other by workbook-local ids, which are rewritten to freshly minted IDs;
// study references that match no local id are looked up among stored studies
// unless the import replaces them.
type importPlan struct {
	batch       ports.ImportBatch
	diagnostics []Diagnostic
	failed      map[string]bool
	replace     bool

	studyIDs   map[string]core.ID
	armIDs     map[string]core.ID
	outcomeIDs map[string]core.ID
	dois       map[string]bool
	tags       map[string]bool

	// arena of every study, arm, outcome and covariate the derivations may see
	studies    map[core.ID]ma.Study
	arms       map[core.ID]ma.Arm
	outcomes   map[core.ID]ma.Outcome
	covariates map[core.ID]ma.Covariate

	jobs []effectJob
}

func newImportPlan() *importPlan {
	return &importPlan{
		diagnostics: []Diagnostic{},
		failed:      make(map[string]bool),
		studyIDs:    make(map[string]core.ID),
		armIDs:      make(map[string]core.ID),
		outcomeIDs:  make(map[string]core.ID),
		dois:        make(map[string]bool),
		tags:        make(map[string]bool),
		studies:     make(map[core.ID]ma.Study),
		arms:        make(map[core.ID]ma.Arm),
		outcomes:    make(map[core.ID]ma.Outcome),
		covariates:  make(map[core.ID]ma.Covariate),
	}
}

func (p *importPlan) addDiagnostic(sheet, record, column, msg string) {
	p.diagnostics = append(p.diagnostics, Diagnostic{Sheet: sheet, Record: record, Column: column, Error: msg})
	p.failed[sheet+"\x00"+record] = true
}

func (p *importPlan) failedRows() int {
	return len(p.failed)
}

// contextFor returns the derivation context of a study. Arms and outcomes of
// other studies stay visible so cross-study references are reported as such.
func (p *importPlan) contextFor(studyID core.ID) ma.StudyContext {
	return ma.StudyContext{
		Study:      p.studies[studyID],
		Arms:       p.arms,
		Outcomes:   p.outcomes,
		Covariates: p.covariates,
	}
}

// recordOf identifies a row in diagnostics by its local id, else its index
func recordOf(row ports.SheetRow) string {
	if id, ok := row.Get("id"); ok {
		return id
	}
	return strconv.Itoa(row.Index)
}

// ref rewrites a local reference; unknown values pass through unchanged and
// are judged by validation
func ref(local map[string]core.ID, row ports.SheetRow, column string) core.ID {
	v, ok := row.Get(column)
	if !ok {
		return ""
	}
	if id, ok := local[v]; ok {
		return id
	}
	return core.OptionalID(v)
}

// registerLocal records the row's local id, reporting duplicates
func (p *importPlan) registerLocal(local map[string]core.ID, sheet string, row ports.SheetRow, id core.ID) bool {
	v, ok := row.Get("id")
	if !ok {
		return true
	}
	if _, dup := local[v]; dup {
		p.addDiagnostic(sheet, v, "id", "duplicate id")
		return false
	}
	local[v] = id
	return true
}

// plan validates every recognised sheet in import order and queues the
// effect rows for derivation
func (s *ImportService) plan(ctx context.Context, wb *ports.Workbook, replace bool) (*importPlan, error) {
	p := newImportPlan()
	p.replace = replace
	for _, spec := range ports.ImportSheets {
		rows, ok := wb.Sheets[spec.Name]
		if !ok {
			s.logger.Debug("Skipping missing sheet: %s", spec.Name)
			continue
		}

		before := len(p.diagnostics)
		for _, row := range rows {
			if !p.requireFields(spec, row) {
				continue
			}
			var err error
			switch spec.Name {
			case ports.SheetStudy:
				p.addStudy(row)
			case ports.SheetArms:
				err = s.addArm(ctx, p, row)
			case ports.SheetOutcomes:
				err = s.addOutcome(ctx, p, row)
			case ports.SheetCovariates:
				err = s.addCovariate(ctx, p, row)
			case ports.SheetTags:
				err = s.addTag(ctx, p, row)
			case ports.SheetEffects:
				err = s.addEffect(ctx, p, row)
			}
			if err != nil {
				return nil, err
			}
		}
		s.logger.Info("Processed sheet '%s' (%d rows, %d errors)", spec.Name, len(rows), len(p.diagnostics)-before)
	}
	return p, nil
}

func (p *importPlan) requireFields(spec ports.SheetSpec, row ports.SheetRow) bool {
	ok := true
	for _, field := range spec.Required {
		if _, present := row.Get(field); !present {
			p.addDiagnostic(spec.Name, recordOf(row), field, "missing required field")
			ok = false
		}
	}
	return ok
}

func (p *importPlan) addStudy(row ports.SheetRow) {
	record := recordOf(row)
	study := ma.Study{
		ID:      core.NewID(),
		Title:   row.Values["title"],
		Journal: row.Values["journal"],
		Authors: row.Values["authors"],
		Country: row.Values["country"],
		Design:  row.Values["design"],
		Notes:   row.Values["notes"],
	}
	if v, ok := row.Get("year"); ok {
		year, ok := coerce.Int(v)
		if !ok {
			p.addDiagnostic(ports.SheetStudy, record, "year", fmt.Sprintf("invalid integer %q", v))
			return
		}
		study.Year = &year
	}
	doi, hasDOI := row.Get("doi")
	if hasDOI && p.dois[doi] {
		p.addDiagnostic(ports.SheetStudy, record, "doi", "duplicate doi")
		return
	}
	if !p.registerLocal(p.studyIDs, ports.SheetStudy, row, study.ID) {
		return
	}
	if hasDOI {
		p.dois[doi] = true
		study.DOI = &doi
	}
	p.studies[study.ID] = study
	p.batch.Studies = append(p.batch.Studies, study)
}

// resolveStudy maps a study_id cell to a study of this import or a stored one
func (s *ImportService) resolveStudy(ctx context.Context, p *importPlan, sheet string, row ports.SheetRow) (core.ID, bool, error) {
	v, _ := row.Get("study_id")
	if id, ok := p.studyIDs[v]; ok {
		return id, true, nil
	}

	id := core.OptionalID(v)
	if _, ok := p.studies[id]; ok {
		return id, true, nil
	}
	if p.replace {
		p.addDiagnostic(sheet, recordOf(row), "study_id", "Study not found")
		return "", false, nil
	}
	sc, err := s.studies.LoadContext(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		p.addDiagnostic(sheet, recordOf(row), "study_id", "Study not found")
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load study %s: %w", id, err)
	}

	p.studies[id] = sc.Study
	for armID, arm := range sc.Arms {
		p.arms[armID] = arm
	}
	for outcomeID, outcome := range sc.Outcomes {
		p.outcomes[outcomeID] = outcome
	}
	for covariateID, covariate := range sc.Covariates {
		p.covariates[covariateID] = covariate
	}
	return id, true, nil
}

func (s *ImportService) addArm(ctx context.Context, p *importPlan, row ports.SheetRow) error {
	studyID, ok, err := s.resolveStudy(ctx, p, ports.SheetArms, row)
	if err != nil || !ok {
		return err
	}
	arm := ma.Arm{
		ID:          core.NewID(),
		StudyID:     studyID,
		Label:       row.Values["label"],
		Description: row.Values["description"],
	}
	if v, ok := row.Get("n"); ok {
		n, ok := coerce.Int(v)
		if !ok {
			p.addDiagnostic(ports.SheetArms, recordOf(row), "n", fmt.Sprintf("invalid integer %q", v))
			return nil
		}
		arm.N = &n
	}
	if !p.registerLocal(p.armIDs, ports.SheetArms, row, arm.ID) {
		return nil
	}
	p.arms[arm.ID] = arm
	p.batch.Arms = append(p.batch.Arms, arm)
	return nil
}

func (s *ImportService) addOutcome(ctx context.Context, p *importPlan, row ports.SheetRow) error {
	studyID, ok, err := s.resolveStudy(ctx, p, ports.SheetOutcomes, row)
	if err != nil || !ok {
		return err
	}
	outcome := ma.Outcome{
		ID:        core.NewID(),
		StudyID:   studyID,
		Name:      row.Values["name"],
		Unit:      row.Values["unit"],
		Direction: row.Values["direction"],
		Domain:    row.Values["domain"],
		Method:    row.Values["method"],
	}
	if !p.registerLocal(p.outcomeIDs, ports.SheetOutcomes, row, outcome.ID) {
		return nil
	}
	p.outcomes[outcome.ID] = outcome
	p.batch.Outcomes = append(p.batch.Outcomes, outcome)
	return nil
}

func (s *ImportService) addCovariate(ctx context.Context, p *importPlan, row ports.SheetRow) error {
	studyID, ok, err := s.resolveStudy(ctx, p, ports.SheetCovariates, row)
	if err != nil || !ok {
		return err
	}
	covariate := ma.Covariate{
		ID:      core.NewID(),
		StudyID: studyID,
		Name:    row.Values["name"],
		Value:   row.Values["value"],
	}
	p.covariates[covariate.ID] = covariate
	p.batch.Covariates = append(p.batch.Covariates, covariate)
	return nil
}

func (s *ImportService) addTag(ctx context.Context, p *importPlan, row ports.SheetRow) error {
	studyID, ok, err := s.resolveStudy(ctx, p, ports.SheetTags, row)
	if err != nil || !ok {
		return err
	}
	name := row.Values["name"]
	key := string(studyID) + "\x00" + name
	if p.tags[key] {
		return nil
	}
	p.tags[key] = true
	p.batch.Tags = append(p.batch.Tags, ports.StudyTag{StudyID: studyID, Name: name})
	return nil
}

func (s *ImportService) addEffect(ctx context.Context, p *importPlan, row ports.SheetRow) error {
	record := recordOf(row)
	symbol, _ := row.Get("effect_type")
	t, err := ma.ParseEffectType(symbol)
	if err != nil {
		p.addDiagnostic(ports.SheetEffects, record, "effect_type", err.Error())
		return nil
	}

	studyID, ok, err := s.resolveStudy(ctx, p, ports.SheetEffects, row)
	if err != nil || !ok {
		return err
	}

	raw := ma.RawInput{
		StudyID:    studyID,
		OutcomeID:  ref(p.outcomeIDs, row, "outcome_id"),
		ArmID:      ref(p.armIDs, row, "arm_id"),
		ArmTreatID: ref(p.armIDs, row, "arm_treat_id"),
		ArmCtrlID:  ref(p.armIDs, row, "arm_ctrl_id"),
	}
	valid := true
	for _, field := range ma.AllFields {
		v, ok := row.Get(string(field))
		if !ok {
			continue
		}
		n, ok := coerce.Number(v)
		if !ok {
			p.addDiagnostic(ports.SheetEffects, record, string(field), fmt.Sprintf("invalid number %q", v))
			valid = false
			continue
		}
		raw.Set(field, &n)
	}
	if valid {
		p.jobs = append(p.jobs, effectJob{record: record, effectType: t, raw: raw})
	}
	return nil
}
