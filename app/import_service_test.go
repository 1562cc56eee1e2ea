package app

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	apperrors "github.com/plew99/cytokines-metaanalysis/internal/errors"
	"github.com/plew99/cytokines-metaanalysis/internal/metrics"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func row(index int, values map[string]string) ports.SheetRow {
	return ports.SheetRow{Index: index, Values: values}
}

// testWorkbook holds one study with two arms, one outcome, two valid effect
// rows and two broken ones, plus a tag pointing at an unknown study.
func testWorkbook() *ports.Workbook {
	return &ports.Workbook{
		Source: "meta.xlsx",
		Sheets: map[string][]ports.SheetRow{
			ports.SheetStudy: {
				row(0, map[string]string{"id": "s1", "title": "IL-6 in DCM", "year": "2019", "doi": "10.1000/a"}),
			},
			ports.SheetArms: {
				row(0, map[string]string{"id": "a1", "study_id": "s1", "label": "DCM", "n": "30"}),
				row(1, map[string]string{"id": "a2", "study_id": "s1", "label": "Control", "n": "28"}),
			},
			ports.SheetOutcomes: {
				row(0, map[string]string{"id": "o1", "study_id": "s1", "name": "IL6", "unit": "pg/mL"}),
			},
			ports.SheetEffects: {
				row(0, map[string]string{
					"id": "e1", "study_id": "s1", "outcome_id": "o1", "effect_type": "MD",
					"arm_treat_id": "a1", "arm_ctrl_id": "a2",
					"mean_treat": "10", "sd_treat": "±2", "n_treat": "30",
					"mean_ctrl": "8", "sd_ctrl": "2,5", "n_ctrl": "28",
				}),
				row(1, map[string]string{
					"id": "e2", "study_id": "s1", "outcome_id": "o1", "effect_type": "logOR",
					"arm_treat_id": "a1", "arm_ctrl_id": "a2",
					"events_treat": "10", "total_treat": "50", "events_ctrl": "5", "total_ctrl": "45",
				}),
				row(2, map[string]string{
					"id": "e3", "study_id": "s1", "outcome_id": "o1", "effect_type": "SMD",
					"arm_treat_id": "a1", "arm_ctrl_id": "a2",
					"mean_treat": "10", "sd_treat": "2", "n_treat": "30",
					"mean_ctrl": "8", "sd_ctrl": "2.5",
				}),
				row(3, map[string]string{"id": "e4", "study_id": "s1", "outcome_id": "o1", "effect_type": "HR"}),
			},
			ports.SheetTags: {
				row(0, map[string]string{"study_id": "s1", "name": "cytokines"}),
				row(1, map[string]string{"study_id": "missing", "name": "orphan"}),
			},
		},
	}
}

type importFixture struct {
	svc     *ImportService
	repo    *MockImportRepository
	studies *MockStudyRepository
	sink    *MockReportSink
}

func newImportFixture(t *testing.T, wb *ports.Workbook) *importFixture {
	t.Helper()
	deriver, err := effects.NewDeriver(effects.DefaultOptions())
	require.NoError(t, err)

	fx := &importFixture{
		repo:    &MockImportRepository{},
		studies: &MockStudyRepository{},
		sink:    &MockReportSink{},
	}
	fx.studies.On("LoadContext", mock.Anything, mock.Anything).Return(ma.StudyContext{}, core.NewNotFoundError("study", "missing"))
	fx.sink.On("Put", mock.Anything, mock.Anything, "text/csv", mock.Anything).Return("reports/import.csv", nil)

	fx.svc = NewImportService(&stubReader{wb: wb}, fx.repo, fx.studies, fx.sink, deriver, metrics.New(), nil, 3)
	fx.svc.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("CET", 3600)) }
	return fx
}

func TestImportPartialCommitsValidRows(t *testing.T) {
	fx := newImportFixture(t, testWorkbook())
	fx.repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	result, err := fx.svc.ImportFile(context.Background(), "meta.xlsx", ImportOptions{})
	require.NoError(t, err)

	assert.True(t, result.Committed)
	assert.Equal(t, 1, result.Studies)
	assert.Equal(t, 2, result.Arms)
	assert.Equal(t, 1, result.Outcomes)
	assert.Equal(t, 1, result.Tags)
	assert.Equal(t, 2, result.Effects)
	assert.Equal(t, 3, result.FailedRows)
	assert.Equal(t, "reports/import.csv", result.Report)

	require.Len(t, fx.repo.batches, 1)
	batch := fx.repo.batches[0]
	study := batch.Studies[0]
	assert.NotEqual(t, core.ID("s1"), study.ID)
	require.NotNil(t, study.Year)
	assert.Equal(t, 2019, *study.Year)
	assert.Equal(t, "10.1000/a", *study.DOI)

	armIDs := map[core.ID]bool{batch.Arms[0].ID: true, batch.Arms[1].ID: true}
	for _, arm := range batch.Arms {
		assert.Equal(t, study.ID, arm.StudyID)
	}
	assert.Equal(t, 30, *batch.Arms[0].N)

	md := batch.Effects[0]
	assert.Equal(t, ma.MD, md.Type)
	assert.Equal(t, study.ID, md.StudyID)
	assert.Equal(t, batch.Outcomes[0].ID, md.OutcomeID)
	assert.True(t, armIDs[md.ArmTreatID])
	assert.True(t, armIDs[md.ArmCtrlID])
	assert.InDelta(t, 2.0, md.Value, 1e-12)
	assert.Equal(t, ma.LogOR, batch.Effects[1].Type)

	require.NotNil(t, result.MedianSE)
	assert.Greater(t, *result.MedianSE, 0.0)

	require.Len(t, result.Diagnostics, 3)
	assert.Equal(t, []Diagnostic{
		{Sheet: ports.SheetEffects, Record: "e4", Column: "effect_type", Error: ma.NewUnsupportedTypeError("HR").Error()},
		{Sheet: ports.SheetTags, Record: "1", Column: "study_id", Error: "Study not found"},
		{Sheet: ports.SheetEffects, Record: "e3", Column: "n_ctrl", Error: result.Diagnostics[2].Error},
	}, result.Diagnostics)
	assert.Contains(t, result.Diagnostics[2].Error, "n_ctrl")
}

func TestImportReportFormat(t *testing.T) {
	fx := newImportFixture(t, testWorkbook())
	fx.repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	_, err := fx.svc.ImportFile(context.Background(), "meta.xlsx", ImportOptions{})
	require.NoError(t, err)

	data, ok := fx.sink.reports["import_20240309_130507.csv"]
	require.True(t, ok, "report named after the UTC timestamp")
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"record", "error", "sheet", "column"}, records[0])
	assert.Equal(t, []string{"1", "Study not found", "Tags", "study_id"}, records[2])
}

func TestImportStrictCommitsNothing(t *testing.T) {
	fx := newImportFixture(t, testWorkbook())

	result, err := fx.svc.ImportFile(context.Background(), "meta.xlsx", ImportOptions{Strict: true})
	require.NoError(t, err)
	assert.False(t, result.Committed)
	assert.Len(t, result.Diagnostics, 3)
	fx.repo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
}

func TestImportDryRun(t *testing.T) {
	wb := testWorkbook()
	wb.Sheets[ports.SheetEffects] = wb.Sheets[ports.SheetEffects][:2]
	wb.Sheets[ports.SheetTags] = wb.Sheets[ports.SheetTags][:1]
	fx := newImportFixture(t, wb)

	result, err := fx.svc.ImportFile(context.Background(), "meta.xlsx", ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.False(t, result.Committed)
	assert.Empty(t, result.Diagnostics)
	assert.Empty(t, result.Report)
	assert.Equal(t, 2, result.Effects)
	fx.repo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
	fx.sink.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestImportReplacePassesThrough(t *testing.T) {
	fx := newImportFixture(t, testWorkbook())
	fx.repo.On("SaveBatch", mock.Anything, mock.MatchedBy(func(b *ports.ImportBatch) bool { return b.Replace })).Return(nil)

	result, err := fx.svc.ImportFile(context.Background(), "meta.xlsx", ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.True(t, result.Committed)
	fx.repo.AssertExpectations(t)
}

func TestImportRequiredFieldsAndDuplicates(t *testing.T) {
	wb := &ports.Workbook{Source: "dup.xlsx", Sheets: map[string][]ports.SheetRow{
		ports.SheetStudy: {
			row(0, map[string]string{"id": "s1", "title": "A", "doi": "10.1/x"}),
			row(1, map[string]string{"id": "s2", "title": "B", "doi": "10.1/x"}),
			row(2, map[string]string{"id": "s1", "title": "C"}),
			row(3, map[string]string{"id": "s4"}),
			row(4, map[string]string{"id": "s5", "title": "E", "year": "20X3"}),
		},
		ports.SheetArms: {
			row(0, map[string]string{"id": "a1", "study_id": "s5"}),
		},
	}}
	fx := newImportFixture(t, wb)
	fx.repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	result, err := fx.svc.Import(context.Background(), wb, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Studies)
	assert.Equal(t, 0, result.Arms)

	columns := make([]string, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		columns = append(columns, d.Record+":"+d.Column)
	}
	assert.Equal(t, []string{"s2:doi", "s1:id", "s4:title", "s5:year", "a1:study_id"}, columns)
}

func TestImportReferencesStoredStudy(t *testing.T) {
	stored := testStudyContext()
	wb := &ports.Workbook{Source: "more.xlsx", Sheets: map[string][]ports.SheetRow{
		ports.SheetEffects: {
			row(0, map[string]string{
				"study_id": "s1", "outcome_id": "o1", "effect_type": "RR",
				"arm_treat_id": "a1", "arm_ctrl_id": "a2",
				"events_treat": "10", "total_treat": "30", "events_ctrl": "5", "total_ctrl": "28",
			}),
		},
	}}
	deriver, err := effects.NewDeriver(effects.DefaultOptions())
	require.NoError(t, err)
	repo := &MockImportRepository{}
	studies := &MockStudyRepository{}
	studies.On("LoadContext", mock.Anything, core.ID("s1")).Return(stored, nil).Once()
	repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)
	svc := NewImportService(&stubReader{wb: wb}, repo, studies, &MockReportSink{}, deriver, nil, nil, 2)

	result, err := svc.Import(context.Background(), wb, ImportOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Diagnostics)
	require.Len(t, repo.batches[0].Effects, 1)
	assert.Equal(t, core.ID("s1"), repo.batches[0].Effects[0].StudyID)
	assert.Equal(t, core.ID("a1"), repo.batches[0].Effects[0].ArmTreatID)
	studies.AssertExpectations(t)
}

func TestImportReplaceIgnoresStoredStudies(t *testing.T) {
	wb := &ports.Workbook{Source: "more.xlsx", Sheets: map[string][]ports.SheetRow{
		ports.SheetEffects: {
			row(0, map[string]string{
				"study_id": "s1", "outcome_id": "o1", "effect_type": "RR",
				"arm_treat_id": "a1", "arm_ctrl_id": "a2",
				"events_treat": "10", "total_treat": "30", "events_ctrl": "5", "total_ctrl": "28",
			}),
		},
	}}
	deriver, err := effects.NewDeriver(effects.DefaultOptions())
	require.NoError(t, err)
	repo := &MockImportRepository{}
	studies := &MockStudyRepository{}
	sink := &MockReportSink{}
	sink.On("Put", mock.Anything, mock.Anything, "text/csv", mock.Anything).Return("reports/import.csv", nil)
	svc := NewImportService(&stubReader{wb: wb}, repo, studies, sink, deriver, nil, nil, 2)

	result, err := svc.Import(context.Background(), wb, ImportOptions{Replace: true})
	require.NoError(t, err)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "study_id", result.Diagnostics[0].Column)
	assert.Equal(t, "Study not found", result.Diagnostics[0].Error)
	assert.False(t, result.Committed)
	studies.AssertNotCalled(t, "LoadContext", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
}

func TestImportDuplicateEffectRows(t *testing.T) {
	wb := testWorkbook()
	wb.Sheets[ports.SheetEffects] = append(wb.Sheets[ports.SheetEffects][:1], row(1, map[string]string{
		"id": "e1b", "study_id": "s1", "outcome_id": "o1", "effect_type": "md",
		"arm_treat_id": "a1", "arm_ctrl_id": "a2",
		"mean_treat": "9", "sd_treat": "2", "n_treat": "30",
		"mean_ctrl": "8", "sd_ctrl": "2", "n_ctrl": "28",
	}))
	wb.Sheets[ports.SheetTags] = nil
	fx := newImportFixture(t, wb)
	fx.repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	result, err := fx.svc.Import(context.Background(), wb, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Effects)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "e1b", result.Diagnostics[0].Record)
}

func TestImportInvalidNumber(t *testing.T) {
	wb := testWorkbook()
	wb.Sheets[ports.SheetEffects] = []ports.SheetRow{row(0, map[string]string{
		"id": "e1", "study_id": "s1", "outcome_id": "o1", "effect_type": "MD",
		"arm_treat_id": "a1", "arm_ctrl_id": "a2",
		"mean_treat": "<7", "sd_treat": "2", "n_treat": "30",
		"mean_ctrl": "8", "sd_ctrl": "2", "n_ctrl": "28",
	})}
	wb.Sheets[ports.SheetTags] = nil
	fx := newImportFixture(t, wb)
	fx.repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	result, err := fx.svc.Import(context.Background(), wb, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "mean_treat", result.Diagnostics[0].Column)
	assert.Equal(t, `invalid number "<7"`, result.Diagnostics[0].Error)
	assert.Equal(t, 0, result.Effects)
}

func TestImportFlatWorkbook(t *testing.T) {
	wb := &ports.Workbook{Source: "legacy.xlsx", Flat: []ma.RawRecord{
		{Sheet: ports.FlatSheet, Row: 0, Data: map[string]interface{}{"Year": 2013}},
		{Sheet: ports.FlatSheet, Row: 1, Data: map[string]interface{}{"Year": "20X3"}, Invalid: []string{"Year"}},
	}}
	fx := newImportFixture(t, wb)
	fx.repo.On("SaveRawRecords", mock.Anything, wb.Flat, true).Return(nil)

	result, err := fx.svc.ImportFile(context.Background(), "legacy.xlsx", ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.True(t, result.Flat)
	assert.True(t, result.Committed)
	assert.Equal(t, 2, result.RawRecords)
	assert.Equal(t, 1, result.InvalidCells)
	fx.repo.AssertExpectations(t)
}

func TestImportFlatDryRun(t *testing.T) {
	wb := &ports.Workbook{Source: "legacy.xlsx", Flat: []ma.RawRecord{{Data: map[string]interface{}{}}}}
	fx := newImportFixture(t, wb)

	result, err := fx.svc.ImportFile(context.Background(), "legacy.xlsx", ImportOptions{DryRun: true})
	require.NoError(t, err)
	assert.False(t, result.Committed)
	fx.repo.AssertNotCalled(t, "SaveRawRecords", mock.Anything, mock.Anything, mock.Anything)
}

func TestImportUnrecognisedSource(t *testing.T) {
	deriver, err := effects.NewDeriver(effects.DefaultOptions())
	require.NoError(t, err)
	svc := NewImportService(&stubReader{err: ports.ErrNoSheets}, &MockImportRepository{}, &MockStudyRepository{}, &MockReportSink{}, deriver, nil, nil, 1)

	_, err = svc.ImportCSVFolder(context.Background(), "empty", ImportOptions{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
	assert.ErrorIs(t, err, ports.ErrNoSheets)
}

func TestImportSaveFailureIsReturned(t *testing.T) {
	wb := testWorkbook()
	wb.Sheets[ports.SheetTags] = nil
	fx := newImportFixture(t, wb)
	fx.repo.On("SaveBatch", mock.Anything, mock.Anything).Return(core.NewConflictError("study", "doi exists"))

	_, err := fx.svc.Import(context.Background(), wb, ImportOptions{})
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestImportDerivationOrderIsDeterministic(t *testing.T) {
	wb := testWorkbook()
	var rows []ports.SheetRow
	for i := 0; i < 40; i++ {
		rows = append(rows, row(i, map[string]string{
			"study_id": "s1", "outcome_id": "o1", "effect_type": "MD",
			"arm_treat_id": "a1", "arm_ctrl_id": "a2",
			"mean_treat": strconv.Itoa(9 + i%5), "sd_treat": "2", "n_treat": "30",
			"mean_ctrl": "8", "sd_ctrl": "2", "n_ctrl": "28",
		}))
	}
	wb.Sheets[ports.SheetEffects] = rows
	wb.Sheets[ports.SheetTags] = nil

	fx := newImportFixture(t, wb)
	fx.repo.On("SaveBatch", mock.Anything, mock.Anything).Return(nil)

	result, err := fx.svc.Import(context.Background(), wb, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Effects)
	assert.InDelta(t, 1.0, fx.repo.batches[0].Effects[0].Value, 1e-12)
	require.Len(t, result.Diagnostics, 39)
	for i, d := range result.Diagnostics {
		assert.Equal(t, ports.SheetEffects, d.Sheet)
		assert.Equal(t, "duplicate effect for study, outcome and arms", d.Error)
		assert.Equal(t, strconv.Itoa(i+1), d.Record)
	}
}
