package app

import (
	"context"
	"io"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/stretchr/testify/mock"
)

// Mock implementations for testing
type MockStudyRepository struct {
	mock.Mock
}

func (m *MockStudyRepository) CreateStudy(ctx context.Context, study *ma.Study) error {
	args := m.Called(ctx, study)
	return args.Error(0)
}

func (m *MockStudyRepository) UpdateStudy(ctx context.Context, study *ma.Study) error {
	args := m.Called(ctx, study)
	return args.Error(0)
}

func (m *MockStudyRepository) GetStudy(ctx context.Context, id core.ID) (*ma.Study, error) {
	args := m.Called(ctx, id)
	study, _ := args.Get(0).(*ma.Study)
	return study, args.Error(1)
}

func (m *MockStudyRepository) ListStudies(ctx context.Context, q ports.StudyQuery) ([]*ma.Study, error) {
	args := m.Called(ctx, q)
	studies, _ := args.Get(0).([]*ma.Study)
	return studies, args.Error(1)
}

func (m *MockStudyRepository) DeleteStudy(ctx context.Context, id core.ID, cascade bool) error {
	args := m.Called(ctx, id, cascade)
	return args.Error(0)
}

func (m *MockStudyRepository) AddArm(ctx context.Context, arm *ma.Arm) error {
	args := m.Called(ctx, arm)
	return args.Error(0)
}

func (m *MockStudyRepository) AddOutcome(ctx context.Context, outcome *ma.Outcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockStudyRepository) AddCovariate(ctx context.Context, covariate *ma.Covariate) error {
	args := m.Called(ctx, covariate)
	return args.Error(0)
}

func (m *MockStudyRepository) TagStudy(ctx context.Context, studyID core.ID, name string) (*ma.Tag, error) {
	args := m.Called(ctx, studyID, name)
	tag, _ := args.Get(0).(*ma.Tag)
	return tag, args.Error(1)
}

func (m *MockStudyRepository) ListTags(ctx context.Context, studyID core.ID) ([]ma.Tag, error) {
	args := m.Called(ctx, studyID)
	tags, _ := args.Get(0).([]ma.Tag)
	return tags, args.Error(1)
}

func (m *MockStudyRepository) LoadContext(ctx context.Context, studyID core.ID) (ma.StudyContext, error) {
	args := m.Called(ctx, studyID)
	sc, _ := args.Get(0).(ma.StudyContext)
	return sc, args.Error(1)
}

type MockEffectRepository struct {
	mock.Mock
}

func (m *MockEffectRepository) Create(ctx context.Context, effect *ma.Effect) error {
	args := m.Called(ctx, effect)
	return args.Error(0)
}

func (m *MockEffectRepository) Update(ctx context.Context, effect *ma.Effect) error {
	args := m.Called(ctx, effect)
	return args.Error(0)
}

func (m *MockEffectRepository) GetByID(ctx context.Context, id core.ID) (*ma.Effect, error) {
	args := m.Called(ctx, id)
	effect, _ := args.Get(0).(*ma.Effect)
	return effect, args.Error(1)
}

func (m *MockEffectRepository) ListByStudy(ctx context.Context, studyID core.ID) ([]*ma.Effect, error) {
	args := m.Called(ctx, studyID)
	list, _ := args.Get(0).([]*ma.Effect)
	return list, args.Error(1)
}

func (m *MockEffectRepository) ListStudyIDs(ctx context.Context) ([]core.ID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]core.ID)
	return ids, args.Error(1)
}

func (m *MockEffectRepository) Delete(ctx context.Context, id core.ID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockImportRepository struct {
	mock.Mock
	batches []*ports.ImportBatch
}

func (m *MockImportRepository) SaveBatch(ctx context.Context, batch *ports.ImportBatch) error {
	args := m.Called(ctx, batch)
	m.batches = append(m.batches, batch)
	return args.Error(0)
}

func (m *MockImportRepository) SaveRawRecords(ctx context.Context, records []ma.RawRecord, replace bool) error {
	args := m.Called(ctx, records, replace)
	return args.Error(0)
}

type MockReportSink struct {
	mock.Mock
	reports map[string][]byte
}

func (m *MockReportSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, name, contentType, data)
	if m.reports == nil {
		m.reports = make(map[string][]byte)
	}
	m.reports[name] = data
	return args.String(0), args.Error(1)
}

// stubReader hands out a prepared workbook
type stubReader struct {
	wb  *ports.Workbook
	err error
}

func (r *stubReader) ReadFile(ctx context.Context, path string) (*ports.Workbook, error) {
	return r.wb, r.err
}

func (r *stubReader) Read(ctx context.Context, src io.Reader, name string) (*ports.Workbook, error) {
	return r.wb, r.err
}

func (r *stubReader) ReadCSVFolder(ctx context.Context, dir string) (*ports.Workbook, error) {
	return r.wb, r.err
}

func f(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

// testStudyContext is study s1 with arms a1 (n=30), a2 (n=28) and outcome o1.
func testStudyContext() ma.StudyContext {
	study := ma.Study{ID: "s1", Title: "IL-6 in DCM"}
	return ma.NewStudyContext(study,
		[]ma.Arm{
			{ID: "a1", StudyID: "s1", Label: "DCM", N: intPtr(30)},
			{ID: "a2", StudyID: "s1", Label: "Control", N: intPtr(28)},
		},
		[]ma.Outcome{{ID: "o1", StudyID: "s1", Name: "IL6", Unit: "pg/mL"}},
		nil,
	)
}

// mdRequest is a valid MD edit for study s1.
func mdRequest() EffectRequest {
	return EffectRequest{
		EffectType: "MD",
		RawInput: ma.RawInput{
			OutcomeID:  "o1",
			ArmTreatID: "a1",
			ArmCtrlID:  "a2",
			MeanTreat:  f(10),
			SDTreat:    f(2),
			NTreat:     f(30),
			MeanCtrl:   f(8),
			SDCtrl:     f(2.5),
			NCtrl:      f(28),
		},
	}
}
