package app

import (
	"context"
	"errors"
	"testing"

	"github.com/plew99/cytokines-metaanalysis/domain/core"
	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	"github.com/plew99/cytokines-metaanalysis/internal/metrics"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func derivedEffect(t *testing.T) *ma.Effect {
	t.Helper()
	raw := mdRequest().RawInput
	raw.StudyID = "s1"
	effect, err := effects.Derive(raw, ma.MD, testStudyContext())
	require.NoError(t, err)
	return effect
}

func TestAuditCleanDatabase(t *testing.T) {
	studies := &MockStudyRepository{}
	effectRepo := &MockEffectRepository{}
	effectRepo.On("ListStudyIDs", mock.Anything).Return([]core.ID{"s1"}, nil)
	studies.On("LoadContext", mock.Anything, core.ID("s1")).Return(testStudyContext(), nil)
	effectRepo.On("ListByStudy", mock.Anything, core.ID("s1")).Return([]*ma.Effect{derivedEffect(t)}, nil)

	report, err := NewAuditService(studies, effectRepo, metrics.New(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Studies)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Violations)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestAuditReportsMovedArm(t *testing.T) {
	studies := &MockStudyRepository{}
	effectRepo := &MockEffectRepository{}

	effect := derivedEffect(t)
	sc := testStudyContext()
	moved := sc.Arms["a2"]
	moved.StudyID = "s2"
	sc.Arms["a2"] = moved

	effectRepo.On("ListStudyIDs", mock.Anything).Return([]core.ID{"s1"}, nil)
	studies.On("LoadContext", mock.Anything, core.ID("s1")).Return(sc, nil)
	effectRepo.On("ListByStudy", mock.Anything, core.ID("s1")).Return([]*ma.Effect{effect}, nil)

	report, err := NewAuditService(studies, effectRepo, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, effect.ID, v.EffectID)
	assert.Equal(t, core.ID("s1"), v.StudyID)
	assert.Equal(t, ma.MD, v.Type)
	assert.Equal(t, string(ma.InvariantCrossStudy), v.Invariant)
}

func TestAuditStopsOnRepositoryError(t *testing.T) {
	effectRepo := &MockEffectRepository{}
	effectRepo.On("ListStudyIDs", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := NewAuditService(&MockStudyRepository{}, effectRepo, nil, nil).Run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestAuditSchedule(t *testing.T) {
	effectRepo := &MockEffectRepository{}
	svc := NewAuditService(&MockStudyRepository{}, effectRepo, nil, nil)

	c := cron.New()
	id, err := svc.Schedule(c, "0 3 * * *")
	require.NoError(t, err)
	entry := c.Entry(id)
	assert.True(t, entry.Valid())

	_, err = svc.Schedule(c, "not a schedule")
	assert.Error(t, err)
}
