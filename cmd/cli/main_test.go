package main

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDeriveMD(t *testing.T) {
	out, err := run(t, "derive", "--type", "md",
		"--mean-treat", "10", "--sd-treat", "2", "--n-treat", "30",
		"--mean-ctrl", "8", "--sd-ctrl", "2.5", "--n-ctrl", "28")
	require.NoError(t, err)

	var got deriveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.Effect)
	assert.Equal(t, ma.MD, got.Effect.Type)
	assert.InDelta(t, 2.0, got.Effect.Value, 1e-12)
	assert.InDelta(t, math.Sqrt(4.0/30+6.25/28), got.Effect.SE, 1e-12)
	assert.Equal(t, "linear", got.Display.Scale)
	require.NotNil(t, got.Inputs.NCtrl)
	assert.Equal(t, 28.0, *got.Inputs.NCtrl)
}

func TestDeriveRatioWithCorrection(t *testing.T) {
	args := []string{"derive", "--type", "logOR",
		"--events-treat", "0", "--total-treat", "20", "--events-ctrl", "5", "--total-ctrl", "20"}

	_, err := run(t, args...)
	assert.ErrorIs(t, err, ma.ErrZeroCellCount)

	out, err := run(t, append(args, "--zero-cell-correction", "0.5")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"scale": "ratio"`)
}

func TestDeriveErrors(t *testing.T) {
	_, err := run(t, "derive", "--type", "HR")
	assert.ErrorIs(t, err, ma.ErrUnsupportedEffectType)

	_, err = run(t, "derive", "--type", "MD", "--mean-treat", "10")
	assert.ErrorIs(t, err, ma.ErrMissingRequiredField)

	_, err = run(t, "derive", "--type", "MD", "--level", "1")
	assert.ErrorIs(t, err, ma.ErrInvalidConfidenceLevel)

	_, err = run(t, "derive")
	assert.Error(t, err)
}

func TestMigrateAndImportSQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "meta.db"))
	t.Setenv("REPORTS_DIR", filepath.Join(dir, "reports"))

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite")

	_, err = run(t, "import-xlsx", filepath.Join(dir, "missing.xlsx"))
	assert.Error(t, err)

	out, err = run(t, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, `"checked": 0`)
}
