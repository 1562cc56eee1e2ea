package ports

import (
	"context"
	"errors"
	"io"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

const (
	SheetStudy      = "Study"
	SheetArms       = "Arms"
	SheetOutcomes   = "Outcomes"
	SheetEffects    = "Effects"
	SheetCovariates = "Covariates"
	SheetTags       = "Tags"

	// FlatSheet is the single sheet of an extraction workbook
	FlatSheet = "Arkusz1"
)

// ErrNoSheets is returned when a source holds none of the recognised sheets
var ErrNoSheets = errors.New("no recognised sheets")

// SheetSpec names a recognised sheet and the columns every row must fill
type SheetSpec struct {
	Name     string
	Required []string
}

// ImportSheets lists the recognised sheets in import order
var ImportSheets = []SheetSpec{
	{Name: SheetStudy, Required: []string{"title"}},
	{Name: SheetArms, Required: []string{"study_id"}},
	{Name: SheetOutcomes, Required: []string{"study_id", "name"}},
	{Name: SheetEffects, Required: []string{"study_id", "outcome_id", "effect_type"}},
	{Name: SheetCovariates, Required: []string{"study_id", "name"}},
	{Name: SheetTags, Required: []string{"study_id", "name"}},
}

// SheetRow is one data row of a recognised sheet. Values are keyed by
// trimmed header; empty cells are absent.
type SheetRow struct {
	// Index is the zero-based position among the sheet's data rows
	Index  int
	Values map[string]string
}

// Get returns the trimmed cell value and whether it was present
func (r SheetRow) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok && v != ""
}

// Workbook is a parsed import source. Sheets is keyed by canonical sheet
// name (Study, Arms, Outcomes, Effects, Covariates, Tags). Flat is set
// instead when the source is a single-sheet extraction workbook.
type Workbook struct {
	Source string
	Sheets map[string][]SheetRow
	Flat   []ma.RawRecord
}

// IsFlat reports whether the workbook carries raw records only
func (w *Workbook) IsFlat() bool {
	return len(w.Sheets) == 0 && w.Flat != nil
}

// WorkbookReader parses import sources
type WorkbookReader interface {
	ReadFile(ctx context.Context, path string) (*Workbook, error)
	Read(ctx context.Context, r io.Reader, name string) (*Workbook, error)
	ReadCSVFolder(ctx context.Context, dir string) (*Workbook, error)
}
