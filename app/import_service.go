package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/internal/effects"
	apperrors "github.com/plew99/cytokines-metaanalysis/internal/errors"
	"github.com/plew99/cytokines-metaanalysis/internal/metrics"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

// ImportOptions control how an import is committed
type ImportOptions struct {
	// DryRun validates and derives without persisting
	DryRun bool
	// Replace clears all stored study data (or, for flat workbooks, all
	// stored raw records) before saving
	Replace bool
	// Strict persists nothing when any row produced a diagnostic
	Strict bool
}

// Diagnostic is one row-level import problem
type Diagnostic struct {
	Sheet  string `json:"sheet"`
	Record string `json:"record"`
	Column string `json:"column"`
	Error  string `json:"error"`
}

// ImportResult summarises an import run
type ImportResult struct {
	Source     string `json:"source"`
	Flat       bool   `json:"flat"`
	Committed  bool   `json:"committed"`
	Studies    int    `json:"studies"`
	Arms       int    `json:"arms"`
	Outcomes   int    `json:"outcomes"`
	Covariates int    `json:"covariates"`
	Tags       int    `json:"tags"`
	Effects    int    `json:"effects"`
	RawRecords int    `json:"raw_records"`
	// InvalidCells counts flat-workbook cells kept as text
	InvalidCells int `json:"invalid_cells,omitempty"`
	// MedianSE is the median standard error of the derived effects
	MedianSE    *float64     `json:"median_se,omitempty"`
	FailedRows  int          `json:"failed_rows"`
	Diagnostics []Diagnostic `json:"diagnostics"`
	// Report is where the diagnostics CSV was written, if any
	Report string `json:"report,omitempty"`
}

// ImportService loads workbooks, derives every effect row and persists the
// batch in one transaction
type ImportService struct {
	reader  ports.WorkbookReader
	repo    ports.ImportRepository
	studies ports.StudyRepository
	reports ports.ReportSink
	deriver *effects.Deriver
	metrics *metrics.Metrics
	logger  *internal.Logger
	workers int
	now     func() time.Time
}

// NewImportService creates an import service running at most workers
// derivations at a time
func NewImportService(reader ports.WorkbookReader, repo ports.ImportRepository, studies ports.StudyRepository, reports ports.ReportSink, deriver *effects.Deriver, m *metrics.Metrics, logger *internal.Logger, workers int) *ImportService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	if workers <= 0 {
		workers = 1
	}
	return &ImportService{
		reader:  reader,
		repo:    repo,
		studies: studies,
		reports: reports,
		deriver: deriver,
		metrics: m,
		logger:  logger.Component("import"),
		workers: workers,
		now:     time.Now,
	}
}

// ImportFile imports an .xlsx workbook from disk
func (s *ImportService) ImportFile(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	wb, err := s.reader.ReadFile(ctx, path)
	if err != nil {
		return nil, readError(err)
	}
	return s.Import(ctx, wb, opts)
}

// ImportCSVFolder imports a folder of <Sheet>.csv files
func (s *ImportService) ImportCSVFolder(ctx context.Context, dir string, opts ImportOptions) (*ImportResult, error) {
	wb, err := s.reader.ReadCSVFolder(ctx, dir)
	if err != nil {
		return nil, readError(err)
	}
	return s.Import(ctx, wb, opts)
}

// ImportReader imports a workbook streamed from r, e.g. an HTTP upload
func (s *ImportService) ImportReader(ctx context.Context, r io.Reader, name string, opts ImportOptions) (*ImportResult, error) {
	wb, err := s.reader.Read(ctx, r, name)
	if err != nil {
		return nil, readError(err)
	}
	return s.Import(ctx, wb, opts)
}

func readError(err error) error {
	if errors.Is(err, ports.ErrNoSheets) {
		return apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}
	return apperrors.Wrap(err, "failed to read import source")
}

// Import runs a parsed workbook through validation, derivation and persistence
func (s *ImportService) Import(ctx context.Context, wb *ports.Workbook, opts ImportOptions) (*ImportResult, error) {
	startTime := time.Now()
	if wb.IsFlat() {
		return s.importFlat(ctx, wb, opts)
	}

	plan, err := s.plan(ctx, wb, opts.Replace)
	if err != nil {
		return nil, err
	}
	if err := s.deriveEffects(ctx, plan); err != nil {
		return nil, err
	}

	batch := plan.batch
	batch.Replace = opts.Replace
	result := &ImportResult{
		Source:      wb.Source,
		Studies:     len(batch.Studies),
		Arms:        len(batch.Arms),
		Outcomes:    len(batch.Outcomes),
		Covariates:  len(batch.Covariates),
		Tags:        len(batch.Tags),
		Effects:     len(batch.Effects),
		Diagnostics: plan.diagnostics,
		FailedRows:  plan.failedRows(),
	}
	if median, ok := medianSE(batch.Effects); ok {
		result.MedianSE = &median
	}

	if len(result.Diagnostics) > 0 {
		location, err := s.writeReport(ctx, result.Diagnostics)
		if err != nil {
			return nil, err
		}
		result.Report = location
		s.logger.Warn("%d validation errors found. Report saved to %s", len(result.Diagnostics), location)
	}

	switch {
	case opts.Strict && len(result.Diagnostics) > 0:
		s.logger.Info("Strict import of %s aborted, nothing committed", wb.Source)
	case batch.Empty():
		s.logger.Info("No data found to import in %s", wb.Source)
	case opts.DryRun:
		s.logger.Info("Dry run of %s successful, nothing committed", wb.Source)
	default:
		if err := s.repo.SaveBatch(ctx, &batch); err != nil {
			return nil, err
		}
		result.Committed = true
	}

	imported := 0
	if result.Committed {
		imported = batch.Rows()
	}
	s.metrics.ObserveImport(imported, result.FailedRows)
	s.logger.Info("Import of %s finished in %s: %d studies, %d effects, %d diagnostics, committed=%t",
		wb.Source, time.Since(startTime), result.Studies, result.Effects, len(result.Diagnostics), result.Committed)
	return result, nil
}

func (s *ImportService) importFlat(ctx context.Context, wb *ports.Workbook, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{Source: wb.Source, Flat: true, RawRecords: len(wb.Flat), Diagnostics: []Diagnostic{}}
	for _, rec := range wb.Flat {
		result.InvalidCells += len(rec.Invalid)
	}

	if opts.DryRun || len(wb.Flat) == 0 {
		s.logger.Info("Loaded %d raw records from %s, nothing committed", len(wb.Flat), wb.Source)
		return result, nil
	}
	if err := s.repo.SaveRawRecords(ctx, wb.Flat, opts.Replace); err != nil {
		return nil, err
	}
	result.Committed = true
	s.metrics.ObserveImport(len(wb.Flat), 0)
	s.logger.Info("Imported %d raw records from %s (%d invalid cells)", len(wb.Flat), wb.Source, result.InvalidCells)
	return result, nil
}

// deriveEffects runs the derivation pipeline over every effect job with
// bounded concurrency. Results are collected by job index so the batch and
// the diagnostics keep sheet order.
func (s *ImportService) deriveEffects(ctx context.Context, plan *importPlan) error {
	results := make([]*ma.Effect, len(plan.jobs))
	failures := make([]error, len(plan.jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, job := range plan.jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			effect, err := s.deriver.Derive(job.raw, job.effectType, plan.contextFor(job.raw.StudyID))
			s.metrics.ObserveDerivation(job.effectType, err)
			results[i] = effect
			failures[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(plan.jobs))
	for i, job := range plan.jobs {
		if failures[i] != nil {
			plan.addDiagnostic(ports.SheetEffects, job.record, errorColumn(failures[i]), failures[i].Error())
			continue
		}
		key := effectKey(results[i])
		if seen[key] {
			plan.addDiagnostic(ports.SheetEffects, job.record, "effect_type", "duplicate effect for study, outcome and arms")
			continue
		}
		seen[key] = true
		plan.batch.Effects = append(plan.batch.Effects, *results[i])
	}
	return nil
}

func effectKey(e *ma.Effect) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", e.StudyID, e.OutcomeID, e.Type, e.ArmID, e.ArmTreatID, e.ArmCtrlID)
}

// errorColumn names the input column a derivation error points at
func errorColumn(err error) string {
	var ve *ma.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		return ve.Field
	}
	var fe *ma.FieldError
	if errors.As(err, &fe) {
		return string(fe.Field)
	}
	if errors.Is(err, ma.ErrUnsupportedEffectType) {
		return "effect_type"
	}
	return ""
}

func medianSE(list []ma.Effect) (float64, bool) {
	if len(list) == 0 {
		return 0, false
	}
	ses := make(stats.Float64Data, 0, len(list))
	for _, e := range list {
		ses = append(ses, e.SE)
	}
	median, err := ses.Median()
	if err != nil {
		return 0, false
	}
	return median, true
}

// writeReport stores the diagnostics as import_<UTC timestamp>.csv
func (s *ImportService) writeReport(ctx context.Context, diagnostics []Diagnostic) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"record", "error", "sheet", "column"}); err != nil {
		return "", err
	}
	for _, d := range diagnostics {
		if err := w.Write([]string{d.Record, d.Error, d.Sheet, d.Column}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to encode import report: %w", err)
	}

	name := fmt.Sprintf("import_%s.csv", s.now().UTC().Format("20060102_150405"))
	location, err := s.reports.Put(ctx, name, "text/csv", buf.Bytes())
	if err != nil {
		return "", apperrors.ExternalServiceError("report sink", err)
	}
	return location, nil
}
