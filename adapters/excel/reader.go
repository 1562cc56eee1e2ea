package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/plew99/cytokines-metaanalysis/internal"
	"github.com/plew99/cytokines-metaanalysis/ports"

	"github.com/xuri/excelize/v2"
)

// WorkbookReader reads multi-sheet workbooks, flat extraction workbooks and
// folders of per-sheet CSV files
type WorkbookReader struct {
	logger *internal.Logger
}

var _ ports.WorkbookReader = (*WorkbookReader)(nil)

// NewWorkbookReader creates a reader logging under component=excel
func NewWorkbookReader(logger *internal.Logger) *WorkbookReader {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &WorkbookReader{logger: logger.Component("excel")}
}

// ReadFile opens an .xlsx workbook from disk
func (r *WorkbookReader) ReadFile(ctx context.Context, path string) (*ports.Workbook, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("workbook not found: %s", path)
	}

	startTime := time.Now()
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	r.logger.Debug("[WorkbookReader] %s opened in %.2fms", path, millis(time.Since(startTime)))

	return r.readWorkbook(ctx, f, filepath.Base(path))
}

// Read parses a workbook streamed from src, e.g. an upload
func (r *WorkbookReader) Read(ctx context.Context, src io.Reader, name string) (*ports.Workbook, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return r.readWorkbook(ctx, f, name)
}

// ReadCSVFolder loads <Sheet>.csv files from dir. File names match sheet
// names case-insensitively; missing sheets are skipped.
func (r *WorkbookReader) ReadCSVFolder(ctx context.Context, dir string) (*ports.Workbook, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV folder: %w", err)
	}
	files := make(map[string]string)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || !strings.EqualFold(ext, ".csv") {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(e.Name(), ext)))
		files[key] = filepath.Join(dir, e.Name())
	}

	wb := &ports.Workbook{Source: filepath.Base(dir), Sheets: make(map[string][]ports.SheetRow)}
	for _, spec := range ports.ImportSheets {
		path, ok := files[strings.ToLower(spec.Name)]
		if !ok {
			r.logger.Debug("Skipping missing sheet: %s", spec.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet, err := r.readCSV(path, spec.Name)
		if err != nil {
			return nil, err
		}
		wb.Sheets[spec.Name] = sheetRows(sheet)
		r.logger.Info("Loaded %s as '%s' with %d rows", filepath.Base(path), spec.Name, len(sheet.Rows))
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("%w in %s", ports.ErrNoSheets, dir)
	}
	return wb, nil
}

// readWorkbook picks the recognised sheets, falling back to the flat
// extraction sheet when none is present
func (r *WorkbookReader) readWorkbook(ctx context.Context, f *excelize.File, source string) (*ports.Workbook, error) {
	names := f.GetSheetList()
	r.logger.Info("Workbook %s contains sheets: %s", source, strings.Join(names, ", "))

	lookup := make(map[string]string, len(names))
	for _, name := range names {
		lookup[strings.ToLower(strings.TrimSpace(name))] = name
	}

	wb := &ports.Workbook{Source: source, Sheets: make(map[string][]ports.SheetRow)}
	for _, spec := range ports.ImportSheets {
		actual, ok := lookup[strings.ToLower(spec.Name)]
		if !ok {
			r.logger.Debug("Expected sheet '%s' not found in workbook", spec.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet, err := r.readSheet(f, actual)
		if err != nil {
			return nil, err
		}
		wb.Sheets[spec.Name] = sheetRows(sheet)
		r.logger.Info("Loaded sheet '%s' as '%s' with %d rows", actual, spec.Name, len(sheet.Rows))
	}
	if len(wb.Sheets) > 0 {
		return wb, nil
	}

	if actual, ok := lookup[strings.ToLower(ports.FlatSheet)]; ok {
		sheet, err := r.readSheet(f, actual)
		if err != nil {
			return nil, err
		}
		wb.Flat = loadFlatRecords(sheet, source)
		r.logger.Info("Loaded sheet '%s' with %d rows", actual, len(wb.Flat))
		return wb, nil
	}

	expected := make([]string, 0, len(ports.ImportSheets))
	for _, spec := range ports.ImportSheets {
		expected = append(expected, spec.Name)
	}
	return nil, fmt.Errorf("%w in %s, expected one of: %s", ports.ErrNoSheets, source, strings.Join(expected, ", "))
}

func (r *WorkbookReader) readSheet(f *excelize.File, name string) (*SheetData, error) {
	readStart := time.Now()
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}
	r.logger.Debug("[WorkbookReader] %s read in %.2fms (%d rows)", name, millis(time.Since(readStart)), len(rows))
	return processRows(name, rows), nil
}

func (r *WorkbookReader) readCSV(path, name string) (*SheetData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file %s: %w", path, err)
	}
	r.logger.Debug("[WorkbookReader] %s read in %.2fms (%d rows)", path, millis(time.Since(readStart)), len(rows))
	return processRows(name, rows), nil
}

// processRows converts raw string rows into SheetData. The first row holds
// the headers; columns without a header and rows without any value are dropped.
func processRows(name string, rows [][]string) *SheetData {
	sheet := &SheetData{Name: name}
	if len(rows) == 0 {
		return sheet
	}

	headerRow := rows[0]
	sheet.Headers = make([]string, 0, len(headerRow))
	for _, header := range headerRow {
		sheet.Headers = append(sheet.Headers, strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
	}

	for _, row := range rows[1:] {
		rowData := make(RawRowData)
		blank := true
		for j, cell := range row {
			if j >= len(sheet.Headers) || sheet.Headers[j] == "" {
				continue
			}
			value := strings.TrimSpace(cell)
			rowData[sheet.Headers[j]] = value
			if value != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		sheet.Rows = append(sheet.Rows, rowData)
	}
	return sheet
}

func sheetRows(sheet *SheetData) []ports.SheetRow {
	out := make([]ports.SheetRow, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		values := make(map[string]string, len(row))
		for k, v := range row {
			if v != "" {
				values[k] = v
			}
		}
		out = append(out, ports.SheetRow{Index: i, Values: values})
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
