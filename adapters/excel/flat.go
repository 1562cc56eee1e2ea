package excel

import (
	"github.com/plew99/cytokines-metaanalysis/internal/coerce"

	ma "github.com/plew99/cytokines-metaanalysis/domain/metaanalysis"
)

// loadFlatRecords types the cells of a flat extraction sheet. Empty cells
// become nil; typed cells that fail coercion keep their text and are listed
// in the record's Invalid columns.
func loadFlatRecords(sheet *SheetData, source string) []ma.RawRecord {
	records := make([]ma.RawRecord, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		data := make(map[string]interface{}, len(sheet.Headers))
		var invalid []string
		for _, header := range sheet.Headers {
			if header == "" {
				continue
			}
			value, ok := coerceFlatCell(header, row[header])
			data[header] = value
			if !ok {
				invalid = append(invalid, header)
			}
		}
		records = append(records, ma.RawRecord{
			Source:  source,
			Sheet:   sheet.Name,
			Row:     i,
			Data:    data,
			Invalid: invalid,
		})
	}
	return records
}

func coerceFlatCell(column, cell string) (interface{}, bool) {
	if cell == "" {
		return nil, true
	}
	switch {
	case boolFields[column]:
		if b, ok := coerce.Bool(cell); ok {
			return b, true
		}
		return cell, false
	case intFields[column]:
		if n, ok := coerce.Int(cell); ok {
			return n, true
		}
		return cell, false
	case floatFields[column]:
		if v, ok := coerce.Decimal(cell); ok {
			return v, true
		}
		return cell, false
	}
	if iso, ok := coerce.ISODate(cell); ok {
		return iso, true
	}
	return cell, true
}
