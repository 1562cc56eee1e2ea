package excel

// RawRowData represents a row of raw sheet data as trimmed header/cell pairs
type RawRowData map[string]string

// SheetData represents one parsed worksheet
type SheetData struct {
	Name    string       // Sheet name as written in the workbook
	Headers []string     // Trimmed column headers
	Rows    []RawRowData // Data rows, blank rows dropped
}

// Column metadata of the flat extraction workbook.
var (
	// intFields are interpreted as integers
	intFields = map[string]bool{
		"Year":       true,
		"n":          true,
		"NYHA Scale": true,
	}

	// floatFields are interpreted as floats
	floatFields = map[string]bool{
		"Age (mean / median)":                   true,
		"Age (SD / IQR)":                        true,
		"% Males":                               true,
		"Cytokine contrentration mean / median": true,
		"Cytokine concentration SD / IQR":       true,
		"LVEF %":                                true,
		"CRP":                                   true,
		"NT-proBNP":                             true,
		"cTnT":                                  true,
		"cTnI":                                  true,
		"Follow-up time (months)":               true,
	}

	// boolFields are mapped from Yes/No to booleans
	boolFields = map[string]bool{
		"Inflammation excluded by EMB": true,
		"CAD excluded":                 true,
		"EMB performed?":               true,
		"cMRI performed":               true,
	}
)
