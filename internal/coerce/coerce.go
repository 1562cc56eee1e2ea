// Package coerce turns spreadsheet cell text into typed values.
package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the layout dates are normalised to.
const ISOLayout = "2006-01-02T15:04:05"

// Decimal parses a plain number written in either US or European notation:
// "1,234.5", "1.234,5", "5,1", "12%", "(3)" and currency prefixes are accepted.
func Decimal(s string) (float64, bool) {
	cleanVal := strings.TrimSpace(s)
	if cleanVal == "" {
		return 0, false
	}

	// (123) -> -123
	isNegative := false
	if strings.HasPrefix(cleanVal, "(") && strings.HasSuffix(cleanVal, ")") {
		cleanVal = strings.TrimSuffix(strings.TrimPrefix(cleanVal, "("), ")")
		isNegative = true
	}

	for _, symbol := range []string{"$", "€", "£", "USD", "EUR", "GBP", "%"} {
		cleanVal = strings.ReplaceAll(cleanVal, symbol, "")
	}
	cleanVal = strings.TrimSpace(cleanVal)

	hasComma := strings.Contains(cleanVal, ",")
	hasPeriod := strings.Contains(cleanVal, ".")
	hasSpace := strings.Contains(cleanVal, " ")

	switch {
	case hasComma && (hasPeriod || hasSpace):
		commaIdx := strings.LastIndex(cleanVal, ",")
		periodIdx := strings.LastIndex(cleanVal, ".")
		if commaIdx > periodIdx {
			// 1.234,56 or 1 234,56
			cleanVal = strings.ReplaceAll(cleanVal, ".", "")
			cleanVal = strings.ReplaceAll(cleanVal, " ", "")
			cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
		} else {
			cleanVal = strings.ReplaceAll(cleanVal, ",", "")
			cleanVal = strings.ReplaceAll(cleanVal, " ", "")
		}
	case hasComma:
		cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
	default:
		cleanVal = strings.ReplaceAll(cleanVal, " ", "")
	}

	if isNegative {
		cleanVal = "-" + cleanVal
	}

	val, err := strconv.ParseFloat(cleanVal, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

// Number parses the summary-statistic notations found in extraction sheets
// on top of Decimal: a leading "±" ("±3.2") and ranges, which resolve to
// their upper bound ("0,49-28,50" is 28.5).
func Number(s string) (float64, bool) {
	cleanVal := strings.TrimSpace(s)
	cleanVal = strings.TrimPrefix(cleanVal, "±")
	cleanVal = strings.TrimPrefix(cleanVal, "+/-")
	cleanVal = strings.TrimSpace(cleanVal)
	if v, ok := Decimal(cleanVal); ok {
		return v, true
	}
	if low, high, ok := Range(cleanVal); ok {
		return math.Max(low, high), true
	}
	return 0, false
}

// Range splits "a-b" (hyphen or en dash) into its bounds.
func Range(s string) (float64, float64, bool) {
	cleanVal := strings.TrimSpace(strings.ReplaceAll(s, "–", "-"))
	if len(cleanVal) < 3 || strings.ContainsAny(cleanVal, "eE") {
		return 0, 0, false
	}
	// skip index 0 so a leading minus stays with the lower bound
	idx := strings.Index(cleanVal[1:], "-")
	if idx < 0 {
		return 0, 0, false
	}
	idx++
	low, okLow := Decimal(cleanVal[:idx])
	high, okHigh := Decimal(cleanVal[idx+1:])
	if !okLow || !okHigh {
		return 0, 0, false
	}
	return low, high, true
}

// Int parses an integral number. Fractional values are rejected.
func Int(s string) (int, bool) {
	v, ok := Decimal(s)
	if !ok || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

// Bool accepts the usual yes/no spellings.
func Bool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on", "tak":
		return true, true
	case "false", "0", "no", "n", "off", "nie":
		return false, true
	}
	return false, false
}

var timestampFormats = []string{
	time.RFC3339,
	ISOLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
	"02.01.2006",
	// excelize renders date cells with the built-in number formats 14 and 22
	"1/2/06 15:04",
	"01-02-06",
	"1/2/06",
}

// Timestamp parses the date layouts seen in workbooks and CSV exports.
func Timestamp(s string) (time.Time, bool) {
	cleanVal := strings.TrimSpace(s)
	if cleanVal == "" {
		return time.Time{}, false
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, cleanVal); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ISODate normalises a date cell to ISOLayout.
func ISODate(s string) (string, bool) {
	t, ok := Timestamp(s)
	if !ok {
		return "", false
	}
	return t.Format(ISOLayout), true
}
