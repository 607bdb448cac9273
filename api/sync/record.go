package sync

import (
	"fmt"
	"strings"
)

// RawRow is one feed row keyed by its original header cells.
type RawRow map[string]string

// Feed formats drift between loan book exports, so each field accepts a
// list of header aliases. First matching alias wins; matching ignores
// case and surrounding whitespace.
type fieldAliases struct {
	Field   string
	Aliases []string
}

var (
	identifierAliases = fieldAliases{"identifier", []string{"NRC Number", "nrc_number", "NRC"}}
	amountAliases     = fieldAliases{"amount", []string{"Amount Owed", "Arrears Amount", "arrears_amount"}}
	daysAliases       = fieldAliases{"days", []string{"Days in Arrears", "days_in_arrears"}}
	dateAliases       = fieldAliases{"date", []string{"Last Payment Date - Loan Book", "Last Payment Date", "last_payment_date"}}
)

// lookupAlias returns the first cell whose header matches one of the
// field's aliases.
func lookupAlias(row RawRow, fa fieldAliases) (string, bool) {
	for _, alias := range fa.Aliases {
		if v, ok := row[alias]; ok {
			return v, true
		}
	}
	// Fall back to a normalized scan so "  nrc number " still matches.
	for _, alias := range fa.Aliases {
		want := normalizeHeader(alias)
		for key, v := range row {
			if normalizeHeader(key) == want {
				return v, true
			}
		}
	}
	return "", false
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// ValidateRow classifies one raw row as processable or skipped. The only
// structural requirement is a non-empty identifier; everything else
// degrades to "no new information" via the parser.
func ValidateRow(row RawRow, rowIndex int) (SyncInputRecord, bool, string) {
	rawNRC, _ := lookupAlias(row, identifierAliases)
	nrc := strings.TrimSpace(rawNRC)
	if nrc == "" {
		return SyncInputRecord{}, false, fmt.Sprintf("row %d skipped: missing NRC identifier", rowIndex)
	}

	rec := SyncInputRecord{NRC: nrc, RowIndex: rowIndex}
	if raw, ok := lookupAlias(row, amountAliases); ok {
		rec.ArrearsAmount = ParseAmount(raw)
	}
	if raw, ok := lookupAlias(row, daysAliases); ok {
		rec.DaysInArrears = ParseInteger(raw)
	}
	if raw, ok := lookupAlias(row, dateAliases); ok {
		rec.LastPaymentDate = ParseDate(raw)
	}
	return rec, true, ""
}

// RowsFromCells converts a header row plus data rows (as produced by the
// csv/xlsx/xls readers) into RawRows. Cells beyond the header width are
// dropped; short rows are padded by omission.
func RowsFromCells(cells [][]string) []RawRow {
	if len(cells) < 2 {
		return nil
	}
	headers := cells[0]
	rows := make([]RawRow, 0, len(cells)-1)
	for _, dataRow := range cells[1:] {
		if len(dataRow) == 0 {
			continue
		}
		row := make(RawRow, len(headers))
		for j, cell := range dataRow {
			if j >= len(headers) {
				break
			}
			row[strings.TrimSpace(headers[j])] = strings.TrimSpace(cell)
		}
		rows = append(rows, row)
	}
	return rows
}
