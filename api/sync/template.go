package sync

import (
	"fmt"
	"log"
	"net/http"

	"github.com/xuri/excelize/v2"
)

// Template column order matches the primary alias of each feed field.
var templateHeaders = []string{"NRC Number", "Amount Owed", "Days in Arrears", "Last Payment Date"}

// ExportFeedTemplate produces an identifier-only .xlsx workbook: every known
// NRC pre-populated, value columns blank for the loan book team to fill in.
func ExportFeedTemplate(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nrcs, err := engine.store.ListAllIdentifiers(r.Context())
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load identifiers: %v", err))
			return
		}

		wb := excelize.NewFile()
		defer wb.Close()
		sheet := wb.GetSheetName(0)

		for col, header := range templateHeaders {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			wb.SetCellValue(sheet, cell, header)
		}
		for i, nrc := range nrcs {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			wb.SetCellValue(sheet, cell, nrc)
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="loan_book_template.xlsx"`)
		if err := wb.Write(w); err != nil {
			log.Printf("[SYNC][ERROR] failed to stream template: %v", err)
		}
	}
}
