package sync

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"LoanCollectSaas/api/auth"
	"LoanCollectSaas/internal/checksum"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const maxFeedUploadBytes = 32 << 20

func respondWithError(w http.ResponseWriter, status int, errMsg string) {
	log.Printf("[SYNC][ERROR] %s", errMsg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errMsg,
	})
}

// UploadLoanBookFeed handles the multipart loan book upload: it resolves
// the operator session, parses the feed (.csv, .xlsx or legacy .xls),
// guards against duplicate uploads by file hash, and runs the full
// reconciliation, returning the sync summary.
func UploadLoanBookFeed(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := r.Context()

		if err := r.ParseMultipartForm(maxFeedUploadBytes); err != nil {
			respondWithError(w, http.StatusBadRequest, "Failed to parse form data")
			return
		}

		userID := r.FormValue("user_id")
		session := auth.ValidateSession(userID)
		if session == nil {
			respondWithError(w, http.StatusUnauthorized, "Unauthorized: invalid session")
			return
		}

		file, header, err := r.FormFile("loan_book")
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Missing loan_book file")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
			return
		}

		// Idempotency: a feed already reconciled returns its prior batch.
		fileHash := checksum.HashBytes(data)
		if priorID, found, err := engine.store.FindCompletedBatchByHash(ctx, fileHash); err == nil && found {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success":       true,
				"duplicate":     true,
				"sync_batch_id": priorID,
				"message":       "Duplicate upload detected - returning existing batch",
			})
			return
		}

		cells, err := ParseFeedFile(data, header.Filename)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse %s: %v", header.Filename, err))
			return
		}
		rows := RowsFromCells(cells)
		if len(rows) == 0 {
			respondWithError(w, http.StatusBadRequest, "Feed must have a header row and at least one data row")
			return
		}

		summary := engine.Orchestrator().RunSync(ctx, rows, session.UserID, header.Filename, fileHash)
		if !summary.Success {
			respondWithError(w, http.StatusUnprocessableEntity, strings.Join(summary.Errors, "; "))
			return
		}

		log.Printf("[SYNC] upload %s reconciled in %v", header.Filename, time.Since(startTime))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	}
}

// ParseFeedFile turns an uploaded feed into raw cells, header row first.
// Format is picked by extension with a CSV fallback for unknown ones.
func ParseFeedFile(data []byte, filename string) ([][]string, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".xlsx"):
		return parseXLSXFeed(data)
	case strings.HasSuffix(strings.ToLower(filename), ".xls"):
		return parseXLSFeed(data)
	default:
		return parseCSVFeed(data)
	}
}

func parseCSVFeed(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	cells, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(cells) < 2 {
		return nil, fmt.Errorf("CSV must have a header and at least one data row")
	}
	return cells, nil
}

func parseXLSXFeed(data []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in workbook")
	}
	cells, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet rows: %w", err)
	}
	if len(cells) < 2 {
		return nil, fmt.Errorf("sheet must have a header and at least one data row")
	}
	return cells, nil
}

func parseXLSFeed(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("no sheets in xls workbook")
	}

	var cells [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		var rowVals []string
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			rowVals = append(rowVals, row.Col(j))
		}
		cells = append(cells, rowVals)
	}
	if len(cells) < 2 {
		return nil, fmt.Errorf("xls must have a header and at least one data row")
	}
	return cells, nil
}
