package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	apisync "LoanCollectSaas/api/sync"
	"LoanCollectSaas/internal/checksum"
	"LoanCollectSaas/internal/config"
	"LoanCollectSaas/internal/logger"

	"github.com/robfig/cron/v3"
)

// LoanBookJobConfig drives the nightly drop-directory ingest.
type LoanBookJobConfig struct {
	Schedule string
	DropDir  string
	TimeZone string
}

func NewDefaultLoanBookJobConfig() *LoanBookJobConfig {
	return &LoanBookJobConfig{
		Schedule: config.DefaultLoanBookSchedule,
		DropDir:  config.DefaultDropDir,
		TimeZone: config.DefaultTimeZone,
	}
}

// Operator recorded for runs triggered by the scheduler rather than an
// admin upload.
const schedulerOperatorID = "scheduler"

// RunLoanBookScheduler starts the cron job that sweeps the drop directory
// for loan book extracts and reconciles each one.
func RunLoanBookScheduler(cfg *LoanBookJobConfig, engine *apisync.Engine) error {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultLoanBookSchedule
	}
	if cfg.DropDir == "" {
		cfg.DropDir = config.DefaultDropDir
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.Schedule, func() {
		if err := ProcessDropDirectory(cfg.DropDir, engine); err != nil {
			if logger.GlobalLogger != nil {
				logger.GlobalLogger.LogAudit(fmt.Sprintf("Loan book ingest failed: %v", err))
			}
			log.Printf("[LOANBOOK] ingest sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("unable to schedule loan book ingest: %v", err)
	}

	c.Start()
	return nil
}

// ProcessDropDirectory reconciles every feed file found in dir, moving each
// to a processed/ subdirectory afterwards so reruns do not pick it up
// again. Files that fail to parse are moved to failed/ for inspection.
func ProcessDropDirectory(dir string, engine *apisync.Engine) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot read drop directory %s: %w", dir, err)
	}

	processedDir := filepath.Join(dir, "processed")
	failedDir := filepath.Join(dir, "failed")
	os.MkdirAll(processedDir, 0755)
	os.MkdirAll(failedDir, 0755)

	for _, entry := range entries {
		if entry.IsDir() || !isFeedFile(entry.Name()) {
			continue
		}
		src := filepath.Join(dir, entry.Name())
		if err := reconcileFile(src, entry.Name(), engine); err != nil {
			log.Printf("[LOANBOOK] %s failed: %v", entry.Name(), err)
			moveFile(src, filepath.Join(failedDir, entry.Name()))
			continue
		}
		moveFile(src, filepath.Join(processedDir, entry.Name()))
	}
	return nil
}

func reconcileFile(path, name string, engine *apisync.Engine) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}

	cells, err := apisync.ParseFeedFile(data, name)
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}
	rows := apisync.RowsFromCells(cells)
	if len(rows) == 0 {
		return fmt.Errorf("no data rows")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	summary := engine.Orchestrator().RunSync(ctx, rows, schedulerOperatorID, name, checksum.HashBytes(data))
	if !summary.Success {
		return fmt.Errorf("sync did not start: %s", strings.Join(summary.Errors, "; "))
	}

	msg := fmt.Sprintf("Scheduled ingest of %s: batch %s processed=%d updated=%d not_found=%d errors=%d",
		name, summary.SyncBatchID, summary.Processed, summary.Updated, summary.NotFound, len(summary.Errors))
	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit(msg)
	}
	log.Printf("[LOANBOOK] %s", msg)
	return nil
}

func isFeedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

func moveFile(src, dst string) {
	if err := os.Rename(src, dst); err != nil {
		log.Printf("[LOANBOOK] could not move %s: %v", src, err)
	}
}
