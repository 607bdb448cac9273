package jobs

import (
	"fmt"
	"log"

	apisync "LoanCollectSaas/api/sync"
	"LoanCollectSaas/internal/logger"
	"LoanCollectSaas/internal/serviceiface"
)

// CronService hosts the scheduled loan book ingest.
type CronService struct {
	config map[string]interface{}
	engine *apisync.Engine
}

func NewCronService(cfg map[string]interface{}, engine *apisync.Engine) serviceiface.Service {
	return &CronService{config: cfg, engine: engine}
}

func (s *CronService) Name() string { return "cron" }

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	jobCfg := NewDefaultLoanBookJobConfig()
	if s.config != nil {
		if schedule, ok := s.config["loanbook_schedule"].(string); ok && schedule != "" {
			jobCfg.Schedule = schedule
		}
		if dropDir, ok := s.config["drop_dir"].(string); ok && dropDir != "" {
			jobCfg.DropDir = dropDir
		}
		if tz, ok := s.config["timezone"].(string); ok && tz != "" {
			jobCfg.TimeZone = tz
		}
	}

	if err := RunLoanBookScheduler(jobCfg, s.engine); err != nil {
		return fmt.Errorf("failed to start loan book scheduler: %v", err)
	}

	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit("Cron service started with loan book ingest scheduler")
	}
	log.Println("Cron service started, loan book ingest scheduled")
	return nil
}

func (s *CronService) Stop() error {
	log.Println("Cron service stopped.")
	return nil
}
