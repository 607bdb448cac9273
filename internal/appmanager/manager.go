package appmanager

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"sync"

	"LoanCollectSaas/api"
	"LoanCollectSaas/api/auth"
	"LoanCollectSaas/api/notification"
	apisync "LoanCollectSaas/api/sync"
	"LoanCollectSaas/internal/events"
	"LoanCollectSaas/internal/jobs"
	"LoanCollectSaas/internal/logger"
	"LoanCollectSaas/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"
)

var (
	db      *sql.DB
	pgxPool *pgxpool.Pool

	// Shared across the sync service and the cron ingest so both run the
	// same pipeline against the same SSE stream.
	sseServer  *events.SSEServer
	syncEngine *apisync.Engine
)

func SetDB(database *sql.DB) {
	db = database
}

func SetPgxPool(pool *pgxpool.Pool) {
	pgxPool = pool
}

func GetDB() *sql.DB { return db }

func GetPgxPool() *pgxpool.Pool { return pgxPool }

func engine(cfg map[string]interface{}) *apisync.Engine {
	if syncEngine != nil {
		return syncEngine
	}
	if sseServer == nil {
		sseServer = events.NewSSEServer()
	}
	chunkSize := 0
	if cfg != nil {
		switch v := cfg["chunk_size"].(type) {
		case int:
			chunkSize = v
		case float64:
			chunkSize = int(v)
		}
	}
	store := apisync.NewPgStore(pgxPool)
	sink := notification.NewPgSink(pgxPool)
	syncEngine = apisync.NewEngine(store, sink, sseServer, chunkSize)
	return syncEngine
}

var serviceConstructors = map[string]func(map[string]interface{}) serviceiface.Service{
	"logger": func(cfg map[string]interface{}) serviceiface.Service {
		return logger.NewLoggerService(cfg)
	},
	"auth": func(cfg map[string]interface{}) serviceiface.Service {
		maxUsers := 0
		if cfg != nil {
			switch v := cfg["max_users"].(type) {
			case int:
				maxUsers = v
			case float64:
				maxUsers = int(v)
			}
		}
		return auth.NewAuthService(db, maxUsers)
	},
	"sync": func(cfg map[string]interface{}) serviceiface.Service {
		return apisync.NewSyncService(cfg, pgxPool, engine(cfg), sseServer)
	},
	"notification": func(cfg map[string]interface{}) serviceiface.Service {
		return notification.NewNotificationService(cfg, db)
	},
	"cron": func(cfg map[string]interface{}) serviceiface.Service {
		return jobs.NewCronService(cfg, engine(cfg))
	},
	"gateway": func(cfg map[string]interface{}) serviceiface.Service {
		return api.NewGatewayService(cfg)
	},
}

type AppManager struct {
	services []serviceiface.Service
	mu       sync.Mutex
}

func NewAppManager() *AppManager {
	return &AppManager{services: make([]serviceiface.Service, 0)}
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	for _, service := range am.services {
		fmt.Println("Starting service:", service.Name())
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}
	return nil
}

func (am *AppManager) StopAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if err := svc.Stop(); err != nil {
			return fmt.Errorf("failed to stop service %s: %w", svc.Name(), err)
		}
	}
	if sseServer != nil {
		sseServer.Close()
	}
	return nil
}

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, err
	}
	sort.Slice(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})
	return seq.Services, nil
}

func (am *AppManager) AutoRegisterServices(configs []ServiceConfig) {
	for _, svc := range configs {
		constructor, ok := serviceConstructors[svc.Name]
		if !ok {
			fmt.Println("Unknown service in sequence, skipping:", svc.Name)
			continue
		}
		service := constructor(svc.Config)
		am.RegisterService(service)
		if svc.Name == "auth" {
			if realAuthSvc, ok := service.(*auth.AuthService); ok {
				api.SetAuthService(realAuthSvc)
				auth.SetGlobalAuthService(realAuthSvc)
			}
		}
	}

	for _, svc := range am.services {
		if l, ok := svc.(*logger.LoggerService); ok {
			logger.SetGlobalLogger(l)
			break
		}
	}
}
