package sync

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"LoanCollectSaas/internal/serviceiface"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Engine bundles the reconciliation pipeline behind one constructor so HTTP
// handlers and the cron job share identical wiring.
type Engine struct {
	store        Store
	orchestrator *Orchestrator
}

func NewEngine(store Store, sink NotificationSink, publisher Publisher, chunkSize int) *Engine {
	applier := NewApplier(store, NewDispatcher(sink))
	return &Engine{
		store:        store,
		orchestrator: NewOrchestrator(store, applier, publisher, chunkSize),
	}
}

func (e *Engine) Orchestrator() *Orchestrator { return e.orchestrator }

func (e *Engine) Store() Store { return e.store }

// SyncService hosts the reconciliation HTTP surface.
type SyncService struct {
	config map[string]interface{}
	pool   *pgxpool.Pool
	engine *Engine
	events http.Handler
}

func NewSyncService(cfg map[string]interface{}, pool *pgxpool.Pool, engine *Engine, events http.Handler) serviceiface.Service {
	return &SyncService{config: cfg, pool: pool, engine: engine, events: events}
}

func (s *SyncService) Name() string { return "sync" }

func (s *SyncService) Start() error {
	go s.serve()
	return nil
}

func (s *SyncService) Stop() error {
	return nil
}

func (s *SyncService) serve() {
	port := "7143"
	if p, ok := s.config["port"]; ok {
		switch v := p.(type) {
		case string:
			port = v
		case int:
			port = strconv.Itoa(v)
		case float64:
			port = strconv.Itoa(int(v))
		}
	}

	router := mux.NewRouter()
	router.HandleFunc("/sync/loan-book/upload", UploadLoanBookFeed(s.engine)).Methods("POST")
	router.HandleFunc("/sync/loan-book/template", ExportFeedTemplate(s.engine)).Methods("GET")
	router.HandleFunc("/sync/batches", ListSyncBatches(s.engine)).Methods("GET")
	if s.events != nil {
		router.Handle("/sync/events", s.events).Methods("GET")
	}
	router.HandleFunc("/sync/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Sync Service is healthy"))
	})

	log.Printf("Sync Service started on :%s", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Sync Service failed: %v", err)
	}
}

// ListSyncBatches returns recent sync runs, newest first. The newest row
// doubles as the "last sync time" shown to users.
func ListSyncBatches(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		batches, err := engine.store.ListBatches(r.Context(), limit)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"batches": batches,
		})
	}
}
