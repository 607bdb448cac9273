package notification

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"LoanCollectSaas/api/utils"
	"LoanCollectSaas/internal/serviceiface"
)

const notificationPort = "9111"

// AgentNotification is the read-model row returned to the UI.
type AgentNotification struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	Type            string    `json:"type"`
	RelatedTicketID string    `json:"related_ticket_id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}

type NotificationService struct {
	config map[string]interface{}
	db     *sql.DB
}

func NewNotificationService(cfg map[string]interface{}, db *sql.DB) serviceiface.Service {
	return &NotificationService{config: cfg, db: db}
}

func (s *NotificationService) Name() string { return "notification" }

func (s *NotificationService) Start() error {
	go StartNotificationService(s.db)
	return nil
}

func (s *NotificationService) Stop() error {
	return nil
}

// StartNotificationService exposes the notification read paths. Writes come
// only from the sync dispatcher (PgSink) and the mark-read toggle here.
func StartNotificationService(db *sql.DB) {
	mux := http.NewServeMux()
	mux.HandleFunc("/notification/list", listHandler(db))
	mux.HandleFunc("/notification/mark-read", markReadHandler(db))

	log.Printf("Notification Service started on :%s", notificationPort)
	if err := http.ListenAndServe(":"+notificationPort, mux); err != nil {
		log.Fatalf("Notification Service failed: %v", err)
	}
}

func listHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := r.URL.Query().Get("agent_id")
		if agentID == "" {
			http.Error(w, "agent_id required", http.StatusBadRequest)
			return
		}

		pagination, err := utils.ExtractPagination(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		total, err := utils.CountTotal(db, `SELECT COUNT(*) FROM agent_notifications WHERE agent_id = $1`, agentID)
		if err != nil {
			log.Printf("[NOTIFICATION][ERROR] count query failed: %v", err)
			http.Error(w, "DB error", http.StatusInternalServerError)
			return
		}
		pagination.SetPaginationStats(total)

		rows, err := db.QueryContext(r.Context(), `
			SELECT id, agent_id, type, COALESCE(related_ticket_id, ''), title, message, is_read, created_at
			FROM agent_notifications
			WHERE agent_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, agentID, pagination.Limit, pagination.Offset)
		if err != nil {
			log.Printf("[NOTIFICATION][ERROR] list query failed: %v", err)
			http.Error(w, "DB error", http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		notifications := []AgentNotification{}
		for rows.Next() {
			var n AgentNotification
			if err := rows.Scan(&n.ID, &n.AgentID, &n.Type, &n.RelatedTicketID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
				log.Printf("[NOTIFICATION][ERROR] scan failed: %v", err)
				continue
			}
			notifications = append(notifications, n)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       true,
			"notifications": notifications,
			"pagination":    pagination,
		})
	}
}

func markReadHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		if _, err := db.ExecContext(r.Context(), `UPDATE agent_notifications SET is_read = true WHERE id = $1`, req.ID); err != nil {
			log.Printf("[NOTIFICATION][ERROR] mark-read failed: %v", err)
			http.Error(w, "DB error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}
}
