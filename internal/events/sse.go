package events

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// SSEServer streams reconciliation lifecycle events (started / progress /
// complete) to subscribed clients. Orchestrator completion is published
// here rather than calling consumers directly, so the UI and any cache
// refreshers subscribe instead of being hardwired.
type SSEServer struct {
	mu         sync.RWMutex
	clients    map[string]*sseClient
	pingTicker *time.Ticker
	stopCh     chan struct{}
}

type sseClient struct {
	userID  string
	writer  http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

func NewSSEServer() *SSEServer {
	s := &SSEServer{
		clients: make(map[string]*sseClient),
		stopCh:  make(chan struct{}),
	}
	s.pingTicker = time.NewTicker(30 * time.Second)
	go s.pingLoop()
	return s
}

func (s *SSEServer) Close() {
	close(s.stopCh)
	s.pingTicker.Stop()
}

// ServeHTTP subscribes one client. A second connection for the same user
// replaces the first.
func (s *SSEServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id parameter required", http.StatusBadRequest)
		return
	}

	client := &sseClient{
		userID:  userID,
		writer:  w,
		flusher: flusher,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if existing, exists := s.clients[userID]; exists {
		close(existing.done)
	}
	s.clients[userID] = client
	s.mu.Unlock()

	log.Printf("[SSE] connected user %s from %s", userID, r.RemoteAddr)
	s.sendToClient(client, "connected", map[string]interface{}{
		"message": "event stream established",
		"time":    time.Now().Format(time.RFC3339),
	})

	defer func() {
		s.mu.Lock()
		if s.clients[userID] == client {
			delete(s.clients, userID)
		}
		s.mu.Unlock()
		log.Printf("[SSE] disconnected user %s", userID)
	}()

	select {
	case <-client.done:
	case <-r.Context().Done():
	case <-s.stopCh:
	}
}

// Publish broadcasts one event to every subscribed client. Implements the
// sync orchestrator's Publisher contract.
func (s *SSEServer) Publish(event string, payload interface{}) {
	s.mu.RLock()
	clients := make([]*sseClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.sendToClient(c, event, payload)
	}
}

func (s *SSEServer) sendToClient(c *sseClient, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[SSE][ERROR] failed to marshal %s payload: %v", event, err)
		return
	}
	if _, err := fmt.Fprintf(c.writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return
	}
	c.flusher.Flush()
}

func (s *SSEServer) pingLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.pingTicker.C:
			s.Publish("ping", map[string]interface{}{"time": time.Now().Format(time.RFC3339)})
		}
	}
}
