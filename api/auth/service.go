package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"LoanCollectSaas/internal/logger"
	"LoanCollectSaas/internal/serviceiface"
)

// UserSession is one logged-in back-office operator (agent or admin).
type UserSession struct {
	SessionID     string
	UserID        string
	Name          string
	Email         string
	Role          string
	LastLoginTime string
	ClientIP      string
}

type AuthService struct {
	db       *sql.DB
	maxUsers int
	sessions map[string]*UserSession
	byUserID map[string]*UserSession
	mu       sync.Mutex
	stopCh   chan struct{}
}

func NewAuthService(db *sql.DB, maxUsers int) serviceiface.Service {
	if maxUsers <= 0 {
		maxUsers = 100
	}
	return &AuthService{
		db:       db,
		maxUsers: maxUsers,
		sessions: make(map[string]*UserSession),
		byUserID: make(map[string]*UserSession),
		stopCh:   make(chan struct{}),
	}
}

func (a *AuthService) Name() string { return "auth" }

func (a *AuthService) Start() error {
	go a.sessionCleaner()
	return nil
}

func (a *AuthService) Stop() error {
	close(a.stopCh)
	return nil
}

func (a *AuthService) Login(username, password, clientIP string) (*UserSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, session := range a.sessions {
		if session.Email == username {
			session.LastLoginTime = time.Now().Format(time.RFC3339)
			session.ClientIP = clientIP
			return session, nil
		}
	}

	if len(a.sessions) >= a.maxUsers {
		return nil, errors.New("maximum concurrent users reached")
	}

	var userID, name, email string
	var role sql.NullString
	err := a.db.QueryRow(`
		SELECT u.id, u.full_name, u.email, r.name
		FROM users u
		LEFT JOIN user_roles ur ON u.id = ur.user_id
		LEFT JOIN roles r ON ur.role_id = r.id
		WHERE u.email = $1 AND u.password = $2`,
		username, password).Scan(&userID, &name, &email, &role)
	if err != nil {
		return nil, errors.New("invalid credentials or user not found")
	}

	session := &UserSession{
		SessionID:     fmt.Sprintf("%d", time.Now().UnixNano()),
		UserID:        userID,
		Name:          name,
		Email:         email,
		Role:          role.String,
		LastLoginTime: time.Now().Format(time.RFC3339),
		ClientIP:      clientIP,
	}
	a.sessions[session.SessionID] = session
	a.byUserID[userID] = session

	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit(fmt.Sprintf("User logged in: %s", username))
	}
	return session, nil
}

func (a *AuthService) Logout(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, exists := a.sessions[sessionID]
	if !exists {
		return errors.New("session not found")
	}
	delete(a.sessions, sessionID)
	delete(a.byUserID, session.UserID)

	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit("User logged out: " + session.UserID)
	}
	return nil
}

func (a *AuthService) GetActiveSessions() []*UserSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	sessions := make([]*UserSession, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (a *AuthService) sessionCleaner() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			// Concurrent-login bookkeeping only; expiry is enforced by the
			// portal in front of this service.
		}
	}
}

var globalAuthService *AuthService

func SetGlobalAuthService(svc *AuthService) {
	globalAuthService = svc
}

// ValidateSession resolves a user id to its active session, or nil. Upload
// handlers use it to attribute sync runs to an operator.
func ValidateSession(userID string) *UserSession {
	if globalAuthService == nil {
		return nil
	}
	globalAuthService.mu.Lock()
	defer globalAuthService.mu.Unlock()
	return globalAuthService.byUserID[userID]
}
