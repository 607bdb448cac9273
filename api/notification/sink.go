package notification

import (
	"context"
	"fmt"

	apisync "LoanCollectSaas/api/sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgSink persists agent notifications produced by the reconciliation
// dispatcher.
type PgSink struct {
	pool *pgxpool.Pool
}

func NewPgSink(pool *pgxpool.Pool) *PgSink {
	return &PgSink{pool: pool}
}

func (s *PgSink) CreateNotification(ctx context.Context, agentID string, ntype apisync.NotificationType, ticketID, title, message string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_notifications (id, agent_id, type, related_ticket_id, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, now())`,
		uuid.New(), agentID, string(ntype), ticketID, title, message)
	if err != nil {
		return fmt.Errorf("failed to insert notification for agent %s: %w", agentID, err)
	}
	return nil
}
