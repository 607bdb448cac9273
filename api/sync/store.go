package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound reports that no customer matches a feed identifier. It is
// counted, never fatal.
var ErrNotFound = errors.New("no customer matches identifier")

// Store is the customer/ticket store consumed by the reconciliation engine.
// ApplyChunk must be atomic: a failure rolls back that chunk only.
type Store interface {
	BeginBatch(ctx context.Context, operatorID, fileName, fileHash string) (uuid.UUID, error)
	FindByIdentifier(ctx context.Context, nrc string) (AccountState, error)
	ApplyChunk(ctx context.Context, batchID uuid.UUID, decisions []Decision) error
	FinalizeBatch(ctx context.Context, batchID uuid.UUID, summary SyncSummary) error
	FindCompletedBatchByHash(ctx context.Context, fileHash string) (uuid.UUID, bool, error)
	ListAllIdentifiers(ctx context.Context) ([]string, error)
	ListBatches(ctx context.Context, limit int) ([]SyncBatch, error)
}

// PgStore is the production Store backed by a pgx pool.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) BeginBatch(ctx context.Context, operatorID, fileName, fileHash string) (uuid.UUID, error) {
	batchID := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_batches (sync_batch_id, operator_id, file_name, file_hash, status, created_at)
		VALUES ($1, $2, $3, $4, 'running', now())`,
		batchID, operatorID, fileName, fileHash)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create sync batch: %w", err)
	}
	return batchID, nil
}

func (s *PgStore) FindByIdentifier(ctx context.Context, nrc string) (AccountState, error) {
	var st AccountState
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.nrc_number, c.total_owed, c.total_paid, c.payment_status,
		       t.id, t.amount_owed, t.status, COALESCE(t.assigned_agent_id, ''), t.previous_arrears
		FROM customer_accounts c
		JOIN collection_tickets t ON t.customer_id = c.id AND t.status <> 'ARCHIVED'
		WHERE c.nrc_number = $1
		ORDER BY t.created_at DESC
		LIMIT 1`, nrc).Scan(
		&st.Customer.ID, &st.Customer.NRC, &st.Customer.TotalOwed, &st.Customer.TotalPaid, &st.Customer.PaymentStatus,
		&st.Ticket.ID, &st.Ticket.AmountOwed, &st.Ticket.Status, &st.Ticket.AssignedAgentID, &st.Ticket.PreviousArrears,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountState{}, ErrNotFound
		}
		return AccountState{}, fmt.Errorf("lookup failed for %s: %w", nrc, err)
	}
	st.Ticket.CustomerID = st.Customer.ID
	return st, nil
}

// ApplyChunk writes all decisions of one chunk inside a single transaction:
// ticket update, customer aggregate update, and one audit row per decision.
// Maintained decisions without an amount only produce the audit row.
func (s *PgStore) ApplyChunk(ctx context.Context, batchID uuid.UUID, decisions []Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("chunk apply cancelled: %w", ctx.Err())
	default:
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start chunk transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Printf("[SYNC] error rolling back chunk transaction: %v", err)
		}
	}()

	batch := &pgx.Batch{}
	for _, d := range decisions {
		if d.Mutated {
			batch.Queue(`
				UPDATE collection_tickets
				SET status = $1, amount_owed = $2, previous_arrears = $3, updated_at = now()
				WHERE id = $4`,
				d.UpdatedTicket.Status, d.UpdatedTicket.AmountOwed, d.UpdatedTicket.PreviousArrears, d.UpdatedTicket.ID)
			batch.Queue(`
				UPDATE customer_accounts
				SET total_owed = $1, payment_status = $2, updated_at = now()
				WHERE id = $3`,
				d.UpdatedCustomer.TotalOwed, d.UpdatedCustomer.PaymentStatus, d.UpdatedCustomer.ID)
		}
		batch.Queue(`
			INSERT INTO sync_audit_log (id, sync_batch_id, nrc_number, ticket_id, classification, new_status, row_index, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
			uuid.New(), batchID, d.Record.NRC, d.UpdatedTicket.ID, string(d.Classification), d.UpdatedTicket.Status, d.Record.RowIndex)
	}

	br := tx.SendBatch(ctx, batch)

	var writeErrors []string
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			writeErrors = append(writeErrors, fmt.Sprintf("statement %d: %v", i+1, err))
		}
	}
	// Close batch results before any further tx operation.
	br.Close()

	if len(writeErrors) > 0 {
		return fmt.Errorf("chunk write failed (%d statements): %s", len(writeErrors), strings.Join(writeErrors, "; "))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	return nil
}

func (s *PgStore) FinalizeBatch(ctx context.Context, batchID uuid.UUID, summary SyncSummary) error {
	status := "completed"
	if len(summary.Errors) > 0 {
		status = "completed_with_errors"
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_batches
		SET status = $1, processed = $2, updated = $3, maintained = $4,
		    not_found = $5, resolved = $6, reopened = $7, errors = $8, completed_at = now()
		WHERE sync_batch_id = $9`,
		status, summary.Processed, summary.Updated, summary.Maintained,
		summary.NotFound, summary.Resolved, summary.Reopened, summary.Errors, batchID)
	if err != nil {
		return fmt.Errorf("failed to finalize sync batch %s: %w", batchID, err)
	}
	return nil
}

// FindCompletedBatchByHash supports idempotent feed uploads: re-posting a
// file already reconciled returns the prior batch instead of re-running.
func (s *PgStore) FindCompletedBatchByHash(ctx context.Context, fileHash string) (uuid.UUID, bool, error) {
	if fileHash == "" {
		return uuid.Nil, false, nil
	}
	var batchID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT sync_batch_id FROM sync_batches
		WHERE file_hash = $1 AND status IN ('completed', 'running')
		ORDER BY created_at DESC LIMIT 1`, fileHash).Scan(&batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("batch hash lookup failed: %w", err)
	}
	return batchID, true, nil
}

func (s *PgStore) ListAllIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT nrc_number FROM customer_accounts ORDER BY nrc_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identifiers: %w", err)
	}
	defer rows.Close()

	var nrcs []string
	for rows.Next() {
		var nrc string
		if err := rows.Scan(&nrc); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		nrcs = append(nrcs, nrc)
	}
	return nrcs, rows.Err()
}

func (s *PgStore) ListBatches(ctx context.Context, limit int) ([]SyncBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT sync_batch_id, operator_id, COALESCE(file_name, ''), COALESCE(file_hash, ''), status,
		       processed, updated, maintained, not_found, resolved, reopened, created_at
		FROM sync_batches
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync batches: %w", err)
	}
	defer rows.Close()

	var batches []SyncBatch
	for rows.Next() {
		var b SyncBatch
		var createdAt time.Time
		if err := rows.Scan(&b.ID, &b.OperatorID, &b.FileName, &b.FileHash, &b.Status,
			&b.Processed, &b.Updated, &b.Maintained, &b.NotFound, &b.Resolved, &b.Reopened, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync batch: %w", err)
		}
		b.CreatedAt = createdAt
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
