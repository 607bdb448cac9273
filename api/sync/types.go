package sync

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is derived from totals on every balance mutation, never stored
// independently of them.
type PaymentStatus string

const (
	PaymentStatusNotPaid       PaymentStatus = "NOT_PAID"
	PaymentStatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentStatusFullyPaid     PaymentStatus = "FULLY_PAID"
)

// TicketStatus enumerates the collection ticket lifecycle.
type TicketStatus string

const (
	TicketStatusOpen                TicketStatus = "OPEN"
	TicketStatusInProgress          TicketStatus = "IN_PROGRESS"
	TicketStatusPendingConfirmation TicketStatus = "PENDING_CONFIRMATION"
	TicketStatusResolved            TicketStatus = "RESOLVED"
)

// Classification is the movement category the decision engine assigns to one
// feed record against the stored arrears snapshot.
type Classification string

const (
	ClassificationCleared    Classification = "cleared"
	ClassificationReduced    Classification = "reduced"
	ClassificationIncreased  Classification = "increased"
	ClassificationMaintained Classification = "maintained"
	ClassificationReopened   Classification = "reopened"
)

// NotificationType maps to the agent_notifications.type column.
type NotificationType string

const (
	NotificationArrearsCleared   NotificationType = "arrears_cleared"
	NotificationArrearsIncreased NotificationType = "arrears_increased"
	NotificationArrearsReduced   NotificationType = "arrears_reduced"
	NotificationInfo             NotificationType = "info"
)

// SyncInputRecord is one structurally valid row of the loan book feed.
// A nil ArrearsAmount means "no new information" and is distinct from a
// zero amount, which means the arrears were fully cleared.
type SyncInputRecord struct {
	NRC             string
	ArrearsAmount   *decimal.Decimal
	DaysInArrears   *int
	LastPaymentDate *time.Time
	RowIndex        int
}

// CustomerAccount mirrors the customer_accounts row touched by reconciliation.
type CustomerAccount struct {
	ID            string
	NRC           string
	TotalOwed     decimal.Decimal
	TotalPaid     decimal.Decimal
	PaymentStatus PaymentStatus
}

// OutstandingBalance is max(totalOwed - totalPaid, 0).
func (c CustomerAccount) OutstandingBalance() decimal.Decimal {
	bal := c.TotalOwed.Sub(c.TotalPaid)
	if bal.IsNegative() {
		return decimal.Zero
	}
	return bal
}

// DerivePaymentStatus recomputes the payment status from the totals.
func DerivePaymentStatus(totalOwed, totalPaid decimal.Decimal) PaymentStatus {
	switch {
	case totalPaid.GreaterThanOrEqual(totalOwed) && totalOwed.IsPositive():
		return PaymentStatusFullyPaid
	case totalPaid.IsPositive():
		return PaymentStatusPartiallyPaid
	default:
		return PaymentStatusNotPaid
	}
}

// Ticket mirrors the collection ticket row for one customer. PreviousArrears
// is the snapshot captured at the last sync, used for movement comparison.
type Ticket struct {
	ID              string
	CustomerID      string
	AmountOwed      decimal.Decimal
	Status          TicketStatus
	AssignedAgentID string
	PreviousArrears decimal.Decimal
}

// AccountState is the customer/ticket pair looked up by NRC for one record.
type AccountState struct {
	Customer CustomerAccount
	Ticket   Ticket
}

// Decision is the outcome of running one record through the decision engine.
// UpdatedTicket/UpdatedCustomer carry the post-state the applier persists;
// for a Maintained decision with nil input they equal the looked-up state
// and Mutated is false.
type Decision struct {
	Record          SyncInputRecord
	Classification  Classification
	StatusChanged   bool
	Mutated         bool
	UpdatedTicket   Ticket
	UpdatedCustomer CustomerAccount
}

// ChunkResult carries per-chunk counters plus row-level error strings.
type ChunkResult struct {
	Processed  int
	Updated    int
	Maintained int
	NotFound   int
	Resolved   int
	Reopened   int
	Errors     []string
}

// Add folds another chunk's counters into the receiver.
func (r *ChunkResult) Add(other ChunkResult) {
	r.Processed += other.Processed
	r.Updated += other.Updated
	r.Maintained += other.Maintained
	r.NotFound += other.NotFound
	r.Resolved += other.Resolved
	r.Reopened += other.Reopened
	r.Errors = append(r.Errors, other.Errors...)
}

// SyncSummary is the payload returned to the caller after a run.
type SyncSummary struct {
	Success     bool      `json:"success"`
	SyncBatchID uuid.UUID `json:"sync_batch_id"`
	Processed   int       `json:"processed"`
	Updated     int       `json:"updated"`
	Maintained  int       `json:"maintained"`
	NotFound    int       `json:"not_found"`
	Resolved    int       `json:"resolved"`
	Reopened    int       `json:"reopened"`
	Errors      []string  `json:"errors"`
}

// SyncBatch is the audit header row for one orchestrator run. It is the
// system's source of truth for "last sync time".
type SyncBatch struct {
	ID         uuid.UUID `json:"sync_batch_id"`
	OperatorID string    `json:"operator_id"`
	FileName   string    `json:"file_name"`
	FileHash   string    `json:"file_hash"`
	Status     string    `json:"status"`
	Processed  int       `json:"processed"`
	Updated    int       `json:"updated"`
	Maintained int       `json:"maintained"`
	NotFound   int       `json:"not_found"`
	Resolved   int       `json:"resolved"`
	Reopened   int       `json:"reopened"`
	CreatedAt  time.Time `json:"created_at"`
}
