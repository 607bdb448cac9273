package sync

import (
	"context"
	"fmt"
	"log"
)

// NotificationSink is the collaborator that persists agent notifications.
type NotificationSink interface {
	CreateNotification(ctx context.Context, agentID string, ntype NotificationType, ticketID, title, message string) error
}

// Dispatcher fans out one notification per affected agent per changed
// ticket. Dispatch failures are logged, never propagated: a missed
// notification must not roll back a balance or status update.
type Dispatcher struct {
	sink NotificationSink
}

func NewDispatcher(sink NotificationSink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

// Dispatch sends the notification for one non-Maintained decision. Tickets
// without an assigned agent are skipped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, dec Decision) {
	if d == nil || d.sink == nil {
		return
	}
	if dec.Classification == ClassificationMaintained {
		return
	}
	agentID := dec.UpdatedTicket.AssignedAgentID
	if agentID == "" {
		return
	}

	ntype, title, message := notificationContent(dec)
	if err := d.sink.CreateNotification(ctx, agentID, ntype, dec.UpdatedTicket.ID, title, message); err != nil {
		log.Printf("[SYNC] failed to notify agent %s for ticket %s: %v", agentID, dec.UpdatedTicket.ID, err)
	}
}

func notificationContent(dec Decision) (NotificationType, string, string) {
	nrc := dec.Record.NRC
	switch dec.Classification {
	case ClassificationCleared:
		return NotificationArrearsCleared, "Arrears cleared",
			fmt.Sprintf("Loan book reports zero arrears for customer %s. Ticket is pending your confirmation.", nrc)
	case ClassificationReduced:
		return NotificationArrearsReduced, "Arrears reduced",
			fmt.Sprintf("Arrears for customer %s dropped to %s.", nrc, dec.UpdatedTicket.AmountOwed.StringFixed(2))
	case ClassificationReopened:
		return NotificationArrearsIncreased, "Ticket reopened",
			fmt.Sprintf("Customer %s is back in arrears (%s). Ticket was reopened.", nrc, dec.UpdatedTicket.AmountOwed.StringFixed(2))
	default:
		return NotificationArrearsIncreased, "Arrears increased",
			fmt.Sprintf("Arrears for customer %s rose to %s.", nrc, dec.UpdatedTicket.AmountOwed.StringFixed(2))
	}
}
