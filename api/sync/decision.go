package sync

import "github.com/shopspring/decimal"

// Decide runs one feed record against the stored customer/ticket state and
// returns the movement classification plus the post-state to persist.
//
// The rules, in evaluation order:
//
//   - nil arrears            -> Maintained, nothing touched
//   - zero arrears           -> Cleared, ticket parked in PENDING_CONFIRMATION
//     (a zero reading from an external feed may be transient, so a human
//     confirms before the ticket is finally resolved); if the ticket is
//     already RESOLVED, or already parked with a zero snapshot, the zero
//     reading carries no news and classifies Maintained
//   - positive arrears on a RESOLVED or PENDING_CONFIRMATION ticket -> Reopened,
//     ticket returns to OPEN
//   - otherwise the amount is compared against the previous snapshot:
//     greater -> Increased, smaller -> Reduced, equal -> Maintained
//
// Every classification except Maintained-with-nil-input moves the ticket's
// PreviousArrears snapshot to the new amount, sets AmountOwed to the new
// amount (the feed reports the full figure, not a delta), and recomputes
// the customer aggregates so the outstanding balance tracks the feed.
func Decide(rec SyncInputRecord, state AccountState) Decision {
	d := Decision{
		Record:          rec,
		UpdatedTicket:   state.Ticket,
		UpdatedCustomer: state.Customer,
	}

	if rec.ArrearsAmount == nil {
		d.Classification = ClassificationMaintained
		return d
	}
	newArrears := *rec.ArrearsAmount
	prev := state.Ticket.PreviousArrears

	switch {
	case newArrears.IsZero() && state.Ticket.Status == TicketStatusResolved:
		d.Classification = ClassificationMaintained

	case newArrears.IsZero() && state.Ticket.Status == TicketStatusPendingConfirmation && prev.IsZero():
		// Re-reading an already-parked clearance is a no-op; keeps reruns
		// of the same feed idempotent.
		d.Classification = ClassificationMaintained

	case newArrears.IsZero():
		d.Classification = ClassificationCleared
		d.StatusChanged = true
		d.UpdatedTicket.Status = TicketStatusPendingConfirmation

	case state.Ticket.Status == TicketStatusResolved || state.Ticket.Status == TicketStatusPendingConfirmation:
		// Reopen target is always OPEN, regardless of prior call activity.
		d.Classification = ClassificationReopened
		d.StatusChanged = true
		d.UpdatedTicket.Status = TicketStatusOpen

	case newArrears.GreaterThan(prev):
		d.Classification = ClassificationIncreased

	case newArrears.LessThan(prev):
		d.Classification = ClassificationReduced

	default:
		d.Classification = ClassificationMaintained
	}

	applyAmount(&d, newArrears)
	return d
}

// applyAmount moves the snapshot and balances to the new arrears figure.
// Maintained readings with an explicit amount still refresh the snapshot so
// the next run compares against this run's value, not a stale one.
func applyAmount(d *Decision, newArrears decimal.Decimal) {
	d.Mutated = true
	d.UpdatedTicket.PreviousArrears = newArrears
	d.UpdatedTicket.AmountOwed = newArrears

	// The arrears amount is the authoritative new amount owed, so the
	// customer aggregate is rebased to keep outstanding == arrears.
	d.UpdatedCustomer.TotalOwed = d.UpdatedCustomer.TotalPaid.Add(newArrears)
	d.UpdatedCustomer.PaymentStatus = DerivePaymentStatus(d.UpdatedCustomer.TotalOwed, d.UpdatedCustomer.TotalPaid)
}

// countsFor maps a decision to its contribution to the run counters.
func countsFor(d Decision) ChunkResult {
	r := ChunkResult{Processed: 1}
	switch d.Classification {
	case ClassificationMaintained:
		r.Maintained = 1
	case ClassificationReopened:
		r.Updated = 1
		r.Reopened = 1
	default:
		r.Updated = 1
	}
	return r
}
