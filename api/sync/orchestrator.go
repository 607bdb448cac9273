package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Publisher receives orchestrator lifecycle events. Other subsystems (UI
// streams, cache refreshers) subscribe to these instead of being called
// directly by the engine.
type Publisher interface {
	Publish(event string, payload interface{})
}

// Event names published over the course of one run.
const (
	EventSyncStarted  = "sync_started"
	EventSyncProgress = "sync_progress"
	EventSyncComplete = "sync_complete"
)

// Orchestrator owns the chunk loop: it validates rows, drives the decision
// engine against current store state, hands chunks to the applier, and
// accumulates the run summary. Chunks run strictly sequentially to bound
// backend load and keep progress monotonic.
type Orchestrator struct {
	store     Store
	applier   *Applier
	publisher Publisher
	chunkSize int
}

func NewOrchestrator(store Store, applier *Applier, publisher Publisher, chunkSize int) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Orchestrator{store: store, applier: applier, publisher: publisher, chunkSize: chunkSize}
}

// RunSync reconciles the full feed. One batch id is generated for the whole
// run and shared across all chunks so the audit log reads as one logical
// operation.
//
// Failure policy: a chunk that fails at the store layer is reported and the
// run continues with subsequent chunks: each chunk is an independent
// transaction, so later chunks are unaffected by an earlier rollback.
// Cancellation is cooperative: it is honored between chunks, never
// mid-write, and already-applied chunks stay committed.
func (o *Orchestrator) RunSync(ctx context.Context, rawRows []RawRow, operatorID, fileName, fileHash string) SyncSummary {
	summary := SyncSummary{}
	if len(rawRows) == 0 {
		summary.Errors = append(summary.Errors, "no input records")
		return summary
	}

	batchID, err := o.store.BeginBatch(ctx, operatorID, fileName, fileHash)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("could not start sync run: %v", err))
		return summary
	}
	summary.Success = true
	summary.SyncBatchID = batchID

	started := time.Now()
	log.Printf("[SYNC] batch %s started by %s: %d raw rows, chunk size %d", batchID, operatorID, len(rawRows), o.chunkSize)
	o.publish(EventSyncStarted, map[string]interface{}{
		"sync_batch_id": batchID.String(),
		"total_rows":    len(rawRows),
	})

	// Validate up front so skip reasons land in the summary even when a
	// later chunk fails.
	var records []SyncInputRecord
	for i, row := range rawRows {
		rec, ok, reason := ValidateRow(row, i+1)
		if !ok {
			summary.Errors = append(summary.Errors, reason)
			continue
		}
		records = append(records, rec)
	}

	// Within one run the feed may repeat an identifier; each later record
	// must see the state the earlier one produced (last-write-wins), so
	// committed post-states are kept in an overlay consulted before the
	// store.
	overlay := make(map[string]AccountState)

	totals := ChunkResult{}
	chunks := splitRecords(records, o.chunkSize)
	for ci, chunk := range chunks {
		select {
		case <-ctx.Done():
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("run cancelled after %d of %d chunks: %v", ci, len(chunks), ctx.Err()))
			log.Printf("[SYNC] batch %s cancelled after %d chunks", batchID, ci)
			o.finalize(batchID, &summary, totals, started)
			return summary
		default:
		}

		chunkResult, applied := o.runChunk(ctx, batchID, chunk, overlay)
		totals.Add(chunkResult)
		if applied > 0 {
			o.publish(EventSyncProgress, map[string]interface{}{
				"sync_batch_id":  batchID.String(),
				"chunks_total":   len(chunks),
				"chunks_done":    ci + 1,
				"rows_processed": totals.Processed,
			})
		}
	}

	o.finalize(batchID, &summary, totals, started)
	return summary
}

// runChunk looks up state, decides, and applies one chunk. Returns the
// chunk counters and how many decisions were durably applied.
func (o *Orchestrator) runChunk(ctx context.Context, batchID uuid.UUID, chunk []SyncInputRecord, overlay map[string]AccountState) (ChunkResult, int) {
	var result ChunkResult
	var decisions []Decision
	// Duplicates inside this chunk see pending post-states through a
	// chunk-local overlay that is only promoted on commit.
	pending := make(map[string]AccountState)

	for _, rec := range chunk {
		state, ok := pending[rec.NRC]
		if !ok {
			state, ok = overlay[rec.NRC]
		}
		if !ok {
			var err error
			state, err = o.store.FindByIdentifier(ctx, rec.NRC)
			if err != nil {
				if err == ErrNotFound {
					result.Processed++
					result.NotFound++
					continue
				}
				result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", rec.RowIndex, rec.NRC, err))
				continue
			}
		}

		d := Decide(rec, state)
		decisions = append(decisions, d)
		pending[rec.NRC] = AccountState{Customer: d.UpdatedCustomer, Ticket: d.UpdatedTicket}
	}

	applyResult := o.applier.Apply(ctx, batchID, decisions)
	result.Add(applyResult)
	if applyResult.Processed > 0 {
		// Chunk committed; promote post-states for later chunks.
		for nrc, state := range pending {
			overlay[nrc] = state
		}
	}
	return result, applyResult.Processed
}

func (o *Orchestrator) finalize(batchID uuid.UUID, summary *SyncSummary, totals ChunkResult, started time.Time) {
	summary.Processed = totals.Processed
	summary.Updated = totals.Updated
	summary.Maintained = totals.Maintained
	summary.NotFound = totals.NotFound
	summary.Resolved = totals.Resolved
	summary.Reopened = totals.Reopened
	summary.Errors = append(summary.Errors, totals.Errors...)

	// Finalization must not inherit a cancelled request context; the batch
	// header is the audit trail for partial runs too.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.store.FinalizeBatch(ctx, batchID, *summary); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("failed to finalize batch: %v", err))
	}

	log.Printf("[SYNC] batch %s finished in %v: processed=%d updated=%d maintained=%d not_found=%d reopened=%d errors=%d",
		batchID, time.Since(started), summary.Processed, summary.Updated, summary.Maintained,
		summary.NotFound, summary.Reopened, len(summary.Errors))
	o.publish(EventSyncComplete, *summary)
}

func (o *Orchestrator) publish(event string, payload interface{}) {
	if o.publisher != nil {
		o.publisher.Publish(event, payload)
	}
}

func splitRecords(records []SyncInputRecord, size int) [][]SyncInputRecord {
	var chunks [][]SyncInputRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
