package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Applier commits one chunk of decisions as a single atomic unit and fans
// out notifications afterwards. A mid-chunk store failure rolls back that
// chunk only; previously committed chunks stay committed.
type Applier struct {
	store      Store
	dispatcher *Dispatcher
}

func NewApplier(store Store, dispatcher *Dispatcher) *Applier {
	return &Applier{store: store, dispatcher: dispatcher}
}

// Apply writes the chunk and returns its counters. On a store-level failure
// the chunk contributes no counters, only a chunk-level error with enough
// context (row range) for manual reprocessing.
func (a *Applier) Apply(ctx context.Context, batchID uuid.UUID, decisions []Decision) ChunkResult {
	var result ChunkResult
	if len(decisions) == 0 {
		return result
	}

	if err := a.store.ApplyChunk(ctx, batchID, decisions); err != nil {
		first := decisions[0].Record.RowIndex
		last := decisions[len(decisions)-1].Record.RowIndex
		result.Errors = append(result.Errors,
			fmt.Sprintf("chunk rows %d-%d not applied: %v", first, last, err))
		return result
	}

	for _, d := range decisions {
		result.Add(countsFor(d))
		// Best-effort: notification failure never undoes the write.
		a.dispatcher.Dispatch(ctx, d)
	}
	return result
}
