package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store. ApplyChunk mutates the account map on
// commit so later lookups within a run observe earlier chunks, and can be
// made to fail on selected calls.
type fakeStore struct {
	mu         sync.Mutex
	accounts   map[string]AccountState
	applied    [][]Decision
	applyCalls int
	failApply  map[int]error // 1-based ApplyChunk call -> error
	beginErr   error
	finalized  *SyncSummary
	onApply    func(call int)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:  make(map[string]AccountState),
		failApply: make(map[int]error),
	}
}

func (f *fakeStore) addAccount(nrc, prevArrears string, status TicketStatus, agentID string) {
	prev := dec(prevArrears)
	f.accounts[nrc] = AccountState{
		Customer: CustomerAccount{
			ID:            "cust-" + nrc,
			NRC:           nrc,
			TotalOwed:     dec("1000").Add(prev),
			TotalPaid:     dec("1000"),
			PaymentStatus: PaymentStatusPartiallyPaid,
		},
		Ticket: Ticket{
			ID:              "ticket-" + nrc,
			CustomerID:      "cust-" + nrc,
			AmountOwed:      prev,
			Status:          status,
			AssignedAgentID: agentID,
			PreviousArrears: prev,
		},
	}
}

func (f *fakeStore) BeginBatch(ctx context.Context, operatorID, fileName, fileHash string) (uuid.UUID, error) {
	if f.beginErr != nil {
		return uuid.Nil, f.beginErr
	}
	return uuid.New(), nil
}

func (f *fakeStore) FindByIdentifier(ctx context.Context, nrc string) (AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.accounts[nrc]
	if !ok {
		return AccountState{}, ErrNotFound
	}
	return st, nil
}

func (f *fakeStore) ApplyChunk(ctx context.Context, batchID uuid.UUID, decisions []Decision) error {
	f.mu.Lock()
	f.applyCalls++
	call := f.applyCalls
	f.mu.Unlock()

	if f.onApply != nil {
		f.onApply(call)
	}
	if err, ok := f.failApply[call]; ok {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, decisions)
	for _, d := range decisions {
		f.accounts[d.Record.NRC] = AccountState{Customer: d.UpdatedCustomer, Ticket: d.UpdatedTicket}
	}
	return nil
}

func (f *fakeStore) FinalizeBatch(ctx context.Context, batchID uuid.UUID, summary SyncSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = &summary
	return nil
}

func (f *fakeStore) FindCompletedBatchByHash(ctx context.Context, fileHash string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (f *fakeStore) ListAllIdentifiers(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) ListBatches(ctx context.Context, limit int) ([]SyncBatch, error) {
	return nil, nil
}

type sinkCall struct {
	AgentID  string
	Type     NotificationType
	TicketID string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	err   error
}

func (r *recordingSink) CreateNotification(ctx context.Context, agentID string, ntype NotificationType, ticketID, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, sinkCall{AgentID: agentID, Type: ntype, TicketID: ticketID})
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func newTestOrchestrator(store *fakeStore, sink *recordingSink, pub Publisher, chunkSize int) *Orchestrator {
	return NewOrchestrator(store, NewApplier(store, NewDispatcher(sink)), pub, chunkSize)
}

func feedRow(nrc, amount string) RawRow {
	return RawRow{"NRC Number": nrc, "Amount Owed": amount}
}

func TestRunSync_EmptyInput(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(store, &recordingSink{}, nil, 10)

	summary := o.RunSync(context.Background(), nil, "op-1", "empty.csv", "")
	assert.False(t, summary.Success)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "no input records")
	assert.Nil(t, store.finalized, "no batch should be opened for empty input")
}

func TestRunSync_BeginBatchFailure(t *testing.T) {
	store := newFakeStore()
	store.beginErr = errors.New("db down")
	o := newTestOrchestrator(store, &recordingSink{}, nil, 10)

	summary := o.RunSync(context.Background(), []RawRow{feedRow("123456/78/1", "100")}, "op-1", "feed.csv", "")
	assert.False(t, summary.Success)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "could not start sync run")
}

func TestRunSync_CountConservation(t *testing.T) {
	store := newFakeStore()
	store.addAccount("100000/10/1", "500", TicketStatusOpen, "agent-1")    // cleared
	store.addAccount("200000/10/1", "500", TicketStatusOpen, "agent-1")    // increased
	store.addAccount("300000/10/1", "500", TicketStatusOpen, "agent-1")    // maintained
	store.addAccount("400000/10/1", "0", TicketStatusResolved, "agent-2")  // reopened
	sink := &recordingSink{}
	o := newTestOrchestrator(store, sink, nil, 10)

	rows := []RawRow{
		feedRow("100000/10/1", "0"),
		feedRow("200000/10/1", "900"),
		feedRow("300000/10/1", "500"),
		feedRow("400000/10/1", "250"),
		feedRow("999999/99/9", "100"), // unknown customer
	}
	summary := o.RunSync(context.Background(), rows, "op-1", "feed.csv", "hash-1")

	require.True(t, summary.Success)
	assert.Equal(t, 5, summary.Processed)
	assert.Equal(t, 3, summary.Updated)
	assert.Equal(t, 1, summary.Maintained)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, 1, summary.Reopened)
	assert.Equal(t, 0, summary.Resolved, "resolution always waits for human confirmation")
	assert.Equal(t, summary.Processed, summary.Updated+summary.Maintained+summary.NotFound,
		"every processed record must land in exactly one bucket")
	assert.Empty(t, summary.Errors)

	require.NotNil(t, store.finalized)
	assert.Equal(t, summary.Processed, store.finalized.Processed)

	// One notification per non-maintained movement on an assigned ticket.
	require.Len(t, sink.calls, 3)
	types := map[NotificationType]int{}
	for _, call := range sink.calls {
		types[call.Type]++
	}
	assert.Equal(t, 1, types[NotificationArrearsCleared])
	assert.Equal(t, 2, types[NotificationArrearsIncreased], "increase plus reopen")
}

func TestRunSync_SkippedRowsLandInErrors(t *testing.T) {
	store := newFakeStore()
	store.addAccount("100000/10/1", "500", TicketStatusOpen, "agent-1")
	o := newTestOrchestrator(store, &recordingSink{}, nil, 10)

	rows := []RawRow{
		feedRow("100000/10/1", "400"),
		{"Amount Owed": "300"}, // no identifier
	}
	summary := o.RunSync(context.Background(), rows, "op-1", "feed.csv", "")

	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.Processed, "skipped rows are not processed")
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "row 2")
	assert.Contains(t, summary.Errors[0], "missing NRC")
}

func TestRunSync_ChunkFailureDoesNotStopRun(t *testing.T) {
	store := newFakeStore()
	for i := 1; i <= 6; i++ {
		store.addAccount(fmt.Sprintf("%06d/10/1", i), "500", TicketStatusOpen, "agent-1")
	}
	store.failApply[2] = errors.New("deadlock detected")
	o := newTestOrchestrator(store, &recordingSink{}, nil, 2)

	var rows []RawRow
	for i := 1; i <= 6; i++ {
		rows = append(rows, feedRow(fmt.Sprintf("%06d/10/1", i), "600"))
	}
	summary := o.RunSync(context.Background(), rows, "op-1", "feed.csv", "")

	require.True(t, summary.Success)
	// Chunks 1 and 3 committed, chunk 2 rolled back.
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 4, summary.Updated)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "rows 3-4 not applied")
	assert.Contains(t, summary.Errors[0], "deadlock detected")
	assert.Len(t, store.applied, 2, "failed chunk must not be persisted")
}

func TestRunSync_CancellationBetweenChunks(t *testing.T) {
	store := newFakeStore()
	for i := 1; i <= 4; i++ {
		store.addAccount(fmt.Sprintf("%06d/10/1", i), "500", TicketStatusOpen, "agent-1")
	}
	ctx, cancel := context.WithCancel(context.Background())
	store.onApply = func(call int) {
		if call == 1 {
			cancel()
		}
	}
	o := newTestOrchestrator(store, &recordingSink{}, nil, 2)

	var rows []RawRow
	for i := 1; i <= 4; i++ {
		rows = append(rows, feedRow(fmt.Sprintf("%06d/10/1", i), "600"))
	}
	summary := o.RunSync(ctx, rows, "op-1", "feed.csv", "")

	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.Processed, "first chunk stays committed")
	require.NotEmpty(t, summary.Errors)
	assert.Contains(t, summary.Errors[0], "run cancelled after 1 of 2 chunks")
	require.NotNil(t, store.finalized, "cancelled runs are still finalized for the audit trail")
	assert.Len(t, store.applied, 1)
}

func TestRunSync_DuplicateIdentifierLastWriteWins(t *testing.T) {
	store := newFakeStore()
	store.addAccount("100000/10/1", "500", TicketStatusOpen, "agent-1")
	o := newTestOrchestrator(store, &recordingSink{}, nil, 10)

	// Same NRC twice in one chunk with the same amount: the second record
	// must compare against the first record's post-state, not the stored
	// snapshot, so it classifies maintained.
	rows := []RawRow{
		feedRow("100000/10/1", "200"),
		feedRow("100000/10/1", "200"),
	}
	summary := o.RunSync(context.Background(), rows, "op-1", "feed.csv", "")

	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Updated, "first occurrence is the reduction")
	assert.Equal(t, 1, summary.Maintained, "second occurrence sees the refreshed snapshot")

	final := store.accounts["100000/10/1"]
	assert.True(t, final.Ticket.PreviousArrears.Equal(dec("200")))
}

func TestRunSync_DuplicateIdentifierAcrossChunks(t *testing.T) {
	store := newFakeStore()
	store.addAccount("100000/10/1", "500", TicketStatusOpen, "agent-1")
	o := newTestOrchestrator(store, &recordingSink{}, nil, 1)

	rows := []RawRow{
		feedRow("100000/10/1", "200"),
		feedRow("100000/10/1", "350"),
	}
	summary := o.RunSync(context.Background(), rows, "op-1", "feed.csv", "")

	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.Updated, "reduction then increase against the promoted overlay")
	final := store.accounts["100000/10/1"]
	assert.True(t, final.Ticket.PreviousArrears.Equal(dec("350")),
		"final snapshot = %s, want last record's amount", final.Ticket.PreviousArrears)
}

func TestRunSync_PublishesLifecycleEvents(t *testing.T) {
	store := newFakeStore()
	store.addAccount("100000/10/1", "500", TicketStatusOpen, "agent-1")
	pub := &recordingPublisher{}
	o := newTestOrchestrator(store, &recordingSink{}, pub, 10)

	o.RunSync(context.Background(), []RawRow{feedRow("100000/10/1", "300")}, "op-1", "feed.csv", "")

	require.NotEmpty(t, pub.events)
	assert.Equal(t, EventSyncStarted, pub.events[0])
	assert.Equal(t, EventSyncComplete, pub.events[len(pub.events)-1])
	assert.Contains(t, strings.Join(pub.events, ","), EventSyncProgress)
}

func TestApplier_StoreFailureYieldsNoCounts(t *testing.T) {
	store := newFakeStore()
	store.failApply[1] = errors.New("connection reset")
	applier := NewApplier(store, NewDispatcher(&recordingSink{}))

	decisions := []Decision{{
		Record:         SyncInputRecord{NRC: "100000/10/1", RowIndex: 5},
		Classification: ClassificationIncreased,
	}}
	result := applier.Apply(context.Background(), uuid.New(), decisions)

	assert.Zero(t, result.Processed)
	assert.Zero(t, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "rows 5-5 not applied")
}

func TestDispatcher_SkipsMaintainedAndUnassigned(t *testing.T) {
	sink := &recordingSink{}
	dispatcher := NewDispatcher(sink)

	maintained := Decide(record("500"), openTicketState("500"))
	dispatcher.Dispatch(context.Background(), maintained)
	assert.Empty(t, sink.calls, "no movement, no notification")

	state := openTicketState("500")
	state.Ticket.AssignedAgentID = ""
	increased := Decide(record("900"), state)
	dispatcher.Dispatch(context.Background(), increased)
	assert.Empty(t, sink.calls, "unassigned tickets are skipped")
}

func TestDispatcher_NotificationTypes(t *testing.T) {
	sink := &recordingSink{}
	dispatcher := NewDispatcher(sink)

	cases := []struct {
		amount string
		state  AccountState
		want   NotificationType
	}{
		{"0", openTicketState("500"), NotificationArrearsCleared},
		{"900", openTicketState("500"), NotificationArrearsIncreased},
		{"100", openTicketState("500"), NotificationArrearsReduced},
	}
	for _, c := range cases {
		dispatcher.Dispatch(context.Background(), Decide(record(c.amount), c.state))
	}
	require.Len(t, sink.calls, 3)
	for i, c := range cases {
		assert.Equal(t, c.want, sink.calls[i].Type)
		assert.Equal(t, "agent-1", sink.calls[i].AgentID)
	}

	// Reopening notifies as an increase with the ticket id attached.
	resolved := openTicketState("0")
	resolved.Ticket.Status = TicketStatusResolved
	dispatcher.Dispatch(context.Background(), Decide(record("400"), resolved))
	require.Len(t, sink.calls, 4)
	assert.Equal(t, NotificationArrearsIncreased, sink.calls[3].Type)
	assert.Equal(t, "ticket-1", sink.calls[3].TicketID)
}

func TestDispatcher_SinkFailureDoesNotPropagate(t *testing.T) {
	sink := &recordingSink{err: errors.New("insert failed")}
	applier := NewApplier(newFakeStoreWithAccount(), NewDispatcher(sink))

	decisions := []Decision{Decide(record("900"), openTicketState("500"))}
	result := applier.Apply(context.Background(), uuid.New(), decisions)

	assert.Equal(t, 1, result.Processed, "a missed notification never undoes the write")
	assert.Empty(t, result.Errors)
}

func newFakeStoreWithAccount() *fakeStore {
	store := newFakeStore()
	store.addAccount("123456/78/1", "500", TicketStatusOpen, "agent-1")
	return store
}
