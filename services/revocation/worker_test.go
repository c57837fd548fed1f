package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tickethub/pkg/chain"
	"tickethub/pkg/repository"
	"tickethub/services/testutil"
	"tickethub/services/ticket"
)

type workerFixture struct {
	worker  *Worker
	ledger  *testutil.FakeLedger
	tickets repository.Repository[ticket.Ticket]
	logs    repository.Repository[Log]
	queue   repository.Repository[QueueItem]
}

func newWorkerFixture(t *testing.T) *workerFixture {
	db := testutil.NewTestDB(t, &ticket.Ticket{}, &Log{}, &QueueItem{})

	f := &workerFixture{
		ledger:  testutil.NewFakeLedger(),
		tickets: repository.ProvideStore[ticket.Ticket](db),
		logs:    repository.ProvideStore[Log](db),
		queue:   repository.ProvideStore[QueueItem](db),
	}
	f.worker = &Worker{
		db:        db,
		ledger:    f.ledger,
		tickets:   f.tickets,
		logs:      f.logs,
		queue:     f.queue,
		batchSize: 10,
	}
	return f
}

func (f *workerFixture) seedQueued(t *testing.T, tk *ticket.Ticket, retries int) *QueueItem {
	t.Helper()
	if tk.Status == "" {
		tk.Status = ticket.StatusRevoked
	}
	require.NoError(t, f.tickets.Create(context.Background(), tk))

	entry := &Log{ID: "log-" + tk.ID, TicketID: tk.ID, Actor: "admin-1", Reason: "fraud", LedgerStatus: LedgerPending}
	require.NoError(t, f.logs.Create(context.Background(), entry))

	item := &QueueItem{
		ID:         "q-" + tk.ID,
		TicketID:   tk.ID,
		LogID:      entry.ID,
		Status:     QueuePending,
		RetryCount: retries,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.queue.Create(context.Background(), item))
	return item
}

func (f *workerFixture) item(t *testing.T, id string) *QueueItem {
	t.Helper()
	item, err := f.queue.FindOne(context.Background(), &QueueItem{ID: id})
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
}

func TestProcessBatchRevokesOnLedger(t *testing.T) {
	f := newWorkerFixture(t)
	f.ledger.Statuses[42] = chain.StatusRegistered
	f.seedQueued(t, linkedTicket("t-1", "p-1", "42"), 0)

	result, err := f.worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Fetched)
	require.Equal(t, 1, result.Completed)
	require.Equal(t, []uint64{42}, f.ledger.Revokes)

	item := f.item(t, "q-t-1")
	require.Equal(t, QueueCompleted, item.Status)
	require.NotNil(t, item.ProcessedAt)

	entry, err := f.logs.FindOne(context.Background(), &Log{ID: "log-t-1"})
	require.NoError(t, err)
	require.Equal(t, LedgerCompleted, entry.LedgerStatus)
	require.NotNil(t, entry.LedgerTxHash)

	tk, err := f.tickets.FindOne(context.Background(), &ticket.Ticket{ID: "t-1"})
	require.NoError(t, err)
	require.NotNil(t, tk.SyncStatusCode)
	require.Equal(t, int(chain.StatusRevoked), *tk.SyncStatusCode)
	require.NotNil(t, tk.LastSyncAt)
}

func TestProcessBatchAlreadyRevokedCompletesWithoutWrite(t *testing.T) {
	f := newWorkerFixture(t)
	f.ledger.Statuses[42] = chain.StatusRevoked
	f.seedQueued(t, linkedTicket("t-1", "p-1", "42"), 0)

	result, err := f.worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Completed)
	require.Empty(t, f.ledger.Revokes)

	item := f.item(t, "q-t-1")
	require.Equal(t, QueueCompleted, item.Status)

	entry, err := f.logs.FindOne(context.Background(), &Log{ID: "log-t-1"})
	require.NoError(t, err)
	require.Equal(t, LedgerCompleted, entry.LedgerStatus)
	require.Nil(t, entry.LedgerTxHash)
}

func TestProcessBatchRequeuesTransientFailure(t *testing.T) {
	f := newWorkerFixture(t)
	f.ledger.Statuses[42] = chain.StatusRegistered
	f.ledger.RevokeErr = errors.New("rpc timeout")
	f.seedQueued(t, linkedTicket("t-1", "p-1", "42"), 0)

	result, err := f.worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Requeued)

	item := f.item(t, "q-t-1")
	require.Equal(t, QueuePending, item.Status)
	require.Equal(t, 1, item.RetryCount)
	require.NotNil(t, item.ErrorMessage)
	require.Contains(t, *item.ErrorMessage, "rpc timeout")
}

func TestProcessBatchParksAfterRetryCeiling(t *testing.T) {
	f := newWorkerFixture(t)
	f.ledger.Statuses[42] = chain.StatusRegistered
	f.ledger.RevokeErr = errors.New("rpc timeout")
	f.seedQueued(t, linkedTicket("t-1", "p-1", "42"), maxRetries-1)

	result, err := f.worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)

	item := f.item(t, "q-t-1")
	require.Equal(t, QueueFailed, item.Status)
	require.Equal(t, maxRetries, item.RetryCount)
	require.NotNil(t, item.ProcessedAt)

	entry, err := f.logs.FindOne(context.Background(), &Log{ID: "log-t-1"})
	require.NoError(t, err)
	require.Equal(t, LedgerFailed, entry.LedgerStatus)
	require.NotNil(t, entry.LedgerError)

	// a parked item never comes back
	again, err := f.worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, again.Fetched)
}

func TestProcessBatchUnlinkedTicketCompletes(t *testing.T) {
	f := newWorkerFixture(t)
	f.seedQueued(t, &ticket.Ticket{ID: "t-1", PurchaseID: "p-1"}, 0)

	result, err := f.worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Completed)
	require.Empty(t, f.ledger.Revokes)

	entry, err := f.logs.FindOne(context.Background(), &Log{ID: "log-t-1"})
	require.NoError(t, err)
	require.Equal(t, LedgerNotApplicable, entry.LedgerStatus)
}

func TestProcessBatchSkipsClaimedItems(t *testing.T) {
	f := newWorkerFixture(t)
	f.ledger.Statuses[42] = chain.StatusRegistered
	item := f.seedQueued(t, linkedTicket("t-1", "p-1", "42"), 0)

	// simulate another batch claiming the item between fetch and claim
	claimed, err := f.worker.claim(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = f.worker.claim(context.Background(), item.ID)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestProcessBatchHonorsBatchSizeFIFO(t *testing.T) {
	f := newWorkerFixture(t)
	f.worker.batchSize = 2

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"t-1", "t-2", "t-3"} {
		tk := linkedTicket(id, "p-1", string(rune('1'+i)))
		require.NoError(t, f.tickets.Create(context.Background(), tk))
		entry := &Log{ID: "log-" + id, TicketID: id, LedgerStatus: LedgerPending}
		require.NoError(t, f.logs.Create(context.Background(), entry))
		require.NoError(t, f.queue.Create(context.Background(), &QueueItem{
			ID:        "q-" + id,
			TicketID:  id,
			LogID:     entry.ID,
			Status:    QueuePending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
		f.ledger.Statuses[uint64(i+1)] = chain.StatusRegistered
	}

	result, err := f.worker.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Fetched)
	require.Equal(t, []uint64{1, 2}, f.ledger.Revokes)

	// oldest two are done, the third is still pending
	require.Equal(t, QueuePending, f.item(t, "q-t-3").Status)
}
