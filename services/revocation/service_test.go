package revocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tickethub/pkg/errutil"
	"tickethub/pkg/gen"
	"tickethub/pkg/repository"
	"tickethub/services/testutil"
	"tickethub/services/ticket"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc     *Service
	tickets repository.Repository[ticket.Ticket]
	logs    repository.Repository[Log]
	queue   repository.Repository[QueueItem]
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t, &ticket.Ticket{}, &Log{}, &QueueItem{})

	idgen, err := gen.NewSnowflakeNode()
	require.NoError(t, err)

	f := &fixture{
		tickets: repository.ProvideStore[ticket.Ticket](db),
		logs:    repository.ProvideStore[Log](db),
		queue:   repository.ProvideStore[QueueItem](db),
	}
	f.svc = &Service{
		db:      db,
		idgen:   idgen,
		tickets: f.tickets,
		logs:    f.logs,
		queue:   f.queue,
	}
	return f
}

func strptr(s string) *string { return &s }

func seedTicket(t *testing.T, f *fixture, tk *ticket.Ticket) {
	t.Helper()
	if tk.Status == "" {
		tk.Status = ticket.StatusValid
	}
	if tk.MintStatus == "" {
		tk.MintStatus = ticket.MintNone
	}
	require.NoError(t, f.tickets.Create(context.Background(), tk))
}

func linkedTicket(id, purchaseID, tokenID string) *ticket.Ticket {
	return &ticket.Ticket{
		ID:               id,
		EventID:          "ev-1",
		OwnerID:          "u-1",
		PurchaseID:       purchaseID,
		ContractAddress:  strptr("0xcontract"),
		TokenID:          strptr(tokenID),
		LedgerRegistered: true,
		MintStatus:       ticket.MintMinted,
	}
}

func TestRevokeTicketNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RevokeTicket(context.Background(), "missing", "admin-1", "fraud")
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Code)
}

func TestRevokeTicketAlreadyRevokedConflicts(t *testing.T) {
	f := newFixture(t)
	seedTicket(t, f, &ticket.Ticket{ID: "t-1", Status: ticket.StatusRevoked})

	_, err := f.svc.RevokeTicket(context.Background(), "t-1", "admin-1", "fraud")
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusConflict, be.Code)
}

func TestRevokeTicketRequiresReason(t *testing.T) {
	f := newFixture(t)
	seedTicket(t, f, &ticket.Ticket{ID: "t-1"})

	_, err := f.svc.RevokeTicket(context.Background(), "t-1", "admin-1", "")
	require.Error(t, err)
}

func TestRevokeUnlinkedTicketSkipsQueue(t *testing.T) {
	f := newFixture(t)
	seedTicket(t, f, &ticket.Ticket{ID: "t-1", PurchaseID: "p-1"})

	summary, err := f.svc.RevokeTicket(context.Background(), "t-1", "admin-1", "fraud")
	require.NoError(t, err)
	require.Equal(t, []string{"t-1"}, summary.TicketsRevoked)
	require.Equal(t, 1, summary.GroupSize)
	require.Equal(t, 1, summary.AuditEntries)
	require.Equal(t, 0, summary.QueueEntries)

	updated, err := f.tickets.FindOne(context.Background(), &ticket.Ticket{ID: "t-1"})
	require.NoError(t, err)
	require.Equal(t, ticket.StatusRevoked, updated.Status)

	logs, err := f.logs.Find(context.Background(), &Log{TicketID: "t-1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, LedgerNotApplicable, logs[0].LedgerStatus)
	require.Equal(t, "admin-1", logs[0].Actor)

	count, err := f.queue.Count(context.Background(), &QueueItem{})
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRevokeLinkedTicketEnqueues(t *testing.T) {
	f := newFixture(t)
	seedTicket(t, f, linkedTicket("t-1", "p-1", "42"))

	summary, err := f.svc.RevokeTicket(context.Background(), "t-1", "admin-1", "fraud")
	require.NoError(t, err)
	require.Equal(t, 1, summary.QueueEntries)
	require.Empty(t, summary.Warnings)

	logs, err := f.logs.Find(context.Background(), &Log{TicketID: "t-1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, LedgerPending, logs[0].LedgerStatus)

	items, err := f.queue.Find(context.Background(), &QueueItem{TicketID: "t-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, QueuePending, items[0].Status)
	require.Equal(t, logs[0].ID, items[0].LogID)
	require.Zero(t, items[0].RetryCount)
}

func TestRevokeTicketCascadesToGroup(t *testing.T) {
	f := newFixture(t)
	seedTicket(t, f, linkedTicket("parent", "p-1", "1"))
	child1 := linkedTicket("child-1", "p-1", "2")
	child1.GroupParentID = strptr("parent")
	seedTicket(t, f, child1)
	child2 := &ticket.Ticket{ID: "child-2", PurchaseID: "p-1", GroupParentID: strptr("parent")}
	seedTicket(t, f, child2)
	revokedChild := &ticket.Ticket{ID: "child-3", PurchaseID: "p-1", GroupParentID: strptr("parent"), Status: ticket.StatusRevoked}
	seedTicket(t, f, revokedChild)

	summary, err := f.svc.RevokeTicket(context.Background(), "parent", "admin-1", "fraud ring")
	require.NoError(t, err)

	// parent plus the two valid children; the revoked child is untouched
	require.ElementsMatch(t, []string{"parent", "child-1", "child-2"}, summary.TicketsRevoked)
	require.Equal(t, 3, summary.GroupSize)
	require.Equal(t, 3, summary.AuditEntries)
	// only the ledger-linked tickets reach the queue
	require.Equal(t, 2, summary.QueueEntries)

	childLogs, err := f.logs.Find(context.Background(), &Log{TicketID: "child-1"})
	require.NoError(t, err)
	require.Len(t, childLogs, 1)
	require.Contains(t, childLogs[0].Reason, "parent")

	unlinkLogs, err := f.logs.Find(context.Background(), &Log{TicketID: "child-2"})
	require.NoError(t, err)
	require.Len(t, unlinkLogs, 1)
	require.Equal(t, LedgerNotApplicable, unlinkLogs[0].LedgerStatus)
}

func TestRevokeByPurchasesSkipsRevokedAndReportsUnknown(t *testing.T) {
	f := newFixture(t)
	seedTicket(t, f, linkedTicket("t-1", "p-1", "1"))
	seedTicket(t, f, &ticket.Ticket{ID: "t-2", PurchaseID: "p-1", Status: ticket.StatusRevoked})
	seedTicket(t, f, &ticket.Ticket{ID: "t-3", PurchaseID: "p-2"})

	summary, err := f.svc.RevokeByPurchases(context.Background(),
		[]string{"p-1", "p-2", "p-unknown"}, "admin-1", "chargeback")
	require.NoError(t, err)

	require.Equal(t, 2, summary.PurchasesProcessed)
	require.ElementsMatch(t, []string{"t-1", "t-3"}, summary.TicketsRevoked)
	require.Equal(t, []string{"t-2"}, summary.TicketsSkipped)
	require.Equal(t, 1, summary.QueueEntries)
	require.Len(t, summary.Warnings, 1)
	require.Contains(t, summary.Warnings[0], "p-unknown")
}

func TestRevokeByPurchasesAllUnknownFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RevokeByPurchases(context.Background(), []string{"p-x"}, "admin-1", "chargeback")
	require.Error(t, err)
}
