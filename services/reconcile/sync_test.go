package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tickethub/pkg/chain"
	"tickethub/pkg/gen"
	"tickethub/pkg/repository"
	"tickethub/services/testutil"
	"tickethub/services/ticket"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type syncFixture struct {
	rec     *Reconciler
	ledger  *testutil.FakeLedger
	tickets repository.Repository[ticket.Ticket]
	reports repository.Repository[SyncReport]
}

func newSyncFixture(t *testing.T) *syncFixture {
	db := testutil.NewTestDB(t, &ticket.Ticket{}, &SyncReport{})

	idgen, err := gen.NewSnowflakeNode()
	require.NoError(t, err)

	f := &syncFixture{
		ledger:  testutil.NewFakeLedger(),
		tickets: repository.ProvideStore[ticket.Ticket](db),
		reports: repository.ProvideStore[SyncReport](db),
	}
	f.rec = &Reconciler{
		db:        db,
		idgen:     idgen,
		ledger:    f.ledger,
		tickets:   f.tickets,
		reports:   f.reports,
		batchSize: 100,
	}
	return f
}

func strptr(s string) *string { return &s }

func timeptr(ts time.Time) *time.Time { return &ts }

func linked(id, tokenID string) *ticket.Ticket {
	return &ticket.Ticket{
		ID:               id,
		EventID:          "ev-1",
		OwnerID:          "u-1",
		Status:           ticket.StatusValid,
		ContractAddress:  strptr("0xcontract"),
		TokenID:          strptr(tokenID),
		LedgerRegistered: true,
		MintStatus:       ticket.MintMinted,
	}
}

func TestSyncPullsRevokedStateFromLedger(t *testing.T) {
	f := newSyncFixture(t)
	f.ledger.Statuses[101] = chain.StatusRevoked
	require.NoError(t, f.tickets.Create(context.Background(), linked("t-101", "101")))

	result, err := f.rec.Run(context.Background(), 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 1, result.Discrepancies)
	require.Zero(t, result.Failures)

	updated, err := f.tickets.FindOne(context.Background(), &ticket.Ticket{ID: "t-101"})
	require.NoError(t, err)
	require.Equal(t, ticket.StatusRevoked, updated.Status)
	require.True(t, updated.LedgerRegistered)
	require.NotNil(t, updated.SyncStatusCode)
	require.Equal(t, int(chain.StatusRevoked), *updated.SyncStatusCode)
	require.NotNil(t, updated.LastSyncAt)

	report, err := f.reports.FindOne(context.Background(), &SyncReport{ID: result.ReportID})
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Equal(t, 1, report.Discrepancies)
}

func TestSyncIsIdempotentWithinStaleWindow(t *testing.T) {
	f := newSyncFixture(t)
	f.ledger.Statuses[101] = chain.StatusRevoked
	require.NoError(t, f.tickets.Create(context.Background(), linked("t-101", "101")))

	first, err := f.rec.Run(context.Background(), 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.Discrepancies)

	// just synced, so the second pass selects nothing
	second, err := f.rec.Run(context.Background(), 0, false)
	require.NoError(t, err)
	require.Zero(t, second.Checked)

	// force re-checks but finds nothing left to change
	forced, err := f.rec.Run(context.Background(), 0, true)
	require.NoError(t, err)
	require.Equal(t, 1, forced.Checked)
	require.Zero(t, forced.Discrepancies)
}

func TestSyncSelectsOnlyStaleTickets(t *testing.T) {
	f := newSyncFixture(t)
	f.ledger.Statuses[1] = chain.StatusRegistered
	f.ledger.Statuses[2] = chain.StatusRegistered

	stale := linked("t-stale", "1")
	stale.LastSyncAt = timeptr(time.Now().UTC().Add(-2 * time.Hour))
	require.NoError(t, f.tickets.Create(context.Background(), stale))

	fresh := linked("t-fresh", "2")
	fresh.LastSyncAt = timeptr(time.Now().UTC().Add(-5 * time.Minute))
	require.NoError(t, f.tickets.Create(context.Background(), fresh))

	unlinked := &ticket.Ticket{ID: "t-unlinked", Status: ticket.StatusValid}
	require.NoError(t, f.tickets.Create(context.Background(), unlinked))

	result, err := f.rec.Run(context.Background(), 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, "t-stale", result.Items[0].TicketID)
}

func TestSyncPrefersNeverSyncedTickets(t *testing.T) {
	f := newSyncFixture(t)
	f.ledger.Statuses[1] = chain.StatusRegistered
	f.ledger.Statuses[2] = chain.StatusRegistered

	stale := linked("t-stale", "1")
	stale.LastSyncAt = timeptr(time.Now().UTC().Add(-3 * time.Hour))
	require.NoError(t, f.tickets.Create(context.Background(), stale))

	never := linked("t-never", "2")
	require.NoError(t, f.tickets.Create(context.Background(), never))

	// under a limit of 1 the never-synced ticket wins over the merely stale one
	result, err := f.rec.Run(context.Background(), 1, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, "t-never", result.Items[0].TicketID)
}

func TestSyncClearsRegistrationForUnknownToken(t *testing.T) {
	f := newSyncFixture(t)
	// token 7 was never registered on the ledger
	tk := linked("t-7", "7")
	require.NoError(t, f.tickets.Create(context.Background(), tk))

	result, err := f.rec.Run(context.Background(), 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Discrepancies)

	updated, err := f.tickets.FindOne(context.Background(), &ticket.Ticket{ID: "t-7"})
	require.NoError(t, err)
	require.False(t, updated.LedgerRegistered)
	// local status is kept, only the registration flag follows the ledger
	require.Equal(t, ticket.StatusValid, updated.Status)
}

func TestSyncPromotesMintStatus(t *testing.T) {
	f := newSyncFixture(t)
	f.ledger.Statuses[3] = chain.StatusRegistered

	tk := linked("t-3", "3")
	tk.MintStatus = ticket.MintPending
	tk.LedgerRegistered = false
	require.NoError(t, f.tickets.Create(context.Background(), tk))

	_, err := f.rec.Run(context.Background(), 0, false)
	require.NoError(t, err)

	updated, err := f.tickets.FindOne(context.Background(), &ticket.Ticket{ID: "t-3"})
	require.NoError(t, err)
	require.Equal(t, ticket.MintMinted, updated.MintStatus)
	require.True(t, updated.LedgerRegistered)
}

func TestSyncRecordsPerTicketFailures(t *testing.T) {
	f := newSyncFixture(t)
	bad := linked("t-bad", "not-a-number")
	require.NoError(t, f.tickets.Create(context.Background(), bad))

	result, err := f.rec.Run(context.Background(), 0, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 1, result.Failures)
	require.Zero(t, result.Discrepancies)
	require.NotEmpty(t, result.Items[0].Error)
}
