package botscan

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tickethub/pkg/gen"
	"tickethub/pkg/repository"
	"tickethub/services/revocation"
	"tickethub/services/testutil"
	"tickethub/services/ticket"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type scanFixture struct {
	svc       *Service
	db        *gorm.DB
	tickets   repository.Repository[ticket.Ticket]
	purchases repository.Repository[ticket.PurchaseHistory]
}

func newScanFixture(t *testing.T) *scanFixture {
	db := testutil.NewTestDB(t, &ticket.Ticket{}, &ticket.PurchaseHistory{},
		&revocation.Log{}, &revocation.QueueItem{})

	idgen, err := gen.NewSnowflakeNode()
	require.NoError(t, err)

	revoker := revocation.NewService(revocation.ServiceParams{
		DB:      db,
		IDGen:   idgen,
		Tickets: repository.ProvideStore[ticket.Ticket](db),
		Logs:    repository.ProvideStore[revocation.Log](db),
		Queue:   repository.ProvideStore[revocation.QueueItem](db),
	})

	return &scanFixture{
		svc:       NewService(ServiceParams{DB: db, Revoker: revoker}),
		db:        db,
		tickets:   repository.ProvideStore[ticket.Ticket](db),
		purchases: repository.ProvideStore[ticket.PurchaseHistory](db),
	}
}

// seedBurst creates n purchases for one user inside the window, each with a
// single valid ticket.
func (f *scanFixture) seedBurst(t *testing.T, userID string, n int, age time.Duration) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pid := fmt.Sprintf("%s-p-%d", userID, i)
		require.NoError(t, f.purchases.Create(context.Background(), &ticket.PurchaseHistory{
			ID:          pid,
			UserID:      userID,
			EventID:     "ev-1",
			TicketCount: 1,
			CreatedAt:   time.Now().UTC().Add(-age),
		}))
		require.NoError(t, f.tickets.Create(context.Background(), &ticket.Ticket{
			ID:         pid + "-t",
			EventID:    "ev-1",
			OwnerID:    userID,
			PurchaseID: pid,
			Status:     ticket.StatusValid,
			MintStatus: ticket.MintNone,
		}))
		ids = append(ids, pid)
	}
	return ids
}

func TestScanFlagsBurstBuyers(t *testing.T) {
	f := newScanFixture(t)
	f.seedBurst(t, "bot-user", 6, time.Minute)
	f.seedBurst(t, "normal-user", 2, time.Minute)

	report, err := f.svc.Scan(context.Background(), ScanParams{
		Window:    10 * time.Minute,
		Threshold: 5,
	})
	require.NoError(t, err)
	require.Equal(t, 8, report.PurchasesSeen)
	require.Len(t, report.Suspicious, 1)
	require.Equal(t, "bot-user", report.Suspicious[0].UserID)
	require.Equal(t, 6, report.Suspicious[0].Purchases)
	require.Equal(t, 6, report.TicketsFlagged)

	var flagged int64
	require.NoError(t, f.db.Model(&ticket.Ticket{}).Where("flagged = ?", true).Count(&flagged).Error)
	require.EqualValues(t, 6, flagged)
}

func TestScanIgnoresPurchasesOutsideWindow(t *testing.T) {
	f := newScanFixture(t)
	f.seedBurst(t, "bot-user", 6, 2*time.Hour)

	report, err := f.svc.Scan(context.Background(), ScanParams{
		Window:    10 * time.Minute,
		Threshold: 5,
	})
	require.NoError(t, err)
	require.Zero(t, report.PurchasesSeen)
	require.Empty(t, report.Suspicious)
	require.Zero(t, report.TicketsFlagged)
}

func TestScanAutoRevokeRevokesFlaggedPurchases(t *testing.T) {
	f := newScanFixture(t)
	f.seedBurst(t, "bot-user", 5, time.Minute)

	report, err := f.svc.Scan(context.Background(), ScanParams{
		Window:     10 * time.Minute,
		Threshold:  5,
		AutoRevoke: true,
	})
	require.NoError(t, err)
	require.NotNil(t, report.Revocation)
	require.Len(t, report.Revocation.TicketsRevoked, 5)

	var revoked int64
	require.NoError(t, f.db.Model(&ticket.Ticket{}).
		Where("status = ?", ticket.StatusRevoked).Count(&revoked).Error)
	require.EqualValues(t, 5, revoked)

	var logs int64
	require.NoError(t, f.db.Model(&revocation.Log{}).Count(&logs).Error)
	require.EqualValues(t, 5, logs)
}

func TestScanDefaults(t *testing.T) {
	f := newScanFixture(t)
	f.seedBurst(t, "bot-user", defaultThreshold, time.Minute)

	report, err := f.svc.Scan(context.Background(), ScanParams{})
	require.NoError(t, err)
	require.Equal(t, defaultThreshold, report.Threshold)
	require.Len(t, report.Suspicious, 1)
}
