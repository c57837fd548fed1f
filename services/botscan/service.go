package botscan

import (
	"context"
	"fmt"
	"time"

	"tickethub/pkg/errutil"
	"tickethub/services/revocation"
	"tickethub/services/ticket"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultWindow    = 10 * time.Minute
	defaultThreshold = 5
)

// Service scans recent purchase activity for bot-like buying patterns:
// many purchases by one user inside a short window.
type Service struct {
	db      *gorm.DB
	revoker *revocation.Service
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Revoker *revocation.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, revoker: p.Revoker}
}

type ScanParams struct {
	Window     time.Duration
	Threshold  int
	AutoRevoke bool
	Actor      string
}

type SuspiciousUser struct {
	UserID      string   `json:"user_id"`
	Purchases   int      `json:"purchases"`
	Tickets     int      `json:"tickets"`
	PurchaseIDs []string `json:"purchase_ids"`
}

type ScanReport struct {
	Window         string                   `json:"window"`
	Threshold      int                      `json:"threshold"`
	PurchasesSeen  int                      `json:"purchases_seen"`
	Suspicious     []SuspiciousUser         `json:"suspicious"`
	TicketsFlagged int                      `json:"tickets_flagged"`
	Revocation     *revocation.BatchSummary `json:"revocation,omitempty"`
}

// Scan groups purchases inside the window per user and flags everyone at or
// above the threshold. Flagged users' tickets are marked so the verifier can
// audit them with filter flagged_only; with AutoRevoke set their purchases
// are revoked outright.
func (s *Service) Scan(ctx context.Context, params ScanParams) (*ScanReport, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if params.Window <= 0 {
		params.Window = defaultWindow
	}
	if params.Threshold <= 0 {
		params.Threshold = defaultThreshold
	}

	cutoff := time.Now().UTC().Add(-params.Window)
	var purchases []*ticket.PurchaseHistory
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", cutoff).
		Order("created_at ASC").
		Find(&purchases).Error
	if err != nil {
		return nil, errutil.Internal("failed to load purchase history", err)
	}

	byUser := make(map[string][]*ticket.PurchaseHistory)
	for _, p := range purchases {
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	report := &ScanReport{
		Window:        params.Window.String(),
		Threshold:     params.Threshold,
		PurchasesSeen: len(purchases),
	}

	var flaggedPurchaseIDs []string
	for userID, group := range byUser {
		if len(group) < params.Threshold {
			continue
		}

		suspect := SuspiciousUser{UserID: userID, Purchases: len(group)}
		for _, p := range group {
			suspect.Tickets += p.TicketCount
			suspect.PurchaseIDs = append(suspect.PurchaseIDs, p.ID)
		}
		report.Suspicious = append(report.Suspicious, suspect)
		flaggedPurchaseIDs = append(flaggedPurchaseIDs, suspect.PurchaseIDs...)
	}

	if len(flaggedPurchaseIDs) > 0 {
		flagged, err := s.flagTickets(ctx, flaggedPurchaseIDs)
		if err != nil {
			return nil, errutil.Internal("failed to flag tickets", err)
		}
		report.TicketsFlagged = flagged

		zap.L().Info("bot scan flagged tickets",
			zap.Int("suspicious_users", len(report.Suspicious)),
			zap.Int("tickets_flagged", flagged),
		)
	}

	if params.AutoRevoke && len(flaggedPurchaseIDs) > 0 {
		actor := params.Actor
		if actor == "" {
			actor = "system"
		}
		reason := fmt.Sprintf("automated bot activity detection (%d+ purchases within %s)",
			params.Threshold, params.Window)

		summary, err := s.revoker.RevokeByPurchases(ctx, flaggedPurchaseIDs, actor, reason)
		if err != nil {
			zap.L().Error("bot scan auto-revocation failed", zap.Error(err))
		} else {
			report.Revocation = summary
		}
	}

	return report, nil
}

func (s *Service) flagTickets(ctx context.Context, purchaseIDs []string) (int, error) {
	res := s.db.WithContext(ctx).Model(&ticket.Ticket{}).
		Where("purchase_id IN ?", purchaseIDs).
		Update("flagged", true)
	return int(res.RowsAffected), res.Error
}
