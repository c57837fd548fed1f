package revocation

import (
	"context"
	"encoding/json"
	"fmt"

	"tickethub/pkg/db/option"
	"tickethub/pkg/errutil"
	"tickethub/pkg/gen"
	"tickethub/pkg/repository"
	"tickethub/services/ticket"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service initiates revocations. The local database is the source of truth:
// the ticket flips to revoked and the audit row is written in one
// transaction, while on-chain propagation is queued afterwards and may fail
// without undoing the local revoke.
type Service struct {
	db      *gorm.DB
	idgen   *gen.SnowflakeNode
	tickets repository.Repository[ticket.Ticket]
	logs    repository.Repository[Log]
	queue   repository.Repository[QueueItem]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	IDGen   *gen.SnowflakeNode
	Tickets repository.Repository[ticket.Ticket]
	Logs    repository.Repository[Log]
	Queue   repository.Repository[QueueItem]
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		idgen:   p.IDGen,
		tickets: p.Tickets,
		logs:    p.Logs,
		queue:   p.Queue,
	}
}

// RevokeTicket revokes one ticket and, when it heads a group, every valid
// child in the same request. Returns Conflict if the ticket is already
// revoked; there is no way to undo a revocation.
func (s *Service) RevokeTicket(ctx context.Context, ticketID, actor, reason string) (*RevokeSummary, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if reason == "" {
		return nil, errutil.BadRequest("revocation reason is required", nil)
	}

	target, err := s.tickets.FindOne(ctx, &ticket.Ticket{ID: ticketID})
	if err != nil {
		return nil, errutil.Internal("failed to load ticket", err)
	}
	if target == nil {
		return nil, errutil.NotFound("ticket not found", nil)
	}
	if target.Status == ticket.StatusRevoked {
		return nil, errutil.Conflict("ticket is already revoked", nil)
	}

	children, err := s.tickets.Find(ctx, &ticket.Ticket{Status: ticket.StatusValid},
		option.ApplyOperator(option.Condition{
			Field:    "group_parent_id",
			Operator: option.EQ,
			Value:    target.ID,
		}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load group members", err)
	}

	summary := &RevokeSummary{}
	var logIDs []pendingQueueRef

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ref, err := s.revokeOne(ctx, tx, target, actor, reason, nil)
		if err != nil {
			return err
		}
		summary.TicketsRevoked = append(summary.TicketsRevoked, target.ID)
		summary.AuditEntries++
		if ref != nil {
			logIDs = append(logIDs, *ref)
		}

		for _, child := range children {
			childReason := fmt.Sprintf("%s (revoked with group parent %s)", reason, target.ID)
			ref, err := s.revokeOne(ctx, tx, child, actor, childReason, &target.ID)
			if err != nil {
				return err
			}
			summary.TicketsRevoked = append(summary.TicketsRevoked, child.ID)
			summary.AuditEntries++
			if ref != nil {
				logIDs = append(logIDs, *ref)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errutil.Internal("failed to revoke ticket", err)
	}

	summary.GroupSize = len(summary.TicketsRevoked)
	summary.QueueEntries, summary.Warnings = s.enqueueAll(ctx, logIDs)
	return summary, nil
}

// RevokeByPurchases revokes every valid ticket belonging to the given
// purchases. Already revoked tickets are skipped and reported, they never
// abort the batch.
func (s *Service) RevokeByPurchases(ctx context.Context, purchaseIDs []string, actor, reason string) (*BatchSummary, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if len(purchaseIDs) == 0 {
		return nil, errutil.BadRequest("at least one purchase id is required", nil)
	}
	if reason == "" {
		return nil, errutil.BadRequest("revocation reason is required", nil)
	}

	summary := &BatchSummary{}
	var logIDs []pendingQueueRef

	for _, purchaseID := range purchaseIDs {
		members, err := s.tickets.Find(ctx, &ticket.Ticket{PurchaseID: purchaseID})
		if err != nil {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("purchase %s: failed to load tickets: %v", purchaseID, err))
			continue
		}
		if len(members) == 0 {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("purchase %s: no tickets found", purchaseID))
			continue
		}

		purchaseReason := fmt.Sprintf("%s (batch revocation of purchase %s)", reason, purchaseID)
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, member := range members {
				if member.Status == ticket.StatusRevoked {
					summary.TicketsSkipped = append(summary.TicketsSkipped, member.ID)
					continue
				}
				ref, err := s.revokeOne(ctx, tx, member, actor, purchaseReason, nil)
				if err != nil {
					return err
				}
				summary.TicketsRevoked = append(summary.TicketsRevoked, member.ID)
				summary.AuditEntries++
				if ref != nil {
					logIDs = append(logIDs, *ref)
				}
			}
			return nil
		})
		if err != nil {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("purchase %s: revocation failed: %v", purchaseID, err))
			continue
		}
		summary.PurchasesProcessed++
	}

	if summary.PurchasesProcessed == 0 {
		return nil, errutil.Internal("no purchases could be processed", nil,
			errutil.WithDetails(warningsToDetails(summary.Warnings)...))
	}

	queued, warnings := s.enqueueAll(ctx, logIDs)
	summary.QueueEntries = queued
	summary.Warnings = append(summary.Warnings, warnings...)
	return summary, nil
}

// pendingQueueRef carries the audit row that a queue item must reference,
// collected inside the transaction and enqueued after commit.
type pendingQueueRef struct {
	TicketID string
	LogID    string
}

// revokeOne flips a single ticket to revoked and writes its audit row inside
// the caller's transaction. It returns a queue reference when the ticket is
// ledger-linked, nil otherwise.
func (s *Service) revokeOne(ctx context.Context, tx *gorm.DB, t *ticket.Ticket, actor, reason string, groupParent *string) (*pendingQueueRef, error) {
	res := tx.Model(&ticket.Ticket{}).
		Where("id = ? AND status = ?", t.ID, ticket.StatusValid).
		Update("status", ticket.StatusRevoked)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("ticket %s was revoked concurrently", t.ID)
	}

	ledgerStatus := LedgerNotApplicable
	if t.LedgerLinked() {
		ledgerStatus = LedgerPending
	}

	meta := map[string]any{"purchase_id": t.PurchaseID}
	if groupParent != nil {
		meta["group_parent_id"] = *groupParent
	}
	raw, _ := json.Marshal(meta)

	entry := &Log{
		ID:           s.idgen.GenerateID(),
		TicketID:     t.ID,
		Actor:        actor,
		Reason:       reason,
		LedgerStatus: ledgerStatus,
		Metadata:     datatypes.JSON(raw),
	}
	if err := s.logs.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}

	if ledgerStatus != LedgerPending {
		return nil, nil
	}
	return &pendingQueueRef{TicketID: t.ID, LogID: entry.ID}, nil
}

// enqueueAll inserts queue items for the given audit rows. Failures are
// reported as warnings, never as errors: the local revocation already
// happened and the reconciler will catch anything the queue misses.
func (s *Service) enqueueAll(ctx context.Context, refs []pendingQueueRef) (int, []string) {
	var queued int
	var warnings []string

	for _, ref := range refs {
		item := &QueueItem{
			ID:       s.idgen.GenerateID(),
			TicketID: ref.TicketID,
			LogID:    ref.LogID,
			Status:   QueuePending,
		}
		if err := s.queue.Create(ctx, item); err != nil {
			zap.L().Warn("failed to enqueue ledger revocation",
				zap.String("ticket_id", ref.TicketID),
				zap.Error(err),
			)
			warnings = append(warnings,
				fmt.Sprintf("ticket %s revoked locally but not queued for ledger propagation: %v", ref.TicketID, err))
			continue
		}
		queued++
	}
	return queued, warnings
}

// ListQueue returns queue items, optionally filtered by status.
func (s *Service) ListQueue(ctx context.Context, status string, limit, offset int) ([]*QueueItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.queue.Find(ctx, &QueueItem{Status: QueueStatus(status)},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}

func warningsToDetails(warnings []string) []errutil.Detail {
	details := make([]errutil.Detail, 0, len(warnings))
	for _, w := range warnings {
		details = append(details, errutil.Detail{Field: "purchase_ids", Message: w})
	}
	return details
}
