package revocation

import (
	"context"
	"fmt"
	"time"

	"tickethub/pkg/chain"
	"tickethub/pkg/config"
	"tickethub/pkg/db/option"
	"tickethub/pkg/repository"
	"tickethub/services/ticket"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Worker drains the revocation queue against the ledger. ProcessBatch is the
// only entry point and is safe to invoke from the scheduler, a task handler
// or an admin endpoint concurrently: each item is claimed with a conditional
// update, so two overlapping batches never process the same item twice.
type Worker struct {
	db        *gorm.DB
	ledger    chain.Ledger
	tickets   repository.Repository[ticket.Ticket]
	logs      repository.Repository[Log]
	queue     repository.Repository[QueueItem]
	batchSize int
}

type WorkerParams struct {
	fx.In
	Config  *config.Config
	DB      *gorm.DB
	Ledger  chain.Ledger
	Tickets repository.Repository[ticket.Ticket]
	Logs    repository.Repository[Log]
	Queue   repository.Repository[QueueItem]
}

func NewWorker(p WorkerParams) *Worker {
	batch := p.Config.Worker.QueueBatchSize
	if batch <= 0 {
		batch = 10
	}
	return &Worker{
		db:        p.DB,
		ledger:    p.Ledger,
		tickets:   p.Tickets,
		logs:      p.Logs,
		queue:     p.Queue,
		batchSize: batch,
	}
}

type BatchResult struct {
	Fetched   int `json:"fetched"`
	Completed int `json:"completed"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProcessBatch picks up to one batch of pending items in FIFO order and
// processes each one to a terminal or retryable state.
func (w *Worker) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	items, err := w.queue.Find(ctx, &QueueItem{Status: QueuePending},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
		option.WithLimit(w.batchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending queue items: %w", err)
	}

	result := &BatchResult{Fetched: len(items)}
	for _, item := range items {
		claimed, err := w.claim(ctx, item.ID)
		if err != nil {
			zap.L().Error("failed to claim queue item", zap.String("item_id", item.ID), zap.Error(err))
			result.Skipped++
			continue
		}
		if !claimed {
			// another batch got here first
			result.Skipped++
			continue
		}

		switch outcome := w.process(ctx, item); outcome {
		case outcomeCompleted:
			result.Completed++
		case outcomeRequeued:
			result.Requeued++
		case outcomeFailed:
			result.Failed++
		}
	}

	zap.L().Info("revocation queue batch processed",
		zap.Int("fetched", result.Fetched),
		zap.Int("completed", result.Completed),
		zap.Int("requeued", result.Requeued),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// claim transitions an item pending -> processing. The status guard in the
// WHERE clause is what makes concurrent batches safe.
func (w *Worker) claim(ctx context.Context, itemID string) (bool, error) {
	res := w.db.WithContext(ctx).Model(&QueueItem{}).
		Where("id = ? AND status = ?", itemID, QueuePending).
		Update("status", QueueProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRequeued
	outcomeFailed
)

func (w *Worker) process(ctx context.Context, item *QueueItem) outcome {
	t, err := w.tickets.FindOne(ctx, &ticket.Ticket{ID: item.TicketID})
	if err != nil {
		return w.fail(ctx, item, fmt.Errorf("failed to load ticket: %w", err))
	}
	if t == nil {
		return w.fail(ctx, item, fmt.Errorf("ticket %s no longer exists", item.TicketID))
	}

	// Items are only created for ledger-linked tickets, but the linkage can
	// have been cleared by a later sync. Complete rather than retry.
	if !t.LedgerLinked() {
		w.complete(ctx, item, "ticket has no ledger linkage")
		w.updateLog(ctx, item.LogID, LedgerNotApplicable, nil, nil)
		return outcomeCompleted
	}

	tokenID, err := t.LedgerTokenID()
	if err != nil {
		return w.fail(ctx, item, err)
	}

	revoked, err := w.ledger.IsRevoked(ctx, tokenID)
	if err != nil {
		return w.fail(ctx, item, fmt.Errorf("ledger isRevoked read failed: %w", err))
	}
	if revoked {
		w.complete(ctx, item, "token already revoked on ledger")
		w.updateLog(ctx, item.LogID, LedgerCompleted, nil, nil)
		w.markSynced(ctx, t.ID)
		return outcomeCompleted
	}

	tx, err := w.ledger.Revoke(ctx, tokenID)
	if err != nil {
		return w.fail(ctx, item, fmt.Errorf("ledger revoke failed: %w", err))
	}

	w.complete(ctx, item, "")
	w.updateLog(ctx, item.LogID, LedgerCompleted, &tx.TxHash, nil)
	w.markSynced(ctx, t.ID)

	zap.L().Info("ticket revoked on ledger",
		zap.String("ticket_id", t.ID),
		zap.Uint64("token_id", tokenID),
		zap.String("tx_hash", tx.TxHash),
		zap.Uint64("block", tx.BlockNumber),
	)
	return outcomeCompleted
}

// fail either requeues the item for a later batch or, once the retry ceiling
// is hit, parks it as failed and marks the audit row accordingly.
func (w *Worker) fail(ctx context.Context, item *QueueItem, cause error) outcome {
	zap.L().Warn("revocation queue item failed",
		zap.String("item_id", item.ID),
		zap.String("ticket_id", item.TicketID),
		zap.Int("retry_count", item.RetryCount+1),
		zap.Error(cause),
	)

	msg := cause.Error()
	retries := item.RetryCount + 1

	if retries >= maxRetries {
		now := time.Now().UTC()
		if err := w.queue.Update(ctx, item.ID, map[string]any{
			"status":        QueueFailed,
			"retry_count":   retries,
			"error_message": msg,
			"processed_at":  now,
		}); err != nil {
			zap.L().Error("failed to park queue item", zap.String("item_id", item.ID), zap.Error(err))
		}
		w.updateLog(ctx, item.LogID, LedgerFailed, nil, &msg)
		return outcomeFailed
	}

	if err := w.queue.Update(ctx, item.ID, map[string]any{
		"status":        QueuePending,
		"retry_count":   retries,
		"error_message": msg,
	}); err != nil {
		zap.L().Error("failed to requeue queue item", zap.String("item_id", item.ID), zap.Error(err))
	}
	return outcomeRequeued
}

func (w *Worker) complete(ctx context.Context, item *QueueItem, note string) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       QueueCompleted,
		"processed_at": now,
	}
	if note != "" {
		updates["error_message"] = note
	}
	if err := w.queue.Update(ctx, item.ID, updates); err != nil {
		zap.L().Error("failed to complete queue item", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func (w *Worker) updateLog(ctx context.Context, logID string, status LedgerStatus, txHash *string, ledgerErr *string) {
	updates := map[string]any{"ledger_status": status}
	if txHash != nil {
		updates["ledger_tx_hash"] = *txHash
	}
	if ledgerErr != nil {
		updates["ledger_error"] = *ledgerErr
	}
	if err := w.logs.Update(ctx, logID, updates); err != nil {
		zap.L().Error("failed to update revocation log", zap.String("log_id", logID), zap.Error(err))
	}
}

// markSynced records the confirmed on-chain state on the ticket so the next
// reconciliation pass does not flag it.
func (w *Worker) markSynced(ctx context.Context, ticketID string) {
	now := time.Now().UTC()
	code := int(chain.StatusRevoked)
	if err := w.tickets.Update(ctx, ticketID, map[string]any{
		"sync_status_code":    code,
		"last_sync_timestamp": now,
	}); err != nil {
		zap.L().Error("failed to mark ticket synced", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}
