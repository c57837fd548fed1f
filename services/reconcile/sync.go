package reconcile

import (
	"context"
	"fmt"
	"time"

	"tickethub/pkg/chain"
	"tickethub/pkg/config"
	"tickethub/pkg/gen"
	"tickethub/pkg/repository"
	"tickethub/services/ticket"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	staleWindow = time.Hour
	// pause between ledger reads so a large pass does not hammer the RPC node
	readDelay = 100 * time.Millisecond
)

// Reconciler pulls the ledger's view of each linked ticket back into the
// database. The ledger wins every disagreement.
type Reconciler struct {
	db        *gorm.DB
	idgen     *gen.SnowflakeNode
	ledger    chain.Ledger
	tickets   repository.Repository[ticket.Ticket]
	reports   repository.Repository[SyncReport]
	batchSize int
}

type ReconcilerParams struct {
	fx.In
	Config  *config.Config
	DB      *gorm.DB
	IDGen   *gen.SnowflakeNode
	Ledger  chain.Ledger
	Tickets repository.Repository[ticket.Ticket]
	Reports repository.Repository[SyncReport]
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	batch := p.Config.Worker.SyncBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{
		db:        p.DB,
		idgen:     p.IDGen,
		ledger:    p.Ledger,
		tickets:   p.Tickets,
		reports:   p.Reports,
		batchSize: batch,
	}
}

// Run reconciles up to limit ledger-linked tickets. Without force only
// tickets never synced or last synced more than an hour ago are selected, so
// back-to-back runs are cheap and idempotent.
func (r *Reconciler) Run(ctx context.Context, limit int, force bool) (*SyncResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if limit <= 0 || limit > r.batchSize {
		limit = r.batchSize
	}

	candidates, err := r.selectStale(ctx, limit, force)
	if err != nil {
		return nil, fmt.Errorf("failed to select tickets for sync: %w", err)
	}

	startedAt := time.Now().UTC()
	result := &SyncResult{Forced: force}

	for i, t := range candidates {
		if i > 0 {
			select {
			case <-time.After(readDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		item := r.syncOne(ctx, t)
		result.Checked++
		if item.Error != "" {
			result.Failures++
		} else if item.Updated {
			result.Discrepancies++
		}
		result.Items = append(result.Items, item)
	}

	report := &SyncReport{
		ID:            r.idgen.GenerateID(),
		Checked:       result.Checked,
		Discrepancies: result.Discrepancies,
		Failures:      result.Failures,
		Forced:        force,
		StartedAt:     startedAt,
		FinishedAt:    time.Now().UTC(),
	}
	if err := r.reports.Create(ctx, report); err != nil {
		zap.L().Error("failed to persist sync report", zap.Error(err))
	} else {
		result.ReportID = report.ID
	}

	zap.L().Info("ledger state sync finished",
		zap.Int("checked", result.Checked),
		zap.Int("discrepancies", result.Discrepancies),
		zap.Int("failures", result.Failures),
		zap.Bool("forced", force),
	)
	return result, nil
}

// selectStale picks ledger-linked tickets ordered oldest-sync-first, with
// never-synced tickets ahead of everything. The CASE keeps the ordering
// portable across the supported dialects; MySQL has no NULLS FIRST.
func (r *Reconciler) selectStale(ctx context.Context, limit int, force bool) ([]*ticket.Ticket, error) {
	tx := r.db.WithContext(ctx).
		Where("contract_address IS NOT NULL AND contract_address <> ''").
		Where("token_id IS NOT NULL AND token_id <> ''")

	if !force {
		cutoff := time.Now().UTC().Add(-staleWindow)
		tx = tx.Where("last_sync_timestamp IS NULL OR last_sync_timestamp < ?", cutoff)
	}

	var out []*ticket.Ticket
	err := tx.Order("CASE WHEN last_sync_timestamp IS NULL THEN 0 ELSE 1 END, last_sync_timestamp ASC").
		Limit(limit).Find(&out).Error
	return out, err
}

func (r *Reconciler) syncOne(ctx context.Context, t *ticket.Ticket) SyncItem {
	item := SyncItem{TicketID: t.ID}
	if t.TokenID != nil {
		item.TokenID = *t.TokenID
	}

	tokenID, err := t.LedgerTokenID()
	if err != nil {
		item.Error = err.Error()
		return item
	}

	code, err := r.ledger.Status(ctx, tokenID)
	if err != nil {
		item.Error = fmt.Sprintf("ledger status read failed: %v", err)
		return item
	}
	item.LedgerCode = int(code)

	now := time.Now().UTC()
	updates := map[string]any{
		"sync_status_code":    int(code),
		"last_sync_timestamp": now,
	}

	// The ledger is authoritative. Code 0 means the token is not registered,
	// the local status is left as is; 1 and 2 map directly onto valid and
	// revoked.
	switch code {
	case chain.StatusUnregistered:
		if t.LedgerRegistered {
			updates["ledger_registered"] = false
			item.Updated = true
			item.Change = "ledger_registered true -> false"
		}
	case chain.StatusRegistered:
		item.Updated = r.applyStatus(t, updates, ticket.StatusValid)
	case chain.StatusRevoked:
		item.Updated = r.applyStatus(t, updates, ticket.StatusRevoked)
	}

	if item.Updated && item.Change == "" {
		if want, ok := updates["status"]; ok {
			item.Change = fmt.Sprintf("status %s -> %s", t.Status, want)
		} else {
			item.Change = "ledger flags refreshed"
		}
	}

	if err := r.tickets.Update(ctx, t.ID, updates); err != nil {
		item.Updated = false
		item.Change = ""
		item.Error = fmt.Sprintf("failed to persist sync result: %v", err)
	}
	return item
}

// applyStatus stages the field changes a registered ledger code implies and
// reports whether anything actually differed.
func (r *Reconciler) applyStatus(t *ticket.Ticket, updates map[string]any, want ticket.Status) bool {
	changed := false
	if t.Status != want {
		updates["status"] = want
		changed = true
	}
	if !t.LedgerRegistered {
		updates["ledger_registered"] = true
		changed = true
	}
	if t.MintStatus != ticket.MintMinted {
		updates["mint_status"] = ticket.MintMinted
		changed = true
	}
	return changed
}
