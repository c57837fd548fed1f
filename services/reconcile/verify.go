package reconcile

import (
	"context"
	"fmt"
	"time"

	"tickethub/pkg/chain"
	"tickethub/pkg/repository"
	"tickethub/services/ticket"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	verifyBatchSize  = 10
	verifyBatchDelay = time.Second
)

// Filter modes for selecting which tickets a verification pass inspects.
const (
	FilterAll            = "all"
	FilterRegisteredOnly = "registered_only"
	FilterFlaggedOnly    = "flagged_only"
)

// Verifier audits database state against the ledger without changing either.
// Findings come with a recommendation to run sync, which is the only thing
// allowed to mutate.
type Verifier struct {
	db      *gorm.DB
	ledger  chain.Ledger
	tickets repository.Repository[ticket.Ticket]
}

type VerifierParams struct {
	fx.In
	DB      *gorm.DB
	Ledger  chain.Ledger
	Tickets repository.Repository[ticket.Ticket]
}

func NewVerifier(p VerifierParams) *Verifier {
	return &Verifier{db: p.DB, ledger: p.Ledger, tickets: p.Tickets}
}

type VerifyOptions struct {
	Limit           int
	Filter          string
	IncludeContract bool

	// Detailed includes the per-ticket finding and failure lists in the
	// report; without it only the aggregate counts are returned.
	Detailed bool
}

// Run verifies ledger-linked tickets in batches, reading the chain in
// parallel within a batch and pausing between batches.
func (v *Verifier) Run(ctx context.Context, opts VerifyOptions) (*VerifyReport, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if opts.Filter == "" {
		opts.Filter = FilterAll
	}
	if opts.Filter != FilterAll && opts.Filter != FilterRegisteredOnly && opts.Filter != FilterFlaggedOnly {
		return nil, fmt.Errorf("unknown verify filter %q", opts.Filter)
	}
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 1000
	}

	candidates, err := v.selectTickets(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to select tickets for verification: %w", err)
	}

	report := &VerifyReport{}

	for start := 0; start < len(candidates); start += verifyBatchSize {
		if start > 0 {
			select {
			case <-time.After(verifyBatchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		end := start + verifyBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		v.verifyBatch(ctx, candidates[start:end], report, opts.Detailed)
	}

	if report.Checked > 0 {
		report.InconsistentPercent = float64(report.Inconsistent) / float64(report.Checked) * 100
		report.ConsistentPercent = 100 - report.InconsistentPercent
	}

	if opts.IncludeContract {
		info, err := v.contractInfo(ctx)
		if err != nil {
			zap.L().Warn("failed to fetch contract metadata", zap.Error(err))
		} else {
			report.Contract = info
		}
	}

	zap.L().Info("ledger state verification finished",
		zap.Int("checked", report.Checked),
		zap.Int("inconsistent", report.Inconsistent),
		zap.Int("failures", report.FailureCount),
		zap.String("filter", opts.Filter),
	)
	return report, nil
}

func (v *Verifier) selectTickets(ctx context.Context, opts VerifyOptions) ([]*ticket.Ticket, error) {
	tx := v.db.WithContext(ctx).
		Where("contract_address IS NOT NULL AND contract_address <> ''").
		Where("token_id IS NOT NULL AND token_id <> ''")

	switch opts.Filter {
	case FilterRegisteredOnly:
		tx = tx.Where("ledger_registered = ?", true)
	case FilterFlaggedOnly:
		tx = tx.Where("flagged = ?", true)
	}

	var out []*ticket.Ticket
	err := tx.Order("created_at ASC").Limit(opts.Limit).Find(&out).Error
	return out, err
}

// observation is what one ticket's pair of chain reads produced.
type observation struct {
	code    chain.TokenStatus
	revoked bool
	err     error
}

func (v *Verifier) verifyBatch(ctx context.Context, batch []*ticket.Ticket, report *VerifyReport, detailed bool) {
	results := make([]observation, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range batch {
		g.Go(func() error {
			results[i] = v.observe(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	for i, t := range batch {
		obs := results[i]
		report.Checked++

		if obs.err != nil {
			report.FailureCount++
			if detailed {
				report.Failures = append(report.Failures, VerifyFailure{
					TicketID: t.ID,
					Error:    obs.err.Error(),
				})
			}
			continue
		}

		switch obs.code {
		case chain.StatusRegistered:
			report.Valid++
		case chain.StatusRevoked:
			report.Revoked++
		default:
			report.Unregistered++
		}

		if reasons := v.check(t, obs); len(reasons) > 0 {
			report.Inconsistent++
			if detailed {
				report.Inconsistencies = append(report.Inconsistencies, Inconsistency{
					TicketID:       t.ID,
					TokenID:        *t.TokenID,
					Reason:         joinReasons(reasons),
					Recommendation: "run sync to pull the ledger state into the database",
				})
			}
		}
	}
}

// observe fetches the status code and the revocation flag for one ticket in
// parallel.
func (v *Verifier) observe(ctx context.Context, t *ticket.Ticket) observation {
	tokenID, err := t.LedgerTokenID()
	if err != nil {
		return observation{err: err}
	}

	var obs observation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		code, err := v.ledger.Status(gctx, tokenID)
		obs.code = code
		return err
	})
	g.Go(func() error {
		revoked, err := v.ledger.IsRevoked(gctx, tokenID)
		obs.revoked = revoked
		return err
	})
	if err := g.Wait(); err != nil {
		return observation{err: err}
	}
	return obs
}

// check applies the consistency rules between one ticket row and the chain.
func (v *Verifier) check(t *ticket.Ticket, obs observation) []string {
	var reasons []string

	if obs.code == chain.StatusUnregistered && t.LedgerRegistered {
		reasons = append(reasons, "ledger reports the token as unregistered but the database marks it registered")
	}
	if obs.code == chain.StatusRegistered && t.Status != ticket.StatusValid {
		reasons = append(reasons, fmt.Sprintf("ledger reports the token as registered but the database status is %s", t.Status))
	}
	if obs.code == chain.StatusRevoked && t.Status == ticket.StatusValid {
		reasons = append(reasons, "token is revoked on the ledger but marked as valid in the database")
	}
	if obs.revoked && t.Status == ticket.StatusValid {
		reasons = append(reasons, "ledger isRevoked flag is set but the database status is valid")
	}
	if obs.code != chain.StatusUnregistered && !t.LedgerRegistered {
		reasons = append(reasons, fmt.Sprintf("database marks the ticket unregistered but the ledger status code is %d", obs.code))
	}
	return reasons
}

// contractInfo reads owner, head block and gas price in parallel.
func (v *Verifier) contractInfo(ctx context.Context) (*ContractInfo, error) {
	info := &ContractInfo{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		owner, err := v.ledger.Owner(gctx)
		info.Owner = owner
		return err
	})
	g.Go(func() error {
		block, err := v.ledger.BlockNumber(gctx)
		info.BlockNumber = block
		return err
	})
	g.Go(func() error {
		price, err := v.ledger.GasPrice(gctx)
		if price != nil {
			info.GasPriceWei = price.String()
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return info, nil
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
