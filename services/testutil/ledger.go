package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"tickethub/pkg/chain"
)

// FakeLedger is an in-memory chain.Ledger for tests. Token state is a plain
// map and every mutator is guarded, so concurrent verifier reads are safe.
type FakeLedger struct {
	mu sync.Mutex

	Statuses  map[uint64]chain.TokenStatus
	RevokeErr error
	StatusErr error
	Revokes   []uint64
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{Statuses: make(map[uint64]chain.TokenStatus)}
}

func (f *FakeLedger) Status(_ context.Context, tokenID uint64) (chain.TokenStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return 0, f.StatusErr
	}
	return f.Statuses[tokenID], nil
}

func (f *FakeLedger) IsRevoked(_ context.Context, tokenID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return false, f.StatusErr
	}
	return f.Statuses[tokenID] == chain.StatusRevoked, nil
}

func (f *FakeLedger) Revoke(_ context.Context, tokenID uint64) (*chain.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RevokeErr != nil {
		return nil, f.RevokeErr
	}
	f.Statuses[tokenID] = chain.StatusRevoked
	f.Revokes = append(f.Revokes, tokenID)
	return &chain.TxResult{
		TxHash:      fmt.Sprintf("0xfake%d", tokenID),
		BlockNumber: 100,
		GasUsed:     21000,
	}, nil
}

func (f *FakeLedger) BatchRevoke(ctx context.Context, tokenIDs []uint64) (*chain.TxResult, error) {
	var last *chain.TxResult
	for _, id := range tokenIDs {
		res, err := f.Revoke(ctx, id)
		if err != nil {
			return nil, err
		}
		last = res
	}
	return last, nil
}

func (f *FakeLedger) Owner(context.Context) (string, error) {
	return "0x00000000000000000000000000000000000000aa", nil
}

func (f *FakeLedger) BlockNumber(context.Context) (uint64, error) {
	return 100, nil
}

func (f *FakeLedger) GasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
