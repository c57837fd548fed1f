package chain

import (
	"context"
	"math/big"
)

// TokenStatus mirrors the uint8 status codes the ticket contract reports.
type TokenStatus uint8

const (
	StatusUnregistered TokenStatus = 0
	StatusRegistered   TokenStatus = 1
	StatusRevoked      TokenStatus = 2
)

func (s TokenStatus) String() string {
	switch s {
	case StatusUnregistered:
		return "unregistered"
	case StatusRegistered:
		return "registered"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// TxResult describes a confirmed on-chain write.
type TxResult struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Ledger is the contract surface the revocation subsystem depends on. The
// worker, reconciler and verifier are written against this interface; Client
// is the only production implementation.
type Ledger interface {
	Status(ctx context.Context, tokenID uint64) (TokenStatus, error)
	IsRevoked(ctx context.Context, tokenID uint64) (bool, error)
	Revoke(ctx context.Context, tokenID uint64) (*TxResult, error)
	BatchRevoke(ctx context.Context, tokenIDs []uint64) (*TxResult, error)
	Owner(ctx context.Context) (string, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

const ledgerABI = `[
  {"name":"getTicketStatus","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
  {"name":"isRevoked","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"revokeTicket","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"name":"batchRevokeTickets","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenIds","type":"uint256[]"}],"outputs":[]},
  {"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`
