package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"tickethub/pkg/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("chain",
	fx.Provide(
		NewClient,
		ProvideLedger,
	),
)

// minBalanceWei is the wallet floor below which mutating calls are refused
// outright: 0.001 in native currency units.
var minBalanceWei = big.NewInt(1_000_000_000_000_000)

const receiptPollInterval = 2 * time.Second

type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int

	confirmations  uint64
	confirmTimeout time.Duration
}

func NewClient(lc fx.Lifecycle, cfg *config.Config) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(ledgerABI))
	if err != nil {
		return nil, fmt.Errorf("parse ledger abi: %w", err)
	}

	eth, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", cfg.Chain.RPCURL, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	c := &Client{
		eth:            eth,
		abi:            parsed,
		contract:       common.HexToAddress(cfg.Chain.ContractAddress),
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        big.NewInt(cfg.Chain.ChainID),
		confirmations:  cfg.Chain.Confirmations,
		confirmTimeout: cfg.Chain.ConfirmTimeout,
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			eth.Close()
			return nil
		},
	})

	zap.L().Info("[Chain] Ledger client configured",
		zap.String("contract", c.contract.Hex()),
		zap.String("wallet", c.from.Hex()),
		zap.Int64("chain_id", cfg.Chain.ChainID),
	)

	return c, nil
}

func ProvideLedger(c *Client) Ledger {
	return c
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context, tokenID uint64) (TokenStatus, error) {
	out, err := c.call(ctx, "getTicketStatus", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return StatusUnregistered, err
	}
	code, ok := out[0].(uint8)
	if !ok {
		return StatusUnregistered, fmt.Errorf("getTicketStatus: unexpected return type %T", out[0])
	}
	return TokenStatus(code), nil
}

func (c *Client) IsRevoked(ctx context.Context, tokenID uint64) (bool, error) {
	out, err := c.call(ctx, "isRevoked", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return false, err
	}
	revoked, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isRevoked: unexpected return type %T", out[0])
	}
	return revoked, nil
}

func (c *Client) Owner(ctx context.Context) (string, error) {
	out, err := c.call(ctx, "owner")
	if err != nil {
		return "", err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("owner: unexpected return type %T", out[0])
	}
	return addr.Hex(), nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) Revoke(ctx context.Context, tokenID uint64) (*TxResult, error) {
	res, err := c.submit(ctx, "revokeTicket", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	c.readBackStatus(ctx, tokenID)
	return res, nil
}

func (c *Client) BatchRevoke(ctx context.Context, tokenIDs []uint64) (*TxResult, error) {
	if len(tokenIDs) == 0 {
		return nil, errors.New("batch revoke: no token ids")
	}

	// Single-item batches take the cheaper single-token path.
	if len(tokenIDs) == 1 {
		return c.Revoke(ctx, tokenIDs[0])
	}

	ids := make([]*big.Int, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		ids = append(ids, new(big.Int).SetUint64(id))
	}

	res, err := c.submit(ctx, "batchRevokeTickets", ids)
	if err != nil {
		return nil, err
	}
	c.readBackStatus(ctx, tokenIDs[0])
	return res, nil
}

// readBackStatus re-reads the contract after a confirmed revoke. The write is
// trusted over the read-back, so a mismatch is only logged.
func (c *Client) readBackStatus(ctx context.Context, tokenID uint64) {
	status, err := c.Status(ctx, tokenID)
	if err != nil {
		zap.L().Warn("[Chain] post-revoke status read-back failed",
			zap.Uint64("token_id", tokenID), zap.Error(err))
		return
	}
	if status != StatusRevoked {
		zap.L().Warn("[Chain] post-revoke status read-back mismatch",
			zap.Uint64("token_id", tokenID), zap.String("status", status.String()))
	}
}

func (c *Client) submit(ctx context.Context, method string, args ...any) (*TxResult, error) {
	if err := c.checkBalance(ctx); err != nil {
		return nil, err
	}

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas for %s: %w", method, err)
	}
	gas = gas * 120 / 100 // +20% buffer over the node estimate

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	zap.L().Info("[Chain] transaction submitted",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("gas_limit", gas),
	)

	receipt, err := c.awaitConfirmed(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s reverted in tx %s", method, signed.Hash().Hex())
	}

	return &TxResult{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (c *Client) checkBalance(ctx context.Context) error {
	balance, err := c.eth.BalanceAt(ctx, c.from, nil)
	if err != nil {
		return fmt.Errorf("balance check: %w", err)
	}
	if balance.Cmp(minBalanceWei) < 0 {
		return fmt.Errorf("wallet %s balance %s wei below minimum %s wei, refusing to submit",
			c.from.Hex(), balance.String(), minBalanceWei.String())
	}
	return nil
}

// awaitConfirmed blocks until the transaction is mined and has the configured
// confirmation depth, or until the confirmation ceiling elapses. Once the
// transaction is submitted there is no cancellation path; a timeout here only
// means the caller stops waiting.
func (c *Client) awaitConfirmed(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for receipt == nil {
		r, err := c.eth.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			receipt = r
		case errors.Is(err, ethereum.NotFound):
			// still pending
		default:
			return nil, fmt.Errorf("receipt lookup for %s: %w", hash.Hex(), err)
		}

		if receipt != nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tx %s not mined before confirmation ceiling: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}

	target := receipt.BlockNumber.Uint64() + c.confirmations - 1
	for {
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("head lookup: %w", err)
		}
		if head >= target {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tx %s mined but not confirmed before ceiling: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
