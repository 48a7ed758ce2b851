// Package pipeline builds, prices, signs and broadcasts transactions and
// keeps their persisted status in step with the chain.
package pipeline

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/internal/metrics"
	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/chain"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMissingKey          = errors.New("signing key required to execute")
	ErrTransactionReverted = errors.New("transaction reverted")
)

// Gateways resolves a network name to its chain gateway
type Gateways interface {
	Get(network string) (chain.Gateway, error)
}

// Store is the persistence the pipeline writes through
type Store interface {
	GetTransaction(ctx context.Context, id int64) (*entity.Transaction, error)
	CreateTransaction(ctx context.Context, tx *entity.Transaction) error
	TransitionTransaction(ctx context.Context, id int64, from []entity.Status, patch entity.TransactionPatch) (*entity.Transaction, error)
	SettleContract(ctx context.Context, txID int64, status entity.Status, address string) error
	SettleToken(ctx context.Context, txID int64, txHash string, receipt []byte) error
	SettleWhitelistEntries(ctx context.Context, txID int64, status entity.Status) (int64, error)
}

// PersistHook runs after the Transaction row is created and before the
// transaction is signed. Returning an error marks the row FAILED.
type PersistHook func(ctx context.Context, tx *entity.Transaction) error

// Options describes one submission
type Options struct {
	Network string
	Kind    entity.Kind
	From    common.Address
	// To is nil for contract creation
	To          *common.Address
	Data        []byte
	Value       *big.Int
	Execute     bool
	Key         *ecdsa.PrivateKey
	WalletID    *int64
	OnPersisted PersistHook
}

// Request is the unsigned transaction as persisted and returned to callers
type Request struct {
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Nonce    uint64 `json:"nonce"`
	Gas      uint64 `json:"gas"`
	GasPrice string `json:"gas_price"`
	Value    string `json:"value"`
	Data     string `json:"data"`
	ChainID  string `json:"chain_id"`
}

// Estimate holds the pricing of a submission. Amounts are wei in decimal.
type Estimate struct {
	Nonce      uint64 `json:"nonce"`
	Gas        uint64 `json:"gas"`
	GasPrice   string `json:"gas_price"`
	Commission string `json:"commission"`
	Balance    string `json:"balance"`
}

// Result is the outcome of Submit. Transaction is nil for dry runs.
type Result struct {
	Tx          *types.Transaction  `json:"-"`
	Request     Request             `json:"tx"`
	Estimate    Estimate            `json:"estimate"`
	Transaction *entity.Transaction `json:"-"`
}

// Pipeline submits transactions on the configured networks
type Pipeline struct {
	gateways Gateways
	store    Store
	cfg      config.PipelineConfig
	logger   *zap.Logger
}

// New creates a pipeline
func New(gateways Gateways, store Store, cfg config.PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		gateways: gateways,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Submit prices the transaction and, when opts.Execute is set, persists,
// signs and broadcasts it and waits a bounded time for the receipt. A
// transaction still unmined when the wait ends is returned PENDING.
func (p *Pipeline) Submit(ctx context.Context, opts Options) (*Result, error) {
	gw, err := p.gateways.Get(opts.Network)
	if err != nil {
		return nil, apperrors.BadRequestError(err, fmt.Sprintf("unknown network %q", opts.Network))
	}
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := gw.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to read nonce: %w", err), "failed to read nonce")
	}
	gasPrice, err := gw.SuggestGasPrice(ctx)
	if err != nil {
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to read gas price: %w", err), "failed to read gas price")
	}
	gas, err := gw.EstimateGas(ctx, ethereum.CallMsg{
		From:     opts.From,
		To:       opts.To,
		GasPrice: gasPrice,
		Value:    value,
		Data:     opts.Data,
	})
	if err != nil {
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to estimate gas: %w", err), "failed to estimate gas: "+err.Error())
	}

	commission := decimal.NewFromBigInt(new(big.Int).SetUint64(gas), 0).Mul(decimal.NewFromBigInt(gasPrice, 0))
	balanceWei, err := gw.BalanceAt(ctx, opts.From)
	if err != nil {
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to read balance: %w", err), "failed to read balance")
	}
	balance := decimal.NewFromBigInt(balanceWei, 0)

	estimate := Estimate{
		Nonce:      nonce,
		Gas:        gas,
		GasPrice:   gasPrice.String(),
		Commission: commission.String(),
		Balance:    balance.String(),
	}
	if balance.LessThan(commission.Add(decimal.NewFromBigInt(value, 0))) {
		return nil, apperrors.InsufficientFundsError(
			fmt.Errorf("%w: balance %s, commission %s", ErrInsufficientBalance, balance, commission),
			fmt.Sprintf("insufficient balance: %s wei available, %s wei required", balance, commission),
		)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       opts.To,
		Value:    value,
		Data:     opts.Data,
	})
	request := newRequest(opts.From, tx, gw.ChainID())
	result := &Result{Tx: tx, Request: request, Estimate: estimate}
	if !opts.Execute {
		return result, nil
	}
	if opts.Key == nil {
		return nil, apperrors.BadRequestError(ErrMissingKey, ErrMissingKey.Error())
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to encode transaction payload: %w", err))
	}
	record := &entity.Transaction{
		Network:   opts.Network,
		Kind:      opts.Kind,
		Status:    entity.StatusCreated,
		Address:   opts.From.Hex(),
		ToAddress: request.To,
		WalletID:  opts.WalletID,
		Payload:   payload,
	}
	if err := p.store.CreateTransaction(ctx, record); err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to persist transaction: %w", err))
	}
	result.Transaction = record

	logger := p.logger.With(
		zap.Int64("transaction_id", record.ID),
		zap.String("network", opts.Network),
		zap.String("kind", string(opts.Kind)))

	if opts.OnPersisted != nil {
		if err := opts.OnPersisted(ctx, record); err != nil {
			p.fail(ctx, record, err, logger)
			return nil, err
		}
	}

	signed, err := chain.SignTransaction(tx, opts.Key, gw.ChainID())
	if err != nil {
		p.fail(ctx, record, err, logger)
		return nil, apperrors.DependencyFailureError(err, "failed to sign transaction")
	}

	// the hash is stored before the broadcast so anything that reaches the
	// chain is reconcilable
	txHash := signed.Hash().Hex()
	pending, err := p.store.TransitionTransaction(ctx, record.ID,
		[]entity.Status{entity.StatusCreated},
		entity.TransactionPatch{Status: entity.StatusPending, TxHash: &txHash})
	if err != nil {
		p.fail(ctx, record, err, logger)
		return nil, apperrors.GeneralError(fmt.Errorf("failed to mark transaction %d pending: %w", record.ID, err))
	}
	result.Transaction = pending

	if err := gw.SendTransaction(ctx, signed); err != nil {
		metrics.TransactionsSent.WithLabelValues(opts.Network, string(opts.Kind), "rejected").Inc()
		p.fail(ctx, pending, err, logger)
		return nil, apperrors.DependencyFailureError(fmt.Errorf("failed to broadcast transaction: %w", err), "failed to broadcast transaction: "+err.Error())
	}
	metrics.TransactionsSent.WithLabelValues(opts.Network, string(opts.Kind), "sent").Inc()
	logger.Info("Transaction broadcast", zap.String("tx_hash", txHash))

	receipt, err := p.waitForReceipt(ctx, gw, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		logger.Warn("Receipt not seen before timeout, leaving transaction pending",
			zap.String("tx_hash", txHash),
			zap.Duration("timeout", p.cfg.ReceiptTimeout))
		return result, nil
	}

	settled, err := p.Settle(ctx, pending, receipt)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	result.Transaction = settled
	if settled.Status == entity.StatusFailed {
		return nil, apperrors.DependencyFailureError(
			fmt.Errorf("%w: %s", ErrTransactionReverted, txHash),
			fmt.Sprintf("transaction %s reverted", txHash))
	}
	return result, nil
}

// waitForReceipt polls until the receipt appears or the receipt timeout
// elapses, in which case it returns a nil receipt. Cancellation of ctx is
// returned as an error.
func (p *Pipeline) waitForReceipt(ctx context.Context, gw chain.Gateway, hash common.Hash) (*types.Receipt, error) {
	timeout := time.NewTimer(p.cfg.ReceiptTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(p.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := gw.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case !errors.Is(err, chain.ErrReceiptNotFound):
			p.logger.Debug("Receipt lookup failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, nil
		case <-ticker.C:
		}
	}
}

// Settle records a mined receipt on the transaction and its companion rows.
// Companions are settled first so a transaction left PENDING by a failed
// companion update is retried by reconciliation. Losing a concurrent settle
// is not an error; the stored record is returned.
func (p *Pipeline) Settle(ctx context.Context, tx *entity.Transaction, receipt *types.Receipt) (*entity.Transaction, error) {
	receiptJSON, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	succeeded := receipt.Status == types.ReceiptStatusSuccessful
	if err := p.settleCompanions(ctx, tx, receipt, receiptJSON, succeeded); err != nil {
		return nil, err
	}

	patch := entity.TransactionPatch{Status: entity.StatusProcessed, Receipt: receiptJSON}
	if !succeeded {
		msg := ErrTransactionReverted.Error()
		patch = entity.TransactionPatch{Status: entity.StatusFailed, Receipt: receiptJSON, Error: &msg}
	}

	settled, err := p.store.TransitionTransaction(ctx, tx.ID,
		[]entity.Status{entity.StatusCreated, entity.StatusPending}, patch)
	if errors.Is(err, store.ErrInvalidTransition) {
		return p.store.GetTransaction(ctx, tx.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to settle transaction %d: %w", tx.ID, err)
	}

	metrics.GasUsed.WithLabelValues(string(tx.Kind)).Observe(float64(receipt.GasUsed))
	metrics.TransactionsSent.WithLabelValues(tx.Network, string(tx.Kind), string(settled.Status)).Inc()
	p.logger.Info("Transaction settled",
		zap.Int64("transaction_id", tx.ID),
		zap.String("tx_hash", tx.TxHash),
		zap.String("status", string(settled.Status)),
		zap.Uint64("gas_used", receipt.GasUsed))
	return settled, nil
}

func (p *Pipeline) settleCompanions(
	ctx context.Context,
	tx *entity.Transaction,
	receipt *types.Receipt,
	receiptJSON []byte,
	succeeded bool,
) error {
	var err error
	switch tx.Kind {
	case entity.KindDeploy:
		if succeeded {
			err = p.store.SettleContract(ctx, tx.ID, entity.StatusProcessed, receipt.ContractAddress.Hex())
		} else {
			err = p.store.SettleContract(ctx, tx.ID, entity.StatusFailed, "")
		}
	case entity.KindMint:
		if succeeded {
			err = p.store.SettleToken(ctx, tx.ID, receipt.TxHash.Hex(), receiptJSON)
		}
	case entity.KindWhitelistAdd:
		status := entity.StatusProcessed
		if !succeeded {
			// release the addresses so they can be added again
			status = entity.StatusDeleted
		}
		_, err = p.store.SettleWhitelistEntries(ctx, tx.ID, status)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to settle %s companion of transaction %d: %w", tx.Kind, tx.ID, err)
	}
	return nil
}

// Abandon marks a PENDING transaction whose receipt never appeared as FAILED,
// failing its companion rows the same way a revert would.
func (p *Pipeline) Abandon(ctx context.Context, tx *entity.Transaction, reason string) (*entity.Transaction, error) {
	if err := p.settleCompanions(ctx, tx, nil, nil, false); err != nil {
		return nil, err
	}
	failed, err := p.store.TransitionTransaction(ctx, tx.ID,
		[]entity.Status{entity.StatusPending},
		entity.TransactionPatch{Status: entity.StatusFailed, Error: &reason})
	if errors.Is(err, store.ErrInvalidTransition) {
		return p.store.GetTransaction(ctx, tx.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to abandon transaction %d: %w", tx.ID, err)
	}
	metrics.TransactionsSent.WithLabelValues(tx.Network, string(tx.Kind), string(failed.Status)).Inc()
	p.logger.Warn("Transaction abandoned",
		zap.Int64("transaction_id", tx.ID),
		zap.String("tx_hash", tx.TxHash),
		zap.String("reason", reason))
	return failed, nil
}

// fail marks a transaction that never reached the chain as FAILED. It runs
// even when ctx is canceled so no row is left behind half submitted.
func (p *Pipeline) fail(ctx context.Context, tx *entity.Transaction, cause error, logger *zap.Logger) {
	logger.Error("Transaction submission failed", zap.Error(cause))
	metrics.ErrorsTotal.WithLabelValues("pipeline", "submission").Inc()

	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	if _, err := p.store.TransitionTransaction(ctx, tx.ID,
		[]entity.Status{entity.StatusCreated, entity.StatusPending},
		entity.TransactionPatch{Status: entity.StatusFailed, Error: &msg}); err != nil {
		logger.Error("Failed to mark transaction failed", zap.Error(err))
		return
	}
	tx.Status = entity.StatusFailed
	tx.Error = msg

	if err := p.settleCompanions(ctx, tx, nil, nil, false); err != nil {
		logger.Error("Failed to fail transaction companions", zap.Error(err))
	}
}

func newRequest(from common.Address, tx *types.Transaction, chainID *big.Int) Request {
	req := Request{
		From:     from.Hex(),
		Nonce:    tx.Nonce(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice().String(),
		Value:    tx.Value().String(),
		Data:     hexutil.Encode(tx.Data()),
		ChainID:  chainID.String(),
	}
	if tx.To() != nil {
		req.To = tx.To().Hex()
	}
	return req
}
