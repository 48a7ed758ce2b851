// Package reconciler settles transactions left PENDING by the pipeline once
// their receipts appear, and gives up on them after a bounded number of
// lookups.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/internal/metrics"
	"github.com/chainsafe/contract-jobs/pkg/chain"
	"github.com/chainsafe/contract-jobs/pkg/config"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

const (
	outcomeSettled   = "settled"
	outcomeDeferred  = "deferred"
	outcomeAbandoned = "abandoned"
	outcomeError     = "error"
)

// Store leases due PENDING rows and reschedules them
type Store interface {
	ClaimPendingTransactions(ctx context.Context, limit int, lease time.Duration) ([]*entity.Transaction, error)
	TransitionTransaction(ctx context.Context, id int64, from []entity.Status, patch entity.TransactionPatch) (*entity.Transaction, error)
}

// Settler applies the final outcome of a transaction to it and its
// companion rows
type Settler interface {
	Settle(ctx context.Context, tx *entity.Transaction, receipt *types.Receipt) (*entity.Transaction, error)
	Abandon(ctx context.Context, tx *entity.Transaction, reason string) (*entity.Transaction, error)
}

// Gateways resolves a network name to its chain gateway
type Gateways interface {
	Get(network string) (chain.Gateway, error)
}

// Summary counts the outcomes of one pass
type Summary struct {
	Claimed   int
	Settled   int
	Deferred  int
	Abandoned int
	Errors    int
}

// Reconciler polls receipts of pending transactions
type Reconciler struct {
	store    Store
	settler  Settler
	gateways Gateways
	cfg      config.ReconciliationConfig
	logger   *zap.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Reconciler
func New(st Store, settler Settler, gateways Gateways, cfg config.ReconciliationConfig, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    st,
		settler:  settler,
		gateways: gateways,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// ReconcileOnce runs a single pass over the due PENDING transactions.
// Per-row failures are logged and counted; only a failed claim is returned.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (Summary, error) {
	var summary Summary

	txs, err := r.store.ClaimPendingTransactions(ctx, r.cfg.BatchSize, r.cfg.ClaimTTL)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("reconciler", "claim").Inc()
		return summary, fmt.Errorf("failed to claim pending transactions: %w", err)
	}
	summary.Claimed = len(txs)

	for _, tx := range txs {
		outcome, err := r.reconcile(ctx, tx)
		if err != nil {
			outcome = outcomeError
			r.logger.Error("Failed to reconcile transaction",
				zap.Int64("transaction_id", tx.ID),
				zap.String("tx_hash", tx.TxHash),
				zap.Error(err))
		}
		metrics.ReconcileOutcomes.WithLabelValues(outcome).Inc()

		switch outcome {
		case outcomeSettled:
			summary.Settled++
		case outcomeDeferred:
			summary.Deferred++
		case outcomeAbandoned:
			summary.Abandoned++
		default:
			summary.Errors++
		}
	}

	if summary.Claimed > 0 {
		r.logger.Info("Reconciliation pass completed",
			zap.Int("claimed", summary.Claimed),
			zap.Int("settled", summary.Settled),
			zap.Int("deferred", summary.Deferred),
			zap.Int("abandoned", summary.Abandoned),
			zap.Int("errors", summary.Errors))
	}
	return summary, nil
}

func (r *Reconciler) reconcile(ctx context.Context, tx *entity.Transaction) (string, error) {
	// leave fresh submissions to the pipeline's own receipt wait
	if tx.ReconcileAttempts == 0 && r.now().Sub(tx.CreatedAt) < r.cfg.InitialTimeout {
		return outcomeDeferred, r.reschedule(ctx, tx, 0, tx.CreatedAt.Add(r.cfg.InitialTimeout))
	}

	gw, err := r.gateways.Get(tx.Network)
	if err != nil {
		return "", err
	}

	receipt, err := gw.TransactionReceipt(ctx, common.HexToHash(tx.TxHash))
	switch {
	case err == nil:
		settled, err := r.settler.Settle(ctx, tx, receipt)
		if err != nil {
			return "", err
		}
		r.logger.Info("Pending transaction settled",
			zap.Int64("transaction_id", tx.ID),
			zap.String("tx_hash", tx.TxHash),
			zap.String("status", string(settled.Status)))
		return outcomeSettled, nil
	case !errors.Is(err, chain.ErrReceiptNotFound):
		return "", fmt.Errorf("failed to fetch receipt: %w", err)
	}

	attempts := tx.ReconcileAttempts + 1
	if attempts >= r.cfg.MaxAttempts {
		reason := fmt.Sprintf("receipt not found after %d attempts", attempts)
		if _, err := r.settler.Abandon(ctx, tx, reason); err != nil {
			return "", err
		}
		return outcomeAbandoned, nil
	}

	next := r.now().Add(Backoff(r.cfg.BaseBackoff, r.cfg.MaxBackoff, attempts))
	r.logger.Debug("Receipt not found, rescheduling",
		zap.Int64("transaction_id", tx.ID),
		zap.Int("attempts", attempts),
		zap.Time("next_reconcile_at", next))
	return outcomeDeferred, r.reschedule(ctx, tx, attempts, next)
}

// reschedule keeps the row PENDING and releases its lease
func (r *Reconciler) reschedule(ctx context.Context, tx *entity.Transaction, attempts int, next time.Time) error {
	_, err := r.store.TransitionTransaction(ctx, tx.ID,
		[]entity.Status{entity.StatusPending},
		entity.TransactionPatch{
			Status:            entity.StatusPending,
			ReconcileAttempts: &attempts,
			NextReconcileAt:   &next,
		})
	if errors.Is(err, store.ErrInvalidTransition) {
		// settled elsewhere in the meantime
		return nil
	}
	return err
}

// Backoff returns base·2^(attempts-1), capped at ceiling.
func Backoff(base, ceiling time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// StartPeriodicReconciliation starts a background goroutine that reconciles periodically
func (r *Reconciler) StartPeriodicReconciliation(interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.logger.Info("Started periodic reconciliation", zap.Duration("interval", interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if _, err := r.ReconcileOnce(ctx); err != nil {
					r.logger.Error("Periodic reconciliation failed", zap.Error(err))
				}
				cancel()
			case <-r.stopCh:
				r.logger.Info("Stopping periodic reconciliation")
				return
			}
		}
	}()
}

// Stop stops the periodic reconciliation
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}
