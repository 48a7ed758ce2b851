package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/contract-jobs/pkg/entity"
)

func (s *pgStore) CreateTransaction(ctx context.Context, tx *entity.Transaction) error {
	dao := toTransactionDao(tx)
	if _, err := s.db.NewInsert().Model(dao).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	*tx = *toTransaction(dao)
	return nil
}

func (s *pgStore) GetTransaction(ctx context.Context, id int64) (*entity.Transaction, error) {
	dao := new(TransactionDao)
	if err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "transaction")
	}
	return toTransaction(dao), nil
}

func (s *pgStore) ListTransactions(ctx context.Context, opts ...QueryOption) ([]*entity.Transaction, error) {
	options := NewQueryOptions(opts...)

	var daos []TransactionDao
	query := s.db.NewSelect().Model(&daos).OrderExpr("id ASC")
	if options.Status != nil {
		query = query.Where("status = ?", string(*options.Status))
	}
	if options.Network != nil {
		query = query.Where("network = ?", *options.Network)
	}
	if options.Kind != nil {
		query = query.Where("kind = ?", string(*options.Kind))
	}
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	txs := make([]*entity.Transaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs, nil
}

func (s *pgStore) TransitionTransaction(
	ctx context.Context,
	id int64,
	from []entity.Status,
	patch entity.TransactionPatch,
) (*entity.Transaction, error) {
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	dao := new(TransactionDao)
	q := s.db.NewUpdate().
		Model(dao).
		Set("status = ?", string(patch.Status)).
		Set("claimed_until = NULL").
		Set("updated_at = now()").
		Where("id = ?", id).
		Where("status IN (?)", bun.In(statuses)).
		Returning("*")
	if patch.TxHash != nil {
		q = q.Set("tx_hash = ?", *patch.TxHash)
	}
	if len(patch.Receipt) > 0 {
		q = q.Set("tx_receipt = ?::jsonb", string(patch.Receipt))
	}
	if patch.Error != nil {
		q = q.Set("error = ?", *patch.Error)
	}
	if patch.ReconcileAttempts != nil {
		q = q.Set("reconcile_attempts = ?", *patch.ReconcileAttempts)
	}
	if patch.NextReconcileAt != nil {
		q = q.Set("next_reconcile_at = ?", *patch.NextReconcileAt)
	}

	if err := q.Scan(ctx); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to transition transaction %d: %w", id, err)
		}
		exists, existsErr := s.db.NewSelect().Model((*TransactionDao)(nil)).Where("id = ?", id).Exists(ctx)
		if existsErr != nil {
			return nil, fmt.Errorf("failed to check transaction exists: %w", existsErr)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}

	return toTransaction(dao), nil
}

func (s *pgStore) ClaimPendingTransactions(ctx context.Context, limit int, lease time.Duration) ([]*entity.Transaction, error) {
	due := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Column("id").
		Where("status = ?", string(entity.StatusPending)).
		Where("tx_hash IS NOT NULL").
		Where("next_reconcile_at IS NULL OR next_reconcile_at <= now()").
		Where("claimed_until IS NULL OR claimed_until < now()").
		OrderExpr("id ASC").
		Limit(limit).
		For("UPDATE SKIP LOCKED")

	var daos []TransactionDao
	_, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("claimed_until = ?", time.Now().Add(lease)).
		Where("id IN (?)", due).
		Returning("*").
		Exec(ctx, &daos)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending transactions: %w", err)
	}

	txs := make([]*entity.Transaction, len(daos))
	for i := range daos {
		txs[i] = toTransaction(&daos[i])
	}
	return txs, nil
}
