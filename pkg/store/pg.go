package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/chainsafe/contract-jobs/pkg/entity"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of Store
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func (s *pgStore) CreateWallet(ctx context.Context, wallet *entity.Wallet) error {
	dao := toWalletDao(wallet)
	if _, err := s.db.NewInsert().Model(dao).Returning("*").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	*wallet = *toWallet(dao)
	return nil
}

func (s *pgStore) GetWallet(ctx context.Context, id int64) (*entity.Wallet, error) {
	dao := new(WalletDao)
	if err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "wallet")
	}
	return toWallet(dao), nil
}

func (s *pgStore) GetWalletByTeam(ctx context.Context, teamID string) (*entity.Wallet, error) {
	dao := new(WalletDao)
	if err := s.db.NewSelect().Model(dao).Where("team_id = ?", teamID).Scan(ctx); err != nil {
		return nil, notFound(err, "wallet")
	}
	return toWallet(dao), nil
}

func (s *pgStore) CreateContract(ctx context.Context, contract *entity.Contract) error {
	dao := toContractDao(contract)
	if _, err := s.db.NewInsert().Model(dao).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	*contract = *toContract(dao)
	return nil
}

func (s *pgStore) GetContract(ctx context.Context, id int64) (*entity.Contract, error) {
	dao := new(ContractDao)
	if err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "contract")
	}
	return toContract(dao), nil
}

func (s *pgStore) SetContractMetadata(ctx context.Context, contractID, metadataID int64) error {
	res, err := s.db.NewUpdate().
		Model((*ContractDao)(nil)).
		Set("metadata_id = ?", metadataID).
		Set("updated_at = now()").
		Where("id = ?", contractID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set contract metadata: %w", err)
	}
	return requireAffected(res)
}

func (s *pgStore) SettleContract(ctx context.Context, txID int64, status entity.Status, address string) error {
	q := s.db.NewUpdate().
		Model((*ContractDao)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = now()").
		Where("transaction_id = ?", txID).
		Where("status = ?", string(entity.StatusCreated))
	if address != "" {
		q = q.Set("address = ?", address)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to settle contract: %w", err)
	}
	return requireAffected(res)
}

func (s *pgStore) CreateToken(ctx context.Context, token *entity.Token) error {
	dao := toTokenDao(token)
	if _, err := s.db.NewInsert().Model(dao).Returning("*").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	*token = *toToken(dao)
	return nil
}

func (s *pgStore) GetToken(ctx context.Context, id int64) (*entity.Token, error) {
	dao := new(TokenDao)
	if err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "token")
	}
	return toToken(dao), nil
}

func (s *pgStore) SetTokenMetadata(ctx context.Context, tokenID, metadataID int64) error {
	res, err := s.db.NewUpdate().
		Model((*TokenDao)(nil)).
		Set("metadata_id = ?", metadataID).
		Set("updated_at = now()").
		Where("id = ?", tokenID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set token metadata: %w", err)
	}
	return requireAffected(res)
}

func (s *pgStore) CountTokens(ctx context.Context, contractID int64, status entity.Status) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*TokenDao)(nil)).
		Where("contract_id = ?", contractID).
		Where("status = ?", string(status)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return int64(count), nil
}

func (s *pgStore) SettleToken(ctx context.Context, txID int64, txHash string, receipt []byte) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		dao := new(TokenDao)
		err := tx.NewSelect().
			Model(dao).
			Where("transaction_id = ?", txID).
			Where("status = ?", string(entity.StatusCreated)).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return notFound(err, "token")
		}

		// serialize sequence assignment per contract
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", dao.ContractID); err != nil {
			return fmt.Errorf("failed to lock contract %d: %w", dao.ContractID, err)
		}

		processed, err := tx.NewSelect().
			Model((*TokenDao)(nil)).
			Where("contract_id = ?", dao.ContractID).
			Where("status = ?", string(entity.StatusProcessed)).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count processed tokens: %w", err)
		}

		q := tx.NewUpdate().
			Model((*TokenDao)(nil)).
			Set("status = ?", string(entity.StatusProcessed)).
			Set("token_sequence_number = ?", processed).
			Set("tx_hash = ?", txHash).
			Set("updated_at = now()").
			Where("id = ?", dao.ID)
		if len(receipt) > 0 {
			q = q.Set("tx_receipt = ?::jsonb", string(receipt))
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to settle token: %w", err)
		}
		return nil
	})
}

func (s *pgStore) ListActiveAddresses(ctx context.Context, contractID int64) ([]string, error) {
	var addresses []string
	err := s.db.NewSelect().
		Model((*WhitelistDao)(nil)).
		Column("address").
		Where("contract_id = ?", contractID).
		Where("status <> ?", string(entity.StatusDeleted)).
		OrderExpr("id ASC").
		Scan(ctx, &addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelist: %w", err)
	}
	return addresses, nil
}

func (s *pgStore) AddWhitelistEntries(
	ctx context.Context,
	contractID int64,
	addresses []string,
	txID *int64,
) ([]*entity.WhitelistEntry, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	daos := make([]WhitelistDao, 0, len(addresses))
	for _, addr := range addresses {
		daos = append(daos, WhitelistDao{
			Status:        string(entity.StatusCreated),
			ContractID:    contractID,
			Address:       addr,
			TransactionID: txID,
		})
	}

	var inserted []WhitelistDao
	_, err := s.db.NewInsert().
		Model(&daos).
		On("CONFLICT (contract_id, address) WHERE status <> 'DELETED' DO NOTHING").
		Returning("*").
		Exec(ctx, &inserted)
	if err != nil {
		return nil, fmt.Errorf("failed to add whitelist entries: %w", err)
	}

	return toWhitelistEntries(inserted), nil
}

func (s *pgStore) RemoveWhitelistEntries(ctx context.Context, contractID int64, addresses []string) ([]*entity.WhitelistEntry, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	var removed []WhitelistDao
	_, err := s.db.NewUpdate().
		Model((*WhitelistDao)(nil)).
		Set("status = ?", string(entity.StatusDeleted)).
		Set("updated_at = now()").
		Where("contract_id = ?", contractID).
		Where("address IN (?)", bun.In(addresses)).
		Where("status <> ?", string(entity.StatusDeleted)).
		Returning("*").
		Exec(ctx, &removed)
	if err != nil {
		return nil, fmt.Errorf("failed to remove whitelist entries: %w", err)
	}

	return toWhitelistEntries(removed), nil
}

func (s *pgStore) SettleWhitelistEntries(ctx context.Context, txID int64, status entity.Status) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*WhitelistDao)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = now()").
		Where("transaction_id = ?", txID).
		Where("status = ?", string(entity.StatusCreated)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to settle whitelist entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func toWhitelistEntries(daos []WhitelistDao) []*entity.WhitelistEntry {
	entries := make([]*entity.WhitelistEntry, len(daos))
	for i := range daos {
		entries[i] = toWhitelistEntry(&daos[i])
	}
	return entries
}

func (s *pgStore) CreateMetadata(ctx context.Context, metadata *entity.Metadata) error {
	dao := toMetadataDao(metadata)
	if _, err := s.db.NewInsert().Model(dao).Returning("*").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create metadata: %w", err)
	}
	metadata.ID = dao.ID
	return nil
}

func (s *pgStore) GetMetadata(ctx context.Context, id int64) (*entity.Metadata, error) {
	dao := new(MetadataDao)
	if err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "metadata")
	}
	return toMetadata(dao), nil
}

func (s *pgStore) GetTokenMetadata(ctx context.Context, tokenID int64) (*entity.Metadata, error) {
	dao := new(MetadataDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("token_id = ?", tokenID).
		Where("type = ?", string(entity.MetadataSpecified)).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "token metadata")
	}
	return toMetadata(dao), nil
}

func (s *pgStore) UpdateMetadataFields(ctx context.Context, id int64, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	res, err := s.db.NewUpdate().
		Model((*MetadataDao)(nil)).
		Set("meta_data = ?::jsonb", string(raw)).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
