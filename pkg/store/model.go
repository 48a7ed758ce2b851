package store

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/contract-jobs/pkg/entity"
)

// WalletDao maps to the 'wallets' table.
type WalletDao struct {
	bun.BaseModel     `bun:"table:wallets,alias:w"`
	ID                int64     `bun:"id,pk,autoincrement"`
	TeamID            string    `bun:"team_id,unique,notnull,type:varchar(128)"`
	Address           string    `bun:"address,notnull,type:varchar(42)"`
	EncryptedKeystore string    `bun:"encrypted_keystore,notnull,type:text"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func toWalletDao(w *entity.Wallet) *WalletDao {
	return &WalletDao{
		ID:                w.ID,
		TeamID:            w.TeamID,
		Address:           w.Address,
		EncryptedKeystore: w.EncryptedKeystore,
	}
}

func toWallet(dao *WalletDao) *entity.Wallet {
	return &entity.Wallet{
		ID:                dao.ID,
		TeamID:            dao.TeamID,
		Address:           dao.Address,
		EncryptedKeystore: dao.EncryptedKeystore,
		CreatedAt:         dao.CreatedAt,
	}
}

// ContractDao maps to the 'contracts' table.
type ContractDao struct {
	bun.BaseModel `bun:"table:contracts,alias:c"`
	ID            int64                `bun:"id,pk,autoincrement"`
	Status        string               `bun:"status,notnull,type:varchar(16)"`
	Network       string               `bun:"network,notnull,type:varchar(64)"`
	Address       *string              `bun:"address,type:varchar(42)"`
	DeployPayload entity.DeployPayload `bun:"deploy_payload,notnull,type:jsonb"`
	WalletID      int64                `bun:"wallet_id,notnull"`
	TransactionID *int64               `bun:"transaction_id"`
	MetadataID    *int64               `bun:"metadata_id"`
	CreatedAt     time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toContractDao(c *entity.Contract) *ContractDao {
	dao := &ContractDao{
		ID:            c.ID,
		Status:        string(c.Status),
		Network:       c.Network,
		DeployPayload: c.DeployPayload,
		WalletID:      c.WalletID,
		TransactionID: c.TransactionID,
		MetadataID:    c.MetadataID,
	}
	if c.Address != "" {
		dao.Address = &c.Address
	}
	return dao
}

func toContract(dao *ContractDao) *entity.Contract {
	c := &entity.Contract{
		ID:            dao.ID,
		Status:        entity.Status(dao.Status),
		Network:       dao.Network,
		DeployPayload: dao.DeployPayload,
		WalletID:      dao.WalletID,
		TransactionID: dao.TransactionID,
		MetadataID:    dao.MetadataID,
		CreatedAt:     dao.CreatedAt,
		UpdatedAt:     dao.UpdatedAt,
	}
	if dao.Address != nil {
		c.Address = *dao.Address
	}
	return c
}

// TokenDao maps to the 'tokens' table.
type TokenDao struct {
	bun.BaseModel  `bun:"table:tokens,alias:tk"`
	ID             int64              `bun:"id,pk,autoincrement"`
	Status         string             `bun:"status,notnull,type:varchar(16)"`
	SequenceNumber *int64             `bun:"token_sequence_number"`
	ContractID     int64              `bun:"contract_id,notnull"`
	NFTNumber      int64              `bun:"nft_number,notnull,default:0"`
	MintPayload    entity.MintPayload `bun:"mint_payload,notnull,type:jsonb"`
	TxHash         *string            `bun:"tx_hash,type:varchar(66)"`
	Receipt        json.RawMessage    `bun:"tx_receipt,nullzero,type:jsonb"`
	TransactionID  *int64             `bun:"transaction_id"`
	MetadataID     *int64             `bun:"metadata_id"`
	CreatedAt      time.Time          `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time          `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toTokenDao(t *entity.Token) *TokenDao {
	dao := &TokenDao{
		ID:             t.ID,
		Status:         string(t.Status),
		SequenceNumber: t.SequenceNumber,
		ContractID:     t.ContractID,
		NFTNumber:      t.NFTNumber,
		MintPayload:    t.MintPayload,
		Receipt:        t.Receipt,
		TransactionID:  t.TransactionID,
		MetadataID:     t.MetadataID,
	}
	if t.TxHash != "" {
		dao.TxHash = &t.TxHash
	}
	return dao
}

func toToken(dao *TokenDao) *entity.Token {
	t := &entity.Token{
		ID:             dao.ID,
		Status:         entity.Status(dao.Status),
		SequenceNumber: dao.SequenceNumber,
		ContractID:     dao.ContractID,
		NFTNumber:      dao.NFTNumber,
		MintPayload:    dao.MintPayload,
		Receipt:        dao.Receipt,
		TransactionID:  dao.TransactionID,
		MetadataID:     dao.MetadataID,
		CreatedAt:      dao.CreatedAt,
		UpdatedAt:      dao.UpdatedAt,
	}
	if dao.TxHash != nil {
		t.TxHash = *dao.TxHash
	}
	return t
}

// WhitelistDao maps to the 'whitelist' table. A partial unique index on
// (contract_id, address) covers every row that is not DELETED.
type WhitelistDao struct {
	bun.BaseModel `bun:"table:whitelist,alias:wl"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Status        string    `bun:"status,notnull,type:varchar(16)"`
	ContractID    int64     `bun:"contract_id,notnull"`
	Address       string    `bun:"address,notnull,type:varchar(42)"`
	TransactionID *int64    `bun:"transaction_id"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toWhitelistEntry(dao *WhitelistDao) *entity.WhitelistEntry {
	return &entity.WhitelistEntry{
		ID:            dao.ID,
		Status:        entity.Status(dao.Status),
		ContractID:    dao.ContractID,
		Address:       dao.Address,
		TransactionID: dao.TransactionID,
		CreatedAt:     dao.CreatedAt,
		UpdatedAt:     dao.UpdatedAt,
	}
}

// MetadataDao maps to the 'metadata' table. A check constraint requires
// token_id for SPECIFIED rows and contract_id for COMMON rows.
type MetadataDao struct {
	bun.BaseModel `bun:"table:metadata,alias:md"`
	ID            int64          `bun:"id,pk,autoincrement"`
	Status        string         `bun:"status,notnull,type:varchar(16)"`
	Type          string         `bun:"type,notnull,type:varchar(16)"`
	MetaData      map[string]any `bun:"meta_data,notnull,type:jsonb"`
	ContractID    *int64         `bun:"contract_id"`
	TokenID       *int64         `bun:"token_id"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toMetadataDao(m *entity.Metadata) *MetadataDao {
	dao := &MetadataDao{
		ID:       m.ID,
		Status:   string(m.Status),
		Type:     string(m.Type()),
		MetaData: m.Fields,
	}
	if dao.MetaData == nil {
		dao.MetaData = map[string]any{}
	}
	switch owner := m.Owner.(type) {
	case entity.CommonOwner:
		dao.ContractID = &owner.ContractID
	case entity.SpecifiedOwner:
		dao.ContractID = &owner.ContractID
		dao.TokenID = &owner.TokenID
	}
	return dao
}

func toMetadata(dao *MetadataDao) *entity.Metadata {
	m := &entity.Metadata{
		ID:     dao.ID,
		Status: entity.Status(dao.Status),
		Fields: dao.MetaData,
	}
	var contractID int64
	if dao.ContractID != nil {
		contractID = *dao.ContractID
	}
	if entity.MetadataType(dao.Type) == entity.MetadataSpecified && dao.TokenID != nil {
		m.Owner = entity.SpecifiedOwner{ContractID: contractID, TokenID: *dao.TokenID}
	} else {
		m.Owner = entity.CommonOwner{ContractID: contractID}
	}
	return m
}

// TransactionDao maps to the 'transactions' table.
type TransactionDao struct {
	bun.BaseModel     `bun:"table:transactions,alias:tx"`
	ID                int64           `bun:"id,pk,autoincrement"`
	Network           string          `bun:"network,notnull,type:varchar(64)"`
	Kind              string          `bun:"kind,notnull,type:varchar(32)"`
	Status            string          `bun:"status,notnull,type:varchar(16)"`
	Address           string          `bun:"address,notnull,type:varchar(42)"`
	ToAddress         *string         `bun:"to_address,type:varchar(42)"`
	WalletID          *int64          `bun:"wallet_id"`
	Payload           json.RawMessage `bun:"tx_payload,notnull,type:jsonb"`
	TxHash            *string         `bun:"tx_hash,type:varchar(66)"`
	Receipt           json.RawMessage `bun:"tx_receipt,nullzero,type:jsonb"`
	Error             *string         `bun:"error,type:text"`
	ReconcileAttempts int             `bun:"reconcile_attempts,notnull,default:0"`
	NextReconcileAt   *time.Time      `bun:"next_reconcile_at"`
	ClaimedUntil      *time.Time      `bun:"claimed_until"`
	CreatedAt         time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toTransactionDao(t *entity.Transaction) *TransactionDao {
	dao := &TransactionDao{
		ID:                t.ID,
		Network:           t.Network,
		Kind:              string(t.Kind),
		Status:            string(t.Status),
		Address:           t.Address,
		WalletID:          t.WalletID,
		Payload:           t.Payload,
		Receipt:           t.Receipt,
		ReconcileAttempts: t.ReconcileAttempts,
		NextReconcileAt:   t.NextReconcileAt,
	}
	if len(dao.Payload) == 0 {
		dao.Payload = json.RawMessage(`{}`)
	}
	if t.ToAddress != "" {
		dao.ToAddress = &t.ToAddress
	}
	if t.TxHash != "" {
		dao.TxHash = &t.TxHash
	}
	if t.Error != "" {
		dao.Error = &t.Error
	}
	return dao
}

func toTransaction(dao *TransactionDao) *entity.Transaction {
	t := &entity.Transaction{
		ID:                dao.ID,
		Network:           dao.Network,
		Kind:              entity.Kind(dao.Kind),
		Status:            entity.Status(dao.Status),
		Address:           dao.Address,
		WalletID:          dao.WalletID,
		Payload:           dao.Payload,
		Receipt:           dao.Receipt,
		ReconcileAttempts: dao.ReconcileAttempts,
		NextReconcileAt:   dao.NextReconcileAt,
		CreatedAt:         dao.CreatedAt,
		UpdatedAt:         dao.UpdatedAt,
	}
	if dao.ToAddress != nil {
		t.ToAddress = *dao.ToAddress
	}
	if dao.TxHash != nil {
		t.TxHash = *dao.TxHash
	}
	if dao.Error != nil {
		t.Error = *dao.Error
	}
	return t
}

// JobDao maps to the 'jobs' table.
type JobDao struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`
	ID            string          `bun:"id,pk,type:uuid"`
	Kind          string          `bun:"kind,notnull,type:varchar(32)"`
	State         string          `bun:"state,notnull,type:varchar(16)"`
	Payload       json.RawMessage `bun:"payload,notnull,type:jsonb"`
	Result        json.RawMessage `bun:"result,nullzero,type:jsonb"`
	Error         *string         `bun:"error,type:text"`
	ErrorCategory *string         `bun:"error_category,type:varchar(64)"`
	Attempts      int             `bun:"attempts,notnull,default:0"`
	RunAt         time.Time       `bun:"run_at,notnull"`
	StartedAt     *time.Time      `bun:"started_at"`
	FinishedAt    *time.Time      `bun:"finished_at"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toJobDao(j *entity.Job) *JobDao {
	dao := &JobDao{
		ID:       j.ID,
		Kind:     string(j.Kind),
		State:    string(j.State),
		Payload:  j.Payload,
		Result:   j.Result,
		Attempts: j.Attempts,
		RunAt:    j.RunAt,
	}
	if len(dao.Payload) == 0 {
		dao.Payload = json.RawMessage(`{}`)
	}
	return dao
}

func toJob(dao *JobDao) *entity.Job {
	j := &entity.Job{
		ID:         dao.ID,
		Kind:       entity.Kind(dao.Kind),
		State:      entity.JobState(dao.State),
		Payload:    dao.Payload,
		Result:     dao.Result,
		Attempts:   dao.Attempts,
		RunAt:      dao.RunAt,
		StartedAt:  dao.StartedAt,
		FinishedAt: dao.FinishedAt,
		CreatedAt:  dao.CreatedAt,
		UpdatedAt:  dao.UpdatedAt,
	}
	if dao.Error != nil {
		j.Error = *dao.Error
	}
	if dao.ErrorCategory != nil {
		j.ErrorCategory = *dao.ErrorCategory
	}
	return j
}
