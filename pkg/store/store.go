// Package store persists wallets, contracts, tokens, whitelist entries,
// metadata, transactions and queued jobs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chainsafe/contract-jobs/pkg/entity"
)

var (
	// ErrNotFound is returned when a lookup finds no matching record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is returned when a status update does not start
	// from one of the expected statuses.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyExists is returned when an insert violates a unique constraint.
	ErrAlreadyExists = errors.New("record already exists")
)

// WalletStore persists team wallets
type WalletStore interface {
	CreateWallet(ctx context.Context, wallet *entity.Wallet) error
	GetWallet(ctx context.Context, id int64) (*entity.Wallet, error)
	GetWalletByTeam(ctx context.Context, teamID string) (*entity.Wallet, error)
}

// ContractStore persists deployed contracts
type ContractStore interface {
	CreateContract(ctx context.Context, contract *entity.Contract) error
	GetContract(ctx context.Context, id int64) (*entity.Contract, error)
	SetContractMetadata(ctx context.Context, contractID, metadataID int64) error
	// SettleContract finalizes the CREATED contract deployed by transaction txID.
	SettleContract(ctx context.Context, txID int64, status entity.Status, address string) error
}

// TokenStore persists minted tokens
type TokenStore interface {
	CreateToken(ctx context.Context, token *entity.Token) error
	GetToken(ctx context.Context, id int64) (*entity.Token, error)
	SetTokenMetadata(ctx context.Context, tokenID, metadataID int64) error
	CountTokens(ctx context.Context, contractID int64, status entity.Status) (int64, error)
	// SettleToken marks the CREATED token minted by txID as PROCESSED and
	// assigns its sequence number.
	SettleToken(ctx context.Context, txID int64, txHash string, receipt []byte) error
}

// WhitelistStore persists whitelist membership
type WhitelistStore interface {
	ListActiveAddresses(ctx context.Context, contractID int64) ([]string, error)
	// AddWhitelistEntries inserts CREATED rows, skipping addresses already
	// active for the contract, and returns only the rows it inserted.
	AddWhitelistEntries(ctx context.Context, contractID int64, addresses []string, txID *int64) ([]*entity.WhitelistEntry, error)
	// RemoveWhitelistEntries soft-deletes active rows and returns the rows it changed.
	RemoveWhitelistEntries(ctx context.Context, contractID int64, addresses []string) ([]*entity.WhitelistEntry, error)
	// SettleWhitelistEntries moves the CREATED rows added by txID to status.
	SettleWhitelistEntries(ctx context.Context, txID int64, status entity.Status) (int64, error)
}

// MetadataStore persists contract and token metadata
type MetadataStore interface {
	CreateMetadata(ctx context.Context, metadata *entity.Metadata) error
	GetMetadata(ctx context.Context, id int64) (*entity.Metadata, error)
	GetTokenMetadata(ctx context.Context, tokenID int64) (*entity.Metadata, error)
	UpdateMetadataFields(ctx context.Context, id int64, fields map[string]any) error
}

// TransactionStore persists the on-chain transaction ledger
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *entity.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*entity.Transaction, error)
	ListTransactions(ctx context.Context, opts ...QueryOption) ([]*entity.Transaction, error)
	// TransitionTransaction applies patch only if the row is currently in one
	// of the from statuses, otherwise it returns ErrInvalidTransition.
	TransitionTransaction(ctx context.Context, id int64, from []entity.Status, patch entity.TransactionPatch) (*entity.Transaction, error)
	// ClaimPendingTransactions leases up to limit PENDING rows that are due for
	// a receipt check. A leased row is skipped by other callers until the lease
	// expires or the row is transitioned.
	ClaimPendingTransactions(ctx context.Context, limit int, lease time.Duration) ([]*entity.Transaction, error)
}

// JobStore is the durable job queue
type JobStore interface {
	CreateJob(ctx context.Context, job *entity.Job) error
	GetJob(ctx context.Context, id string) (*entity.Job, error)
	// ClaimJob moves the oldest due waiting job to active. It returns
	// ErrNotFound when nothing is due.
	ClaimJob(ctx context.Context) (*entity.Job, error)
	FinishJob(ctx context.Context, id string, state entity.JobState, result []byte, errMsg, category string) error
}

// Store aggregates every persistence concern
type Store interface {
	WalletStore
	ContractStore
	TokenStore
	WhitelistStore
	MetadataStore
	TransactionStore
	JobStore
}

// QueryOptions defines filters for listing transactions
type QueryOptions struct {
	Status  *entity.Status
	Network *string
	Kind    *entity.Kind
	Limit   int
}

// QueryOption is a functional option for listing transactions
type QueryOption func(*QueryOptions)

// WithStatus sets the status filter
func WithStatus(status entity.Status) QueryOption {
	return func(opts *QueryOptions) {
		opts.Status = &status
	}
}

// WithNetwork sets the network filter
func WithNetwork(network string) QueryOption {
	return func(opts *QueryOptions) {
		opts.Network = &network
	}
}

// WithKind sets the operation kind filter
func WithKind(kind entity.Kind) QueryOption {
	return func(opts *QueryOptions) {
		opts.Kind = &kind
	}
}

// WithLimit caps the number of rows returned
func WithLimit(limit int) QueryOption {
	return func(opts *QueryOptions) {
		opts.Limit = limit
	}
}

// NewQueryOptions folds opts into a QueryOptions value.
func NewQueryOptions(opts ...QueryOption) *QueryOptions {
	options := &QueryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
