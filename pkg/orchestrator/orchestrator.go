// Package orchestrator turns queued job payloads into contract deployments,
// mints, whitelist updates and generic calls.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/contract-jobs/pkg/app/errors"
	"github.com/chainsafe/contract-jobs/pkg/chain"
	"github.com/chainsafe/contract-jobs/pkg/entity"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

var (
	ErrArgumentArityMismatch = errors.New("argument count does not match method inputs")
	ErrAllAddressesExist     = errors.New("all addresses already whitelisted")
	ErrNothingRemoved        = errors.New("no whitelisted address matched")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrContractNotFound      = errors.New("contract not found")
	ErrContractNotDeployed   = errors.New("contract is not deployed")
)

// Store is the persistence the orchestrator reads and writes
type Store interface {
	GetWalletByTeam(ctx context.Context, teamID string) (*entity.Wallet, error)

	CreateContract(ctx context.Context, contract *entity.Contract) error
	GetContract(ctx context.Context, id int64) (*entity.Contract, error)
	SetContractMetadata(ctx context.Context, contractID, metadataID int64) error

	CreateToken(ctx context.Context, token *entity.Token) error
	SetTokenMetadata(ctx context.Context, tokenID, metadataID int64) error

	ListActiveAddresses(ctx context.Context, contractID int64) ([]string, error)
	AddWhitelistEntries(ctx context.Context, contractID int64, addresses []string, txID *int64) ([]*entity.WhitelistEntry, error)
	RemoveWhitelistEntries(ctx context.Context, contractID int64, addresses []string) ([]*entity.WhitelistEntry, error)

	CreateMetadata(ctx context.Context, metadata *entity.Metadata) error
	GetMetadata(ctx context.Context, id int64) (*entity.Metadata, error)
	GetTokenMetadata(ctx context.Context, tokenID int64) (*entity.Metadata, error)
	UpdateMetadataFields(ctx context.Context, id int64, fields map[string]any) error
}

// Submitter runs a transaction through the pipeline
//
//go:generate mockery --name Submitter --output mocks --outpkg mocks --filename mock_submitter.go --with-expecter
type Submitter interface {
	Submit(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)
}

// Gateways resolves a network to its chain gateway
type Gateways interface {
	Get(network string) (chain.Gateway, error)
}

// Uploader stores a metadata asset and returns the URI to reference it by
type Uploader interface {
	Upload(ctx context.Context, ref string) (string, error)
}

// Service executes each operation kind
type Service interface {
	Deploy(ctx context.Context, req *DeployRequest) (*DeployResult, error)
	Mint(ctx context.Context, req *MintRequest) (*MintResult, error)
	WhitelistAdd(ctx context.Context, req *WhitelistRequest) (*WhitelistResult, error)
	WhitelistRemove(ctx context.Context, req *WhitelistRequest) (*WhitelistResult, error)
	Call(ctx context.Context, req *CallRequest) (*CallResult, error)
}

type orchestrator struct {
	store      Store
	submitter  Submitter
	gateways   Gateways
	uploader   Uploader
	passphrase string
	validate   *validator.Validate
	logger     *zap.Logger
}

// Option configures optional collaborators
type Option func(*orchestrator)

// WithUploader enables metadata image uploads
func WithUploader(u Uploader) Option {
	return func(o *orchestrator) {
		o.uploader = u
	}
}

// New creates the orchestrator service. passphrase unlocks team keystores.
func New(
	st Store,
	submitter Submitter,
	gateways Gateways,
	passphrase string,
	logger *zap.Logger,
	opts ...Option,
) Service {
	o := &orchestrator{
		store:      st,
		submitter:  submitter,
		gateways:   gateways,
		passphrase: passphrase,
		validate:   validator.New(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *orchestrator) validateRequest(req any) error {
	if err := o.validate.Struct(req); err != nil {
		return apperrors.BadRequestError(err, "invalid payload: "+err.Error())
	}
	return nil
}

// signer is the account a submission is priced and signed for. key is nil
// for dry runs.
type signer struct {
	from     common.Address
	walletID *int64
	key      *ecdsa.PrivateKey
}

// resolveSigner loads the team wallet. A dry run without a wallet may name
// the account to price against with from.
func (o *orchestrator) resolveSigner(ctx context.Context, teamID, from string, execute bool) (*signer, error) {
	var wallet *entity.Wallet
	if teamID != "" {
		w, err := o.store.GetWalletByTeam(ctx, teamID)
		switch {
		case err == nil:
			wallet = w
		case !errors.Is(err, store.ErrNotFound):
			return nil, apperrors.GeneralError(fmt.Errorf("failed to load wallet for team %s: %w", teamID, err))
		}
	}

	if wallet == nil {
		if execute || !common.IsHexAddress(from) {
			return nil, apperrors.ResourceNotFoundError(
				fmt.Errorf("%w: team %q", ErrWalletNotFound, teamID), "wallet not found")
		}
		return &signer{from: common.HexToAddress(from)}, nil
	}

	s := &signer{from: common.HexToAddress(wallet.Address), walletID: &wallet.ID}
	if !execute {
		return s, nil
	}

	key, err := chain.DecryptKey(wallet.EncryptedKeystore, o.passphrase)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("wallet %d: %w", wallet.ID, err))
	}
	if chain.AddressOf(key) != s.from {
		return nil, apperrors.GeneralError(fmt.Errorf("wallet %d: keystore does not match address %s", wallet.ID, wallet.Address))
	}
	s.key = key
	return s, nil
}

// deployedContract loads a contract that has reached the chain and checks
// that the requested network, if any, matches it.
func (o *orchestrator) deployedContract(ctx context.Context, id int64, network string) (*entity.Contract, error) {
	contract, err := o.store.GetContract(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ResourceNotFoundError(fmt.Errorf("%w: %d", ErrContractNotFound, id), "contract not found")
	}
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to load contract %d: %w", id, err))
	}
	if contract.Status != entity.StatusProcessed || contract.Address == "" {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("%w: contract %d is %s", ErrContractNotDeployed, id, contract.Status), "contract is not deployed")
	}
	if network != "" && !strings.EqualFold(network, contract.Network) {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("contract %d is on %s, not %s", id, contract.Network, network), "network does not match contract")
	}
	return contract, nil
}

// Submission is the transaction part of every write result
type Submission struct {
	TransactionID int64             `json:"transaction_id,omitempty"`
	Status        entity.Status     `json:"status,omitempty"`
	TxHash        string            `json:"tx_hash,omitempty"`
	Tx            pipeline.Request  `json:"tx"`
	Estimate      pipeline.Estimate `json:"estimate"`
}

func newSubmission(res *pipeline.Result) Submission {
	s := Submission{Tx: res.Request, Estimate: res.Estimate}
	if res.Transaction != nil {
		s.TransactionID = res.Transaction.ID
		s.Status = res.Transaction.Status
		s.TxHash = res.Transaction.TxHash
	}
	return s
}
