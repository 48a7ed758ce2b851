// Package chain is the EVM RPC boundary used by the transaction pipeline,
// the orchestrator and the reconciler.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrUnknownNetwork is returned when a job names a network that is not configured.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrReceiptNotFound is returned while a transaction has not been mined.
	ErrReceiptNotFound = errors.New("receipt not found")
)

// Gateway reads chain state and broadcasts signed transactions on one network.
//
//go:generate mockery --name Gateway --output mocks --outpkg mocks --filename mock_gateway.go --with-expecter
type Gateway interface {
	ChainID() *big.Int
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	// TransactionReceipt returns ErrReceiptNotFound until the transaction is mined.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}
