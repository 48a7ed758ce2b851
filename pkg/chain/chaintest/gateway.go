// Package chaintest provides an in-memory chain.Gateway for tests.
package chaintest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/contract-jobs/pkg/chain"
)

// Gateway mines every accepted transaction immediately unless receipts are
// held. Balances are never debited.
type Gateway struct {
	mu sync.Mutex

	chainID  *big.Int
	gas      uint64
	gasPrice *big.Int
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	held     map[common.Hash]*types.Receipt
	sent     []*types.Transaction
	calls    []ethereum.CallMsg

	hold       bool
	revert     bool
	sendErr    error
	callResult []byte
	block      int64
}

// NewGateway returns a gateway for chainID estimating 100k gas at 1 gwei.
func NewGateway(chainID int64) *Gateway {
	return &Gateway{
		chainID:  big.NewInt(chainID),
		gas:      100_000,
		gasPrice: big.NewInt(1_000_000_000),
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		held:     make(map[common.Hash]*types.Receipt),
	}
}

func (g *Gateway) SetBalance(account common.Address, wei *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[account] = new(big.Int).Set(wei)
}

func (g *Gateway) SetGas(gas uint64, gasPrice *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gas = gas
	g.gasPrice = new(big.Int).Set(gasPrice)
}

// HoldReceipts keeps new receipts unavailable until Release is called.
func (g *Gateway) HoldReceipts(hold bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = hold
}

// Release makes every held receipt visible.
func (g *Gateway) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for hash, receipt := range g.held {
		g.receipts[hash] = receipt
		delete(g.held, hash)
	}
}

// Revert makes subsequent transactions mine with a failed status.
func (g *Gateway) Revert(revert bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revert = revert
}

func (g *Gateway) FailSend(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendErr = err
}

func (g *Gateway) SetCallResult(data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callResult = data
}

// Sent returns the broadcast transactions in order.
func (g *Gateway) Sent() []*types.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*types.Transaction(nil), g.sent...)
}

// Calls returns the read-only calls in order.
func (g *Gateway) Calls() []ethereum.CallMsg {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ethereum.CallMsg(nil), g.calls...)
}

func (g *Gateway) ChainID() *big.Int {
	return new(big.Int).Set(g.chainID)
}

func (g *Gateway) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nonces[account], nil
}

func (g *Gateway) SuggestGasPrice(context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.gasPrice), nil
}

func (g *Gateway) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gas, nil
}

func (g *Gateway) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (g *Gateway) SendTransaction(_ context.Context, tx *types.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sendErr != nil {
		return g.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(g.chainID), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() != g.nonces[from] {
		return errors.New("nonce too low")
	}
	g.nonces[from]++
	g.sent = append(g.sent, tx)
	g.block++

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: tx.Gas(),
		GasUsed:           tx.Gas(),
		TxHash:            tx.Hash(),
		BlockNumber:       big.NewInt(g.block),
		Logs:              []*types.Log{},
	}
	if g.revert {
		receipt.Status = types.ReceiptStatusFailed
	}
	if tx.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	}

	if g.hold {
		g.held[tx.Hash()] = receipt
	} else {
		g.receipts[tx.Hash()] = receipt
	}
	return nil
}

func (g *Gateway) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.receipts[txHash]; ok {
		return r, nil
	}
	return nil, chain.ErrReceiptNotFound
}

func (g *Gateway) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, msg)
	return g.callResult, nil
}

var _ chain.Gateway = (*Gateway)(nil)
