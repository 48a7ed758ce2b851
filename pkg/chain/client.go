package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chainsafe/contract-jobs/pkg/config"
)

// Client is a rate limited go-ethereum backed Gateway
type Client struct {
	network string
	chainID *big.Int
	client  *ethclient.Client
	limiter *rate.Limiter
}

// Dial connects to the network's RPC endpoint and checks that the remote
// chain id matches the configured one.
func Dial(ctx context.Context, network string, cfg config.NetworkConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", network, err)
	}

	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read %s chain id: %w", network, err)
	}
	if remote.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("network %s: rpc reports chain id %s, configured %d", network, remote, cfg.ChainID)
	}

	logger.Info("Connected to network",
		zap.String("network", network),
		zap.Int64("chain_id", cfg.ChainID),
		zap.Float64("rate_limit_rps", cfg.RateLimitRPS))

	return &Client{
		network: network,
		chainID: remote,
		client:  client,
		limiter: newLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	c.client.Close()
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit: %w", c.network, err)
	}
	return nil
}

// ChainID returns the chain id verified at dial time
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.client.PendingNonceAt(ctx, account)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.client.SuggestGasPrice(ctx)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.client.EstimateGas(ctx, msg)
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.client.BalanceAt(ctx, account, nil)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	return c.client.SendTransaction(ctx, tx)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	return receipt, err
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.client.CallContract(ctx, msg, nil)
}

var _ Gateway = (*Client)(nil)
