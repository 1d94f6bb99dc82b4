package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Client wraps the chain JSON-RPC endpoint with the operations the gateway
// needs. Push subscriptions require a separate websocket endpoint; when none
// is configured SubscribeNewHeads reports ErrSubscriptionUnsupported and the
// caller is expected to fall back to polling.
type Client struct {
	ethClient  *ethclient.Client
	rpcClient  *rpc.Client
	wsClient   *ethclient.Client
	endpoint   string
	wsEndpoint string
	timeout    time.Duration
	logger     *zap.Logger
}

// Config holds client configuration
type Config struct {
	// Endpoint is the HTTP(S) JSON-RPC endpoint (required)
	Endpoint string

	// WSEndpoint is the websocket JSON-RPC endpoint used for newHeads
	// subscriptions (optional)
	WSEndpoint string

	// Timeout bounds individual write/submit calls (default 30s)
	Timeout time.Duration

	Logger *zap.Logger
}

// NewClient creates a new chain client and verifies connectivity
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	c := &Client{
		ethClient:  ethclient.NewClient(rpcClient),
		rpcClient:  rpcClient,
		endpoint:   cfg.Endpoint,
		wsEndpoint: cfg.WSEndpoint,
		timeout:    timeout,
		logger:     logger,
	}

	if err := c.Ping(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	logger.Info("connected to chain RPC",
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("ws_available", cfg.WSEndpoint != ""))

	return c, nil
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the underlying connections
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
	if c.wsClient != nil {
		c.wsClient.Close()
	}
}

// ChainID returns the chain ID
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return chainID, nil
}

// HeadNumber returns the latest block number
func (c *Client) HeadNumber(ctx context.Context) (uint64, error) {
	number, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get head number: %w", err)
	}
	return number, nil
}

// BlockByNumber fetches a block by its number, including transactions
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	block, err := c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	return block, nil
}

// HeaderByNumber fetches a bare header by its number
func (c *Client) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("failed to get header %d: %w", number, err)
	}
	return header, nil
}

// TransactionReceipt fetches a transaction receipt
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// Balance returns the current balance of an address
func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.ethClient.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", address.Hex(), err)
	}
	return balance, nil
}

// CallContract performs a read-only contract call against the latest state
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	result, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call to %s failed: %w", to.Hex(), err)
	}
	return result, nil
}

// SendRawTransaction submits a signed raw transaction. The call is bounded by
// the configured timeout regardless of the caller's context.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx hexutil.Bytes) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var hash common.Hash
	if err := c.rpcClient.CallContext(ctx, &hash, "eth_sendRawTransaction", rawTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit transaction: %w", err)
	}
	return hash, nil
}

// SubscribeNewHeads subscribes to new block headers over the websocket
// endpoint. The handshake is bounded by the caller's context deadline.
func (c *Client) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if c.wsEndpoint == "" {
		return nil, ErrSubscriptionUnsupported
	}

	if c.wsClient == nil {
		wsClient, err := ethclient.DialContext(ctx, c.wsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to dial websocket endpoint: %w", err)
		}
		c.wsClient = wsClient
	}

	sub, err := c.wsClient.SubscribeNewHead(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	return sub, nil
}
