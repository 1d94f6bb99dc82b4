package proxy

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Cache keys. The gateway memoizes exactly two reads: the head number and the
// single configured on-chain state call.
const (
	keyHeadNumber = "head_number"
	keyChainState = "chain_state"
)

// Upstream is the set of chain client operations the proxy governs.
type Upstream interface {
	HeadNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendRawTransaction(ctx context.Context, rawTx hexutil.Bytes) (common.Hash, error)
	SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Chain routes every outbound chain call through the governor so the global
// pacing invariant holds, and memoizes the frequent reads. All gateway
// components talk to the chain through this type, never to the raw client.
type Chain struct {
	upstream Upstream
	governor *Governor
	cache    *Cache

	// stateAddress/stateCalldata describe the single on-chain read exposed at
	// the state endpoint
	stateAddress  common.Address
	stateCalldata []byte

	logger *zap.Logger
}

// ChainConfig holds chain proxy configuration
type ChainConfig struct {
	// HeadNumberTTL is the memoization window for head number lookups
	// (default 2s)
	HeadNumberTTL time.Duration

	// StateTTL is the memoization window for the on-chain state read
	// (default 5s)
	StateTTL time.Duration

	// StateAddress is the contract backing the state endpoint
	StateAddress common.Address

	// StateCalldata is the ABI-encoded calldata for the state read
	StateCalldata []byte

	Logger *zap.Logger
}

// NewChain creates the governed chain facade
func NewChain(upstream Upstream, governor *Governor, cfg *ChainConfig) *Chain {
	headTTL := cfg.HeadNumberTTL
	if headTTL <= 0 {
		headTTL = 2 * time.Second
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Chain{
		upstream: upstream,
		governor: governor,
		cache: NewCache(headTTL, map[string]time.Duration{
			keyHeadNumber: headTTL,
			keyChainState: stateTTL,
		}),
		stateAddress:  cfg.StateAddress,
		stateCalldata: cfg.StateCalldata,
		logger:        logger,
	}
}

func (c *Chain) countCache(key string, hit bool) {
	m := c.governor.metrics
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(key).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(key).Inc()
	}
}

// HeadNumber returns the latest block number, served from cache within its TTL
func (c *Chain) HeadNumber(ctx context.Context) (uint64, error) {
	if cached, ok := c.cache.Get(keyHeadNumber); ok {
		c.countCache(keyHeadNumber, true)
		return cached.(uint64), nil
	}
	c.countCache(keyHeadNumber, false)

	var number uint64
	err := c.governor.Do(ctx, "head_number", func(ctx context.Context) error {
		var err error
		number, err = c.upstream.HeadNumber(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	c.cache.Put(keyHeadNumber, number)
	return number, nil
}

// BlockByNumber fetches a block with transactions
func (c *Chain) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	var block *types.Block
	err := c.governor.Do(ctx, "block_by_number", func(ctx context.Context) error {
		var err error
		block, err = c.upstream.BlockByNumber(ctx, number)
		return err
	})
	return block, err
}

// TransactionReceipt fetches a transaction receipt
func (c *Chain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.governor.Do(ctx, "transaction_receipt", func(ctx context.Context) error {
		var err error
		receipt, err = c.upstream.TransactionReceipt(ctx, hash)
		return err
	})
	return receipt, err
}

// Balance returns the current balance of an address
func (c *Chain) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	var balance *big.Int
	err := c.governor.Do(ctx, "balance", func(ctx context.Context) error {
		var err error
		balance, err = c.upstream.Balance(ctx, address)
		return err
	})
	return balance, err
}

// ChainState performs the configured on-chain state read, served from cache
// within its TTL. Two concurrent refreshes may both hit the chain; the last
// write wins, which is acceptable for a short-TTL memo.
func (c *Chain) ChainState(ctx context.Context) ([]byte, error) {
	if cached, ok := c.cache.Get(keyChainState); ok {
		c.countCache(keyChainState, true)
		return cached.([]byte), nil
	}
	c.countCache(keyChainState, false)

	var result []byte
	err := c.governor.Do(ctx, "chain_state", func(ctx context.Context) error {
		var err error
		result, err = c.upstream.CallContract(ctx, c.stateAddress, c.stateCalldata)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.cache.Put(keyChainState, result)
	return result, nil
}

// SendRawTransaction submits a signed transaction. Submission is paced but
// never retried; a duplicate submit is worse than a failed one.
func (c *Chain) SendRawTransaction(ctx context.Context, rawTx hexutil.Bytes) (common.Hash, error) {
	if err := c.governor.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	return c.upstream.SendRawTransaction(ctx, rawTx)
}

// SubscribeNewHeads passes the subscription handshake straight through; the
// push stream itself is not a polled read and needs no pacing.
func (c *Chain) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.upstream.SubscribeNewHeads(ctx, ch)
}

// CacheStats exposes cache counters for the health endpoint
func (c *Chain) CacheStats() (hits, misses int64, size int) {
	return c.cache.Stats()
}
