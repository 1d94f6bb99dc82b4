package proxy

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream counts calls per operation so tests can observe what actually
// reached the chain versus what the cache absorbed.
type fakeUpstream struct {
	mu         sync.Mutex
	headCalls  int
	callCalls  int
	headNumber uint64
	headErr    error
	stateData  []byte
	sentRaw    hexutil.Bytes
}

func (f *fakeUpstream) HeadNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.headNumber, nil
}

func (f *fakeUpstream) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	return types.NewBlockWithHeader(&types.Header{Number: new(big.Int).SetUint64(number)}), nil
}

func (f *fakeUpstream) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{TxHash: hash, BlockNumber: big.NewInt(1), Status: 1}, nil
}

func (f *fakeUpstream) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	return big.NewInt(1000), nil
}

func (f *fakeUpstream) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCalls++
	return f.stateData, nil
}

func (f *fakeUpstream) SendRawTransaction(ctx context.Context, rawTx hexutil.Bytes) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentRaw = rawTx
	return common.HexToHash("0xabc"), nil
}

func (f *fakeUpstream) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("no subscription in tests")
}

func newTestChain(upstream Upstream) *Chain {
	governor := NewGovernor(&GovernorConfig{
		MinSpacing:  time.Millisecond,
		MaxAttempts: 1,
		IsRetryable: func(error) bool { return false },
	})
	return NewChain(upstream, governor, &ChainConfig{
		HeadNumberTTL: time.Minute,
		StateTTL:      time.Minute,
		StateAddress:  common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		StateCalldata: []byte{0xde, 0xad},
	})
}

func TestChain_HeadNumberCached(t *testing.T) {
	upstream := &fakeUpstream{headNumber: 100}
	chain := newTestChain(upstream)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		number, err := chain.HeadNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), number)
	}

	assert.Equal(t, 1, upstream.headCalls, "repeat lookups inside the TTL should not reach the chain")
}

func TestChain_HeadNumberErrorNotCached(t *testing.T) {
	upstream := &fakeUpstream{headErr: errors.New("boom")}
	chain := newTestChain(upstream)
	ctx := context.Background()

	_, err := chain.HeadNumber(ctx)
	require.Error(t, err)

	upstream.mu.Lock()
	upstream.headErr = nil
	upstream.headNumber = 7
	upstream.mu.Unlock()

	number, err := chain.HeadNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), number)
	assert.Equal(t, 2, upstream.headCalls)
}

func TestChain_ChainStateCached(t *testing.T) {
	upstream := &fakeUpstream{stateData: []byte{0x01, 0x02}}
	chain := newTestChain(upstream)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := chain.ChainState(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02}, data)
	}

	assert.Equal(t, 1, upstream.callCalls)
}

func TestChain_BlockByNumberNotCached(t *testing.T) {
	upstream := &fakeUpstream{}
	chain := newTestChain(upstream)
	ctx := context.Background()

	block, err := chain.BlockByNumber(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, uint64(55), block.NumberU64())
}

func TestChain_SendRawTransaction(t *testing.T) {
	upstream := &fakeUpstream{}
	chain := newTestChain(upstream)

	raw := hexutil.Bytes{0x01, 0x02, 0x03}
	hash, err := chain.SendRawTransaction(context.Background(), raw)

	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xabc"), hash)
	assert.Equal(t, raw, upstream.sentRaw)
}

func TestChain_CacheStats(t *testing.T) {
	upstream := &fakeUpstream{headNumber: 1}
	chain := newTestChain(upstream)
	ctx := context.Background()

	_, _ = chain.HeadNumber(ctx) // miss
	_, _ = chain.HeadNumber(ctx) // hit

	hits, misses, size := chain.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, size)
}
