package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/client"
	"github.com/zaki9501/pikimon-mcp-server/types"
)

// Mode is the tracker's detection state
type Mode int32

const (
	// ModeIdle means no subscribers and no watching
	ModeIdle Mode = iota

	// ModeStarting means the baseline head is being established
	ModeStarting

	// ModePolling means heads are detected by interval polling
	ModePolling

	// ModeSubscribed means heads are pushed by the provider
	ModeSubscribed

	// ModeStopping means a stop has been requested and the loop is winding down
	ModeStopping
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeStarting:
		return "starting"
	case ModePolling:
		return "polling"
	case ModeSubscribed:
		return "subscribed"
	case ModeStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ChainSource is the set of chain operations the tracker consumes. Satisfied
// by the governed proxy so every poll goes through the pacing/retry policy.
type ChainSource interface {
	HeadNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*ethtypes.Block, error)
	SubscribeNewHeads(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
}

// Config holds tracker configuration
type Config struct {
	// PollInterval is the spacing between head checks in poll mode (default 2s)
	PollInterval time.Duration

	// ErrorInterval is the extended spacing after a failed poll (default 5s)
	ErrorInterval time.Duration

	// SubscribeTimeout bounds the subscription handshake; on expiry the
	// tracker falls back to polling (default 10s)
	SubscribeTimeout time.Duration

	// DisableSubscription forces poll mode without attempting a subscription.
	// Set for providers known not to support newHeads pushes.
	DisableSubscription bool

	// BufferSize is the outbound event channel capacity (default 16)
	BufferSize int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = 2 * time.Second
	}
	if out.ErrorInterval <= 0 {
		out.ErrorInterval = 5 * time.Second
	}
	if out.SubscribeTimeout <= 0 {
		out.SubscribeTimeout = 10 * time.Second
	}
	if out.BufferSize <= 0 {
		out.BufferSize = 16
	}
	return out
}

// Tracker detects new chain heads by push subscription or polling and emits
// each head exactly once, in strictly increasing block-number order, on its
// outbound channel. At most one detection mechanism runs at a time.
//
// Polling checks only whether the current head number advanced and then
// fetches that single head. Blocks produced between two polls are skipped,
// not backfilled.
type Tracker struct {
	source ChainSource
	cfg    Config
	logger *zap.Logger
	out    chan types.BlockHead

	mu            sync.Mutex
	mode          Mode
	lastSeen      uint64
	haveBaseline  bool
	failureStreak int
	cancel        context.CancelFunc
	done          chan struct{}
}

// New creates a tracker in Idle mode
func New(source ChainSource, cfg *Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	resolved := cfg.withDefaults()
	return &Tracker{
		source: source,
		cfg:    resolved,
		logger: logger,
		out:    make(chan types.BlockHead, resolved.BufferSize),
	}
}

// Heads returns the outbound event channel. It has a single consumer; the
// tracker does not advance past a head until the consumer has taken it.
func (t *Tracker) Heads() <-chan types.BlockHead {
	return t.out
}

// Mode returns the current detection state
func (t *Tracker) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// LastSeen returns the highest head number observed this session
func (t *Tracker) LastSeen() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen, t.haveBaseline
}

// FailureStreak returns the count of consecutive failed polls
func (t *Tracker) FailureStreak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failureStreak
}

// Start moves the tracker out of Idle: it fetches the current head as the
// baseline (only heads strictly after it are announced) and launches the
// detection loop. A Start while already active is a no-op, so concurrent
// activations cannot spawn a second mechanism.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.mode != ModeIdle {
		t.mu.Unlock()
		return
	}
	t.mode = ModeStarting
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	done := make(chan struct{})
	t.done = done
	t.mu.Unlock()

	baseline, err := t.source.HeadNumber(runCtx)
	t.mu.Lock()
	if err != nil {
		// Not fatal: the first successful poll establishes the baseline
		// without announcing it.
		t.haveBaseline = false
		t.logger.Warn("baseline head fetch failed, deferring to first poll", zap.Error(err))
	} else {
		t.lastSeen = baseline
		t.haveBaseline = true
		t.logger.Info("tracking started", zap.Uint64("baseline", baseline))
	}
	t.mu.Unlock()

	go t.run(runCtx, done)
}

// Stop winds the detection loop down and returns once it has fully exited.
// The tracker is back in Idle afterwards; a later Start establishes a fresh
// baseline.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.mode == ModeIdle || t.cancel == nil {
		t.mu.Unlock()
		return
	}
	t.mode = ModeStopping
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.mu.Unlock()

	cancel()
	<-done
	t.logger.Info("tracking stopped")
}

func (t *Tracker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		t.mu.Lock()
		t.mode = ModeIdle
		t.haveBaseline = false
		t.failureStreak = 0
		t.mu.Unlock()
	}()

	if !t.cfg.DisableSubscription {
		if finished := t.runSubscribed(ctx); finished {
			return
		}
		// Any subscription failure forces poll mode for the rest of the
		// session; no further subscription attempts.
	}

	t.runPolling(ctx)
}

// runSubscribed attempts the push subscription and consumes it until the
// session ends. Returns false when the tracker should fall back to polling.
func (t *Tracker) runSubscribed(ctx context.Context) bool {
	headers := make(chan *ethtypes.Header, 16)

	handshakeCtx, cancel := context.WithTimeout(ctx, t.cfg.SubscribeTimeout)
	sub, err := t.source.SubscribeNewHeads(handshakeCtx, headers)
	cancel()
	if err != nil {
		if errors.Is(err, client.ErrSubscriptionUnsupported) {
			t.logger.Info("provider does not support push subscriptions, polling instead")
		} else {
			t.logger.Warn("head subscription failed, falling back to polling", zap.Error(err))
		}
		return ctx.Err() != nil
	}
	defer sub.Unsubscribe()

	t.setMode(ModeSubscribed)
	t.logger.Info("subscribed to new heads")

	for {
		select {
		case <-ctx.Done():
			return true
		case err := <-sub.Err():
			t.logger.Warn("head subscription broke, falling back to polling", zap.Error(err))
			return false
		case header := <-headers:
			t.handleHead(ctx, types.HeadFromHeader(header))
		}
	}
}

func (t *Tracker) runPolling(ctx context.Context) {
	t.setMode(ModePolling)
	t.logger.Info("polling for new heads", zap.Duration("interval", t.cfg.PollInterval))

	timer := time.NewTimer(t.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		timer.Reset(t.pollOnce(ctx))
	}
}

// pollOnce performs one head check and returns the interval until the next.
// Errors never break the loop; they only stretch the interval.
func (t *Tracker) pollOnce(ctx context.Context) time.Duration {
	head, err := t.source.HeadNumber(ctx)
	if err != nil {
		t.recordFailure("head poll failed", err)
		return t.cfg.ErrorInterval
	}

	t.mu.Lock()
	if !t.haveBaseline {
		t.lastSeen = head
		t.haveBaseline = true
		t.failureStreak = 0
		t.mu.Unlock()
		t.logger.Info("baseline head established", zap.Uint64("baseline", head))
		return t.cfg.PollInterval
	}
	last := t.lastSeen
	t.mu.Unlock()

	if head > last {
		// Fetch only the current head. If more than one block was produced
		// within the interval, the intermediate ones are skipped.
		block, err := t.source.BlockByNumber(ctx, head)
		if err != nil {
			t.recordFailure("head block fetch failed", err)
			return t.cfg.ErrorInterval
		}
		if !t.emit(ctx, types.HeadFromBlock(block)) {
			return t.cfg.PollInterval
		}
		t.mu.Lock()
		t.lastSeen = head
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.failureStreak = 0
	t.mu.Unlock()
	return t.cfg.PollInterval
}

// handleHead applies the dedupe rule to a pushed head and forwards it
func (t *Tracker) handleHead(ctx context.Context, head types.BlockHead) {
	t.mu.Lock()
	if t.haveBaseline && head.Number <= t.lastSeen {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if !t.emit(ctx, head) {
		return
	}

	t.mu.Lock()
	t.lastSeen = head.Number
	t.haveBaseline = true
	t.mu.Unlock()
}

// emit delivers a head to the consumer. It blocks until the consumer takes
// the event, which is what keeps the emitted sequence ordered: lastSeen only
// advances after delivery completes.
func (t *Tracker) emit(ctx context.Context, head types.BlockHead) bool {
	select {
	case t.out <- head:
		t.logger.Debug("new head emitted",
			zap.Uint64("number", head.Number),
			zap.String("hash", head.Hash))
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Tracker) setMode(m Mode) {
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
}

func (t *Tracker) recordFailure(msg string, err error) {
	t.mu.Lock()
	t.failureStreak++
	streak := t.failureStreak
	t.mu.Unlock()
	t.logger.Warn(msg, zap.Int("failure_streak", streak), zap.Error(err))
}
