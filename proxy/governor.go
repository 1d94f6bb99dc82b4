package proxy

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Governor serializes outbound chain RPC calls. It enforces a minimum spacing
// between consecutive calls process-wide and retries rate-limit-class errors
// with linear backoff. Any other error class propagates immediately.
type Governor struct {
	limiter     *rate.Limiter
	maxAttempts int
	retryBase   time.Duration
	isRetryable func(error) bool
	logger      *zap.Logger
	metrics     *Metrics
}

// GovernorConfig holds governor configuration
type GovernorConfig struct {
	// MinSpacing is the minimum interval between consecutive outbound calls
	// (default 1s)
	MinSpacing time.Duration

	// MaxAttempts is the total number of attempts on retryable errors
	// (default 3)
	MaxAttempts int

	// RetryBase is the base backoff delay; attempt k waits RetryBase*k
	// (default 2s)
	RetryBase time.Duration

	// IsRetryable classifies errors worth retrying (required)
	IsRetryable func(error) bool

	Logger *zap.Logger
}

// NewGovernor creates a new governor
func NewGovernor(cfg *GovernorConfig) *Governor {
	minSpacing := cfg.MinSpacing
	if minSpacing <= 0 {
		minSpacing = time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Governor{
		limiter:     rate.NewLimiter(rate.Every(minSpacing), 1),
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		isRetryable: cfg.IsRetryable,
		logger:      logger,
	}
}

// SetMetrics enables Prometheus metrics for the governor (optional)
func (g *Governor) SetMetrics(m *Metrics) {
	g.metrics = m
}

// Do runs fn under the pacing and retry policy. The spacing wait and backoff
// sleeps honor ctx cancellation.
func (g *Governor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := g.retryBase * time.Duration(attempt-1)
			g.logger.Warn("retrying rate-limited call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if g.metrics != nil {
				g.metrics.RPCRetriesTotal.WithLabelValues(op).Inc()
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if waitErr := g.limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}

		if g.metrics != nil {
			g.metrics.RPCCallsTotal.WithLabelValues(op).Inc()
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if g.isRetryable == nil || !g.isRetryable(err) {
			return err
		}
	}

	g.logger.Error("call failed after retries",
		zap.String("op", op),
		zap.Int("attempts", g.maxAttempts),
		zap.Error(err))
	return err
}
