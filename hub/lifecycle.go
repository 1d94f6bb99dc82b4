package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/types"
)

// Watcher is the head-detection side of the lifecycle: started when the first
// subscriber connects, stopped when the last one leaves. Satisfied by
// tracker.Tracker.
type Watcher interface {
	Start(ctx context.Context)
	Stop()
	Heads() <-chan types.BlockHead
}

// Lifecycle binds the hub's subscriber-count transitions to the watcher and
// pumps detected heads into the hub. It is the single consumer of the
// watcher's event channel, which keeps delivery ordered across transports.
type Lifecycle struct {
	hub     *Hub
	watcher Watcher
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// opMu serializes activate/deactivate so a rapid
	// subscribe-unsubscribe-subscribe sequence cannot interleave a Start with
	// a Stop still in flight
	opMu sync.Mutex
}

// NewLifecycle wires the hub hooks to the watcher and starts the event pump
func NewLifecycle(h *Hub, w Watcher, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	l := &Lifecycle{
		hub:     h,
		watcher: w,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	h.SetHooks(l.activate, l.deactivate)

	l.wg.Add(1)
	go l.pump()
	return l
}

// Close stops the watcher and the pump
func (l *Lifecycle) Close() {
	l.cancel()
	l.opMu.Lock()
	l.watcher.Stop()
	l.opMu.Unlock()
	l.wg.Wait()
}

func (l *Lifecycle) pump() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case head, ok := <-l.watcher.Heads():
			if !ok {
				return
			}
			l.hub.Broadcast(head)
		}
	}
}

// activate runs off the subscriber's connect path; the baseline fetch can
// take seconds and must not block the upgrade/handshake.
func (l *Lifecycle) activate() {
	go func() {
		l.opMu.Lock()
		defer l.opMu.Unlock()
		if l.ctx.Err() != nil || l.hub.Count() == 0 {
			return
		}
		l.watcher.Start(l.ctx)
	}()
}

func (l *Lifecycle) deactivate() {
	go func() {
		l.opMu.Lock()
		defer l.opMu.Unlock()
		// Re-check under the op lock: a new subscriber may have arrived while
		// this was queued.
		if l.hub.Count() > 0 {
			return
		}
		l.watcher.Stop()
	}()
}
