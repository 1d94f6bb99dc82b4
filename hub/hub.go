package hub

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/internal/constants"
	"github.com/zaki9501/pikimon-mcp-server/types"
)

// Transport identifies a subscriber's protocol kind. The envelope a
// subscriber receives depends on its transport.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSSE       Transport = "sse"
	TransportMCP       Transport = "mcp-sse"
)

// Subscriber is a live long-lived connection owned by the hub. It is created
// on connect and destroyed on disconnect or write failure; transports read
// serialized frames from Receive and write them to the wire.
type Subscriber struct {
	ID        string
	Transport Transport

	send   chan []byte
	closed bool
}

// Receive returns the subscriber's frame channel. The channel is closed when
// the hub removes the subscriber.
func (s *Subscriber) Receive() <-chan []byte {
	return s.send
}

// Hub maintains the set of connected subscriber sessions across all
// transports and broadcasts block events to them. The first subscription and
// the removal of the last subscriber fire the activation hooks, which the
// lifecycle coordinator binds to the head tracker.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscriber
	lastNumber uint64
	hasLast    bool

	onFirst func()
	onLast  func()

	sendBuffer int
	logger     *zap.Logger
	metrics    *Metrics
}

// New creates an empty hub
func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:       make(map[string]*Subscriber),
		sendBuffer: constants.DefaultSendBuffer,
		logger:     logger,
	}
}

// SetMetrics enables Prometheus metrics for the hub (optional)
func (h *Hub) SetMetrics(m *Metrics) {
	h.metrics = m
}

// SetHooks installs the first-subscriber/last-subscriber callbacks. Must be
// called before the first Subscribe.
func (h *Hub) SetHooks(onFirst, onLast func()) {
	h.mu.Lock()
	h.onFirst = onFirst
	h.onLast = onLast
	h.mu.Unlock()
}

// Subscribe registers a new subscriber session for the given transport
func (h *Hub) Subscribe(transport Transport) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		Transport: transport,
		send:      make(chan []byte, h.sendBuffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	first := total == 1
	onFirst := h.onFirst
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.WithLabelValues(string(transport)).Inc()
		h.metrics.SubscriptionsTotal.Inc()
	}
	h.logger.Info("subscriber connected",
		zap.String("id", sub.ID),
		zap.String("transport", string(transport)),
		zap.Int("total", total))

	if first && onFirst != nil {
		onFirst()
	}
	return sub
}

// Unsubscribe removes a subscriber session and closes its frame channel
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		h.removeLocked(sub)
	}
	total := len(h.subs)
	last := ok && total == 0
	onLast := h.onLast
	h.mu.Unlock()

	if !ok {
		return
	}
	h.logger.Info("subscriber disconnected",
		zap.String("id", id),
		zap.String("transport", string(sub.Transport)),
		zap.Int("total", total))

	if last && onLast != nil {
		onLast()
	}
}

// Count returns the number of connected subscribers across all transports
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// CountByTransport returns per-transport subscriber counts
func (h *Hub) CountByTransport() map[Transport]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	counts := make(map[Transport]int, 3)
	for _, sub := range h.subs {
		counts[sub.Transport]++
	}
	return counts
}

// Broadcast serializes the head once per transport kind and writes it to
// every live subscriber. A subscriber whose buffer is full or whose channel
// is gone is removed; the failure never reaches other subscribers or the
// caller. Events that do not advance the last broadcast number are dropped,
// so no subscriber can see the same block twice.
func (h *Hub) Broadcast(head types.BlockHead) {
	h.mu.Lock()
	if h.hasLast && head.Number <= h.lastNumber {
		h.mu.Unlock()
		return
	}
	h.lastNumber = head.Number
	h.hasLast = true

	frames := map[Transport][]byte{
		TransportWebSocket: newBlockEnvelope(head),
		TransportSSE:       newBlockEnvelope(head),
		TransportMCP:       mcpNewBlockNotification(head),
	}

	var removed []*Subscriber
	sent := 0
	for _, sub := range h.subs {
		select {
		case sub.send <- frames[sub.Transport]:
			sent++
		default:
			// Slow or dead connection; drop it rather than stall the rest.
			removed = append(removed, sub)
		}
	}
	for _, sub := range removed {
		h.removeLocked(sub)
	}
	total := len(h.subs)
	last := len(removed) > 0 && total == 0
	onLast := h.onLast
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.EventsBroadcastTotal.Inc()
		h.metrics.DeliveriesTotal.Add(float64(sent))
		h.metrics.DroppedSubscribersTotal.Add(float64(len(removed)))
	}
	for _, sub := range removed {
		h.logger.Warn("subscriber write failed, removed",
			zap.String("id", sub.ID),
			zap.String("transport", string(sub.Transport)))
	}
	h.logger.Debug("block broadcast",
		zap.Uint64("number", head.Number),
		zap.Int("recipients", sent))

	if last && onLast != nil {
		onLast()
	}
}

// BroadcastError pushes an in-band degraded-condition event to every
// subscriber instead of terminating connections
func (h *Hub) BroadcastError(message string) {
	frames := map[Transport][]byte{
		TransportWebSocket: errorEnvelope(message),
		TransportSSE:       errorEnvelope(message),
		TransportMCP:       mcpErrorNotification(message),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.send <- frames[sub.Transport]:
		default:
		}
	}
}

// Send delivers a frame to a single subscriber. Used by the MCP transport to
// push per-session JSON-RPC responses. The read lock is held across the send
// so a concurrent removal cannot close the channel mid-send.
func (h *Hub) Send(id string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sub, ok := h.subs[id]
	if !ok {
		return false
	}

	select {
	case sub.send <- frame:
		return true
	default:
		return false
	}
}

// Has reports whether a subscriber with the given ID is connected
func (h *Hub) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[id]
	return ok
}

// Close removes all subscribers and closes their channels
func (h *Hub) Close() {
	h.mu.Lock()
	for _, sub := range h.subs {
		h.removeLocked(sub)
	}
	h.mu.Unlock()
	h.logger.Info("hub closed")
}

// removeLocked must be called with the write lock held
func (h *Hub) removeLocked(sub *Subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub.ID)
	close(sub.send)
	if h.metrics != nil {
		h.metrics.Subscribers.WithLabelValues(string(sub.Transport)).Dec()
	}
}
