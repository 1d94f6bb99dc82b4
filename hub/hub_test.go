package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaki9501/pikimon-mcp-server/types"
)

func testHead(number uint64) types.BlockHead {
	return types.BlockHead{
		Number:    number,
		Hash:      "0xdeadbeef",
		Timestamp: 1700000000,
		GasUsed:   21000,
		Miner:     "0x00000000000000000000000000000000000000aa",
		TxCount:   3,
	}
}

func drain(t *testing.T, sub *Subscriber) []byte {
	t.Helper()
	select {
	case frame := <-sub.Receive():
		return frame
	default:
		t.Fatalf("no frame queued for subscriber %s", sub.ID)
		return nil
	}
}

func TestHub_SubscribeAndCount(t *testing.T) {
	h := New(nil)

	ws := h.Subscribe(TransportWebSocket)
	sse := h.Subscribe(TransportSSE)
	h.Subscribe(TransportMCP)

	assert.Equal(t, 3, h.Count())
	counts := h.CountByTransport()
	assert.Equal(t, 1, counts[TransportWebSocket])
	assert.Equal(t, 1, counts[TransportSSE])
	assert.Equal(t, 1, counts[TransportMCP])

	h.Unsubscribe(ws.ID)
	h.Unsubscribe(sse.ID)
	assert.Equal(t, 1, h.Count())
}

func TestHub_UnsubscribeUnknownIsNoop(t *testing.T) {
	h := New(nil)
	h.Unsubscribe("nope")
	assert.Equal(t, 0, h.Count())
}

func TestHub_BroadcastFormatsPerTransport(t *testing.T) {
	h := New(nil)
	ws := h.Subscribe(TransportWebSocket)
	sse := h.Subscribe(TransportSSE)
	mcp := h.Subscribe(TransportMCP)

	h.Broadcast(testHead(1234))

	// WS and SSE share the newBlock envelope
	for _, sub := range []*Subscriber{ws, sse} {
		var event struct {
			Type string `json:"type"`
			Data struct {
				Number    string `json:"number"`
				Hash      string `json:"hash"`
				Timestamp string `json:"timestamp"`
				GasUsed   string `json:"gasUsed"`
				Miner     string `json:"miner"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(drain(t, sub), &event))
		assert.Equal(t, "newBlock", event.Type)
		assert.Equal(t, "1234", event.Data.Number)
		assert.Equal(t, "0xdeadbeef", event.Data.Hash)
		assert.Equal(t, "1700000000", event.Data.Timestamp)
		assert.Equal(t, "21000", event.Data.GasUsed)
	}

	// MCP gets a JSON-RPC notification
	var note struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  struct {
			Block struct {
				Number       string `json:"number"`
				Transactions int    `json:"transactions"`
			} `json:"block"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(drain(t, mcp), &note))
	assert.Equal(t, "2.0", note.JSONRPC)
	assert.Equal(t, "block/new", note.Method)
	assert.Equal(t, "1234", note.Params.Block.Number)
	assert.Equal(t, 3, note.Params.Block.Transactions)
}

func TestHub_BroadcastDropsNonAdvancingNumbers(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe(TransportSSE)

	h.Broadcast(testHead(10))
	h.Broadcast(testHead(10))
	h.Broadcast(testHead(9))
	h.Broadcast(testHead(11))

	drain(t, sub) // 10
	frame := drain(t, sub)
	var event struct {
		Data struct {
			Number string `json:"number"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &event))
	assert.Equal(t, "11", event.Data.Number)

	select {
	case extra := <-sub.Receive():
		t.Fatalf("unexpected extra frame: %s", extra)
	default:
	}
}

func TestHub_BroadcastRemovesFullSubscriber(t *testing.T) {
	h := New(nil)
	h.sendBuffer = 1
	stuck := h.Subscribe(TransportWebSocket)
	healthy := h.Subscribe(TransportSSE)

	h.Broadcast(testHead(1)) // fills stuck's buffer of 1
	drain(t, healthy)
	h.Broadcast(testHead(2)) // overflows stuck; it gets dropped

	assert.Equal(t, 1, h.Count())
	_, stillThere := h.CountByTransport()[TransportWebSocket]
	assert.False(t, stillThere)

	// The healthy subscriber saw both events
	drain(t, healthy)

	// The dropped subscriber's channel is closed after its queued frames
	<-stuck.Receive()
	_, open := <-stuck.Receive()
	assert.False(t, open)
}

func TestHub_Hooks(t *testing.T) {
	h := New(nil)
	firsts, lasts := 0, 0
	h.SetHooks(func() { firsts++ }, func() { lasts++ })

	a := h.Subscribe(TransportWebSocket)
	b := h.Subscribe(TransportSSE)
	assert.Equal(t, 1, firsts, "only the 0->1 transition fires")

	h.Unsubscribe(a.ID)
	assert.Equal(t, 0, lasts)
	h.Unsubscribe(b.ID)
	assert.Equal(t, 1, lasts, "only the 1->0 transition fires")

	// A fresh first subscriber fires again
	h.Subscribe(TransportMCP)
	assert.Equal(t, 2, firsts)
}

func TestHub_BroadcastError(t *testing.T) {
	h := New(nil)
	sse := h.Subscribe(TransportSSE)
	mcp := h.Subscribe(TransportMCP)

	h.BroadcastError("upstream unavailable")

	var event struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(drain(t, sse), &event))
	assert.Equal(t, "error", event.Type)
	assert.Equal(t, "upstream unavailable", event.Error)

	var note struct {
		Method string            `json:"method"`
		Params map[string]string `json:"params"`
	}
	require.NoError(t, json.Unmarshal(drain(t, mcp), &note))
	assert.Equal(t, "gateway/error", note.Method)
	assert.Equal(t, "upstream unavailable", note.Params["error"])

	// Errors do not disturb the block dedupe sequence
	h.Broadcast(testHead(5))
	drain(t, sse)
}

func TestHub_SendTargetsOneSubscriber(t *testing.T) {
	h := New(nil)
	a := h.Subscribe(TransportMCP)
	b := h.Subscribe(TransportMCP)

	ok := h.Send(a.ID, []byte(`{"id":1}`))
	require.True(t, ok)

	assert.Equal(t, []byte(`{"id":1}`), drain(t, a))
	select {
	case <-b.Receive():
		t.Fatal("frame leaked to another subscriber")
	default:
	}

	assert.False(t, h.Send("unknown", []byte("x")))
}

// Send must never write to a channel a concurrent removal has closed; it
// either delivers or reports the session gone.
func TestHub_SendDuringUnsubscribeDoesNotPanic(t *testing.T) {
	h := New(nil)

	for i := 0; i < 1000; i++ {
		sub := h.Subscribe(TransportMCP)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				h.Send(sub.ID, []byte(`{"id":1}`))
			}
		}()
		go func() {
			defer wg.Done()
			h.Unsubscribe(sub.ID)
		}()
		wg.Wait()

		for range sub.Receive() {
		}
	}

	assert.Equal(t, 0, h.Count())
}

func TestHub_Has(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe(TransportMCP)

	assert.True(t, h.Has(sub.ID))
	assert.False(t, h.Has("unknown"))

	h.Unsubscribe(sub.ID)
	assert.False(t, h.Has(sub.ID))
}

func TestHub_Close(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe(TransportWebSocket)

	h.Close()

	assert.Equal(t, 0, h.Count())
	_, open := <-sub.Receive()
	assert.False(t, open)
}
