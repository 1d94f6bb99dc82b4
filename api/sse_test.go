package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/hub"
	"github.com/zaki9501/pikimon-mcp-server/tracker"
	"github.com/zaki9501/pikimon-mcp-server/types"
)

func streamingServer(t *testing.T, h *hub.Hub) *httptest.Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EnableWebSocket = false
	cfg.EnableMCP = true
	cfg.EnableSSE = true
	cfg.HeartbeatInterval = 50 * time.Millisecond

	s, err := NewServer(cfg, zap.NewNop(), &fakeChain{head: 7}, nil, h,
		&fakeStatus{mode: tracker.ModeIdle})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

// readSSEFrame scans the stream until one data frame or comment line arrives
func readSSEFrame(t *testing.T, scanner *bufio.Scanner, deadline time.Duration) string {
	t.Helper()
	result := make(chan string, 1)
	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			if line != "" {
				result <- line
				return
			}
		}
	}()
	select {
	case line := <-result:
		return line
	case <-time.After(deadline):
		t.Fatal("timed out waiting for SSE frame")
		return ""
	}
}

func TestSSE_StreamsBlocks(t *testing.T) {
	h := hub.New(nil)
	ts := streamingServer(t, h)

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	line := readSSEFrame(t, scanner, time.Second)
	assert.Equal(t, ": connected", line)

	// The hub registers the subscriber as soon as the handler runs
	require.Eventually(t, func() bool {
		return h.CountByTransport()[hub.TransportSSE] == 1
	}, time.Second, 5*time.Millisecond)

	h.Broadcast(types.BlockHead{Number: 55, Hash: "0xaa", Timestamp: 1, GasUsed: 2, Miner: "0xbb"})

	line = readSSEFrame(t, scanner, time.Second)
	require.True(t, strings.HasPrefix(line, "data: "), "got %q", line)

	var event struct {
		Type string `json:"type"`
		Data struct {
			Number string `json:"number"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
	assert.Equal(t, "newBlock", event.Type)
	assert.Equal(t, "55", event.Data.Number)
}

func TestSSE_Heartbeat(t *testing.T) {
	h := hub.New(nil)
	ts := streamingServer(t, h)

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	readSSEFrame(t, scanner, time.Second) // ": connected"

	// With no blocks flowing, the heartbeat comment keeps the stream alive
	line := readSSEFrame(t, scanner, time.Second)
	assert.Equal(t, ": ping", line)
}

func TestSSE_DisconnectRemovesSubscriber(t *testing.T) {
	h := hub.New(nil)
	ts := streamingServer(t, h)

	resp, err := http.Get(ts.URL + "/events")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.Count() == 1
	}, time.Second, 5*time.Millisecond)

	resp.Body.Close()

	require.Eventually(t, func() bool {
		return h.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
