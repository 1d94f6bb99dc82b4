package hub

import (
	"encoding/json"
	"strconv"

	"github.com/zaki9501/pikimon-mcp-server/types"
)

// Numeric fields go out as decimal strings: heights and gas totals can exceed
// the JavaScript safe integer range.

type blockPayload struct {
	Number    string `json:"number"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`
	GasUsed   string `json:"gasUsed"`
	Miner     string `json:"miner"`
}

type genericEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// jsonrpcNotification is a JSON-RPC 2.0 notification (no id)
type jsonrpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type mcpBlockParams struct {
	Block mcpBlock `json:"block"`
}

type mcpBlock struct {
	Number       string `json:"number"`
	Hash         string `json:"hash"`
	Timestamp    string `json:"timestamp"`
	Transactions int    `json:"transactions"`
}

// newBlockEnvelope formats a head for WebSocket and SSE subscribers
func newBlockEnvelope(head types.BlockHead) []byte {
	frame, _ := json.Marshal(genericEvent{
		Type: "newBlock",
		Data: blockPayload{
			Number:    strconv.FormatUint(head.Number, 10),
			Hash:      head.Hash,
			Timestamp: strconv.FormatUint(head.Timestamp, 10),
			GasUsed:   strconv.FormatUint(head.GasUsed, 10),
			Miner:     head.Miner,
		},
	})
	return frame
}

// mcpNewBlockNotification formats a head as a JSON-RPC block/new notification
func mcpNewBlockNotification(head types.BlockHead) []byte {
	frame, _ := json.Marshal(jsonrpcNotification{
		JSONRPC: "2.0",
		Method:  "block/new",
		Params: mcpBlockParams{
			Block: mcpBlock{
				Number:       strconv.FormatUint(head.Number, 10),
				Hash:         head.Hash,
				Timestamp:    strconv.FormatUint(head.Timestamp, 10),
				Transactions: head.TxCount,
			},
		},
	})
	return frame
}

// errorEnvelope formats an in-band degraded-condition event for WS/SSE
func errorEnvelope(message string) []byte {
	frame, _ := json.Marshal(errorEvent{Type: "error", Error: message})
	return frame
}

// mcpErrorNotification formats a degraded-condition notification for MCP
func mcpErrorNotification(message string) []byte {
	frame, _ := json.Marshal(jsonrpcNotification{
		JSONRPC: "2.0",
		Method:  "gateway/error",
		Params:  map[string]string{"error": message},
	})
	return frame
}

// MCPHeartbeat is the keep-alive notification pushed to idle MCP sessions
func MCPHeartbeat() []byte {
	frame, _ := json.Marshal(jsonrpcNotification{JSONRPC: "2.0", Method: "ping"})
	return frame
}
