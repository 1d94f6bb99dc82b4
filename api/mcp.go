package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/hub"
)

// The MCP transport is JSON-RPC 2.0 over SSE: the client opens the stream
// endpoint, receives an endpoint event naming its per-session message URL,
// and POSTs requests there. Responses and block/new notifications are pushed
// over the session's stream. The session ID doubles as the hub subscriber ID.

const mcpProtocolVersion = "2024-11-05"

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleMCPSSE opens an MCP session stream
func (s *Server) handleMCPSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.hub.Subscribe(hub.TransportMCP)
	defer s.hub.Unsubscribe(sub.ID)

	// First frame tells the client where to POST its requests.
	fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", s.config.MCPMessagePath, sub.ID)
	flusher.Flush()

	heartbeat := time.NewTicker(s.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case frame, ok := <-sub.Receive():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame); err != nil {
				s.logger.Debug("mcp stream write failed", zap.String("session", sub.ID), zap.Error(err))
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", hub.MCPHeartbeat()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleMCPMessage accepts a JSON-RPC request for an open session. The
// response travels over the session's SSE stream, not this POST; the POST
// just acknowledges acceptance.
func (s *Server) handleMCPMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	// Notifications produce no reply, so the session check cannot be left to
	// the send path.
	if !s.hub.Has(sessionID) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req jsonrpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON-RPC request")
		return
	}

	resp := s.dispatchMCP(r, &req)
	if resp != nil {
		frame, err := json.Marshal(resp)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		if !s.hub.Send(sessionID, frame) {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
	}

	writeJSON(w, http.StatusAccepted, Response{Success: true})
}

// dispatchMCP routes a JSON-RPC request. Requests without an ID are
// notifications and get no response.
func (s *Server) dispatchMCP(r *http.Request, req *jsonrpcRequest) *jsonrpcResponse {
	if req.ID == nil {
		return nil
	}

	resp := &jsonrpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": mcpProtocolVersion,
			"serverInfo": map[string]string{
				"name":    "pikimon-mcp-server",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		}

	case "ping":
		resp.Result = map[string]interface{}{}

	case "tools/list":
		resp.Result = map[string]interface{}{
			"tools": []map[string]interface{}{
				{
					"name":        "get_latest_block",
					"description": "Returns the chain's current head block number",
				},
				{
					"name":        "get_chain_state",
					"description": "Returns the configured on-chain state value",
				},
			},
		}

	case "blocks/latest":
		number, err := s.chain.HeadNumber(r.Context())
		if err != nil {
			resp.Error = &jsonrpcError{Code: -32000, Message: "head lookup failed"}
			break
		}
		resp.Result = map[string]string{"number": strconv.FormatUint(number, 10)}

	default:
		resp.Error = &jsonrpcError{Code: -32601, Message: "method not found"}
	}

	return resp
}
