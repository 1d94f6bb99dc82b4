package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zaki9501/pikimon-mcp-server/client"
	"github.com/zaki9501/pikimon-mcp-server/indexer"
)

// Response is the envelope for every REST reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}

// writeUpstreamError maps an upstream failure to the right status class:
// not-found surfaces as 404, anything else as 502. Caller-input errors never
// reach this path; handlers reject those with 400 up front.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var upstream *indexer.UpstreamError
	switch {
	case client.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &upstream) && upstream.StatusCode >= 400 && upstream.StatusCode < 500:
		writeError(w, upstream.StatusCode, "indexer rejected request")
	default:
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}
}
