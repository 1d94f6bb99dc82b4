package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/zaki9501/pikimon-mcp-server/internal/constants"
)

// Config holds API server configuration
type Config struct {
	// Host is the server host (default: localhost)
	Host string

	// Port is the server port (default: 8080)
	Port int

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes. Zero
	// disables the write deadline, which the streaming endpoints require.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int

	// EnableCORS enables CORS headers
	EnableCORS bool

	// AllowedOrigins is a list of allowed CORS origins
	AllowedOrigins []string

	// EnableWebSocket enables the websocket subscription endpoint
	EnableWebSocket bool

	// EnableSSE enables the server-sent-events subscription endpoint
	EnableSSE bool

	// EnableMCP enables the MCP JSON-RPC-over-SSE endpoints
	EnableMCP bool

	// EnableStateRead registers the on-chain state endpoint. Off when no
	// state contract is configured, so the route cannot hit the zero address.
	EnableStateRead bool

	// WebSocketPath is the websocket endpoint path (default: /ws)
	WebSocketPath string

	// SSEPath is the SSE endpoint path (default: /events)
	SSEPath string

	// MCPSSEPath is the MCP stream endpoint path (default: /mcp/sse)
	MCPSSEPath string

	// MCPMessagePath is the MCP message endpoint path (default: /mcp/message)
	MCPMessagePath string

	// HeartbeatInterval is the keep-alive spacing on streaming connections
	// (default 30s)
	HeartbeatInterval time.Duration

	// ShutdownTimeout is the graceful shutdown timeout
	ShutdownTimeout time.Duration

	// EnableRateLimit enables per-IP rate limiting middleware
	EnableRateLimit bool

	// RateLimitPerSecond is the number of requests allowed per second per IP
	RateLimitPerSecond float64

	// RateLimitBurst is the maximum burst size
	RateLimitBurst int
}

// DefaultConfig returns a default API server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:              constants.DefaultAPIHost,
		Port:              constants.DefaultAPIPort,
		ReadTimeout:       constants.DefaultReadTimeout,
		WriteTimeout:      0, // streaming endpoints hold the response open
		IdleTimeout:       constants.DefaultIdleTimeout,
		MaxHeaderBytes:    constants.DefaultMaxHeaderBytes,
		EnableCORS:        true,
		AllowedOrigins:    []string{"*"},
		EnableWebSocket:   true,
		EnableSSE:         true,
		EnableMCP:         true,
		EnableStateRead:   true,
		WebSocketPath:     constants.DefaultWebSocketPath,
		SSEPath:           constants.DefaultSSEPath,
		MCPSSEPath:        constants.DefaultMCPSSEPath,
		MCPMessagePath:    constants.DefaultMCPMessagePath,
		HeartbeatInterval: constants.DefaultHeartbeatInterval,
		ShutdownTimeout:   constants.DefaultShutdownTimeout,
		EnableRateLimit:   false,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("max header bytes must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
