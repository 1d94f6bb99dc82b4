package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 100

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 200
)

// API Paths
const (
	// DefaultWebSocketPath is the default WebSocket endpoint path
	DefaultWebSocketPath = "/ws"

	// DefaultSSEPath is the default server-sent-events endpoint path
	DefaultSSEPath = "/events"

	// DefaultMCPSSEPath is the default MCP stream endpoint path
	DefaultMCPSSEPath = "/mcp/sse"

	// DefaultMCPMessagePath is the default MCP message endpoint path
	DefaultMCPMessagePath = "/mcp/message"
)

// Streaming Constants
const (
	// DefaultHeartbeatInterval is the keep-alive spacing on streaming connections
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultSendBuffer is the per-subscriber outbound frame buffer
	DefaultSendBuffer = 64
)

// Tracker Constants
const (
	// DefaultPollInterval is the head polling interval
	DefaultPollInterval = 2 * time.Second

	// DefaultErrorInterval is the polling interval after an upstream failure
	DefaultErrorInterval = 5 * time.Second

	// DefaultSubscribeTimeout is the subscription handshake timeout before
	// falling back to polling
	DefaultSubscribeTimeout = 10 * time.Second
)

// Upstream RPC Constants
const (
	// DefaultRPCTimeout is the per-call timeout against the RPC endpoint
	DefaultRPCTimeout = 10 * time.Second

	// DefaultRPCMinSpacing is the minimum spacing between upstream RPC calls
	DefaultRPCMinSpacing = 1 * time.Second

	// DefaultRPCMaxAttempts is the maximum attempts for a rate-limited call
	DefaultRPCMaxAttempts = 3

	// DefaultRPCRetryBase is the base delay for linear retry backoff
	DefaultRPCRetryBase = 2 * time.Second

	// DefaultHeadNumberTTL is how long a cached head number stays fresh
	DefaultHeadNumberTTL = 2 * time.Second

	// DefaultChainStateTTL is how long a cached chain state read stays fresh
	DefaultChainStateTTL = 5 * time.Second
)

// Indexer Constants
const (
	// DefaultIndexerTimeout is the per-request timeout against the indexing API
	DefaultIndexerTimeout = 15 * time.Second

	// DefaultPaginationLimit is the default page size on indexer pass-through
	// requests when the caller gives none
	DefaultPaginationLimit = 20

	// MaxPaginationLimit is the largest page size the gateway forwards
	MaxPaginationLimit = 100
)
