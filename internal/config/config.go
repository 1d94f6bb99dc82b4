package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/zaki9501/pikimon-mcp-server/internal/constants"
)

// Config holds all configuration for the gateway
type Config struct {
	RPC     RPCConfig     `yaml:"rpc"`
	Indexer IndexerConfig `yaml:"indexer"`
	Tracker TrackerConfig `yaml:"tracker"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
}

// RPCConfig holds upstream RPC client configuration
type RPCConfig struct {
	// Endpoint is the HTTP(S) JSON-RPC endpoint URL
	Endpoint string `yaml:"endpoint"`
	// WSEndpoint is the optional WebSocket endpoint for head subscriptions.
	// When empty the tracker polls.
	WSEndpoint string        `yaml:"ws_endpoint,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IndexerConfig holds indexing API pass-through configuration
type IndexerConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// TrackerConfig holds head tracker configuration
type TrackerConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	ErrorInterval    time.Duration `yaml:"error_interval"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	// DisableSubscription forces polling even when a WS endpoint is set
	DisableSubscription bool `yaml:"disable_subscription"`
}

// ProxyConfig holds retry pacing and cache configuration for upstream calls
type ProxyConfig struct {
	MinSpacing  time.Duration `yaml:"min_spacing"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryBase   time.Duration `yaml:"retry_base"`
	HeadTTL     time.Duration `yaml:"head_ttl"`
	StateTTL    time.Duration `yaml:"state_ttl"`
	// StateAddress is the contract the chain-state read targets
	StateAddress string `yaml:"state_address"`
	// StateCalldata is the hex-encoded calldata for the chain-state read
	StateCalldata string `yaml:"state_calldata"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	EnableWebSocket    bool          `yaml:"enable_websocket"`
	EnableSSE          bool          `yaml:"enable_sse"`
	EnableMCP          bool          `yaml:"enable_mcp"`
	EnableCORS         bool          `yaml:"enable_cors"`
	AllowedOrigins     []string      `yaml:"allowed_origins"`
	EnableRateLimit    bool          `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}

	if c.Indexer.Timeout == 0 {
		c.Indexer.Timeout = constants.DefaultIndexerTimeout
	}

	if c.Tracker.PollInterval == 0 {
		c.Tracker.PollInterval = constants.DefaultPollInterval
	}
	if c.Tracker.ErrorInterval == 0 {
		c.Tracker.ErrorInterval = constants.DefaultErrorInterval
	}
	if c.Tracker.SubscribeTimeout == 0 {
		c.Tracker.SubscribeTimeout = constants.DefaultSubscribeTimeout
	}

	if c.Proxy.MinSpacing == 0 {
		c.Proxy.MinSpacing = constants.DefaultRPCMinSpacing
	}
	if c.Proxy.MaxAttempts == 0 {
		c.Proxy.MaxAttempts = constants.DefaultRPCMaxAttempts
	}
	if c.Proxy.RetryBase == 0 {
		c.Proxy.RetryBase = constants.DefaultRPCRetryBase
	}
	if c.Proxy.HeadTTL == 0 {
		c.Proxy.HeadTTL = constants.DefaultHeadNumberTTL
	}
	if c.Proxy.StateTTL == 0 {
		c.Proxy.StateTTL = constants.DefaultChainStateTTL
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if c.API.HeartbeatInterval == 0 {
		c.API.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
}

// LoadFromEnv overrides configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if endpoint := os.Getenv("GATEWAY_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if wsEndpoint := os.Getenv("GATEWAY_RPC_WS_ENDPOINT"); wsEndpoint != "" {
		c.RPC.WSEndpoint = wsEndpoint
	}
	if timeout := os.Getenv("GATEWAY_RPC_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_RPC_TIMEOUT: %w", err)
		}
		c.RPC.Timeout = d
	}

	if baseURL := os.Getenv("GATEWAY_INDEXER_BASE_URL"); baseURL != "" {
		c.Indexer.BaseURL = baseURL
	}
	if apiKey := os.Getenv("GATEWAY_INDEXER_API_KEY"); apiKey != "" {
		c.Indexer.APIKey = apiKey
	}

	if pollInterval := os.Getenv("GATEWAY_TRACKER_POLL_INTERVAL"); pollInterval != "" {
		d, err := time.ParseDuration(pollInterval)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_TRACKER_POLL_INTERVAL: %w", err)
		}
		c.Tracker.PollInterval = d
	}
	if disable := os.Getenv("GATEWAY_TRACKER_DISABLE_SUBSCRIPTION"); disable != "" {
		v, err := strconv.ParseBool(disable)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_TRACKER_DISABLE_SUBSCRIPTION: %w", err)
		}
		c.Tracker.DisableSubscription = v
	}

	if stateAddress := os.Getenv("GATEWAY_STATE_ADDRESS"); stateAddress != "" {
		c.Proxy.StateAddress = stateAddress
	}
	if stateCalldata := os.Getenv("GATEWAY_STATE_CALLDATA"); stateCalldata != "" {
		c.Proxy.StateCalldata = stateCalldata
	}

	if level := os.Getenv("GATEWAY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("GATEWAY_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if host := os.Getenv("GATEWAY_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("GATEWAY_API_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_API_PORT: %w", err)
		}
		c.API.Port = p
	}
	if enableWS := os.Getenv("GATEWAY_API_WEBSOCKET"); enableWS != "" {
		v, err := strconv.ParseBool(enableWS)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_API_WEBSOCKET: %w", err)
		}
		c.API.EnableWebSocket = v
	}
	if enableSSE := os.Getenv("GATEWAY_API_SSE"); enableSSE != "" {
		v, err := strconv.ParseBool(enableSSE)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_API_SSE: %w", err)
		}
		c.API.EnableSSE = v
	}
	if enableMCP := os.Getenv("GATEWAY_API_MCP"); enableMCP != "" {
		v, err := strconv.ParseBool(enableMCP)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_API_MCP: %w", err)
		}
		c.API.EnableMCP = v
	}
	if enableCORS := os.Getenv("GATEWAY_API_CORS_ENABLED"); enableCORS != "" {
		v, err := strconv.ParseBool(enableCORS)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_API_CORS_ENABLED: %w", err)
		}
		c.API.EnableCORS = v
	}
	if allowedOrigins := os.Getenv("GATEWAY_API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		c.API.AllowedOrigins = origins
	}
	if enableRL := os.Getenv("GATEWAY_API_RATE_LIMIT"); enableRL != "" {
		v, err := strconv.ParseBool(enableRL)
		if err != nil {
			return fmt.Errorf("invalid GATEWAY_API_RATE_LIMIT: %w", err)
		}
		c.API.EnableRateLimit = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}

	if c.Tracker.PollInterval <= 0 {
		return fmt.Errorf("tracker poll interval must be positive")
	}
	if c.Tracker.ErrorInterval <= 0 {
		return fmt.Errorf("tracker error interval must be positive")
	}

	if c.Proxy.MinSpacing <= 0 {
		return fmt.Errorf("proxy min spacing must be positive")
	}
	if c.Proxy.MaxAttempts < 1 {
		return fmt.Errorf("proxy max attempts must be at least 1")
	}
	if c.Proxy.StateAddress != "" && !common.IsHexAddress(c.Proxy.StateAddress) {
		return fmt.Errorf("invalid state address %q", c.Proxy.StateAddress)
	}
	// Half a state read configuration is a deployment mistake; fail at
	// startup rather than serve a useless endpoint
	if (c.Proxy.StateAddress == "") != (c.Proxy.StateCalldata == "") {
		return fmt.Errorf("state address and state calldata must be configured together")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
		return fmt.Errorf("API port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for any missing values
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
