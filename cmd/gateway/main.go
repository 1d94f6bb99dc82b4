package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/api"
	"github.com/zaki9501/pikimon-mcp-server/client"
	"github.com/zaki9501/pikimon-mcp-server/hub"
	"github.com/zaki9501/pikimon-mcp-server/indexer"
	"github.com/zaki9501/pikimon-mcp-server/internal/config"
	"github.com/zaki9501/pikimon-mcp-server/internal/logger"
	"github.com/zaki9501/pikimon-mcp-server/proxy"
	"github.com/zaki9501/pikimon-mcp-server/tracker"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		rpcEndpoint = flag.String("rpc", "", "Chain RPC endpoint URL")
		wsEndpoint  = flag.String("ws", "", "Chain WebSocket endpoint URL (optional)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")
		apiHost     = flag.String("api-host", "", "API server host")
		apiPort     = flag.Int("api-port", 0, "API server port")
		pollOnly    = flag.Bool("poll-only", false, "Force head polling even when a WS endpoint is set")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("pikimon-mcp-server version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlags(cfg, *rpcEndpoint, *wsEndpoint, *logLevel, *logFormat, *apiHost, *apiPort, *pollOnly)

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting gateway",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.Bool("ws_configured", cfg.RPC.WSEndpoint != ""),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Upstream chain client
	chainClient, err := client.NewClient(&client.Config{
		Endpoint:   cfg.RPC.Endpoint,
		WSEndpoint: cfg.RPC.WSEndpoint,
		Timeout:    cfg.RPC.Timeout,
		Logger:     logger.WithComponent(log, "client"),
	})
	if err != nil {
		log.Fatal("Failed to create chain client", zap.Error(err))
	}
	defer chainClient.Close()

	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		log.Fatal("Failed to get chain ID", zap.Error(err))
	}
	log.Info("Connected to chain", zap.String("chain_id", chainID.String()))

	// Retry governor and governed chain surface
	governor := proxy.NewGovernor(&proxy.GovernorConfig{
		MinSpacing:  cfg.Proxy.MinSpacing,
		MaxAttempts: cfg.Proxy.MaxAttempts,
		RetryBase:   cfg.Proxy.RetryBase,
		IsRetryable: client.IsRateLimited,
		Logger:      logger.WithComponent(log, "governor"),
	})
	governor.SetMetrics(proxy.NewMetrics("gateway"))

	var stateCalldata []byte
	if cfg.Proxy.StateCalldata != "" {
		stateCalldata, err = hexutil.Decode(cfg.Proxy.StateCalldata)
		if err != nil {
			log.Fatal("Invalid state calldata", zap.Error(err))
		}
	}

	chain := proxy.NewChain(chainClient, governor, &proxy.ChainConfig{
		HeadNumberTTL: cfg.Proxy.HeadTTL,
		StateTTL:      cfg.Proxy.StateTTL,
		StateAddress:  common.HexToAddress(cfg.Proxy.StateAddress),
		StateCalldata: stateCalldata,
		Logger:        logger.WithComponent(log, "proxy"),
	})

	// Head tracker
	headTracker := tracker.New(chain, &tracker.Config{
		PollInterval:        cfg.Tracker.PollInterval,
		ErrorInterval:       cfg.Tracker.ErrorInterval,
		SubscribeTimeout:    cfg.Tracker.SubscribeTimeout,
		DisableSubscription: cfg.Tracker.DisableSubscription || cfg.RPC.WSEndpoint == "",
	}, logger.WithComponent(log, "tracker"))

	// Fan-out hub, started and stopped by subscriber demand
	fanout := hub.New(logger.WithComponent(log, "hub"))
	fanout.SetMetrics(hub.NewMetrics("gateway"))
	lifecycle := hub.NewLifecycle(fanout, headTracker, logger.WithComponent(log, "lifecycle"))
	defer lifecycle.Close()

	// Indexing API pass-through (optional)
	var indexerClient *indexer.Client
	if cfg.Indexer.BaseURL != "" {
		indexerClient, err = indexer.NewClient(&indexer.Config{
			BaseURL: cfg.Indexer.BaseURL,
			APIKey:  cfg.Indexer.APIKey,
			Timeout: cfg.Indexer.Timeout,
			Logger:  logger.WithComponent(log, "indexer"),
		})
		if err != nil {
			log.Fatal("Failed to create indexer client", zap.Error(err))
		}
		log.Info("Indexer pass-through enabled", zap.String("base_url", cfg.Indexer.BaseURL))
	} else {
		log.Info("Indexer pass-through disabled, no base URL configured")
	}

	apiConfig := api.DefaultConfig()
	apiConfig.Host = cfg.API.Host
	apiConfig.Port = cfg.API.Port
	apiConfig.EnableWebSocket = cfg.API.EnableWebSocket
	apiConfig.EnableSSE = cfg.API.EnableSSE
	apiConfig.EnableMCP = cfg.API.EnableMCP
	apiConfig.EnableStateRead = cfg.Proxy.StateAddress != ""
	apiConfig.EnableCORS = cfg.API.EnableCORS
	apiConfig.AllowedOrigins = cfg.API.AllowedOrigins
	apiConfig.EnableRateLimit = cfg.API.EnableRateLimit
	apiConfig.RateLimitPerSecond = cfg.API.RateLimitPerSecond
	apiConfig.RateLimitBurst = cfg.API.RateLimitBurst
	apiConfig.HeartbeatInterval = cfg.API.HeartbeatInterval

	var indexerService api.IndexerService
	if indexerClient != nil {
		indexerService = indexerClient
	}

	apiServer, err := api.NewServer(apiConfig, logger.WithComponent(log, "api"),
		chain, indexerService, fanout, headTracker)
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- apiServer.Start()
	}()

	log.Info("Gateway started", zap.String("address", apiConfig.Address()))

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if err != nil {
			log.Error("API server failed", zap.Error(err))
		}
	}

	log.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server gracefully", zap.Error(err))
	}

	hits, misses, size := chain.CacheStats()
	log.Info("Final cache statistics",
		zap.Int64("hits", hits),
		zap.Int64("misses", misses),
		zap.Int("entries", size),
	)

	log.Info("Gateway stopped")
}

// loadConfig loads configuration from file and environment variables.
// Defaults and validation are applied after command-line flags, which take
// precedence over both sources.
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, rpcEndpoint, wsEndpoint, logLevel, logFormat, apiHost string, apiPort int, pollOnly bool) {
	if rpcEndpoint != "" {
		cfg.RPC.Endpoint = rpcEndpoint
	}
	if wsEndpoint != "" {
		cfg.RPC.WSEndpoint = wsEndpoint
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if apiHost != "" {
		cfg.API.Host = apiHost
	}
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}
	if pollOnly {
		cfg.Tracker.DisableSubscription = true
	}
}

// initLogger initializes the logger based on configuration
func initLogger(level, format string) (*zap.Logger, error) {
	if format == "json" || format == "production" {
		return logger.NewProduction()
	}

	cfg := logger.Config{
		Level:       level,
		Encoding:    "console",
		Development: true,
	}
	return logger.NewWithConfig(&cfg)
}
