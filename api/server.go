package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/zaki9501/pikimon-mcp-server/api/middleware"
	"github.com/zaki9501/pikimon-mcp-server/api/websocket"
	"github.com/zaki9501/pikimon-mcp-server/hub"
	"github.com/zaki9501/pikimon-mcp-server/indexer"
	"github.com/zaki9501/pikimon-mcp-server/tracker"
)

// ChainService is the governed chain surface the REST handlers consume.
// Satisfied by proxy.Chain.
type ChainService interface {
	HeadNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*ethtypes.Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	ChainState(ctx context.Context) ([]byte, error)
	SendRawTransaction(ctx context.Context, rawTx hexutil.Bytes) (common.Hash, error)
}

// IndexerService is the pass-through surface of the indexing API. Satisfied
// by indexer.Client.
type IndexerService interface {
	AccountTransactions(ctx context.Context, q indexer.Query) (json.RawMessage, error)
	AccountTokens(ctx context.Context, q indexer.Query) (json.RawMessage, error)
	AccountActivities(ctx context.Context, q indexer.Query) (json.RawMessage, error)
}

// TrackerStatus exposes the tracker state for the health endpoint
type TrackerStatus interface {
	Mode() tracker.Mode
	LastSeen() (uint64, bool)
}

// Server represents the API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	chain    ChainService
	indexer  IndexerService
	hub      *hub.Hub
	tracker  TrackerStatus
	router   *chi.Mux
	server   *http.Server
	wsServer *websocket.Server
}

// NewServer creates a new API server
func NewServer(cfg *Config, logger *zap.Logger, chain ChainService, idx IndexerService, h *hub.Hub, status TrackerStatus) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		chain:   chain,
		indexer: idx,
		hub:     h,
		tracker: status,
		router:  chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           cfg.Address(),
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if s.config.EnableRateLimit {
		s.router.Use(apimiddleware.RateLimit(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(apimiddleware.CORS(s.config.AllowedOrigins))
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	if s.config.EnableWebSocket {
		s.wsServer = websocket.NewServer(s.hub, s.logger)
		s.router.Get(s.config.WebSocketPath, s.wsServer.ServeHTTP)
		s.logger.Info("WebSocket endpoint enabled", zap.String("path", s.config.WebSocketPath))
	}

	if s.config.EnableSSE {
		s.router.Get(s.config.SSEPath, s.handleSSE)
		s.logger.Info("SSE endpoint enabled", zap.String("path", s.config.SSEPath))
	}

	if s.config.EnableMCP {
		s.router.Get(s.config.MCPSSEPath, s.handleMCPSSE)
		s.router.Post(s.config.MCPMessagePath, s.handleMCPMessage)
		s.logger.Info("MCP endpoints enabled",
			zap.String("stream_path", s.config.MCPSSEPath),
			zap.String("message_path", s.config.MCPMessagePath))
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/head", s.handleHead)
		r.Get("/block/{number}", s.handleBlock)
		r.Get("/tx/{hash}/receipt", s.handleReceipt)
		r.Get("/address/{address}/balance", s.handleBalance)
		r.Post("/tx", s.handleSubmitTx)

		// The state read needs a configured contract; without one the
		// route 404s instead of querying the zero address
		if s.config.EnableStateRead {
			r.Get("/state", s.handleChainState)
		}

		// Indexer pass-through is optional; without a client the routes 404
		if s.indexer != nil {
			r.Get("/account/{address}/transactions", s.handleAccountTransactions)
			r.Get("/account/{address}/tokens", s.handleAccountTokens)
			r.Get("/account/{address}/activities", s.handleAccountActivities)
		}
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   string         `json:"timestamp"`
	TrackerMode string         `json:"trackerMode"`
	LastSeen    string         `json:"lastSeenHead,omitempty"`
	Subscribers map[string]int `json:"subscribers"`
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:      "ok",
		Timestamp:   time.Now().Format(time.RFC3339),
		Subscribers: make(map[string]int),
	}

	if s.tracker != nil {
		response.TrackerMode = s.tracker.Mode().String()
		if last, ok := s.tracker.LastSeen(); ok {
			response.LastSeen = fmt.Sprintf("%d", last)
		}
	}
	if s.hub != nil {
		for transport, count := range s.hub.CountByTransport() {
			response.Subscribers[string(transport)] = count
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("websocket", s.config.EnableWebSocket),
		zap.Bool("sse", s.config.EnableSSE),
		zap.Bool("mcp", s.config.EnableMCP),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
