package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moex-panic-scanner/internal/calendar"
	"moex-panic-scanner/internal/database"
	"moex-panic-scanner/internal/detector"
	"moex-panic-scanner/internal/events"
	"moex-panic-scanner/internal/moex"
	"moex-panic-scanner/internal/scanner"
)

// RateLimiter provides simple in-memory rate limiting per endpoint.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// ScannerAPI is the surface the HTTP layer needs from the scan orchestrator.
type ScannerAPI interface {
	ScanAll(ctx context.Context, instruments []string, realTime bool) *scanner.ScanResult
	PrepareWindow(ctx context.Context, instrument string, realTime bool) (detector.Window, error)
	IgnoreInstrument(instrument string, d time.Duration) time.Time
	IgnoredUntil(instrument string) (time.Time, bool)
	Config() scanner.Config
}

// SignalReader is the query surface the HTTP layer needs from the store.
type SignalReader interface {
	SignalHistory(ctx context.Context, instrument string, daysBack, limit int) ([]*detector.PanicSignal, error)
	TopSignals(ctx context.Context, period string, limit int) ([]*detector.PanicSignal, error)
	Stats(ctx context.Context, days int) (*database.Stats, error)
	PanicSignals(ctx context.Context, days, limit int) ([]*detector.PanicSignal, error)
	LastSignal(ctx context.Context, instrument string) (*detector.PanicSignal, error)
}

// Server exposes the scanner over HTTP and WebSocket.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	scanner     ScannerAPI
	repo        SignalReader
	provider    moex.MarketDataProvider
	cal         *calendar.Calendar
	eventBus    *events.EventBus
	hub         *WSHub
	rateLimiter *RateLimiter
	config      ServerConfig
	log         zerolog.Logger
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	RateLimit      int      `json:"rate_limit"` // requests per window, per endpoint
	AllowedOrigins []string `json:"allowed_origins"`
}

// NewServer wires the routes and middleware. Call Start to begin serving.
func NewServer(
	config ServerConfig,
	sc ScannerAPI,
	repo SignalReader,
	provider moex.MarketDataProvider,
	cal *calendar.Calendar,
	eventBus *events.EventBus,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 120
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		scanner:     sc,
		repo:        repo,
		provider:    provider,
		cal:         cal,
		eventBus:    eventBus,
		rateLimiter: NewRateLimiter(config.RateLimit, time.Minute),
		config:      config,
		log:         log.With().Str("component", "api").Logger(),
	}

	server.hub = NewWSHub(cal.Location())
	go server.hub.Run()
	if eventBus != nil {
		eventBus.Subscribe(events.EventSignalDetected, server.hub.handleSignalEvent)
	}

	server.setupRoutes()
	return server
}

// rateLimitMiddleware limits request rates by endpoint path.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.FullPath()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again later",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	{
		api.POST("/scan", s.handleScan)
		api.GET("/overheat/:ticker", s.handleOverheat)

		api.GET("/signals/history", s.handleSignalHistory)
		api.GET("/signals/top", s.handleTopSignals)
		api.GET("/signals/panic", s.handlePanicSignals)
		api.GET("/signals/stream", s.handleSignalStream)

		api.GET("/stats", s.handleStats)
		api.GET("/candles", s.handleCandles)
		api.GET("/prices", s.handlePrices)
		api.GET("/orderbook/:ticker", s.handleOrderBook)
		api.GET("/market/status", s.handleMarketStatus)

		api.POST("/ignore", s.handleIgnore)
		api.POST("/admin/holidays/reload", s.handleHolidaysReload)
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		s.log.Info().Str("addr", addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server failed")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}
