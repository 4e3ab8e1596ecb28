// Package api exposes the bot's status surface over HTTP: health, per-pair
// grid status, the latest allocation and a kill-switch reset endpoint.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"gridpilot/config"
	"gridpilot/logger"
	"gridpilot/manager"
	"gridpilot/store"
)

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	manager    *manager.Manager
	store      *store.Store
	httpServer *http.Server
	port       int
	startedAt  time.Time
}

// NewServer creates the API server. Store may be nil; history endpoints
// then answer 404.
func NewServer(m *manager.Manager, st *store.Store, port int) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:    router,
		manager:   m,
		store:     st,
		port:      port,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
		api.GET("/allocations", s.handleAllocations)
		api.GET("/equity-history", s.handleEquityHistory)
		api.GET("/fills", s.handleFills)
		api.POST("/killswitch/reset", s.handleKillSwitchReset)
		api.POST("/config/reload", s.handleConfigReload)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

// handleStatus reports every controller plus the global kill switch
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"kill_switch": s.manager.KillSwitchTripped(),
		"pairs":       s.manager.Statuses(),
	})
}

// handleAllocations returns the latest allocation snapshot
func (s *Server) handleAllocations(c *gin.Context) {
	snap := s.manager.LatestAllocation()
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no allocation yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleEquityHistory returns equity points for the last N hours (default 24)
func (s *Server) handleEquityHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "persistence disabled"})
		return
	}
	hours := 24
	if v := c.Query("hours"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &hours); err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	points, err := s.store.Equity().Range(since, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, points)
}

// handleFills returns recent fills for a symbol
func (s *Server) handleFills(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "persistence disabled"})
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	fills, err := s.store.Fill().Recent(symbol, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fills)
}

// handleKillSwitchReset re-arms trading after a drawdown halt. Explicit
// operator action, never called by the bot itself.
func (s *Server) handleKillSwitchReset(c *gin.Context) {
	if !s.manager.KillSwitchTripped() {
		c.JSON(http.StatusConflict, gin.H{"error": "kill switch is not tripped"})
		return
	}
	if err := s.manager.ResetKillSwitch(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Warnf("⚠️ [API] kill switch reset by operator")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleConfigReload re-reads .env and the environment on operator
// request. Credentials are never echoed back; running tickers keep their
// old intervals until restart.
func (s *Server) handleConfigReload(c *gin.Context) {
	if err := godotenv.Overload(); err != nil {
		logger.Debugf("[API] no .env file to reload: %v", err)
	}
	cfg := config.Reload()
	logger.InitWithSimpleConfig(cfg.LogLevel)
	logger.Warnf("⚠️ [API] configuration reloaded by operator")

	c.JSON(http.StatusOK, gin.H{
		"status":           "reloaded",
		"log_level":        cfg.LogLevel,
		"risk_mode":        cfg.RiskMode,
		"leverage":         cfg.Leverage,
		"levels_per_side":  cfg.LevelsPerSide,
		"cci_floor":        cfg.CCIFloor,
		"ladder_interval":  cfg.LadderInterval.String(),
		"realloc_interval": cfg.ReallocInterval.String(),
	})
}

// Start runs the HTTP server until it fails or is shut down
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("🌐 API server starting at http://localhost%s", addr)
	logger.Infof("  • GET  /api/health            - Health check")
	logger.Infof("  • GET  /api/status            - Per-pair grid status")
	logger.Infof("  • GET  /api/allocations       - Latest capital allocation")
	logger.Infof("  • GET  /api/equity-history    - Equity curve points")
	logger.Infof("  • GET  /api/fills?symbol=x    - Recent fills")
	logger.Infof("  • POST /api/killswitch/reset  - Re-arm after drawdown halt")
	logger.Infof("  • POST /api/config/reload     - Re-read .env and environment")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
