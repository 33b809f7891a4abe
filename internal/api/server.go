package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/config"
	"github.com/Rune-Status/aj8/internal/db"
	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/game"
	"github.com/Rune-Status/aj8/internal/health"
	intnet "github.com/Rune-Status/aj8/internal/network"
	"github.com/Rune-Status/aj8/internal/util"
)

// World is the part of game.World the API drives.
type World interface {
	Snapshot() *game.Snapshot
	Kick(ctx context.Context, username string) error
	Broadcast(text string) error
	SystemUpdate(ticks int) error
	SaveAll() error
}

// Sessions lists live connections. network.SessionRegistry implements it.
type Sessions interface {
	Count() int
	Sessions() []intnet.SessionInfo
}

// Lag reports tick overruns. health.LagMonitor implements it.
type Lag interface {
	Stats() health.LagStats
}

// Health reports check results. health.Manager implements it.
type Health interface {
	Results() []health.CheckResult
	Healthy() bool
}

// Alerts lists and acknowledges operator alerts. db.AlertStore implements it.
type Alerts interface {
	GetUnacknowledgedAlerts(ctx context.Context, limit int) ([]db.Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID int) error
}

// Publisher receives config change events.
type Publisher interface {
	Emit(ctx context.Context, event events.Event)
}

// Deps are the running components the API reports on.
type Deps struct {
	World     World
	Sessions  Sessions
	Lag       Lag
	Health    Health
	Alerts    Alerts
	Publisher Publisher
}

// Server is the admin and status REST API.
type Server struct {
	cfg  *config.Config
	deps Deps

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the API server and its routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, deps: deps}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetAPI()
	security := s.cfg.GetSecurity()
	addr := net.JoinHostPort(s.cfg.GetServer().BindAddress, strconv.Itoa(apiCfg.Port))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if security.TLSEnabled {
		hosts := []string{"localhost", "127.0.0.1", s.cfg.GetServer().BindAddress}
		if _, err := util.EnsureSelfSignedCert(security.TLSCertFile, security.TLSKeyFile, hosts); err != nil {
			return fmt.Errorf("failed to prepare API TLS certificate: %w", err)
		}
		cert, err := tls.LoadX509KeyPair(security.TLSCertFile, security.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load API TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start API listener on %s: %w", addr, err)
	}

	log.Info().Str("addr", addr).Bool("tls", security.TLSEnabled).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if security.TLSEnabled {
		err = s.httpServer.Serve(tls.NewListener(ln, s.httpServer.TLSConfig))
	} else {
		err = s.httpServer.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	security := s.cfg.GetSecurity()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(security.RateLimitRPS).Middleware())

	auth := NewAuthMiddleware(s.cfg)

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/server_info", s.handleServerInfo)
	}

	protected := router.Group("/api")
	protected.Use(auth.IPWhitelist(), auth.RequireAuth())

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/players", s.handlePlayers)
		monitor.GET("/players/:username", s.handlePlayer)
		monitor.GET("/sessions", s.handleSessions)
		monitor.GET("/system", s.handleSystem)
		monitor.GET("/lag", s.handleLag)
		monitor.GET("/health", s.handleHealth)
		monitor.GET("/alerts", s.handleAlerts)
		monitor.GET("/logs", s.handleLogEntries)
	}

	control := protected.Group("/control")
	{
		control.POST("/kick/:username", s.handleKick)
		control.POST("/broadcast", s.handleBroadcast)
		control.POST("/system_update", s.handleSystemUpdate)
		control.POST("/save", s.handleSave)
		control.POST("/alerts/:id/ack", s.handleAcknowledgeAlert)
	}

	configure := protected.Group("/configure")
	{
		configure.GET("/config", s.handleGetConfig)
		configure.POST("/server", s.handleSetServerField)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop shuts the API server down.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
