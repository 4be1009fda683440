package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/config"
	"github.com/energizer-project/netsync/internal/db"
	"github.com/energizer-project/netsync/internal/events"
	intnet "github.com/energizer-project/netsync/internal/network"
	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/server"
	"github.com/energizer-project/netsync/internal/util"
)

// Version is reported by the public endpoints.
const Version = "1.0.0"

// Monitor is the view of the sync server the API needs.
type Monitor interface {
	Snapshot() server.Snapshot
	RequestKick(id protocol.NetworkID) error
}

// History lists closed and open sessions from the audit log.
type History interface {
	Recent(ctx context.Context, limit int) ([]db.SessionRecord, error)
}

// Server is the REST API for inspecting and controlling a running
// sync server.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	monitor  Monitor
	history  History

	routerOnce sync.Once
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, monitor Monitor) *Server {
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		monitor:  monitor,
	}
}

// SetHistory enables the session history endpoint.
func (s *Server) SetHistory(h History) {
	s.history = h
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() {
		s.router = s.buildRouter()
	})
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetAPI()
	addr := apiCfg.ListenAddr

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if apiCfg.TLSEnabled {
		created, err := util.EnsureSelfSignedCert(apiCfg.TLSCertFile, apiCfg.TLSKeyFile, []string{hostOf(addr)})
		if err != nil {
			return fmt.Errorf("API TLS setup failed: %w", err)
		}
		if created {
			log.Warn().Str("cert", apiCfg.TLSCertFile).Msg("generated self-signed API certificate")
		}
		cert, err := tls.LoadX509KeyPair(apiCfg.TLSCertFile, apiCfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load API certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	// SO_REUSEADDR allows rebinding immediately after a restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", ln.Addr().String()).Bool("tls", apiCfg.TLSEnabled).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if apiCfg.TLSEnabled {
		err = s.httpServer.Serve(tls.NewListener(ln, s.httpServer.TLSConfig))
	} else {
		err = s.httpServer.Serve(ln)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetAPI()
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(apiCfg.RateLimitRPS).Middleware())
	router.Use(IPWhitelist(apiCfg.IPWhitelist))

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
		public.GET("/server_info", s.handleGetServerInfo)
	}

	monitor := router.Group("/api/monitor")
	{
		monitor.GET("/sessions", s.handleGetSessions)
		monitor.GET("/sessions/:id", s.handleGetSession)
		monitor.GET("/entities", s.handleGetEntities)
		monitor.GET("/stats", s.handleGetStats)
		monitor.GET("/ticks", s.handleGetTicks)
		monitor.GET("/system", s.handleGetSystem)
		monitor.GET("/history", s.handleGetHistory)
		monitor.GET("/log_entries", s.handleGetLogEntries)
	}

	token := RequireToken(apiCfg.ControlToken)

	control := router.Group("/api/control")
	control.Use(token)
	{
		control.POST("/kick/:id", s.handleKick)
	}

	configure := router.Group("/api/configure")
	configure.Use(token)
	{
		configure.GET("/config", s.handleGetConfig)
		configure.POST("/log_level", s.handleSetLogLevel)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}
