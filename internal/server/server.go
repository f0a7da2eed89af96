package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toronlabs/toron_backend/internal/auth"
	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/database"
	"github.com/toronlabs/toron_backend/internal/dedupe"
	"github.com/toronlabs/toron_backend/internal/logging"
	"github.com/toronlabs/toron_backend/internal/match"
	"github.com/toronlabs/toron_backend/internal/metrics"
	"github.com/toronlabs/toron_backend/internal/room"
)

// Server is the composition root: it owns the router, the hub, the
// session map, the room registry and the match manager.
type Server struct {
	cfg       Config
	router    *gin.Engine
	db        database.DatabaseInterface
	hub       *Hub
	sessions  *Sessions
	registry  *room.Registry
	deduper   *dedupe.Deduper
	manager   *MatchManager
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader
	startedAt time.Time

	httpServer *http.Server
}

// New wires the full server. The evaluator is the judge client in
// production and a canned fake in tests.
func New(cfg Config, db database.DatabaseInterface, evaluator Evaluator,
	met *metrics.Metrics, c clock.Clock) *Server {

	hub := NewHub()
	sessions := NewSessions()
	registry := room.NewRegistry(c)
	manager := NewMatchManager(db, registry, hub, sessions, evaluator, met, c, match.DefaultConfig())

	s := &Server{
		cfg:       cfg,
		router:    gin.New(),
		db:        db,
		hub:       hub,
		sessions:  sessions,
		registry:  registry,
		deduper:   dedupe.New(c),
		manager:   manager,
		metrics:   met,
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return cfg.OriginAllowed(r.Header.Get("Origin"))
			},
			EnableCompression: true,
		},
	}

	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(RecoveryMiddleware())
	s.router.Use(ErrorHandler())
	s.router.Use(s.corsMiddleware())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/ws", s.handleSocket)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/api/health", s.handleHealth)

	api := s.router.Group("/api")
	if s.cfg.AuthSecret != "" {
		api.Use(auth.Optional(s.cfg.AuthSecret))
	}
	api.GET("/subjects", s.handleSubjects)
	api.GET("/profile/:userId", s.handleProfile)
	api.GET("/rooms", s.handleRooms)
	api.GET("/battles", s.handleBattles)
	api.GET("/leaderboard", s.handleLeaderboard)
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && s.cfg.OriginAllowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Manager exposes the match manager, mainly for the CLI and tests
func (s *Server) Manager() *MatchManager {
	return s.manager
}

// Run starts serving on addr and blocks until the listener fails or
// Shutdown is called
func (s *Server) Run(addr string) error {
	s.manager.StartCleanup()

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	logging.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the background sweep
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.StopCleanup()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
