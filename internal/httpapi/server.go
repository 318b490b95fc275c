// Package httpapi is additive scaffolding, not a required module: a thin
// gin-based HTTP surface over SessionRegistry, ThreadManager, and
// TaskManager so the runtime is reachable from a browser or CLI client.
// Uses gin.New()+Recovery() for the router and a graceful-shutdown
// http.Server for the listener lifecycle.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rustyclaw/core/internal/common/logger"
	ctxcompose "github.com/rustyclaw/core/internal/context"
	"github.com/rustyclaw/core/internal/dispatch"
	"github.com/rustyclaw/core/internal/session"
	"github.com/rustyclaw/core/internal/taskmgr"
	"github.com/rustyclaw/core/internal/thread"
	"github.com/rustyclaw/core/internal/vault"
)

// Deps wires the managers the HTTP surface exposes. Vault, Composer,
// and Dispatcher are optional: a nil value disables the routes that
// depend on it rather than panicking, so callers that don't need the
// full runtime (tests, a stripped-down embedding) can leave them unset.
type Deps struct {
	Sessions     *session.Registry
	Threads      *thread.Manager
	Tasks        *taskmgr.Manager
	Vault        *vault.Vault
	Composer     *ctxcompose.Composer
	Dispatcher   *dispatch.Dispatcher
	WorkspaceDir string
	Logger       *logger.Logger
}

// Server wraps a gin.Engine and the stdlib http.Server that serves it.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger *logger.Logger
}

// New constructs a Server listening on addr.
func New(addr string, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.WithFields(zap.String("component", "httpapi"))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	h := &handlers{deps: deps, logger: log}
	registerRoutes(engine, h)

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		logger: log,
	}
}

// Start begins serving in the background. ListenAndServe errors other
// than http.ErrServerClosed are logged as fatal.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http api listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("http api failed to start", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the HTTP server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func registerRoutes(r *gin.Engine, h *handlers) {
	r.GET("/health", h.health)

	sessions := r.Group("/sessions")
	{
		sessions.GET("/:key", h.getSession)
		sessions.GET("/:key/history", h.sessionHistory)
		sessions.POST("/:key/messages", h.addMessage)
		sessions.POST("/:key/archive", h.archiveSession)
		sessions.GET("/archived", h.listArchivedSessions)
	}

	threads := r.Group("/threads")
	{
		threads.GET("", h.listThreads)
		threads.GET("/:id", h.getThread)
		threads.POST("/:id/foreground", h.switchForeground)
		threads.GET("/context", h.globalContext)
		threads.GET("/events", h.threadEvents)
	}

	tasks := r.Group("/tasks")
	{
		tasks.GET("", h.listTasks)
		tasks.GET("/:id", h.getTask)
		tasks.POST("/:id/control", h.controlTask)
		tasks.GET("/events", h.taskEvents)
	}

	r.GET("/vault/status", h.vaultStatus)
	r.GET("/context", h.composeContext)

	tools := r.Group("/tools")
	{
		tools.POST("/:name/invoke", h.invokeTool)
	}
}
