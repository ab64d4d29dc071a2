// Package api exposes a workspace over HTTP for a UI process.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/workspace"
)

// Options configure the server.
type Options struct {
	// JWT enables bearer token verification on every route but /healthz.
	JWT *JWTConfig
}

// Server serves one workspace.
type Server struct {
	ws          *workspace.Workspace
	engine      *gin.Engine
	logger      *common.Logger
	unsubscribe func()
}

// NewServer builds the route table.
func NewServer(ws *workspace.Workspace, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{ws: ws, engine: gin.New(), logger: common.GetLogger().WithComponent("api")}
	s.engine.Use(gin.Recovery(), s.logRequests)
	s.engine.GET("/healthz", s.health)
	s.mount(s.engine.Group("/"), opts)
	return s
}

// Close stops observing the workspace.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Mount registers the workspace routes on an existing gin group, e.g. under
// "/desk" of an application router. The returned func stops observing the workspace.
func Mount(g *gin.RouterGroup, ws *workspace.Workspace, opts Options) func() {
	s := &Server{ws: ws, logger: common.GetLogger().WithComponent("api")}
	s.mount(g, opts)
	return s.Close
}

func (s *Server) mount(g *gin.RouterGroup, opts Options) {
	s.unsubscribe = s.ws.Sync.Subscribe(s.logTransition)
	if opts.JWT != nil {
		g.Use(JWTMiddleware(*opts.JWT))
	}
	s.routes(g)
}

// Handler returns the http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	defer s.Close()
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logTransition(v workspace.View) {
	s.logger.Debug("view changed", "state", v.State.String(), "tab", v.Key)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.WithRequest(c.Request.Method, c.Request.URL.Path).Debug("request handled",
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

type errorBody struct {
	Error string `json:"error"`
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, errorBody{Error: err.Error()})
}
