// Package server implements the WebSocket transport of dflow. Each configured path serves one view:
// clients with Read permission receive the snapshot of the view followed by its deltas, clients
// with Write permission may submit changes to the roots the view is computed from.
//
// Endpoints:
//   - GET /ws/<path>: WebSocket session on a path.
//   - GET /views/<path>: JSON snapshot of the view served on a path.
//   - GET /graph?format=dot|mermaid: diagram of the graph.
//   - GET /healthz: liveness.
//   - GET /metrics: Prometheus metrics.
//
// Example usage:
//
//	exec := dataflow.NewExecutor(g, logger)
//	srv, _ := server.NewServer(exec, server.Config{Addr: ":8080", Paths: spec.Paths, Logger: logger})
//	return srv.Start(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
	"github.com/l7mp/dflow/pkg/auth"
	"github.com/l7mp/dflow/pkg/dataflow"
)

const shutdownTimeout = 5 * time.Second

// DefaultMessageBurst is the default burst of the per-session rate limit.
const DefaultMessageBurst = 32

// Config configures the server.
type Config struct {
	// Addr is the listen address.
	Addr string
	// Name labels the graph diagram.
	Name string
	// Paths route transport paths to views.
	Paths []v1alpha1.PathSpec
	// SinkBuffer is the number of envelopes queued per session.
	SinkBuffer int
	// MessageRate limits the inbound envelopes per second of each session. Zero means no limit.
	MessageRate float64
	// MessageBurst is the number of envelopes a session may send at once. Defaults to
	// DefaultMessageBurst.
	MessageBurst int
	// Authenticator validates bearer tokens. Authentication is disabled when nil.
	Authenticator *auth.JWTAuthenticator
	// Logger is the logger.
	Logger logr.Logger
}

// Server is the transport of a dataflow graph.
type Server struct {
	config   Config
	executor *dataflow.Executor
	graph    *dataflow.Graph
	paths    map[string]v1alpha1.PathSpec
	// writable roots per path
	roots    map[string]map[string]bool
	allRoots map[string]bool
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session

	log logr.Logger
}

// NewServer creates a server for the graph run by the executor. The executor is started by Start;
// when the handler is served by other means the executor must be started separately.
func NewServer(executor *dataflow.Executor, config Config) (*Server, error) {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithName("server")

	if config.SinkBuffer <= 0 {
		config.SinkBuffer = dataflow.DefaultSinkBuffer
	}
	if config.MessageBurst <= 0 {
		config.MessageBurst = DefaultMessageBurst
	}

	g := executor.Graph()
	s := &Server{
		config:   config,
		executor: executor,
		graph:    g,
		paths:    map[string]v1alpha1.PathSpec{},
		roots:    map[string]map[string]bool{},
		allRoots: map[string]bool{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sessions: map[string]*session{},
		log:      log,
	}

	for _, r := range g.Roots() {
		s.allRoots[r] = true
	}

	for _, p := range config.Paths {
		if _, ok := s.paths[p.Path]; ok {
			return nil, fmt.Errorf("duplicate path %q", p.Path)
		}
		roots, err := g.RootsOf(p.View)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", p.Path, err)
		}
		s.paths[p.Path] = p
		s.roots[p.Path] = map[string]bool{}
		for _, r := range roots {
			s.roots[p.Path][r] = true
		}
	}

	s.engine = s.buildEngine()

	return s, nil
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), s.logRequests())

	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/graph", s.handleGraph)
	e.GET("/views/*path", s.handleView)
	e.GET("/ws/*path", s.handleWebSocket)

	return e
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on the configured address and serves until the context is canceled. It blocks.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the executor and serves HTTP on the listener until the context is canceled or either
// of them fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("starting server", "addr", ln.Addr().String(), "paths", len(s.paths))

	eg, ctx := errgroup.WithContext(ctx)
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	eg.Go(func() error {
		return s.executor.Start(ctx)
	})

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		s.log.V(1).Info("shutting down server")
		s.closeSessions()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// SessionCount returns the number of open WebSocket sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
	activeSessions.Set(float64(len(s.sessions)))
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.id)
	activeSessions.Set(float64(len(s.sessions)))
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.shutdown()
	}
}

// authorize resolves a path and returns the permission the request has on it.
func (s *Server) authorize(req *http.Request, path string) (v1alpha1.PathSpec, v1alpha1.Permission, error) {
	spec, ok := s.paths[path]
	if !ok {
		return spec, v1alpha1.NoPermission, NewUnknownPathError(path)
	}

	if s.config.Authenticator == nil {
		return spec, spec.Permission, nil
	}

	user, ok, err := s.config.Authenticator.AuthenticateRequest(req)
	if err != nil {
		return spec, v1alpha1.NoPermission, err
	}
	if !ok {
		return spec, v1alpha1.NoPermission, fmt.Errorf("%w: missing bearer token", auth.ErrUnauthenticated)
	}

	perm := user.Permission(path, spec.Permission)
	if perm == v1alpha1.NoPermission {
		return spec, perm, fmt.Errorf("%w: user %q on path %q", auth.ErrPermissionDenied, user.Name, path)
	}

	return spec, perm, nil
}

// authenticate checks the token of requests that are not bound to a path.
func (s *Server) authenticate(req *http.Request) error {
	if s.config.Authenticator == nil {
		return nil
	}
	_, ok, err := s.config.Authenticator.AuthenticateRequest(req)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: missing bearer token", auth.ErrUnauthenticated)
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.V(2).Info("request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "duration", time.Since(start).String())
	}
}
