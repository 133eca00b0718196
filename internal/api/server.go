package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
	"github.com/nerrad567/p1-videostream/internal/history"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/config"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/logging"
	"github.com/nerrad567/p1-videostream/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown. Open MJPEG and WebSocket streams are cut.
const gracefulShutdownTimeout = 10 * time.Second

// FrameSource is the part of the device registry the HTTP layer uses.
// *p1.Registry satisfies it.
type FrameSource interface {
	GetOrCreate(address, pin string) *p1.Handle
	GetFrame(address, pin string) ([]byte, bool)
	Snapshot() []p1.WorkerInfo
}

// SessionLister returns recent session history rows.
// *history.Repository satisfies it.
type SessionLister interface {
	Recent(ctx context.Context, address string, limit int) ([]history.Session, error)
}

// HealthChecker is implemented by the optional backends reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Server   config.ServerConfig
	Stream   config.StreamConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Frames   FrameSource
	Metrics  *metrics.Metrics

	// Optional.
	Hub     *Hub
	History SessionLister
	Checks  map[string]HealthChecker
	SiteDir string
	Version string
}

// Server is the HTTP server of the bridge.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg      config.ServerConfig
	stream   config.StreamConfig
	security config.SecurityConfig
	logger   *logging.Logger
	frames   FrameSource
	metrics  *metrics.Metrics
	hub      *Hub
	history  SessionLister
	checks   map[string]HealthChecker
	siteDir  string
	version  string

	startTime time.Time
	server    *http.Server
	cancel    context.CancelFunc

	mu   sync.Mutex
	addr net.Addr
}

// New creates a server with the given dependencies. The server does not
// listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Frames == nil {
		return nil, fmt.Errorf("frame source is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("")
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(DefaultHubConfig(), deps.Logger)
	}

	return &Server{
		cfg:       deps.Server,
		stream:    deps.Stream,
		security:  deps.Security,
		logger:    deps.Logger,
		frames:    deps.Frames,
		metrics:   deps.Metrics,
		hub:       deps.Hub,
		history:   deps.History,
		checks:    deps.Checks,
		siteDir:   deps.SiteDir,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub so it can be attached to the worker events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listen address and serves in a background goroutine.
// At most MaxConnections client connections are open at once; further
// connections wait in the accept queue.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddress, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.server = &http.Server{
		Handler:           s.buildRouter(srvCtx),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	s.logger.Info("HTTP server listening",
		"address", ln.Addr().String(),
		"max_connections", s.cfg.MaxConnections,
	)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Ends the hub, MJPEG streams and the rate limiter janitor.
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
