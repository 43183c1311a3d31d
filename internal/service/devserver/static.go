package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/logger/tag"
)

// Routes served under the reserved prefix regardless of the static root.
const (
	RoutePrefix  = "/__devloop"
	HealthPath   = RoutePrefix + "/health"
	EventsPath   = RoutePrefix + "/events"
	MetricsPath  = RoutePrefix + "/metrics"
	indexFile    = "index.html"
	shutdownWait = 5 * time.Second
)

// StaticOptions configures a StaticServer.
type StaticOptions struct {
	Host string
	Port int
	// Root is the directory served at "/". A missing root serves 404s until
	// the directory appears.
	Root string
	// SPA serves index.html for paths that do not name a file.
	SPA bool
	// Registry is exposed at MetricsPath when set.
	Registry *prometheus.Registry
	// Debug logs every request; otherwise only failed requests are logged.
	Debug     bool
	LogFormat string
}

var (
	_ Server   = (*StaticServer)(nil)
	_ Notifier = (*StaticServer)(nil)
)

// StaticServer serves a directory of built assets, a live-reload websocket
// and session metrics.
type StaticServer struct {
	opts StaticOptions
	hub  *hub

	mu         sync.Mutex
	httpServer *http.Server
	served     chan struct{}
}

// NewStaticServer creates a server for opts. Nothing is bound until Start.
func NewStaticServer(opts StaticOptions) *StaticServer {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	return &StaticServer{opts: opts, hub: newHub()}
}

func (s *StaticServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url()
}

func (s *StaticServer) url() string {
	return "http://" + net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Notify broadcasts ev to connected live-reload clients.
func (s *StaticServer) Notify(ev Event) {
	s.hub.broadcast(ev)
}

// Start binds the port and serves in the background. It returns once the
// listener is open so that the URL is reachable when Start returns.
func (s *StaticServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("static server already started")
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if tcp, ok := ln.Addr().(*net.TCPAddr); ok && s.opts.Port == 0 {
		s.opts.Port = tcp.Port
	}

	s.served = make(chan struct{})
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	logger.Info(ctx, "Auxiliary server is starting", tag.URL(s.url()), tag.Dir(s.opts.Root))

	go s.serve(ctx, s.httpServer, ln, s.served)
	return nil
}

func (s *StaticServer) serve(ctx context.Context, srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "Auxiliary server stopped unexpectedly", tag.Error(err))
	}
}

// Stop disconnects live-reload clients, shuts the HTTP server down and
// releases the port.
func (s *StaticServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done, url := s.httpServer, s.served, s.url()
	s.httpServer = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	logger.Info(ctx, "Auxiliary server is shutting down", tag.URL(url))
	s.hub.close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWait)
	defer cancel()

	srv.SetKeepAlivesEnabled(false)
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	return err
}

func (s *StaticServer) routes() http.Handler {
	level := slog.LevelWarn
	if s.opts.Debug {
		level = slog.LevelDebug
	}
	requestLogger := httplog.NewLogger("devloop-aux", httplog.Options{
		LogLevel:         level,
		JSON:             s.opts.LogFormat == "json",
		Concise:          true,
		MessageFieldName: "msg",
		QuietDownRoutes:  []string{HealthPath},
		QuietDownPeriod:  time.Minute,
	})

	r := chi.NewMux()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		MaxAge:         300,
	}))

	r.Route(RoutePrefix, func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		r.Handle("/events", s.hub)
		if s.opts.Registry != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{}))
		}
	})

	r.Handle("/*", http.HandlerFunc(s.serveStatic))
	return r
}

func (s *StaticServer) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	name := filepath.Join(s.opts.Root, filepath.FromSlash(clean))

	if info, err := os.Stat(name); err == nil {
		if !info.IsDir() {
			serveFile(w, r, name)
			return
		}
		if index := filepath.Join(name, indexFile); isFile(index) {
			serveFile(w, r, index)
			return
		}
	}

	if s.opts.SPA {
		if index := filepath.Join(s.opts.Root, indexFile); isFile(index) {
			serveFile(w, r, index)
			return
		}
	}
	http.NotFound(w, r)
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

func serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name) //nolint:gosec
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	// Assets change on every build.
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
