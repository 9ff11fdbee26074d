package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codecoach/pkg/logx"
	"codecoach/pkg/version"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	jobQueueSize    = 64
	maxFrameBytes   = 8 << 20
)

// Options configures a Server.
type Options struct {
	Addr       string
	NewSession SessionFactory
	Gatherer   prometheus.Gatherer // nil serves prometheus.DefaultGatherer
}

// Server accepts editor connections and serves the operational endpoints.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *logx.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer returns a server; call Run to listen.
func NewServer(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			// Editor webviews use custom origins; the listener is bound to loopback.
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: logx.NewLogger("bridge"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Get("/logs", s.handleLogs)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Run listens on opts.Addr until ctx is cancelled, then shuts down gracefully and closes
// every editor connection.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🔌 Editor bridge listening on %s", ln.Addr())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bridge server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down editor bridge")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	//nolint:contextcheck // parent is cancelled; shutdown needs its own deadline
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed: %v", err)
	}
	// Hijacked websocket connections are not covered by Shutdown.
	s.closeAll()
	s.wg.Wait()
	<-errCh
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, map[string]string{"version": version.Version, "commit": version.Commit})
}

// handleLogs implements GET /logs?level=WARN.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, logx.RecentEntries(r.URL.Query().Get("level")))
}

func writeJSON(w http.ResponseWriter, logger *logx.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)
	if !s.track(ws) {
		_ = ws.Close()
		return
	}
	defer s.untrack(ws)

	conn := newConn(func(f Frame) error {
		if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return ws.WriteJSON(f)
	})
	s.serveConn(r.Context(), ws, conn)
}

// serveConn runs one connection: a read loop feeding an ordered job worker.
func (s *Server) serveConn(ctx context.Context, ws *websocket.Conn, conn *Conn) {
	defer func() { _ = ws.Close() }()

	sess, err := s.opts.NewSession(ctx, conn, conn)
	if err != nil {
		s.logger.Error("session setup failed: %v", err)
		return
	}
	s.logger.Info("Editor connected from %s", ws.RemoteAddr())

	jobs := make(chan func(context.Context) error, jobQueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for job := range jobs {
			s.runJob(ctx, job)
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logx.Debug(ctx, "bridge", "read: %v", err)
			}
			break
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("malformed frame dropped: %v", err)
			continue
		}
		if job := s.handleFrame(conn, frame, sess); job != nil {
			jobs <- job
		}
	}

	close(jobs)
	<-done
	conn.shutdown()
	sess.Close()
	s.logger.Info("Editor disconnected")
}

func (s *Server) handleFrame(conn *Conn, frame Frame, sess Session) (job func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic handling %s frame: %v", frame.Type, r)
			job = nil
		}
	}()
	return conn.handle(frame, sess)
}

func (s *Server) runJob(ctx context.Context, job func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic in session job: %v", r)
		}
	}()
	if err := job(ctx); err != nil {
		logx.Debug(ctx, "bridge", "job: %v", err)
	}
}

func (s *Server) track(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[ws] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(ws *websocket.Conn) {
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, ws)
	}
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for ws := range conns {
		_ = ws.Close()
	}
}
