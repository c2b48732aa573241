package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/jub0bs/cors"

	"isoserve/internal/certmint"
	"isoserve/internal/isolation"
	"isoserve/internal/webroot"
)

// Server serves a single directory over HTTPS with the response headers
// browsers require for cross-origin isolation.
type Server struct {
	config Config
	logger *slog.Logger
}

// New creates a new Server with the given configuration. The served root is
// validated up front so a bad path fails before anything listens.
func New(cfg Config) (*Server, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("served root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("served root %s: not a directory", cfg.Root)
	}

	return &Server{
		config: cfg,
		logger: logger,
	}, nil
}

// Run starts the server in the configured mode and blocks until shutdown.
// The server shuts down gracefully on SIGINT or SIGTERM. Startup errors
// (unusable key pair, occupied address) are returned before the listener
// ever accepts a connection.
func (s *Server) Run(ctx context.Context) error {
	handler, err := s.buildHandler()
	if err != nil {
		return err
	}

	if s.config.PlainHTTP {
		return s.runHTTP(ctx, handler)
	}
	return s.runTLS(ctx, handler)
}

// runHTTP serves without TLS. Intended for environments that terminate TLS
// elsewhere or rely on localhost being a secure context.
func (s *Server) runHTTP(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("serving HTTP (no TLS)",
		"addr", s.config.Addr,
		"root", s.config.Root,
		"url", browseURL("http", s.config.Addr),
	)

	return s.serve(ctx, srv)
}

// runTLS serves HTTPS with the configured key pair, minting one first when
// self-signing is enabled and no pair exists yet.
func (s *Server) runTLS(ctx context.Context, handler http.Handler) error {
	if s.config.SelfSign {
		sc, minted, err := certmint.EnsureSelfSigned(s.config.CertFile, s.config.KeyFile, s.config.Hosts)
		if err != nil {
			return fmt.Errorf("self-signed certificate: %w", err)
		}
		if minted {
			s.logger.Info("minted self-signed certificate",
				"cert", s.config.CertFile,
				"key", s.config.KeyFile,
				"hosts", strings.Join(s.config.Hosts, ","),
				"notAfter", sc.Cert.NotAfter.Format(time.RFC3339),
			)
		}
	}

	tlsCert, err := certmint.LoadServing(s.config.CertFile, s.config.KeyFile)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		MinVersion:   tls.VersionTLS12,
	}

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		// Handshake failures are per-connection noise, not fatal errors;
		// route them through the structured logger at Warn.
		ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	s.logger.Info("serving HTTPS",
		"addr", s.config.Addr,
		"root", s.config.Root,
		"url", browseURL("https", s.config.Addr),
	)

	return s.serveTLS(ctx, srv)
}

// buildHandler assembles the middleware chain around the file handler.
// Isolation wraps the whole serving chain so its headers land on every
// response, including the preflight responses the CORS middleware answers
// itself and the error responses the file handler produces. Access logging
// sits outside that; it only observes.
func (s *Server) buildHandler() (http.Handler, error) {
	corsMw, err := cors.NewMiddleware(cors.Config{
		Origins:        []string{"*"},
		Methods:        []string{"*"},
		RequestHeaders: []string{"*"},
	})
	if err != nil {
		return nil, fmt.Errorf("configure CORS: %w", err)
	}

	var h http.Handler = webroot.Handler(osfs.New(s.config.Root))
	h = corsMw.Wrap(h)
	if s.config.NoCache {
		h = noStore(h)
	}
	return s.accessLog(isolation.Wrap(h)), nil
}

// noStore stamps Cache-Control: no-store before the handler runs.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// accessLog emits one line per completed request with the final status
// and byte count.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			// Handler returned without writing; net/http sends 200.
			rec.status = http.StatusOK
		}
		s.logger.Info("request",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start),
		)
	})
}

// statusRecorder remembers the first status line written and counts body
// bytes, for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// browseURL renders the address as something a browser can open,
// substituting localhost for wildcard or empty hosts.
func browseURL(scheme, addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return scheme + "://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

// serve runs an HTTP server with graceful shutdown on context cancellation
// or OS signal.
func (s *Server) serve(ctx context.Context, srv *http.Server) error {
	return s.listenAndShutdown(ctx, srv, func() error {
		return srv.ListenAndServe()
	})
}

// serveTLS runs an HTTPS server with graceful shutdown.
func (s *Server) serveTLS(ctx context.Context, srv *http.Server) error {
	return s.listenAndShutdown(ctx, srv, func() error {
		// TLSConfig is pre-configured on the server, so pass empty strings.
		return srv.ListenAndServeTLS("", "")
	})
}

// listenAndShutdown is the common shutdown orchestration for both HTTP
// and HTTPS modes.
func (s *Server) listenAndShutdown(ctx context.Context, srv *http.Server, listenFn func() error) error {
	// Merge the parent context with OS signals for shutdown.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := listenFn(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or listen error.
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		s.logger.Info("shutdown complete")
	}

	return nil
}
