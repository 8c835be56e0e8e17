package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"

	"platescan/internal/history"
	"platescan/internal/logging"
	"platescan/internal/metrics"
	"platescan/internal/scan"
)

// ErrAlreadyRunning is returned by Run when another server holds the lock.
var ErrAlreadyRunning = errors.New("another platescan server is already running")

const (
	defaultUploadLimit = 16 << 20
	shutdownTimeout    = 5 * time.Second
)

// Scanner is the scan surface the API drives.
type Scanner interface {
	ScanBytes(ctx context.Context, data []byte, imageURI string) (scan.Result, error)
	Save(ctx context.Context, result scan.Result) (history.Record, error)
}

// History is the subset of the history store the API reads and mutates.
type History interface {
	List(ctx context.Context) ([]history.Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	Clear(ctx context.Context) error
}

// Options wires the server dependencies.
type Options struct {
	Bind     string
	Token    string
	LockPath string
	// UploadLimit caps request bodies on /api/scan. Zero selects 16 MiB.
	UploadLimit int64

	Scanner Scanner
	History History
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server owns the gin engine and the listening http.Server.
type Server struct {
	bind        string
	lockPath    string
	uploadLimit int64

	scanner Scanner
	history History
	metrics *metrics.Metrics
	logger  *slog.Logger

	router *gin.Engine
}

// New builds the router. It does not listen.
func New(opts Options) (*Server, error) {
	if opts.Scanner == nil {
		return nil, errors.New("server requires a scanner")
	}
	if opts.History == nil {
		return nil, errors.New("server requires a history store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bind:        strings.TrimSpace(opts.Bind),
		lockPath:    strings.TrimSpace(opts.LockPath),
		uploadLimit: opts.UploadLimit,
		scanner:     opts.Scanner,
		history:     opts.History,
		metrics:     opts.Metrics,
		logger:      logging.NewComponentLogger(logger, "api"),
	}
	if s.uploadLimit <= 0 {
		s.uploadLimit = defaultUploadLimit
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.requestLogger())
	if s.metrics != nil {
		router.Use(observe(s.metrics))
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	router.GET("/api/health", s.handleHealth)

	protected := router.Group("/api", bearerAuth(strings.TrimSpace(opts.Token)))
	protected.POST("/scan", s.handleScan)
	protected.GET("/history", s.handleHistoryList)
	protected.DELETE("/history", s.handleHistoryClear)
	protected.DELETE("/history/:id", s.handleHistoryDelete)

	s.router = router
	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run takes the instance lock, listens on the configured bind address, and
// serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.lockPath != "" {
		lock := flock.New(s.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire server lock: %w", err)
		}
		if !ok {
			return ErrAlreadyRunning
		}
		defer func() { _ = lock.Unlock() }()
	}

	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the API on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Extraction may take three 20s attempts plus backoff.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}
