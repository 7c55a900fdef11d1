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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/todosync/internal/api/http"
	"github.com/GriffinCanCode/todosync/internal/api/middleware"
	"github.com/GriffinCanCode/todosync/internal/backup"
	"github.com/GriffinCanCode/todosync/internal/dispatch"
	"github.com/GriffinCanCode/todosync/internal/domain/task"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/config"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/todosync/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/todosync/internal/reminder"
	"github.com/GriffinCanCode/todosync/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP and WebSocket servers and their dependencies
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	gatherer *prometheus.Registry
	metrics  *monitoring.Metrics

	store    *task.MemoryStore
	backups  *backup.Service
	reminder *reminder.Service

	conns       *ws.Registry
	broadcaster *ws.Broadcaster
	dispatcher  *dispatch.Router
	listener    *ws.Listener

	router     *gin.Engine
	httpServer *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewServer creates a new server instance. A nil logger discards output.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing TodoSync server",
		zap.String("http_addr", cfg.Server.Addr()),
		zap.String("ws_addr", cfg.WebSocket.Addr()),
	)

	// Metrics get their own registry so tests can build many servers
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	store := task.NewMemoryStore()

	backups := backup.NewService(backup.Config{
		Dir:  cfg.Backup.Dir,
		Keep: cfg.Backup.Keep,
		Gzip: cfg.Backup.Gzip,
	}, store, metrics, logger.Logger)

	rem, err := newReminder(cfg, store, metrics, logger)
	if err != nil {
		return nil, err
	}

	conns := ws.NewRegistry()
	broadcaster := ws.NewBroadcaster(conns, metrics, logger.Logger)
	dispatcher := dispatch.NewRouter(store, broadcaster, metrics, logger.Logger)

	wsHandler := ws.NewHandler(ws.HandlerConfig{
		ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		MaxPayload:       cfg.WebSocket.MaxPayload,
	}, conns, dispatcher, metrics, logger.Logger)
	listener := ws.NewListener(cfg.WebSocket.Addr(), wsHandler, conns, cfg.WebSocket.AcceptPoll, logger.Logger)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracing.New(logger.Logger, time.Second)))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(store, broadcaster, conns, backups, rem, metrics, logger.Logger).
		WithEvents(dispatcher.Types())
	apihttp.RegisterRoutes(router, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully")

	return &Server{
		config:      cfg,
		logger:      logger,
		gatherer:    reg,
		metrics:     metrics,
		store:       store,
		backups:     backups,
		reminder:    rem,
		conns:       conns,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		listener:    listener,
		router:      router,
		httpServer: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// newReminder builds the reminder service. Without SMTP settings it is
// created with no mailer, so the scheduler stays off and test emails fail.
func newReminder(cfg *config.Config, store task.Store, metrics *monitoring.Metrics, logger *logging.Logger) (*reminder.Service, error) {
	loc, err := time.LoadLocation(cfg.Reminder.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminder timezone: %w", err)
	}

	var mailer reminder.Mailer
	if cfg.SMTP.Configured() {
		breaker := resilience.New("smtp", resilience.Settings{
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
		mailer = reminder.NewSMTPMailer(reminder.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			Sender:    cfg.SMTP.Sender,
			Recipient: cfg.SMTP.Recipient,
		}, breaker)
	} else if cfg.Reminder.Enabled {
		logger.Warn("Reminder enabled but SMTP is not configured; scheduler disabled")
	}

	return reminder.NewService(reminder.Config{
		Enabled:  cfg.Reminder.Enabled && mailer != nil,
		Hour:     cfg.Reminder.Hour,
		Location: loc,
	}, store, mailer, metrics, logger.Logger), nil
}

// Run binds both ports and serves until ctx is canceled or a listener fails
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.config.Server.Addr(), err)
	}
	wsLn, err := net.Listen("tcp", s.config.WebSocket.Addr())
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listen websocket %s: %w", s.config.WebSocket.Addr(), err)
	}
	return s.Serve(ctx, httpLn, wsLn)
}

// Serve runs on already bound listeners. It performs the startup restore
// and backup, starts the reminder, and blocks until shutdown completes.
func (s *Server) Serve(ctx context.Context, httpLn, wsLn net.Listener) error {
	s.prepareStore(ctx)
	s.reminder.Start(ctx)

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpLn.Addr().String()))
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := s.listener.Serve(ctx, wsLn); err != nil {
			errCh <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.logger.Error("Server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// prepareStore restores the newest backup when asked to, then takes a
// startup backup. Failures are logged and do not stop the server.
func (s *Server) prepareStore(ctx context.Context) {
	if s.config.Backup.Restore {
		n, err := s.backups.Restore(ctx, s.store)
		switch {
		case errors.Is(err, backup.ErrNoBackups):
			s.logger.Info("No backup to restore")
		case err != nil:
			s.logger.Warn("Failed to restore backup", zap.Error(err))
		default:
			s.logger.Info("Restored tasks from backup", zap.Int("tasks", n))
		}
	}
	if s.config.Backup.OnStart {
		if _, err := s.backups.Backup(ctx); err != nil {
			s.logger.Warn("Startup backup failed", zap.Error(err))
		}
	}
}

// Shutdown gracefully stops both servers and the reminder scheduler. It is
// safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		var errs []error
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := s.listener.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
		}
		s.reminder.Stop()

		s.shutdownErr = errors.Join(errs...)
		_ = s.logger.Sync()
	})
	return s.shutdownErr
}

// Router exposes the Gin engine
func (s *Server) Router() *gin.Engine { return s.router }

// Clients returns the number of open WebSocket connections
func (s *Server) Clients() int { return s.conns.Len() }
