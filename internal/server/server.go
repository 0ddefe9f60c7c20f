// Package server wires storage, services and routes into the fraudwatch HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mbd888/fraudwatch/internal/auth"
	"github.com/mbd888/fraudwatch/internal/bank"
	"github.com/mbd888/fraudwatch/internal/circuitbreaker"
	"github.com/mbd888/fraudwatch/internal/config"
	"github.com/mbd888/fraudwatch/internal/gormstore"
	"github.com/mbd888/fraudwatch/internal/health"
	"github.com/mbd888/fraudwatch/internal/logging"
	"github.com/mbd888/fraudwatch/internal/metrics"
	"github.com/mbd888/fraudwatch/internal/ratelimit"
	"github.com/mbd888/fraudwatch/internal/realtime"
	"github.com/mbd888/fraudwatch/internal/risk"
	"github.com/mbd888/fraudwatch/internal/traces"
	"github.com/mbd888/fraudwatch/internal/transactions"
	"github.com/mbd888/fraudwatch/internal/validation"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server owns the HTTP listener and every dependency behind it.
type Server struct {
	cfg          *config.Config
	authMgr      *auth.Manager
	bank         *bank.Service
	transactions *transactions.Service
	evaluator    *risk.Evaluator
	rng          risk.RandomSource
	realtimeHub  *realtime.Hub
	health       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil unless using PostgreSQL or SQLite
	storage      string
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	drainDelay   time.Duration
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	stopTracing  func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRandomSource overrides the random source behind amounts, merchants,
// txn_id suffixes and risk scores (for testing).
func WithRandomSource(rng risk.RandomSource) Option {
	return func(s *Server) {
		s.rng = rng
	}
}

// WithDrainDelay sets how long Shutdown waits before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New opens storage and builds the router. It does not start listening.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = risk.NewRand(cfg.RiskSeed)
	}

	ctx := context.Background()

	stopTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.stopTracing = stopTracing

	authStore, accountStore, txStore, err := s.openStores(ctx)
	if err != nil {
		return nil, err
	}

	// Database-backed transaction stores fail fast after repeated errors
	if s.db != nil {
		breaker := circuitbreaker.New(5, 30*time.Second).OnTransition(func(key string, from, to circuitbreaker.State) {
			s.logger.Warn("circuit breaker state change", "key", key, "from", from.String(), "to", to.String())
		})
		txStore = transactions.NewGuardedStore(txStore, breaker)
		s.health.Register("transactions_store", func(ctx context.Context) health.Status {
			st := breaker.State(transactions.BreakerKey)
			return health.Status{Name: "transactions_store", Healthy: st != circuitbreaker.StateOpen, Detail: st.String()}
		})
	}

	s.realtimeHub = realtime.NewHub(s.logger).WithAllowedOrigins(cfg.CORSOrigins)
	events := &realtimePublisher{hub: s.realtimeHub}

	s.authMgr = auth.NewManager(authStore, cfg.JWTSecret, cfg.JWTTTL)
	s.bank = bank.NewService(accountStore).WithEvents(events)
	s.evaluator = risk.NewEvaluator(riskConfig(cfg), s.rng)
	s.transactions = transactions.NewService(txStore, s.bank, s.evaluator, s.rng).
		WithMaxCount(cfg.MaxGenerateCount).
		WithEvents(events)

	rc := s.evaluator.Config()
	s.logger.Info("risk evaluator configured",
		"history_aware", rc.HistoryAware,
		"uniform_min", rc.UniformMin,
		"reasons_threshold", rc.ReasonsThreshold,
		"safe_at_lower_bound", rc.SafeAtLowerBound,
		"decorated_labels", rc.DecoratedLabels,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// openStores picks the storage backend from DATABASE_URL:
// empty is in-memory, sqlite:// or file: is SQLite via gorm, anything
// else is PostgreSQL.
func (s *Server) openStores(ctx context.Context) (auth.Store, bank.Store, transactions.Store, error) {
	dsn := s.cfg.DatabaseURL

	switch {
	case dsn == "":
		s.storage = "memory"
		s.logger.Info("using in-memory storage (data will not persist)")
		return auth.NewMemoryStore(), bank.NewMemoryStore(), transactions.NewMemoryStore(), nil

	case gormstore.IsSQLiteURL(dsn):
		gdb, err := gormstore.Open(dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		s.db = sqlDB
		s.storage = "sqlite"
		s.health.Register("sqlite", health.PingChecker("sqlite", sqlDB, 2*time.Second))
		s.logger.Info("using SQLite storage", "url", dsn)
		return gormstore.NewUserStore(gdb), gormstore.NewAccountStore(gdb), gormstore.NewTransactionStore(gdb), nil

	default:
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.storage = "postgres"
		s.health.Register("postgres", health.PingChecker("postgres", db, 2*time.Second))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(dsn))

		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		accountStore := bank.NewPostgresStore(db)
		if err := accountStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate bank store", "error", err)
		}
		txStore := transactions.NewPostgresStore(db)
		if err := txStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transactions store", "error", err)
		}
		return authStore, accountStore, txStore, nil
	}
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		HistoryAware:     cfg.RiskMode != config.RiskModeUniform,
		UniformMin:       cfg.RiskUniformMin,
		ReasonsThreshold: cfg.RiskReasonsThreshold,
		SafeAtLowerBound: cfg.RiskSafeAtLowerBound,
		DecoratedLabels:  cfg.RiskDecoratedLabels,
	}
}

// maskDSN replaces the password in a DSN before it is logged.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Probes and scraping
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.infoHandler)

	// Auth
	authHandler := auth.NewHandler(s.authMgr)
	authGroup := s.router.Group("/auth")
	authHandler.RegisterRoutes(authGroup)
	authHandler.RegisterProtectedRoutes(authGroup.Group("", auth.RequireAuth()))

	// Bank and transactions are open in demo mode, gated when REQUIRE_AUTH is set
	var gate []gin.HandlerFunc
	if s.cfg.RequireAuth {
		gate = append(gate, auth.RequireAuth())
	}

	bank.NewHandler(s.bank).RegisterRoutes(s.router.Group("/bank", gate...))

	txGroup := s.router.Group("/transactions", append(gate, validation.TxnIDParamMiddleware())...)
	transactions.NewHandler(s.transactions).RegisterRoutes(txGroup)

	// Realtime feed of scored transactions
	s.router.GET("/ws", append(gate, func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})...)
	s.router.GET("/ws/stats", append(gate, func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})...)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Storage   string          `json:"storage"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Storage:   s.storage,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "fraudwatch",
		"version": Version,
		"endpoints": []string{
			"POST /auth/signup",
			"POST /auth/login",
			"GET /auth/me",
			"POST /bank/link",
			"POST /transactions/generate?count=N",
			"GET /transactions",
			"GET /transactions/:txn_id",
			"GET /ws",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// StartBackground starts the goroutines Run depends on (the realtime hub
// and, with a database, the pool stats collector).
func (s *Server) StartBackground(ctx context.Context) {
	go s.realtimeHub.Run(ctx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(ctx, s.db, 15*time.Second)
	}
}

// Run serves until ctx is cancelled, a signal arrives or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"storage", s.storage,
			"require_auth", s.cfg.RequireAuth,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.StartBackground(runCtx)

	// Readiness flips once the listener has had a moment to bind
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown drains and stops the server, then releases storage and tracing.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Stops the hub and the stats collector
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Let load balancers notice the failing readiness probe
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Cleanup continues past a failed drain; the first error is returned.
	var firstErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			firstErr = err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return firstErr
}

// Router exposes the engine for httptest.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// realtimePublisher forwards domain events to the websocket hub.
type realtimePublisher struct {
	hub *realtime.Hub
}

func (p *realtimePublisher) PublishTransaction(tx *transactions.Transaction) {
	p.hub.BroadcastTransaction(&realtime.TransactionEvent{
		TxnID:                tx.TxnID,
		AccountID:            tx.AccountID,
		Amount:               tx.Amount,
		Merchant:             tx.Merchant,
		RiskScore:            tx.RiskScore,
		RiskLabel:            string(tx.RiskLabel),
		Blocked:              tx.Blocked,
		VerificationRequired: tx.VerificationRequired,
		VerificationStatus:   string(tx.VerificationStatus),
		Reasons:              tx.Reasons,
		Timestamp:            tx.Timestamp,
	})
}

func (p *realtimePublisher) PublishAccountLinked(a *bank.Account) {
	p.hub.BroadcastAccountLinked(a.ID, a.BankName)
}
