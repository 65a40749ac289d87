package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/admission"
	"github.com/aman-churiwal/chat-admission/internal/audit"
	"github.com/aman-churiwal/chat-admission/internal/backend"
	"github.com/aman-churiwal/chat-admission/internal/circuitbreaker"
	"github.com/aman-churiwal/chat-admission/internal/config"
	"github.com/aman-churiwal/chat-admission/internal/dedupe"
	"github.com/aman-churiwal/chat-admission/internal/delivery"
	"github.com/aman-churiwal/chat-admission/internal/handler"
	"github.com/aman-churiwal/chat-admission/internal/healthcheck"
	"github.com/aman-churiwal/chat-admission/internal/ledger"
	"github.com/aman-churiwal/chat-admission/internal/loadbalancer"
	"github.com/aman-churiwal/chat-admission/internal/messages"
	"github.com/aman-churiwal/chat-admission/internal/metrics"
	"github.com/aman-churiwal/chat-admission/internal/middleware"
	"github.com/aman-churiwal/chat-admission/internal/models"
	"github.com/aman-churiwal/chat-admission/internal/pricing"
	"github.com/aman-churiwal/chat-admission/internal/ratelimit"
	"github.com/aman-churiwal/chat-admission/internal/repository"
	"github.com/aman-churiwal/chat-admission/internal/service"
	"github.com/aman-churiwal/chat-admission/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	logger     *slog.Logger
	httpServer *http.Server

	auditWriter *audit.Writer
	checker     *healthcheck.Checker
	httpLimiter ratelimit.Limiter

	apiKeyService    *service.APIKeyService
	authService      *service.AuthService
	analyticsService *service.AnalyticsService

	admissionHandler *handler.AdmissionHandler
	approvalHandler  *handler.ApprovalHandler
	communityHandler *handler.CommunityHandler
	analyticsHandler *handler.AnalyticsHandler
	messagesHandler  *handler.MessagesHandler
	apiKeyHandler    *handler.APIKeyHandler
	authHandler      *handler.AuthHandler
	systemHandler    *handler.SystemHandler
}

// Reachability check for an upstream used by the health checker
type pinger interface {
	Ping(ctx context.Context) error
}

// Options swaps collaborators that reach outside the process. Nil fields are
// built from the config.
type Options struct {
	Backend  backend.Completer
	Notifier delivery.Notifier
	Catalog  *messages.Catalog
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres, logger *slog.Logger, opts Options) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:   gin.New(),
		config:   cfg,
		redis:    redis,
		postgres: postgres,
		logger:   logger,
	}

	catalog := opts.Catalog
	if catalog == nil {
		var err error
		catalog, err = messages.Load(cfg.MessagesFile)
		if err != nil {
			return nil, err
		}
	}

	prices, err := pricing.NewTable(cfg.Backend.PromptPrice, cfg.Backend.CompletionPrice)
	if err != nil {
		return nil, fmt.Errorf("backend pricing: %w", err)
	}

	limiter, err := ratelimit.NewLimiter(cfg.RateLimit.Backend, cfg.RateLimit.Algorithm, redis)
	if err != nil {
		return nil, err
	}
	s.httpLimiter = limiter

	var guard dedupe.Guard = dedupe.NewRedisGuard(redis)
	if cfg.RateLimit.Dedupe == "memory" {
		guard = dedupe.NewMemoryGuard(100_000, models.MaxDuplicateWindowSeconds*time.Second)
	}

	// Repositories
	communityRepo := repository.NewCommunityRepository(postgres)
	recordRepo := repository.NewRecordRepository(postgres)
	usageRepo := repository.NewUsageRepository(postgres)
	auditRepo := repository.NewAuditRepository(postgres)
	apiKeyRepo := repository.NewAPIKeyRepository(postgres)
	reviewerRepo := repository.NewReviewerRepository(postgres)
	analyticsRepo := repository.NewAnalyticsRepository(postgres)

	// Services
	communityService := service.NewCommunityService(communityRepo, redis, logger)
	s.apiKeyService = service.NewAPIKeyService(apiKeyRepo, redis, logger)
	s.authService = service.NewAuthService(reviewerRepo, cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	s.analyticsService = service.NewAnalyticsService(analyticsRepo, usageRepo, auditRepo, recordRepo)

	s.auditWriter = audit.NewWriter(auditRepo, audit.Config{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval.Duration,
	}, logger)

	upstream, notifier, probes, err := s.upstreams(opts)
	if err != nil {
		return nil, err
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "backend",
		MaxFailures: cfg.Backend.BreakerMaxFailures,
		Timeout:     cfg.Backend.BreakerCooldown.Duration,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(to.Gauge())
		},
	})
	guarded := backend.NewGuarded(upstream, breaker, cfg.Backend.Timeout.Duration, logger)

	usageLedger := ledger.New(usageRepo)
	deps := admission.Deps{
		Configs:  communityService,
		Limiter:  limiter,
		Dedupe:   guard,
		Ledger:   usageLedger,
		Records:  recordRepo,
		Backend:  guarded,
		Notifier: notifier,
		Messages: catalog,
		Pricing:  prices,
		Audit:    s.auditWriter,
		Logger:   logger,
	}
	pipeline, err := admission.NewPipeline(deps)
	if err != nil {
		return nil, err
	}
	approvals, err := admission.NewApprovals(deps)
	if err != nil {
		return nil, err
	}

	s.checker = healthcheck.NewChecker(healthcheck.Config{
		Probes: append([]healthcheck.Probe{
			{Name: "postgres", Critical: true, Check: postgres.Ping},
			{Name: "redis", Critical: true, Check: redis.Ping},
		}, probes...),
		Logger: logger,
	})

	// Handlers
	s.admissionHandler = handler.NewAdmissionHandler(pipeline)
	s.approvalHandler = handler.NewApprovalHandler(approvals)
	s.communityHandler = handler.NewCommunityHandler(communityService, usageLedger, s.analyticsService)
	s.analyticsHandler = handler.NewAnalyticsHandler(s.analyticsService)
	s.messagesHandler = handler.NewMessagesHandler(catalog)
	s.apiKeyHandler = handler.NewAPIKeyHandler(s.apiKeyService)
	s.authHandler = handler.NewAuthHandler(s.authService)
	s.systemHandler = handler.NewSystemHandler(s.checker, map[string]*circuitbreaker.CircuitBreaker{
		"backend": guarded.Breaker(),
	})

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Builds the backend and notifier from config unless supplied, with a
// non-critical health probe for each real upstream
func (s *Server) upstreams(opts Options) (backend.Completer, delivery.Notifier, []healthcheck.Probe, error) {
	var probes []healthcheck.Probe

	upstream := opts.Backend
	if upstream == nil {
		if s.config.Backend.APIKey == "" {
			s.logger.Warn("no backend API key configured, using stub completions")
			upstream = backend.StubCompleter{}
		} else {
			pool, err := s.openAIPool()
			if err != nil {
				return nil, nil, nil, err
			}
			upstream = pool
		}
	}
	if p, ok := upstream.(pinger); ok {
		probes = append(probes, healthcheck.Probe{Name: "backend", Check: p.Ping})
	}

	notifier := opts.Notifier
	if notifier == nil {
		if s.config.Delivery.BotToken == "" {
			s.logger.Warn("no bot token configured, replies are only logged")
			notifier = delivery.NewLogNotifier(s.logger)
		} else {
			notifier = delivery.NewDiscordNotifier(s.config.Delivery.APIBase, s.config.Delivery.BotToken, s.config.Delivery.Timeout.Duration)
		}
	}
	if p, ok := notifier.(pinger); ok {
		probes = append(probes, healthcheck.Probe{Name: "delivery", Check: p.Ping})
	}

	return upstream, notifier, probes, nil
}

// One OpenAI client per configured base URL behind a balancing pool
func (s *Server) openAIPool() (*backend.Pool, error) {
	strategy, err := loadbalancer.NewStrategy(s.config.Backend.Balancing)
	if err != nil {
		return nil, err
	}

	urls := append([]string{s.config.Backend.BaseURL}, s.config.Backend.FallbackURLs...)
	clients := make(map[string]backend.Completer, len(urls))
	for _, u := range urls {
		clients[upstreamName(u)] = backend.NewOpenAIClient(backend.OpenAIConfig{
			APIKey:     s.config.Backend.APIKey,
			BaseURL:    u,
			Model:      s.config.Backend.Model,
			MaxRetries: s.config.Backend.MaxRetries,
			Timeout:    s.config.Backend.Timeout.Duration,
		})
	}
	return backend.NewPool(clients, strategy, s.logger)
}

func upstreamName(baseURL string) string {
	if baseURL == "" {
		return "default"
	}
	return baseURL
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logger(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.systemHandler.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpRule := ratelimit.Rule{Limit: s.config.RateLimit.HTTPPerMinute, Window: time.Minute}
	throttle := middleware.RateLimit(s.httpLimiter, httpRule, s.logger)

	ingress := s.router.Group("/v1")
	ingress.Use(middleware.APIKeyValidator(s.apiKeyService), throttle)
	{
		ingress.POST("/requests", s.admissionHandler.Submit)
	}

	auth := s.router.Group("/auth")
	auth.Use(throttle)
	{
		auth.POST("/register", s.authHandler.Bootstrap)
		auth.POST("/login", s.authHandler.Login)
		auth.GET("/me", middleware.RequireAuth(s.authService), s.authHandler.Me)
	}

	// Read access for every reviewer, writes for admins only
	api := s.router.Group("/api")
	api.Use(middleware.RequireAuth(s.authService), throttle)
	{
		api.GET("/communities", s.communityHandler.List)
		api.GET("/communities/:id/config", s.communityHandler.GetConfig)
		api.GET("/communities/:id/operators", s.communityHandler.ListOperators)
		api.GET("/communities/:id/usage", s.communityHandler.Usage)
		api.GET("/communities/:id/pending", s.approvalHandler.ListPending)
		api.GET("/communities/:id/history", s.analyticsHandler.GetHistory)
		api.GET("/communities/:id/rejections", s.analyticsHandler.GetRejections)
		api.GET("/communities/:id/analytics", s.analyticsHandler.GetSummary)
		api.GET("/communities/:id/analytics/hourly", s.analyticsHandler.GetTimeSeries)
		api.GET("/requests/:id", s.approvalHandler.Get)
		api.GET("/messages", s.messagesHandler.Get)
	}

	write := api.Group("")
	write.Use(middleware.RequireAdmin())
	{
		write.POST("/approvals/:id", s.approvalHandler.Decide)
		write.PUT("/communities/:id/config", s.communityHandler.UpdateConfig)
		write.POST("/communities/:id/operators", s.communityHandler.AddOperator)
		write.DELETE("/communities/:id/operators/:user", s.communityHandler.RemoveOperator)
		write.PUT("/messages", s.messagesHandler.Update)
		write.GET("/reviewers", s.authHandler.ListReviewers)
		write.POST("/reviewers", s.authHandler.Register)
	}

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService), middleware.RequireAdmin())
	{
		admin.POST("/keys", s.apiKeyHandler.Create)
		admin.GET("/keys", s.apiKeyHandler.List)
		admin.GET("/keys/:id", s.apiKeyHandler.Get)
		admin.POST("/keys/:id/revoke", s.apiKeyHandler.Revoke)
		admin.DELETE("/keys/:id", s.apiKeyHandler.Delete)
		admin.GET("/circuit-breakers", s.systemHandler.CircuitBreakerStatus)
		admin.POST("/circuit-breakers/:name/reset", s.systemHandler.ResetCircuitBreaker)
	}
}

// Start launches background workers; Run calls it
func (s *Server) Start() {
	s.auditWriter.Start()
	s.checker.Start()
}

func (s *Server) Run(addr string) error {
	s.Start()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.Backend.Timeout.Duration + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting admission service", "addr", addr, "environment", s.config.Server.Environment)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then flushes the audit buffer
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	if s.httpServer != nil {
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	s.checker.Stop()
	errs = append(errs, s.auditWriter.Stop(ctx))
	return errors.Join(errs...)
}

// Deletes audit entries past the configured retention
func (s *Server) CleanupAudit(ctx context.Context) (int64, error) {
	return s.analyticsService.CleanupAudit(ctx, s.config.Audit.RetentionDays)
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
