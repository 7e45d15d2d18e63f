// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/garyellow/messenger-nlu-bot/internal/bot"
	"github.com/garyellow/messenger-nlu-bot/internal/buildinfo"
	"github.com/garyellow/messenger-nlu-bot/internal/config"
	"github.com/garyellow/messenger-nlu-bot/internal/logger"
	"github.com/garyellow/messenger-nlu-bot/internal/messenger"
	"github.com/garyellow/messenger-nlu-bot/internal/metrics"
	"github.com/garyellow/messenger-nlu-bot/internal/nlu"
	"github.com/garyellow/messenger-nlu-bot/internal/sentry"
	"github.com/garyellow/messenger-nlu-bot/internal/session"
	"github.com/garyellow/messenger-nlu-bot/internal/storage"
	"github.com/garyellow/messenger-nlu-bot/internal/webhook"
)

// sessionBackend is what both the in-memory and SQLite stores provide.
type sessionBackend interface {
	session.Store
	session.Evictor
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	store          sessionBackend
	db             *storage.DB // nil unless SESSION_BACKEND=sqlite
	janitor        *session.Janitor
	client         *messenger.Client
	engine         *nlu.ActionEngine // nil when no NLU provider is configured
	turns          *bot.TurnDriver
	router         *bot.Router
	webhookHandler *webhook.Handler
	server         *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(logger.Options{
		Level:               cfg.LogLevel,
		Writer:              os.Stdout,
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
		File: logger.File{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogFileMaxMB,
			MaxBackups: cfg.LogFileBackups,
		},
	})

	log = log.WithField("service", "messenger-nlu-bot")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog calls (nlu factory, planners) go through the same handler chain.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Release()).Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Release(),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	if sentry.IsEnabled() {
		log.WithField("host", cfg.SentryHost).Info("Error tracking enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	store, db, err := openSessionStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	log.WithField("backend", cfg.SessionBackend).
		WithField("idle_ttl", cfg.SessionIdleTTL).
		Info("Session store ready")

	client := messenger.NewClient(messenger.ClientConfig{
		AccessToken:      cfg.PageAccessToken,
		BaseURL:          cfg.GraphAPIBaseURL,
		Version:          cfg.GraphAPIVersion,
		Timeout:          cfg.Bot.SendTimeout,
		RPS:              cfg.Bot.SendRPS,
		QuickReplyPrefix: cfg.Bot.QuickReplyPrefix,
		Metrics:          m,
	})

	engine := nlu.NewEngine(ctx, buildNLUConfig(cfg), bot.NewSessionActions(store, client), m)

	// A nil *ActionEngine stored in the interface would not compare equal to nil.
	var nluEngine nlu.Engine
	if engine != nil {
		nluEngine = engine
	}

	turns := bot.NewTurnDriver(bot.TurnConfig{
		Store:              store,
		Engine:             nluEngine,
		Logger:             log,
		Metrics:            m,
		Timeout:            cfg.Bot.NLUTimeout,
		MaxConcurrent:      cfg.Bot.MaxConcurrentTurns,
		UserTurnsPerMinute: cfg.Bot.UserTurnsPerMinute,
	})

	router := bot.NewRouter(bot.RouterConfig{
		Sender:  client,
		Turns:   turns,
		Logger:  log,
		Metrics: m,
	})

	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		AppSecret:   cfg.AppSecret,
		VerifyToken: cfg.VerifyToken,
		Events:      router,
		Logger:      log,
		Metrics:     m,
	}, webhook.WithBotConfig(cfg.Bot))

	app := &Application{
		cfg:            cfg,
		logger:         log,
		metrics:        m,
		registry:       registry,
		store:          store,
		db:             db,
		janitor:        session.NewJanitor(store, cfg.SessionIdleTTL, cfg.SessionCleanupInterval, m),
		client:         client,
		engine:         engine,
		turns:          turns,
		router:         router,
		webhookHandler: webhookHandler,
	}

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.routes(),
		ReadHeaderTimeout: config.WebhookHTTPRead,
		ReadTimeout:       config.WebhookHTTPRead,
		WriteTimeout:      config.WebhookHTTPWrite,
		IdleTimeout:       config.WebhookHTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// openSessionStore returns the configured backend. db is nil for the memory backend.
func openSessionStore(ctx context.Context, cfg *config.Config) (sessionBackend, *storage.DB, error) {
	if cfg.SessionBackend != config.SessionBackendSQLite {
		return session.NewMemoryStore(session.WithTombstoneTTL(cfg.SessionTombstoneTTL)), nil, nil
	}

	db, err := storage.New(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewSessionStore(db, storage.WithSessionTombstoneTTL(cfg.SessionTombstoneTTL)), db, nil
}

// buildNLUConfig creates the engine config from the application config.
func buildNLUConfig(cfg *config.Config) nlu.Config {
	nluCfg := nlu.Config{
		GeminiAPIKey:  cfg.NLU.GeminiAPIKey,
		GeminiModel:   cfg.NLU.GeminiModel,
		GroqAPIKey:    cfg.NLU.GroqAPIKey,
		GroqModel:     cfg.NLU.GroqModel,
		OpenAIAPIKey:  cfg.NLU.OpenAIAPIKey,
		OpenAIBaseURL: cfg.NLU.OpenAIBaseURL,
		OpenAIModel:   cfg.NLU.OpenAIModel,
		Retry:         nlu.RetryConfig{MaxAttempts: cfg.NLU.MaxAttempts},
	}
	if nluCfg.GeminiModel == "" {
		nluCfg.GeminiModel = nlu.DefaultGeminiModel
	}
	if nluCfg.GroqModel == "" {
		nluCfg.GroqModel = nlu.DefaultGroqModel
	}

	for _, p := range cfg.NLU.Providers {
		switch p {
		case "gemini":
			nluCfg.Providers = append(nluCfg.Providers, nlu.ProviderGemini)
		case "groq":
			nluCfg.Providers = append(nluCfg.Providers, nlu.ProviderGroq)
		case "openai":
			nluCfg.Providers = append(nluCfg.Providers, nlu.ProviderOpenAI)
		default:
			slog.Warn("ignoring unknown provider", "name", p)
		}
	}
	return nluCfg
}

func (a *Application) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if sentry.IsEnabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(securityHeadersMiddleware())
	r.Use(loggingMiddleware(a.logger))

	r.GET("/livez", a.livenessCheck)
	r.HEAD("/livez", a.livenessCheck)
	r.GET("/readyz", a.readinessCheck)
	r.HEAD("/readyz", a.readinessCheck)
	r.GET("/webhook", a.webhookHandler.Verify)
	r.POST("/webhook", a.webhookHandler.Handle)
	r.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	return r
}

// Router exposes the dispatch router so callers can register keywords,
// listeners and observers before Run.
func (a *Application) Router() *bot.Router {
	return a.router
}

// Handler returns the HTTP handler serving all routes.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// sessionStats is implemented by backends that track tombstones in memory.
type sessionStats interface {
	Stats() map[string]int
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if a.db != nil {
		if err := a.db.Ping(ctx); err != nil {
			a.logger.WithError(err).Warn("Readiness check failed: session database unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "session database unavailable",
			})
			return
		}
	}

	sessions, err := a.store.Count(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: session store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "session store unavailable",
		})
		return
	}

	info := gin.H{"backend": a.cfg.SessionBackend, "active": sessions}
	if s, ok := a.store.(sessionStats); ok {
		info["deleted"] = s.Stats()["deleted"]
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"sessions": info,
		"features": gin.H{"nlu": a.turns.Enabled()},
	})
}

// Run starts the HTTP server and background jobs, and blocks until
// SIGINT/SIGTERM, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case err := <-serverErr:
		a.logger.WithError(err).Error("HTTP server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Start runs startup calls against the Graph API and starts background jobs.
// A failed domain whitelist call is logged, not fatal.
func (a *Application) Start(ctx context.Context) error {
	if len(a.cfg.WhitelistedDomains) > 0 {
		wlCtx, cancel := context.WithTimeout(ctx, config.SendRequest)
		err := a.client.SetWhitelistDomain(wlCtx, a.cfg.WhitelistedDomains)
		cancel()
		if err != nil {
			a.logger.WithError(err).Warn("Failed to whitelist domains")
		} else {
			a.logger.WithField("domains", a.cfg.WhitelistedDomains).Info("Domains whitelisted")
		}
	}

	// The janitor outlives ctx; Shutdown stops it.
	a.janitor.Start(context.WithoutCancel(ctx))
	return nil
}

// Shutdown stops the application in dependency order:
//  1. stop accepting HTTP requests
//  2. drain webhook batches (they may still start turns)
//  3. drain NLU turns (they still use the store and the Graph API)
//  4. stop the janitor and close the engine
//  5. close the session database
//  6. flush error tracking and logs
//
// It is safe to call more than once; later calls return the first result.
func (a *Application) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown(ctx)
	})
	return a.shutdownErr
}

func (a *Application) shutdown(ctx context.Context) error {
	var errs []error

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	a.logger.Info("Waiting for webhook events to complete...")
	if err := a.webhookHandler.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
		errs = append(errs, fmt.Errorf("webhook: %w", err))
	}

	a.logger.Info("Waiting for NLU turns to complete...")
	if err := a.turns.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Turn driver shutdown timeout")
		errs = append(errs, fmt.Errorf("turns: %w", err))
	}

	a.logger.Info("Closing resources...")

	var g errgroup.Group
	g.Go(func() error {
		a.janitor.Stop()
		return nil
	})
	if a.engine != nil {
		g.Go(func() error {
			if err := a.engine.Close(); err != nil {
				a.logger.WithError(err).WithField("component", "nlu_engine").Error("Component close error")
				return fmt.Errorf("nlu engine: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "database").Error("Component close error")
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}

	if sentry.IsEnabled() {
		flushTimeout := 2 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			flushTimeout = max(min(time.Until(deadline), flushTimeout), 0)
		}
		if !sentry.Flush(flushTimeout) {
			a.logger.Warn("Error tracking flush timed out")
		}
	}

	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("logger: %w", err))
	}

	return errors.Join(errs...)
}
