package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handlerhttp "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

// App is the storefront application. It owns every long-lived resource and
// tears them down in reverse order on shutdown.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	rdb            *redis.Client
	kafka          *pkgkafka.Producer
	events         *event.Producer
	sessions       *session.Manager
	tracerShutdown tracing.ShutdownFunc
	health         *health.Handler

	httpServer *http.Server
}

// NewApp creates a new App, wiring together all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger, health: health.NewHandler()}

	// Tracing
	tcfg := tracing.DefaultConfig("storefront")
	tcfg.Environment = cfg.Environment
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.SampleRate = cfg.OTELSampleRate
	tcfg.Enabled = cfg.OTELEnabled
	shutdown, err := tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	// Backend client behind a circuit breaker
	breaker := newBreaker(cfg, logger)
	client, err := backend.New(cfg.BackendURL, breaker, logger)
	if err != nil {
		return nil, a.abort(fmt.Errorf("create backend client: %w", err))
	}
	a.health.RegisterCritical("backend", client.Ping)
	a.health.RegisterNonCritical("backend_breaker", breaker.Check)

	// Token revocations
	var revocations session.RevocationStore = session.NewMemoryRevocations()
	if cfg.RedisEnabled {
		rcfg := database.DefaultRedisConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPass
		rcfg.DB = cfg.RedisDB
		rdb, err := database.NewRedisClient(ctx, rcfg, logger)
		if err != nil {
			return nil, a.abort(fmt.Errorf("connect redis: %w", err))
		}
		a.rdb = rdb
		revocations = session.NewRedisRevocations(rdb)
		a.health.RegisterNonCritical("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		logger.Info("session revocations stored in redis", slog.String("addr", cfg.RedisAddr))
	} else {
		logger.Warn("redis disabled, session revocations are kept in memory")
	}

	// Activity events
	opts := session.Options{
		InboxSize:     cfg.InboxSize,
		TaxRate:       cfg.TaxRateDecimal(),
		Currency:      cfg.CurrencyUnit(),
		FeaturedCount: cfg.FeaturedCount,
	}
	if cfg.KafkaEnabled() {
		a.kafka = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.events = event.NewProducer(a.kafka, logger)
		opts.Activity = a.events
		opts.Orders = a.events
		a.health.RegisterNonCritical("kafka", a.kafka.Ping)
		logger.Info("publishing storefront events", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Sessions
	factory := session.NewFactory(client, opts, logger)
	tokens := session.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)
	a.sessions = session.NewManager(tokens, revocations, factory, session.ManagerConfig{
		IdleTimeout:   cfg.SessionIdleTimeout,
		SweepInterval: cfg.SweepInterval,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

func newBreaker(cfg *config.Config, logger *slog.Logger) *httpclient.CircuitBreakerClient {
	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.BackendTimeout
	hcfg.MaxConnsPerHost = cfg.BackendMaxConnsPerHost

	bcfg := httpclient.DefaultCircuitBreakerConfig("backend")
	bcfg.MinRequests = cfg.BreakerFailures
	bcfg.Timeout = cfg.BreakerOpenTimeout

	return httpclient.NewCircuitBreakerClient(httpclient.New(hcfg), bcfg, logger)
}

// Handler builds the HTTP handler. ctx bounds the rate limiter's background
// eviction.
func (a *App) Handler(ctx context.Context) http.Handler {
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = a.cfg.CORSOrigins
	cors.ExposedHeaders = append(cors.ExposedHeaders, handlerhttp.SessionTokenHeader)

	return handlerhttp.NewRouter(ctx, handlerhttp.RouterConfig{
		Sessions: a.sessions,
		Health:   a.health,
		Cookie: handlerhttp.CookieConfig{
			Name:   a.cfg.CookieName,
			Secure: a.cfg.CookieSecure,
			MaxAge: a.cfg.SessionTTL,
		},
		CORS:          cors,
		CatalogMaxAge: a.cfg.CatalogMaxAge,
		RateLimit: middleware.RateLimitConfig{
			RPS:     a.cfg.RateLimitRPS,
			Burst:   a.cfg.RateLimitBurst,
			IdleTTL: 3 * time.Minute,
		},
	}, a.logger)
}

// Run starts the session sweeper and the HTTP server. It blocks until ctx
// is cancelled or the server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.httpServer.Handler = a.Handler(runCtx)

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		a.sessions.Run(runCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			runErr = err
		}
	}

	cancel()
	<-sweeperDone
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops the application. Open sessions are closed
// after the HTTP server drains so no request sees a closed session, and
// queued events are flushed before the Kafka writer is closed.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}

	a.sessions.Close(ctx)

	errs = append(errs, a.closeInfra(ctx))
	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// abort releases what NewApp acquired before err.
func (a *App) abort(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := a.closeInfra(ctx); cerr != nil {
		a.logger.Warn("cleanup after failed start", slog.String("error", cerr.Error()))
	}
	return err
}

func (a *App) closeInfra(ctx context.Context) error {
	var errs []error

	if a.events != nil {
		if err := a.events.Close(ctx); err != nil {
			a.logger.Error("event producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}

	return errors.Join(errs...)
}
