package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/config"
	"github.com/arklim/ratings-auth/internal/infra/database"
	kafkainfra "github.com/arklim/ratings-auth/internal/infra/kafka"
	"github.com/arklim/ratings-auth/internal/infra/logger"
	redisinfra "github.com/arklim/ratings-auth/internal/infra/redis"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
	postgresrepo "github.com/arklim/ratings-auth/internal/repository/postgres"
	redisrepo "github.com/arklim/ratings-auth/internal/repository/redis"
	transportgrpc "github.com/arklim/ratings-auth/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/ratings-auth/internal/transport/grpc/interceptors"
	"github.com/arklim/ratings-auth/internal/transport/http/handlers"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/transport/http/routes"
)

type Application struct {
	cfg        *config.AppConfig
	handler    http.Handler
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	ipLimiter  *middleware.IPLimiter
	grpcServer *grpc.Server
	grpcAddr   string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	authMetrics, err := telemetry.NewAuthMetrics(telemetry.AuthMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return nil, fmt.Errorf("init grpc metrics: %w", err)
	}

	if cfg.Postgres.MigrateOnStart {
		if err := database.RunMigrations(cfg.Postgres.URL(), log); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	a := &Application{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		tracer:   tracer,
		grpcAddr: fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}

	tokens, err := security.NewSessionTokenService(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("init session tokens: %w", err)
	}

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Password.Argon2.Memory,
		Iterations:  cfg.Password.Argon2.Iterations,
		Parallelism: cfg.Password.Argon2.Parallelism,
		SaltLength:  cfg.Password.Argon2.SaltLength,
		KeyLength:   cfg.Password.Argon2.KeyLength,
	})
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = 15 * time.Minute
	}
	codeTTL := cfg.EmailCode.TTL
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	attempts := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: redisClient.Key("rate-limit"),
		TTL:       2 * max(rateLimitWindow, codeTTL),
	})

	var (
		events port.EventPublisher
		sender port.CodeSender
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		} else {
			a.producer = producer
			events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			sender = kafkainfra.NewCodeSender(events)
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
	}
	if events == nil {
		events = kafkainfra.NewStubPublisher(log)
		sender = handlers.NewLoggingNotificationDispatcher(log, cfg.App.IsDevelopment())
	}

	services := buildServices(serviceDeps{
		cfg: cfg,
		store: storage{
			principals: repos.Principals,
			codes:      repos.VerificationCodes,
			audit:      repos.LoginAudit,
		},
		attempts: attempts,
		events:   events,
		sender:   sender,
		tokens:   tokens,
		hasher:   hasher,
		metrics:  authMetrics,
		logger:   log,
	})

	a.ipLimiter = middleware.NewIPLimiter(middleware.IPLimiterConfig{
		Requests:     cfg.RateLimit.GlobalRequests,
		Window:       cfg.RateLimit.GlobalWindow,
		IdleEviction: cfg.RateLimit.GlobalIdleEviction,
	}, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Services:    services,
		Tokens:      tokens,
		AuthMetrics: authMetrics,
		HTTPMetrics: httpMetrics,
		RateLimiter: middleware.NewRateLimiter(attempts, log),
		IPLimiter:   a.ipLimiter,
		Database:    pool,
		Cache:       redisClient,
	})
	a.handler = otelhttp.NewHandler(engine, cfg.App.Name,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/healthz") &&
				!strings.HasPrefix(r.URL.Path, "/readyz") &&
				r.URL.Path != "/metrics"
		}),
	)

	a.grpcServer, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Tokens:      tokens,
		Logger:      log,
		Metrics:     grpcMetrics,
		AuthMetrics: authMetrics,
	})
	if err != nil {
		a.ipLimiter.Stop()
		a.closeStores()
		return nil, fmt.Errorf("init grpc server: %w", err)
	}

	return a, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.closeStores()
	defer a.ipLimiter.Stop()
	defer func() {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil && a.grpcAddr != "" {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("gRPC server panicked", zap.Any("panic", r))
					grpcErrCh <- fmt.Errorf("grpc server panicked: %v", r)
				}
			}()
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
		defer a.grpcServer.GracefulStop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting ratings auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-grpcErrCh:
		return err
	}
}

func (a *Application) closeStores() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", zap.Error(err))
		}
		a.producer = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
