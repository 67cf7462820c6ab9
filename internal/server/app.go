// Package server wires the account service together: storage, mail,
// services, the HTTP API and the operations gRPC endpoint, plus graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artelie/backend/internal/cryptox"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/auth"
	"github.com/artelie/backend/internal/server/config"
	"github.com/artelie/backend/internal/server/health"
	"github.com/artelie/backend/internal/server/httpapi"
	"github.com/artelie/backend/internal/server/mail"
	"github.com/artelie/backend/internal/server/media"
	"github.com/artelie/backend/internal/server/metrics"
	"github.com/artelie/backend/internal/server/password"
	"github.com/artelie/backend/internal/server/ratelimit"
	"github.com/artelie/backend/internal/server/repositories/repomanager"
	"github.com/artelie/backend/internal/server/services"
	"github.com/artelie/backend/internal/server/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	gs "github.com/artelie/backend/internal/server/grpc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	readinessInterval = 5 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Core holds the storage connections and the domain services. It is shared by
// the server and the admin commands.
type Core struct {
	Config       *config.Config
	Logger       logging.Logger
	DB           *sql.DB
	Redis        redis.UniversalClient
	Mail         *mail.Dispatcher
	Accounts     *services.AccountService
	Verification *services.VerificationService
	Tokens       *services.TokenService
}

// NewCore opens the database, applies migrations and builds the services.
func NewCore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Core, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	c := &Core{Config: cfg, Logger: logger, DB: db}

	var opts []repomanager.Option
	if cfg.RevocationBackend == config.RevocationBackendRedis || cfg.RateLimitBackend == config.RateLimitBackendRedis {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	if cfg.RevocationBackend == config.RevocationBackendRedis {
		opts = append(opts, repomanager.WithRedisRevocations(c.Redis, cfg.RedisKeyPrefix))
	}
	rm := repomanager.NewPostgresRepositoryManager(opts...)

	if err := rm.RunMigrations(ctx, db); err != nil {
		c.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	hasher, err := cryptox.NewHasher(cryptox.DefaultParams)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("hasher init error: %w", err)
	}
	renderer, err := mail.NewRenderer()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mail templates error: %w", err)
	}

	var sender mail.Sender = mail.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		logger.Warn(ctx, "smtp_host is empty, emails are logged instead of sent")
	}
	c.Mail = mail.NewDispatcher(sender, logger)
	c.Mail.OnSent(metrics.ObserveMail)

	policy := password.NewPolicy(cfg.PasswordMinLength, cfg.StrictPasswords, cfg.PasswordMinEntropyBits)
	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)

	c.Verification = services.NewVerificationService(db, rm, cfg, c.Mail, renderer, logger)
	c.Accounts = services.NewAccountService(db, rm, hasher, policy, c.Verification, c.Mail, renderer, logger)
	c.Tokens = services.NewTokenService(db, rm, cfg, issuer, hasher, logger)

	return c, nil
}

// Close drains queued mail and releases the connections.
func (c *Core) Close() {
	if c.Mail != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := c.Mail.Wait(ctx); err != nil {
			c.Logger.Warn(ctx, "mail queue not drained", "error", err)
		}
		cancel()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	_ = c.DB.Close()
}

type App struct {
	*Core
	readiness      *health.Manager
	httpServer     *http.Server
	grpcServer     *gs.GRPCServer
	shutdownTraces func(context.Context) error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.New(cfg.Env).With("service", cfg.ServiceName)

	shutdownTraces, err := tracing.Init(ctx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTraces(ctx)
		return nil, err
	}

	presigner, err := media.NewPresigner(ctx, cfg)
	if err != nil {
		core.Close()
		_ = shutdownTraces(ctx)
		return nil, fmt.Errorf("s3 init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	readiness := health.NewManager(false)
	registerLimiter, loginLimiter := newLimiters(cfg, core.Redis)

	handler := httpapi.NewHandler(core.Accounts, core.Verification, core.Tokens, presigner,
		logger, cfg.IsProd(), cfg.RefreshTokenValidityDuration)
	router := httpapi.NewRouter(handler, httpapi.RouterOptions{
		ServiceName:     cfg.ServiceName,
		Logger:          logger,
		Readiness:       readiness,
		Registry:        registry,
		RegisterLimiter: registerLimiter,
		LoginLimiter:    loginLimiter,
	})

	return &App{
		Core:      core,
		readiness: readiness,
		httpServer: &http.Server{
			Addr:              cfg.EndpointAddrHTTP,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpcServer:     gs.NewGRPCServer(cfg.EndpointAddrGRPC, cfg.ServiceName, readiness, logger),
		shutdownTraces: shutdownTraces,
	}, nil
}

func newLimiters(cfg *config.Config, client redis.UniversalClient) (register, login ratelimit.Limiter) {
	if cfg.RateLimitBackend == config.RateLimitBackendRedis {
		return ratelimit.NewRedis(client, cfg.RegisterRateLimit, cfg.RegisterRateWindow, cfg.RedisKeyPrefix),
			ratelimit.NewRedis(client, cfg.LoginRateLimit, cfg.LoginRateWindow, cfg.RedisKeyPrefix)
	}
	return ratelimit.NewMemory(cfg.RegisterRateLimit, cfg.RegisterRateWindow),
		ratelimit.NewMemory(cfg.LoginRateLimit, cfg.LoginRateWindow)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// ping is the readiness check: the database, and Redis when configured.
func (app *App) ping(ctx context.Context) error {
	if err := app.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if app.Redis != nil {
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	lis, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.Logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	app.Logger.Info(ctx, "HTTP server listening", "address", lis.Addr().String())
	if err := serveHTTP(ctx, app.httpServer, lis); err != nil {
		app.Logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

// serveHTTP serves on lis until ctx is done. It returns once Shutdown has
// completed, so no handler is still running when the caller closes the
// database or drains the mail queue.
func serveHTTP(ctx context.Context, srv *http.Server, lis net.Listener) error {
	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-served; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.Logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a signal arrives or a server fails, then shuts down.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.Logger.Info(ctx, "Starting app...", "env", app.Config.Env)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.readiness.Watch(ctx, readinessInterval, app.ping, app.Logger)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Logger.Info(context.Background(), "Shutting down...")
	app.Close()

	traceCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.shutdownTraces(traceCtx); err != nil {
		app.Logger.Warn(traceCtx, "trace flush failed", "error", err)
	}
}
