package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"

	idbroker "gitlab.com/ucmsv2/idbroker"
	"gitlab.com/ucmsv2/idbroker/internal/adapters/repos/postgres"
	redisrepo "gitlab.com/ucmsv2/idbroker/internal/adapters/repos/redis"
	"gitlab.com/ucmsv2/idbroker/internal/adapters/services/idtoken"
	mailsvc "gitlab.com/ucmsv2/idbroker/internal/adapters/services/mail"
	"gitlab.com/ucmsv2/idbroker/internal/application/audit"
	loginapp "gitlab.com/ucmsv2/idbroker/internal/application/login"
	"gitlab.com/ucmsv2/idbroker/internal/application/login/cmd"
	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	httpport "gitlab.com/ucmsv2/idbroker/internal/ports/http"
	watermillport "gitlab.com/ucmsv2/idbroker/internal/ports/watermill"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/pkg/httpx"
	"gitlab.com/ucmsv2/idbroker/pkg/logging"
	pgpkg "gitlab.com/ucmsv2/idbroker/pkg/postgres"
	"gitlab.com/ucmsv2/idbroker/pkg/redisx"
	"gitlab.com/ucmsv2/idbroker/pkg/watermillx"
)

const (
	devSessionIDKey = "dev-session-id-key-change-me"
	devJWTSecret    = "dev-jwt-secret-change-me"
)

// Config holds all configuration for the application
type Config struct {
	Mode    env.Mode
	Port    string
	BaseURL string

	Redis redisx.Config
	PgDSN string

	SessionTTL  time.Duration
	CodeLength  int
	MaxAttempts int
	SingleUse   bool

	SessionIDKey string
	JWTSecret    string
	JWTIssuer    string
	IDTokenTTL   time.Duration

	Sender mail.Sender
	SMTP   mailsvc.SMTPConfig

	RequestTimeout time.Duration
	OTLPEndpoint   string

	InitialClient *client.NewArgs
}

func main() {
	ctx := context.Background()

	config, err := loadConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	env.SetMode(config.Mode)
	logging.Setup(config.Mode)

	shutdownOTel, err := setupOTelSDK(ctx, config)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to set up OpenTelemetry SDK", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			slog.Error("Failed to shutdown OpenTelemetry SDK", "error", err)
		}
	}()

	slog.InfoContext(ctx, "Starting identity broker",
		"mode", config.Mode,
		"port", config.Port,
		"base_url", config.BaseURL,
		"single_use", config.SingleUse,
	)

	redisClient, err := redisx.NewClient(ctx, config.Redis, config.Mode)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	sessions := redisrepo.NewSessionRepo(redisClient, nil, nil)

	var clients cmd.ClientGetter
	if config.PgDSN != "" {
		pool, err := setupDatabase(ctx, config)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to setup database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		clientRepo := postgres.NewClientRepo(pool, nil, nil)
		if err := seedInitialClient(ctx, clientRepo, config.InitialClient); err != nil {
			slog.ErrorContext(ctx, "Failed to seed initial client", "error", err)
			os.Exit(1)
		}
		clients = clientRepo
	} else {
		slog.InfoContext(ctx, "PG_DSN is empty, relying party registry disabled")
	}

	mailer, err := setupMailSender(config)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to setup mail sender", "error", err)
		os.Exit(1)
	}

	tokens, err := idtoken.NewIssuer(idtoken.Args{
		Secret: []byte(config.JWTSecret),
		Issuer: config.JWTIssuer,
		TTL:    config.IDTokenTTL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create token issuer", "error", err)
		os.Exit(1)
	}

	wmlogger := watermillx.NewSlogAdapter(slog.Default(), config.Mode.SlogLevel())
	pubsub := watermillx.NewGoChannel(wmlogger)
	eventRouter, publisher, err := setupEventProcessing(ctx, pubsub, wmlogger)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to setup event processing", "error", err)
		os.Exit(1)
	}

	loginApp := loginapp.NewApp(loginapp.Args{
		Mode:        config.Mode,
		Repo:        sessions,
		Mailer:      mailer,
		Tokens:      tokens,
		Clients:     clients,
		Events:      publisher,
		IDKey:       []byte(config.SessionIDKey),
		BaseURL:     config.BaseURL,
		SessionTTL:  config.SessionTTL,
		CodeLength:  config.CodeLength,
		MaxAttempts: config.MaxAttempts,
		SingleUse:   config.SingleUse,
		Sender:      config.Sender,
	})

	routerCtx, stopRouter := context.WithCancel(ctx)
	defer stopRouter()
	go func() {
		if err := eventRouter.Run(routerCtx); err != nil {
			slog.ErrorContext(ctx, "Event router stopped", "error", err)
		}
	}()
	<-eventRouter.Running()

	errhandler, err := httpx.NewErrorHandler(idbroker.Locales)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load locales", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr: ":" + config.Port,
		Handler: httpport.NewPort(httpport.Args{
			LoginApp:       loginApp,
			Mode:           config.Mode,
			Errhandler:     errhandler,
			Health:         sessions,
			RequestTimeout: config.RequestTimeout,
		}).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "Starting HTTP server", "port", config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "Server forced to shutdown", "error", err)
	}
	if err := eventRouter.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "Failed to close event router", "error", err)
	}
	if err := pubsub.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "Failed to close event bus", "error", err)
	}

	slog.InfoContext(ctx, "Server exited")
}

func loadConfig() (*Config, error) {
	mode := env.Mode(env.String("MODE", string(env.Dev)))
	if !mode.Validate() {
		return nil, fmt.Errorf("invalid MODE %q", mode)
	}

	baseURL := strings.TrimRight(env.String("BASE_URL", "http://localhost:8080"), "/")

	config := &Config{
		Mode:    mode,
		Port:    env.String("PORT", "8080"),
		BaseURL: baseURL,
		Redis: redisx.Config{
			Addr:     env.String("REDIS_ADDR", "localhost:6379"),
			Password: env.String("REDIS_PASSWORD", ""),
			DB:       env.Int("REDIS_DB", 0),
		},
		PgDSN:        env.String("PG_DSN", ""),
		SessionTTL:   env.Duration("SESSION_TTL", cmd.DefaultSessionTTL),
		CodeLength:   env.Int("CODE_LENGTH", loginsession.DefaultCodeLength),
		MaxAttempts:  env.Int("MAX_CODE_ATTEMPTS", loginsession.DefaultMaxAttempts),
		SingleUse:    env.Bool("SINGLE_USE", true),
		SessionIDKey: env.String("SESSION_ID_KEY", ""),
		JWTSecret:    env.String("JWT_SECRET", ""),
		JWTIssuer:    env.String("JWT_ISSUER", baseURL),
		IDTokenTTL:   env.Duration("ID_TOKEN_TTL", idtoken.DefaultTTL),
		Sender: mail.Sender{
			Name:    env.String("SENDER_NAME", "Identity Broker"),
			Address: env.String("SENDER_ADDRESS", "no-reply@localhost"),
		},
		SMTP: mailsvc.SMTPConfig{
			Host:     env.String("SMTP_HOST", ""),
			Port:     env.Int("SMTP_PORT", mailsvc.DefaultSMTPPort),
			Username: env.String("SMTP_USERNAME", ""),
			Password: env.String("SMTP_PASSWORD", ""),
		},
		RequestTimeout: env.Duration("REQUEST_TIMEOUT", httpport.DefaultRequestTimeout),
		OTLPEndpoint:   env.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if config.SessionIDKey == "" || config.JWTSecret == "" {
		if mode == env.Prod {
			return nil, errors.New("SESSION_ID_KEY and JWT_SECRET are required in prod")
		}
		if config.SessionIDKey == "" {
			config.SessionIDKey = devSessionIDKey
		}
		if config.JWTSecret == "" {
			config.JWTSecret = devJWTSecret
		}
		slog.Warn("using development secrets", "mode", mode)
	}

	if err := loginsession.ValidateKey([]byte(config.SessionIDKey)); err != nil {
		return nil, fmt.Errorf("invalid SESSION_ID_KEY (%d bytes): %w", len(config.SessionIDKey), err)
	}

	if id := env.String("INITIAL_CLIENT_ID", ""); id != "" {
		config.InitialClient = &client.NewArgs{
			ID:           id,
			Name:         env.String("INITIAL_CLIENT_NAME", id),
			RedirectURIs: splitList(env.String("INITIAL_CLIENT_REDIRECT_URIS", "")),
		}
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setupDatabase(ctx context.Context, config *Config) (*pgxpool.Pool, error) {
	pool, err := pgpkg.NewPgxPool(ctx, config.PgDSN, config.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	migrateDSN := strings.Replace(config.PgDSN, "postgres://", "pgx://", 1)
	if err := pgpkg.Migrate(migrateDSN, idbroker.Migrations, "migrations"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return pool, nil
}

func seedInitialClient(ctx context.Context, repo *postgres.ClientRepo, args *client.NewArgs) error {
	if args == nil {
		return nil
	}

	c, err := client.New(*args)
	if err != nil {
		return err
	}
	err = repo.SaveClient(ctx, c)
	if errors.Is(err, postgres.ErrClientExists) {
		err = repo.UpdateClient(ctx, c)
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Initial client registered", "client_id", c.ID(), "redirect_uris", len(c.RedirectURIs()))
	return nil
}

func setupMailSender(config *Config) (cmd.MailSender, error) {
	if config.SMTP.Host == "" {
		slog.Info("SMTP_HOST is empty, login mails are written to the log")
		return mailsvc.NewLogSender(config.Mode, nil), nil
	}

	sender, err := mailsvc.NewSMTPSender(config.SMTP, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp sender: %w", err)
	}
	return sender, nil
}

func setupEventProcessing(
	ctx context.Context,
	pubsub *gochannel.GoChannel,
	wmlogger watermill.LoggerAdapter,
) (*message.Router, *watermillx.Publisher, error) {
	router, err := message.NewRouter(message.RouterConfig{}, wmlogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watermill router: %w", err)
	}

	auditApp, err := audit.NewApp(audit.Args{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create audit app: %w", err)
	}

	wmport, err := watermillport.NewPort(router, pubsub, wmlogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watermill port: %w", err)
	}
	if err := wmport.Run(ctx, watermillport.AppEventHandlers{Audit: auditApp}); err != nil {
		return nil, nil, fmt.Errorf("failed to register event handlers: %w", err)
	}

	publisher, err := watermillx.NewPublisher(pubsub, wmlogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	slog.InfoContext(ctx, "Event processing setup completed")
	return router, publisher, nil
}

// setupOTelSDK bootstraps the OpenTelemetry pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func setupOTelSDK(ctx context.Context, config *Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// shutdown calls cleanup functions registered via shutdownFuncs.
	// The errors from the calls are joined.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	otel.SetTextMapPropagator(newPropagator())

	tracerProvider, err := newTracerProvider(ctx, config)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider(ctx, config)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := newLoggerProvider(ctx, config)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Without an OTLP endpoint spans are still created for log correlation but not exported.
func newTracerProvider(ctx context.Context, config *Config) (*trace.TracerProvider, error) {
	if config.OTLPEndpoint == "" {
		return trace.NewTracerProvider(), nil
	}

	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(traceExporter, trace.WithBatchTimeout(5*time.Second)),
	), nil
}

func newMeterProvider(ctx context.Context, config *Config) (*metric.MeterProvider, error) {
	if config.OTLPEndpoint == "" {
		return metric.NewMeterProvider(), nil
	}

	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(time.Minute))),
	), nil
}

func newLoggerProvider(ctx context.Context, config *Config) (*log.LoggerProvider, error) {
	var (
		logExporter log.Exporter
		err         error
	)
	if config.OTLPEndpoint != "" {
		logExporter, err = otlploggrpc.New(ctx)
	} else {
		logExporter, err = stdoutlog.New()
	}
	if err != nil {
		return nil, err
	}

	return log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(logExporter)),
	), nil
}
