package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"gitlab.com/ucmsv2/idbroker"
	"gitlab.com/ucmsv2/idbroker/internal/adapters/repos/postgres"
	redisrepo "gitlab.com/ucmsv2/idbroker/internal/adapters/repos/redis"
	"gitlab.com/ucmsv2/idbroker/internal/adapters/services/idtoken"
	"gitlab.com/ucmsv2/idbroker/internal/application/audit"
	loginapp "gitlab.com/ucmsv2/idbroker/internal/application/login"
	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	httpport "gitlab.com/ucmsv2/idbroker/internal/ports/http"
	watermillport "gitlab.com/ucmsv2/idbroker/internal/ports/watermill"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/pkg/httpx"
	"gitlab.com/ucmsv2/idbroker/pkg/watermillx"
	"gitlab.com/ucmsv2/idbroker/tests/integration/fixtures"
	"gitlab.com/ucmsv2/idbroker/tests/mocks"
)

// App is the broker wired as in cmd/api, with only the mail sender replaced.
type App struct {
	HTTPHandler    http.Handler
	MockMailSender *mocks.MockMailSender
	Sessions       *redisrepo.SessionRepo
	Clients        *postgres.ClientRepo
	Tokens         *idtoken.Issuer
	PubSub         *gochannel.GoChannel

	router *message.Router
	cancel context.CancelFunc
}

type AppArgs struct {
	Redis     *redis.Client
	Pool      *pgxpool.Pool
	SingleUse bool
}

func NewApp(args AppArgs) (*App, error) {
	wmlogger := watermillx.NewSlogAdapter(slog.Default(), slog.LevelWarn)
	pubsub := watermillx.NewGoChannel(wmlogger)

	router, err := message.NewRouter(message.RouterConfig{}, wmlogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	auditApp, err := audit.NewApp(audit.Args{})
	if err != nil {
		return nil, err
	}
	wmport, err := watermillport.NewPort(router, pubsub, wmlogger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := wmport.Run(ctx, watermillport.AppEventHandlers{Audit: auditApp}); err != nil {
		cancel()
		return nil, err
	}
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	publisher, err := watermillx.NewPublisher(pubsub, wmlogger)
	if err != nil {
		cancel()
		return nil, err
	}

	tokens, err := idtoken.NewIssuer(idtoken.Args{
		Secret: fixtures.JWTSecret,
		Issuer: fixtures.JWTIssuer,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	errhandler, err := httpx.NewErrorHandler(idbroker.Locales)
	if err != nil {
		cancel()
		return nil, err
	}

	sessions := redisrepo.NewSessionRepo(args.Redis, nil, nil)
	clients := postgres.NewClientRepo(args.Pool, nil, nil)
	mailSender := mocks.NewMockMailSender()

	login := loginapp.NewApp(loginapp.Args{
		Mode:        env.Test,
		Repo:        sessions,
		Mailer:      mailSender,
		Tokens:      tokens,
		Clients:     clients,
		Events:      publisher,
		IDKey:       fixtures.SessionIDKey,
		BaseURL:     fixtures.BaseURL,
		SessionTTL:  fixtures.SessionTTL,
		CodeLength:  fixtures.DefaultCodeLength,
		MaxAttempts: fixtures.MaxAttempts,
		SingleUse:   args.SingleUse,
		Sender:      mail.Sender{Name: fixtures.SenderName, Address: fixtures.SenderAddress},
	})

	port := httpport.NewPort(httpport.Args{
		LoginApp:   login,
		Mode:       env.Test,
		Errhandler: errhandler,
		Health:     sessions,
	})

	return &App{
		HTTPHandler:    port.Handler(),
		MockMailSender: mailSender,
		Sessions:       sessions,
		Clients:        clients,
		Tokens:         tokens,
		PubSub:         pubsub,
		router:         router,
		cancel:         cancel,
	}, nil
}

func (a *App) Close() error {
	a.cancel()
	return errors.Join(a.router.Close(), a.PubSub.Close())
}
