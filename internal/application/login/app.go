package login

import (
	"time"

	"gitlab.com/ucmsv2/idbroker/internal/application/login/cmd"
	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
)

type App struct {
	CMD Command
}

type Command struct {
	Request *cmd.RequestHandler
	Verify  *cmd.VerifyHandler
}

type Args struct {
	Mode    env.Mode
	Repo    cmd.SessionRepo
	Mailer  cmd.MailSender
	Tokens  cmd.TokenIssuer
	Clients cmd.ClientGetter
	Events  cmd.EventPublisher

	IDKey       []byte
	BaseURL     string
	SessionTTL  time.Duration
	CodeLength  int
	MaxAttempts int
	SingleUse   bool
	Sender      mail.Sender
}

func NewApp(args Args) *App {
	return &App{
		CMD: Command{
			Request: cmd.NewRequestHandler(cmd.RequestHandlerArgs{
				Mode:       args.Mode,
				Repo:       args.Repo,
				Mailer:     args.Mailer,
				Clients:    args.Clients,
				Events:     args.Events,
				IDKey:      args.IDKey,
				BaseURL:    args.BaseURL,
				SessionTTL: args.SessionTTL,
				CodeLength: args.CodeLength,
				Sender:     args.Sender,
			}),
			Verify: cmd.NewVerifyHandler(cmd.VerifyHandlerArgs{
				Repo:        args.Repo,
				Tokens:      args.Tokens,
				Events:      args.Events,
				MaxAttempts: args.MaxAttempts,
				SingleUse:   args.SingleUse,
			}),
		},
	}
}
