package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	loginapp "gitlab.com/ucmsv2/idbroker/internal/application/login"
	loginhttp "gitlab.com/ucmsv2/idbroker/internal/ports/http/login"
	"gitlab.com/ucmsv2/idbroker/internal/ports/http/middlewares"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/httpx"
)

const DefaultRequestTimeout = 15 * time.Second

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Port struct {
	login          *loginhttp.HTTP
	errhandler     *httpx.ErrorHandler
	health         Pinger
	requestTimeout time.Duration
}

type Args struct {
	LoginApp       *loginapp.App
	Mode           env.Mode
	Errhandler     *httpx.ErrorHandler
	Health         Pinger
	RequestTimeout time.Duration
}

func NewPort(args Args) *Port {
	if args.RequestTimeout <= 0 {
		args.RequestTimeout = DefaultRequestTimeout
	}

	return &Port{
		login: loginhttp.NewHTTP(loginhttp.Args{
			App:        args.LoginApp,
			Mode:       args.Mode,
			Errhandler: args.Errhandler,
		}),
		errhandler:     args.Errhandler,
		health:         args.Health,
		requestTimeout: args.RequestTimeout,
	}
}

// Handler builds the router with the full middleware stack.
func (p *Port) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.OTel)
	r.Use(middlewares.AccessLog(nil))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(p.requestTimeout))

	return p.Route(r)
}

func (p *Port) Route(r chi.Router) chi.Router {
	if r == nil {
		r = chi.NewRouter()
	}

	p.login.Route(r)
	r.Get("/healthz", p.Healthz)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		p.errhandler.HandleError(w, req, nil, errorx.NewNotFound(), "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		p.errhandler.HandleError(w, req, nil, errorx.NewMethodNotAllowed(), "method not allowed")
	})

	return r
}

func (p *Port) Healthz(w http.ResponseWriter, r *http.Request) {
	if p.health != nil {
		if err := p.health.Ping(r.Context()); err != nil {
			p.errhandler.HandleError(w, r, nil, errorx.NewServiceUnavailable().WithCause(err), "health check failed")
			return
		}
	}
	httpx.Success(w, r, http.StatusOK, httpx.Envelope{"status": "ok"})
}
