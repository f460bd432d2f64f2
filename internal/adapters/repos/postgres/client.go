package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
	"gitlab.com/ucmsv2/idbroker/pkg/postgres"
)

const scope = "idbroker/internal/adapters/repos/postgres"

var (
	tracer = otel.Tracer(scope)
	logger = otelslog.NewLogger(scope)
)

const (
	selectClientQuery = `
	SELECT id, name, redirect_uris, created_at, updated_at
	FROM clients
	WHERE id = $1;`

	insertClientQuery = `
	INSERT INTO clients (id, name, redirect_uris, created_at, updated_at)
	VALUES ($1, $2, $3, $4, NOW());`

	updateClientQuery = `
	UPDATE clients
	SET name = $2, redirect_uris = $3, updated_at = NOW()
	WHERE id = $1;`
)

// ClientRepo is the relying-party registry.
type ClientRepo struct {
	tracer trace.Tracer
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// NewClientRepo creates a new instance of ClientRepo.
//
// WARNING: panics if pool is nil
func NewClientRepo(pool *pgxpool.Pool, t trace.Tracer, l *slog.Logger) *ClientRepo {
	if pool == nil {
		panic("pgxpool.Pool cannot be nil")
	}
	if t == nil {
		t = tracer
	}
	if l == nil {
		l = logger
	}

	return &ClientRepo{
		tracer: t,
		logger: l,
		pool:   pool,
	}
}

func (r *ClientRepo) GetClient(ctx context.Context, id string) (*client.Client, error) {
	const op = "postgres.ClientRepo.GetClient"
	ctx, span := r.tracer.Start(ctx, "ClientRepo.GetClient",
		trace.WithAttributes(attribute.String("client.id", id)),
	)
	defer span.End()

	var dto ClientDTO
	err := r.pool.QueryRow(ctx, selectClientQuery, id).
		Scan(&dto.ID, &dto.Name, &dto.RedirectURIs, &dto.CreatedAt, &dto.UpdatedAt)
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to get client by id")
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorx.Wrap(errorx.NewNotFound().WithCause(err), op)
		}
		return nil, errorx.Wrap(err, op)
	}

	return ClientToDomain(dto), nil
}

// SaveClient registers a new client. An existing id yields ErrClientExists.
func (r *ClientRepo) SaveClient(ctx context.Context, c *client.Client) error {
	const op = "postgres.ClientRepo.SaveClient"
	ctx, span := r.tracer.Start(ctx, "ClientRepo.SaveClient",
		trace.WithAttributes(attribute.String("client.id", c.ID())),
	)
	defer span.End()

	dto := DomainToClientDTO(c)
	_, err := r.pool.Exec(ctx, insertClientQuery, dto.ID, dto.Name, dto.RedirectURIs, dto.CreatedAt)
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to insert client")
		return errorx.Wrap(mapPgError(err), op)
	}

	r.logger.DebugContext(ctx, "client saved", slog.String("client_id", dto.ID), slog.Int("redirects", len(dto.RedirectURIs)))
	return nil
}

// UpdateClient replaces the name and redirect URIs of a registered client.
func (r *ClientRepo) UpdateClient(ctx context.Context, c *client.Client) error {
	const op = "postgres.ClientRepo.UpdateClient"
	ctx, span := r.tracer.Start(ctx, "ClientRepo.UpdateClient",
		trace.WithAttributes(attribute.String("client.id", c.ID())),
	)
	defer span.End()

	dto := DomainToClientDTO(c)
	err := postgres.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		res, err := tx.Exec(ctx, updateClientQuery, dto.ID, dto.Name, dto.RedirectURIs)
		if err != nil {
			return mapPgError(err)
		}
		if res.RowsAffected() == 0 {
			return errorx.NewNotFound().WithCause(ErrNoRowsAffected)
		}
		return nil
	})
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to update client")
		return errorx.Wrap(err, op)
	}

	r.logger.DebugContext(ctx, "client updated", slog.String("client_id", dto.ID), slog.Int("redirects", len(dto.RedirectURIs)))
	return nil
}
