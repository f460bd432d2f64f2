package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"gitlab.com/ucmsv2/idbroker/internal/adapters/repos/postgres"
	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
)

type Helper struct {
	pool *pgxpool.Pool
	repo *postgres.ClientRepo
}

func NewHelper(pool *pgxpool.Pool) *Helper {
	return &Helper{pool: pool, repo: postgres.NewClientRepo(pool, nil, nil)}
}

func (h *Helper) SeedClient(t *testing.T, c *client.Client) {
	t.Helper()

	err := h.repo.SaveClient(t.Context(), c)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			require.NoError(t, h.repo.UpdateClient(t.Context(), c))
			return
		}
		t.Fatalf("failed to upsert client: %v", err)
	}
}

func (h *Helper) Truncate(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, "TRUNCATE TABLE clients")
	return err
}
