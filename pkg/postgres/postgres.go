package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gitlab.com/ucmsv2/idbroker/pkg/env"
)

func NewPgxPool(ctx context.Context, pgdsn string, mode env.Mode) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pgdsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgdsn: %w", err)
	}

	opts := []otelpgx.Option{
		otelpgx.WithTrimSQLInSpanName(),
	}
	if mode == env.Prod {
		opts = append(opts, otelpgx.WithDisableSQLStatementInAttributes())
	}

	cfg.ConnConfig.Tracer = otelpgx.NewTracer(opts...)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies every pending migration found in dir of fsys.
// dsn must use the pgx:// scheme.
func Migrate(dsn string, fsys fs.FS, dir string) error {
	driver, err := iofs.New(fsys, dir)
	if err != nil {
		return err
	}
	defer driver.Close()

	m, err := migrate.NewWithSourceInstance("iofs", driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// WithTx runs fn in a transaction, committing when fn returns nil and rolling back otherwise.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	return fn(ctx, tx)
}
