package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
)

var (
	ErrNoRowsAffected = errors.New("no rows affected")

	ErrClientExists = errorx.NewConflict().WithKey("client_already_exists")
)

// mapPgError turns constraint and connection failures into coded errors.
// The *pgconn.PgError stays reachable through errors.As.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == pgerrcode.UniqueViolation:
		return ErrClientExists.WithCause(err)
	case pgErr.Code == pgerrcode.CheckViolation,
		pgErr.Code == pgerrcode.NotNullViolation,
		pgErr.Code == pgerrcode.StringDataRightTruncationDataException:
		return errorx.NewValidationFailed().WithCause(err)
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgErr.Code == pgerrcode.AdminShutdown,
		pgErr.Code == pgerrcode.CannotConnectNow:
		return errorx.NewServiceUnavailable().WithCause(err)
	default:
		return err
	}
}
