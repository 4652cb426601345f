package postgres

import (
	"context"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// classify maps driver errors onto the checkout sentinels. Errors that
// already carry a checkout Kind pass through.
func classify(err error) error {
	if err == nil || checkout.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(checkout.ErrNotFound, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(checkout.ErrTxConflict, err.Error())
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return errors.Wrap(checkout.ErrTxConflict, pgErr.Code+" "+pgErr.Message)
		case "23505": // unique_violation
			return errors.Wrap(checkout.ErrDuplicate, pgErr.ConstraintName)
		}
	}
	return err
}
