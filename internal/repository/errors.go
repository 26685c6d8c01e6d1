package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const pgUniqueViolation = "23505"

// translate maps driver errors onto domain errors at the repository boundary.
func translate(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, details)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperrors.NewConflict(resource+" already exists", details)
	}
	return err
}
