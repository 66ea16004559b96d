package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundError("not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case "migration_chunks_session_entity_chunk_key":
			return conflictError("chunk already uploaded", err)
		case "migration_results_session_entity_row_key":
			return conflictError("row index already assigned", err)
		default:
			return conflictError("unique constraint violated", err)
		}
	case "23503": // foreign_key_violation
		return notFoundError("session not found", err)
	default:
		return internalError(fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}

func mapPgError(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	mapped := mapPgErrorToServiceError(err)
	var mappedSvc *ServiceError
	if errors.As(mapped, &mappedSvc) {
		return mappedSvc
	}
	return newServiceError(http.StatusInternalServerError, CodeInternal, "internal error", err)
}
