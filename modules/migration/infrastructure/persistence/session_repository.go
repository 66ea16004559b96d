package persistence

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
	"github.com/stocker-io/stocker-sdk/modules/migration/infrastructure/persistence/models"
	"github.com/stocker-io/stocker-sdk/pkg/composables"
)

// ErrSessionNotFound unwraps to pgx.ErrNoRows so the service layer maps it to
// a not-found response.
var ErrSessionNotFound = errors.Wrap(pgx.ErrNoRows, "migration session not found")

const (
	insertSessionQuery = `
		INSERT INTO migration_sessions (
			id, tenant_id, source_type, entity_types, status,
			mapping_config, import_options, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectSessionQuery = `
		SELECT id, tenant_id, source_type, entity_types, status,
		       mapping_config, import_options,
		       total_rows, valid_rows, warning_rows, error_rows, fixed_rows,
		       imported_rows, skipped_rows,
		       job_id, failure_reason, created_by, created_at, updated_at, completed_at
		  FROM migration_sessions
		 WHERE tenant_id = $1 AND id = $2`

	listSessionsQuery = `
		SELECT id, tenant_id, source_type, entity_types, status,
		       mapping_config, import_options,
		       total_rows, valid_rows, warning_rows, error_rows, fixed_rows,
		       imported_rows, skipped_rows,
		       job_id, failure_reason, created_by, created_at, updated_at, completed_at
		  FROM migration_sessions
		 WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`

	countSessionsQuery = `
		SELECT count(*) FROM migration_sessions
		 WHERE tenant_id = $1 AND ($2 = '' OR status = $2)`

	updateSessionStatusQuery = `
		UPDATE migration_sessions
		   SET status = $3,
		       failure_reason = $4,
		       completed_at = CASE WHEN $3 = 'completed' THEN now() ELSE completed_at END,
		       updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`

	updateSessionMappingQuery = `
		UPDATE migration_sessions
		   SET mapping_config = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`

	updateSessionImportOptionsQuery = `
		UPDATE migration_sessions
		   SET import_options = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`

	updateSessionJobQuery = `
		UPDATE migration_sessions
		   SET job_id = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`

	deleteSessionQuery = `
		DELETE FROM migration_sessions WHERE tenant_id = $1 AND id = $2`

	refreshSessionCountersQuery = `
		UPDATE migration_sessions s
		   SET total_rows    = c.total,
		       valid_rows    = c.valid,
		       warning_rows  = c.warning,
		       error_rows    = c.error,
		       fixed_rows    = c.fixed,
		       imported_rows = c.imported,
		       skipped_rows  = c.skipped,
		       updated_at    = now()
		  FROM (
			SELECT count(*)                                              AS total,
			       count(*) FILTER (WHERE status = 'valid')              AS valid,
			       count(*) FILTER (WHERE status = 'warning')            AS warning,
			       count(*) FILTER (WHERE status = 'error')              AS error,
			       count(*) FILTER (WHERE status = 'fixed')              AS fixed,
			       count(*) FILTER (WHERE imported_at IS NOT NULL)       AS imported,
			       count(*) FILTER (WHERE user_action = 'skip')          AS skipped
			  FROM migration_validation_results
			 WHERE tenant_id = $1 AND session_id = $2
		  ) c
		 WHERE s.tenant_id = $1 AND s.id = $2
		 RETURNING s.total_rows, s.valid_rows, s.warning_rows, s.error_rows,
		           s.fixed_rows, s.imported_rows, s.skipped_rows`
)

type SessionRepository struct{}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{}
}

func (r *SessionRepository) Insert(ctx context.Context, s *session.MigrationSession) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	_, err = tx.Exec(ctx, insertSessionQuery,
		s.ID, s.TenantID, s.SourceType, s.EntityTypes, s.Status,
		nullableJSON(s.MappingConfig), nullableJSON(s.ImportOptions),
		s.CreatedBy, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert migration session")
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*session.MigrationSession, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var row models.MigrationSession
	err = tx.QueryRow(ctx, selectSessionQuery, tenantID, id).Scan(
		&row.ID, &row.TenantID, &row.SourceType, &row.EntityTypes, &row.Status,
		&row.MappingConfig, &row.ImportOptions,
		&row.TotalRows, &row.ValidRows, &row.WarningRows, &row.ErrorRows, &row.FixedRows,
		&row.ImportedRows, &row.SkippedRows,
		&row.JobID, &row.FailureReason, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt, &row.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return toDomainSession(&row), nil
}

func (r *SessionRepository) List(ctx context.Context, tenantID uuid.UUID, params session.FindParams) ([]*session.MigrationSession, int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to get transaction")
	}

	var total int64
	if err := tx.QueryRow(ctx, countSessionsQuery, tenantID, params.Status).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count migration sessions")
	}

	rows, err := tx.Query(ctx, listSessionsQuery, tenantID, params.Status, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list migration sessions")
	}
	defer rows.Close()

	sessions := make([]*session.MigrationSession, 0)
	for rows.Next() {
		var row models.MigrationSession
		if err := rows.Scan(
			&row.ID, &row.TenantID, &row.SourceType, &row.EntityTypes, &row.Status,
			&row.MappingConfig, &row.ImportOptions,
			&row.TotalRows, &row.ValidRows, &row.WarningRows, &row.ErrorRows, &row.FixedRows,
			&row.ImportedRows, &row.SkippedRows,
			&row.JobID, &row.FailureReason, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt, &row.CompletedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan migration session")
		}
		sessions = append(sessions, toDomainSession(&row))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate migration sessions")
	}
	return sessions, total, nil
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status string, failureReason *string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, updateSessionStatusQuery, tenantID, id, status, failureReason)
	if err != nil {
		return errors.Wrap(err, "failed to update session status")
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) UpdateMapping(ctx context.Context, tenantID, id uuid.UUID, mapping json.RawMessage) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, updateSessionMappingQuery, tenantID, id, []byte(mapping))
	if err != nil {
		return errors.Wrap(err, "failed to update session mapping")
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) UpdateImportOptions(ctx context.Context, tenantID, id uuid.UUID, options json.RawMessage) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, updateSessionImportOptionsQuery, tenantID, id, []byte(options))
	if err != nil {
		return errors.Wrap(err, "failed to update session import options")
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) UpdateJob(ctx context.Context, tenantID, id uuid.UUID, jobID *uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, updateSessionJobQuery, tenantID, id, jobID)
	if err != nil {
		return errors.Wrap(err, "failed to update session job")
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) RefreshCounters(ctx context.Context, tenantID, id uuid.UUID) (session.Counters, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return session.Counters{}, errors.Wrap(err, "failed to get transaction")
	}

	var c session.Counters
	err = tx.QueryRow(ctx, refreshSessionCountersQuery, tenantID, id).Scan(
		&c.TotalRows, &c.ValidRows, &c.WarningRows, &c.ErrorRows,
		&c.FixedRows, &c.ImportedRows, &c.SkippedRows,
	)
	if err != nil {
		return session.Counters{}, err
	}
	return c, nil
}

func (r *SessionRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, deleteSessionQuery, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete migration session")
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func toDomainSession(row *models.MigrationSession) *session.MigrationSession {
	return &session.MigrationSession{
		ID:            row.ID,
		TenantID:      row.TenantID,
		SourceType:    row.SourceType,
		EntityTypes:   row.EntityTypes,
		Status:        row.Status,
		MappingConfig: json.RawMessage(row.MappingConfig),
		ImportOptions: json.RawMessage(row.ImportOptions),
		Counters: session.Counters{
			TotalRows:    row.TotalRows,
			ValidRows:    row.ValidRows,
			WarningRows:  row.WarningRows,
			ErrorRows:    row.ErrorRows,
			FixedRows:    row.FixedRows,
			ImportedRows: row.ImportedRows,
			SkippedRows:  row.SkippedRows,
		},
		JobID:         row.JobID,
		FailureReason: row.FailureReason,
		CreatedBy:     row.CreatedBy,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		CompletedAt:   row.CompletedAt,
	}
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
