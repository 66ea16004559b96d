package persistence

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/infrastructure/persistence/models"
	"github.com/stocker-io/stocker-sdk/pkg/composables"
)

var ErrRecordNotFound = errors.Wrap(pgx.ErrNoRows, "migration record not found")

const recordColumns = `
	id, tenant_id, session_id, entity_type, global_row_index,
	row_data, fixed_data, status, user_action, messages,
	imported_at, created_at, updated_at`

const (
	selectRecordQuery = `
		SELECT ` + recordColumns + `
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2 AND id = $3`

	listRecordsQuery = `
		SELECT ` + recordColumns + `
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2
		   AND ($3 = '' OR entity_type = $3)
		   AND ($4 = '' OR status = $4)
		   AND ($5 = '' OR user_action = $5)
		 ORDER BY entity_type, global_row_index
		 LIMIT $6 OFFSET $7`

	countRecordsQuery = `
		SELECT count(*)
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2
		   AND ($3 = '' OR entity_type = $3)
		   AND ($4 = '' OR status = $4)
		   AND ($5 = '' OR user_action = $5)`

	listRecordsByIDsQuery = `
		SELECT ` + recordColumns + `
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2 AND id = ANY($3)
		 ORDER BY entity_type, global_row_index`

	updateRecordActionQuery = `
		UPDATE migration_validation_results
		   SET user_action = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`

	updateRecordFixQuery = `
		UPDATE migration_validation_results
		   SET fixed_data = $3, status = 'fixed', updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`

	bulkImportActionQuery = `
		UPDATE migration_validation_results
		   SET user_action = 'import', updated_at = now()
		 WHERE tenant_id = $1 AND session_id = $2 AND id = ANY($3)
		   AND status IN ('valid', 'warning', 'fixed')`

	bulkActionQuery = `
		UPDATE migration_validation_results
		   SET user_action = $4, updated_at = now()
		 WHERE tenant_id = $1 AND session_id = $2 AND id = ANY($3)`

	countImportableQuery = `
		SELECT count(*)
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2
		   AND status IN ('valid', 'warning', 'fixed')
		   AND user_action <> 'skip'`

	statisticsQuery = `
		SELECT entity_type,
		       count(*)                                                  AS total,
		       count(*) FILTER (WHERE status = 'pending')                AS pending,
		       count(*) FILTER (WHERE status = 'valid')                  AS valid,
		       count(*) FILTER (WHERE status = 'warning')                AS warning,
		       count(*) FILTER (WHERE status = 'error')                  AS error,
		       count(*) FILTER (WHERE status = 'fixed')                  AS fixed,
		       count(*) FILTER (WHERE status IN ('valid', 'warning', 'fixed')
		                          AND user_action <> 'skip')             AS importable,
		       count(*) FILTER (WHERE user_action = 'skip')              AS skipped
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2
		 GROUP BY entity_type
		 ORDER BY entity_type`

	listBatchQuery = `
		SELECT ` + recordColumns + `
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2 AND entity_type = $3
		   AND global_row_index > $4
		 ORDER BY global_row_index
		 LIMIT $5`

	updateOutcomeQuery = `
		UPDATE migration_validation_results
		   SET status = $3, messages = $4, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`

	listImportableQuery = `
		SELECT ` + recordColumns + `
		  FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2
		   AND status IN ('valid', 'warning', 'fixed')
		   AND user_action <> 'skip'
		   AND imported_at IS NULL
		 ORDER BY entity_type, global_row_index
		 LIMIT $3`

	markImportedQuery = `
		UPDATE migration_validation_results
		   SET imported_at = now(), updated_at = now()
		 WHERE tenant_id = $1 AND id = ANY($2)`
)

type RecordRepository struct{}

func NewRecordRepository() *RecordRepository {
	return &RecordRepository{}
}

func (r *RecordRepository) GetByID(ctx context.Context, tenantID, sessionID, recordID uuid.UUID) (*record.ValidationResult, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	row, err := scanRecord(tx.QueryRow(ctx, selectRecordQuery, tenantID, sessionID, recordID))
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *RecordRepository) ListPage(ctx context.Context, tenantID, sessionID uuid.UUID, filter record.FindParams) ([]*record.ValidationResult, int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to get transaction")
	}

	var total int64
	if err := tx.QueryRow(ctx, countRecordsQuery,
		tenantID, sessionID, filter.EntityType, filter.Status, filter.UserAction,
	).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count records")
	}

	rows, err := tx.Query(ctx, listRecordsQuery,
		tenantID, sessionID, filter.EntityType, filter.Status, filter.UserAction,
		filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *RecordRepository) ListByIDs(ctx context.Context, tenantID, sessionID uuid.UUID, ids []uuid.UUID) ([]*record.ValidationResult, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, listRecordsByIDsQuery, tenantID, sessionID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list records by ids")
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *RecordRepository) UpdateAction(ctx context.Context, tenantID, recordID uuid.UUID, action string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, updateRecordActionQuery, tenantID, recordID, action)
	if err != nil {
		return errors.Wrap(err, "failed to update record action")
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *RecordRepository) UpdateFix(ctx context.Context, tenantID, recordID uuid.UUID, fixedData json.RawMessage) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	tag, err := tx.Exec(ctx, updateRecordFixQuery, tenantID, recordID, []byte(fixedData))
	if err != nil {
		return errors.Wrap(err, "failed to apply record fix")
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *RecordRepository) BulkUpdateAction(ctx context.Context, tenantID, sessionID uuid.UUID, ids []uuid.UUID, action string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	var tagQuery string
	args := []any{tenantID, sessionID, ids}
	if action == record.ActionImport {
		tagQuery = bulkImportActionQuery
	} else {
		tagQuery = bulkActionQuery
		args = append(args, action)
	}

	tag, err := tx.Exec(ctx, tagQuery, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to bulk update record actions")
	}
	return tag.RowsAffected(), nil
}

func (r *RecordRepository) CountImportable(ctx context.Context, tenantID, sessionID uuid.UUID) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	var count int64
	if err := tx.QueryRow(ctx, countImportableQuery, tenantID, sessionID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count importable records")
	}
	return count, nil
}

func (r *RecordRepository) Statistics(ctx context.Context, tenantID, sessionID uuid.UUID) ([]record.EntityStatistics, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, statisticsQuery, tenantID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute statistics")
	}
	defer rows.Close()

	stats := make([]record.EntityStatistics, 0)
	for rows.Next() {
		var s record.EntityStatistics
		if err := rows.Scan(
			&s.EntityType, &s.Total, &s.Pending, &s.Valid, &s.Warning,
			&s.Error, &s.Fixed, &s.Importable, &s.Skipped,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan statistics")
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate statistics")
	}
	return stats, nil
}

// ListBatch pages through a session's rows for one entity type in global row
// index order, keyset style.
func (r *RecordRepository) ListBatch(ctx context.Context, tenantID, sessionID uuid.UUID, entityType string, afterIndex int64, limit int) ([]*record.ValidationResult, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, listBatchQuery, tenantID, sessionID, entityType, afterIndex, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list record batch")
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *RecordRepository) UpdateOutcome(ctx context.Context, tenantID, recordID uuid.UUID, status string, messages []record.ValidationMessage) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if messages == nil {
		messages = []record.ValidationMessage{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return errors.Wrap(err, "failed to marshal validation messages")
	}

	tag, err := tx.Exec(ctx, updateOutcomeQuery, tenantID, recordID, status, raw)
	if err != nil {
		return errors.Wrap(err, "failed to update validation outcome")
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListImportable returns the next rows still to be imported, ordered by
// entity type then global row index.
func (r *RecordRepository) ListImportable(ctx context.Context, tenantID, sessionID uuid.UUID, limit int) ([]*record.ValidationResult, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, listImportableQuery, tenantID, sessionID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list importable records")
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *RecordRepository) MarkImported(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if _, err := tx.Exec(ctx, markImportedQuery, tenantID, ids); err != nil {
		return errors.Wrap(err, "failed to mark records imported")
	}
	return nil
}

func scanRecord(row pgx.Row) (*record.ValidationResult, error) {
	var m models.MigrationValidationResult
	err := row.Scan(
		&m.ID, &m.TenantID, &m.SessionID, &m.EntityType, &m.GlobalRowIndex,
		&m.RowData, &m.FixedData, &m.Status, &m.UserAction, &m.Messages,
		&m.ImportedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return toDomainRecord(&m)
}

func collectRecords(rows pgx.Rows) ([]*record.ValidationResult, error) {
	records := make([]*record.ValidationResult, 0)
	for rows.Next() {
		var m models.MigrationValidationResult
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.SessionID, &m.EntityType, &m.GlobalRowIndex,
			&m.RowData, &m.FixedData, &m.Status, &m.UserAction, &m.Messages,
			&m.ImportedAt, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		rec, err := toDomainRecord(&m)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate records")
	}
	return records, nil
}

func toDomainRecord(m *models.MigrationValidationResult) (*record.ValidationResult, error) {
	var messages []record.ValidationMessage
	if len(m.Messages) > 0 {
		if err := json.Unmarshal(m.Messages, &messages); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal validation messages")
		}
	}

	return &record.ValidationResult{
		ID:             m.ID,
		TenantID:       m.TenantID,
		SessionID:      m.SessionID,
		EntityType:     m.EntityType,
		GlobalRowIndex: m.GlobalRowIndex,
		RowData:        json.RawMessage(m.RowData),
		FixedData:      json.RawMessage(m.FixedData),
		Status:         m.Status,
		UserAction:     m.UserAction,
		Messages:       messages,
		ImportedAt:     m.ImportedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}
