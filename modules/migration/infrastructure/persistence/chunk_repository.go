package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/chunk"
	"github.com/stocker-io/stocker-sdk/pkg/composables"
)

const (
	insertChunkQuery = `
		INSERT INTO migration_chunks (
			id, tenant_id, session_id, entity_type, chunk_index,
			total_chunks_declared, row_count, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	countStagedRowsQuery = `
		SELECT count(*) FROM migration_validation_results
		 WHERE tenant_id = $1 AND session_id = $2 AND entity_type = $3`

	countChunksQuery = `
		SELECT count(*) FROM migration_chunks
		 WHERE tenant_id = $1 AND session_id = $2 AND entity_type = $3`

	insertStagedRowsQuery = `
		INSERT INTO migration_validation_results (
			id, tenant_id, session_id, entity_type, global_row_index,
			row_data, status, user_action, messages
		)
		SELECT t.id, $3, $4, $5, $6 + t.ord - 1,
		       t.data::jsonb, 'pending', 'none', '[]'::jsonb
		  FROM unnest($1::uuid[], $2::text[]) WITH ORDINALITY AS t(id, data, ord)`
)

type ChunkRepository struct{}

func NewChunkRepository() *ChunkRepository {
	return &ChunkRepository{}
}

// InsertWithRows assigns contiguous global row indexes under an advisory lock
// scoped to the (session, entity type) pair, so concurrent chunk uploads for
// the same pair serialize instead of racing for the same index range.
func (r *ChunkRepository) InsertWithRows(ctx context.Context, c *chunk.MigrationChunk, rows []json.RawMessage) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	lockKey := fmt.Sprintf("migration:chunk:%s:%s", c.SessionID, c.EntityType)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return 0, errors.Wrap(err, "failed to acquire chunk lock")
	}

	var base int64
	if err := tx.QueryRow(ctx, countStagedRowsQuery, c.TenantID, c.SessionID, c.EntityType).Scan(&base); err != nil {
		return 0, errors.Wrap(err, "failed to count staged rows")
	}

	if _, err := tx.Exec(ctx, insertChunkQuery,
		c.ID, c.TenantID, c.SessionID, c.EntityType, c.ChunkIndex,
		c.TotalChunksDeclared, c.RowCount, c.ReceivedAt,
	); err != nil {
		return 0, err
	}

	ids := make([]uuid.UUID, len(rows))
	data := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = uuid.New()
		data[i] = string(row)
	}

	if _, err := tx.Exec(ctx, insertStagedRowsQuery,
		ids, data, c.TenantID, c.SessionID, c.EntityType, base,
	); err != nil {
		return 0, err
	}

	return base, nil
}

func (r *ChunkRepository) CountRows(ctx context.Context, tenantID, sessionID uuid.UUID, entityType string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	var count int64
	if err := tx.QueryRow(ctx, countStagedRowsQuery, tenantID, sessionID, entityType).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count staged rows")
	}
	return count, nil
}

func (r *ChunkRepository) CountChunks(ctx context.Context, tenantID, sessionID uuid.UUID, entityType string) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}

	var count int64
	if err := tx.QueryRow(ctx, countChunksQuery, tenantID, sessionID, entityType).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count chunks")
	}
	return count, nil
}
