package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/chunk"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
)

// Query parameter and rollup types live with their aggregates so the
// persistence layer can share them without depending on this package.
type (
	ListSessionsParams = session.FindParams
	RecordFilter       = record.FindParams
	EntityStatistics   = record.EntityStatistics
)

type SessionRepository interface {
	Insert(ctx context.Context, s *session.MigrationSession) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*session.MigrationSession, error)
	List(ctx context.Context, tenantID uuid.UUID, params ListSessionsParams) ([]*session.MigrationSession, int64, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status string, failureReason *string) error
	UpdateMapping(ctx context.Context, tenantID, id uuid.UUID, mapping json.RawMessage) error
	UpdateImportOptions(ctx context.Context, tenantID, id uuid.UUID, options json.RawMessage) error
	// UpdateJob records the handle of the dispatched job; nil clears it.
	UpdateJob(ctx context.Context, tenantID, id uuid.UUID, jobID *uuid.UUID) error
	RefreshCounters(ctx context.Context, tenantID, id uuid.UUID) (session.Counters, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

type ChunkRepository interface {
	// InsertWithRows stores the chunk and its rows atomically, assigning
	// contiguous global row indexes starting at the current row count for the
	// (session, entity type) pair. Returns the first assigned index.
	InsertWithRows(ctx context.Context, c *chunk.MigrationChunk, rows []json.RawMessage) (int64, error)
	CountRows(ctx context.Context, tenantID, sessionID uuid.UUID, entityType string) (int64, error)
	CountChunks(ctx context.Context, tenantID, sessionID uuid.UUID, entityType string) (int64, error)
}

type RecordRepository interface {
	GetByID(ctx context.Context, tenantID, sessionID, recordID uuid.UUID) (*record.ValidationResult, error)
	ListPage(ctx context.Context, tenantID, sessionID uuid.UUID, filter RecordFilter) ([]*record.ValidationResult, int64, error)
	ListByIDs(ctx context.Context, tenantID, sessionID uuid.UUID, ids []uuid.UUID) ([]*record.ValidationResult, error)
	UpdateAction(ctx context.Context, tenantID, recordID uuid.UUID, action string) error
	UpdateFix(ctx context.Context, tenantID, recordID uuid.UUID, fixedData json.RawMessage) error
	BulkUpdateAction(ctx context.Context, tenantID, sessionID uuid.UUID, ids []uuid.UUID, action string) (int64, error)
	CountImportable(ctx context.Context, tenantID, sessionID uuid.UUID) (int64, error)
	Statistics(ctx context.Context, tenantID, sessionID uuid.UUID) ([]EntityStatistics, error)
}

type JobEnqueuer interface {
	// Enqueue submits a job inside the caller's transaction and returns its id.
	Enqueue(ctx context.Context, tenantID, sessionID uuid.UUID, kind string, payload any) (uuid.UUID, error)
}

const (
	JobKindValidate = "migration.validate"
	JobKindImport   = "migration.import"
)
