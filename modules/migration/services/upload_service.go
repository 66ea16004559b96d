package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/chunk"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
)

type UploadServiceOptions struct {
	Sessions   SessionRepository
	Chunks     ChunkRepository
	Tx         TxRunner
	SessionTTL time.Duration
	Now        func() time.Time
}

type UploadService struct {
	sessions SessionRepository
	chunks   ChunkRepository
	tx       TxRunner
	ttl      time.Duration
	now      func() time.Time
}

func NewUploadService(opts UploadServiceOptions) *UploadService {
	svc := &UploadService{
		sessions: opts.Sessions,
		chunks:   opts.Chunks,
		tx:       opts.Tx,
		ttl:      opts.SessionTTL,
		now:      opts.Now,
	}
	if svc.ttl == 0 {
		svc.ttl = 24 * time.Hour
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

type UploadChunkInput struct {
	EntityType string
	ChunkIndex int
	// TotalChunksDeclared is the caller's claim about the whole upload for
	// this entity type. Zero means unknown.
	TotalChunksDeclared int
	Rows                []json.RawMessage
}

type UploadChunkResult struct {
	ChunkID        uuid.UUID `json:"chunk_id"`
	FirstRowIndex  int64     `json:"first_row_index"`
	RowCount       int       `json:"row_count"`
	EntityRowCount int64     `json:"entity_row_count"`
	TotalRows      int64     `json:"total_rows"`
	ChunksReceived int64     `json:"chunks_received"`
	// UploadComplete compares chunks received against the declared total. It
	// is advisory; CompleteUpload is the authoritative signal.
	UploadComplete bool   `json:"upload_complete"`
	SessionStatus  string `json:"session_status"`
}

// UploadChunk stages one chunk of rows. The chunk record, its rows and the
// session status flip commit in a single transaction, so a duplicate chunk
// index leaves no partial rows behind.
func (s *UploadService) UploadChunk(ctx context.Context, tenantID, sessionID uuid.UUID, in UploadChunkInput) (*UploadChunkResult, error) {
	if in.ChunkIndex < 0 {
		return nil, validationError("chunk index must not be negative")
	}
	if in.TotalChunksDeclared < 0 {
		return nil, validationError("declared chunk total must not be negative")
	}
	if len(in.Rows) == 0 {
		return nil, validationError("chunk must contain at least one row")
	}
	if len(in.Rows) > chunk.MaxRowsPerChunk {
		return nil, validationError(fmt.Sprintf("chunk exceeds the %d row limit", chunk.MaxRowsPerChunk))
	}
	for i, row := range in.Rows {
		if len(row) == 0 || !json.Valid(row) {
			return nil, validationError(fmt.Sprintf("row %d is not a valid JSON document", i))
		}
	}

	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*UploadChunkResult, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		switch sess.Status {
		case session.StatusCreated, session.StatusUploading:
		default:
			return nil, invalidStateError("chunks cannot be uploaded in status " + sess.Status)
		}
		if sess.IsExpired(s.ttl, s.now()) {
			return nil, invalidStateError("session has expired")
		}
		if !sess.HasEntityType(in.EntityType) {
			return nil, validationError("entity type not declared for this session: " + in.EntityType)
		}

		c := &chunk.MigrationChunk{
			ID:                  uuid.New(),
			TenantID:            tenantID,
			SessionID:           sessionID,
			EntityType:          in.EntityType,
			ChunkIndex:          in.ChunkIndex,
			TotalChunksDeclared: in.TotalChunksDeclared,
			RowCount:            len(in.Rows),
			ReceivedAt:          s.now(),
		}

		firstIndex, err := s.chunks.InsertWithRows(txCtx, c, in.Rows)
		if err != nil {
			return nil, mapPgError(err)
		}

		if sess.Status == session.StatusCreated {
			if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusUploading, nil); err != nil {
				return nil, mapPgError(err)
			}
			sess.Status = session.StatusUploading
		}

		counters, err := s.sessions.RefreshCounters(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		entityRows, err := s.chunks.CountRows(txCtx, tenantID, sessionID, in.EntityType)
		if err != nil {
			return nil, mapPgError(err)
		}
		chunksReceived, err := s.chunks.CountChunks(txCtx, tenantID, sessionID, in.EntityType)
		if err != nil {
			return nil, mapPgError(err)
		}

		return &UploadChunkResult{
			ChunkID:        c.ID,
			FirstRowIndex:  firstIndex,
			RowCount:       len(in.Rows),
			EntityRowCount: entityRows,
			TotalRows:      counters.TotalRows,
			ChunksReceived: chunksReceived,
			UploadComplete: in.TotalChunksDeclared > 0 && chunksReceived >= int64(in.TotalChunksDeclared),
			SessionStatus:  sess.Status,
		}, nil
	})
}
