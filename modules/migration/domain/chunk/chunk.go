package chunk

import (
	"time"

	"github.com/google/uuid"
)

// MaxRowsPerChunk caps a single upload request.
const MaxRowsPerChunk = 1000

type MigrationChunk struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	SessionID  uuid.UUID `json:"session_id"`
	EntityType string    `json:"entity_type"`
	ChunkIndex int       `json:"chunk_index"`
	// TotalChunksDeclared is the caller's claim about the whole upload. It only
	// feeds progress reporting, never correctness.
	TotalChunksDeclared int       `json:"total_chunks_declared"`
	RowCount            int       `json:"row_count"`
	ReceivedAt          time.Time `json:"received_at"`
}
