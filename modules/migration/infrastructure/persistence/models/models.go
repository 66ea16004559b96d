package models

import (
	"time"

	"github.com/google/uuid"
)

type MigrationSession struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	SourceType    string
	EntityTypes   []string
	Status        string
	MappingConfig []byte
	ImportOptions []byte
	TotalRows     int64
	ValidRows     int64
	WarningRows   int64
	ErrorRows     int64
	FixedRows     int64
	ImportedRows  int64
	SkippedRows   int64
	JobID         *uuid.UUID
	FailureReason *string
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

type MigrationChunk struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	SessionID           uuid.UUID
	EntityType          string
	ChunkIndex          int
	TotalChunksDeclared int
	RowCount            int
	ReceivedAt          time.Time
}

type MigrationValidationResult struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	SessionID      uuid.UUID
	EntityType     string
	GlobalRowIndex int64
	RowData        []byte
	FixedData      []byte
	Status         string
	UserAction     string
	Messages       []byte
	ImportedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
