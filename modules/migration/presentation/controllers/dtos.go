package controllers

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type CreateSessionDTO struct {
	SourceType  string   `json:"sourceType" validate:"required"`
	EntityTypes []string `json:"entityTypes" validate:"required,min=1,dive,required"`
}

type UploadChunkDTO struct {
	EntityType          string            `json:"entityType" validate:"required"`
	ChunkIndex          int               `json:"chunkIndex" validate:"gte=0"`
	TotalChunksDeclared int               `json:"totalChunksDeclared" validate:"gte=0"`
	Rows                []json.RawMessage `json:"rows" validate:"required,min=1"`
}

type SetMappingDTO struct {
	MappingConfig json.RawMessage `json:"mappingConfig" validate:"required"`
}

type MappingSuggestionsDTO struct {
	EntityType string   `json:"entityType" validate:"required"`
	Columns    []string `json:"columns" validate:"required,min=1"`
}

type UpdateRecordDTO struct {
	UserAction *string         `json:"userAction,omitempty"`
	FixedData  json.RawMessage `json:"fixedData,omitempty"`
}

type BulkUpdateRecordsDTO struct {
	RecordIDs  []uuid.UUID `json:"recordIds" validate:"required,min=1"`
	UserAction string      `json:"userAction" validate:"required"`
}

type CommitDTO struct {
	ImportOptions json.RawMessage `json:"importOptions,omitempty"`
}
