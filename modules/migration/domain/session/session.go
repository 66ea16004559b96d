package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	StatusCreated    = "created"
	StatusUploading  = "uploading"
	StatusUploaded   = "uploaded"
	StatusValidating = "validating"
	StatusValidated  = "validated"
	StatusImporting  = "importing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

// transitions lists the allowed next statuses for each status. Terminal
// statuses have no entries.
var transitions = map[string][]string{
	StatusCreated:    {StatusUploading, StatusCancelled, StatusFailed},
	StatusUploading:  {StatusUploaded, StatusCancelled, StatusFailed},
	StatusUploaded:   {StatusValidating, StatusCancelled, StatusFailed},
	StatusValidating: {StatusValidated, StatusCancelled, StatusFailed},
	StatusValidated:  {StatusImporting, StatusValidating, StatusCancelled, StatusFailed},
	StatusImporting:  {StatusCompleted, StatusFailed},
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

type Counters struct {
	TotalRows    int64 `json:"total_rows"`
	ValidRows    int64 `json:"valid_rows"`
	WarningRows  int64 `json:"warning_rows"`
	ErrorRows    int64 `json:"error_rows"`
	FixedRows    int64 `json:"fixed_rows"`
	ImportedRows int64 `json:"imported_rows"`
	SkippedRows  int64 `json:"skipped_rows"`
}

// FindParams narrows a tenant's session listing.
type FindParams struct {
	Status string
	Limit  int
	Offset int
}

type MigrationSession struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	SourceType    string          `json:"source_type"`
	EntityTypes   []string        `json:"entity_types"`
	Status        string          `json:"status"`
	MappingConfig json.RawMessage `json:"mapping_config,omitempty"`
	ImportOptions json.RawMessage `json:"import_options,omitempty"`
	Counters      Counters        `json:"counters"`
	JobID         *uuid.UUID      `json:"job_id,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedBy     uuid.UUID       `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// CanBeCancelled reports whether the session may still be cancelled. Import
// runs to completion once started.
func (s *MigrationSession) CanBeCancelled() bool {
	switch s.Status {
	case StatusCreated, StatusUploading, StatusUploaded, StatusValidating, StatusValidated:
		return true
	}
	return false
}

// CanBeDeleted reports whether the session may be removed together with its
// staged rows. Sessions with a worker attached (uploading, validating,
// importing) and completed sessions must not be deleted; in-flight ones are
// cancelled first.
func (s *MigrationSession) CanBeDeleted() bool {
	switch s.Status {
	case StatusCreated, StatusUploaded, StatusValidated, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// IsExpired is computed, never stored. An expired session is still readable
// but rejects further uploads.
func (s *MigrationSession) IsExpired(ttl time.Duration, now time.Time) bool {
	if IsTerminal(s.Status) {
		return false
	}
	return now.After(s.CreatedAt.Add(ttl))
}

func (s *MigrationSession) HasEntityType(entityType string) bool {
	for _, et := range s.EntityTypes {
		if et == entityType {
			return true
		}
	}
	return false
}
