package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending = "pending"
	StatusValid   = "valid"
	StatusWarning = "warning"
	StatusError   = "error"
	StatusFixed   = "fixed"
)

const (
	ActionNone   = "none"
	ActionImport = "import"
	ActionSkip   = "skip"
)

// ParseAction rejects anything outside the closed action set.
func ParseAction(s string) (string, error) {
	switch s {
	case ActionNone, ActionImport, ActionSkip:
		return s, nil
	}
	return "", fmt.Errorf("unknown user action: %q", s)
}

const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

type ValidationMessage struct {
	Field    string `json:"field"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// FindParams narrows a session's ledger listing.
type FindParams struct {
	EntityType string
	Status     string
	UserAction string
	Limit      int
	Offset     int
}

// EntityStatistics is the per-entity rollup of a session's ledger.
type EntityStatistics struct {
	EntityType string `json:"entity_type"`
	Total      int64  `json:"total"`
	Pending    int64  `json:"pending"`
	Valid      int64  `json:"valid"`
	Warning    int64  `json:"warning"`
	Error      int64  `json:"error"`
	Fixed      int64  `json:"fixed"`
	Importable int64  `json:"importable"`
	Skipped    int64  `json:"skipped"`
}

type ValidationResult struct {
	ID             uuid.UUID           `json:"id"`
	TenantID       uuid.UUID           `json:"tenant_id"`
	SessionID      uuid.UUID           `json:"session_id"`
	EntityType     string              `json:"entity_type"`
	GlobalRowIndex int64               `json:"global_row_index"`
	RowData        json.RawMessage     `json:"row_data"`
	FixedData      json.RawMessage     `json:"fixed_data,omitempty"`
	Status         string              `json:"status"`
	UserAction     string              `json:"user_action"`
	Messages       []ValidationMessage `json:"messages"`
	ImportedAt     *time.Time          `json:"imported_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// CanBeImported reports whether the row is eligible for import regardless of
// the user's action. Skip is applied on top of this at commit time.
func (r *ValidationResult) CanBeImported() bool {
	switch r.Status {
	case StatusValid, StatusWarning, StatusFixed:
		return true
	}
	return false
}

// EffectiveData returns the corrected payload when one exists, otherwise the
// payload as uploaded.
func (r *ValidationResult) EffectiveData() json.RawMessage {
	if len(r.FixedData) > 0 {
		return r.FixedData
	}
	return r.RowData
}
