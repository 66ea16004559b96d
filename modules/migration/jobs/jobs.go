package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
)

// SessionStore is the slice of the session repository the workers need.
type SessionStore interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*session.MigrationSession, error)
	RefreshCounters(ctx context.Context, tenantID, id uuid.UUID) (session.Counters, error)
}

// RecordStore is the slice of the record repository the workers need.
type RecordStore interface {
	ListBatch(ctx context.Context, tenantID, sessionID uuid.UUID, entityType string, afterIndex int64, limit int) ([]*record.ValidationResult, error)
	UpdateOutcome(ctx context.Context, tenantID, recordID uuid.UUID, status string, messages []record.ValidationMessage) error
	ListImportable(ctx context.Context, tenantID, sessionID uuid.UUID, limit int) ([]*record.ValidationResult, error)
	MarkImported(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) error
}

// Reporter drives the session state machine from worker outcomes.
type Reporter interface {
	ReportValidationComplete(ctx context.Context, tenantID, sessionID uuid.UUID) error
	ReportImportComplete(ctx context.Context, tenantID, sessionID uuid.UUID) error
	ReportFailure(ctx context.Context, tenantID, sessionID uuid.UUID, reason string) error
}

// EntityImporter writes importable rows to the target system.
type EntityImporter interface {
	Import(ctx context.Context, tenantID uuid.UUID, entityType string, rows []json.RawMessage) error
}

// MappingConfig maps source column names to catalog field names, per entity
// type. An absent entity type means the rows are already keyed by field name.
type MappingConfig map[string]map[string]string

func ParseMappingConfig(raw json.RawMessage) (MappingConfig, error) {
	if len(raw) == 0 {
		return MappingConfig{}, nil
	}
	var cfg MappingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("invalid mapping config: %w", err)
	}
	return cfg, nil
}

// MapRow decodes a staged row and applies the column mapping, stringifying
// scalar values on the way.
func MapRow(raw json.RawMessage, mapping map[string]string) (map[string]string, error) {
	var source map[string]any
	if err := json.Unmarshal(raw, &source); err != nil {
		return nil, fmt.Errorf("row is not a JSON object: %w", err)
	}

	mapped := make(map[string]string, len(source))
	for column, value := range source {
		field := column
		if len(mapping) > 0 {
			target, ok := mapping[column]
			if !ok {
				continue
			}
			field = target
		}
		mapped[field] = stringify(value)
	}
	return mapped, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		// Avoid scientific notation for row values like barcodes.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
