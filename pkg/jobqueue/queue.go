package jobqueue

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/pkg/composables"
)

const insertJobQuery = `
	INSERT INTO migration_jobs (id, tenant_id, session_id, kind, payload, attempts, available_at, created_at)
	VALUES ($1, $2, $3, $4, $5, 0, now(), now())`

// Queue persists jobs inside the caller's transaction so a status change and
// the job that acts on it commit or roll back together.
type Queue struct{}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue submits a job and returns its id so the caller can keep a handle to
// the dispatched work.
func (q *Queue) Enqueue(ctx context.Context, tenantID, sessionID uuid.UUID, kind string, payload any) (uuid.UUID, error) {
	if kind == "" {
		return uuid.Nil, invalidConfig("kind is required")
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to get transaction")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to marshal job payload")
	}

	jobID := uuid.New()
	if _, err := tx.Exec(ctx, insertJobQuery, jobID, tenantID, sessionID, kind, raw); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to enqueue job")
	}
	return jobID, nil
}
