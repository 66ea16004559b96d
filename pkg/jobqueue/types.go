package jobqueue

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Job is the unit stored in migration_jobs. Kind routes the job to a handler;
// Payload carries kind-specific options.
type Job struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	SessionID uuid.UUID
	Kind      string
	Payload   json.RawMessage
	Attempts  int
}

// Handler executes one claimed job. A nil return acknowledges the job; an
// error schedules a retry until MaxAttempts, after which the job goes dead.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }
