package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
	"github.com/stocker-io/stocker-sdk/pkg/jobqueue"
)

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, _ uuid.UUID, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type fakeSessionStore struct {
	session *session.MigrationSession

	// statusAfterBatches flips the status once this many GetByID calls have
	// happened, emulating a cancel racing the worker.
	statusAfter      int
	statusAfterValue string
	getCalls         int
}

func (s *fakeSessionStore) GetByID(_ context.Context, tenantID, id uuid.UUID) (*session.MigrationSession, error) {
	if s.session == nil || s.session.ID != id || s.session.TenantID != tenantID {
		return nil, errors.Wrap(pgx.ErrNoRows, "migration session not found")
	}
	s.getCalls++
	if s.statusAfter > 0 && s.getCalls > s.statusAfter {
		s.session.Status = s.statusAfterValue
	}
	cp := *s.session
	return &cp, nil
}

func (s *fakeSessionStore) RefreshCounters(_ context.Context, _, _ uuid.UUID) (session.Counters, error) {
	return s.session.Counters, nil
}

type fakeRecordStore struct {
	records []*record.ValidationResult
}

func (s *fakeRecordStore) ListBatch(_ context.Context, _, sessionID uuid.UUID, entityType string, afterIndex int64, limit int) ([]*record.ValidationResult, error) {
	var out []*record.ValidationResult
	for _, rec := range s.records {
		if rec.SessionID != sessionID || rec.EntityType != entityType {
			continue
		}
		if rec.GlobalRowIndex <= afterIndex {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalRowIndex < out[j].GlobalRowIndex })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRecordStore) UpdateOutcome(_ context.Context, _, recordID uuid.UUID, status string, messages []record.ValidationMessage) error {
	for _, rec := range s.records {
		if rec.ID == recordID {
			rec.Status = status
			rec.Messages = messages
			return nil
		}
	}
	return errors.Wrap(pgx.ErrNoRows, "migration record not found")
}

func (s *fakeRecordStore) ListImportable(_ context.Context, _, sessionID uuid.UUID, limit int) ([]*record.ValidationResult, error) {
	var out []*record.ValidationResult
	for _, rec := range s.records {
		if rec.SessionID != sessionID || rec.ImportedAt != nil {
			continue
		}
		if !rec.CanBeImported() || rec.UserAction == record.ActionSkip {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].GlobalRowIndex < out[j].GlobalRowIndex
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRecordStore) MarkImported(_ context.Context, _ uuid.UUID, ids []uuid.UUID) error {
	now := time.Now().UTC()
	for _, id := range ids {
		for _, rec := range s.records {
			if rec.ID == id {
				rec.ImportedAt = &now
			}
		}
	}
	return nil
}

type fakeReporter struct {
	validationDone bool
	importDone     bool
	failures       []string
}

func (r *fakeReporter) ReportValidationComplete(_ context.Context, _, _ uuid.UUID) error {
	r.validationDone = true
	return nil
}

func (r *fakeReporter) ReportImportComplete(_ context.Context, _, _ uuid.UUID) error {
	r.importDone = true
	return nil
}

func (r *fakeReporter) ReportFailure(_ context.Context, _, _ uuid.UUID, reason string) error {
	r.failures = append(r.failures, reason)
	return nil
}

type recordingImporter struct {
	batches map[string][]json.RawMessage
	err     error
}

func (i *recordingImporter) Import(_ context.Context, _ uuid.UUID, entityType string, rows []json.RawMessage) error {
	if i.err != nil {
		return i.err
	}
	if i.batches == nil {
		i.batches = make(map[string][]json.RawMessage)
	}
	i.batches[entityType] = append(i.batches[entityType], rows...)
	return nil
}

func jobFor(sess *session.MigrationSession, kind string) jobqueue.Job {
	return jobqueue.Job{
		ID:        uuid.New(),
		TenantID:  sess.TenantID,
		SessionID: sess.ID,
		Kind:      kind,
	}
}
