package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
	"github.com/stocker-io/stocker-sdk/pkg/eventbus"
)

type CommitServiceOptions struct {
	Sessions  SessionRepository
	Records   RecordRepository
	Queue     JobEnqueuer
	Tx        TxRunner
	Publisher eventbus.EventBus
	Now       func() time.Time
}

// CommitService drives the state machine across the asynchronous phases:
// kicking off validation, committing the import and recording worker
// outcomes. Status flips and job rows commit in the same transaction, so a
// session is never left pointing at a job that was not persisted.
type CommitService struct {
	sessions  SessionRepository
	records   RecordRepository
	queue     JobEnqueuer
	tx        TxRunner
	publisher eventbus.EventBus
	now       func() time.Time
}

func NewCommitService(opts CommitServiceOptions) *CommitService {
	svc := &CommitService{
		sessions:  opts.Sessions,
		records:   opts.Records,
		queue:     opts.Queue,
		tx:        opts.Tx,
		publisher: opts.Publisher,
		now:       opts.Now,
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// StartValidation moves the session to validating and enqueues the validation
// job. Re-validation of an already validated session is allowed.
func (s *CommitService) StartValidation(ctx context.Context, tenantID, sessionID uuid.UUID) (*session.MigrationSession, error) {
	var from string
	sess, err := inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*session.MigrationSession, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !session.CanTransition(sess.Status, session.StatusValidating) {
			return nil, invalidStateError("validation cannot start in status " + sess.Status)
		}
		if len(sess.MappingConfig) == 0 {
			return nil, invalidStateError("validation requires a configured mapping")
		}
		from = sess.Status
		if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusValidating, nil); err != nil {
			return nil, mapPgError(err)
		}
		jobID, err := s.queue.Enqueue(txCtx, tenantID, sessionID, JobKindValidate, nil)
		if err != nil {
			return nil, internalError("failed to enqueue validation job", err)
		}
		if err := s.sessions.UpdateJob(txCtx, tenantID, sessionID, &jobID); err != nil {
			return nil, mapPgError(err)
		}
		sess.Status = session.StatusValidating
		sess.JobID = &jobID
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChange(tenantID, sessionID, from, session.StatusValidating)
	return sess, nil
}

type CommitInput struct {
	ImportOptions json.RawMessage
}

type CommitResult struct {
	Session         *session.MigrationSession `json:"session"`
	JobID           uuid.UUID                 `json:"job_id"`
	ImportableCount int64                     `json:"importable_count"`
}

// Commit starts the import. A session with nothing to import is rejected
// rather than sent through an empty import run.
func (s *CommitService) Commit(ctx context.Context, tenantID, sessionID uuid.UUID, in CommitInput) (*CommitResult, error) {
	if len(in.ImportOptions) > 0 && !json.Valid(in.ImportOptions) {
		return nil, validationError("import options must be a valid JSON document")
	}

	var from string
	result, err := inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*CommitResult, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if sess.Status != session.StatusValidated {
			return nil, invalidStateError("commit requires status " + session.StatusValidated)
		}
		if len(sess.MappingConfig) == 0 {
			return nil, invalidStateError("commit requires a configured mapping")
		}

		importable, err := s.records.CountImportable(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if importable == 0 {
			return nil, validationError("no importable records in this session")
		}

		if len(in.ImportOptions) > 0 {
			if err := s.sessions.UpdateImportOptions(txCtx, tenantID, sessionID, in.ImportOptions); err != nil {
				return nil, mapPgError(err)
			}
		}

		from = sess.Status
		if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusImporting, nil); err != nil {
			return nil, mapPgError(err)
		}
		jobID, err := s.queue.Enqueue(txCtx, tenantID, sessionID, JobKindImport, nil)
		if err != nil {
			return nil, internalError("failed to enqueue import job", err)
		}
		if err := s.sessions.UpdateJob(txCtx, tenantID, sessionID, &jobID); err != nil {
			return nil, mapPgError(err)
		}

		sess.Status = session.StatusImporting
		sess.JobID = &jobID
		return &CommitResult{Session: sess, JobID: jobID, ImportableCount: importable}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChange(tenantID, sessionID, from, session.StatusImporting)
	return result, nil
}

type Progress struct {
	Status     string             `json:"status"`
	Counters   session.Counters   `json:"counters"`
	Statistics []EntityStatistics `json:"statistics"`
}

func (s *CommitService) Progress(ctx context.Context, tenantID, sessionID uuid.UUID) (*Progress, error) {
	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*Progress, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		stats, err := s.records.Statistics(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &Progress{Status: sess.Status, Counters: sess.Counters, Statistics: stats}, nil
	})
}

// ReportValidationComplete is called by the validation worker after the last
// batch. Counters are recomputed from the ledger in the same transaction.
func (s *CommitService) ReportValidationComplete(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, tenantID, func(txCtx context.Context) error {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return mapPgError(err)
		}
		if sess.Status != session.StatusValidating {
			// Cancelled mid-flight; leave the session alone.
			return nil
		}
		if _, err := s.sessions.RefreshCounters(txCtx, tenantID, sessionID); err != nil {
			return mapPgError(err)
		}
		if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusValidated, nil); err != nil {
			return mapPgError(err)
		}
		if err := s.sessions.UpdateJob(txCtx, tenantID, sessionID, nil); err != nil {
			return mapPgError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishStatusChange(tenantID, sessionID, session.StatusValidating, session.StatusValidated)
	return nil
}

// ReportImportComplete is called by the import worker once every importable
// row was written.
func (s *CommitService) ReportImportComplete(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, tenantID, func(txCtx context.Context) error {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return mapPgError(err)
		}
		if sess.Status != session.StatusImporting {
			return invalidStateError("import completion reported in status " + sess.Status)
		}
		if _, err := s.sessions.RefreshCounters(txCtx, tenantID, sessionID); err != nil {
			return mapPgError(err)
		}
		if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusCompleted, nil); err != nil {
			return mapPgError(err)
		}
		if err := s.sessions.UpdateJob(txCtx, tenantID, sessionID, nil); err != nil {
			return mapPgError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishStatusChange(tenantID, sessionID, session.StatusImporting, session.StatusCompleted)
	return nil
}

// ReportFailure drives the session to failed. Used both by workers hitting an
// unrecoverable error and by the queue when a job is exhausted.
func (s *CommitService) ReportFailure(ctx context.Context, tenantID, sessionID uuid.UUID, reason string) error {
	var from string
	err := s.tx.RunInTx(ctx, tenantID, func(txCtx context.Context) error {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return mapPgError(err)
		}
		if session.IsTerminal(sess.Status) {
			return nil
		}
		from = sess.Status
		if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusFailed, &reason); err != nil {
			return mapPgError(err)
		}
		if err := s.sessions.UpdateJob(txCtx, tenantID, sessionID, nil); err != nil {
			return mapPgError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if from != "" {
		s.publishStatusChange(tenantID, sessionID, from, session.StatusFailed)
	}
	return nil
}

func (s *CommitService) publishStatusChange(tenantID, sessionID uuid.UUID, from, to string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(session.StatusChangedEvent{
		TenantID:  tenantID,
		SessionID: sessionID,
		From:      from,
		To:        to,
		Timestamp: s.now(),
	})
}
