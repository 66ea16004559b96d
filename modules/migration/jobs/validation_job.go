package jobs

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
	"github.com/stocker-io/stocker-sdk/modules/migration/services"
	"github.com/stocker-io/stocker-sdk/pkg/jobqueue"
)

type ValidationJobOptions struct {
	Sessions  SessionStore
	Records   RecordStore
	Reporter  Reporter
	Tx        services.TxRunner
	BatchSize int
	Logger    *logrus.Entry
}

// ValidationJob walks every staged row of a session in global row index
// order, batch by batch, and writes the outcome back to the ledger. Each
// batch is its own transaction so a crashed worker resumes without losing
// finished batches.
type ValidationJob struct {
	sessions  SessionStore
	records   RecordStore
	reporter  Reporter
	tx        services.TxRunner
	batchSize int
	log       *logrus.Entry
}

func NewValidationJob(opts ValidationJobOptions) *ValidationJob {
	job := &ValidationJob{
		sessions:  opts.Sessions,
		records:   opts.Records,
		reporter:  opts.Reporter,
		tx:        opts.Tx,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
	}
	if job.batchSize <= 0 {
		job.batchSize = 500
	}
	if job.log == nil {
		job.log = logrus.NewEntry(logrus.New())
	}
	return job
}

func (j *ValidationJob) Handle(ctx context.Context, job jobqueue.Job) error {
	var sess *session.MigrationSession
	err := j.tx.RunInTx(ctx, job.TenantID, func(txCtx context.Context) error {
		var err error
		sess, err = j.sessions.GetByID(txCtx, job.TenantID, job.SessionID)
		return err
	})
	if err != nil {
		return err
	}
	if sess.Status != session.StatusValidating {
		j.log.WithFields(logrus.Fields{
			"session_id": job.SessionID,
			"status":     sess.Status,
		}).Info("validation job skipped, session no longer validating")
		return nil
	}

	mappings, err := ParseMappingConfig(sess.MappingConfig)
	if err != nil {
		return j.reporter.ReportFailure(ctx, job.TenantID, job.SessionID, err.Error())
	}

	for _, entityType := range sess.EntityTypes {
		if err := j.validateEntity(ctx, job, entityType, mappings[entityType]); err != nil {
			return err
		}
	}

	return j.reporter.ReportValidationComplete(ctx, job.TenantID, job.SessionID)
}

func (j *ValidationJob) validateEntity(ctx context.Context, job jobqueue.Job, entityType string, mapping map[string]string) error {
	afterIndex := int64(-1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var batch []*record.ValidationResult
		err := j.tx.RunInTx(ctx, job.TenantID, func(txCtx context.Context) error {
			sess, err := j.sessions.GetByID(txCtx, job.TenantID, job.SessionID)
			if err != nil {
				return err
			}
			if sess.Status != session.StatusValidating {
				// Cancelled mid-run; stop without touching more rows.
				batch = nil
				return nil
			}

			batch, err = j.records.ListBatch(txCtx, job.TenantID, job.SessionID, entityType, afterIndex, j.batchSize)
			if err != nil {
				return err
			}

			for _, rec := range batch {
				// Manually fixed rows keep their status.
				if rec.Status == record.StatusFixed {
					continue
				}
				status, messages := j.validateRecord(entityType, rec, mapping)
				if err := j.records.UpdateOutcome(txCtx, job.TenantID, rec.ID, status, messages); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		afterIndex = batch[len(batch)-1].GlobalRowIndex
	}
}

func (j *ValidationJob) validateRecord(entityType string, rec *record.ValidationResult, mapping map[string]string) (string, []record.ValidationMessage) {
	mapped, err := MapRow(rec.RowData, mapping)
	if err != nil {
		return record.StatusError, []record.ValidationMessage{{
			Severity: record.SeverityError,
			Message:  err.Error(),
		}}
	}
	return ValidateRow(entityType, mapped)
}
