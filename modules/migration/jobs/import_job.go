package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
	"github.com/stocker-io/stocker-sdk/modules/migration/services"
	"github.com/stocker-io/stocker-sdk/pkg/jobqueue"
)

type ImportJobOptions struct {
	Sessions  SessionStore
	Records   RecordStore
	Reporter  Reporter
	Importer  EntityImporter
	Tx        services.TxRunner
	BatchSize int
	Logger    *logrus.Entry
}

// ImportJob moves importable rows into the target system in entity type then
// global row index order. Fixed data wins over the uploaded payload. Progress
// is persisted per batch, so retries pick up where the last batch committed.
type ImportJob struct {
	sessions  SessionStore
	records   RecordStore
	reporter  Reporter
	importer  EntityImporter
	tx        services.TxRunner
	batchSize int
	log       *logrus.Entry
}

func NewImportJob(opts ImportJobOptions) *ImportJob {
	job := &ImportJob{
		sessions:  opts.Sessions,
		records:   opts.Records,
		reporter:  opts.Reporter,
		importer:  opts.Importer,
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

func (j *ImportJob) Handle(ctx context.Context, job jobqueue.Job) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		drained, stopped, err := j.importBatch(ctx, job)
		if err != nil {
			return err
		}
		if stopped {
			return nil
		}
		if drained {
			return j.reporter.ReportImportComplete(ctx, job.TenantID, job.SessionID)
		}
	}
}

// importBatch imports up to batchSize rows in one transaction. It reports
// whether the session is drained, or stopped because it left the importing
// status underneath us.
func (j *ImportJob) importBatch(ctx context.Context, job jobqueue.Job) (bool, bool, error) {
	var drained, stopped bool
	err := j.tx.RunInTx(ctx, job.TenantID, func(txCtx context.Context) error {
		sess, err := j.sessions.GetByID(txCtx, job.TenantID, job.SessionID)
		if err != nil {
			return err
		}
		if sess.Status != session.StatusImporting {
			j.log.WithFields(logrus.Fields{
				"session_id": job.SessionID,
				"status":     sess.Status,
			}).Info("import job stopped, session no longer importing")
			stopped = true
			return nil
		}

		batch, err := j.records.ListImportable(txCtx, job.TenantID, job.SessionID, j.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			drained = true
			return nil
		}

		for entityType, group := range groupByEntity(batch) {
			payloads := make([]json.RawMessage, len(group))
			for i, rec := range group {
				payloads[i] = rec.EffectiveData()
			}
			if err := j.importer.Import(txCtx, job.TenantID, entityType, payloads); err != nil {
				return err
			}
		}

		ids := make([]uuid.UUID, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID
		}
		if err := j.records.MarkImported(txCtx, job.TenantID, ids); err != nil {
			return err
		}
		if _, err := j.sessions.RefreshCounters(txCtx, job.TenantID, job.SessionID); err != nil {
			return err
		}
		return nil
	})
	return drained, stopped, err
}

func groupByEntity(batch []*record.ValidationResult) map[string][]*record.ValidationResult {
	groups := make(map[string][]*record.ValidationResult)
	for _, rec := range batch {
		groups[rec.EntityType] = append(groups[rec.EntityType], rec)
	}
	return groups
}
