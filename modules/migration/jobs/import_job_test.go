package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/catalog"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
)

func importingSession() *session.MigrationSession {
	sess := validatingSession()
	sess.Status = session.StatusImporting
	return sess
}

func TestImportJob_Handle(t *testing.T) {
	sess := importingSession()
	sessions := &fakeSessionStore{session: sess}

	valid := stagedRow(sess, 0, `{"code":"C1","name":"Acme"}`)
	valid.Status = record.StatusValid
	fixed := stagedRow(sess, 1, `{"name":"Broken"}`)
	fixed.Status = record.StatusFixed
	fixed.FixedData = json.RawMessage(`{"code":"C2","name":"Broken"}`)
	skipped := stagedRow(sess, 2, `{"code":"C3","name":"Skip"}`)
	skipped.Status = record.StatusValid
	skipped.UserAction = record.ActionSkip
	errored := stagedRow(sess, 3, `{"name":"Bad"}`)
	errored.Status = record.StatusError

	records := &fakeRecordStore{records: []*record.ValidationResult{valid, fixed, skipped, errored}}
	reporter := &fakeReporter{}
	importer := &recordingImporter{}

	job := NewImportJob(ImportJobOptions{
		Sessions: sessions,
		Records:  records,
		Reporter: reporter,
		Importer: importer,
		Tx:       passthroughTx{},
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.import")))
	require.True(t, reporter.importDone)

	imported := importer.batches[catalog.EntityCustomer]
	require.Len(t, imported, 2)
	require.JSONEq(t, `{"code":"C1","name":"Acme"}`, string(imported[0]))
	// Fixed data wins over the uploaded payload.
	require.JSONEq(t, `{"code":"C2","name":"Broken"}`, string(imported[1]))

	require.NotNil(t, valid.ImportedAt)
	require.NotNil(t, fixed.ImportedAt)
	require.Nil(t, skipped.ImportedAt)
	require.Nil(t, errored.ImportedAt)
}

func TestImportJob_BatchesUntilDrained(t *testing.T) {
	sess := importingSession()
	sessions := &fakeSessionStore{session: sess}

	var all []*record.ValidationResult
	for i := int64(0); i < 5; i++ {
		rec := stagedRow(sess, i, `{"code":"C1","name":"Acme"}`)
		rec.Status = record.StatusValid
		all = append(all, rec)
	}
	records := &fakeRecordStore{records: all}
	reporter := &fakeReporter{}
	importer := &recordingImporter{}

	job := NewImportJob(ImportJobOptions{
		Sessions:  sessions,
		Records:   records,
		Reporter:  reporter,
		Importer:  importer,
		Tx:        passthroughTx{},
		BatchSize: 2,
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.import")))
	require.True(t, reporter.importDone)
	require.Len(t, importer.batches[catalog.EntityCustomer], 5)
	for _, rec := range all {
		require.NotNil(t, rec.ImportedAt)
	}
}

func TestImportJob_StopsWhenSessionLeavesImporting(t *testing.T) {
	sess := importingSession()
	sess.Status = session.StatusFailed
	sessions := &fakeSessionStore{session: sess}
	rec := stagedRow(sess, 0, `{"code":"C1","name":"Acme"}`)
	rec.Status = record.StatusValid
	records := &fakeRecordStore{records: []*record.ValidationResult{rec}}
	reporter := &fakeReporter{}
	importer := &recordingImporter{}

	job := NewImportJob(ImportJobOptions{
		Sessions: sessions,
		Records:  records,
		Reporter: reporter,
		Importer: importer,
		Tx:       passthroughTx{},
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.import")))
	require.False(t, reporter.importDone)
	require.Empty(t, importer.batches)
	require.Nil(t, rec.ImportedAt)
}

func TestImportJob_PropagatesImporterErrors(t *testing.T) {
	sess := importingSession()
	sessions := &fakeSessionStore{session: sess}
	rec := stagedRow(sess, 0, `{"code":"C1","name":"Acme"}`)
	rec.Status = record.StatusValid
	records := &fakeRecordStore{records: []*record.ValidationResult{rec}}
	importer := &recordingImporter{err: errors.New("target rejected the batch")}

	job := NewImportJob(ImportJobOptions{
		Sessions: sessions,
		Records:  records,
		Reporter: &fakeReporter{},
		Importer: importer,
		Tx:       passthroughTx{},
	})

	err := job.Handle(context.Background(), jobFor(sess, "migration.import"))
	require.Error(t, err)
	require.Nil(t, rec.ImportedAt, "failed batches roll back, nothing is marked imported")
}
