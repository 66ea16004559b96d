package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/catalog"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
)

func validatingSession() *session.MigrationSession {
	return &session.MigrationSession{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		SourceType:  catalog.SourceExcel,
		EntityTypes: []string{catalog.EntityCustomer},
		Status:      session.StatusValidating,
	}
}

func stagedRow(sess *session.MigrationSession, index int64, data string) *record.ValidationResult {
	return &record.ValidationResult{
		ID:             uuid.New(),
		TenantID:       sess.TenantID,
		SessionID:      sess.ID,
		EntityType:     catalog.EntityCustomer,
		GlobalRowIndex: index,
		RowData:        json.RawMessage(data),
		Status:         record.StatusPending,
		UserAction:     record.ActionNone,
	}
}

func TestValidationJob_Handle(t *testing.T) {
	sess := validatingSession()
	sessions := &fakeSessionStore{session: sess}
	records := &fakeRecordStore{records: []*record.ValidationResult{
		stagedRow(sess, 0, `{"code":"C1","name":"Acme"}`),
		stagedRow(sess, 1, `{"name":"No Code"}`),
		stagedRow(sess, 2, `{"code":"C3","name":"Tax","taxNumber":"12345"}`),
	}}
	reporter := &fakeReporter{}

	job := NewValidationJob(ValidationJobOptions{
		Sessions: sessions,
		Records:  records,
		Reporter: reporter,
		Tx:       passthroughTx{},
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.validate")))
	require.True(t, reporter.validationDone)
	require.Equal(t, record.StatusValid, records.records[0].Status)
	require.Equal(t, record.StatusError, records.records[1].Status)
	require.Equal(t, record.StatusWarning, records.records[2].Status)
	require.NotEmpty(t, records.records[1].Messages)
}

func TestValidationJob_AppliesMapping(t *testing.T) {
	sess := validatingSession()
	sess.MappingConfig = json.RawMessage(`{"customer":{"Cari Kod":"code","Ünvan":"name"}}`)
	sessions := &fakeSessionStore{session: sess}
	records := &fakeRecordStore{records: []*record.ValidationResult{
		stagedRow(sess, 0, `{"Cari Kod":"C1","Ünvan":"Acme"}`),
	}}
	reporter := &fakeReporter{}

	job := NewValidationJob(ValidationJobOptions{
		Sessions: sessions,
		Records:  records,
		Reporter: reporter,
		Tx:       passthroughTx{},
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.validate")))
	require.Equal(t, record.StatusValid, records.records[0].Status)
}

func TestValidationJob_SkipsFixedRows(t *testing.T) {
	sess := validatingSession()
	sessions := &fakeSessionStore{session: sess}
	fixed := stagedRow(sess, 0, `{"name":"Missing Code"}`)
	fixed.Status = record.StatusFixed
	fixed.FixedData = json.RawMessage(`{"code":"C1","name":"Missing Code"}`)
	records := &fakeRecordStore{records: []*record.ValidationResult{fixed}}
	reporter := &fakeReporter{}

	job := NewValidationJob(ValidationJobOptions{
		Sessions: sessions,
		Records:  records,
		Reporter: reporter,
		Tx:       passthroughTx{},
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.validate")))
	require.Equal(t, record.StatusFixed, records.records[0].Status, "manual fixes survive re-validation")
	require.True(t, reporter.validationDone)
}

func TestValidationJob_SkipsWhenNotValidating(t *testing.T) {
	sess := validatingSession()
	sess.Status = session.StatusCancelled
	sessions := &fakeSessionStore{session: sess}
	records := &fakeRecordStore{records: []*record.ValidationResult{
		stagedRow(sess, 0, `{"code":"C1","name":"Acme"}`),
	}}
	reporter := &fakeReporter{}

	job := NewValidationJob(ValidationJobOptions{
		Sessions: sessions,
		Records:  records,
		Reporter: reporter,
		Tx:       passthroughTx{},
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.validate")))
	require.False(t, reporter.validationDone)
	require.Equal(t, record.StatusPending, records.records[0].Status)
}

func TestValidationJob_StopsOnCancelMidRun(t *testing.T) {
	sess := validatingSession()
	sessions := &fakeSessionStore{
		session: sess,
		// First read sees validating, the batch re-check sees cancelled.
		statusAfter:      1,
		statusAfterValue: session.StatusCancelled,
	}
	records := &fakeRecordStore{records: []*record.ValidationResult{
		stagedRow(sess, 0, `{"code":"C1","name":"Acme"}`),
	}}
	reporter := &fakeReporter{}

	job := NewValidationJob(ValidationJobOptions{
		Sessions:  sessions,
		Records:   records,
		Reporter:  reporter,
		Tx:        passthroughTx{},
		BatchSize: 1,
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.validate")))
	require.Equal(t, record.StatusPending, records.records[0].Status)
}

func TestValidationJob_ReportsFailureOnBadMapping(t *testing.T) {
	sess := validatingSession()
	sess.MappingConfig = json.RawMessage(`["broken"]`)
	sessions := &fakeSessionStore{session: sess}
	reporter := &fakeReporter{}

	job := NewValidationJob(ValidationJobOptions{
		Sessions: sessions,
		Records:  &fakeRecordStore{},
		Reporter: reporter,
		Tx:       passthroughTx{},
	})

	require.NoError(t, job.Handle(context.Background(), jobFor(sess, "migration.validate")))
	require.Len(t, reporter.failures, 1)
	require.False(t, reporter.validationDone)
}
