package services

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

func newLedgerService(sessions *fakeSessionRepo, records *fakeRecordRepo) *LedgerService {
	sessions.records = records
	return NewLedgerService(LedgerServiceOptions{
		Sessions: sessions,
		Records:  records,
		Tx:       passthroughTx{},
		PageSize: 50,
		MaxPage:  500,
	})
}

func seedRecord(records *fakeRecordRepo, sess *session.MigrationSession, index int64, status string) *record.ValidationResult {
	return records.add(record.ValidationResult{
		TenantID:       sess.TenantID,
		SessionID:      sess.ID,
		EntityType:     catalog.EntityCustomer,
		GlobalRowIndex: index,
		RowData:        json.RawMessage(`{"code":"C1","name":"Acme"}`),
		Status:         status,
	})
}

func TestLedgerService_Preview(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)

	for i := int64(0); i < 5; i++ {
		status := record.StatusValid
		if i%2 == 1 {
			status = record.StatusError
		}
		seedRecord(records, sess, i, status)
	}

	page, err := svc.Preview(context.Background(), tenantID, sess.ID, RecordFilter{Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, page.Total)
	require.Len(t, page.Records, 2)
	require.EqualValues(t, 0, page.Records[0].GlobalRowIndex)

	page, err = svc.Preview(context.Background(), tenantID, sess.ID, RecordFilter{Status: record.StatusError})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
}

func TestLedgerService_PreviewClampsPageSize(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := NewLedgerService(LedgerServiceOptions{
		Sessions: sessions,
		Records:  records,
		Tx:       passthroughTx{},
		PageSize: 10,
		MaxPage:  20,
	})
	sessions.records = records
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)

	page, err := svc.Preview(context.Background(), tenantID, sess.ID, RecordFilter{})
	require.NoError(t, err)
	require.Equal(t, 10, page.Limit)

	page, err = svc.Preview(context.Background(), tenantID, sess.ID, RecordFilter{Limit: 9999})
	require.NoError(t, err)
	require.Equal(t, 20, page.Limit)
}

func TestLedgerService_PreviewUnknownSession(t *testing.T) {
	svc := newLedgerService(newFakeSessionRepo(), newFakeRecordRepo())
	_, err := svc.Preview(context.Background(), uuid.New(), uuid.New(), RecordFilter{})
	requireServiceError(t, err, CodeNotFound)
}

func TestLedgerService_UpdateRecordFix(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)
	rec := seedRecord(records, sess, 0, record.StatusError)

	fixed := json.RawMessage(`{"code":"C1","name":"Acme Ltd"}`)
	got, err := svc.UpdateRecord(context.Background(), tenantID, sess.ID, rec.ID, UpdateRecordInput{FixedData: fixed})
	require.NoError(t, err)
	require.Equal(t, record.StatusFixed, got.Status)
	require.JSONEq(t, string(fixed), string(got.FixedData))

	require.Equal(t, record.StatusFixed, records.records[rec.ID].Status)
	require.EqualValues(t, 1, sessions.sessions[sess.ID].Counters.FixedRows)
}

func TestLedgerService_UpdateRecordAction(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)
	rec := seedRecord(records, sess, 0, record.StatusError)

	// Marking an error row for import is recorded, commit eligibility decides
	// whether it actually ships.
	action := record.ActionImport
	got, err := svc.UpdateRecord(context.Background(), tenantID, sess.ID, rec.ID, UpdateRecordInput{UserAction: &action})
	require.NoError(t, err)
	require.Equal(t, record.ActionImport, got.UserAction)
	require.False(t, got.CanBeImported())
}

func TestLedgerService_UpdateRecordRejectsBadInput(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)
	rec := seedRecord(records, sess, 0, record.StatusValid)

	_, err := svc.UpdateRecord(context.Background(), tenantID, sess.ID, rec.ID, UpdateRecordInput{})
	requireServiceError(t, err, CodeValidation)

	bogus := "archive"
	_, err = svc.UpdateRecord(context.Background(), tenantID, sess.ID, rec.ID, UpdateRecordInput{UserAction: &bogus})
	requireServiceError(t, err, CodeValidation)

	_, err = svc.UpdateRecord(context.Background(), tenantID, sess.ID, rec.ID, UpdateRecordInput{FixedData: json.RawMessage(`{oops`)})
	requireServiceError(t, err, CodeValidation)
}

func TestLedgerService_UpdateRecordRequiresValidatedSession(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidating)
	rec := seedRecord(records, sess, 0, record.StatusValid)

	action := record.ActionSkip
	_, err := svc.UpdateRecord(context.Background(), tenantID, sess.ID, rec.ID, UpdateRecordInput{UserAction: &action})
	requireServiceError(t, err, CodeInvalidState)
}

func TestLedgerService_BulkUpdateRecords(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)

	valid := seedRecord(records, sess, 0, record.StatusValid)
	warning := seedRecord(records, sess, 1, record.StatusWarning)
	errored := seedRecord(records, sess, 2, record.StatusError)
	fixed := seedRecord(records, sess, 3, record.StatusFixed)

	result, err := svc.BulkUpdateRecords(context.Background(), tenantID, sess.ID, BulkUpdateInput{
		RecordIDs:  []uuid.UUID{valid.ID, warning.ID, errored.ID, fixed.ID},
		UserAction: record.ActionImport,
	})
	require.NoError(t, err)
	require.EqualValues(t, 4, result.Requested)
	require.EqualValues(t, 3, result.Updated)
	require.EqualValues(t, 1, result.Skipped)
	require.Equal(t, record.ActionNone, records.records[errored.ID].UserAction)
}

func TestLedgerService_BulkSkipAppliesToAllRows(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)

	valid := seedRecord(records, sess, 0, record.StatusValid)
	errored := seedRecord(records, sess, 1, record.StatusError)

	result, err := svc.BulkUpdateRecords(context.Background(), tenantID, sess.ID, BulkUpdateInput{
		RecordIDs:  []uuid.UUID{valid.ID, errored.ID},
		UserAction: record.ActionSkip,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, result.Updated)
	require.EqualValues(t, 0, result.Skipped)
}

func TestLedgerService_BulkUpdateRejectsBadInput(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)

	_, err := svc.BulkUpdateRecords(context.Background(), tenantID, sess.ID, BulkUpdateInput{UserAction: record.ActionSkip})
	requireServiceError(t, err, CodeValidation)

	_, err = svc.BulkUpdateRecords(context.Background(), tenantID, sess.ID, BulkUpdateInput{
		RecordIDs:  []uuid.UUID{uuid.New()},
		UserAction: "discard",
	})
	requireServiceError(t, err, CodeValidation)
}

func TestLedgerService_BulkRejectsNoneAction(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)
	rec := seedRecord(records, sess, 0, record.StatusValid)

	// Clearing an action is a per-record operation, bulk only imports or skips.
	_, err := svc.BulkUpdateRecords(context.Background(), tenantID, sess.ID, BulkUpdateInput{
		RecordIDs:  []uuid.UUID{rec.ID},
		UserAction: record.ActionNone,
	})
	requireServiceError(t, err, CodeValidation)
	require.Equal(t, record.ActionNone, records.records[rec.ID].UserAction)
}

func TestLedgerService_Statistics(t *testing.T) {
	sessions := newFakeSessionRepo()
	records := newFakeRecordRepo()
	svc := newLedgerService(sessions, records)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusValidated)

	seedRecord(records, sess, 0, record.StatusValid)
	seedRecord(records, sess, 1, record.StatusError)
	skipped := seedRecord(records, sess, 2, record.StatusValid)
	records.records[skipped.ID].UserAction = record.ActionSkip

	stats, err := svc.Statistics(context.Background(), tenantID, sess.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, catalog.EntityCustomer, stats[0].EntityType)
	require.EqualValues(t, 3, stats[0].Total)
	require.EqualValues(t, 2, stats[0].Valid)
	require.EqualValues(t, 1, stats[0].Error)
	require.EqualValues(t, 1, stats[0].Importable)
	require.EqualValues(t, 1, stats[0].Skipped)
}
