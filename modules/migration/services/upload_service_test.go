package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/catalog"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/chunk"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
)

func newUploadService(sessions *fakeSessionRepo, chunks *fakeChunkRepo) *UploadService {
	return NewUploadService(UploadServiceOptions{
		Sessions: sessions,
		Chunks:   chunks,
		Tx:       passthroughTx{},
	})
}

func rowsOf(n int) []json.RawMessage {
	rows := make([]json.RawMessage, n)
	for i := range rows {
		rows[i] = json.RawMessage(fmt.Sprintf(`{"code":"C%04d","name":"Customer %d"}`, i, i))
	}
	return rows
}

func TestUploadService_UploadChunk(t *testing.T) {
	sessions := newFakeSessionRepo()
	chunks := newFakeChunkRepo()
	svc := newUploadService(sessions, chunks)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusCreated)

	result, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, UploadChunkInput{
		EntityType: catalog.EntityCustomer,
		ChunkIndex: 0,
		Rows:       rowsOf(3),
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, result.FirstRowIndex)
	require.Equal(t, 3, result.RowCount)
	require.EqualValues(t, 3, result.EntityRowCount)
	require.EqualValues(t, 1, result.ChunksReceived)
	require.False(t, result.UploadComplete, "no declared total, so never advisory-complete")
	require.Equal(t, session.StatusUploading, result.SessionStatus)
	require.Equal(t, session.StatusUploading, sessions.sessions[sess.ID].Status)
}

func TestUploadService_AdvisoryUploadComplete(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc := newUploadService(sessions, newFakeChunkRepo())
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusCreated)

	first, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, UploadChunkInput{
		EntityType:          catalog.EntityCustomer,
		ChunkIndex:          0,
		TotalChunksDeclared: 2,
		Rows:                rowsOf(4),
	})
	require.NoError(t, err)
	require.False(t, first.UploadComplete)

	second, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, UploadChunkInput{
		EntityType:          catalog.EntityCustomer,
		ChunkIndex:          1,
		TotalChunksDeclared: 2,
		Rows:                rowsOf(2),
	})
	require.NoError(t, err)
	require.True(t, second.UploadComplete, "received chunks reached the declared total")
	require.EqualValues(t, 2, second.ChunksReceived)
	require.EqualValues(t, 6, second.EntityRowCount)
}

func TestUploadService_ContiguousRowIndexes(t *testing.T) {
	sessions := newFakeSessionRepo()
	chunks := newFakeChunkRepo()
	svc := newUploadService(sessions, chunks)
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusCreated)

	var next int64
	for i, size := range []int{3, 5, 2} {
		result, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, UploadChunkInput{
			EntityType: catalog.EntityCustomer,
			ChunkIndex: i,
			Rows:       rowsOf(size),
		})
		require.NoError(t, err)
		require.Equal(t, next, result.FirstRowIndex, "chunk %d must continue where the previous ended", i)
		next += int64(size)
	}

	count, err := chunks.CountRows(context.Background(), tenantID, sess.ID, catalog.EntityCustomer)
	require.NoError(t, err)
	require.EqualValues(t, 10, count)
}

func TestUploadService_DuplicateChunkIndexConflicts(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc := newUploadService(sessions, newFakeChunkRepo())
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusCreated)

	in := UploadChunkInput{EntityType: catalog.EntityCustomer, ChunkIndex: 4, Rows: rowsOf(2)}
	_, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, in)
	require.NoError(t, err)

	_, err = svc.UploadChunk(context.Background(), tenantID, sess.ID, in)
	svcErr := requireServiceError(t, err, CodeConflict)
	require.Equal(t, 409, svcErr.Status)
}

func TestUploadService_RejectsBadChunks(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc := newUploadService(sessions, newFakeChunkRepo())
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusCreated)

	cases := []struct {
		name string
		in   UploadChunkInput
	}{
		{"negative index", UploadChunkInput{EntityType: catalog.EntityCustomer, ChunkIndex: -1, Rows: rowsOf(1)}},
		{"negative declared total", UploadChunkInput{EntityType: catalog.EntityCustomer, TotalChunksDeclared: -2, Rows: rowsOf(1)}},
		{"empty chunk", UploadChunkInput{EntityType: catalog.EntityCustomer}},
		{"over the row limit", UploadChunkInput{EntityType: catalog.EntityCustomer, Rows: rowsOf(chunk.MaxRowsPerChunk + 1)}},
		{"invalid row payload", UploadChunkInput{EntityType: catalog.EntityCustomer, Rows: []json.RawMessage{json.RawMessage(`{"a"`)}}},
		{"undeclared entity type", UploadChunkInput{EntityType: catalog.EntityProduct, Rows: rowsOf(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, tc.in)
			requireServiceError(t, err, CodeValidation)
		})
	}
}

func TestUploadService_RejectsSealedSession(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc := newUploadService(sessions, newFakeChunkRepo())
	tenantID := uuid.New()

	for _, status := range []string{session.StatusUploaded, session.StatusValidating, session.StatusCompleted} {
		sess := seedSession(sessions, tenantID, status)
		_, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, UploadChunkInput{
			EntityType: catalog.EntityCustomer,
			Rows:       rowsOf(1),
		})
		requireServiceError(t, err, CodeInvalidState)
	}
}

func TestUploadService_RejectsExpiredSession(t *testing.T) {
	sessions := newFakeSessionRepo()
	svc := NewUploadService(UploadServiceOptions{
		Sessions:   sessions,
		Chunks:     newFakeChunkRepo(),
		Tx:         passthroughTx{},
		SessionTTL: time.Hour,
	})
	tenantID := uuid.New()
	sess := seedSession(sessions, tenantID, session.StatusUploading)
	sess.CreatedAt = time.Now().Add(-2 * time.Hour)

	_, err := svc.UploadChunk(context.Background(), tenantID, sess.ID, UploadChunkInput{
		EntityType: catalog.EntityCustomer,
		Rows:       rowsOf(1),
	})
	requireServiceError(t, err, CodeInvalidState)
}
