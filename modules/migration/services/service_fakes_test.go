package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/chunk"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
	"github.com/stocker-io/stocker-sdk/modules/migration/infrastructure/persistence"
)

// passthroughTx runs the callback on the caller's context, no database needed.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, _ uuid.UUID, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type stubPublisher struct {
	events []any
}

func (p *stubPublisher) Publish(args ...interface{}) { p.events = append(p.events, args...) }
func (p *stubPublisher) Subscribe(interface{})       {}
func (p *stubPublisher) Unsubscribe(interface{})     {}
func (p *stubPublisher) Clear()                      {}
func (p *stubPublisher) SubscribersCount() int       { return 0 }

type fakeSessionRepo struct {
	sessions map[uuid.UUID]*session.MigrationSession
	records  *fakeRecordRepo
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*session.MigrationSession)}
}

func (r *fakeSessionRepo) Insert(_ context.Context, s *session.MigrationSession) error {
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*session.MigrationSession, error) {
	s, ok := r.sessions[id]
	if !ok || s.TenantID != tenantID {
		return nil, persistence.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) List(_ context.Context, tenantID uuid.UUID, params ListSessionsParams) ([]*session.MigrationSession, int64, error) {
	var out []*session.MigrationSession
	for _, s := range r.sessions {
		if s.TenantID != tenantID {
			continue
		}
		if params.Status != "" && s.Status != params.Status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r *fakeSessionRepo) UpdateStatus(_ context.Context, tenantID, id uuid.UUID, status string, failureReason *string) error {
	s, ok := r.sessions[id]
	if !ok || s.TenantID != tenantID {
		return persistence.ErrSessionNotFound
	}
	s.Status = status
	s.FailureReason = failureReason
	return nil
}

func (r *fakeSessionRepo) UpdateMapping(_ context.Context, tenantID, id uuid.UUID, mapping json.RawMessage) error {
	s, ok := r.sessions[id]
	if !ok || s.TenantID != tenantID {
		return persistence.ErrSessionNotFound
	}
	s.MappingConfig = mapping
	return nil
}

func (r *fakeSessionRepo) UpdateImportOptions(_ context.Context, tenantID, id uuid.UUID, options json.RawMessage) error {
	s, ok := r.sessions[id]
	if !ok || s.TenantID != tenantID {
		return persistence.ErrSessionNotFound
	}
	s.ImportOptions = options
	return nil
}

func (r *fakeSessionRepo) UpdateJob(_ context.Context, tenantID, id uuid.UUID, jobID *uuid.UUID) error {
	s, ok := r.sessions[id]
	if !ok || s.TenantID != tenantID {
		return persistence.ErrSessionNotFound
	}
	s.JobID = jobID
	return nil
}

func (r *fakeSessionRepo) RefreshCounters(_ context.Context, tenantID, id uuid.UUID) (session.Counters, error) {
	s, ok := r.sessions[id]
	if !ok || s.TenantID != tenantID {
		return session.Counters{}, persistence.ErrSessionNotFound
	}
	if r.records != nil {
		s.Counters = r.records.countersFor(id)
	}
	return s.Counters, nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	s, ok := r.sessions[id]
	if !ok || s.TenantID != tenantID {
		return persistence.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

type fakeChunkRepo struct {
	chunks map[string]*chunk.MigrationChunk // keyed by session:entity:index
	counts map[string]int64                 // keyed by session:entity
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{
		chunks: make(map[string]*chunk.MigrationChunk),
		counts: make(map[string]int64),
	}
}

func chunkKey(sessionID uuid.UUID, entityType string, index int) string {
	return fmt.Sprintf("%s:%s:%d", sessionID, entityType, index)
}

func countKey(sessionID uuid.UUID, entityType string) string {
	return sessionID.String() + ":" + entityType
}

func (r *fakeChunkRepo) InsertWithRows(_ context.Context, c *chunk.MigrationChunk, rows []json.RawMessage) (int64, error) {
	key := chunkKey(c.SessionID, c.EntityType, c.ChunkIndex)
	if _, dup := r.chunks[key]; dup {
		return 0, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "migration_chunks_session_entity_chunk_key",
		}
	}
	base := r.counts[countKey(c.SessionID, c.EntityType)]
	cp := *c
	r.chunks[key] = &cp
	r.counts[countKey(c.SessionID, c.EntityType)] = base + int64(len(rows))
	return base, nil
}

func (r *fakeChunkRepo) CountRows(_ context.Context, _, sessionID uuid.UUID, entityType string) (int64, error) {
	return r.counts[countKey(sessionID, entityType)], nil
}

func (r *fakeChunkRepo) CountChunks(_ context.Context, _, sessionID uuid.UUID, entityType string) (int64, error) {
	var n int64
	for _, c := range r.chunks {
		if c.SessionID == sessionID && c.EntityType == entityType {
			n++
		}
	}
	return n, nil
}

type fakeRecordRepo struct {
	records map[uuid.UUID]*record.ValidationResult
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[uuid.UUID]*record.ValidationResult)}
}

func (r *fakeRecordRepo) add(rec record.ValidationResult) *record.ValidationResult {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.UserAction == "" {
		rec.UserAction = record.ActionNone
	}
	r.records[rec.ID] = &rec
	return &rec
}

func (r *fakeRecordRepo) countersFor(sessionID uuid.UUID) session.Counters {
	var c session.Counters
	for _, rec := range r.records {
		if rec.SessionID != sessionID {
			continue
		}
		c.TotalRows++
		switch rec.Status {
		case record.StatusValid:
			c.ValidRows++
		case record.StatusWarning:
			c.WarningRows++
		case record.StatusError:
			c.ErrorRows++
		case record.StatusFixed:
			c.FixedRows++
		}
		if rec.UserAction == record.ActionSkip {
			c.SkippedRows++
		}
		if rec.ImportedAt != nil {
			c.ImportedRows++
		}
	}
	return c
}

func (r *fakeRecordRepo) GetByID(_ context.Context, tenantID, sessionID, recordID uuid.UUID) (*record.ValidationResult, error) {
	rec, ok := r.records[recordID]
	if !ok || rec.TenantID != tenantID || rec.SessionID != sessionID {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeRecordRepo) ListPage(_ context.Context, tenantID, sessionID uuid.UUID, filter RecordFilter) ([]*record.ValidationResult, int64, error) {
	var matched []*record.ValidationResult
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.SessionID != sessionID {
			continue
		}
		if filter.EntityType != "" && rec.EntityType != filter.EntityType {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.UserAction != "" && rec.UserAction != filter.UserAction {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].EntityType != matched[j].EntityType {
			return matched[i].EntityType < matched[j].EntityType
		}
		return matched[i].GlobalRowIndex < matched[j].GlobalRowIndex
	})
	total := int64(len(matched))
	if filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else {
		matched = nil
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *fakeRecordRepo) ListByIDs(_ context.Context, tenantID, sessionID uuid.UUID, ids []uuid.UUID) ([]*record.ValidationResult, error) {
	var out []*record.ValidationResult
	for _, id := range ids {
		rec, ok := r.records[id]
		if !ok || rec.TenantID != tenantID || rec.SessionID != sessionID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRecordRepo) UpdateAction(_ context.Context, tenantID, recordID uuid.UUID, action string) error {
	rec, ok := r.records[recordID]
	if !ok || rec.TenantID != tenantID {
		return persistence.ErrRecordNotFound
	}
	rec.UserAction = action
	return nil
}

func (r *fakeRecordRepo) UpdateFix(_ context.Context, tenantID, recordID uuid.UUID, fixedData json.RawMessage) error {
	rec, ok := r.records[recordID]
	if !ok || rec.TenantID != tenantID {
		return persistence.ErrRecordNotFound
	}
	rec.FixedData = fixedData
	rec.Status = record.StatusFixed
	return nil
}

func (r *fakeRecordRepo) BulkUpdateAction(_ context.Context, tenantID, sessionID uuid.UUID, ids []uuid.UUID, action string) (int64, error) {
	var updated int64
	for _, id := range ids {
		rec, ok := r.records[id]
		if !ok || rec.TenantID != tenantID || rec.SessionID != sessionID {
			continue
		}
		if action == record.ActionImport && !rec.CanBeImported() {
			continue
		}
		rec.UserAction = action
		updated++
	}
	return updated, nil
}

func (r *fakeRecordRepo) CountImportable(_ context.Context, tenantID, sessionID uuid.UUID) (int64, error) {
	var n int64
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.SessionID != sessionID {
			continue
		}
		if rec.CanBeImported() && rec.UserAction != record.ActionSkip {
			n++
		}
	}
	return n, nil
}

func (r *fakeRecordRepo) Statistics(_ context.Context, tenantID, sessionID uuid.UUID) ([]EntityStatistics, error) {
	byEntity := make(map[string]*EntityStatistics)
	for _, rec := range r.records {
		if rec.TenantID != tenantID || rec.SessionID != sessionID {
			continue
		}
		stats, ok := byEntity[rec.EntityType]
		if !ok {
			stats = &EntityStatistics{EntityType: rec.EntityType}
			byEntity[rec.EntityType] = stats
		}
		stats.Total++
		switch rec.Status {
		case record.StatusPending:
			stats.Pending++
		case record.StatusValid:
			stats.Valid++
		case record.StatusWarning:
			stats.Warning++
		case record.StatusError:
			stats.Error++
		case record.StatusFixed:
			stats.Fixed++
		}
		if rec.CanBeImported() && rec.UserAction != record.ActionSkip {
			stats.Importable++
		}
		if rec.UserAction == record.ActionSkip {
			stats.Skipped++
		}
	}
	out := make([]EntityStatistics, 0, len(byEntity))
	for _, stats := range byEntity {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out, nil
}

type fakeQueue struct {
	enqueued []string
	jobIDs   []uuid.UUID
}

func (q *fakeQueue) Enqueue(_ context.Context, _, _ uuid.UUID, kind string, _ any) (uuid.UUID, error) {
	jobID := uuid.New()
	q.enqueued = append(q.enqueued, kind)
	q.jobIDs = append(q.jobIDs, jobID)
	return jobID, nil
}
