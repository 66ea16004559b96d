package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/catalog"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
	"github.com/stocker-io/stocker-sdk/pkg/eventbus"
)

type SessionServiceOptions struct {
	Sessions   SessionRepository
	Records    RecordRepository
	Tx         TxRunner
	Publisher  eventbus.EventBus
	SessionTTL time.Duration
	Now        func() time.Time
}

type SessionService struct {
	sessions  SessionRepository
	records   RecordRepository
	tx        TxRunner
	publisher eventbus.EventBus
	ttl       time.Duration
	now       func() time.Time
}

func NewSessionService(opts SessionServiceOptions) *SessionService {
	svc := &SessionService{
		sessions:  opts.Sessions,
		records:   opts.Records,
		tx:        opts.Tx,
		publisher: opts.Publisher,
		ttl:       opts.SessionTTL,
		now:       opts.Now,
	}
	if svc.ttl == 0 {
		svc.ttl = 24 * time.Hour
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

type CreateSessionInput struct {
	SourceType  string
	EntityTypes []string
}

func (s *SessionService) Create(ctx context.Context, tenantID, userID uuid.UUID, in CreateSessionInput) (*session.MigrationSession, error) {
	if tenantID == uuid.Nil {
		return nil, validationError("tenant_id is required")
	}
	if !catalog.ValidSourceType(in.SourceType) {
		return nil, validationError("unknown source type: " + in.SourceType)
	}
	if len(in.EntityTypes) == 0 {
		return nil, validationError("at least one entity type is required")
	}
	seen := make(map[string]struct{}, len(in.EntityTypes))
	for _, et := range in.EntityTypes {
		if !catalog.ValidEntityType(et) {
			return nil, validationError("unknown entity type: " + et)
		}
		if _, dup := seen[et]; dup {
			return nil, validationError("duplicate entity type: " + et)
		}
		seen[et] = struct{}{}
	}

	now := s.now()
	sess := &session.MigrationSession{
		ID:          uuid.New(),
		TenantID:    tenantID,
		SourceType:  in.SourceType,
		EntityTypes: in.EntityTypes,
		Status:      session.StatusCreated,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.tx.RunInTx(ctx, tenantID, func(txCtx context.Context) error {
		if err := s.sessions.Insert(txCtx, sess); err != nil {
			return mapPgError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(session.CreatedEvent{TenantID: tenantID, SessionID: sess.ID, Timestamp: now})
	return sess, nil
}

func (s *SessionService) Get(ctx context.Context, tenantID, sessionID uuid.UUID) (*session.MigrationSession, error) {
	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*session.MigrationSession, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return sess, nil
	})
}

type SessionPage struct {
	Sessions []*session.MigrationSession `json:"sessions"`
	Total    int64                       `json:"total"`
}

func (s *SessionService) List(ctx context.Context, tenantID uuid.UUID, params ListSessionsParams) (*SessionPage, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Offset < 0 {
		params.Offset = 0
	}
	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*SessionPage, error) {
		sessions, total, err := s.sessions.List(txCtx, tenantID, params)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &SessionPage{Sessions: sessions, Total: total}, nil
	})
}

// SetMapping stores the column-to-field mapping. Allowed once the upload is
// sealed, and again on a validated session so it can be re-validated with a
// corrected mapping.
func (s *SessionService) SetMapping(ctx context.Context, tenantID, sessionID uuid.UUID, mapping json.RawMessage) error {
	if len(mapping) == 0 || !json.Valid(mapping) {
		return validationError("mapping config must be a valid JSON document")
	}
	return s.tx.RunInTx(ctx, tenantID, func(txCtx context.Context) error {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return mapPgError(err)
		}
		switch sess.Status {
		case session.StatusUploaded, session.StatusValidated:
		default:
			return invalidStateError("mapping cannot be changed in status " + sess.Status)
		}
		if err := s.sessions.UpdateMapping(txCtx, tenantID, sessionID, mapping); err != nil {
			return mapPgError(err)
		}
		return nil
	})
}

// CompleteUpload seals the staged data set. No further chunks are accepted
// afterwards.
func (s *SessionService) CompleteUpload(ctx context.Context, tenantID, sessionID uuid.UUID) (*session.MigrationSession, error) {
	var from string
	sess, err := inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*session.MigrationSession, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if sess.Status != session.StatusUploading {
			return nil, invalidStateError("upload cannot be completed in status " + sess.Status)
		}
		from = sess.Status
		if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusUploaded, nil); err != nil {
			return nil, mapPgError(err)
		}
		sess.Status = session.StatusUploaded
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChange(tenantID, sessionID, from, session.StatusUploaded)
	return sess, nil
}

func (s *SessionService) Cancel(ctx context.Context, tenantID, sessionID uuid.UUID) (*session.MigrationSession, error) {
	var from string
	sess, err := inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*session.MigrationSession, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !sess.CanBeCancelled() {
			return nil, invalidStateError("session cannot be cancelled in status " + sess.Status)
		}
		from = sess.Status
		if err := s.sessions.UpdateStatus(txCtx, tenantID, sessionID, session.StatusCancelled, nil); err != nil {
			return nil, mapPgError(err)
		}
		sess.Status = session.StatusCancelled
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	s.publishStatusChange(tenantID, sessionID, from, session.StatusCancelled)
	return sess, nil
}

func (s *SessionService) Delete(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	err := s.tx.RunInTx(ctx, tenantID, func(txCtx context.Context) error {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return mapPgError(err)
		}
		if !sess.CanBeDeleted() {
			return invalidStateError("session cannot be deleted in status " + sess.Status)
		}
		if err := s.sessions.Delete(txCtx, tenantID, sessionID); err != nil {
			return mapPgError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(session.DeletedEvent{TenantID: tenantID, SessionID: sessionID, Timestamp: s.now()})
	return nil
}

// IsExpired reports whether the session is past its upload window.
func (s *SessionService) IsExpired(sess *session.MigrationSession) bool {
	return sess.IsExpired(s.ttl, s.now())
}

func (s *SessionService) publish(event any) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

func (s *SessionService) publishStatusChange(tenantID, sessionID uuid.UUID, from, to string) {
	s.publish(session.StatusChangedEvent{
		TenantID:  tenantID,
		SessionID: sessionID,
		From:      from,
		To:        to,
		Timestamp: s.now(),
	})
}
