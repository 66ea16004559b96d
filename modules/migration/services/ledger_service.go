package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/session"
)

type LedgerServiceOptions struct {
	Sessions SessionRepository
	Records  RecordRepository
	Tx       TxRunner
	PageSize int
	MaxPage  int
}

// LedgerService exposes the validation result ledger: paging through staged
// rows, marking user actions and applying inline fixes.
type LedgerService struct {
	sessions SessionRepository
	records  RecordRepository
	tx       TxRunner
	pageSize int
	maxPage  int
}

func NewLedgerService(opts LedgerServiceOptions) *LedgerService {
	svc := &LedgerService{
		sessions: opts.Sessions,
		records:  opts.Records,
		tx:       opts.Tx,
		pageSize: opts.PageSize,
		maxPage:  opts.MaxPage,
	}
	if svc.pageSize <= 0 {
		svc.pageSize = 50
	}
	if svc.maxPage <= 0 {
		svc.maxPage = 500
	}
	return svc
}

type RecordPage struct {
	Records []*record.ValidationResult `json:"records"`
	Total   int64                      `json:"total"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}

func (s *LedgerService) Preview(ctx context.Context, tenantID, sessionID uuid.UUID, filter RecordFilter) (*RecordPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.pageSize
	}
	if filter.Limit > s.maxPage {
		filter.Limit = s.maxPage
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*RecordPage, error) {
		if _, err := s.sessions.GetByID(txCtx, tenantID, sessionID); err != nil {
			return nil, mapPgError(err)
		}
		records, total, err := s.records.ListPage(txCtx, tenantID, sessionID, filter)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &RecordPage{Records: records, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
	})
}

func (s *LedgerService) Statistics(ctx context.Context, tenantID, sessionID uuid.UUID) ([]EntityStatistics, error) {
	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) ([]EntityStatistics, error) {
		if _, err := s.sessions.GetByID(txCtx, tenantID, sessionID); err != nil {
			return nil, mapPgError(err)
		}
		stats, err := s.records.Statistics(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		return stats, nil
	})
}

type UpdateRecordInput struct {
	UserAction *string
	FixedData  json.RawMessage
}

// UpdateRecord patches a single staged row. Providing fixed data marks the row
// as fixed without re-running validation; marking an ineligible row for import
// is allowed but has no effect at commit time.
func (s *LedgerService) UpdateRecord(ctx context.Context, tenantID, sessionID, recordID uuid.UUID, in UpdateRecordInput) (*record.ValidationResult, error) {
	if in.UserAction == nil && len(in.FixedData) == 0 {
		return nil, validationError("nothing to update")
	}

	var action string
	if in.UserAction != nil {
		parsed, err := record.ParseAction(*in.UserAction)
		if err != nil {
			return nil, validationError(err.Error())
		}
		action = parsed
	}
	if len(in.FixedData) > 0 && !json.Valid(in.FixedData) {
		return nil, validationError("fixed data must be a valid JSON document")
	}

	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*record.ValidationResult, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if sess.Status != session.StatusValidated {
			return nil, invalidStateError("records can only be edited in status " + session.StatusValidated)
		}

		rec, err := s.records.GetByID(txCtx, tenantID, sessionID, recordID)
		if err != nil {
			return nil, mapPgError(err)
		}

		if len(in.FixedData) > 0 {
			if err := s.records.UpdateFix(txCtx, tenantID, recordID, in.FixedData); err != nil {
				return nil, mapPgError(err)
			}
			rec.FixedData = in.FixedData
			rec.Status = record.StatusFixed
		}
		if in.UserAction != nil {
			if err := s.records.UpdateAction(txCtx, tenantID, recordID, action); err != nil {
				return nil, mapPgError(err)
			}
			rec.UserAction = action
		}

		if _, err := s.sessions.RefreshCounters(txCtx, tenantID, sessionID); err != nil {
			return nil, mapPgError(err)
		}
		return rec, nil
	})
}

type BulkUpdateInput struct {
	RecordIDs  []uuid.UUID
	UserAction string
}

type BulkUpdateResult struct {
	Requested int64 `json:"requested"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
}

// BulkUpdateRecords applies one action to many rows. Marking rows for import
// only touches importable rows; the rest are reported as skipped instead of
// failing the whole request.
func (s *LedgerService) BulkUpdateRecords(ctx context.Context, tenantID, sessionID uuid.UUID, in BulkUpdateInput) (*BulkUpdateResult, error) {
	if len(in.RecordIDs) == 0 {
		return nil, validationError("record ids are required")
	}
	action, err := record.ParseAction(in.UserAction)
	if err != nil {
		return nil, validationError(err.Error())
	}
	if action == record.ActionNone {
		return nil, validationError("bulk action must be import or skip")
	}

	return inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (*BulkUpdateResult, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if sess.Status != session.StatusValidated {
			return nil, invalidStateError("records can only be edited in status " + session.StatusValidated)
		}

		updated, err := s.records.BulkUpdateAction(txCtx, tenantID, sessionID, in.RecordIDs, action)
		if err != nil {
			return nil, mapPgError(err)
		}

		if _, err := s.sessions.RefreshCounters(txCtx, tenantID, sessionID); err != nil {
			return nil, mapPgError(err)
		}

		requested := int64(len(in.RecordIDs))
		return &BulkUpdateResult{
			Requested: requested,
			Updated:   updated,
			Skipped:   requested - updated,
		}, nil
	})
}
