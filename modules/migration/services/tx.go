package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/pkg/composables"
)

// TxRunner runs fn inside a tenant-scoped transaction. Services depend on the
// interface so unit tests can substitute a passthrough runner.
type TxRunner interface {
	RunInTx(ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) error) error
}

// PgTxRunner opens a transaction on the pool carried by the context and
// applies the tenant RLS setting before running fn.
type PgTxRunner struct{}

func NewPgTxRunner() *PgTxRunner {
	return &PgTxRunner{}
}

func (r *PgTxRunner) RunInTx(ctx context.Context, tenantID uuid.UUID, fn func(txCtx context.Context) error) error {
	pool, err := composables.UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txCtx := composables.WithTx(ctx, tx)
	txCtx = composables.WithTenantID(txCtx, tenantID)
	if err := composables.ApplyTenantRLS(txCtx, tx); err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func inTx[T any](ctx context.Context, runner TxRunner, tenantID uuid.UUID, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := runner.RunInTx(ctx, tenantID, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
