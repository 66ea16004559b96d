package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Runner polls migration_jobs and dispatches each claimed job to the handler
// registered for its kind. With SingleActive only one runner per cluster
// processes jobs at a time, guarded by a session advisory lock.
type Runner struct {
	pool     *pgxpool.Pool
	handlers map[string]Handler
	opts     RunnerOptions

	lockKey int64
	m       *metrics
}

func NewRunner(pool *pgxpool.Pool, handlers map[string]Handler, opts RunnerOptions) (*Runner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(handlers) == 0 {
		return nil, invalidConfig("at least one handler is required")
	}

	opts.setDefaults()

	r := &Runner{
		pool:     pool,
		handlers: handlers,
		opts:     opts,
		m:        getMetrics(),
		lockKey:  advisoryLockKey("jobqueue:migration_jobs"),
	}
	if r.opts.Logger == nil {
		r.opts.Logger = logrus.NewEntry(logrus.New())
	}
	return r, nil
}

func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}

	r.m.runnerLeader.Set(1)
	return r.runLoop(ctx, nil)
}

func (r *Runner) runSingleActive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := r.pool.Acquire(ctx)
		if err != nil {
			r.opts.Logger.WithError(err).Warn("jobqueue: failed to acquire connection for single-active runner")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.opts.PollInterval):
				continue
			}
		}

		leader, err := r.tryAcquireLeader(ctx, conn)
		if err != nil {
			conn.Release()
			r.opts.Logger.WithError(err).Warn("jobqueue: failed to attempt advisory lock")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.opts.PollInterval):
				continue
			}
		}

		if !leader {
			r.m.runnerLeader.Set(0)
			conn.Release()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.opts.PollInterval):
				continue
			}
		}

		r.m.runnerLeader.Set(1)
		r.opts.Logger.Info("jobqueue: runner became leader")

		err = r.runLoop(ctx, conn)
		_ = r.releaseLeader(context.Background(), conn)
		conn.Release()
		return err
	}
}

func (r *Runner) runLoop(ctx context.Context, conn *pgxpool.Conn) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, conn); err != nil {
				r.opts.Logger.WithError(err).Debug("jobqueue: observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(30 * time.Second)
		}

		if err := r.processOnce(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("jobqueue: process tick failed")
		}
	}
}

func (r *Runner) processOnce(ctx context.Context, conn *pgxpool.Conn) error {
	now := time.Now()
	cutoff := now.Add(-r.opts.LockTTL)

	claimed, err := r.claim(ctx, conn, now, cutoff)
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	for _, job := range claimed {
		handler, ok := r.handlers[job.Kind]
		if !ok {
			r.recordDispatch(job.Kind, "unroutable", 0)
			lastErr := truncateError(errors.New("no handler registered for kind "+job.Kind), r.opts.LastErrorMaxLen)
			if deadErr := r.dead(ctx, conn, job.ID, lastErr); deadErr != nil {
				r.opts.Logger.WithError(deadErr).WithFields(logFields(job)).Warn("jobqueue: dead update failed")
			}
			continue
		}

		dispatchCtx := ctx
		var cancel func()
		if r.opts.DispatchTimeout > 0 {
			dispatchCtx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		}

		start := time.Now()
		err := handler.Handle(dispatchCtx, job)
		if cancel != nil {
			cancel()
		}

		latency := time.Since(start)
		if err == nil {
			r.recordDispatch(job.Kind, "success", latency)
			if ackErr := r.ack(ctx, conn, job.ID); ackErr != nil {
				r.opts.Logger.WithError(ackErr).WithFields(logFields(job)).Warn("jobqueue: ack failed")
			}
			continue
		}

		r.recordDispatch(job.Kind, "failure", latency)
		lastErr := truncateError(err, r.opts.LastErrorMaxLen)

		if job.Attempts >= r.opts.MaxAttempts {
			r.m.deadTotal.WithLabelValues(job.Kind).Inc()
			if deadErr := r.dead(ctx, conn, job.ID, lastErr); deadErr != nil {
				r.opts.Logger.WithError(deadErr).WithFields(logFields(job)).Warn("jobqueue: dead update failed")
				continue
			}
			if r.opts.OnDead != nil {
				r.opts.OnDead(ctx, job, err)
			}
			continue
		}

		next := time.Now().Add(backoff(job.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
		if nackErr := r.nack(ctx, conn, job.ID, lastErr, next); nackErr != nil {
			r.opts.Logger.WithError(nackErr).WithFields(logFields(job)).Warn("jobqueue: nack failed")
		}
	}

	return nil
}

const claimJobsQuery = `
	SELECT id, tenant_id, session_id, kind, payload, attempts
	  FROM migration_jobs
	 WHERE completed_at IS NULL
	   AND dead_at IS NULL
	   AND available_at <= $1
	   AND attempts < $2
	   AND (locked_at IS NULL OR locked_at < $3)
	 ORDER BY available_at, created_at
	 LIMIT $4
	 FOR UPDATE SKIP LOCKED`

const lockJobsQuery = `UPDATE migration_jobs SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`

func (r *Runner) claim(ctx context.Context, conn *pgxpool.Conn, now, lockCutoff time.Time) ([]Job, error) {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.rollback(ctx)

	rows, err := tx.tx.Query(ctx, claimJobsQuery, now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("jobqueue claim select: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	var ids []uuid.UUID
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.TenantID, &j.SessionID, &j.Kind, &j.Payload, &j.Attempts); err != nil {
			return nil, fmt.Errorf("jobqueue claim scan: %w", err)
		}
		j.Attempts++
		jobs = append(jobs, j)
		ids = append(ids, j.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobqueue claim rows: %w", err)
	}
	if len(ids) == 0 {
		if err := tx.commit(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if _, err := tx.tx.Exec(ctx, lockJobsQuery, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
		return nil, fmt.Errorf("jobqueue claim update: %w", err)
	}

	if err := tx.commit(ctx); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *Runner) ack(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID) error {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	q := `
		UPDATE migration_jobs
		   SET completed_at = now(),
		       locked_at = NULL,
		       last_error = NULL
		 WHERE id = $1 AND completed_at IS NULL`
	if _, err := tx.tx.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("jobqueue ack: %w", err)
	}
	return tx.commit(ctx)
}

func (r *Runner) nack(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string, nextAvailable time.Time) error {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	q := `
		UPDATE migration_jobs
		   SET locked_at = NULL,
		       last_error = $2,
		       available_at = $3
		 WHERE id = $1 AND completed_at IS NULL`
	if _, err := tx.tx.Exec(ctx, q, id, lastError, nextAvailable); err != nil {
		return fmt.Errorf("jobqueue nack: %w", err)
	}
	return tx.commit(ctx)
}

func (r *Runner) dead(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, lastError string) error {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.rollback(ctx)

	q := `
		UPDATE migration_jobs
		   SET dead_at = now(),
		       locked_at = NULL,
		       last_error = $2
		 WHERE id = $1 AND completed_at IS NULL`
	if _, err := tx.tx.Exec(ctx, q, id, lastError); err != nil {
		return fmt.Errorf("jobqueue dead: %w", err)
	}
	return tx.commit(ctx)
}

func (r *Runner) observeQueueDepth(ctx context.Context, conn *pgxpool.Conn) error {
	exec := txExec{pool: r.pool, conn: conn}
	db := exec.queryer()

	rows, err := db.Query(ctx, `
		SELECT kind, count(*)
		  FROM migration_jobs
		 WHERE completed_at IS NULL AND dead_at IS NULL
		 GROUP BY kind`)
	if err != nil {
		return fmt.Errorf("jobqueue depth count: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var pending int64
		if err := rows.Scan(&kind, &pending); err != nil {
			return fmt.Errorf("jobqueue depth scan: %w", err)
		}
		r.m.queueDepth.WithLabelValues(kind).Set(float64(pending))
	}
	return rows.Err()
}

func (r *Runner) recordDispatch(kind, result string, latency time.Duration) {
	r.m.dispatchTotal.WithLabelValues(kind, result).Inc()
	if result != "unroutable" {
		r.m.dispatchLatency.WithLabelValues(kind).Observe(latency.Seconds())
	}
}

func (r *Runner) tryAcquireLeader(ctx context.Context, conn *pgxpool.Conn) (bool, error) {
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Runner) releaseLeader(ctx context.Context, conn *pgxpool.Conn) error {
	var ok bool
	return conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey).Scan(&ok)
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

func truncateError(err error, maxLen int) string {
	msg := err.Error()
	if maxLen > 0 && len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}

type txExec struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

func (e txExec) begin(ctx context.Context) (*txWrap, error) {
	if e.conn != nil {
		tx, err := e.conn.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return nil, err
		}
		return &txWrap{tx: tx}, nil
	}
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &txWrap{tx: tx}, nil
}

func (e txExec) queryer() queryer {
	if e.conn != nil {
		return e.conn
	}
	return e.pool
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type txWrap struct {
	tx pgx.Tx
}

func (t *txWrap) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txWrap) rollback(ctx context.Context) {
	_ = t.tx.Rollback(ctx)
}

func logFields(j Job) map[string]any {
	return map[string]any{
		"job_id":     j.ID.String(),
		"kind":       j.Kind,
		"tenant_id":  j.TenantID.String(),
		"session_id": j.SessionID.String(),
		"attempts":   j.Attempts,
	}
}
