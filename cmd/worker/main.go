package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/stocker-io/stocker-sdk/modules/migration/infrastructure/persistence"
	"github.com/stocker-io/stocker-sdk/modules/migration/jobs"
	"github.com/stocker-io/stocker-sdk/modules/migration/services"
	"github.com/stocker-io/stocker-sdk/pkg/composables"
	"github.com/stocker-io/stocker-sdk/pkg/configuration"
	"github.com/stocker-io/stocker-sdk/pkg/eventbus"
	"github.com/stocker-io/stocker-sdk/pkg/jobqueue"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	connCtx, cancelConn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelConn()
	pool, err := pgxpool.New(connCtx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	sessionRepo := persistence.NewSessionRepository()
	recordRepo := persistence.NewRecordRepository()
	txRunner := services.NewPgTxRunner()

	commitService := services.NewCommitService(services.CommitServiceOptions{
		Sessions:  sessionRepo,
		Records:   recordRepo,
		Queue:     jobqueue.NewQueue(),
		Tx:        txRunner,
		Publisher: eventbus.NewEventPublisher(logger),
	})

	validationJob := jobs.NewValidationJob(jobs.ValidationJobOptions{
		Sessions:  sessionRepo,
		Records:   recordRepo,
		Reporter:  commitService,
		Tx:        txRunner,
		BatchSize: conf.Migration.ValidationBatch,
		Logger:    logger.WithField("job", services.JobKindValidate),
	})
	importJob := jobs.NewImportJob(jobs.ImportJobOptions{
		Sessions:  sessionRepo,
		Records:   recordRepo,
		Reporter:  commitService,
		Importer:  jobs.NewLoggingImporter(logger.WithField("job", services.JobKindImport)),
		Tx:        txRunner,
		BatchSize: conf.Migration.ImportBatch,
		Logger:    logger.WithField("job", services.JobKindImport),
	})

	runner, err := jobqueue.NewRunner(pool, map[string]jobqueue.Handler{
		services.JobKindValidate: validationJob,
		services.JobKindImport:   importJob,
	}, jobqueue.RunnerOptions{
		PollInterval:    conf.Migration.JobPollInterval,
		LockTTL:         conf.Migration.JobLockTTL,
		MaxAttempts:     conf.Migration.JobMaxAttempts,
		SingleActive:    conf.Migration.JobSingleActive,
		DispatchTimeout: conf.Migration.JobDispatchExpiry,
		Logger:          logger.WithField("component", "jobqueue"),
		OnDead: func(ctx context.Context, job jobqueue.Job, lastErr error) {
			if err := commitService.ReportFailure(ctx, job.TenantID, job.SessionID, lastErr.Error()); err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"session_id": job.SessionID,
					"kind":       job.Kind,
				}).Error("failed to fail session for dead job")
			}
		},
	})
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handlers open their own transactions through the pool on the context.
	ctx = composables.WithPool(ctx, pool)

	logger.Info("migration worker started")
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("worker stopped")
		configuration.Use().Unload()
		os.Exit(1)
	}
	logger.Info("migration worker stopped")
	configuration.Use().Unload()
}
