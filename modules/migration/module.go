package migration

import (
	"github.com/stocker-io/stocker-sdk/modules/migration/infrastructure/persistence"
	"github.com/stocker-io/stocker-sdk/modules/migration/presentation/controllers"
	"github.com/stocker-io/stocker-sdk/modules/migration/services"
	"github.com/stocker-io/stocker-sdk/pkg/application"
	"github.com/stocker-io/stocker-sdk/pkg/configuration"
	"github.com/stocker-io/stocker-sdk/pkg/jobqueue"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()

	sessionRepo := persistence.NewSessionRepository()
	chunkRepo := persistence.NewChunkRepository()
	recordRepo := persistence.NewRecordRepository()
	txRunner := services.NewPgTxRunner()
	queue := jobqueue.NewQueue()

	app.RegisterServices(
		services.NewSessionService(services.SessionServiceOptions{
			Sessions:   sessionRepo,
			Records:    recordRepo,
			Tx:         txRunner,
			Publisher:  app.EventPublisher(),
			SessionTTL: conf.Migration.SessionTTL,
		}),
		services.NewUploadService(services.UploadServiceOptions{
			Sessions:   sessionRepo,
			Chunks:     chunkRepo,
			Tx:         txRunner,
			SessionTTL: conf.Migration.SessionTTL,
		}),
		services.NewLedgerService(services.LedgerServiceOptions{
			Sessions: sessionRepo,
			Records:  recordRepo,
			Tx:       txRunner,
			PageSize: conf.PageSize,
			MaxPage:  conf.MaxPageSize,
		}),
		services.NewCommitService(services.CommitServiceOptions{
			Sessions:  sessionRepo,
			Records:   recordRepo,
			Queue:     queue,
			Tx:        txRunner,
			Publisher: app.EventPublisher(),
		}),
		services.NewMappingService(sessionRepo, txRunner),
		services.NewTemplateService(),
	)

	app.RegisterControllers(
		controllers.NewMigrationController(app),
	)

	return nil
}

func (m *Module) Name() string {
	return "migration"
}
