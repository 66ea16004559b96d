package modules

import (
	"github.com/stocker-io/stocker-sdk/modules/migration"
	"github.com/stocker-io/stocker-sdk/pkg/application"
)

var BuiltInModules = []application.Module{
	migration.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range append(BuiltInModules, externalModules...) {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
