package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/stocker-io/stocker-sdk/pkg/constants"
)

// UseLogger returns the request-scoped logger, falling back to a default
// entry so callers never get nil.
func UseLogger(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
