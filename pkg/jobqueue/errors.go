package jobqueue

import "github.com/stocker-io/stocker-sdk/pkg/serrors"

func invalidConfig(details string) error {
	return serrors.NewError("JOBQUEUE_INVALID_CONFIG", "invalid job queue configuration", details)
}
