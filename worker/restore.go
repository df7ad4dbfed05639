package worker

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Restorer re-registers persisted jobs with the scheduler.
type Restorer interface {
	Restore(ctx context.Context) (int, error)
}

// RestoreAll runs every restorer in order at boot. A failing restorer is
// logged and does not prevent the others from running.
func RestoreAll(ctx context.Context, logger *logrus.Entry, restorers map[string]Restorer, order ...string) {
	for _, name := range order {
		restorer, ok := restorers[name]
		if !ok {
			continue
		}
		restored, err := restorer.Restore(ctx)
		if err != nil {
			logger.WithError(err).WithField("jobs", name).Error("Failed to restore jobs")
			continue
		}
		logger.WithFields(logrus.Fields{"jobs": name, "restored": restored}).Info("Jobs restored")
	}
}
