package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// FreeTierExpirer stops free-tier poll jobs that outlived their ceiling.
type FreeTierExpirer interface {
	ExpireFreeTier(ctx context.Context) (int, error)
}

// ExpiryWorker enforces the free-tier run ceiling on a fixed interval.
type ExpiryWorker struct {
	expirer  FreeTierExpirer
	interval time.Duration
	logger   *logrus.Entry
}

func NewExpiryWorker(expirer FreeTierExpirer, interval time.Duration, logger *logrus.Entry) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled, checking once immediately.
func (ew *ExpiryWorker) Start(ctx context.Context) {
	ew.logger.WithField("interval", ew.interval.String()).Info("Starting free-tier expiry worker...")
	ticker := time.NewTicker(ew.interval)
	defer ticker.Stop()

	ew.check(ctx)
	for {
		select {
		case <-ticker.C:
			ew.check(ctx)
		case <-ctx.Done():
			ew.logger.Info("Stopping free-tier expiry worker...")
			return
		}
	}
}

func (ew *ExpiryWorker) check(ctx context.Context) {
	stopped, err := ew.expirer.ExpireFreeTier(ctx)
	if err != nil {
		ew.logger.WithError(err).Error("Free-tier expiry check failed")
		return
	}
	if stopped > 0 {
		ew.logger.WithField("stopped", stopped).Info("Stopped expired free-tier poll jobs")
	}
}
