package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SyncJob runs SyncPrices on a schedule.
type SyncJob struct {
	service *Service
	timeout time.Duration
	log     zerolog.Logger
}

// NewSyncJob creates a new price sync job
func NewSyncJob(service *Service, log zerolog.Logger) *SyncJob {
	return &SyncJob{
		service: service,
		timeout: 5 * time.Minute,
		log:     log.With().Str("job", "price_sync").Logger(),
	}
}

// Name returns the job name
func (j *SyncJob) Name() string {
	return "price_sync"
}

// Run executes one sync
func (j *SyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	res, err := j.service.SyncPrices(ctx)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		j.log.Warn().Int("failed", res.Failed).Msg("Some prices could not be synced")
	}
	return nil
}
