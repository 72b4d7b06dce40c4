package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

// EvictionJob drops cached quotes that have been expired for longer than
// the retention window. Recently expired quotes survive so a failing
// provider can still be answered from the cache.
type EvictionJob struct {
	repo      *Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewEvictionJob creates the cache eviction job. A non-positive retention
// falls back to StaleQuoteRetention.
func NewEvictionJob(repo *Repository, retention time.Duration, log zerolog.Logger) *EvictionJob {
	if retention <= 0 {
		retention = StaleQuoteRetention
	}
	return &EvictionJob{
		repo:      repo,
		retention: retention,
		log:       log.With().Str("job", "price_cache_eviction").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *EvictionJob) Name() string {
	return "price_cache_eviction"
}

// Run evicts stale quotes from every cache table.
func (j *EvictionJob) Run() error {
	for _, table := range AllTables {
		evicted, err := j.repo.EvictExpired(table, j.retention)
		if err != nil {
			j.log.Error().Err(err).Str("table", table).Msg("Cache eviction failed")
			return err
		}
		remaining, err := j.repo.Count(table)
		if err != nil {
			return err
		}

		event := j.log.Debug()
		if evicted > 0 {
			event = j.log.Info()
		}
		event.Str("table", table).
			Int64("evicted", evicted).
			Int64("remaining", remaining).
			Dur("retention", j.retention).
			Msg("Price cache evicted")
	}
	return nil
}
