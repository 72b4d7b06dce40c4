package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/eqtrak/internal/database"
)

const (
	criticalFreeBytes = 500 << 20 // below this maintenance fails
	lowFreeBytes      = 5 << 30
	backupTimeout     = 10 * time.Minute
)

// BackupJob creates a backup and rotates old ones (daily).
type BackupJob struct {
	service       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if _, err := j.service.CreateBackup(ctx); err != nil {
		return err
	}
	deleted, err := j.service.RotateOldBackups(j.retentionDays)
	if err != nil {
		return fmt.Errorf("backup rotation failed: %w", err)
	}
	if deleted > 0 {
		j.log.Info().Int("deleted", deleted).Msg("Old backups rotated")
	}
	return nil
}

// MaintenanceJob compacts databases and watches free disk space (weekly).
type MaintenanceJob struct {
	vacuum  []*database.DB
	dataDir string
	usage   func(path string) (*disk.UsageStat, error)
	log     zerolog.Logger
}

// NewMaintenanceJob creates a job that VACUUMs the given databases.
func NewMaintenanceJob(dataDir string, log zerolog.Logger, vacuum ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		vacuum:  vacuum,
		dataDir: dataDir,
		usage:   disk.Usage,
		log:     log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	startTime := time.Now()

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	for _, db := range j.vacuum {
		if err := j.vacuumDatabase(db); err != nil {
			// Continue with other databases
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
		}
	}

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := j.usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	switch {
	case usage.Free < criticalFreeBytes:
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	case usage.Free < lowFreeBytes:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")
	}
	return nil
}

func (j *MaintenanceJob) vacuumDatabase(db *database.DB) error {
	before, err := db.GetStats(context.Background())
	if err != nil {
		return err
	}
	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}
	after, err := db.GetStats(context.Background())
	if err != nil {
		return err
	}

	j.log.Info().
		Str("database", db.Name()).
		Int64("pages_before", before.PageCount).
		Int64("pages_after", after.PageCount).
		Msg("VACUUM completed")
	return nil
}
