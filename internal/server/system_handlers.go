package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/reliability"
	"github.com/aristath/eqtrak/internal/scheduler"
)

// MarketStatus reports whether live quotes are available.
type MarketStatus interface {
	Enabled() bool
}

// BackupLister lists database backups on disk.
type BackupLister interface {
	ListBackups() ([]reliability.BackupInfo, error)
}

// SystemHandlers serves status and maintenance endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	databases   []*database.DB
	scheduler   *scheduler.Scheduler
	jobs        map[string]scheduler.Job
	market      MarketStatus
	backups     BackupLister
	systemStats func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	databases []*database.DB,
	sched *scheduler.Scheduler,
	jobs map[string]scheduler.Job,
	market MarketStatus,
	backups BackupLister,
) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		databases:   databases,
		scheduler:   sched,
		jobs:        jobs,
		market:      market,
		backups:     backups,
	}
	h.systemStats = h.getSystemStats
	return h
}

// DatabaseStatus describes one database file.
type DatabaseStatus struct {
	Name  string          `json:"name"`
	Path  string          `json:"path"`
	Stats *database.Stats `json:"stats,omitempty"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status            string           `json:"status"`
	UptimeSeconds     int64            `json:"uptime_seconds"`
	CPUPercent        float64          `json:"cpu_percent"`
	MemoryPercent     float64          `json:"memory_percent"`
	ScheduledJobs     int              `json:"scheduled_jobs"`
	MarketDataEnabled bool             `json:"market_data_enabled"`
	Databases         []DatabaseStatus `json:"databases"`
}

// HandleSystemStatus returns host load, scheduler and database health
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     h.databaseStatuses(r),
	}
	if h.scheduler != nil {
		response.ScheduledJobs = h.scheduler.JobCount()
	}
	if h.market != nil {
		response.MarketDataEnabled = h.market.Enabled()
	}
	for _, db := range response.Databases {
		if !db.OK {
			response.Status = "degraded"
		}
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// HandleDatabaseStats returns per-database size statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"databases": h.databaseStatuses(r),
	})
}

// HandleListBackups lists the backup archives, newest first
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeJSON(w, h.log, http.StatusOK, map[string]interface{}{"backups": []reliability.BackupInfo{}})
		return
	}
	backups, err := h.backups.ListBackups()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeJSON(w, h.log, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}
	if backups == nil {
		backups = []reliability.BackupInfo{}
	}
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{"backups": backups})
}

// HandleTriggerJob runs a registered job in the background
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok || job == nil || h.scheduler == nil {
		writeJSON(w, h.log, http.StatusNotFound, map[string]string{"error": "unknown job " + name})
		return
	}

	h.log.Info().Str("job", job.Name()).Msg("Manual job triggered")
	go func() {
		err := h.scheduler.RunNow(job)
		switch {
		case errors.Is(err, scheduler.ErrJobRunning):
			h.log.Warn().Str("job", job.Name()).Msg("Job already running, trigger ignored")
		case err != nil:
			h.log.Error().Err(err).Str("job", job.Name()).Msg("Manually triggered job failed")
		}
	}()

	writeJSON(w, h.log, http.StatusAccepted, map[string]string{
		"status":  "triggered",
		"message": job.Name() + " triggered",
	})
}

func (h *SystemHandlers) databaseStatuses(r *http.Request) []DatabaseStatus {
	statuses := make([]DatabaseStatus, 0, len(h.databases))
	for _, db := range h.databases {
		if db == nil {
			continue
		}
		status := DatabaseStatus{Name: db.Name(), Path: db.Path(), OK: true}
		stats, err := db.GetStats(r.Context())
		if err == nil {
			err = db.QuickCheck(r.Context())
		}
		if err != nil {
			status.OK = false
			status.Error = err.Error()
		}
		status.Stats = stats
		statuses = append(statuses, status)
	}
	return statuses
}

// getSystemStats returns CPU and memory usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// Sampled over 100ms to keep the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
