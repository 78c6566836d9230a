package server

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
	"github.com/aristath/portfolio-analytics/internal/utils"
)

// JobScheduler is the subset of the scheduler used by the system handlers
type JobScheduler interface {
	Entries() []scheduler.Entry
	RunNow(job scheduler.Job) error
}

// CapabilityChecker reports whether the optimizers can run
type CapabilityChecker interface {
	Available() error
}

// SystemHandlers handles system-wide monitoring and operations
type SystemHandlers struct {
	log          zerolog.Logger
	startedAt    time.Time
	cacheBackend string
	cacheDB      *database.DB
	scheduler    JobScheduler
	jobs         map[string]scheduler.Job
	optimizer    CapabilityChecker
	systemStats  func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance. cacheDB may be
// nil for the memory backend.
func NewSystemHandlers(
	log zerolog.Logger,
	cacheBackend string,
	cacheDB *database.DB,
	sched JobScheduler,
	jobs map[string]scheduler.Job,
	optimizer CapabilityChecker,
) *SystemHandlers {
	h := &SystemHandlers{
		log:          log.With().Str("handler", "system").Logger(),
		startedAt:    time.Now(),
		cacheBackend: cacheBackend,
		cacheDB:      cacheDB,
		scheduler:    sched,
		jobs:         jobs,
		optimizer:    optimizer,
	}
	h.systemStats = h.getSystemStats
	return h
}

// SystemStatusResponse is the response for GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"go_version"`
	CacheBackend  string  `json:"cache_backend"`
	Optimization  string  `json:"optimization"`
	LastChecked   string  `json:"last_checked"`
}

// HandleSystemStatus returns process and host status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.systemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		CacheBackend:  h.cacheBackend,
		Optimization:  "available",
		LastChecked:   time.Now().Format(time.RFC3339),
	}
	if h.optimizer != nil {
		if err := h.optimizer.Available(); err != nil {
			response.Status = "degraded"
			response.Optimization = err.Error()
		}
	}

	utils.WriteJSON(w, h.log, http.StatusOK, response)
}

// HandleJobsStatus returns registered jobs and their next run
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	entries := []scheduler.Entry{}
	if h.scheduler != nil {
		entries = h.scheduler.Entries()
	}
	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"jobs": entries,
	})
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job, ok := h.jobs[name]
	if !ok || h.scheduler == nil {
		utils.WriteJSON(w, h.log, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("job %s is not registered", name),
		})
		return
	}

	start := time.Now()
	if err := h.scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		utils.WriteJSON(w, h.log, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	utils.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"job":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// DatabaseStatsResponse is the response for GET /api/system/database/stats
type DatabaseStatsResponse struct {
	Backend     string          `json:"backend"`
	Path        string          `json:"path,omitempty"`
	Profile     string          `json:"profile,omitempty"`
	Stats       *database.Stats `json:"stats,omitempty"`
	LastChecked string          `json:"last_checked"`
}

// HandleDatabaseStats returns cache database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	response := DatabaseStatsResponse{
		Backend:     h.cacheBackend,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	if h.cacheDB != nil {
		stats, err := h.cacheDB.GetStats()
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to read cache database stats")
			utils.WriteJSON(w, h.log, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		response.Path = h.cacheDB.Path()
		response.Profile = string(h.cacheDB.Profile())
		response.Stats = stats
	}

	utils.WriteJSON(w, h.log, http.StatusOK, response)
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so the endpoint stays responsive
func (h *SystemHandlers) getSystemStats() (float64, float64) {
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
