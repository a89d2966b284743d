package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/hindsight/internal/database"
)

// SystemHandlers serves health and host resource endpoints.
type SystemHandlers struct {
	databases map[string]*database.DB
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates new system handlers.
func NewSystemHandlers(databases map[string]*database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		databases: databases,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers all system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)            // Liveness and database reachability
	r.Get("/system/stats", h.HandleSystemStats) // Host CPU, memory, database sizes
}

// HandleHealth reports liveness and per-database reachability
// GET /api/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbs := make(map[string]string, len(h.databases))
	for name, db := range h.databases {
		if err := db.HealthCheck(r.Context()); err != nil {
			dbs[name] = "unreachable"
			status = http.StatusServiceUnavailable
			continue
		}
		dbs[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	h.writeJSON(w, status, map[string]interface{}{
		"status":         overall,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"databases":      dbs,
	})
}

// HandleSystemStats reports host resource usage
// GET /api/system/stats
func (h *SystemHandlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	// 100ms sample keeps the endpoint responsive for pollers.
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memUsed := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		memUsed = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	dbSizes := make(map[string]int64, len(h.databases))
	for name, db := range h.databases {
		if info, err := os.Stat(db.Path()); err == nil {
			dbSizes[name] = info.Size()
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cpu_percent":    cpuAvg,
		"memory_percent": memUsed,
		"goroutines":     runtime.NumGoroutine(),
		"db_sizes_bytes": dbSizes,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
