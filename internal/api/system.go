package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"
)

// healthCheckTimeout bounds each component check of the health endpoint.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth reports "ok" when every component is healthy and "degraded"
// otherwise. A degraded tracker still serves requests, so the status code
// is only 503 when the database is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: s.version}
	status := http.StatusOK

	if len(s.health) > 0 {
		resp.Components = make(map[string]string, len(s.health))
		names := make([]string, 0, len(s.health))
		for name := range s.health {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.health[name].HealthCheck(ctx)
			cancel()

			if err == nil {
				resp.Components[name] = "ok"
				continue
			}
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			if name == "database" {
				status = http.StatusServiceUnavailable
			}
		}
	}

	writeJSON(w, status, resp)
}

// SystemStats is the body of GET /system/stats.
type SystemStats struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeStats   `json:"runtime"`
	WebSocket     WSStats        `json:"websocket"`
	Tracker       TrackerStats   `json:"tracker"`
	Entries       map[string]int `json:"entries"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStats contains WebSocket hub statistics.
type WSStats struct {
	ConnectedClients int `json:"connected_clients"`
}

// TrackerStats counts what the tracker is managing.
type TrackerStats struct {
	Medications int `json:"medications"`
	Groups      int `json:"groups"`
	Entities    int `json:"entities"`
	Devices     int `json:"devices"`
}

// handleSystemStats returns runtime and tracker statistics.
func (s *Server) handleSystemStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSStats{ConnectedClients: s.Hub().ClientCount()},
		Tracker: TrackerStats{
			Medications: len(s.index.StockEntityIDs()),
			Groups:      len(s.index.Groups()),
			Entities:    len(s.entities.List()),
		},
		Entries: make(map[string]int),
	}
	if s.devices != nil {
		stats.Tracker.Devices = s.devices.GetDeviceCount()
	}
	for _, e := range s.entries.List() {
		stats.Entries[string(e.State)]++
	}

	writeJSON(w, http.StatusOK, stats)
}
