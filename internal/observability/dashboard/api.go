package dashboard

import (
	"encoding/json"
	"net/http"
	"time"
)

// Stats represents producer-wide compile statistics.
type Stats struct {
	TotalCompiles   int64 `json:"total_compiles"`
	SuccessCompiles int64 `json:"success_compiles"`
	FailedCompiles  int64 `json:"failed_compiles"`
	ActiveTasks     int64 `json:"active_tasks"`
	PendingResults  int64 `json:"pending_results"`
	TotalWorkers    int   `json:"total_workers"`
	HealthyWorkers  int   `json:"healthy_workers"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
	Timestamp       int64 `json:"timestamp"`
}

// WorkerInfo represents one registered worker for the dashboard.
type WorkerInfo struct {
	ID            string  `json:"id"`
	Lang          string  `json:"lang"`
	Version       string  `json:"version"`
	Procarch      string  `json:"procarch"`
	ActiveTasks   int32   `json:"active_tasks"`
	TotalCompiles int64   `json:"total_compiles"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	CircuitState  string  `json:"circuit_state"`
	Healthy       bool    `json:"healthy"`
	LastSeen      int64   `json:"last_seen"`
}

// CompileInfo represents one dispatched compile for the dashboard feed.
type CompileInfo struct {
	Token        string `json:"token"`
	Lang         string `json:"lang"`
	Status       string `json:"status"`
	WorkerID     string `json:"worker_id"`
	StartedAt    int64  `json:"started_at"`
	CompletedAt  int64  `json:"completed_at,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
	OutputBytes  int    `json:"output_bytes,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// handleStats returns producer-wide statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var stats *Stats
	if s.provider != nil {
		stats = s.provider.GetStats()
	} else {
		stats = &Stats{
			Timestamp: time.Now().Unix(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleWorkers returns the current worker roster.
func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var workers []*WorkerInfo
	if s.provider != nil {
		workers = s.provider.GetWorkers()
	} else {
		workers = []*WorkerInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"workers":   workers,
		"count":     len(workers),
		"timestamp": time.Now().Unix(),
	})
}
