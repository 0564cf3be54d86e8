package producer

import (
	"context"
	"time"

	"github.com/relaycc/relaycc/internal/observability/dashboard"
)

// statsTimeout bounds how long the dashboard's periodic poll will wait on
// the command queue before giving up; GetStats then returns a snapshot
// carrying only a timestamp, and GetWorkers returns nil.
const statsTimeout = 2 * time.Second

// StatsAdapter exposes a Producer as a dashboard.StatsProvider,
// translating the command queue's synchronous Workers() RPC into the
// two read-only calls the dashboard's HTTP handlers and broadcast loop
// expect (grounded in the teacher's coordinator.StatsAdapter, which does
// the same registry-to-dashboard translation).
type StatsAdapter struct {
	p *Producer
}

// NewStatsProvider wraps p for use as a dashboard.StatsProvider.
func (p *Producer) NewStatsProvider() *StatsAdapter {
	return &StatsAdapter{p: p}
}

// GetStats implements dashboard.StatsProvider.
func (a *StatsAdapter) GetStats() *dashboard.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	workers, err := a.p.Workers(ctx)
	if err != nil {
		return &dashboard.Stats{Timestamp: time.Now().Unix()}
	}

	stats := &dashboard.Stats{
		PendingResults: int64(a.p.results.len()),
		TotalWorkers:   len(workers),
		UptimeSeconds:  int64(time.Since(a.p.startedAt).Seconds()),
		Timestamp:      time.Now().Unix(),
	}
	for _, w := range workers {
		stats.SuccessCompiles += w.SuccessfulTasks
		stats.FailedCompiles += w.FailedTasks
		stats.TotalCompiles += w.TotalTasks
		stats.ActiveTasks += int64(w.ActiveTasks)
		if !a.p.cfg.Circuit.IsOpen(w.ID) {
			stats.HealthyWorkers++
		}
	}
	return stats
}

// GetWorkers implements dashboard.StatsProvider.
func (a *StatsAdapter) GetWorkers() []*dashboard.WorkerInfo {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	workers, err := a.p.Workers(ctx)
	if err != nil {
		return nil
	}

	out := make([]*dashboard.WorkerInfo, 0, len(workers))
	for _, w := range workers {
		var successRate float64
		if w.TotalTasks > 0 {
			successRate = float64(w.SuccessfulTasks) / float64(w.TotalTasks)
		}
		circuitOpen := a.p.cfg.Circuit.IsOpen(w.ID)
		out = append(out, &dashboard.WorkerInfo{
			ID:            w.ID,
			Lang:          w.Lang.String(),
			Version:       w.Version,
			Procarch:      w.Procarch,
			ActiveTasks:   int32(w.ActiveTasks),
			TotalCompiles: w.TotalTasks,
			SuccessRate:   successRate,
			CircuitState:  string(a.p.cfg.Circuit.GetState(w.ID)),
			Healthy:       !circuitOpen,
			LastSeen:      w.RegisteredAt.Unix(),
		})
	}
	return out
}
