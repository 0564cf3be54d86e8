package producer

import (
	"errors"
	"sync/atomic"

	"github.com/relaycc/relaycc/internal/pb"
)

// ErrNoWorkers is returned when no worker of any language is currently
// registered.
var ErrNoWorkers = errors.New("producer: no workers available")

// ErrNoMatchingWorkers is returned when workers exist but none are
// registered for the requested language, or all candidates are
// circuit-broken.
var ErrNoMatchingWorkers = errors.New("producer: no workers match requested language")

// CircuitChecker reports whether a worker should be skipped by
// scheduling, satisfied by *resilience.CircuitManager.
type CircuitChecker interface {
	IsOpen(workerID string) bool
}

// Scheduler selects which registered worker should receive the next
// dispatch for a language. Select must not mutate the roster — moving a
// worker to the back of the line, if a scheduler wants that semantic, is
// the scheduler's own bookkeeping, never the roster's; the spec's FIFO
// roster-head behavior is simply the degenerate case where Select always
// returns the head unchanged.
type Scheduler interface {
	Select(r *roster, lang pb.Language) (*WorkerInfo, error)
}

// RoundRobinScheduler implements the spec's mandated behavior literally:
// always pick the roster head for lang. Grounded in the teacher's
// SimpleScheduler, simplified because relaycc has no capability matching
// or per-worker task-count cap to apply before picking a candidate.
type RoundRobinScheduler struct {
	circuit CircuitChecker
}

// NewRoundRobinScheduler returns the spec's default scheduler. circuit
// may be nil to disable circuit-breaker filtering entirely.
func NewRoundRobinScheduler(circuit CircuitChecker) *RoundRobinScheduler {
	return &RoundRobinScheduler{circuit: circuit}
}

func (s *RoundRobinScheduler) Select(r *roster, lang pb.Language) (*WorkerInfo, error) {
	ids := r.forLanguage(lang)
	if len(ids) == 0 {
		if r.count() == 0 {
			return nil, ErrNoWorkers
		}
		return nil, ErrNoMatchingWorkers
	}
	for _, id := range ids {
		if s.circuit != nil && s.circuit.IsOpen(id) {
			continue
		}
		w, ok := r.get(id)
		if ok {
			return w, nil
		}
	}
	return nil, ErrNoMatchingWorkers
}

// LeastBusyScheduler is the pluggable alternative §4.D invites: pick the
// registered worker for lang with the fewest active tasks, adapted from
// the teacher's LeastLoadedScheduler. Ties fall back to registration
// order via an atomic round-robin cursor so load is spread evenly among
// equally idle workers.
type LeastBusyScheduler struct {
	circuit CircuitChecker
	cursor  uint64
}

// NewLeastBusyScheduler returns a load-aware alternative scheduler.
func NewLeastBusyScheduler(circuit CircuitChecker) *LeastBusyScheduler {
	return &LeastBusyScheduler{circuit: circuit}
}

func (s *LeastBusyScheduler) Select(r *roster, lang pb.Language) (*WorkerInfo, error) {
	ids := r.forLanguage(lang)
	if len(ids) == 0 {
		if r.count() == 0 {
			return nil, ErrNoWorkers
		}
		return nil, ErrNoMatchingWorkers
	}

	var candidates []*WorkerInfo
	for _, id := range ids {
		if s.circuit != nil && s.circuit.IsOpen(id) {
			continue
		}
		if w, ok := r.get(id); ok {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatchingWorkers
	}

	best := candidates[0]
	bestLoad := best.ActiveTasks
	tieCount := 1
	for _, w := range candidates[1:] {
		if w.ActiveTasks < bestLoad {
			best, bestLoad, tieCount = w, w.ActiveTasks, 1
		} else if w.ActiveTasks == bestLoad {
			tieCount++
		}
	}
	if tieCount > 1 {
		idx := atomic.AddUint64(&s.cursor, 1)
		tied := make([]*WorkerInfo, 0, tieCount)
		for _, w := range candidates {
			if w.ActiveTasks == bestLoad {
				tied = append(tied, w)
			}
		}
		best = tied[int(idx)%len(tied)]
	}
	return best, nil
}
