package producer

import (
	"time"

	"github.com/relaycc/relaycc/internal/pb"
)

// WorkerInfo describes one connected worker, narrowed from the teacher's
// registry.WorkerInfo to the fields relaycc's data model (spec §3)
// actually carries: a language, the two informational registration
// strings, and the bookkeeping dispatch needs. There is no
// cross-architecture capability matching here — a worker registers for
// exactly one Language and only ever receives requests for it.
type WorkerInfo struct {
	ID           string
	Lang         pb.Language
	Version      string
	Procarch     string
	RegisteredAt time.Time

	ActiveTasks     int
	TotalTasks      int64
	SuccessfulTasks int64
	FailedTasks     int64

	// InFlight holds the tokens for requests already sent to this worker,
	// oldest first. A result frame received on the worker's stream always
	// resolves InFlight[0] — this FIFO is the entire correlation
	// mechanism, since pb.CompileResult carries no token of its own (spec
	// §4.D/§8 P2).
	InFlight []string
}

// roster tracks, per language, the worker IDs registered for it in
// registration order — the FIFO head is roster.order[lang][0]. This plays the
// role of the teacher's registry.Registry, but keyed by Language instead
// of a generic capability match, and mutated only from the producer's
// single command-processing goroutine, so it carries no lock of its own.
type roster struct {
	workers map[string]*WorkerInfo
	order   map[pb.Language][]string
}

func newRoster() *roster {
	return &roster{
		workers: make(map[string]*WorkerInfo),
		order:   make(map[pb.Language][]string),
	}
}

func (r *roster) add(w *WorkerInfo) {
	r.workers[w.ID] = w
	r.order[w.Lang] = append(r.order[w.Lang], w.ID)
}

func (r *roster) remove(id string) *WorkerInfo {
	w, ok := r.workers[id]
	if !ok {
		return nil
	}
	delete(r.workers, id)

	ids := r.order[w.Lang]
	for i, existing := range ids {
		if existing == id {
			r.order[w.Lang] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return w
}

func (r *roster) get(id string) (*WorkerInfo, bool) {
	w, ok := r.workers[id]
	return w, ok
}

// forLanguage returns the registered worker IDs for lang, in the
// registration order that makes up the FIFO roster head a scheduler
// picks from.
func (r *roster) forLanguage(lang pb.Language) []string {
	return r.order[lang]
}

func (r *roster) count() int {
	return len(r.workers)
}
