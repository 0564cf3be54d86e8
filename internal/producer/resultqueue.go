package producer

import (
	"context"
	"sync"
)

// DispatchResult is what next_result() hands back to a caller: the token
// dispatch returned, and whatever the worker (or a synthesized
// disconnect) reported for it.
type DispatchResult struct {
	Token   string
	Success bool
	Output  []byte
}

// resultQueue is the "global result channel" §4.D describes: an
// unbounded FIFO that next_result blocks on, with any number of
// concurrent poppers (spec §4.E — dispatch/next_result are safe for
// concurrent callers; each gRPC NextResult call runs on its own
// goroutine). A plain channel-based notify with a buffer of 1 drops
// wakeups once more than one popper is waiting, stranding a pushed
// result until some unrelated later push happens to re-signal it — so
// this uses a sync.Cond, which Broadcasts every push to all waiters;
// each one re-checks the queue under the lock before taking an item,
// which is exactly the condition-variable pattern the standard library
// provides for "wake every waiter, let them fight over the predicate."
type resultQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []DispatchResult
}

func newResultQueue() *resultQueue {
	q := &resultQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a result and wakes every blocked popper.
func (q *resultQueue) push(r DispatchResult) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// len reports how many resolved results are waiting to be drained.
func (q *resultQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pop blocks until a result is available or ctx is done.
func (q *resultQueue) pop(ctx context.Context) (DispatchResult, error) {
	// sync.Cond.Wait only wakes on Broadcast/Signal, so a canceled ctx
	// needs its own broadcast to unstick this particular waiter.
	stop := context.AfterFunc(ctx, q.cond.Broadcast)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if err := ctx.Err(); err != nil {
			return DispatchResult{}, err
		}
		q.cond.Wait()
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, nil
}
