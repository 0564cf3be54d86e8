// Package chaos exercises the producer's resilience under worker and
// client failures: a worker dropping mid-stream, every worker for a
// language disconnecting, and a burst of concurrent dispatches. Grounded in
// the teacher's test/chaos/chaos_test.go (worker-failure, circuit-breaker
// recovery, graceful-degradation, network-partition scenarios), adapted
// from a flag-driven external-cluster harness to an in-process
// producer-plus-worker cluster so these scenarios can run without a
// deployed environment, and from the teacher's BuildService/artifact
// protocol to relaycc's dispatch/await_worker/next_result protocol
// (spec §4.E).
//
// Run with: go test -v -tags=chaos ./test/chaos/...
//
//go:build chaos

package chaos

import (
	"context"
	"flag"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/relaycc/relaycc/internal/client"
	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/producer"
	"github.com/relaycc/relaycc/internal/transport"
	"github.com/relaycc/relaycc/internal/worker"
)

var chaosTimeout = flag.Duration("timeout", 5*time.Minute, "overall test timeout")

type cluster struct {
	addr   string
	p      *producer.Producer
	server *grpc.Server
}

func startCluster(t *testing.T) *cluster {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := producer.New(producer.Config{})
	srv := grpc.NewServer()
	transport.RegisterCompilerServiceServer(srv, p)
	transport.RegisterClientAPIServer(srv, producer.NewClientAPIServer(p))
	go srv.Serve(lis)
	return &cluster{addr: lis.Addr().String(), p: p, server: srv}
}

func (c *cluster) stop() {
	c.server.Stop()
	c.p.Close()
}

// startWorker returns a cancel func that disconnects the worker,
// simulating a crash or network partition.
func startWorker(addr string, lang pb.Language) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(worker.Config{
		ProducerAddr: addr,
		Lang:         lang,
		Version:      "chaos",
		Procarch:     "test/test",
		Insecure:     true,
	})
	go w.Run(ctx)
	return cancel
}

// TestChaos_WorkerFailureMidStream kills one of two workers serving the
// same language while dispatches are in flight and checks the surviving
// worker keeps the system answering.
func TestChaos_WorkerFailureMidStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), *chaosTimeout)
	defer cancel()

	c := startCluster(t)
	defer c.stop()

	stopA := startWorker(c.addr, pb.LanguageC)
	stopB := startWorker(c.addr, pb.LanguageC)
	defer stopB()

	cli, err := client.Dial(client.Config{ProducerAddr: c.addr, Insecure: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	awaitCtx, awaitCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := cli.AwaitWorker(awaitCtx, pb.LanguageC); err != nil {
		awaitCancel()
		t.Fatalf("await_worker: %v", err)
	}
	awaitCancel()

	var successCount, failCount int64
	var wg sync.WaitGroup
	stopSending := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		n := 0
		for {
			select {
			case <-stopSending:
				return
			default:
				n++
				dctx, dcancel := context.WithTimeout(ctx, 5*time.Second)
				_, err := cli.Dispatch(dctx, pb.LanguageC, fmt.Sprintf("int chaos_%d(void) { return %d; }", n, n%128))
				dcancel()
				if err != nil {
					atomic.AddInt64(&failCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	time.Sleep(500 * time.Millisecond)
	t.Log("killing worker A mid-stream")
	stopA()
	time.Sleep(1 * time.Second)

	close(stopSending)
	wg.Wait()

	dispatched := atomic.LoadInt64(&successCount)
	t.Logf("dispatched=%d failed_to_dispatch=%d", dispatched, atomic.LoadInt64(&failCount))
	if dispatched == 0 {
		t.Fatal("no dispatches succeeded after worker failure; producer may be wedged")
	}

	drained := 0
	for drained < int(dispatched) {
		rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
		if _, err := cli.NextResult(rctx); err != nil {
			rcancel()
			t.Fatalf("next_result: %v (drained %d/%d)", err, drained, dispatched)
		}
		rcancel()
		drained++
	}
}

// TestChaos_AwaitWorkerBlocksWhenAllWorkersGone checks that once every worker
// for a language disconnects, await_worker blocks new clients rather than
// routing to a dead worker.
func TestChaos_AwaitWorkerBlocksWhenAllWorkersGone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), *chaosTimeout)
	defer cancel()

	c := startCluster(t)
	defer c.stop()

	stop := startWorker(c.addr, pb.LanguageRust)

	cli, err := client.Dial(client.Config{ProducerAddr: c.addr, Insecure: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	awaitCtx, awaitCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := cli.AwaitWorker(awaitCtx, pb.LanguageRust); err != nil {
		awaitCancel()
		t.Fatalf("await_worker before failure: %v", err)
	}
	awaitCancel()

	stop()
	time.Sleep(500 * time.Millisecond)

	blockedCtx, blockedCancel := context.WithTimeout(ctx, 1*time.Second)
	defer blockedCancel()
	err = cli.AwaitWorker(blockedCtx, pb.LanguageRust)
	if err == nil {
		t.Fatal("expected await_worker to block/time out once the only rust worker is gone")
	}
	t.Logf("await_worker correctly blocked after the only worker disconnected: %v", err)
}

// TestChaos_BurstLoad fires a concurrent burst of dispatches at a single
// worker and checks the producer stays responsive under contention on
// its single command-queue goroutine.
func TestChaos_BurstLoad(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), *chaosTimeout)
	defer cancel()

	c := startCluster(t)
	defer c.stop()

	stop := startWorker(c.addr, pb.LanguageC)
	defer stop()

	cli, err := client.Dial(client.Config{ProducerAddr: c.addr, Insecure: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cli.Close()

	awaitCtx, awaitCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := cli.AwaitWorker(awaitCtx, pb.LanguageC); err != nil {
		awaitCancel()
		t.Fatalf("await_worker: %v", err)
	}
	awaitCancel()

	const burst = 50
	var wg sync.WaitGroup
	var successCount, failCount int64

	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			dctx, dcancel := context.WithTimeout(ctx, 10*time.Second)
			defer dcancel()
			if _, err := cli.Dispatch(dctx, pb.LanguageC, fmt.Sprintf("int burst_%d(void) { return %d; }", n, n)); err != nil {
				atomic.AddInt64(&failCount, 1)
				return
			}
			atomic.AddInt64(&successCount, 1)
		}(i)
	}
	wg.Wait()

	t.Logf("burst dispatch: success=%d failed=%d", atomic.LoadInt64(&successCount), atomic.LoadInt64(&failCount))
	if atomic.LoadInt64(&successCount) == 0 {
		t.Fatal("all dispatches failed under burst load")
	}

	for i := int64(0); i < atomic.LoadInt64(&successCount); i++ {
		rctx, rcancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := cli.NextResult(rctx)
		rcancel()
		if err != nil {
			t.Fatalf("next_result %d/%d: %v", i+1, successCount, err)
		}
	}
}
