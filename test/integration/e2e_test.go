// Package integration drives the producer and worker processes over
// real gRPC (bufconn-free, on loopback TCP) to exercise the full
// dispatch -> await_worker -> next_result path end to end, grounded in
// the teacher's test/integration/e2e_test.go harness shape (one
// coordinator, one worker, one client, direct assertions on the
// response), adapted to relaycc's single-call client API and
// worker-dials-producer connection direction (spec §4.A, §4.E).
package integration

import (
	"context"
	"net"
	"os/exec"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/relaycc/relaycc/internal/client"
	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/producer"
	"github.com/relaycc/relaycc/internal/transport"
	"github.com/relaycc/relaycc/internal/worker"
)

// startProducer brings up a producer gRPC server on an ephemeral loopback
// port and returns its address and a teardown func.
func startProducer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	p := producer.New(producer.Config{})
	grpcServer := grpc.NewServer()
	transport.RegisterCompilerServiceServer(grpcServer, p)
	transport.RegisterClientAPIServer(grpcServer, producer.NewClientAPIServer(p))

	go grpcServer.Serve(lis)

	return lis.Addr().String(), func() {
		grpcServer.Stop()
		p.Close()
	}
}

// startWorker runs a worker against addr until ctx is canceled.
func startWorker(ctx context.Context, addr string, lang pb.Language) {
	w := worker.New(worker.Config{
		ProducerAddr: addr,
		Lang:         lang,
		Version:      "test",
		Procarch:     "test/test",
		Insecure:     true,
	})
	go w.Run(ctx)
}

func TestE2E_DispatchAwaitWorkerNextResult(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not found, skipping E2E compile test")
	}

	addr, stop := startProducer(t)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWorker(ctx, addr, pb.LanguageC)

	cli, err := client.Dial(client.Config{ProducerAddr: addr, Insecure: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("dial producer: %v", err)
	}
	defer cli.Close()

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	if err := cli.AwaitWorker(awaitCtx, pb.LanguageC); err != nil {
		t.Fatalf("await_worker: %v", err)
	}

	dispatchCtx, dispatchCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatchCancel()
	token, err := cli.Dispatch(dispatchCtx, pb.LanguageC, "int main(void) { return 0; }")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty dispatch token")
	}

	resultCtx, resultCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer resultCancel()
	result, err := cli.NextResult(resultCtx)
	if err != nil {
		t.Fatalf("next_result: %v", err)
	}
	if result.Token != token {
		t.Fatalf("result token %q does not match dispatch token %q", result.Token, token)
	}
	if !result.Success {
		t.Fatalf("expected successful compile, got output: %s", result.Output)
	}
}

func TestE2E_CompileErrorReturnsDiagnostics(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not found, skipping E2E compile error test")
	}

	addr, stop := startProducer(t)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWorker(ctx, addr, pb.LanguageC)

	cli, err := client.Dial(client.Config{ProducerAddr: addr, Insecure: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("dial producer: %v", err)
	}
	defer cli.Close()

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	if err := cli.AwaitWorker(awaitCtx, pb.LanguageC); err != nil {
		t.Fatalf("await_worker: %v", err)
	}

	dispatchCtx, dispatchCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatchCancel()
	token, err := cli.Dispatch(dispatchCtx, pb.LanguageC, "this is not valid C code { syntax error }")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	resultCtx, resultCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer resultCancel()
	result, err := cli.NextResult(resultCtx)
	if err != nil {
		t.Fatalf("next_result: %v", err)
	}
	if result.Token != token {
		t.Fatalf("result token %q does not match dispatch token %q", result.Token, token)
	}
	if result.Success {
		t.Fatal("expected compile failure for invalid source")
	}
	if len(result.Output) == 0 {
		t.Error("expected non-empty diagnostics on failure")
	}
}

func TestE2E_MultipleClientsShareResultStream(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not found, skipping E2E multi-client test")
	}

	addr, stop := startProducer(t)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWorker(ctx, addr, pb.LanguageC)

	cliA, err := client.Dial(client.Config{ProducerAddr: addr, Insecure: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("dial producer (client A): %v", err)
	}
	defer cliA.Close()

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	if err := cliA.AwaitWorker(awaitCtx, pb.LanguageC); err != nil {
		t.Fatalf("await_worker: %v", err)
	}

	cliB, err := client.Dial(client.Config{ProducerAddr: addr, Insecure: true, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("dial producer (client B): %v", err)
	}
	defer cliB.Close()

	dispatchCtx, dispatchCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatchCancel()
	tokenA, err := cliA.Dispatch(dispatchCtx, pb.LanguageC, "int main(void) { return 1; }")
	if err != nil {
		t.Fatalf("dispatch from client A: %v", err)
	}
	tokenB, err := cliB.Dispatch(dispatchCtx, pb.LanguageC, "int main(void) { return 2; }")
	if err != nil {
		t.Fatalf("dispatch from client B: %v", err)
	}
	if tokenA == tokenB {
		t.Fatal("expected distinct dispatch tokens for distinct requests")
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		resultCtx, resultCancel := context.WithTimeout(context.Background(), 10*time.Second)
		result, err := cliA.NextResult(resultCtx)
		resultCancel()
		if err != nil {
			t.Fatalf("next_result: %v", err)
		}
		seen[result.Token] = true
	}
	if !seen[tokenA] || !seen[tokenB] {
		t.Fatalf("expected both tokens in the shared result stream, got %v", seen)
	}
}
