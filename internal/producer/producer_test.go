package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/transport"
)

// fakeStream is an in-process stand-in for the worker side of a Connect
// stream, letting producer tests drive Recv/Send without a real network
// listener. It implements just enough of grpc.ServerStream to satisfy
// transport.CompilerService_ConnectServer.
type fakeStream struct {
	toProducer   chan *transport.Frame // test -> producer (worker's sends)
	fromProducer chan *transport.Frame // producer -> test (worker's receives)
	ctx          context.Context
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{
		toProducer:   make(chan *transport.Frame, 16),
		fromProducer: make(chan *transport.Frame, 16),
		ctx:          ctx,
	}
}

func (f *fakeStream) Send(frame *transport.Frame) error {
	f.fromProducer <- frame
	return nil
}

func (f *fakeStream) Recv() (*transport.Frame, error) {
	frame, ok := <-f.toProducer
	if !ok {
		return nil, errStreamClosed
	}
	return frame, nil
}

var errStreamClosed = errors.New("fakeStream: closed")

func (f *fakeStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeStream) SetTrailer(metadata.MD)       {}
func (f *fakeStream) Context() context.Context     { return f.ctx }
func (f *fakeStream) SendMsg(m interface{}) error   { return nil }
func (f *fakeStream) RecvMsg(m interface{}) error   { return nil }

// worker is a minimal test double driving a fakeStream the way a real
// worker would: register once, then answer each request in order.
type worker struct {
	stream *fakeStream
	cancel context.CancelFunc
}

func connectWorker(t *testing.T, p *Producer, lang pb.Language) *worker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stream := newFakeStream(ctx)

	go func() {
		_ = p.Connect(stream)
	}()

	stream.toProducer <- transport.RegisterFrame(&pb.RegisterCompilerService{
		Lang: lang, Version: "1.0", Procarch: "x86_64",
	})

	return &worker{stream: stream, cancel: cancel}
}

// answer waits for the next request the producer sent this worker and
// responds with the given result.
func (w *worker) answer(t *testing.T, success bool, output []byte) {
	t.Helper()
	select {
	case frame := <-w.stream.fromProducer:
		if frame.Kind != transport.FrameRequest {
			t.Fatalf("expected a request frame, got kind %d", frame.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched request")
	}
	w.stream.toProducer <- transport.ResultFrame(&pb.CompileResult{Success: success, Output: output})
}

func (w *worker) disconnect() {
	close(w.stream.toProducer)
	w.cancel()
}

func TestDispatchAwaitNextResultHappyPath(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	ctx := context.Background()
	w := connectWorker(t, p, pb.LanguageC)

	if err := p.AwaitWorker(ctx, pb.LanguageC); err != nil {
		t.Fatalf("AwaitWorker: %v", err)
	}

	token, err := p.Dispatch(ctx, pb.LanguageC, "int main(void){return 0;}")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	w.answer(t, true, nil)

	result, err := p.NextResult(ctx)
	if err != nil {
		t.Fatalf("NextResult: %v", err)
	}
	if result.Token != token {
		t.Errorf("token mismatch: got %s, want %s", result.Token, token)
	}
	if !result.Success {
		t.Errorf("expected success")
	}
}

func TestDispatchNoWorkersRegistered(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	_, err := p.Dispatch(context.Background(), pb.LanguageRust, "fn main() {}")
	if !errors.Is(err, ErrNoWorkers) {
		t.Fatalf("got %v, want ErrNoWorkers", err)
	}
}

func TestDispatchNoMatchingLanguage(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	connectWorker(t, p, pb.LanguageC)
	if err := p.AwaitWorker(context.Background(), pb.LanguageC); err != nil {
		t.Fatalf("AwaitWorker: %v", err)
	}

	_, err := p.Dispatch(context.Background(), pb.LanguageRust, "fn main() {}")
	if !errors.Is(err, ErrNoMatchingWorkers) {
		t.Fatalf("got %v, want ErrNoMatchingWorkers", err)
	}
}

func TestAwaitWorkerBlocksUntilRegistration(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- p.AwaitWorker(ctx, pb.LanguageCPP)
	}()

	select {
	case <-done:
		t.Fatal("AwaitWorker returned before any worker registered")
	case <-time.After(50 * time.Millisecond):
	}

	connectWorker(t, p, pb.LanguageCPP)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("AwaitWorker: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitWorker never returned after registration")
	}
}

func TestFIFOOrderingOnOneWorker(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	ctx := context.Background()
	w := connectWorker(t, p, pb.LanguageC)
	if err := p.AwaitWorker(ctx, pb.LanguageC); err != nil {
		t.Fatalf("AwaitWorker: %v", err)
	}

	tokenA, err := p.Dispatch(ctx, pb.LanguageC, "a")
	if err != nil {
		t.Fatalf("Dispatch a: %v", err)
	}
	tokenB, err := p.Dispatch(ctx, pb.LanguageC, "b")
	if err != nil {
		t.Fatalf("Dispatch b: %v", err)
	}

	// Worker answers in the order it received requests, even though the
	// second result happens to report failure.
	w.answer(t, true, nil)
	w.answer(t, false, []byte("syntax error"))

	first, err := p.NextResult(ctx)
	if err != nil {
		t.Fatalf("NextResult: %v", err)
	}
	second, err := p.NextResult(ctx)
	if err != nil {
		t.Fatalf("NextResult: %v", err)
	}

	if first.Token != tokenA || !first.Success {
		t.Errorf("first result = %+v, want token %s success=true", first, tokenA)
	}
	if second.Token != tokenB || second.Success {
		t.Errorf("second result = %+v, want token %s success=false", second, tokenB)
	}
}

func TestDisconnectDrainsInFlightQueue(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	ctx := context.Background()
	w := connectWorker(t, p, pb.LanguageC)
	if err := p.AwaitWorker(ctx, pb.LanguageC); err != nil {
		t.Fatalf("AwaitWorker: %v", err)
	}

	token, err := p.Dispatch(ctx, pb.LanguageC, "int main(void){return 0;}")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// Give the dispatched request a moment to actually reach the fake
	// stream's outbound buffer before disconnecting.
	time.Sleep(20 * time.Millisecond)
	w.disconnect()

	result, err := p.NextResult(ctx)
	if err != nil {
		t.Fatalf("NextResult: %v", err)
	}
	if result.Token != token {
		t.Errorf("token mismatch: got %s, want %s", result.Token, token)
	}
	if result.Success {
		t.Errorf("expected a synthesized failure after disconnect")
	}
}

func TestTwoLanguagesTwoWorkers(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	ctx := context.Background()
	cWorker := connectWorker(t, p, pb.LanguageC)
	rustWorker := connectWorker(t, p, pb.LanguageRust)

	if err := p.AwaitWorker(ctx, pb.LanguageC); err != nil {
		t.Fatalf("AwaitWorker C: %v", err)
	}
	if err := p.AwaitWorker(ctx, pb.LanguageRust); err != nil {
		t.Fatalf("AwaitWorker Rust: %v", err)
	}

	cToken, err := p.Dispatch(ctx, pb.LanguageC, "int main(void){return 0;}")
	if err != nil {
		t.Fatalf("Dispatch C: %v", err)
	}
	rustToken, err := p.Dispatch(ctx, pb.LanguageRust, "fn main() {}")
	if err != nil {
		t.Fatalf("Dispatch Rust: %v", err)
	}

	cWorker.answer(t, true, nil)
	rustWorker.answer(t, true, nil)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		r, err := p.NextResult(ctx)
		if err != nil {
			t.Fatalf("NextResult: %v", err)
		}
		seen[r.Token] = true
	}
	if !seen[cToken] || !seen[rustToken] {
		t.Errorf("expected both tokens to resolve, got %v", seen)
	}
}
