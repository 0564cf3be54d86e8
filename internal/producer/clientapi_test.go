package producer

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/relaycc/relaycc/internal/pb"
)

func TestClientAPIServerDispatchNoWorkers(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	api := NewClientAPIServer(p)

	_, err := api.Dispatch(context.Background(), &pb.DispatchRequest{Lang: pb.LanguageC, Code: "x"})
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unavailable {
		t.Fatalf("got %v, want codes.Unavailable", err)
	}
}

func TestClientAPIServerDispatchAndNextResult(t *testing.T) {
	p := New(Config{})
	defer p.Close()
	api := NewClientAPIServer(p)

	w := connectWorker(t, p, pb.LanguageC)
	ctx := context.Background()
	if _, err := api.AwaitWorker(ctx, &pb.AwaitWorkerRequest{Lang: pb.LanguageC}); err != nil {
		t.Fatalf("AwaitWorker: %v", err)
	}

	resp, err := api.Dispatch(ctx, &pb.DispatchRequest{Lang: pb.LanguageC, Code: "int main(void){return 0;}"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	w.answer(t, true, nil)

	result, err := api.NextResult(ctx, &pb.Empty{})
	if err != nil {
		t.Fatalf("NextResult: %v", err)
	}
	if result.Token != resp.Token {
		t.Errorf("token mismatch: got %s, want %s", result.Token, resp.Token)
	}
	if !result.Success {
		t.Errorf("expected success")
	}
}
