package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaycc/relaycc/internal/client"
	"github.com/relaycc/relaycc/internal/pb"
)

type fakeClient struct {
	dispatchToken string
	dispatchErrs  []error // consumed in order, one per call
	results       []client.Result
	resultErr     error
	closed        bool
}

func (f *fakeClient) Dispatch(context.Context, pb.Language, string) (string, error) {
	if len(f.dispatchErrs) > 0 {
		err := f.dispatchErrs[0]
		f.dispatchErrs = f.dispatchErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.dispatchToken, nil
}

func (f *fakeClient) AwaitWorker(context.Context, pb.Language) error {
	return nil
}

func (f *fakeClient) NextResult(context.Context) (client.Result, error) {
	if f.resultErr != nil {
		return client.Result{}, f.resultErr
	}
	if len(f.results) == 0 {
		return client.Result{}, errors.New("no more scripted results")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func writeSource(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.c")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ProducerAddr != "localhost:50051" {
		t.Errorf("unexpected ProducerAddr: %s", cfg.ProducerAddr)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.MaxRetries)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("expected 5 minute timeout, got %v", cfg.Timeout)
	}
}

func TestServiceCompile_SkipsForeignResult(t *testing.T) {
	src := writeSource(t, "int main(void) { return 0; }")
	fc := &fakeClient{
		dispatchToken: "tok-1",
		results: []client.Result{
			{Token: "tok-other", Success: false, Output: []byte("not mine")},
			{Token: "tok-1", Success: true, Output: []byte("ok")},
		},
	}
	svc := &Service{client: fc, maxRetries: 1, retryDelay: time.Millisecond}

	res, err := svc.Compile(context.Background(), Request{SourceFile: src, Lang: pb.LanguageC})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Token != "tok-1" || !res.Success || string(res.Output) != "ok" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestServiceCompile_MissingSourceFile(t *testing.T) {
	fc := &fakeClient{dispatchToken: "tok-1"}
	svc := &Service{client: fc, maxRetries: 1, retryDelay: time.Millisecond}

	_, err := svc.Compile(context.Background(), Request{SourceFile: "/does/not/exist.c", Lang: pb.LanguageC})
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestServiceCompile_RetriesTransientDispatchError(t *testing.T) {
	src := writeSource(t, "fn main() {}")
	fc := &fakeClient{
		dispatchToken: "tok-2",
		dispatchErrs:  []error{errors.New("connection refused"), nil},
		results:       []client.Result{{Token: "tok-2", Success: true, Output: []byte("built")}},
	}
	svc := &Service{client: fc, maxRetries: 3, retryDelay: time.Millisecond}

	res, err := svc.Compile(context.Background(), Request{SourceFile: src, Lang: pb.LanguageRust})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Token != "tok-2" {
		t.Errorf("token = %q, want tok-2", res.Token)
	}
}

func TestServiceCompile_NonRetryableDispatchError(t *testing.T) {
	src := writeSource(t, "int main(void) { return 0; }")
	fc := &fakeClient{dispatchErrs: []error{errors.New("invalid language")}}
	svc := &Service{client: fc, maxRetries: 3, retryDelay: time.Millisecond}

	_, err := svc.Compile(context.Background(), Request{SourceFile: src, Lang: pb.LanguageC})
	if err == nil {
		t.Fatal("expected non-retryable dispatch error to surface immediately")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("rpc error: code = Unavailable"), true},
		{errors.New("EOF"), true},
		{errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestServiceClose(t *testing.T) {
	fc := &fakeClient{}
	svc := &Service{client: fc}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fc.closed {
		t.Error("expected underlying client to be closed")
	}
}
