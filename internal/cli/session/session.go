// Package session is the relaycc CLI's compile orchestration layer: it
// owns one producer connection for the process lifetime and drives a
// single source file through await_worker -> dispatch -> next_result,
// with the retry/backoff shape the teacher's build service used for its
// remote leg (internal/cli/build/build.go) adapted to relaycc's
// boolean-success-plus-diagnostics protocol (spec §4.E, Non-goals:
// no artifact capture, no caching, no local fallback).
package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaycc/relaycc/internal/client"
	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/security/tls"
)

// Config holds CLI session configuration.
type Config struct {
	ProducerAddr string
	Insecure     bool
	TLS          tls.Config
	Timeout      time.Duration
	Verbose      bool
	MaxRetries   int           // max dispatch attempts for transient failures
	RetryDelay   time.Duration // initial delay between retries
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProducerAddr: "localhost:50051",
		Insecure:     true,
		Timeout:      5 * time.Minute,
		Verbose:      false,
		MaxRetries:   3,
		RetryDelay:   100 * time.Millisecond,
	}
}

// producerClient is the subset of *client.Client a Service needs;
// narrowed to an interface so tests can swap in a fake producer without
// a real gRPC connection.
type producerClient interface {
	Dispatch(ctx context.Context, lang pb.Language, code string) (string, error)
	AwaitWorker(ctx context.Context, lang pb.Language) error
	NextResult(ctx context.Context) (client.Result, error)
	Close() error
}

// Service drives compiles for the relaycc CLI against one producer.
type Service struct {
	client     producerClient
	verbose    bool
	maxRetries int
	retryDelay time.Duration
}

// New dials the producer named in cfg and returns a ready Service.
func New(cfg Config) (*Service, error) {
	c, err := client.Dial(client.Config{
		ProducerAddr: cfg.ProducerAddr,
		Insecure:     cfg.Insecure,
		TLS:          cfg.TLS,
		Timeout:      cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	return &Service{
		client:     c,
		verbose:    cfg.Verbose,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// Close tears down the producer connection.
func (s *Service) Close() error {
	return s.client.Close()
}

// Request is one file to compile remotely.
type Request struct {
	SourceFile string
	Lang       pb.Language
	Timeout    time.Duration
}

// Result is the resolved outcome of a Request.
type Result struct {
	Token    string
	Success  bool
	Output   []byte
	Duration time.Duration
}

// Compile reads req.SourceFile, waits for a worker of req.Lang if none is
// connected yet, dispatches it, and blocks for the matching result.
// The global result channel is shared and FIFO (spec §4.D): other
// clients' results may arrive first, so NextResult is polled in a loop
// until the token dispatch returned comes back.
func (s *Service) Compile(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	source, err := os.ReadFile(req.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.client.AwaitWorker(ctx, req.Lang); err != nil {
		return nil, fmt.Errorf("await worker for %s: %w", req.Lang, err)
	}

	token, err := s.dispatchWithRetry(ctx, req.Lang, string(source))
	if err != nil {
		return nil, err
	}

	if s.verbose {
		log.Debug().Str("file", req.SourceFile).Str("token", token).Msg("dispatched compile")
	}

	for {
		res, err := s.client.NextResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("await result for %s: %w", token, err)
		}
		if res.Token != token {
			// Belongs to a different dispatch sharing the producer's
			// global result channel; not ours, keep waiting.
			continue
		}
		return &Result{
			Token:    res.Token,
			Success:  res.Success,
			Output:   res.Output,
			Duration: time.Since(start),
		}, nil
	}
}

// dispatchWithRetry calls Dispatch, retrying transient transport errors
// with exponential backoff capped at 5s (same cap the teacher's
// compileRemote used).
func (s *Service) dispatchWithRetry(ctx context.Context, lang pb.Language, code string) (string, error) {
	var lastErr error
	delay := s.retryDelay

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			if s.verbose {
				log.Debug().Int("attempt", attempt+1).Int("max_retries", s.maxRetries).Dur("delay", delay).Msg("retrying dispatch")
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}
		}

		token, err := s.client.Dispatch(ctx, lang, code)
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return "", err
		}
		return token, nil
	}

	return "", fmt.Errorf("dispatch failed after %d attempts: %w", s.maxRetries, lastErr)
}

// AwaitWorker blocks until the producer reports at least one worker for
// lang, or ctx is done. Useful for a CLI to fail fast with a clear
// message instead of hanging on the first Compile call.
func (s *Service) AwaitWorker(ctx context.Context, lang pb.Language) error {
	return s.client.AwaitWorker(ctx, lang)
}

// isRetryableError reports whether err looks like a transient transport
// failure worth retrying (network errors, timeouts), as opposed to a
// protocol-level rejection that retrying won't fix.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline") ||
		strings.Contains(errStr, "unavailable") ||
		strings.Contains(errStr, "Unavailable") ||
		strings.Contains(errStr, "reset") ||
		strings.Contains(errStr, "EOF")
}
