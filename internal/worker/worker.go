// Package worker implements the worker side of the Connect stream: dial
// the producer, send the one-time registration, then serve compile
// requests strictly in the order received, reconnecting with backoff
// whenever the stream drops.
//
// Grounded in the teacher's (now removed) internal/worker/server/grpc.go
// accept loop and internal/worker/executor/native.go dispatch, adapted
// from a server accepting producer-initiated unary calls to a client
// that dials out and serves a bidirectional stream, per spec §4.A's
// reversed connection direction.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/relaycc/relaycc/internal/compiler"
	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/resilience"
	"github.com/relaycc/relaycc/internal/security/tls"
	"github.com/relaycc/relaycc/internal/transport"
)

// DefaultCompileTimeout bounds a single compile invocation; a request
// that runs longer is reported back as a failed result rather than left
// to block the stream indefinitely.
const DefaultCompileTimeout = 2 * time.Minute

// Config describes one worker's identity and connection target.
type Config struct {
	ProducerAddr string
	Lang         pb.Language
	Version      string
	Procarch     string

	// Insecure selects plaintext transport credentials, matching the
	// teacher's LAN-only default deployment. When true, TLS is not consulted.
	Insecure bool

	// TLS configures client transport credentials when Insecure is false.
	TLS tls.Config

	// CompileTimeout bounds a single Compile call; zero means
	// DefaultCompileTimeout.
	CompileTimeout time.Duration

	// Reconnect controls backoff between dial attempts after the stream
	// to the producer drops. Zero value means DefaultReconnectConfig.
	Reconnect resilience.ReconnectConfig
}

func (c Config) withDefaults() Config {
	if c.CompileTimeout == 0 {
		c.CompileTimeout = DefaultCompileTimeout
	}
	if c.Reconnect == (resilience.ReconnectConfig{}) {
		c.Reconnect = resilience.DefaultReconnectConfig()
	}
	return c
}

// Worker serves one toolchain's compile requests for the lifetime of a
// process, one producer connection at a time.
type Worker struct {
	cfg Config
}

// New constructs a Worker for the given configuration.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg.withDefaults()}
}

// Run dials the producer and serves requests until ctx is canceled,
// reconnecting with backoff whenever the stream ends for any other
// reason. It returns nil once ctx is done, or earlier with the error of an
// attempt that cannot be retried, such as TLS credentials that fail to load.
func (w *Worker) Run(ctx context.Context) error {
	err := resilience.Reconnect(ctx, w.cfg.Reconnect, func() error {
		err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return resilience.Permanent(ctx.Err())
		}
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// runOnce dials, registers, and serves requests until the stream errs.
// A non-nil return (other than context cancellation) tells Run to
// reconnect.
func (w *Worker) runOnce(ctx context.Context) error {
	creds := grpc.WithTransportCredentials(insecure.NewCredentials())
	if !w.cfg.Insecure {
		tlsCreds, err := tls.ClientCredentials(w.cfg.TLS)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("worker: load TLS credentials: %w", err))
		}
		if tlsCreds != nil {
			creds = grpc.WithTransportCredentials(tlsCreds)
		}
	}

	conn, err := transport.Dial(w.cfg.ProducerAddr, creds)
	if err != nil {
		return fmt.Errorf("worker: dial producer: %w", err)
	}
	defer conn.Close()

	client := transport.NewCompilerServiceClient(conn)
	stream, err := client.Connect(ctx)
	if err != nil {
		return fmt.Errorf("worker: open stream: %w", err)
	}

	if err := stream.Send(transport.RegisterFrame(&pb.RegisterCompilerService{
		Lang:     w.cfg.Lang,
		Version:  w.cfg.Version,
		Procarch: w.cfg.Procarch,
	})); err != nil {
		return fmt.Errorf("worker: send registration: %w", err)
	}

	log.Info().
		Str("producer", w.cfg.ProducerAddr).
		Str("lang", w.cfg.Lang.String()).
		Msg("registered with producer")

	return w.serve(ctx, stream)
}

// serve loops receiving request frames and sending results, one at a
// time, in exactly the order frames arrive — the single goroutine here
// is itself the FIFO ordering guarantee spec §4.C requires, no separate
// queue needed. It returns the first error Recv or Send produces.
func (w *Worker) serve(ctx context.Context, stream transport.CompilerService_ConnectClient) error {
	for {
		frame, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("worker: producer closed stream")
			}
			return fmt.Errorf("worker: recv: %w", err)
		}
		if frame.Kind != transport.FrameRequest {
			log.Warn().Int("kind", int(frame.Kind)).Msg("unexpected frame kind from producer, ignoring")
			continue
		}

		result := w.handleRequest(ctx, frame)
		if err := stream.Send(transport.ResultFrame(result)); err != nil {
			return fmt.Errorf("worker: send result: %w", err)
		}
	}
}

// handleRequest computes the response for one received request frame,
// in the single-threaded order serve's loop already enforces. A
// request frame that failed to decode still occupies a slot the
// producer's in-flight queue is waiting on (spec §4.C), so it is
// answered with a synthetic failure instead of being skipped.
func (w *Worker) handleRequest(ctx context.Context, frame *transport.Frame) *pb.CompileResult {
	if frame.Err != nil {
		return &pb.CompileResult{Success: false, Output: []byte("malformed request: " + frame.Err.Error())}
	}
	return w.compile(ctx, frame.Request.Code)
}

// compile drives the configured toolchain against one source string,
// bounding the invocation with CompileTimeout and turning every error
// path into a failed CompileResult rather than propagating the error up
// to runOnce, which would needlessly kill the stream over one bad
// submission.
func (w *Worker) compile(ctx context.Context, code string) *pb.CompileResult {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.CompileTimeout)
	defer cancel()

	res, err := compiler.Compile(cctx, w.cfg.Lang, code)
	if err != nil {
		return &pb.CompileResult{Success: false, Output: []byte(err.Error())}
	}
	log.Debug().Dur("duration", res.Duration).Bool("success", res.Success).Msg("compile finished")
	return &pb.CompileResult{Success: res.Success, Output: res.Output}
}
