// Package producer implements the routing core (spec §4.D): a single
// command-processing goroutine that owns the per-language roster and
// per-worker in-flight queues, reached only through Dispatch, AwaitWorker
// and NextResult — the client-facing API of §4.E sits directly on top of
// these three calls.
//
// Grounded in the teacher's internal/coordinator/server/grpc.go for the
// overall "accept connection, track worker, forward work" shape, but
// restructured around a single owning goroutine (the command queue
// alternative spec §5 offers) instead of a registry protected by a
// sync.RWMutex plus a scheduler that dials out per request.
package producer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/relaycc/relaycc/internal/observability/metrics"
	"github.com/relaycc/relaycc/internal/pb"
	"github.com/relaycc/relaycc/internal/resilience"
	"github.com/relaycc/relaycc/internal/transport"
)

// ErrMalformedRegistration is returned when a newly-connected worker's
// first frame is not a registration.
var ErrMalformedRegistration = errors.New("producer: first frame on a connection must be a registration")

// errOutboundClosed is the sentinel fed through the circuit breaker when
// a worker's outbound channel buffer is full, so the request frame cannot
// be queued without blocking.
var errOutboundClosed = errors.New("producer: worker outbound channel closed")

// Config configures a Producer.
type Config struct {
	// Scheduler picks which registered worker a dispatch lands on.
	// Defaults to RoundRobinScheduler, the spec's mandated FIFO
	// roster-head behavior.
	Scheduler Scheduler

	// Circuit controls per-worker circuit breaking. Defaults to a
	// resilience.CircuitManager with resilience.DefaultCircuitConfig().
	Circuit *resilience.CircuitManager

	// OutboundBufferSize bounds how many undelivered request frames may
	// queue for one worker; a Dispatch to that worker while its buffer is
	// full fails with errOutboundClosed instead of blocking. Default 64.
	OutboundBufferSize int

	// Metrics records Prometheus series for registrations, dispatches and
	// results. Defaults to metrics.Default(), the process-wide singleton
	// registered against prometheus.DefaultRegisterer.
	Metrics *metrics.Metrics
}

func (c *Config) setDefaults() {
	if c.Circuit == nil {
		c.Circuit = resilience.NewCircuitManager(resilience.DefaultCircuitConfig())
	}
	if c.Scheduler == nil {
		c.Scheduler = NewRoundRobinScheduler(c.Circuit)
	}
	if c.OutboundBufferSize <= 0 {
		c.OutboundBufferSize = 64
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Default()
	}
}

// Producer is the routing core. It implements
// transport.CompilerServiceServer: each accepted worker stream runs
// through Connect for its entire lifetime.
type Producer struct {
	cfg Config

	roster    *roster
	outbound  map[string]chan *transport.Frame
	awaiters  map[pb.Language][]chan struct{}
	results   *resultQueue
	cmdCh     chan any
	closeOnce chan struct{}
	startedAt time.Time

	// dispatchedAt tracks per-token dispatch start times purely for
	// RecordCompileComplete's duration label; it plays no part in result
	// correlation, which is InFlight-FIFO only.
	dispatchedAt map[string]time.Time
}

// New creates a Producer and starts its command-processing goroutine.
func New(cfg Config) *Producer {
	cfg.setDefaults()
	p := &Producer{
		cfg:       cfg,
		roster:    newRoster(),
		outbound:  make(map[string]chan *transport.Frame),
		awaiters:  make(map[pb.Language][]chan struct{}),
		results:   newResultQueue(),
		cmdCh:        make(chan any, 256),
		closeOnce:    make(chan struct{}),
		startedAt:    time.Now(),
		dispatchedAt: make(map[string]time.Time),
	}
	p.cfg.Circuit.OnStateChange(func(workerID string, from, to resilience.CircuitState) {
		p.cfg.Metrics.SetCircuitState(workerID, circuitMetricValue(to))
	})
	go p.run()
	return p
}

func circuitMetricValue(s resilience.CircuitState) metrics.CircuitStateValue {
	switch s {
	case resilience.CircuitOpen:
		return metrics.CircuitStateOpen
	case resilience.CircuitHalfOpen:
		return metrics.CircuitStateHalfOpen
	default:
		return metrics.CircuitStateClosed
	}
}

// Close stops the command-processing goroutine. In-flight streams are
// left to their callers to tear down.
func (p *Producer) Close() {
	close(p.closeOnce)
}

// --- command types, all processed only inside run() ---

type registerCmd struct {
	lang     pb.Language
	version  string
	procarch string
	out      chan *transport.Frame
	resp     chan string
}

type dispatchCmd struct {
	lang pb.Language
	code string
	resp chan dispatchResp
}

type dispatchResp struct {
	token string
	err   error
}

type resultCmd struct {
	workerID string
	result   *pb.CompileResult
}

type disconnectCmd struct {
	workerID string
}

type awaitCmd struct {
	lang pb.Language
	done chan struct{}
}

type statsCmd struct {
	resp chan []WorkerInfo
}

func (p *Producer) run() {
	for {
		select {
		case <-p.closeOnce:
			return
		case raw := <-p.cmdCh:
			switch cmd := raw.(type) {
			case registerCmd:
				p.handleRegister(cmd)
			case dispatchCmd:
				p.handleDispatch(cmd)
			case resultCmd:
				p.handleResult(cmd)
			case disconnectCmd:
				p.handleDisconnect(cmd)
			case awaitCmd:
				p.handleAwait(cmd)
			case statsCmd:
				p.handleStats(cmd)
			}
		}
	}
}

func (p *Producer) handleRegister(cmd registerCmd) {
	id := uuid.NewString()
	w := &WorkerInfo{
		ID:           id,
		Lang:         cmd.lang,
		Version:      cmd.version,
		Procarch:     cmd.procarch,
		RegisteredAt: time.Now(),
	}
	p.roster.add(w)
	p.outbound[id] = cmd.out

	log.Info().
		Str("worker_id", id).
		Str("lang", cmd.lang.String()).
		Str("version", cmd.version).
		Str("procarch", cmd.procarch).
		Msg("worker registered")

	cmd.resp <- id
	p.cfg.Metrics.SetWorkerCount(cmd.lang.String(), float64(len(p.roster.forLanguage(cmd.lang))))

	waiters := p.awaiters[cmd.lang]
	delete(p.awaiters, cmd.lang)
	for _, done := range waiters {
		close(done)
	}
}

func (p *Producer) handleDispatch(cmd dispatchCmd) {
	w, err := p.cfg.Scheduler.Select(p.roster, cmd.lang)
	if err != nil {
		cmd.resp <- dispatchResp{err: err}
		return
	}

	token := dispatchToken(w.ID, cmd.code)
	frame := transport.RequestFrame(&pb.CompileRequest{Code: cmd.code})

	out, ok := p.outbound[w.ID]
	if !ok {
		cmd.resp <- dispatchResp{err: fmt.Errorf("producer: worker %s has no outbound channel", w.ID)}
		return
	}

	dispatchStart := time.Now()
	_, sendErr := p.cfg.Circuit.Execute(w.ID, func() (interface{}, error) {
		select {
		case out <- frame:
			return nil, nil
		default:
			return nil, errOutboundClosed
		}
	})
	p.cfg.Metrics.RecordDispatchLatency(w.ID, float64(time.Since(dispatchStart).Milliseconds()))
	if sendErr != nil {
		cmd.resp <- dispatchResp{err: fmt.Errorf("producer: dispatch to worker %s: %w", w.ID, sendErr)}
		return
	}

	w.InFlight = append(w.InFlight, token)
	w.ActiveTasks++
	w.TotalTasks++
	p.dispatchedAt[token] = dispatchStart
	p.cfg.Metrics.SetActiveTaskCount(w.ID, float64(w.ActiveTasks))

	cmd.resp <- dispatchResp{token: token}
}

func (p *Producer) handleResult(cmd resultCmd) {
	w, ok := p.roster.get(cmd.workerID)
	if !ok {
		log.Warn().Str("worker_id", cmd.workerID).Msg("result from unknown/disconnected worker, dropping")
		return
	}
	if len(w.InFlight) == 0 {
		log.Warn().Str("worker_id", cmd.workerID).Msg("unexpected result with empty in-flight queue, dropping")
		return
	}

	token := w.InFlight[0]
	w.InFlight = w.InFlight[1:]
	if w.ActiveTasks > 0 {
		w.ActiveTasks--
	}
	if cmd.result.Success {
		w.SuccessfulTasks++
	} else {
		w.FailedTasks++
	}
	p.cfg.Metrics.SetActiveTaskCount(w.ID, float64(w.ActiveTasks))

	status := metrics.CompileStatusFailure
	if cmd.result.Success {
		status = metrics.CompileStatusSuccess
	}
	lang := w.Lang.String()
	var durationSec float64
	if start, ok := p.dispatchedAt[token]; ok {
		durationSec = time.Since(start).Seconds()
		delete(p.dispatchedAt, token)
	}
	p.cfg.Metrics.RecordCompileComplete(lang, status, durationSec, float64(len(cmd.result.Output)))

	p.results.push(DispatchResult{
		Token:   token,
		Success: cmd.result.Success,
		Output:  cmd.result.Output,
	})
	p.cfg.Metrics.SetPendingResults(float64(p.results.len()))
}

func (p *Producer) handleDisconnect(cmd disconnectCmd) {
	w := p.roster.remove(cmd.workerID)
	if w == nil {
		return
	}
	// Closing out lets the per-worker sender goroutine's `range out` in
	// Connect drain and return; leaving it open leaks that goroutine (and
	// the channel) on every disconnect/reconnect. handleDisconnect only
	// ever runs once per worker ID (roster.remove above is the guard), so
	// this is a single close despite Connect's sender and receiver loops
	// both being able to trigger a disconnectCmd for the same worker.
	if out, ok := p.outbound[cmd.workerID]; ok {
		close(out)
	}
	delete(p.outbound, cmd.workerID)
	p.cfg.Circuit.Remove(cmd.workerID)
	p.cfg.Metrics.RemoveWorkerMetrics(cmd.workerID)
	p.cfg.Metrics.SetWorkerCount(w.Lang.String(), float64(len(p.roster.forLanguage(w.Lang))))

	log.Info().Str("worker_id", cmd.workerID).Int("drained", len(w.InFlight)).Msg("worker disconnected, draining in-flight queue")

	for _, token := range w.InFlight {
		delete(p.dispatchedAt, token)
		p.results.push(DispatchResult{
			Token:   token,
			Success: false,
			Output:  []byte("worker disconnected before completion"),
		})
	}
	p.cfg.Metrics.SetPendingResults(float64(p.results.len()))
}

func (p *Producer) handleAwait(cmd awaitCmd) {
	if len(p.roster.forLanguage(cmd.lang)) > 0 {
		close(cmd.done)
		return
	}
	p.awaiters[cmd.lang] = append(p.awaiters[cmd.lang], cmd.done)
}

func (p *Producer) handleStats(cmd statsCmd) {
	out := make([]WorkerInfo, 0, p.roster.count())
	for _, w := range p.roster.workers {
		out = append(out, *w)
	}
	cmd.resp <- out
}

// Dispatch sends code for compilation to the roster-head worker
// registered for lang and returns its correlation token immediately,
// without waiting for a result (spec §4.D/§4.E).
func (p *Producer) Dispatch(ctx context.Context, lang pb.Language, code string) (string, error) {
	resp := make(chan dispatchResp, 1)
	select {
	case p.cmdCh <- dispatchCmd{lang: lang, code: code, resp: resp}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-resp:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AwaitWorker blocks until at least one worker is registered for lang.
func (p *Producer) AwaitWorker(ctx context.Context, lang pb.Language) error {
	done := make(chan struct{})
	select {
	case p.cmdCh <- awaitCmd{lang: lang, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextResult blocks until any dispatched token has a result, in arrival
// order across all workers — results may be consumed in any order
// relative to how their tokens were issued (spec §4.E).
func (p *Producer) NextResult(ctx context.Context) (DispatchResult, error) {
	return p.results.pop(ctx)
}

// Workers returns a snapshot of every currently registered worker, used
// by the dashboard and CLI status views.
func (p *Producer) Workers(ctx context.Context) ([]WorkerInfo, error) {
	resp := make(chan []WorkerInfo, 1)
	select {
	case p.cmdCh <- statsCmd{resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case w := <-resp:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Connect implements transport.CompilerServiceServer. It is invoked once
// per worker connection and runs for the stream's lifetime: reads the
// mandatory leading registration, then loops receiving results and
// pushing queued requests until the stream errs or the worker
// disconnects.
func (p *Producer) Connect(stream transport.CompilerService_ConnectServer) error {
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Kind != transport.FrameRegister || first.Err != nil {
		return ErrMalformedRegistration
	}

	out := make(chan *transport.Frame, p.cfg.OutboundBufferSize)
	resp := make(chan string, 1)
	p.cmdCh <- registerCmd{
		lang:     first.Register.Lang,
		version:  first.Register.Version,
		procarch: first.Register.Procarch,
		out:      out,
		resp:     resp,
	}
	workerID := <-resp

	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		for frame := range out {
			if err := stream.Send(frame); err != nil {
				log.Warn().Str("worker_id", workerID).Err(err).Msg("send to worker failed")
				p.cmdCh <- disconnectCmd{workerID: workerID}
				return
			}
		}
	}()

	for {
		frame, err := stream.Recv()
		if err != nil {
			p.cmdCh <- disconnectCmd{workerID: workerID}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if frame.Kind != transport.FrameResult {
			log.Warn().Str("worker_id", workerID).Int("kind", int(frame.Kind)).Msg("unexpected frame kind from worker, ignoring")
			continue
		}
		result := frame.Result
		if frame.Err != nil {
			// The worker's own slot ordering guarantee (spec §4.C) only
			// protects it against malformed requests it receives; a result
			// it sends back that fails to decode here still occupies the
			// in-flight queue's head position and must be popped in order,
			// so it is treated as a failure rather than dropped.
			result = &pb.CompileResult{Success: false, Output: []byte(frame.Err.Error())}
		}
		p.cmdCh <- resultCmd{workerID: workerID, result: result}
	}
}

// dispatchToken computes the opaque correlation token for one dispatch:
// MD5 over the worker identity and the request payload, per spec §4.D.
func dispatchToken(workerID, code string) string {
	sum := md5.Sum([]byte(workerID + "\x00" + code))
	return hex.EncodeToString(sum[:])
}
