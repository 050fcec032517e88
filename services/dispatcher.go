package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/rs/zerolog"

	"agent-runner-server/models"
)

// OutcomeSink receives the report of every stopped worker.
type OutcomeSink interface {
	PublishOutcome(ctx context.Context, report models.WorkerReport) error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Script  ScriptRef
	Sinks   []OutcomeSink
	Tracing bool
	Logger  zerolog.Logger
}

// Dispatcher spawns one Worker per request. It keeps no per-request state
// besides counters.
type Dispatcher struct {
	interp *Interpreter
	cfg    DispatcherConfig
	log    zerolog.Logger

	received  atomic.Uint64
	live      atomic.Int64
	completed atomic.Uint64

	mu        sync.RWMutex
	accepting bool
	wg        sync.WaitGroup

	failMu sync.Mutex
	failed map[models.FailureKind]uint64

	handle func(ctx context.Context, w *Worker, req models.Request) (models.WorkerReport, error)
}

// NewDispatcher returns a dispatcher that accepts requests immediately.
func NewDispatcher(interp *Interpreter, cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		interp:    interp,
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "dispatcher").Logger(),
		accepting: true,
		failed:    make(map[models.FailureKind]uint64),
	}
	d.handle = func(ctx context.Context, w *Worker, req models.Request) (models.WorkerReport, error) {
		return w.Handle(ctx, req)
	}
	d.log.Info().Str("module", cfg.Script.ModuleID).Msg("dispatcher started")
	return d
}

// OnRequest spawns a worker for req and returns the request sequence number
// together with a channel that yields the worker's report once. Every spawned
// worker reports, including one that panics.
func (d *Dispatcher) OnRequest(ctx context.Context, req models.Request) (uint64, <-chan models.WorkerReport, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.accepting {
		return 0, nil, ErrDispatcherStopped
	}

	seq := d.received.Add(1)
	d.log.Info().Uint64("seq", seq).Str("text", req.Preview(previewLength)).Msg("received request, spawning worker")

	w := NewWorker(seq, d.interp, d.cfg.Script, d.cfg.Logger)
	done := make(chan models.WorkerReport, 1)
	d.wg.Add(1)
	d.live.Add(1)
	go d.supervise(context.WithoutCancel(ctx), w, req, done)
	return seq, done, nil
}

func (d *Dispatcher) supervise(ctx context.Context, w *Worker, req models.Request, done chan<- models.WorkerReport) {
	defer d.wg.Done()
	defer d.live.Add(-1)
	defer close(done)

	var seg *xray.Segment
	if d.cfg.Tracing {
		ctx, seg = xray.BeginSegment(ctx, "agent-worker")
		_ = seg.AddAnnotation("worker_id", w.ID())
		_ = seg.AddAnnotation("session_id", req.SessionID)
	}

	report, err := d.runWorker(ctx, w, req)
	if err != nil {
		d.log.Error().Err(err).Str("worker_id", w.ID()).Msg("worker rejected request")
		if seg != nil {
			seg.Close(err)
		}
		return
	}
	d.record(report.Outcome)

	for _, sink := range d.cfg.Sinks {
		d.publish(ctx, sink, report)
	}
	if seg != nil {
		var segErr error
		if report.Outcome.Failure != nil {
			segErr = report.Outcome.Failure
		}
		seg.Close(segErr)
	}
	done <- report
}

func (d *Dispatcher) runWorker(ctx context.Context, w *Worker, req models.Request) (report models.WorkerReport, err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("worker_id", w.ID()).Interface("panic", r).Msg("worker panicked")
			report, err = w.abort(req, started, fmt.Errorf("%w: worker panicked: %v", ErrInvocation, r)), nil
		}
	}()
	return d.handle(ctx, w, req)
}

func (d *Dispatcher) publish(ctx context.Context, sink OutcomeSink, report models.WorkerReport) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("worker_id", report.WorkerID).Interface("panic", r).Msg("outcome sink panicked")
		}
	}()
	if err := sink.PublishOutcome(ctx, report); err != nil {
		d.log.Warn().Err(err).Str("worker_id", report.WorkerID).Msg("failed to forward outcome")
	}
}

func (d *Dispatcher) record(outcome models.Outcome) {
	if outcome.OK() {
		d.completed.Add(1)
		return
	}
	d.failMu.Lock()
	d.failed[outcome.Failure.Kind]++
	d.failMu.Unlock()
}

// Stop makes later OnRequest calls fail with ErrDispatcherStopped. Running
// workers are not interrupted.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.accepting {
		d.accepting = false
		d.log.Info().Uint64("received", d.received.Load()).Msg("dispatcher stopped accepting requests")
	}
}

// Drain waits until every spawned worker has stopped or ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain workers (%d live): %w", d.live.Load(), ctx.Err())
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() models.DispatcherStats {
	d.mu.RLock()
	accepting := d.accepting
	d.mu.RUnlock()

	stats := models.DispatcherStats{
		Received:  d.received.Load(),
		Live:      d.live.Load(),
		Completed: d.completed.Load(),
		Failed:    make(map[string]uint64),
		Accepting: accepting,
	}
	d.failMu.Lock()
	for kind, n := range d.failed {
		stats.Failed[kind.String()] = n
	}
	d.failMu.Unlock()
	return stats
}
