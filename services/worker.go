package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agent-runner-server/models"
)

const (
	// ProcessFunction is the function every processing module exports.
	ProcessFunction = "process_message"

	previewLength = 20
)

// Worker processes exactly one request with its own ScriptBridge and stops.
type Worker struct {
	id     string
	seq    uint64
	script ScriptRef
	bridge *ScriptBridge
	log    zerolog.Logger

	used atomic.Bool

	mu     sync.Mutex
	states []models.WorkerState
}

// NewWorker creates a worker in the Created state.
func NewWorker(seq uint64, interp *Interpreter, script ScriptRef, log zerolog.Logger) *Worker {
	id := uuid.NewString()
	wlog := log.With().Str("component", "worker").Str("worker_id", id).Uint64("seq", seq).Logger()
	return &Worker{
		id:     id,
		seq:    seq,
		script: script,
		bridge: NewScriptBridge(interp, wlog),
		log:    wlog,
		states: []models.WorkerState{models.WorkerCreated},
	}
}

// ID returns the worker's unique id.
func (w *Worker) ID() string { return w.id }

// States returns the lifecycle states the worker has passed through.
func (w *Worker) States() []models.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.WorkerState, len(w.states))
	copy(out, w.states)
	return out
}

// State returns the most recent lifecycle state.
func (w *Worker) State() models.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[len(w.states)-1]
}

func (w *Worker) transition(s models.WorkerState) {
	w.mu.Lock()
	w.states = append(w.states, s)
	w.mu.Unlock()
	w.log.Debug().Str("state", string(s)).Msg("worker transition")
}

// Handle loads the processing module, invokes it for req and stops the
// worker. Any second call fails with ErrWorkerSpent.
func (w *Worker) Handle(ctx context.Context, req models.Request) (models.WorkerReport, error) {
	if !w.used.CompareAndSwap(false, true) {
		return models.WorkerReport{}, ErrWorkerSpent
	}

	started := time.Now()
	rlog := w.log.With().
		Str("session_id", req.SessionID).
		Str("user_id", req.UserID).
		Str("text", req.Preview(previewLength)).
		Logger()

	outcome := w.run(ctx, req, rlog)

	w.bridge.Close()
	w.transition(models.WorkerStopped)
	rlog.Info().Str("outcome", outcome.String()).Msg("processed message, stopping")

	return models.WorkerReport{
		WorkerID:   w.id,
		Sequence:   w.seq,
		Request:    req,
		Outcome:    outcome,
		States:     w.States(),
		StartedAt:  started,
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

// abort stops a worker whose Handle did not return and reports err as an
// invocation failure.
func (w *Worker) abort(req models.Request, started time.Time, err error) models.WorkerReport {
	w.bridge.Close()
	if w.State() != models.WorkerStopped {
		w.transition(models.WorkerStopped)
	}
	return models.WorkerReport{
		WorkerID:   w.id,
		Sequence:   w.seq,
		Request:    req,
		Outcome:    models.Fail(models.FailureInvocation, err),
		States:     w.States(),
		StartedAt:  started,
		DurationMs: time.Since(started).Milliseconds(),
	}
}

func (w *Worker) run(ctx context.Context, req models.Request, rlog zerolog.Logger) models.Outcome {
	w.transition(models.WorkerLoading)
	handle, err := w.bridge.Load(ctx, w.script)
	if err != nil {
		w.transition(models.WorkerLoadFailed)
		rlog.Error().Err(err).Msg("script not loaded, cannot process message")
		kind := models.FailureScriptUnavailable
		if failureKind(err) == models.FailureEngineUnavailable {
			kind = models.FailureEngineUnavailable
		}
		return models.Fail(kind, err)
	}
	w.transition(models.WorkerReady)

	w.transition(models.WorkerInvoking)
	rlog.Info().Msg("processing message")
	var outcome models.Outcome
	if req.HasCorrelation() {
		outcome = w.bridge.Invoke(ctx, handle, ProcessFunction, req.Text, req.SessionID, req.UserID)
	} else {
		outcome = w.bridge.Invoke(ctx, handle, ProcessFunction, req.Text)
	}

	if outcome.OK() {
		w.transition(models.WorkerCompleted)
		rlog.Info().Str("response", outcome.Response).Msg("script responded")
	} else {
		w.transition(models.WorkerInvokeFailed)
		rlog.Error().Str("kind", outcome.Failure.Kind.String()).Str("reason", outcome.Failure.Message).Msg("script invocation failed")
	}
	return outcome
}
