package services

import (
	"errors"

	"agent-runner-server/models"
)

var (
	ErrScriptUnavailable = errors.New("script unavailable")
	ErrModuleNotFound    = errors.New("module not found")
	ErrInvocation        = errors.New("invocation error")
	ErrAsyncExecution    = errors.New("async execution error")
	ErrEngineUnavailable = errors.New("engine unavailable")

	ErrInterpreterPanic  = errors.New("interpreter panic")
	ErrRuntimeHome       = errors.New("runtime home not configured")
	ErrLoopClosed        = errors.New("event loop closed")
	ErrAwaitableStalled  = errors.New("awaitable pending with no scheduled work")
	ErrWorkerSpent       = errors.New("worker already processed a request")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// failureKind maps a bridge error onto the outcome taxonomy. Unknown errors
// are reported as invocation errors.
func failureKind(err error) models.FailureKind {
	switch {
	case errors.Is(err, ErrEngineUnavailable):
		return models.FailureEngineUnavailable
	case errors.Is(err, ErrScriptUnavailable):
		return models.FailureScriptUnavailable
	case errors.Is(err, ErrModuleNotFound):
		return models.FailureModuleNotFound
	case errors.Is(err, ErrAsyncExecution):
		return models.FailureAsyncExecution
	default:
		return models.FailureInvocation
	}
}
