package models

import "fmt"

// FailureKind classifies why a request did not produce a response.
type FailureKind int

const (
	FailureScriptUnavailable FailureKind = iota + 1
	FailureModuleNotFound
	FailureInvocation
	FailureAsyncExecution
	FailureEngineUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case FailureScriptUnavailable:
		return "ScriptUnavailable"
	case FailureModuleNotFound:
		return "ModuleNotFound"
	case FailureInvocation:
		return "InvocationError"
	case FailureAsyncExecution:
		return "AsyncExecutionError"
	case FailureEngineUnavailable:
		return "EngineUnavailable"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// MarshalText lets the kind appear by name in JSON payloads.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Failure describes an unsuccessful invocation.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// Outcome is either a response text or a Failure. It is never persisted.
type Outcome struct {
	Response string   `json:"response,omitempty"`
	Failure  *Failure `json:"failure,omitempty"`
}

// Success builds a successful outcome.
func Success(response string) Outcome {
	return Outcome{Response: response}
}

// Fail builds a failed outcome of the given kind wrapping err.
func Fail(kind FailureKind, err error) Outcome {
	f := &Failure{Kind: kind, Err: err}
	if err != nil {
		f.Message = err.Error()
	}
	return Outcome{Failure: f}
}

// OK reports whether the outcome carries a response.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

func (o Outcome) String() string {
	if o.Failure != nil {
		return "Failure(" + o.Failure.Error() + ")"
	}
	return fmt.Sprintf("Success(%q)", o.Response)
}
