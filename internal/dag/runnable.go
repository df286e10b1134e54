// Package dag builds, validates and executes dependency graphs of
// Runnables: retryable, possibly-repeating units of work whose
// dependency graph is static but whose execution must respect
// per-task ordering and external rate limits.
package dag

import (
	"context"
	"errors"
	"fmt"
)

// Stats is the opaque per-runnable statistics map a Runnable may
// return. The graph never inspects it; it is stored on the task's
// ExecutionStats verbatim.
type Stats map[string]any

// Runnable is a single unit of work. Execute must be safe to call
// concurrently from distinct Task instances, may be side-effectful,
// may suspend on I/O, and must tolerate cancellation at suspension
// points via ctx.
type Runnable interface {
	Execute(ctx context.Context) (Stats, error)
}

// RunnableFunc adapts a plain function to a Runnable.
type RunnableFunc func(ctx context.Context) (Stats, error)

func (f RunnableFunc) Execute(ctx context.Context) (Stats, error) { return f(ctx) }

// TaskErrorKind is the sealed taxonomy of failures a Runnable may
// report to the graph.
type TaskErrorKind int

const (
	// DatabaseError means a persistent-store interaction failed.
	DatabaseError TaskErrorKind = iota
	// ClientRequestError means an outbound request failed.
	ClientRequestError
	// UnexpectedError wraps any other failure with a chained cause.
	UnexpectedError
	// NoExecutionError is an internal sentinel meaning no attempt was
	// actually performed; only produced when a retry policy is
	// configured such that the engine never invokes the runnable.
	NoExecutionError
)

func (k TaskErrorKind) String() string {
	switch k {
	case DatabaseError:
		return "database_error"
	case ClientRequestError:
		return "client_request_error"
	case UnexpectedError:
		return "unexpected_error"
	case NoExecutionError:
		return "no_execution_error"
	default:
		return "unknown_task_error"
	}
}

// TaskError is the error type Runnables return and the graph surfaces
// in RunReport.
type TaskError struct {
	Kind  TaskErrorKind
	Cause error
}

func (e *TaskError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *TaskError) Unwrap() error { return e.Cause }

// NewTaskError wraps cause under kind.
func NewTaskError(kind TaskErrorKind, cause error) *TaskError {
	return &TaskError{Kind: kind, Cause: cause}
}

var errNoExecution = &TaskError{Kind: NoExecutionError}

// IsTaskError reports whether err (or something it wraps) is a
// *TaskError of the given kind.
func IsTaskError(err error, kind TaskErrorKind) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
