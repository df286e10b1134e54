package dag

import (
	"time"

	"github.com/google/uuid"
)

// TaskSpec is the caller-supplied, immutable description used to
// build a Task. Two specs are equal iff their IDs are equal.
type TaskSpec struct {
	ID       uuid.UUID
	Name     string
	Runnable Runnable
	Retry    RetryPolicy
	Mode     ExecutionMode
	Tools    map[string]any
	// Repeat is the number of extra visits the cycle check allows this
	// task's node to absorb before treating a revisit as a genuine
	// cycle. Zero for ordinary, non-repeating tasks.
	Repeat int
}

// NewTaskSpec builds a TaskSpec with a fresh identifier and Once
// execution mode, no retries.
func NewTaskSpec(name string, r Runnable) TaskSpec {
	return TaskSpec{
		ID:       uuid.New(),
		Name:     name,
		Runnable: r,
		Retry:    NoRetry(),
		Mode:     Once(),
		Tools:    map[string]any{},
	}
}

// ModeKind discriminates ExecutionMode variants.
type ModeKind int

const (
	ModeOnce ModeKind = iota
	ModeContinuously
	ModeRepeatLimited
	ModeRepeatForDuration
)

// ExecutionMode controls how many times a Task's Runnable runs on its
// turn and when downstream tasks are triggered.
type ExecutionMode struct {
	Kind ModeKind

	// StopSignal, for ModeContinuously: closing it (or sending on it)
	// tells the current iteration to be the last one. Only once it
	// fires does the worker publish the completion event downstream
	// waits on.
	StopSignal <-chan struct{}

	// Count, for ModeRepeatLimited: how many sequential runs before
	// downstream is triggered once, on the final completion.
	Count int

	// Window, for ModeRepeatForDuration: re-run until this wall-clock
	// window has elapsed since the task started.
	Window time.Duration
}

func Once() ExecutionMode { return ExecutionMode{Kind: ModeOnce} }

func Continuously(stop <-chan struct{}) ExecutionMode {
	return ExecutionMode{Kind: ModeContinuously, StopSignal: stop}
}

func RepeatLimited(count int) ExecutionMode {
	return ExecutionMode{Kind: ModeRepeatLimited, Count: count}
}

func RepeatForDuration(window time.Duration) ExecutionMode {
	return ExecutionMode{Kind: ModeRepeatForDuration, Window: window}
}

// ExecutionState is a Task's lifecycle state, mutated only by the
// Executor.
type ExecutionState int

const (
	Pending ExecutionState = iota
	Running
	Finished
	Failed
	Cancelled
)

func (s ExecutionState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExecutionStats summarizes one Task's last run.
type ExecutionStats struct {
	IsError  bool
	Runtime  time.Duration
	Retries  int
	Custom   Stats
}

// cycleState is the cycle-check marker the Validator maintains on
// each Task. Unlike a three-case union, this is represented as
// a kind plus a budget field that is meaningless outside
// cycleVisited, which is the idiomatic Go rendering of a Rust enum
// carrying data on one variant.
type cycleKind int

const (
	cycleUnknown cycleKind = iota
	cycleVisited
	cycleFinished
)

type cycleState struct {
	kind         cycleKind
	remaining    int // meaningful only when kind == cycleVisited
}
