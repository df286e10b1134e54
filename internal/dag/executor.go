package dag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("databridge/dag")

// completionEvent is the message a worker publishes on the bus
// exactly once, when its task terminates.
type completionEvent struct {
	failed   bool
	outgoing []*Task
}

// TaskResult is one task's entry in a RunReport.
type TaskResult struct {
	ID    uuid.UUID
	Name  string
	State ExecutionState
	Stats *ExecutionStats
}

// RunReport maps every reachable task to its last ExecutionStats and
// terminal state.
type RunReport struct {
	Results map[uuid.UUID]TaskResult
}

// Succeeded reports whether every task in the report finished without error.
func (r *RunReport) Succeeded() bool {
	for _, res := range r.Results {
		if res.State == Failed {
			return false
		}
	}
	return true
}

// RunError is returned when Run cannot even begin driving the graph.
type RunError struct {
	Reason string
	Cause  error
}

func (e *RunError) Error() string {
	if e.Cause == nil {
		return "run: " + e.Reason
	}
	return fmt.Sprintf("run: %s: %v", e.Reason, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

// Run drives the graph to completion: it launches every source task
// on its own goroutine, and as each task's worker publishes a
// completion event on the shared bus, decrements the in-degree of
// every outgoing neighbor, launching any that reach zero. Run blocks
// until exactly ReachableTasks() events have been consumed. The graph
// must have been validated first.
func (g *Graph) Run(ctx context.Context, clock Clock) (*RunReport, error) {
	if !g.validated {
		return nil, &RunError{Reason: "graph has not been validated"}
	}

	ctx, span := tracer.Start(ctx, "dag.Run")
	defer span.End()

	g.resetForRun()

	bus := make(chan completionEvent, g.reachableTasks)

	for _, t := range g.sources {
		go g.runWorker(ctx, clock, t, bus)
	}

	for i := 0; i < g.reachableTasks; i++ {
		select {
		case ev := <-bus:
			for _, out := range ev.outgoing {
				if out.decrementInDegree() {
					go g.runWorker(ctx, clock, out, bus)
				}
			}
		case <-ctx.Done():
			return nil, &RunError{Reason: "context cancelled while waiting for completions", Cause: ctx.Err()}
		}
	}

	report := &RunReport{Results: make(map[uuid.UUID]TaskResult, len(g.tasks))}
	for id, t := range g.tasks {
		report.Results[id] = TaskResult{ID: id, Name: t.Name, State: t.State(), Stats: t.Stats()}
	}
	return report, nil
}

// runWorker owns t for the duration of its run: it drives t's
// execution mode to completion, updates t's state and stats, then
// publishes exactly one completion event naming t's outgoing
// neighbors.
func (g *Graph) runWorker(ctx context.Context, clock Clock, t *Task, bus chan<- completionEvent) {
	ctx, span := tracer.Start(ctx, "dag.task")
	defer span.End()

	t.setState(Running)

	var failed bool
	switch t.Mode.Kind {
	case ModeRepeatLimited:
		n := t.Mode.Count
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			failed = g.runOnce(ctx, clock, t)
			if ctx.Err() != nil {
				break
			}
		}
	case ModeRepeatForDuration:
		deadline := clock.Now().Add(t.Mode.Window)
		for {
			failed = g.runOnce(ctx, clock, t)
			if ctx.Err() != nil || !clock.Now().Before(deadline) {
				break
			}
		}
	case ModeContinuously:
	modeLoop:
		for {
			failed = g.runOnce(ctx, clock, t)
			select {
			case <-t.Mode.StopSignal:
				break modeLoop
			case <-ctx.Done():
				break modeLoop
			default:
			}
		}
	default: // ModeOnce
		failed = g.runOnce(ctx, clock, t)
	}

	if failed {
		t.setState(Failed)
	} else {
		t.setState(Finished)
	}
	bus <- completionEvent{failed: failed, outgoing: t.outgoing}
}

// runOnce executes t's Runnable through the RetryEngine once (one
// full 1+MaxRetries attempt sequence) and records the resulting
// ExecutionStats on t. It reports whether the final attempt failed.
func (g *Graph) runOnce(ctx context.Context, clock Clock, t *Task) bool {
	ctx, span := tracer.Start(ctx, "dag.attempt")
	defer span.End()

	stats, outcome, err := runWithRetry(ctx, clock, t.Runnable, t.Retry)
	retries := outcome.attempts - 1
	if retries < 0 {
		retries = 0
	}
	t.setStats(&ExecutionStats{
		IsError: err != nil,
		Runtime: outcome.duration,
		Retries: retries,
		Custom:  stats,
	})
	return err != nil
}
