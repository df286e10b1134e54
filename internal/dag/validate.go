package dag

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationErrorKind discriminates ValidationError variants.
type ValidationErrorKind int

const (
	NoSourceTasks ValidationErrorKind = iota
	Cycle
	Unreachable
)

type ValidationError struct {
	Kind  ValidationErrorKind
	ID    uuid.UUID // meaningful only for Cycle
	Count int       // meaningful only for Unreachable
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case NoSourceTasks:
		return "validate: no source tasks"
	case Cycle:
		return fmt.Sprintf("validate: cycle detected at task %s", e.ID)
	case Unreachable:
		return fmt.Sprintf("validate: %d task(s) unreachable from any source", e.Count)
	default:
		return "validate: unknown error"
	}
}

// Validate runs the two checks required before execution:
// at least one source task must exist, and a single iterative
// depth-first walk from the sources must find no cycles while
// visiting every task (reachability). Validating an already-validated
// graph is a no-op.
func (g *Graph) Validate() error {
	if len(g.sources) == 0 {
		return &ValidationError{Kind: NoSourceTasks}
	}
	if g.validated {
		return nil
	}

	stack := make([]*Task, len(g.sources))
	copy(stack, g.sources)

	for len(stack) > 0 {
		t := stack[len(stack)-1]

		switch t.cycle.kind {
		case cycleUnknown:
			t.cycle = cycleState{kind: cycleVisited, remaining: t.Repeat}
			for _, out := range t.outgoing {
				switch out.cycle.kind {
				case cycleUnknown:
					stack = append(stack, out)
				case cycleVisited:
					if out.cycle.remaining == 0 {
						return &ValidationError{Kind: Cycle, ID: out.ID}
					}
					out.cycle.remaining--
				case cycleFinished:
					// already fully explored, nothing to do
				}
			}
		case cycleVisited:
			t.cycle.kind = cycleFinished
			g.reachableTasks++
			stack = stack[:len(stack)-1]
		case cycleFinished:
			stack = stack[:len(stack)-1]
		}
	}

	if g.reachableTasks != g.totalTasks {
		return &ValidationError{Kind: Unreachable, Count: g.totalTasks - g.reachableTasks}
	}

	g.validated = true
	return nil
}
