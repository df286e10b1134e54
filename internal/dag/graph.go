package dag

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Task is a runtime graph node materialized from a TaskSpec by Build.
// A Task is uniquely identified by ID; equality and hashing follow
// the identifier.
type Task struct {
	ID       uuid.UUID
	Name     string
	Runnable Runnable
	Retry    RetryPolicy
	Mode     ExecutionMode
	Repeat   int

	// outgoing is insertion-order; the Executor treats it as an
	// unordered multiset semantically but iterates deterministically.
	outgoing []*Task

	mu          sync.Mutex
	inDegree    int  // remaining in-degree; meaningful only if hasInDegree
	totalDegree int  // original in-degree, restored at the start of every Run
	hasInDegree bool // false for source tasks, whose in-degree is undefined
	cycle       cycleState
	state       ExecutionState
	stats       *ExecutionStats
}

func (t *Task) State() ExecutionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Stats() *ExecutionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Task) setState(s ExecutionState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Task) setStats(s *ExecutionStats) {
	t.mu.Lock()
	t.stats = s
	t.mu.Unlock()
}

// decrementInDegree reduces the task's remaining in-degree by one and
// reports whether it has just reached zero (the caller should launch
// it exactly when this returns true).
func (t *Task) decrementInDegree() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasInDegree {
		return false
	}
	t.inDegree--
	return t.inDegree == 0
}

// SpecEdge pairs a TaskSpec with the specs it depends on. Build takes
// a slice of these rather than a map keyed by TaskSpec because
// TaskSpec embeds a Runnable interface value, which Go cannot
// guarantee is comparable the way a map-keyed-by-TaskSpec abstraction
// assumes; the slice form carries the identical information without
// that constraint. Every dependency spec must also appear as the
// Spec of some entry (possibly with its own empty Dependencies) or
// Build reports a BuildError.
type SpecEdge struct {
	Spec         TaskSpec
	Dependencies []TaskSpec
}

// BuildErrorKind discriminates BuildError variants.
type BuildErrorKind int

const (
	MissingDependency BuildErrorKind = iota
)

type BuildError struct {
	Kind BuildErrorKind
	ID   uuid.UUID
}

func (e *BuildError) Error() string {
	switch e.Kind {
	case MissingDependency:
		return fmt.Sprintf("build: missing dependency task %s", e.ID)
	default:
		return "build: unknown error"
	}
}

// Graph is the materialized, runnable dependency graph. The zero
// value is not usable; construct with Build.
type Graph struct {
	tasks   map[uuid.UUID]*Task
	sources []*Task

	totalTasks     int
	reachableTasks int
	validated      bool
}

// Build materializes a Graph from entries: one Task per distinct
// spec ID, in-degree set to each entry's dependency count, and
// outgoing edges recorded on every dependency in insertion order.
func Build(entries []SpecEdge) (*Graph, error) {
	g := &Graph{tasks: make(map[uuid.UUID]*Task, len(entries))}

	for _, e := range entries {
		if _, exists := g.tasks[e.Spec.ID]; exists {
			continue
		}
		t := &Task{
			ID:       e.Spec.ID,
			Name:     e.Spec.Name,
			Runnable: e.Spec.Runnable,
			Retry:    e.Spec.Retry,
			Mode:     e.Spec.Mode,
			Repeat:   e.Spec.Repeat,
			state:    Pending,
		}
		g.tasks[t.ID] = t
		g.totalTasks++
	}

	for _, e := range entries {
		t := g.tasks[e.Spec.ID]
		if len(e.Dependencies) == 0 {
			g.sources = append(g.sources, t)
			continue
		}
		t.hasInDegree = true
		t.inDegree = len(e.Dependencies)
		t.totalDegree = len(e.Dependencies)
	}

	for _, e := range entries {
		t := g.tasks[e.Spec.ID]
		for _, dep := range e.Dependencies {
			depTask, ok := g.tasks[dep.ID]
			if !ok {
				return nil, &BuildError{Kind: MissingDependency, ID: dep.ID}
			}
			depTask.outgoing = append(depTask.outgoing, t)
		}
	}

	return g, nil
}

// Tasks returns every task in the graph, keyed by ID. The returned
// map is owned by the caller but the *Task values remain graph state.
func (g *Graph) Tasks() map[uuid.UUID]*Task {
	out := make(map[uuid.UUID]*Task, len(g.tasks))
	for id, t := range g.tasks {
		out[id] = t
	}
	return out
}

func (g *Graph) TotalTasks() int     { return g.totalTasks }
func (g *Graph) ReachableTasks() int { return g.reachableTasks }

// resetForRun restores every task's remaining in-degree to its
// original value and clears its prior terminal state, letting the
// same validated Graph be run repeatedly (a cron-triggered schedule
// reuses one Graph across firings rather than rebuilding it each time).
func (g *Graph) resetForRun() {
	for _, t := range g.tasks {
		t.mu.Lock()
		t.inDegree = t.totalDegree
		t.state = Pending
		t.stats = nil
		t.mu.Unlock()
	}
}
