package dag

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func noopSpec(name string) TaskSpec {
	return NewTaskSpec(name, RunnableFunc(func(ctx context.Context) (Stats, error) {
		return nil, nil
	}))
}

func TestBuildRecordsInDegreeAndOutgoing(t *testing.T) {
	a := noopSpec("a")
	b := noopSpec("b")
	c := noopSpec("c")

	g, err := Build([]SpecEdge{
		{Spec: a},
		{Spec: b, Dependencies: []TaskSpec{a}},
		{Spec: c, Dependencies: []TaskSpec{a, b}},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if g.TotalTasks() != 3 {
		t.Fatalf("expected 3 tasks, got %d", g.TotalTasks())
	}
	if len(g.sources) != 1 || g.sources[0].ID != a.ID {
		t.Fatalf("expected a to be the sole source task")
	}
	ta := g.tasks[a.ID]
	if len(ta.outgoing) != 2 {
		t.Fatalf("expected a to have 2 outgoing edges, got %d", len(ta.outgoing))
	}
}

func TestBuildMissingDependencyIsBuildError(t *testing.T) {
	a := noopSpec("a")
	ghost := noopSpec("ghost")

	_, err := Build([]SpecEdge{{Spec: a, Dependencies: []TaskSpec{ghost}}})
	be, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected *BuildError, got %v", err)
	}
	if be.Kind != MissingDependency || be.ID != ghost.ID {
		t.Fatalf("unexpected build error: %+v", be)
	}
}

func TestValidateDiamondAndRunCompletionCount(t *testing.T) {
	var mu sync.Mutex
	var order []string
	track := func(name string) Runnable {
		return RunnableFunc(func(ctx context.Context) (Stats, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		})
	}

	a := NewTaskSpec("A", track("A"))
	b := NewTaskSpec("B", track("B"))
	c := NewTaskSpec("C", track("C"))
	d := NewTaskSpec("D", track("D"))

	g, err := Build([]SpecEdge{
		{Spec: a},
		{Spec: b, Dependencies: []TaskSpec{a}},
		{Spec: c, Dependencies: []TaskSpec{a}},
		{Spec: d, Dependencies: []TaskSpec{b, c}},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if g.ReachableTasks() != 4 {
		t.Fatalf("expected 4 reachable tasks, got %d", g.ReachableTasks())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	report, err := g.Run(ctx, SystemClock)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(report.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(report.Results))
	}
	if !report.Succeeded() {
		t.Fatalf("expected all tasks to succeed")
	}
	if len(order) != 4 || order[0] != "A" || order[len(order)-1] != "D" {
		t.Fatalf("expected A first and D last, got %v", order)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	a := noopSpec("a")
	b := noopSpec("b")
	g, err := Build([]SpecEdge{{Spec: a}, {Spec: b, Dependencies: []TaskSpec{a}}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("first validate failed: %v", err)
	}
	reachableAfterFirst := g.ReachableTasks()
	if err := g.Validate(); err != nil {
		t.Fatalf("second validate failed: %v", err)
	}
	if g.ReachableTasks() != reachableAfterFirst {
		t.Fatalf("validating twice changed reachable count: %d -> %d", reachableAfterFirst, g.ReachableTasks())
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	a := noopSpec("a")
	b := noopSpec("b")
	c := noopSpec("c")

	g, err := Build([]SpecEdge{
		{Spec: a, Dependencies: []TaskSpec{c}},
		{Spec: b, Dependencies: []TaskSpec{a}},
		{Spec: c, Dependencies: []TaskSpec{b}},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	err = g.Validate()
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Kind != NoSourceTasks && ve.Kind != Cycle {
		t.Fatalf("expected NoSourceTasks or Cycle, got %+v", ve)
	}
}

func TestValidateRejectsGraphWithNoSourceTasks(t *testing.T) {
	a := noopSpec("a")
	b := noopSpec("b")
	c := noopSpec("c")
	d := noopSpec("d")

	g, err := Build([]SpecEdge{
		{Spec: a, Dependencies: []TaskSpec{d}},
		{Spec: b, Dependencies: []TaskSpec{a}},
		{Spec: c, Dependencies: []TaskSpec{d}},
		{Spec: d, Dependencies: []TaskSpec{c}},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	err = g.Validate()
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Kind != NoSourceTasks {
		t.Fatalf("expected NoSourceTasks, got %+v", ve)
	}
}

func TestSingleTaskGraphRunsOnce(t *testing.T) {
	ran := false
	spec := NewTaskSpec("solo", RunnableFunc(func(ctx context.Context) (Stats, error) {
		ran = true
		return nil, nil
	}))
	g, err := Build([]SpecEdge{{Spec: spec}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	report, err := g.Run(ctx, SystemClock)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !ran {
		t.Fatalf("expected the solo task to run")
	}
	if report.Results[spec.ID].State != Finished {
		t.Fatalf("expected Finished, got %v", report.Results[spec.ID].State)
	}
}

func TestBuildSkipsDuplicateSpecIDs(t *testing.T) {
	a := noopSpec("a")
	g, err := Build([]SpecEdge{{Spec: a}, {Spec: a}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if g.TotalTasks() != 1 {
		t.Fatalf("expected duplicate spec IDs to collapse to one task, got %d", g.TotalTasks())
	}
	_ = uuid.Nil
}
