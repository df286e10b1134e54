package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/databridge/internal/dag"
	"github.com/swarmguard/databridge/internal/store"
)

func newTestGraph(t *testing.T) *dag.Graph {
	t.Helper()
	spec := dag.NewTaskSpec("only-task", dag.RunnableFunc(func(ctx context.Context) (dag.Stats, error) {
		return dag.Stats{"ran": true}, nil
	}))
	g, err := dag.Build([]dag.SpecEdge{{Spec: spec}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return g
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	st, err := store.Open(path, noopmetric.MeterProvider{}.Meter("test"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAddScheduleRejectsUnknownGraphName(t *testing.T) {
	st := newTestStore(t)
	s := New(st, map[string]NamedGraph{}, noopmetric.MeterProvider{}.Meter("test"))

	err := s.AddSchedule(context.Background(), store.ScheduleConfig{Name: "missing", CronExpr: "* * * * * *", Enabled: true})
	if err == nil {
		t.Fatalf("expected an error registering a schedule with no matching graph")
	}
}

func TestAddScheduleRequiresCronOrEvent(t *testing.T) {
	st := newTestStore(t)
	graphs := map[string]NamedGraph{"g": {Graph: newTestGraph(t), Clock: dag.SystemClock}}
	s := New(st, graphs, noopmetric.MeterProvider{}.Meter("test"))

	err := s.AddSchedule(context.Background(), store.ScheduleConfig{Name: "g", Enabled: true})
	if err == nil {
		t.Fatalf("expected an error when neither cron_expr nor event_type is set")
	}
}

func TestTriggerEventRunsRegisteredGraph(t *testing.T) {
	st := newTestStore(t)
	g := newTestGraph(t)
	graphs := map[string]NamedGraph{"g": {Graph: g, Clock: dag.SystemClock}}
	s := New(st, graphs, noopmetric.MeterProvider{}.Meter("test"))

	cfg := store.ScheduleConfig{Name: "g", EventType: "ingest.tick", Enabled: true}
	if err := s.AddSchedule(context.Background(), cfg); err != nil {
		t.Fatalf("add schedule: %v", err)
	}

	s.TriggerEvent(context.Background(), "ingest.tick")

	deadline := time.Now().Add(time.Second)
	ran := false
	for !ran && time.Now().Before(deadline) {
		for _, task := range g.Tasks() {
			if task.State() == dag.Finished && task.Stats() != nil {
				ran = true
			}
		}
		if !ran {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !ran {
		t.Fatalf("expected the event to run the registered graph to completion")
	}

	time.Sleep(50 * time.Millisecond) // let the async run persist its report before the store closes
}

func TestTriggerEventIgnoresUnregisteredType(t *testing.T) {
	st := newTestStore(t)
	s := New(st, map[string]NamedGraph{}, noopmetric.MeterProvider{}.Meter("test"))
	s.TriggerEvent(context.Background(), "nothing.subscribed")
}
