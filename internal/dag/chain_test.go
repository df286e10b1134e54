package dag

import (
	"context"
	"testing"
)

func TestChainedRunnableReadsUpstreamCustomStats(t *testing.T) {
	upstream := NewTaskSpec("fetch", RunnableFunc(func(ctx context.Context) (Stats, error) {
		return Stats{"rows": 7}, nil
	}))

	var seen Stats
	chained := &ChainedRunnable{
		UpstreamID: upstream.ID,
		Stage: func(ctx context.Context, up Stats) (Stats, error) {
			seen = up
			return Stats{"upserted": up["rows"]}, nil
		},
	}
	downstream := NewTaskSpec("stage", chained)

	g, err := Build([]SpecEdge{
		{Spec: upstream},
		{Spec: downstream, Dependencies: []TaskSpec{upstream}},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	chained.Bind(g)

	report, err := g.Run(context.Background(), SystemClock)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !report.Succeeded() {
		t.Fatalf("expected run to succeed: %+v", report)
	}
	if seen["rows"] != 7 {
		t.Fatalf("expected downstream to observe upstream's rows=7, got %+v", seen)
	}

	stageStats := g.tasks[downstream.ID].Stats()
	if stageStats == nil || stageStats.Custom["upserted"] != 7 {
		t.Fatalf("expected stage task's recorded stats to reflect upstream data, got %+v", stageStats)
	}
}

func TestChainedRunnableUnboundGraphGetsNilUpstream(t *testing.T) {
	upstream := NewTaskSpec("fetch", RunnableFunc(func(ctx context.Context) (Stats, error) {
		return Stats{"rows": 7}, nil
	}))
	var sawNil bool
	chained := &ChainedRunnable{
		UpstreamID: upstream.ID,
		Stage: func(ctx context.Context, up Stats) (Stats, error) {
			sawNil = up == nil
			return nil, nil
		},
	}

	if _, err := chained.Execute(context.Background()); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !sawNil {
		t.Fatalf("expected nil upstream stats when Bind was never called")
	}
}
