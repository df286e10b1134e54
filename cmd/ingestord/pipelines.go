package main

import (
	"context"
	"time"

	"github.com/swarmguard/databridge/internal/collectors"
	"github.com/swarmguard/databridge/internal/dag"
	"github.com/swarmguard/databridge/internal/keymanager"
	"github.com/swarmguard/databridge/internal/relstore"
	"github.com/swarmguard/databridge/internal/resilience"
	"github.com/swarmguard/databridge/internal/scheduler"
)

// buildPipelines assembles the fixed set of fetch-then-stage graphs
// this service schedules. relStore may be nil, in which case the
// stage half of every pipeline still runs but persists nothing and
// reports upserted=0; a real Postgres DSN is required to actually
// persist anything.
func buildPipelines(relStore *relstore.Store, keys *keymanager.Manager) map[string]scheduler.NamedGraph {
	graphs := make(map[string]scheduler.NamedGraph)

	vendorLimiter := resilience.NewHybridRateLimiter(5, 2, 32, 500*time.Millisecond)
	vendorBreaker := resilience.NewCircuitBreakerAdaptive(time.Minute, 6, 5, 0.5, 30*time.Second, 2)

	if g := buildFetchStagePipeline(
		collectors.NewNyseInstrumentFetcher(vendorLimiter, vendorBreaker),
		collectors.NewNyseInstrumentStager(relStore).StageFrom,
	); g != nil {
		graphs["nyse_instruments"] = scheduler.NamedGraph{Graph: g, Clock: dag.SystemClock}
	}

	if g := buildFetchStagePipeline(
		collectors.NewSecCompanyFetcher(vendorLimiter, vendorBreaker),
		collectors.NewSecCompanyStager(relStore).StageFrom,
	); g != nil {
		graphs["sec_companies"] = scheduler.NamedGraph{Graph: g, Clock: dag.SystemClock}
	}

	if keys != nil {
		if g := buildFetchStagePipeline(
			collectors.NewPolygonGroupedDailyFetcher(keys, vendorLimiter, vendorBreaker),
			collectors.NewPolygonGroupedDailyStager(relStore).StageFrom,
		); g != nil {
			graphs["polygon_grouped_daily"] = scheduler.NamedGraph{Graph: g, Clock: dag.SystemClock}
		}
	}

	return graphs
}

// buildFetchStagePipeline wires one fetcher Runnable into one stager
// function as a two-node graph: fetch, then stage depending on fetch.
// It returns nil (logging nothing here; the caller decides whether a
// missing graph is fatal) only if Build/Validate themselves fail,
// which would indicate a programming error in this wiring, not
// runtime vendor failure.
func buildFetchStagePipeline(fetch dag.Runnable, stage func(ctx context.Context, upstream dag.Stats) (dag.Stats, error)) *dag.Graph {
	fetchSpec := dag.NewTaskSpec("fetch", fetch)
	chained := &dag.ChainedRunnable{UpstreamID: fetchSpec.ID, Stage: stage}
	stageSpec := dag.NewTaskSpec("stage", chained)

	g, err := dag.Build([]dag.SpecEdge{
		{Spec: fetchSpec},
		{Spec: stageSpec, Dependencies: []dag.TaskSpec{fetchSpec}},
	})
	if err != nil {
		return nil
	}
	if err := g.Validate(); err != nil {
		return nil
	}
	chained.Bind(g)
	return g
}
