package dag

import (
	"context"

	"github.com/google/uuid"
)

// ChainedRunnable adapts a function that consumes an upstream task's
// last Custom stats into a Runnable for a downstream task — the shape
// every collector/stager pair in this system needs, since the graph
// itself carries no data edges, only ordering ones. Bind must be
// called with the owning Graph once, after Build and before Run.
type ChainedRunnable struct {
	UpstreamID uuid.UUID
	Stage      func(ctx context.Context, upstream Stats) (Stats, error)

	graph *Graph
}

// Bind attaches the graph this chain reads its upstream task from.
func (c *ChainedRunnable) Bind(g *Graph) { c.graph = g }

func (c *ChainedRunnable) Execute(ctx context.Context) (Stats, error) {
	var upstream Stats
	if c.graph != nil {
		if t, ok := c.graph.tasks[c.UpstreamID]; ok {
			if st := t.Stats(); st != nil {
				upstream = st.Custom
			}
		}
	}
	return c.Stage(ctx, upstream)
}
