package collectors

import (
	"context"
	"errors"
	"testing"

	"github.com/swarmguard/databridge/internal/dag"
)

type stubHandle struct {
	platform string
	secret   string
}

func (h stubHandle) Platform() string { return h.platform }
func (h stubHandle) Secret() string   { return h.secret }

type stubAcquirer struct {
	handle     dag.Handle
	acquireErr error
	released   []bool
}

func (a *stubAcquirer) Acquire(ctx context.Context, platform string, wait bool) (dag.Handle, error) {
	if a.acquireErr != nil {
		return nil, a.acquireErr
	}
	return a.handle, nil
}

func (a *stubAcquirer) Exchange(ctx context.Context, platform string, h dag.Handle, wait bool) (dag.Handle, error) {
	return a.handle, nil
}

func (a *stubAcquirer) Release(h dag.Handle, exhausted bool) {
	a.released = append(a.released, exhausted)
}

func TestPolygonFetcherReleasesKeyExhaustedOnRequestFailure(t *testing.T) {
	acquirer := &stubAcquirer{handle: stubHandle{platform: polygonPlatform, secret: "k"}}
	f := NewPolygonGroupedDailyFetcher(acquirer, nil, nil)

	_, err := f.Execute(context.Background())
	if err == nil {
		t.Fatalf("expected the request with a placeholder key to fail, got nil")
	}
	if len(acquirer.released) != 1 || acquirer.released[0] != true {
		t.Fatalf("expected exactly one exhausted release, got %v", acquirer.released)
	}
}

func TestPolygonFetcherPropagatesAcquireFailure(t *testing.T) {
	acquirer := &stubAcquirer{acquireErr: errors.New("no key available")}
	f := NewPolygonGroupedDailyFetcher(acquirer, nil, nil)

	_, err := f.Execute(context.Background())
	if err == nil {
		t.Fatalf("expected acquire failure to propagate")
	}
	if len(acquirer.released) != 0 {
		t.Fatalf("must not release a handle that was never acquired")
	}
}

func TestNyseStagerSkipsEmptyUpstream(t *testing.T) {
	stager := NewNyseInstrumentStager(nil)
	stats, err := stager.StageFrom(context.Background(), dag.Stats{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats["upserted"] != 0 {
		t.Fatalf("expected upserted=0 for empty upstream, got %v", stats["upserted"])
	}
}

func TestSecStagerSkipsEmptyUpstream(t *testing.T) {
	stager := NewSecCompanyStager(nil)
	stats, err := stager.StageFrom(context.Background(), dag.Stats{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats["upserted"] != 0 {
		t.Fatalf("expected upserted=0 for empty upstream, got %v", stats["upserted"])
	}
}
