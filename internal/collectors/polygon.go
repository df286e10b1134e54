package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/swarmguard/databridge/internal/dag"
	"github.com/swarmguard/databridge/internal/relstore"
	"github.com/swarmguard/databridge/internal/resilience"
)

const polygonGroupedDailyURL = "https://api.polygon.io/v2/aggs/grouped/locale/us/market/stocks/"

// secretHandle is the narrow capability this package needs beyond
// dag.Handle's Platform(): the actual credential string. keymanager's
// *Handle satisfies it without internal/dag ever needing to know.
type secretHandle interface {
	Secret() string
}

// polygonBar mirrors one row of Polygon's grouped-daily aggregates
// response, grounded on collectors/source_apis/polygon_grouped_daily.rs.
type polygonBar struct {
	Ticker string  `json:"T"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
	Window int64   `json:"t"`
}

// PolygonGroupedDailyFetcher pulls one trading day's grouped
// aggregates for every US ticker. It is the WAIT_FOR_KEY = true case
// from the original collector: it blocks until a Polygon key is
// available rather than failing fast.
type PolygonGroupedDailyFetcher struct {
	keys    dag.KeyAcquirer
	limiter *resilience.HybridRateLimiter
	breaker *resilience.CircuitBreaker
	day     func() time.Time
}

func NewPolygonGroupedDailyFetcher(keys dag.KeyAcquirer, limiter *resilience.HybridRateLimiter, breaker *resilience.CircuitBreaker) *PolygonGroupedDailyFetcher {
	return &PolygonGroupedDailyFetcher{keys: keys, limiter: limiter, breaker: breaker, day: time.Now}
}

const polygonPlatform = "polygon"

func (f *PolygonGroupedDailyFetcher) Execute(ctx context.Context) (dag.Stats, error) {
	handle, err := f.keys.Acquire(ctx, polygonPlatform, true)
	if err != nil {
		return nil, dag.NewTaskError(dag.UnexpectedError, fmt.Errorf("acquire polygon key: %w", err))
	}
	secret, ok := handle.(secretHandle)
	if !ok {
		f.keys.Release(handle, false)
		return nil, dag.NewTaskError(dag.UnexpectedError, fmt.Errorf("polygon key handle does not expose a secret"))
	}

	date := f.day().UTC().Format("2006-01-02")
	url := fmt.Sprintf("%s%s?apiKey=%s", polygonGroupedDailyURL, date, secret.Secret())

	body, err := getJSON(ctx, url, f.limiter, f.breaker)
	if err != nil {
		f.keys.Release(handle, true)
		return nil, dag.NewTaskError(dag.ClientRequestError, err)
	}
	f.keys.Release(handle, false)

	var parsed struct {
		Results []polygonBar `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, dag.NewTaskError(dag.UnexpectedError, fmt.Errorf("decode polygon grouped daily: %w", err))
	}

	return dag.Stats{"bars": parsed.Results, "count": len(parsed.Results), "trading_date": date}, nil
}

// PolygonGroupedDailyStager upserts the bars produced by
// PolygonGroupedDailyFetcher, grounded on actions/stage/polygon_grouped_daily.rs.
type PolygonGroupedDailyStager struct {
	store *relstore.Store
}

func NewPolygonGroupedDailyStager(store *relstore.Store) *PolygonGroupedDailyStager {
	return &PolygonGroupedDailyStager{store: store}
}

func (s *PolygonGroupedDailyStager) StageFrom(ctx context.Context, upstream dag.Stats) (dag.Stats, error) {
	bars, _ := upstream["bars"].([]polygonBar)
	date, _ := upstream["trading_date"].(string)
	if len(bars) == 0 {
		return dag.Stats{"upserted": 0}, nil
	}

	rows := make([]relstore.Row, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, relstore.Row{
			"ticker":       b.Ticker,
			"trading_date": date,
			"open":         b.Open,
			"high":         b.High,
			"low":          b.Low,
			"close":        b.Close,
			"volume":       b.Volume,
		})
	}

	n, err := s.store.UpsertRows(ctx, "polygon_grouped_daily", []string{"ticker", "trading_date"}, rows)
	if err != nil {
		return nil, dag.NewTaskError(dag.DatabaseError, err)
	}
	return dag.Stats{"upserted": n}, nil
}
