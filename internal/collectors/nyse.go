package collectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/swarmguard/databridge/internal/dag"
	"github.com/swarmguard/databridge/internal/relstore"
	"github.com/swarmguard/databridge/internal/resilience"
)

const nyseInstrumentsURL = "https://www.nyse.com/api/quotes/filter"

// nyseInstrument mirrors the fields the vendor actually returns,
// grounded on collectors/source_apis/nyse_instruments.rs's
// NyseInstrument struct.
type nyseInstrument struct {
	InstrumentType       string `json:"instrumentType"`
	SymbolTicker         string `json:"symbolTicker"`
	SymbolExchangeTicker string `json:"symbolExchangeTicker"`
	NormalizedTicker     string `json:"normalizedTicker"`
	SymbolEsignalTicker  string `json:"symbolEsignalTicker"`
	InstrumentName       string `json:"instrumentName"`
	MicCode              string `json:"micCode"`
}

// NyseInstrumentFetcher pulls the current NYSE instrument list and
// hands decoded rows to the next task via Stats, staged by
// NyseInstrumentStager. Unlike the Polygon and FMP collectors the
// NYSE filter endpoint needs no API key.
type NyseInstrumentFetcher struct {
	limiter *resilience.HybridRateLimiter
	breaker *resilience.CircuitBreaker
}

func NewNyseInstrumentFetcher(limiter *resilience.HybridRateLimiter, breaker *resilience.CircuitBreaker) *NyseInstrumentFetcher {
	return &NyseInstrumentFetcher{limiter: limiter, breaker: breaker}
}

func (f *NyseInstrumentFetcher) Execute(ctx context.Context) (dag.Stats, error) {
	body, err := getJSON(ctx, nyseInstrumentsURL, f.limiter, f.breaker)
	if err != nil {
		return nil, dag.NewTaskError(dag.ClientRequestError, err)
	}

	var parsed struct {
		Instruments []nyseInstrument `json:"instruments"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, dag.NewTaskError(dag.UnexpectedError, fmt.Errorf("decode nyse instruments: %w", err))
	}

	return dag.Stats{"instruments": parsed.Instruments, "count": len(parsed.Instruments)}, nil
}

// NyseInstrumentStager upserts the instrument rows produced by
// NyseInstrumentFetcher, grounded on actions/stage/nyse_instruments.rs.
type NyseInstrumentStager struct {
	store *relstore.Store
}

func NewNyseInstrumentStager(store *relstore.Store) *NyseInstrumentStager {
	return &NyseInstrumentStager{store: store}
}

// StageFrom upserts the instruments carried in upstream Stats. A
// dag.ChainedRunnable passes the fetch task's recorded
// ExecutionStats.Custom into this call; it
// is not itself a dag.Runnable because it needs that upstream payload
// rather than performing its own fetch.
func (s *NyseInstrumentStager) StageFrom(ctx context.Context, upstream dag.Stats) (dag.Stats, error) {
	raw, _ := upstream["instruments"].([]nyseInstrument)
	if len(raw) == 0 {
		return dag.Stats{"upserted": 0}, nil
	}

	rows := make([]relstore.Row, 0, len(raw))
	for _, in := range raw {
		rows = append(rows, relstore.Row{
			"symbol_ticker":          in.SymbolTicker,
			"symbol_exchange_ticker": in.SymbolExchangeTicker,
			"normalized_ticker":      in.NormalizedTicker,
			"instrument_type":        in.InstrumentType,
			"instrument_name":        in.InstrumentName,
			"mic_code":               in.MicCode,
		})
	}

	n, err := s.store.UpsertRows(ctx, "nyse_instruments", []string{"symbol_ticker"}, rows)
	if err != nil {
		return nil, dag.NewTaskError(dag.DatabaseError, err)
	}
	return dag.Stats{"upserted": n}, nil
}
