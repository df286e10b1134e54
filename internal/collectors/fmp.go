package collectors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/swarmguard/databridge/internal/dag"
	"github.com/swarmguard/databridge/internal/relstore"
	"github.com/swarmguard/databridge/internal/resilience"
)

const fmpCompanyProfileURL = "https://financialmodelingprep.com/api/v3/profile/"

const fmpPlatform = "fmp"

// fmpCompanyProfile mirrors the fields this system persists out of
// the vendor's far larger profile payload, grounded on
// collect/financialmodelingprep_company_profile.rs's CompanyProfileElement.
type fmpCompanyProfile struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Beta      float64 `json:"beta"`
	MktCap    int64   `json:"mktCap"`
	Industry  string  `json:"industry"`
	Sector    string  `json:"sector"`
	Exchange  string  `json:"exchange"`
	Currency  string  `json:"currency"`
	IsActive  bool    `json:"isActivelyTrading"`
}

// FmpCompanyProfileFetcher fetches one ticker's company profile. The
// original collector ran this per ticker sequentially; here one
// Runnable instance is built per ticker, so each fetch can be its own
// independently retryable task. No pipeline in cmd/ingestord builds
// such a per-ticker graph; the caller constructs the instances.
type FmpCompanyProfileFetcher struct {
	keys    dag.KeyAcquirer
	ticker  string
	limiter *resilience.HybridRateLimiter
	breaker *resilience.CircuitBreaker
}

func NewFmpCompanyProfileFetcher(keys dag.KeyAcquirer, ticker string, limiter *resilience.HybridRateLimiter, breaker *resilience.CircuitBreaker) *FmpCompanyProfileFetcher {
	return &FmpCompanyProfileFetcher{keys: keys, ticker: ticker, limiter: limiter, breaker: breaker}
}

func (f *FmpCompanyProfileFetcher) Execute(ctx context.Context) (dag.Stats, error) {
	handle, err := f.keys.Acquire(ctx, fmpPlatform, true)
	if err != nil {
		return nil, dag.NewTaskError(dag.UnexpectedError, fmt.Errorf("acquire fmp key: %w", err))
	}
	secret, ok := handle.(secretHandle)
	if !ok {
		f.keys.Release(handle, false)
		return nil, dag.NewTaskError(dag.UnexpectedError, fmt.Errorf("fmp key handle does not expose a secret"))
	}

	url := fmt.Sprintf("%s%s?apikey=%s", fmpCompanyProfileURL, f.ticker, secret.Secret())
	body, err := getJSON(ctx, url, f.limiter, f.breaker)
	if err != nil {
		f.keys.Release(handle, true)
		return nil, dag.NewTaskError(dag.ClientRequestError, err)
	}
	f.keys.Release(handle, false)

	var profiles []fmpCompanyProfile
	if err := json.Unmarshal(body, &profiles); err != nil {
		return nil, dag.NewTaskError(dag.UnexpectedError, fmt.Errorf("decode fmp company profile for %s: %w", f.ticker, err))
	}

	return dag.Stats{"profiles": profiles, "count": len(profiles)}, nil
}

// FmpCompanyProfileStager upserts the profiles produced by
// FmpCompanyProfileFetcher, grounded on
// actions/stage/financialmodelingprep_company_profile.rs.
type FmpCompanyProfileStager struct {
	store *relstore.Store
}

func NewFmpCompanyProfileStager(store *relstore.Store) *FmpCompanyProfileStager {
	return &FmpCompanyProfileStager{store: store}
}

func (s *FmpCompanyProfileStager) StageFrom(ctx context.Context, upstream dag.Stats) (dag.Stats, error) {
	profiles, _ := upstream["profiles"].([]fmpCompanyProfile)
	if len(profiles) == 0 {
		return dag.Stats{"upserted": 0}, nil
	}

	rows := make([]relstore.Row, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, relstore.Row{
			"symbol":      p.Symbol,
			"price":       p.Price,
			"beta":        p.Beta,
			"mkt_cap":     p.MktCap,
			"industry":    p.Industry,
			"sector":      p.Sector,
			"exchange":    p.Exchange,
			"currency":    p.Currency,
			"is_active":   p.IsActive,
		})
	}

	n, err := s.store.UpsertRows(ctx, "fmp_company_profiles", []string{"symbol"}, rows)
	if err != nil {
		return nil, dag.NewTaskError(dag.DatabaseError, err)
	}
	return dag.Stats{"upserted": n}, nil
}
