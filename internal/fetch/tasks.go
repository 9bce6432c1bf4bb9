// Package fetch implements the parallel company-data engine: per-request task
// planning, bounded parallel execution with per-provider timeouts, result
// merging with confidence scoring, and the two-layer fetch lock that keeps
// concurrent requests for one company from duplicating provider calls.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/portfolio-cli/internal/model"
	"github.com/sells-group/portfolio-cli/internal/resilience"
	"github.com/sells-group/portfolio-cli/pkg/coingecko"
	"github.com/sells-group/portfolio-cli/pkg/openbb"
	"github.com/sells-group/portfolio-cli/pkg/tavily"
)

// Provider names, used as result-key prefixes and breaker identities.
const (
	ProviderTavily    = "tavily"
	ProviderCoinGecko = "coingecko"
	ProviderOpenBB    = "openbb"
)

// Per-provider call deadlines. Research queries run long; market-data
// endpoints answer fast or not at all.
const (
	TavilyTimeout    = 30 * time.Second
	CoinGeckoTimeout = 10 * time.Second
	OpenBBTimeout    = 15 * time.Second
)

// Task is one planned provider call for one data type.
type Task struct {
	Provider string
	DataType model.DataType
	Timeout  time.Duration
	Call     func(ctx context.Context) (map[string]any, error)
}

// Key identifies a task's slot in the execution result map.
func (t Task) Key() string {
	return t.Provider + "_" + string(t.DataType)
}

// Clients bundles the provider clients the builder plans against.
type Clients struct {
	Tavily    tavily.Client
	CoinGecko coingecko.Client
	OpenBB    openbb.Client
}

// Builder plans provider tasks for a company and a set of requested data
// types. Routing is capability-driven: research types always go to Tavily,
// market types go to whichever market providers can identify the company.
type Builder struct {
	clients  Clients
	symbols  *SymbolTable
	breakers *resilience.ProviderBreakers
	retry    resilience.RetryConfig
}

// NewBuilder creates a task builder.
func NewBuilder(clients Clients, symbols *SymbolTable, breakers *resilience.ProviderBreakers, retry resilience.RetryConfig) *Builder {
	if symbols == nil {
		symbols = NewSymbolTable()
	}
	return &Builder{clients: clients, symbols: symbols, breakers: breakers, retry: retry}
}

var tavilyQueries = map[model.DataType]string{
	model.DataProfile: "%s company profile overview industry headquarters",
	model.DataFunding: "%s funding rounds investors valuation",
	model.DataTeam:    "%s founders executive team leadership",
	model.DataNews:    "%s recent company news announcements",
}

// Build plans the task set for one fetch cycle. A type no provider can serve
// for this company yields no task; the merger reports it as unavailable.
func (b *Builder) Build(company model.Company, types []model.DataType) []Task {
	var tasks []Task

	coinID, hasCoin := b.symbols.ResolveCoinID(company)
	if company.Type != model.CompanyCrypto && company.TokenSymbol == "" {
		hasCoin = false
	}
	ticker, hasTicker := b.symbols.ResolveTicker(company)
	if company.Type == model.CompanyPrivate && company.Ticker == "" {
		hasTicker = false
	}

	for _, dt := range model.SortTypes(types) {
		if tmpl, ok := tavilyQueries[dt]; ok && b.clients.Tavily != nil {
			query := fmt.Sprintf(tmpl, company.Name)
			tasks = append(tasks, b.tavilyTask(dt, query))
		}

		switch dt {
		case model.DataPrice:
			if hasCoin && b.clients.CoinGecko != nil {
				tasks = append(tasks, b.coingeckoTask(dt, coinID))
			}
			if hasTicker && b.clients.OpenBB != nil {
				tasks = append(tasks, b.openbbQuoteTask(ticker))
			}
		case model.DataMetrics:
			if hasTicker && b.clients.OpenBB != nil {
				tasks = append(tasks, b.openbbMetricsTask(ticker))
			}
			if hasCoin && b.clients.CoinGecko != nil {
				tasks = append(tasks, b.coingeckoTask(dt, coinID))
			}
		}
	}

	return tasks
}

func (b *Builder) tavilyTask(dt model.DataType, query string) Task {
	return Task{
		Provider: ProviderTavily,
		DataType: dt,
		Timeout:  TavilyTimeout,
		Call: b.guarded(ProviderTavily, func(ctx context.Context) (map[string]any, error) {
			resp, err := b.clients.Tavily.Search(ctx, tavily.SearchRequest{
				Query:         query,
				IncludeAnswer: true,
			})
			if err != nil {
				return nil, err
			}
			return tavilyPayload(resp), nil
		}),
	}
}

func (b *Builder) coingeckoTask(dt model.DataType, coinID string) Task {
	return Task{
		Provider: ProviderCoinGecko,
		DataType: dt,
		Timeout:  CoinGeckoTimeout,
		Call: b.guarded(ProviderCoinGecko, func(ctx context.Context) (map[string]any, error) {
			prices, err := b.clients.CoinGecko.SimplePrice(ctx, []string{coinID}, "usd")
			if err != nil {
				return nil, err
			}
			coin, ok := prices[coinID]
			if !ok {
				return nil, eris.Errorf("coingecko: no data for coin %s", coinID)
			}
			if dt == model.DataMetrics {
				return coingeckoMetricsPayload(coinID, coin), nil
			}
			return coingeckoPricePayload(coinID, coin), nil
		}),
	}
}

func (b *Builder) openbbQuoteTask(ticker string) Task {
	return Task{
		Provider: ProviderOpenBB,
		DataType: model.DataPrice,
		Timeout:  OpenBBTimeout,
		Call: b.guarded(ProviderOpenBB, func(ctx context.Context) (map[string]any, error) {
			quote, err := b.clients.OpenBB.EquityQuote(ctx, ticker)
			if err != nil {
				return nil, err
			}
			return openbbQuotePayload(quote), nil
		}),
	}
}

func (b *Builder) openbbMetricsTask(ticker string) Task {
	return Task{
		Provider: ProviderOpenBB,
		DataType: model.DataMetrics,
		Timeout:  OpenBBTimeout,
		Call: b.guarded(ProviderOpenBB, func(ctx context.Context) (map[string]any, error) {
			m, err := b.clients.OpenBB.EquityMetrics(ctx, ticker)
			if err != nil {
				return nil, err
			}
			return openbbMetricsPayload(m), nil
		}),
	}
}

// guarded wraps a provider call with the shared retry policy and the
// provider's circuit breaker. Transient HTTP statuses are classified here so
// the retry layer can tell them from permanent failures.
func (b *Builder) guarded(provider string, call func(ctx context.Context) (map[string]any, error)) func(ctx context.Context) (map[string]any, error) {
	classified := func(ctx context.Context) (map[string]any, error) {
		data, err := call(ctx)
		if err != nil {
			return nil, classifyProviderError(err)
		}
		return data, nil
	}

	return func(ctx context.Context) (map[string]any, error) {
		cfg := b.retry
		if cfg.OnRetry == nil {
			cfg.OnRetry = resilience.RetryLogger(provider, "fetch")
		}
		if b.breakers == nil {
			return resilience.DoVal(ctx, cfg, classified)
		}
		cb := b.breakers.Get(provider)
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (map[string]any, error) {
			return resilience.DoVal(ctx, cfg, classified)
		})
	}
}

// classifyProviderError marks retryable API responses as transient.
func classifyProviderError(err error) error {
	status := 0
	var tavErr *tavily.APIError
	var cgErr *coingecko.APIError
	var obbErr *openbb.APIError
	switch {
	case errors.As(err, &tavErr):
		status = tavErr.StatusCode
	case errors.As(err, &cgErr):
		status = cgErr.StatusCode
	case errors.As(err, &obbErr):
		status = obbErr.StatusCode
	}
	if status != 0 && resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
