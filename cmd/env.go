package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portfolio-cli/internal/cache"
	"github.com/sells-group/portfolio-cli/internal/config"
	"github.com/sells-group/portfolio-cli/internal/fetch"
	"github.com/sells-group/portfolio-cli/internal/resilience"
	"github.com/sells-group/portfolio-cli/pkg/coingecko"
	"github.com/sells-group/portfolio-cli/pkg/openbb"
	"github.com/sells-group/portfolio-cli/pkg/tavily"
)

// env bundles the wired components a command needs.
type env struct {
	Store    cache.Store
	Service  *fetch.Service
	Breakers *resilience.ProviderBreakers
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// openStore creates the configured cache backend and runs migrations.
func openStore(ctx context.Context, c config.CacheConfig) (cache.Store, error) {
	var store cache.Store
	var err error
	switch c.Driver {
	case "postgres":
		store, err = cache.NewPostgres(ctx, c.DatabaseURL)
	case "sqlite", "":
		store, err = cache.NewSQLite(c.DatabaseURL)
	case "redis":
		store, err = cache.NewRedis(ctx, c.RedisAddr, c.RedisDB)
	default:
		return nil, eris.Errorf("unknown cache driver %q", c.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// initEnv wires the store, provider clients, and fetch service from config.
func initEnv(ctx context.Context) (*env, error) {
	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	symbols := fetch.NewSymbolTable()
	if cfg.Fetch.SymbolsFile != "" {
		symbols, err = fetch.LoadSymbolTable(cfg.Fetch.SymbolsFile)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	clients := fetch.Clients{
		Tavily: tavily.NewClient(cfg.Tavily.Key, tavily.WithBaseURL(cfg.Tavily.BaseURL)),
		CoinGecko: coingecko.NewClient(cfg.CoinGecko.Key,
			coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
			coingecko.WithRateLimit(time.Duration(cfg.CoinGecko.RateEverySecs*float64(time.Second))),
		),
		OpenBB: openbb.NewClient(cfg.OpenBB.Key, openbb.WithBaseURL(cfg.OpenBB.BaseURL)),
	}

	breakers := resilience.NewProviderBreakers(resilience.CircuitBreakerConfig{})
	retry := resilience.DefaultRetryConfig()
	if cfg.Fetch.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Fetch.RetryAttempts
	}

	builder := fetch.NewBuilder(clients, symbols, breakers, retry)
	grace := time.Duration(cfg.Cache.LockGraceSecs) * time.Second
	svc := fetch.NewService(store, builder, fetch.NewExecutor(), grace)

	return &env{Store: store, Service: svc, Breakers: breakers}, nil
}
