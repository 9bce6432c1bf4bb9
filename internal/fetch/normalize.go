package fetch

import (
	"github.com/sells-group/portfolio-cli/pkg/coingecko"
	"github.com/sells-group/portfolio-cli/pkg/openbb"
	"github.com/sells-group/portfolio-cli/pkg/tavily"
)

// Provider responses are flattened into section payloads with stable field
// names so cached records look the same regardless of which provider answered.

func tavilyPayload(resp *tavily.SearchResponse) map[string]any {
	sources := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		sources = append(sources, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"content": r.Content,
			"score":   r.Score,
		})
	}
	out := map[string]any{
		"query":   resp.Query,
		"sources": sources,
	}
	if resp.Answer != "" {
		out["summary"] = resp.Answer
	}
	return out
}

func coingeckoPricePayload(coinID string, coin coingecko.CoinPrice) map[string]any {
	return map[string]any{
		"coin_id":       coinID,
		"current_price": coin.Price,
		"market_cap":    coin.MarketCap,
		"volume_24h":    coin.Volume24h,
		"change_24h":    coin.Change24h,
	}
}

func coingeckoMetricsPayload(coinID string, coin coingecko.CoinPrice) map[string]any {
	return map[string]any{
		"coin_id":    coinID,
		"market_cap": coin.MarketCap,
		"volume_24h": coin.Volume24h,
	}
}

func openbbQuotePayload(q *openbb.Quote) map[string]any {
	return map[string]any{
		"symbol":        q.Symbol,
		"current_price": q.LastPrice,
		"volume_24h":    q.Volume,
		"change_24h":    q.ChangePercent,
	}
}

func openbbMetricsPayload(m *openbb.Metrics) map[string]any {
	return map[string]any{
		"symbol":         m.Symbol,
		"market_cap":     m.MarketCap,
		"pe_ratio":       m.PERatio,
		"eps":            m.EPS,
		"dividend_yield": m.DivYield,
	}
}
