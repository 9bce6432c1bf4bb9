package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(srvURL string) Client {
	return NewClient("", WithBaseURL(srvURL), WithRateLimit(time.Microsecond))
}

func TestSimplePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "ethereum", q.Get("ids"))
		assert.Equal(t, "usd", q.Get("vs_currencies"))
		assert.Equal(t, "true", q.Get("include_market_cap"))
		assert.Equal(t, "true", q.Get("include_24hr_vol"))
		assert.Equal(t, "true", q.Get("include_24hr_change"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ethereum":{"usd":2501.5,"usd_market_cap":3.0e11,"usd_24h_vol":1.2e10,"usd_24h_change":-1.8}}`))
	}))
	defer srv.Close()

	prices, err := fastClient(srv.URL).SimplePrice(context.Background(), []string{"ethereum"}, "usd")
	require.NoError(t, err)
	require.Contains(t, prices, "ethereum")
	assert.Equal(t, 2501.5, prices["ethereum"].Price)
	assert.Equal(t, 3.0e11, prices["ethereum"].MarketCap)
	assert.Equal(t, -1.8, prices["ethereum"].Change24h)
}

func TestSimplePrice_APIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("demo-key", WithBaseURL(srv.URL), WithRateLimit(time.Microsecond))
	_, err := c.SimplePrice(context.Background(), []string{"bitcoin"}, "usd")
	require.NoError(t, err)
}

func TestSimplePrice_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"status":{"error_code":429}}`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).SimplePrice(context.Background(), []string{"bitcoin"}, "usd")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestSimplePrice_LimiterHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	// Default pacing is one request per two seconds; a cancelled context must
	// not block in the limiter.
	c := NewClient("", WithBaseURL(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.SimplePrice(ctx, []string{"bitcoin"}, "usd")
	require.NoError(t, err)

	cancel()
	_, err = c.SimplePrice(ctx, []string{"bitcoin"}, "usd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestSimplePrice_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).SimplePrice(context.Background(), []string{"bitcoin"}, "usd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("")
	hc := c.(*httpClient)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.NotNil(t, hc.limiter)
	assert.NotNil(t, hc.http)
}
