package openbb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.openbb.co/api/v1"

// Client fetches equity market data from an OpenBB Platform API deployment.
type Client interface {
	EquityQuote(ctx context.Context, symbol string) (*Quote, error)
	EquityMetrics(ctx context.Context, symbol string) (*Metrics, error)
}

// Quote is a single entry from GET /equity/price/quote.
type Quote struct {
	Symbol        string  `json:"symbol"`
	LastPrice     float64 `json:"last_price"`
	Volume        float64 `json:"volume"`
	ChangePercent float64 `json:"change_percent"`
}

// Metrics is a single entry from GET /equity/fundamental/metrics.
type Metrics struct {
	Symbol    string  `json:"symbol"`
	MarketCap float64 `json:"market_cap"`
	PERatio   float64 `json:"pe_ratio"`
	EPS       float64 `json:"eps"`
	DivYield  float64 `json:"dividend_yield"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "openbb: unexpected status " + http.StatusText(e.StatusCode) + ": " + e.Body
}

// ErrNoResults is returned when the API answers with an empty result set.
var ErrNoResults = eris.New("openbb: no results")

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates an OpenBB Platform API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// envelope is the standard OpenBB response wrapper.
type envelope struct {
	Results json.RawMessage `json:"results"`
}

func (c *httpClient) EquityQuote(ctx context.Context, symbol string) (*Quote, error) {
	var out []Quote
	if err := c.get(ctx, "/equity/price/quote", symbol, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return &out[0], nil
}

func (c *httpClient) EquityMetrics(ctx context.Context, symbol string) (*Metrics, error) {
	var out []Metrics
	if err := c.get(ctx, "/equity/fundamental/metrics", symbol, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoResults
	}
	return &out[0], nil
}

func (c *httpClient) get(ctx context.Context, path, symbol string, out any) error {
	q := url.Values{}
	q.Set("symbol", symbol)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "openbb: create request")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "openbb: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "openbb: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return eris.Wrap(err, "openbb: unmarshal response")
	}
	if err := json.Unmarshal(env.Results, out); err != nil {
		return eris.Wrap(err, "openbb: unmarshal results")
	}

	return nil
}
