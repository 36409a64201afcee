// Package market fetches listings, chart history and exchange rates from
// the CoinGecko HTTP API.
package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"crypto_tracker/internal/domain"
	"crypto_tracker/internal/infra"
)

const (
	DefaultBaseURL   = "https://api.coingecko.com/api/v3"
	DefaultChartDays = 365
)

// ChartCache stores raw chart payloads. Implementations never fail loudly.
type ChartCache interface {
	Save(key string, data []byte)
	Load(key string) ([]byte, bool)
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
	ChartDays         int
	BaseCurrency      string
	Cache             ChartCache
	InitialRates      *domain.RateTable
}

// Client talks to the market data API.
type Client struct {
	baseURL      string
	apiKey       string
	chartDays    int
	baseCurrency string
	httpClient   *http.Client
	limiter      *infra.RateLimiter
	breaker      *infra.CircuitBreaker
	cache        ChartCache
	rates        atomic.Pointer[domain.RateTable]
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		chartDays:    opts.ChartDays,
		baseCurrency: strings.ToLower(opts.BaseCurrency),
		httpClient:   &http.Client{Timeout: opts.Timeout},
		limiter:      infra.NewPerMinuteLimiter(opts.RequestsPerMinute),
		breaker:      infra.NewCircuitBreaker("coingecko", 5, time.Minute),
		cache:        opts.Cache,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.chartDays <= 0 {
		c.chartDays = DefaultChartDays
	}
	if c.baseCurrency == "" {
		c.baseCurrency = domain.BaseCurrency
	}

	rates := opts.InitialRates
	if rates == nil {
		rates = domain.NewRateTable(nil)
	}
	c.rates.Store(rates)

	return c
}

// get performs a GET on path and classifies every failure into an *Error.
func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Op: op, Err: err}
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	if !c.breaker.Allow() {
		return nil, &Error{Kind: KindServerError, Op: op, Err: errors.New("circuit open")}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.Failure()
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.Failure()
		return nil, &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Throttling says nothing about upstream health.
		c.breaker.Success()
		slog.Warn("Market API rate limit reached", slog.String("op", op))
		return nil, &Error{Kind: KindRateLimited, Op: op, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if resp.StatusCode >= 500 {
			c.breaker.Failure()
		} else {
			c.breaker.Success()
		}
		return nil, &Error{Kind: KindServerError, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%s", snippet(body))}
	}

	c.breaker.Success()
	return body, nil
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
