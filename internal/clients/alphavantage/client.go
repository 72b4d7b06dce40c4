// Package alphavantage provides a GLOBAL_QUOTE client for the Alpha Vantage API.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/aristath/eqtrak/internal/domain"
)

const (
	DefaultBaseURL = "https://www.alphavantage.co/query"
	DefaultTimeout = 10 * time.Second
	// DefaultRequestsPerMinute is the free-tier allowance.
	DefaultRequestsPerMinute = 5
	// Source is the provenance recorded for prices from this client.
	Source = "ALPHA_VANTAGE"
)

// ErrThrottled is returned when the API answers with a rate-limit notice
// instead of data.
var ErrThrottled = errors.New("alpha vantage request limit reached")

// ErrUnknownSymbol is returned when the API has no quote for a ticker.
var ErrUnknownSymbol = errors.New("alpha vantage has no quote for symbol")

// Client fetches latest prices. Requests are rate limited and never retried.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithRequestsPerMinute sets the request rate
func WithRequestsPerMinute(n int) ClientOption {
	return func(c *Client) {
		c.limiter = newLimiter(n)
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    newLimiter(DefaultRequestsPerMinute),
		log:        log.With().Str("client", "alphavantage").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// APIError is a non-200 HTTP response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpha vantage API error: %s (status: %d)", e.Message, e.StatusCode)
}

type globalQuoteResponse struct {
	Quote struct {
		Symbol           string `json:"01. symbol"`
		Price            string `json:"05. price"`
		LatestTradingDay string `json:"07. latest trading day"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// LatestPrice returns the latest traded price of ticker.
func (c *Client) LatestPrice(ctx context.Context, ticker string) (domain.PriceQuote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return domain.PriceQuote{}, fmt.Errorf("ticker is required")
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", ticker)

	var resp globalQuoteResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return domain.PriceQuote{}, err
	}

	switch {
	case resp.ErrorMessage != "":
		return domain.PriceQuote{}, fmt.Errorf("%w: %s: %s", ErrUnknownSymbol, ticker, resp.ErrorMessage)
	case resp.Note != "" || resp.Information != "":
		return domain.PriceQuote{}, ErrThrottled
	case resp.Quote.Price == "":
		return domain.PriceQuote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, ticker)
	}

	price, err := decimal.NewFromString(resp.Quote.Price)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("failed to parse price %q: %w", resp.Quote.Price, err)
	}
	date, err := time.Parse("2006-01-02", resp.Quote.LatestTradingDay)
	if err != nil {
		date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	c.log.Debug().Str("ticker", ticker).Str("price", price.String()).Msg("Fetched quote")
	return domain.PriceQuote{
		Date:   date,
		Ticker: ticker,
		Source: Source,
		Price:  price,
	}, nil
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
