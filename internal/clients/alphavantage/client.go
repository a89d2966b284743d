// Package alphavantage provides a client for the Alpha Vantage market data
// API. It serves daily bars, company fundamentals and latest quotes, and is
// the primary provider in the data facade's fallback chain.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
)

// FreeTierDailyLimit is the request budget of a free API key. The client
// refuses to exceed it; the facade then rotates to the fallback provider.
const FreeTierDailyLimit = 25

// Client talks to the Alpha Vantage REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	mu            sync.Mutex
	requestsToday int
	counterResets time.Time
}

// NewClient creates an Alpha Vantage client. baseURL may be empty to use the
// public endpoint.
func NewClient(apiKey, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}
	return &Client{
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		log:           log.With().Str("client", "alphavantage").Logger(),
		counterResets: nextMidnightUTC(),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used to apply the
// configured provider timeout and by tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Name implements domain.MarketDataProvider.
func (c *Client) Name() string { return "alphavantage" }

// RemainingRequests returns how many requests are left in today's budget.
func (c *Client) RemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetCounter()
	return FreeTierDailyLimit - c.requestsToday
}

// checkRateLimit consumes one request from the daily budget.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeResetCounter()
	if c.requestsToday >= FreeTierDailyLimit {
		return fmt.Errorf("alphavantage daily budget of %d exhausted: %w",
			FreeTierDailyLimit, domain.ErrRateLimited)
	}
	c.requestsToday++
	return nil
}

func (c *Client) maybeResetCounter() {
	if time.Now().UTC().After(c.counterResets) {
		c.requestsToday = 0
		c.counterResets = nextMidnightUTC()
	}
}

// FetchDailyBars implements domain.MarketDataProvider. Bars are returned
// strictly ascending by date, clipped to [start, end] inclusive.
func (c *Client) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	outputSize := "compact"
	if time.Since(start) > 100*24*time.Hour {
		outputSize = "full"
	}

	body, err := c.get(ctx, map[string]string{
		"function":   "TIME_SERIES_DAILY",
		"symbol":     symbol,
		"outputsize": outputSize,
	})
	if err != nil {
		return nil, err
	}

	bars, err := parseDailyTimeSeries(symbol, body)
	if err != nil {
		return nil, err
	}

	startDay, endDay := domain.Day(start), domain.Day(end)
	out := bars[:0]
	for _, b := range bars {
		if b.Date.Before(startDay) || b.Date.After(endDay) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// FetchFundamentals implements domain.MarketDataProvider using the OVERVIEW
// endpoint. Metrics the endpoint does not carry stay nil.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	body, err := c.get(ctx, map[string]string{
		"function": "OVERVIEW",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}
	return parseOverview(symbol, body)
}

// FetchQuote implements domain.MarketDataProvider using GLOBAL_QUOTE.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	body, err := c.get(ctx, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}
	return parseGlobalQuote(symbol, body)
}

// get performs one API call with rate-limit accounting and error
// classification.
func (c *Client) get(ctx context.Context, params map[string]string) ([]byte, error) {
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("apikey", c.apiKey)

	reqURL := c.baseURL + "/query?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request aborted: %w", domain.ErrCancelled)
		}
		return nil, fmt.Errorf("alphavantage request failed: %w: %w", err, domain.ErrDataUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("alphavantage returned 429: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage returned status %d: %w", resp.StatusCode, domain.ErrDataUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w: %w", err, domain.ErrDataUnavailable)
	}

	if err := checkAPIError(body); err != nil {
		return nil, err
	}

	c.log.Debug().Str("function", params["function"]).Str("symbol", params["symbol"]).Msg("API call completed")
	return body, nil
}

// checkAPIError detects Alpha Vantage's in-band error payloads, which arrive
// with HTTP 200.
func checkAPIError(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "Thank you for using Alpha Vantage") {
		return fmt.Errorf("alphavantage throttled the request: %w", domain.ErrRateLimited)
	}

	var envelope struct {
		Note         string `json:"Note"`
		Information  string `json:"Information"`
		ErrorMessage string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Not an error envelope; let the caller's parser decide
		return nil
	}

	switch {
	case envelope.Note != "":
		return fmt.Errorf("alphavantage note: %s: %w", envelope.Note, domain.ErrRateLimited)
	case envelope.Information != "":
		return fmt.Errorf("alphavantage information: %s: %w", envelope.Information, domain.ErrRateLimited)
	case envelope.ErrorMessage != "":
		// Invalid or unknown symbol; permanent, never retried
		return fmt.Errorf("alphavantage error: %s: %w", envelope.ErrorMessage, domain.ErrInvalidInput)
	}
	return nil
}

// parseDailyTimeSeries converts a TIME_SERIES_DAILY payload into ascending
// bars.
func parseDailyTimeSeries(symbol string, body []byte) ([]domain.Bar, error) {
	var payload struct {
		Series map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse daily time series: %w", err)
	}
	if len(payload.Series) == 0 {
		return nil, fmt.Errorf("daily time series empty for %s: %w", symbol, domain.ErrDataUnavailable)
	}

	dates := make([]string, 0, len(payload.Series))
	for d := range payload.Series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	bars := make([]domain.Bar, 0, len(dates))
	for _, d := range dates {
		day, err := domain.ParseDate(d)
		if err != nil {
			continue
		}
		row := payload.Series[d]
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   day,
			Open:   parseFloat64(row["1. open"]),
			High:   parseFloat64(row["2. high"]),
			Low:    parseFloat64(row["3. low"]),
			Close:  parseFloat64(row["4. close"]),
			Volume: parseFloat64(row["5. volume"]),
		})
	}
	return bars, nil
}

// parseGlobalQuote converts a GLOBAL_QUOTE payload into a quote.
func parseGlobalQuote(symbol string, body []byte) (*domain.Quote, error) {
	var payload struct {
		Quote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse global quote: %w", err)
	}
	if len(payload.Quote) == 0 {
		return nil, fmt.Errorf("global quote empty for %s: %w", symbol, domain.ErrDataUnavailable)
	}

	day, err := domain.ParseDate(payload.Quote["07. latest trading day"])
	if err != nil {
		day = domain.Day(time.Now())
	}

	return &domain.Quote{
		Bar: domain.Bar{
			Symbol: symbol,
			Date:   day,
			Open:   parseFloat64(payload.Quote["02. open"]),
			High:   parseFloat64(payload.Quote["03. high"]),
			Low:    parseFloat64(payload.Quote["04. low"]),
			Close:  parseFloat64(payload.Quote["05. price"]),
			Volume: parseFloat64(payload.Quote["06. volume"]),
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// parseOverview converts an OVERVIEW payload into a fundamentals snapshot.
func parseOverview(symbol string, body []byte) (*domain.Fundamentals, error) {
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse overview: %w", err)
	}
	if payload["Symbol"] == "" {
		return nil, fmt.Errorf("overview empty for %s: %w", symbol, domain.ErrDataUnavailable)
	}

	now := time.Now().UTC()
	f := &domain.Fundamentals{
		Symbol:           symbol,
		AsOf:             now,
		Sector:           titleCase(payload["Sector"]),
		Industry:         titleCase(payload["Industry"]),
		MarketCap:        parseFloat64Ptr(payload["MarketCapitalization"]),
		PERatio:          parseFloat64Ptr(payload["PERatio"]),
		PBRatio:          parseFloat64Ptr(payload["PriceToBookRatio"]),
		ROE:              parseFloat64Ptr(payload["ReturnOnEquityTTM"]),
		ROA:              parseFloat64Ptr(payload["ReturnOnAssetsTTM"]),
		NetMargin:        parseFloat64Ptr(payload["ProfitMargin"]),
		OperatingMargin:  parseFloat64Ptr(payload["OperatingMarginTTM"]),
		RevenueGrowth:    parseFloat64Ptr(payload["QuarterlyRevenueGrowthYOY"]),
		EarningsGrowth:   parseFloat64Ptr(payload["QuarterlyEarningsGrowthYOY"]),
		DividendPerShare: parseFloat64Ptr(payload["DividendPerShare"]),
		PayoutRatio:      parseFloat64Ptr(payload["PayoutRatio"]),
		AnalystTarget:    parseFloat64Ptr(payload["AnalystTargetPrice"]),
		FetchedAt:        &now,
	}
	return f, nil
}

// parseFloat64 parses Alpha Vantage numeric strings, tolerating the
// sentinels the API uses for missing values and trailing percent signs.
func parseFloat64(s string) float64 {
	if v := parseFloat64Ptr(s); v != nil {
		return *v
	}
	return 0
}

// parseFloat64Ptr is parseFloat64 returning nil for missing values.
func parseFloat64Ptr(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	switch s {
	case "", "None", "null", "-", ".":
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// titleCase normalizes Alpha Vantage's SHOUTED sector strings.
func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" {
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// nextMidnightUTC returns the next UTC midnight, when the daily request
// budget resets.
func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

var _ domain.MarketDataProvider = (*Client)(nil)
