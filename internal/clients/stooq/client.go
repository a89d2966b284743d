// Package stooq provides a client for the Stooq end-of-day CSV endpoint.
// It serves as the fallback bar provider; Stooq has no fundamentals, so
// those calls report unavailability and the facade moves on.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
)

// Client fetches daily bars from stooq.com.
type Client struct {
	baseURL    string
	suffix     string // exchange suffix appended to symbols, e.g. ".us"
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a Stooq client. baseURL may be empty to use the public
// endpoint; suffix defaults to ".us".
func NewClient(baseURL, suffix string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://stooq.com"
	}
	if suffix == "" {
		suffix = ".us"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		suffix:     suffix,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("client", "stooq").Logger(),
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Name implements domain.MarketDataProvider.
func (c *Client) Name() string { return "stooq" }

// FetchDailyBars implements domain.MarketDataProvider.
func (c *Client) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	reqURL := fmt.Sprintf("%s/q/d/l/?s=%s&d1=%s&d2=%s&i=d",
		c.baseURL,
		strings.ToLower(symbol)+c.suffix,
		start.UTC().Format("20060102"),
		end.UTC().Format("20060102"),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request aborted: %w", domain.ErrCancelled)
		}
		return nil, fmt.Errorf("stooq request failed: %w: %w", err, domain.ErrDataUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("stooq returned 429: %w", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq returned status %d: %w", resp.StatusCode, domain.ErrDataUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w: %w", err, domain.ErrDataUnavailable)
	}

	return parseCSV(symbol, body)
}

// FetchFundamentals implements domain.MarketDataProvider. Stooq has no
// fundamentals endpoint.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	return nil, fmt.Errorf("stooq does not serve fundamentals: %w", domain.ErrDataUnavailable)
}

// FetchQuote implements domain.MarketDataProvider by taking the most recent
// bar of the trailing week.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	end := time.Now().UTC()
	bars, err := c.FetchDailyBars(ctx, symbol, end.AddDate(0, 0, -7), end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no recent bars for %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return &domain.Quote{Bar: bars[len(bars)-1], FetchedAt: time.Now().UTC()}, nil
}

// parseCSV converts the Date,Open,High,Low,Close,Volume payload into bars.
// Stooq answers unknown symbols with a body of "No data".
func parseCSV(symbol string, body []byte) ([]domain.Bar, error) {
	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "No data") {
		return nil, fmt.Errorf("stooq has no data for %s: %w", symbol, domain.ErrInvalidInput)
	}

	reader := csv.NewReader(strings.NewReader(text))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse stooq csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("stooq csv empty for %s: %w", symbol, domain.ErrDataUnavailable)
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) < 5 {
			continue
		}
		day, err := domain.ParseDate(rec[0])
		if err != nil {
			continue
		}
		bar := domain.Bar{
			Symbol: symbol,
			Date:   day,
			Open:   parseFloat(rec[1]),
			High:   parseFloat(rec[2]),
			Low:    parseFloat(rec[3]),
			Close:  parseFloat(rec[4]),
		}
		if len(rec) > 5 {
			bar.Volume = parseFloat(rec[5])
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

var _ domain.MarketDataProvider = (*Client)(nil)
