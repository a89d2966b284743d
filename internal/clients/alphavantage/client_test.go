package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
)

func TestNewClient(t *testing.T) {
	client := NewClient("test-key", "", zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "alphavantage", client.Name())
	assert.Equal(t, FreeTierDailyLimit, client.RemainingRequests())
}

func TestRateLimiting(t *testing.T) {
	client := NewClient("test-key", "", zerolog.Nop())

	for i := 0; i < FreeTierDailyLimit; i++ {
		assert.Equal(t, FreeTierDailyLimit-i, client.RemainingRequests())
		require.NoError(t, client.checkRateLimit())
	}

	err := client.checkRateLimit()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestParseFloat64(t *testing.T) {
	testCases := []struct {
		input    string
		expected float64
	}{
		{"123.45", 123.45},
		{"0", 0},
		{"None", 0},
		{"", 0},
		{"null", 0},
		{"-", 0},
		{"50.5%", 50.5},
		{"invalid", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseFloat64(tc.input))
		})
	}
}

func TestParseFloat64Ptr(t *testing.T) {
	v := parseFloat64Ptr("123.45")
	require.NotNil(t, v)
	assert.Equal(t, 123.45, *v)

	assert.Nil(t, parseFloat64Ptr("None"))
	assert.Nil(t, parseFloat64Ptr(""))
	assert.Nil(t, parseFloat64Ptr("null"))
}

func TestParseDailyTimeSeries(t *testing.T) {
	jsonData := `{
		"Meta Data": {
			"1. Information": "Daily Prices",
			"2. Symbol": "IBM"
		},
		"Time Series (Daily)": {
			"2024-01-15": {
				"1. open": "185.00",
				"2. high": "186.50",
				"3. low": "184.50",
				"4. close": "186.20",
				"5. volume": "3456789"
			},
			"2024-01-12": {
				"1. open": "184.50",
				"2. high": "185.50",
				"3. low": "184.00",
				"4. close": "185.00",
				"5. volume": "3214567"
			}
		}
	}`

	bars, err := parseDailyTimeSeries("IBM", []byte(jsonData))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	// Strictly ascending by date
	assert.Equal(t, "2024-01-12", bars[0].DateKey())
	assert.Equal(t, "2024-01-15", bars[1].DateKey())
	assert.Equal(t, 185.0, bars[1].Open)
	assert.Equal(t, 186.5, bars[1].High)
	assert.Equal(t, 184.5, bars[1].Low)
	assert.Equal(t, 186.2, bars[1].Close)
	assert.Equal(t, float64(3456789), bars[1].Volume)
}

func TestParseGlobalQuote(t *testing.T) {
	jsonData := `{
		"Global Quote": {
			"01. symbol": "IBM",
			"02. open": "185.00",
			"03. high": "186.50",
			"04. low": "184.50",
			"05. price": "186.20",
			"06. volume": "3456789",
			"07. latest trading day": "2024-01-15",
			"08. previous close": "185.00",
			"09. change": "1.20",
			"10. change percent": "0.65%"
		}
	}`

	quote, err := parseGlobalQuote("IBM", []byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "IBM", quote.Symbol)
	assert.Equal(t, 186.2, quote.Close)
	assert.Equal(t, "2024-01-15", quote.DateKey())
	assert.False(t, quote.FetchedAt.IsZero())
}

func TestParseOverview(t *testing.T) {
	jsonData := `{
		"Symbol": "IBM",
		"Sector": "TECHNOLOGY",
		"Industry": "INFORMATION TECHNOLOGY SERVICES",
		"MarketCapitalization": "125000000000",
		"PERatio": "20.5",
		"PriceToBookRatio": "7.1",
		"ReturnOnEquityTTM": "0.31",
		"ProfitMargin": "0.12",
		"QuarterlyRevenueGrowthYOY": "0.04",
		"DividendPerShare": "6.64",
		"PayoutRatio": "0.72",
		"AnalystTargetPrice": "190.50",
		"DebtToEquity": "None"
	}`

	f, err := parseOverview("IBM", []byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "IBM", f.Symbol)
	assert.Equal(t, "Technology", f.Sector)
	require.NotNil(t, f.PERatio)
	assert.Equal(t, 20.5, *f.PERatio)
	require.NotNil(t, f.AnalystTarget)
	assert.Equal(t, 190.5, *f.AnalystTarget)
	assert.Nil(t, f.DebtToEquity)
	assert.Nil(t, f.CurrentRatio)
}

func TestCheckAPIError(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name:    "rate limit note",
			body:    `{"Note": "API call frequency is limited"}`,
			wantErr: domain.ErrRateLimited,
		},
		{
			name:    "information throttle",
			body:    `{"Information": "Please subscribe to a premium plan"}`,
			wantErr: domain.ErrRateLimited,
		},
		{
			name:    "thank you throttle",
			body:    `Thank you for using Alpha Vantage!`,
			wantErr: domain.ErrRateLimited,
		},
		{
			name:    "invalid symbol",
			body:    `{"Error Message": "Invalid API call"}`,
			wantErr: domain.ErrInvalidInput,
		},
		{
			name: "valid response",
			body: `{"data": "valid"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkAPIError([]byte(tc.body))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFetchDailyBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{
			"Time Series (Daily)": {
				"2024-01-15": {"1. open": "185.00", "2. high": "186.50", "3. low": "184.50", "4. close": "186.20", "5. volume": "3456789"},
				"2024-01-12": {"1. open": "184.00", "2. high": "185.00", "3. low": "183.50", "4. close": "185.00", "5. volume": "3000000"},
				"2023-12-29": {"1. open": "180.00", "2. high": "181.00", "3. low": "179.50", "4. close": "180.50", "5. volume": "2500000"}
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL, zerolog.Nop())

	start, err := domain.ParseDate("2024-01-01")
	require.NoError(t, err)
	end, err := domain.ParseDate("2024-01-31")
	require.NoError(t, err)

	bars, err := client.FetchDailyBars(context.Background(), "IBM", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2, "bars outside the window are clipped")
	assert.Equal(t, "2024-01-12", bars[0].DateKey())
	assert.Equal(t, "2024-01-15", bars[1].DateKey())
}

func TestFetchQuoteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL, zerolog.Nop())
	_, err := client.FetchQuote(context.Background(), "IBM")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestNextMidnightUTC(t *testing.T) {
	midnight := nextMidnightUTC()

	now := time.Now().UTC()
	assert.True(t, midnight.After(now))
	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, 0, midnight.Minute())
	assert.Equal(t, 0, midnight.Second())
}
