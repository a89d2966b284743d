package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/backtest"
	"github.com/aristath/hindsight/internal/modules/comparison"
	"github.com/aristath/hindsight/internal/modules/strategies"
	hstesting "github.com/aristath/hindsight/internal/testing"
)

type stubBars struct {
	bars []domain.Bar
}

func (s *stubBars) GetBars(_ context.Context, _ string, _, _ time.Time) ([]domain.Bar, error) {
	return s.bars, nil
}

type trackerBars struct {
	bars []domain.Bar
}

func (s *trackerBars) GetBars(string, time.Time, time.Time) ([]domain.Bar, error) {
	return s.bars, nil
}

func newTestHandler(t *testing.T, bars []domain.Bar) (*Handler, chi.Router) {
	t.Helper()
	db, cleanup := hstesting.NewTestDB(t, "results")
	t.Cleanup(cleanup)

	comparator := comparison.NewComparator(backtest.Config{InitialCapital: 10000, RiskFreeRate: 0.02}, zerolog.Nop())
	repo := comparison.NewSignalRepository(db, zerolog.Nop())
	tracker := comparison.NewTracker(repo, &trackerBars{bars: bars}, zerolog.Nop())

	h := NewHandler(comparator, tracker, &stubBars{bars: bars}, strategies.NewRegistry(), zerolog.Nop())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return h, r
}

func TestHandleCompareRanksStrategies(t *testing.T) {
	bars := hstesting.TrendingBars("AAPL", 120, 100, 0.5)
	_, router := newTestHandler(t, bars)

	body := `{"symbol":"AAPL","metric":"sharpe_ratio","start":"2024-01-01","end":"2024-12-31",
		"strategies":{"buy_and_hold":{},"sma_cross":{"fast":5,"slow":20}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/comparison/run", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "buy_and_hold")
	assert.Contains(t, rec.Body.String(), "sma_cross")
}

func TestHandleCompareStreamsCSV(t *testing.T) {
	bars := hstesting.TrendingBars("AAPL", 120, 100, 0.5)
	_, router := newTestHandler(t, bars)

	body := `{"symbol":"AAPL","metric":"total_return","start":"2024-01-01","end":"2024-12-31",
		"strategies":{"buy_and_hold":{}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/comparison/run?format=csv", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Strategy Name")
}

func TestHandleCompareRejectsUnknownStrategy(t *testing.T) {
	_, router := newTestHandler(t, hstesting.TrendingBars("AAPL", 30, 100, 0.5))

	body := `{"symbol":"AAPL","metric":"total_return","start":"2024-01-01","end":"2024-12-31",
		"strategies":{"no_such_strategy":{}}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/comparison/run", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecordSignalTracksBuyNotHold(t *testing.T) {
	_, router := newTestHandler(t, nil)

	buy := `{"strategy":"sma_cross","symbol":"AAPL","action":"BUY","signal_price":100,
		"confidence":0.8,"lookahead_days":5,"signal_date":"2024-03-01"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/comparison/signals", strings.NewReader(buy)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tracked":true`)

	hold := `{"strategy":"sma_cross","symbol":"AAPL","action":"HOLD","signal_price":100,
		"confidence":0.5,"lookahead_days":5,"signal_date":"2024-03-01"}`
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/comparison/signals", strings.NewReader(hold)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tracked":false`)
}

func TestHandleEvaluateThenAccuracyReport(t *testing.T) {
	// Realized price above the signal price makes the BUY correct.
	bars := hstesting.BarsFromClosesAt("AAPL", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		[]float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109})
	_, router := newTestHandler(t, bars)

	buy := `{"strategy":"sma_cross","symbol":"AAPL","action":"BUY","signal_price":100,
		"confidence":0.9,"lookahead_days":5,"signal_date":"2024-03-01"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/comparison/signals", strings.NewReader(buy)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/comparison/signals/evaluate?as_of=2024-03-20", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"evaluated":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/comparison/accuracy", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sma_cross")
}
