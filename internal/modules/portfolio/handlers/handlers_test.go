package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/modules/portfolio"
	hstesting "github.com/aristath/hindsight/internal/testing"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	db, cleanup := hstesting.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	manager := portfolio.NewManager(portfolio.NewRepository(db, zerolog.Nop()), zerolog.Nop())
	r := chi.NewRouter()
	NewHandler(manager, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func createPortfolio(t *testing.T, router chi.Router) string {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios",
		strings.NewReader(`{"user_id":"u1","base_currency":"USD","cash":10000}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var state struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.NotEmpty(t, state.ID)
	return state.ID
}

func TestHandleCreateAndGet(t *testing.T) {
	router := newTestRouter(t)
	id := createPortfolio(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/"+id, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cash":10000`)
}

func TestHandleCreateRejectsNonPositiveCash(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios",
		strings.NewReader(`{"user_id":"u1","cash":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommitBuyThenTradeLog(t *testing.T) {
	router := newTestRouter(t)
	id := createPortfolio(t, router)

	buy := `{"symbol":"AAPL","action":"BUY","shares":10,"fill_price":100,"commission":1,
		"date":"2024-03-01","strategy_name":"sma_cross"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios/"+id+"/trades", strings.NewReader(buy)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/"+id+"/trades", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), "AAPL")
}

func TestHandleCommitRejectsOverspend(t *testing.T) {
	router := newTestRouter(t)
	id := createPortfolio(t, router)

	buy := `{"symbol":"AAPL","action":"BUY","shares":1000,"fill_price":100,"date":"2024-03-01"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios/"+id+"/trades", strings.NewReader(buy)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_funds")
}

func TestHandleTradesStreamsCSV(t *testing.T) {
	router := newTestRouter(t)
	id := createPortfolio(t, router)

	buy := `{"symbol":"AAPL","action":"BUY","shares":10,"fill_price":100,"date":"2024-03-01",
		"strategy_name":"sma_cross"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios/"+id+"/trades", strings.NewReader(buy)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/"+id+"/trades?format=csv", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Fill Price")
	assert.Contains(t, rec.Body.String(), "2024-03-01,AAPL,BUY,10,100.00,0.00,sma_cross")
}

func TestHandleValueMarksToMarket(t *testing.T) {
	router := newTestRouter(t)
	id := createPortfolio(t, router)

	buy := `{"symbol":"AAPL","action":"BUY","shares":10,"fill_price":100,"date":"2024-03-01"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios/"+id+"/trades", strings.NewReader(buy)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios/"+id+"/value",
		strings.NewReader(`{"marks":{"AAPL":110}}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"net_worth"`)
}

func TestHandleSnapshotRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	id := createPortfolio(t, router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/portfolios/"+id+"/snapshots", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/"+id+"/snapshots/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cash":10000`)
}

func TestHandleGetMissingPortfolio(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/portfolios/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
