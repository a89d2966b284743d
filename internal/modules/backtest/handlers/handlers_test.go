package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/work"
)

// stubQueue records submissions and serves canned runs.
type stubQueue struct {
	submitted []work.RunKind
	runs      map[string]*work.Run
	cancelErr error
}

func (s *stubQueue) Submit(kind work.RunKind, symbol, strategy, metric string, params any) (string, error) {
	s.submitted = append(s.submitted, kind)
	return fmt.Sprintf("run-%d", len(s.submitted)), nil
}

func (s *stubQueue) Get(id string) (*work.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
	}
	return run, nil
}

func (s *stubQueue) List(limit int) ([]work.Run, error) {
	var out []work.Run
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (s *stubQueue) Cancel(id string) error { return s.cancelErr }

func newTestRouter(q RunQueue) chi.Router {
	r := chi.NewRouter()
	NewHandler(q, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func TestHandleRunQueuesAndReturnsAccepted(t *testing.T) {
	q := &stubQueue{}
	router := newTestRouter(q)

	body := `{"symbol":"AAPL","strategy":"sma_cross","start":"2024-01-02","end":"2024-06-28"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backtest/run", strings.NewReader(body)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")
	require.Len(t, q.submitted, 1)
	assert.Equal(t, work.KindBacktestSingle, q.submitted[0])
}

func TestHandleMarginRunUsesMarginKind(t *testing.T) {
	q := &stubQueue{}
	router := newTestRouter(q)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backtest/margin",
		strings.NewReader(`{"symbol":"TSLA","strategy":"rsi_reversion","start":"2024-01-02","end":"2024-06-28"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, q.submitted, 1)
	assert.Equal(t, work.KindBacktestMargin, q.submitted[0])
}

func TestHandleRunRejectsBadBody(t *testing.T) {
	router := newTestRouter(&stubQueue{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/backtest/run", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRunMapsNotFound(t *testing.T) {
	router := newTestRouter(&stubQueue{runs: map[string]*work.Run{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backtest/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestHandleGetRunReturnsRun(t *testing.T) {
	router := newTestRouter(&stubQueue{runs: map[string]*work.Run{
		"run-9": {ID: "run-9", Kind: work.KindBacktestSingle, Status: work.StatusCompleted},
	}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backtest/runs/run-9", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed"`)
}

func TestHandleCancelRunMapsAlreadyFinished(t *testing.T) {
	router := newTestRouter(&stubQueue{
		cancelErr: fmt.Errorf("%w: run x already finished", domain.ErrInvalidInput),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/backtest/runs/x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
