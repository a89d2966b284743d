package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/hindsight/internal/domain"
)

// Manager owns the live portfolio books. Every book is loaded once and kept
// in memory; commits mutate the book and the ledger inside the same critical
// section, so a trade is either fully journaled or fully absent.
type Manager struct {
	repo *Repository
	log  zerolog.Logger

	mu    sync.Mutex
	books map[string]*Portfolio

	now func() time.Time
}

func NewManager(repo *Repository, log zerolog.Logger) *Manager {
	return &Manager{
		repo:  repo,
		log:   log.With().Str("service", "portfolio").Logger(),
		books: make(map[string]*Portfolio),
		now:   time.Now,
	}
}

// Create opens a new portfolio with the given starting cash.
func (m *Manager) Create(userID, baseCurrency string, cash float64) (State, error) {
	if cash <= 0 {
		return State{}, fmt.Errorf("%w: starting cash must be positive, got %.2f", domain.ErrInvalidParameter, cash)
	}
	if baseCurrency == "" {
		baseCurrency = "USD"
	}

	p := New(uuid.NewString(), userID, baseCurrency, cash, m.now().UTC())
	if err := m.repo.CreatePortfolio(p); err != nil {
		return State{}, err
	}

	m.mu.Lock()
	m.books[p.ID] = p
	m.mu.Unlock()

	m.log.Info().Str("portfolio_id", p.ID).Float64("cash", cash).Msg("Portfolio created")
	return p.Snapshot(), nil
}

// book returns the in-memory handle for a portfolio, loading it from the
// ledger on first access.
func (m *Manager) book(id string) (*Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.books[id]; ok {
		return p, nil
	}
	p, err := m.repo.LoadPortfolio(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: portfolio %s", domain.ErrNotFound, id)
	}
	m.books[id] = p
	return p, nil
}

// Get returns a point-in-time copy of one portfolio.
func (m *Manager) Get(id string) (State, error) {
	p, err := m.book(id)
	if err != nil {
		return State{}, err
	}
	return p.Snapshot(), nil
}

// List returns every portfolio's current state.
func (m *Manager) List() ([]State, error) {
	ids, err := m.repo.ListPortfolioIDs()
	if err != nil {
		return nil, err
	}
	states := make([]State, 0, len(ids))
	for _, id := range ids {
		st, err := m.Get(id)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// Commit applies one fill to the book and journals it. The book mutation and
// the ledger write happen under the portfolio lock; a persistence failure
// rolls the in-memory book back so it never drifts from the journal.
func (m *Manager) Commit(id string, ex Execution) (*domain.Trade, error) {
	p, err := m.book(id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	backup := p.snapshotLocked()
	lastAt := p.lastTradeAt

	trade, err := p.apply(ex)
	if err != nil {
		return nil, err
	}
	if err := m.repo.CommitTrade(p, trade); err != nil {
		p.restore(backup)
		p.lastTradeAt = lastAt
		return nil, err
	}

	m.log.Debug().
		Str("portfolio_id", id).
		Str("symbol", ex.Symbol).
		Str("action", string(ex.Action)).
		Int("shares", ex.Shares).
		Float64("fill", ex.FillPrice).
		Msg("Trade committed")
	return trade, nil
}

// AccrueInterest adds borrow interest to an open short. The amount is owed,
// not paid; it settles in cash when the short is covered.
func (m *Manager) AccrueInterest(id, symbol string, amount float64) error {
	p, err := m.book(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	backup := p.snapshotLocked()
	if err := p.accrueInterest(symbol, amount); err != nil {
		return err
	}
	if err := m.repo.SavePosition(p, symbol); err != nil {
		p.restore(backup)
		return err
	}
	return nil
}

// Trades returns the journal for one portfolio in execution order.
func (m *Manager) Trades(id string, limit int) ([]domain.Trade, error) {
	if _, err := m.book(id); err != nil {
		return nil, err
	}
	return m.repo.GetTrades(id, limit)
}

// TakeSnapshot persists the current state as a msgpack blob keyed by time.
func (m *Manager) TakeSnapshot(id string) (time.Time, error) {
	p, err := m.book(id)
	if err != nil {
		return time.Time{}, err
	}

	st := p.Snapshot()
	payload, err := msgpack.Marshal(st)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to encode snapshot for %s: %w", id, err)
	}
	takenAt := m.now().UTC()
	if err := m.repo.SaveSnapshot(id, takenAt, payload); err != nil {
		return time.Time{}, err
	}
	return takenAt, nil
}

// LatestSnapshot decodes the most recent stored snapshot.
func (m *Manager) LatestSnapshot(id string) (State, time.Time, error) {
	payload, takenAt, err := m.repo.LatestSnapshot(id)
	if err != nil {
		return State{}, time.Time{}, err
	}
	if payload == nil {
		return State{}, time.Time{}, fmt.Errorf("%w: no snapshot for portfolio %s", domain.ErrNotFound, id)
	}
	var st State
	if err := msgpack.Unmarshal(payload, &st); err != nil {
		return State{}, time.Time{}, fmt.Errorf("failed to decode snapshot for %s: %w", id, err)
	}
	return st, takenAt, nil
}

// Valuation marks one portfolio against the given prices.
type Valuation struct {
	NetWorth      float64 `json:"net_worth"`
	GrossExposure float64 `json:"gross_exposure"`
	Leverage      float64 `json:"leverage"`
}

// Value computes net worth, gross exposure and leverage at the given marks.
// Symbols without a mark are valued at their entry price.
func (m *Manager) Value(id string, marks map[string]float64) (Valuation, error) {
	p, err := m.book(id)
	if err != nil {
		return Valuation{}, err
	}
	return Valuation{
		NetWorth:      p.NetWorth(marks),
		GrossExposure: p.GrossExposure(marks),
		Leverage:      p.Leverage(marks),
	}, nil
}
