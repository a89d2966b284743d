// Package portfolio owns trading state: cash, long and short positions,
// posted margin, realized P&L and the append-only trade journal. Every
// mutation flows through one commit entrypoint on the Manager, serialized
// per portfolio, so the invariants (cash >= 0, margin >= 0, monotone trade
// timestamps) hold after every committed trade.
package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/hindsight/internal/domain"
)

// Execution is one fill to commit against a portfolio. Shares are whole
// and positive; the action decides which side of the book it touches.
type Execution struct {
	Symbol       string
	Action       domain.TradeAction
	Shares       int
	FillPrice    float64
	Commission   float64
	Slippage     float64
	Date         time.Time
	StrategyName string
	Reasoning    string

	// MarginRequirement is the collateral multiple posted on SHORT.
	MarginRequirement float64
	// Interest is accrued borrow cost realized by COVER or liquidation.
	Interest float64
}

func (ex Execution) validate() error {
	if ex.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if ex.Shares <= 0 {
		return fmt.Errorf("%w: shares must be positive, got %d", domain.ErrInvalidInput, ex.Shares)
	}
	if ex.FillPrice <= 0 {
		return fmt.Errorf("%w: fill price must be positive, got %.4f", domain.ErrInvalidInput, ex.FillPrice)
	}
	if ex.Commission < 0 || ex.Slippage < 0 || ex.Interest < 0 {
		return fmt.Errorf("%w: commission, slippage and interest cannot be negative", domain.ErrInvalidInput)
	}
	if ex.Date.IsZero() {
		return fmt.Errorf("%w: execution date is required", domain.ErrInvalidInput)
	}
	switch ex.Action {
	case domain.TradeActionBuy, domain.TradeActionSell,
		domain.TradeActionShort, domain.TradeActionCover,
		domain.TradeActionForcedLiquidation:
		return nil
	default:
		return fmt.Errorf("%w: unknown trade action %q", domain.ErrInvalidInput, ex.Action)
	}
}

// Portfolio is the mutable trading state for one account. Mutators are
// unexported; the Manager serializes them under the portfolio mutex.
type Portfolio struct {
	mu sync.Mutex

	ID            string
	UserID        string
	BaseCurrency  string
	Cash          float64
	MarginBalance float64
	RealizedPnL   float64
	OpenedAt      time.Time

	longs  map[string]*domain.Position
	shorts map[string]*domain.ShortPosition

	lastTradeAt time.Time
}

// New builds an empty portfolio with the given starting cash.
func New(id, userID, baseCurrency string, cash float64, openedAt time.Time) *Portfolio {
	return &Portfolio{
		ID:           id,
		UserID:       userID,
		BaseCurrency: baseCurrency,
		Cash:         cash,
		OpenedAt:     openedAt,
		longs:        make(map[string]*domain.Position),
		shorts:       make(map[string]*domain.ShortPosition),
	}
}

// apply executes one validated fill. Caller holds p.mu.
func (p *Portfolio) apply(ex Execution) (*domain.Trade, error) {
	if err := ex.validate(); err != nil {
		return nil, err
	}
	if !p.lastTradeAt.IsZero() && ex.Date.Before(p.lastTradeAt) {
		return nil, fmt.Errorf("%w: trade at %s predates last journaled trade at %s",
			domain.ErrInvalidInput, ex.Date.Format("2006-01-02"), p.lastTradeAt.Format("2006-01-02"))
	}

	var err error
	switch ex.Action {
	case domain.TradeActionBuy:
		err = p.applyBuy(ex)
	case domain.TradeActionSell:
		err = p.applySell(ex)
	case domain.TradeActionShort:
		err = p.applyShort(ex)
	case domain.TradeActionCover, domain.TradeActionForcedLiquidation:
		err = p.applyCover(ex)
	}
	if err != nil {
		return nil, err
	}

	p.lastTradeAt = ex.Date
	trade := &domain.Trade{
		Date:         ex.Date,
		PortfolioID:  p.ID,
		Symbol:       ex.Symbol,
		Action:       ex.Action,
		Shares:       float64(ex.Shares),
		FillPrice:    ex.FillPrice,
		Commission:   ex.Commission,
		Slippage:     ex.Slippage,
		StrategyName: ex.StrategyName,
		Reasoning:    ex.Reasoning,
	}
	return trade, nil
}

func (p *Portfolio) applyBuy(ex Execution) error {
	cost := float64(ex.Shares)*ex.FillPrice + ex.Commission
	if cost > p.Cash {
		return fmt.Errorf("%w: need %.2f, have %.2f", domain.ErrInsufficientFunds, cost, p.Cash)
	}

	p.Cash -= cost
	pos := p.longs[ex.Symbol]
	if pos == nil {
		pos = &domain.Position{Symbol: ex.Symbol, OpenedAt: ex.Date}
		p.longs[ex.Symbol] = pos
	}
	total := pos.Shares + ex.Shares
	pos.AvgCost = (pos.AvgCost*float64(pos.Shares) + ex.FillPrice*float64(ex.Shares)) / float64(total)
	pos.Shares = total
	return nil
}

func (p *Portfolio) applySell(ex Execution) error {
	pos := p.longs[ex.Symbol]
	if pos == nil || pos.Shares < ex.Shares {
		held := 0
		if pos != nil {
			held = pos.Shares
		}
		return fmt.Errorf("%w: selling %d, hold %d", domain.ErrInsufficientShares, ex.Shares, held)
	}

	p.Cash += float64(ex.Shares)*ex.FillPrice - ex.Commission
	p.RealizedPnL += (ex.FillPrice-pos.AvgCost)*float64(ex.Shares) - ex.Commission
	pos.Shares -= ex.Shares
	if pos.Shares == 0 {
		delete(p.longs, ex.Symbol)
	}
	return nil
}

// applyShort posts margin from cash and credits the sale proceeds, so net
// worth is unchanged at entry apart from commission.
func (p *Portfolio) applyShort(ex Execution) error {
	if ex.MarginRequirement < 1 {
		return fmt.Errorf("%w: margin requirement must be at least 1, got %.2f",
			domain.ErrInvalidParameter, ex.MarginRequirement)
	}

	notional := float64(ex.Shares) * ex.FillPrice
	margin := notional * ex.MarginRequirement
	if margin > p.Cash {
		return fmt.Errorf("%w: need %.2f margin, have %.2f cash", domain.ErrInsufficientMargin, margin, p.Cash)
	}

	p.Cash += notional - margin - ex.Commission
	p.MarginBalance += margin

	sp := p.shorts[ex.Symbol]
	if sp == nil {
		sp = &domain.ShortPosition{Symbol: ex.Symbol, OpenedAt: ex.Date}
		p.shorts[ex.Symbol] = sp
	}
	total := sp.Shares + ex.Shares
	sp.AvgShortPrice = (sp.AvgShortPrice*float64(sp.Shares) + ex.FillPrice*float64(ex.Shares)) / float64(total)
	sp.Shares = total
	sp.MarginPosted += margin
	return nil
}

func (p *Portfolio) applyCover(ex Execution) error {
	sp := p.shorts[ex.Symbol]
	if sp == nil || sp.Shares < ex.Shares {
		held := 0
		if sp != nil {
			held = sp.Shares
		}
		return fmt.Errorf("%w: covering %d, short %d", domain.ErrInsufficientShares, ex.Shares, held)
	}

	covered := float64(ex.Shares)
	released := sp.MarginPosted * covered / float64(sp.Shares)
	cost := covered*ex.FillPrice + ex.Commission + ex.Interest
	if p.Cash+released < cost {
		return fmt.Errorf("%w: cover costs %.2f, margin release %.2f plus cash %.2f cannot fund it",
			domain.ErrInsufficientFunds, cost, released, p.Cash)
	}

	p.Cash += released - cost
	p.MarginBalance -= released
	p.RealizedPnL += (sp.AvgShortPrice-ex.FillPrice)*covered - ex.Commission - ex.Interest

	sp.MarginPosted -= released
	sp.AccruedInterest -= ex.Interest
	if sp.AccruedInterest < 0 {
		sp.AccruedInterest = 0
	}
	sp.Shares -= ex.Shares
	if sp.Shares == 0 {
		delete(p.shorts, ex.Symbol)
	}
	return nil
}

// Apply commits one fill against the in-memory book only. Backtest engines
// replay through it; live portfolios commit through the Manager so the
// ledger write shares the critical section.
func (p *Portfolio) Apply(ex Execution) (*domain.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apply(ex)
}

// Accrue adds borrow cost to an open short on the in-memory book. The
// amount is owed, not paid; it settles in cash when the short is covered.
func (p *Portfolio) Accrue(symbol string, amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accrueInterest(symbol, amount)
}

// accrueInterest adds borrow cost to an open short. Caller holds p.mu.
func (p *Portfolio) accrueInterest(symbol string, amount float64) error {
	sp := p.shorts[symbol]
	if sp == nil {
		return fmt.Errorf("%w: no short position in %s", domain.ErrInvalidInput, symbol)
	}
	if amount < 0 {
		return fmt.Errorf("%w: interest cannot be negative, got %.4f", domain.ErrInvalidInput, amount)
	}
	sp.AccruedInterest += amount
	return nil
}

// Long returns a copy of the long position, if held.
func (p *Portfolio) Long(symbol string) (domain.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.longs[symbol]
	if pos == nil {
		return domain.Position{}, false
	}
	return *pos, true
}

// Short returns a copy of the short position, if held.
func (p *Portfolio) Short(symbol string) (domain.ShortPosition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp := p.shorts[symbol]
	if sp == nil {
		return domain.ShortPosition{}, false
	}
	return *sp, true
}

// Longs returns the open long positions ordered by symbol.
func (p *Portfolio) Longs() []domain.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.longsLocked()
}

// Shorts returns the open short positions ordered by symbol.
func (p *Portfolio) Shorts() []domain.ShortPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shortsLocked()
}

func (p *Portfolio) longsLocked() []domain.Position {
	out := make([]domain.Position, 0, len(p.longs))
	for _, sym := range sortedKeys(p.longs) {
		out = append(out, *p.longs[sym])
	}
	return out
}

func (p *Portfolio) shortsLocked() []domain.ShortPosition {
	out := make([]domain.ShortPosition, 0, len(p.shorts))
	for _, sym := range sortedKeys(p.shorts) {
		out = append(out, *p.shorts[sym])
	}
	return out
}

// NetWorth marks every position and returns cash + longs - shorts + margin.
// Symbols missing from marks fall back to their entry price. Positions sum
// in symbol order so identical inputs produce bitwise identical values.
func (p *Portfolio) NetWorth(marks map[string]float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.netWorthLocked(marks)
}

func (p *Portfolio) netWorthLocked(marks map[string]float64) float64 {
	nw := p.Cash + p.MarginBalance
	for _, sym := range sortedKeys(p.longs) {
		pos := p.longs[sym]
		nw += pos.MarketValue(markOr(marks, sym, pos.AvgCost))
	}
	for _, sym := range sortedKeys(p.shorts) {
		sp := p.shorts[sym]
		nw -= sp.MarketValue(markOr(marks, sym, sp.AvgShortPrice))
	}
	return nw
}

// GrossExposure is the sum of absolute long and short market value.
func (p *Portfolio) GrossExposure(marks map[string]float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	gross := 0.0
	for _, sym := range sortedKeys(p.longs) {
		pos := p.longs[sym]
		gross += pos.MarketValue(markOr(marks, sym, pos.AvgCost))
	}
	for _, sym := range sortedKeys(p.shorts) {
		sp := p.shorts[sym]
		gross += sp.MarketValue(markOr(marks, sym, sp.AvgShortPrice))
	}
	return gross
}

// Leverage is gross exposure over net worth, 0 for an empty book.
func (p *Portfolio) Leverage(marks map[string]float64) float64 {
	gross := p.GrossExposure(marks)
	if gross == 0 {
		return 0
	}
	nw := p.NetWorth(marks)
	if nw <= 0 {
		return 0
	}
	return gross / nw
}

// State is a point-in-time copy of a portfolio, used for JSON responses,
// risk validation input and msgpack snapshots.
type State struct {
	ID            string                 `json:"id" msgpack:"id"`
	UserID        string                 `json:"user_id,omitempty" msgpack:"user_id"`
	BaseCurrency  string                 `json:"base_currency" msgpack:"base_currency"`
	Cash          float64                `json:"cash" msgpack:"cash"`
	MarginBalance float64                `json:"margin_balance" msgpack:"margin_balance"`
	RealizedPnL   float64                `json:"realized_pnl" msgpack:"realized_pnl"`
	OpenedAt      time.Time              `json:"opened_at" msgpack:"opened_at"`
	Longs         []domain.Position      `json:"longs" msgpack:"longs"`
	Shorts        []domain.ShortPosition `json:"shorts" msgpack:"shorts"`
}

// Snapshot copies the current state under the portfolio lock.
func (p *Portfolio) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Portfolio) snapshotLocked() State {
	return State{
		ID:            p.ID,
		UserID:        p.UserID,
		BaseCurrency:  p.BaseCurrency,
		Cash:          p.Cash,
		MarginBalance: p.MarginBalance,
		RealizedPnL:   p.RealizedPnL,
		OpenedAt:      p.OpenedAt,
		Longs:         p.longsLocked(),
		Shorts:        p.shortsLocked(),
	}
}

// restore overwrites the book from a snapshot. Caller holds p.mu.
func (p *Portfolio) restore(st State) {
	p.Cash = st.Cash
	p.MarginBalance = st.MarginBalance
	p.RealizedPnL = st.RealizedPnL
	p.longs = make(map[string]*domain.Position, len(st.Longs))
	for i := range st.Longs {
		pos := st.Longs[i]
		p.longs[pos.Symbol] = &pos
	}
	p.shorts = make(map[string]*domain.ShortPosition, len(st.Shorts))
	for i := range st.Shorts {
		sp := st.Shorts[i]
		p.shorts[sp.Symbol] = &sp
	}
}

func markOr(marks map[string]float64, symbol string, fallback float64) float64 {
	if m, ok := marks[symbol]; ok && m > 0 {
		return m
	}
	return fallback
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
