package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/portfolio"
)

// MarginCall is emitted when a short's posted collateral, net of unrealized
// loss, drops below the maintenance line. Unresolved calls force liquidation
// on the next bar.
type MarginCall struct {
	Symbol         string    `json:"symbol"`
	Date           time.Time `json:"date"`
	Mark           float64   `json:"mark"`
	NetMargin      float64   `json:"net_margin"`
	RequiredMargin float64   `json:"required_margin"`
	ActionRequired string    `json:"action_required"`
}

// MarginLedger wraps a portfolio book with short-selling mechanics: margin
// posting on entry, daily borrow-interest accrual on short notional, margin
// maintenance checks and forced liquidation. Interest is owed while the
// short is open and settles in cash on cover only.
type MarginLedger struct {
	book     *portfolio.Portfolio
	shortCfg config.ShortConfig
	trading  config.TradingConfig

	// StrategyName and Reasoning, when set, are stamped on journaled
	// trades. Reasoning clears after each fill.
	StrategyName string
	Reasoning    string

	lastAccrual map[string]time.Time
	pending     map[string]MarginCall

	trades          []domain.Trade
	tradePnL        []float64
	calls           []MarginCall
	totalCommission float64
	interestPaid    float64
	liquidations    int
}

func NewMarginLedger(book *portfolio.Portfolio, shortCfg config.ShortConfig, trading config.TradingConfig) *MarginLedger {
	return &MarginLedger{
		book:        book,
		shortCfg:    shortCfg,
		trading:     trading,
		lastAccrual: make(map[string]time.Time),
		pending:     make(map[string]MarginCall),
	}
}

// Book exposes the wrapped portfolio for valuation.
func (l *MarginLedger) Book() *portfolio.Portfolio { return l.book }

// Trades returns every journaled fill in execution order.
func (l *MarginLedger) Trades() []domain.Trade { return l.trades }

// TradePnL returns realized profit per closing trade in execution order.
func (l *MarginLedger) TradePnL() []float64 { return l.tradePnL }

// Calls returns every margin call emitted so far.
func (l *MarginLedger) Calls() []MarginCall { return l.calls }

// TotalCommission returns commission paid across all fills.
func (l *MarginLedger) TotalCommission() float64 { return l.totalCommission }

// InterestPaid returns borrow interest realized on covers so far.
func (l *MarginLedger) InterestPaid() float64 { return l.interestPaid }

// Liquidations returns the count of forced liquidations.
func (l *MarginLedger) Liquidations() int { return l.liquidations }

// Buy opens or adds to a long at a fill slightly above the quoted price.
func (l *MarginLedger) Buy(symbol string, shares int, price float64, date time.Time) (*domain.Trade, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be positive, got %d", domain.ErrInvalidInput, shares)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %.4f", domain.ErrInvalidInput, price)
	}

	fill := price * (1 + l.trading.SlippageRate)
	commission := fill * float64(shares) * l.trading.CommissionRate

	trade, err := l.book.Apply(portfolio.Execution{
		Symbol:       symbol,
		Action:       domain.TradeActionBuy,
		Shares:       shares,
		FillPrice:    fill,
		Commission:   commission,
		Slippage:     l.trading.SlippageRate,
		Date:         date,
		StrategyName: l.StrategyName,
		Reasoning:    l.takeReasoning(),
	})
	if err != nil {
		return nil, err
	}

	l.totalCommission += commission
	l.trades = append(l.trades, *trade)
	return trade, nil
}

// Sell closes part or all of a long (nil shares sells everything) at a fill
// slightly below the quoted price.
func (l *MarginLedger) Sell(symbol string, shares *int, price float64, date time.Time) (*domain.Trade, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %.4f", domain.ErrInvalidInput, price)
	}
	pos, ok := l.book.Long(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: no long position in %s", domain.ErrInvalidInput, symbol)
	}

	sold := pos.Shares
	if shares != nil {
		sold = *shares
	}
	if sold <= 0 || sold > pos.Shares {
		return nil, fmt.Errorf("%w: selling %d of %d held shares", domain.ErrInsufficientShares, sold, pos.Shares)
	}

	fill := price * (1 - l.trading.SlippageRate)
	commission := fill * float64(sold) * l.trading.CommissionRate

	trade, err := l.book.Apply(portfolio.Execution{
		Symbol:       symbol,
		Action:       domain.TradeActionSell,
		Shares:       sold,
		FillPrice:    fill,
		Commission:   commission,
		Slippage:     l.trading.SlippageRate,
		Date:         date,
		StrategyName: l.StrategyName,
		Reasoning:    l.takeReasoning(),
	})
	if err != nil {
		return nil, err
	}

	l.totalCommission += commission
	l.tradePnL = append(l.tradePnL, (fill-pos.AvgCost)*float64(sold)-commission)
	l.trades = append(l.trades, *trade)
	return trade, nil
}

// EnterShort opens or adds to a short. The fill lands slightly below the
// quoted price; collateral of shares*fill*marginRequirement moves from cash
// to the margin balance.
func (l *MarginLedger) EnterShort(symbol string, shares int, price float64, date time.Time) (*domain.Trade, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be positive, got %d", domain.ErrInvalidInput, shares)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %.4f", domain.ErrInvalidInput, price)
	}

	fill := price * (1 - l.trading.SlippageRate)
	commission := fill * float64(shares) * l.trading.CommissionRate

	trade, err := l.book.Apply(portfolio.Execution{
		Symbol:            symbol,
		Action:            domain.TradeActionShort,
		Shares:            shares,
		FillPrice:         fill,
		Commission:        commission,
		Slippage:          l.trading.SlippageRate,
		Date:              date,
		StrategyName:      l.StrategyName,
		Reasoning:         l.takeReasoning(),
		MarginRequirement: l.shortCfg.MarginRequirement,
	})
	if err != nil {
		return nil, err
	}

	if _, tracked := l.lastAccrual[symbol]; !tracked {
		l.lastAccrual[symbol] = domain.Day(date)
	}
	l.totalCommission += commission
	l.trades = append(l.trades, *trade)
	return trade, nil
}

// ExitShort covers part or all of a short (nil shares covers everything).
// Accrued interest catches up to the cover date and the covered fraction
// settles in cash; posted margin for the covered shares releases back.
func (l *MarginLedger) ExitShort(symbol string, shares *int, price float64, date time.Time) (*domain.Trade, error) {
	return l.cover(symbol, shares, price, date, domain.TradeActionCover, 0)
}

// ForceLiquidate covers the whole short at an adverse fill with the
// configured penalty surcharge. It always journals the trade.
func (l *MarginLedger) ForceLiquidate(symbol string, price float64, date time.Time) (*domain.Trade, error) {
	trade, err := l.cover(symbol, nil, price, date, domain.TradeActionForcedLiquidation, l.shortCfg.LiquidationPenalty)
	if err != nil {
		return nil, err
	}
	l.liquidations++
	delete(l.pending, symbol)
	return trade, nil
}

func (l *MarginLedger) cover(symbol string, shares *int, price float64, date time.Time, action domain.TradeAction, penalty float64) (*domain.Trade, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %.4f", domain.ErrInvalidInput, price)
	}
	sp, ok := l.book.Short(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: no short position in %s", domain.ErrInvalidInput, symbol)
	}

	l.AccrueTo(date)
	// Re-read: accrual mutated the position.
	sp, _ = l.book.Short(symbol)

	covered := sp.Shares
	if shares != nil {
		covered = *shares
	}
	if covered <= 0 || covered > sp.Shares {
		return nil, fmt.Errorf("%w: covering %d of %d short shares", domain.ErrInsufficientShares, covered, sp.Shares)
	}

	fill := price * (1 + l.trading.SlippageRate) * (1 + penalty)
	commission := fill * float64(covered) * l.trading.CommissionRate
	interestShare := sp.AccruedInterest * float64(covered) / float64(sp.Shares)

	trade, err := l.book.Apply(portfolio.Execution{
		Symbol:       symbol,
		Action:       action,
		Shares:       covered,
		FillPrice:    fill,
		Commission:   commission,
		Slippage:     l.trading.SlippageRate,
		Date:         date,
		StrategyName: l.StrategyName,
		Reasoning:    l.takeReasoning(),
		Interest:     interestShare,
	})
	if err != nil {
		return nil, err
	}

	if covered == sp.Shares {
		delete(l.lastAccrual, symbol)
		delete(l.pending, symbol)
	}
	l.totalCommission += commission
	l.interestPaid += interestShare
	l.tradePnL = append(l.tradePnL, (sp.AvgShortPrice-fill)*float64(covered)-commission-interestShare)
	l.trades = append(l.trades, *trade)
	return trade, nil
}

// AccrueTo charges daily borrow interest on every open short up to the
// given date: rate/365 on shares*avgShortPrice per elapsed day.
func (l *MarginLedger) AccrueTo(date time.Time) {
	day := domain.Day(date)
	for _, symbol := range l.trackedSymbols() {
		last := l.lastAccrual[symbol]
		days := int(day.Sub(last).Hours() / 24)
		if days <= 0 {
			continue
		}
		sp, ok := l.book.Short(symbol)
		if !ok {
			delete(l.lastAccrual, symbol)
			continue
		}
		amount := float64(sp.Shares) * sp.AvgShortPrice * l.shortCfg.ShortInterestRate / 365 * float64(days)
		if err := l.book.Accrue(symbol, amount); err == nil {
			l.lastAccrual[symbol] = day
		}
	}
}

// CheckMargin evaluates maintenance margin for every open short at the
// given marks. The maintenance line is position value times
// (marginRequirement - maintenanceBuffer); accrued-but-unpaid interest is
// excluded and settles on cover. Newly breached positions emit a call;
// calls still pending from an earlier bar are left for forced liquidation.
func (l *MarginLedger) CheckMargin(marks map[string]float64, date time.Time) []MarginCall {
	var fresh []MarginCall
	for _, sp := range l.book.Shorts() {
		mark, ok := marks[sp.Symbol]
		if !ok || mark <= 0 {
			mark = sp.AvgShortPrice
		}

		unrealizedLoss := math.Max(0, (mark-sp.AvgShortPrice)*float64(sp.Shares))
		netMargin := sp.MarginPosted - unrealizedLoss
		required := float64(sp.Shares) * mark * (l.shortCfg.MarginRequirement - l.shortCfg.MaintenanceMarginBuffer)

		if netMargin >= required {
			delete(l.pending, sp.Symbol)
			continue
		}
		if _, already := l.pending[sp.Symbol]; already {
			continue
		}
		call := MarginCall{
			Symbol:         sp.Symbol,
			Date:           domain.Day(date),
			Mark:           mark,
			NetMargin:      netMargin,
			RequiredMargin: required,
			ActionRequired: "add_margin_or_liquidate",
		}
		l.pending[sp.Symbol] = call
		l.calls = append(l.calls, call)
		fresh = append(fresh, call)
	}
	return fresh
}

// Overdue returns pending margin calls issued strictly before the given
// date, in symbol order.
func (l *MarginLedger) Overdue(date time.Time) []MarginCall {
	day := domain.Day(date)
	symbols := make([]string, 0, len(l.pending))
	for symbol, call := range l.pending {
		if call.Date.Before(day) {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)

	out := make([]MarginCall, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, l.pending[symbol])
	}
	return out
}

// AccruedInterest sums unpaid borrow interest across open shorts.
func (l *MarginLedger) AccruedInterest() float64 {
	total := 0.0
	for _, sp := range l.book.Shorts() {
		total += sp.AccruedInterest
	}
	return total
}

func (l *MarginLedger) takeReasoning() string {
	r := l.Reasoning
	l.Reasoning = ""
	return r
}

func (l *MarginLedger) trackedSymbols() []string {
	out := make([]string, 0, len(l.lastAccrual))
	for symbol := range l.lastAccrual {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
