package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/domain"
)

// Repository persists portfolios, positions and the trade journal in
// ledger.db. The journal is append-only; trade rows are never updated.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "ledger").Logger(),
	}
}

// CreatePortfolio inserts the portfolio row.
func (r *Repository) CreatePortfolio(p *Portfolio) error {
	query := `
		INSERT INTO portfolios
		(id, user_id, base_currency, cash, margin_balance, realized_pnl, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC().Unix()
	_, err := r.db.Exec(query,
		p.ID, p.UserID, p.BaseCurrency, p.Cash, p.MarginBalance, p.RealizedPnL,
		p.OpenedAt.UTC().Unix(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio %s: %w", p.ID, err)
	}
	return nil
}

// LoadPortfolio reads one portfolio row and its open positions into a
// fresh aggregate. Returns nil when the id is unknown.
func (r *Repository) LoadPortfolio(id string) (*Portfolio, error) {
	query := `
		SELECT id, user_id, base_currency, cash, margin_balance, realized_pnl, opened_at
		FROM portfolios
		WHERE id = ?
	`
	var (
		p        Portfolio
		openedAt int64
	)
	err := r.db.QueryRow(query, id).Scan(
		&p.ID, &p.UserID, &p.BaseCurrency, &p.Cash, &p.MarginBalance, &p.RealizedPnL, &openedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio %s: %w", id, err)
	}
	p.OpenedAt = time.Unix(openedAt, 0).UTC()
	p.longs = make(map[string]*domain.Position)
	p.shorts = make(map[string]*domain.ShortPosition)

	if err := r.loadPositions(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) loadPositions(p *Portfolio) error {
	query := `
		SELECT symbol, side, shares, avg_price, opened_at, stop_loss, take_profit,
		       margin_posted, accrued_interest
		FROM positions
		WHERE portfolio_id = ?
		ORDER BY symbol
	`
	rows, err := r.db.Query(query, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load positions for %s: %w", p.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			symbol, side         string
			shares, avgPrice     float64
			openedAt             int64
			stopLoss, takeProfit sql.NullFloat64
			marginPosted         float64
			accruedInterest      float64
		)
		if err := rows.Scan(&symbol, &side, &shares, &avgPrice, &openedAt,
			&stopLoss, &takeProfit, &marginPosted, &accruedInterest); err != nil {
			return fmt.Errorf("failed to scan position: %w", err)
		}

		opened := time.Unix(openedAt, 0).UTC()
		if side == "short" {
			p.shorts[symbol] = &domain.ShortPosition{
				Symbol:          symbol,
				Shares:          int(shares),
				AvgShortPrice:   avgPrice,
				OpenedAt:        opened,
				MarginPosted:    marginPosted,
				AccruedInterest: accruedInterest,
			}
			continue
		}
		pos := &domain.Position{
			Symbol:   symbol,
			Shares:   int(shares),
			AvgCost:  avgPrice,
			OpenedAt: opened,
		}
		if stopLoss.Valid {
			pos.StopLoss = &stopLoss.Float64
		}
		if takeProfit.Valid {
			pos.TakeProfit = &takeProfit.Float64
		}
		p.longs[symbol] = pos
	}
	return rows.Err()
}

// ListPortfolioIDs returns all portfolio ids ordered by creation.
func (r *Repository) ListPortfolioIDs() ([]string, error) {
	query := `SELECT id FROM portfolios ORDER BY opened_at, id`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CommitTrade persists one applied execution atomically: the portfolio
// balances, the touched position row and the journal entry commit together.
func (r *Repository) CommitTrade(p *Portfolio, trade *domain.Trade) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if err := updatePortfolioTx(tx, p); err != nil {
			return err
		}
		if err := savePositionTx(tx, p, trade.Symbol); err != nil {
			return err
		}
		return insertTradeTx(tx, trade)
	})
}

// SavePosition persists one position row outside the trade path, used for
// interest accrual updates.
func (r *Repository) SavePosition(p *Portfolio, symbol string) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		return savePositionTx(tx, p, symbol)
	})
}

func updatePortfolioTx(tx *sql.Tx, p *Portfolio) error {
	query := `
		UPDATE portfolios
		SET cash = ?, margin_balance = ?, realized_pnl = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := tx.Exec(query, p.Cash, p.MarginBalance, p.RealizedPnL, time.Now().UTC().Unix(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio %s: %w", p.ID, err)
	}
	return nil
}

// savePositionTx writes the current state of one symbol's position rows,
// deleting sides that no longer exist.
func savePositionTx(tx *sql.Tx, p *Portfolio, symbol string) error {
	upsert := `
		INSERT OR REPLACE INTO positions
		(portfolio_id, symbol, side, shares, avg_price, opened_at, stop_loss, take_profit,
		 margin_posted, accrued_interest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if pos, ok := p.longs[symbol]; ok {
		_, err := tx.Exec(upsert,
			p.ID, symbol, "long", float64(pos.Shares), pos.AvgCost, pos.OpenedAt.UTC().Unix(),
			nullableFloat(pos.StopLoss), nullableFloat(pos.TakeProfit), 0.0, 0.0,
		)
		if err != nil {
			return fmt.Errorf("failed to save long position %s: %w", symbol, err)
		}
	} else {
		if _, err := tx.Exec(`DELETE FROM positions WHERE portfolio_id = ? AND symbol = ? AND side = 'long'`, p.ID, symbol); err != nil {
			return fmt.Errorf("failed to delete long position %s: %w", symbol, err)
		}
	}

	if sp, ok := p.shorts[symbol]; ok {
		_, err := tx.Exec(upsert,
			p.ID, symbol, "short", float64(sp.Shares), sp.AvgShortPrice, sp.OpenedAt.UTC().Unix(),
			nil, nil, sp.MarginPosted, sp.AccruedInterest,
		)
		if err != nil {
			return fmt.Errorf("failed to save short position %s: %w", symbol, err)
		}
	} else {
		if _, err := tx.Exec(`DELETE FROM positions WHERE portfolio_id = ? AND symbol = ? AND side = 'short'`, p.ID, symbol); err != nil {
			return fmt.Errorf("failed to delete short position %s: %w", symbol, err)
		}
	}
	return nil
}

func insertTradeTx(tx *sql.Tx, t *domain.Trade) error {
	query := `
		INSERT INTO trades
		(portfolio_id, symbol, action, shares, fill_price, commission, slippage,
		 strategy, reasoning, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := tx.Exec(query,
		t.PortfolioID, t.Symbol, string(t.Action), t.Shares, t.FillPrice,
		t.Commission, t.Slippage, t.StrategyName, t.Reasoning, t.Date.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to journal trade %s %s: %w", t.Symbol, t.Action, err)
	}
	return nil
}

// GetTrades returns the journal for one portfolio in execution order.
func (r *Repository) GetTrades(portfolioID string, limit int) ([]domain.Trade, error) {
	query := `
		SELECT portfolio_id, symbol, action, shares, fill_price, commission, slippage,
		       strategy, reasoning, executed_at
		FROM trades
		WHERE portfolio_id = ?
		ORDER BY executed_at, id
	`
	args := []interface{}{portfolioID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t          domain.Trade
			action     string
			strategy   sql.NullString
			reasoning  sql.NullString
			executedAt int64
		)
		if err := rows.Scan(&t.PortfolioID, &t.Symbol, &action, &t.Shares, &t.FillPrice,
			&t.Commission, &t.Slippage, &strategy, &reasoning, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Action = domain.TradeAction(action)
		t.StrategyName = strategy.String
		t.Reasoning = reasoning.String
		t.Date = time.Unix(executedAt, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveSnapshot stores one msgpack-encoded state blob keyed by capture time.
func (r *Repository) SaveSnapshot(portfolioID string, takenAt time.Time, payload []byte) error {
	query := `
		INSERT OR REPLACE INTO portfolio_snapshots (portfolio_id, taken_at, payload)
		VALUES (?, ?, ?)
	`
	_, err := r.db.Exec(query, portfolioID, takenAt.UTC().Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", portfolioID, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot payload, or nil when the
// portfolio has never been snapshotted.
func (r *Repository) LatestSnapshot(portfolioID string) ([]byte, time.Time, error) {
	query := `
		SELECT taken_at, payload
		FROM portfolio_snapshots
		WHERE portfolio_id = ?
		ORDER BY taken_at DESC
		LIMIT 1
	`
	var (
		takenAt int64
		payload []byte
	)
	err := r.db.QueryRow(query, portfolioID).Scan(&takenAt, &payload)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load snapshot for %s: %w", portfolioID, err)
	}
	return payload, time.Unix(takenAt, 0).UTC(), nil
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
