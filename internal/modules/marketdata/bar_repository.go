package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/domain"
)

// SyncState records what the local store holds for one symbol so the facade
// can decide between a local read and a provider fetch.
type SyncState struct {
	Symbol       string
	FirstBarDate time.Time
	LastBarDate  time.Time
	LastSyncedAt time.Time
	Provider     string
}

// BarRepository provides access to daily bars in market.db.
type BarRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewBarRepository creates a new bar repository.
func NewBarRepository(db *database.DB, log zerolog.Logger) *BarRepository {
	return &BarRepository{
		db:  db,
		log: log.With().Str("repository", "bars").Logger(),
	}
}

// UpsertBars writes bars for a symbol in a single transaction, replacing any
// existing rows for the same (symbol, date).
func (r *BarRepository) UpsertBars(symbol string, bars []domain.Bar, source string) error {
	if len(bars) == 0 {
		return nil
	}

	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO bars
			(symbol, date, open, high, low, close, volume, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare bar insert: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			_, err := stmt.Exec(
				symbol,
				bar.DateKey(),
				bar.Open,
				bar.High,
				bar.Low,
				bar.Close,
				bar.Volume,
				source,
			)
			if err != nil {
				return fmt.Errorf("failed to insert bar %s %s: %w", symbol, bar.DateKey(), err)
			}
		}
		return nil
	})
}

// GetBars returns the stored bars for symbol in [start, end], both inclusive,
// strictly ascending by date.
func (r *BarRepository) GetBars(symbol string, start, end time.Time) ([]domain.Bar, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := r.db.Query(query, symbol, dateKey(start), dateKey(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var dateStr string
		bar := domain.Bar{Symbol: symbol}
		if err := rows.Scan(&dateStr, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bar.Date, err = domain.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("bad bar date %q for %s: %w", dateStr, symbol, err)
		}
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// LatestBar returns the most recent stored bar for a symbol, or nil if none.
func (r *BarRepository) LatestBar(symbol string) (*domain.Bar, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT 1
	`

	var dateStr string
	bar := domain.Bar{Symbol: symbol}
	err := r.db.QueryRow(query, symbol).Scan(&dateStr, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bar for %s: %w", symbol, err)
	}

	bar.Date, err = domain.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("bad bar date %q for %s: %w", dateStr, symbol, err)
	}
	return &bar, nil
}

// CountBars returns the number of stored bars for a symbol.
func (r *BarRepository) CountBars(symbol string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM bars WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", symbol, err)
	}
	return count, nil
}

// Symbols returns all symbols with at least one stored bar.
func (r *BarRepository) Symbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bar symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// GetSyncState returns the sync bookkeeping for a symbol, or nil if the
// symbol was never synced.
func (r *BarRepository) GetSyncState(symbol string) (*SyncState, error) {
	query := `
		SELECT first_bar_date, last_bar_date, last_synced_at, provider
		FROM sync_state
		WHERE symbol = ?
	`

	var (
		firstStr, lastStr sql.NullString
		syncedUnix        sql.NullInt64
		provider          sql.NullString
	)
	err := r.db.QueryRow(query, symbol).Scan(&firstStr, &lastStr, &syncedUnix, &provider)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state for %s: %w", symbol, err)
	}

	state := &SyncState{Symbol: symbol, Provider: provider.String}
	if firstStr.Valid {
		if state.FirstBarDate, err = domain.ParseDate(firstStr.String); err != nil {
			return nil, fmt.Errorf("bad first bar date for %s: %w", symbol, err)
		}
	}
	if lastStr.Valid {
		if state.LastBarDate, err = domain.ParseDate(lastStr.String); err != nil {
			return nil, fmt.Errorf("bad last bar date for %s: %w", symbol, err)
		}
	}
	if syncedUnix.Valid {
		state.LastSyncedAt = time.Unix(syncedUnix.Int64, 0).UTC()
	}
	return state, nil
}

// SetSyncState records the sync bookkeeping for a symbol.
func (r *BarRepository) SetSyncState(state SyncState) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO sync_state
		(symbol, first_bar_date, last_bar_date, last_synced_at, provider)
		VALUES (?, ?, ?, ?, ?)
	`,
		state.Symbol,
		dateKey(state.FirstBarDate),
		dateKey(state.LastBarDate),
		state.LastSyncedAt.Unix(),
		state.Provider,
	)
	if err != nil {
		return fmt.Errorf("failed to set sync state for %s: %w", state.Symbol, err)
	}
	return nil
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
