package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/domain"
)

// FundamentalsRepository provides access to fundamentals snapshots in market.db.
type FundamentalsRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewFundamentalsRepository creates a new fundamentals repository.
func NewFundamentalsRepository(db *database.DB, log zerolog.Logger) *FundamentalsRepository {
	return &FundamentalsRepository{
		db:  db,
		log: log.With().Str("repository", "fundamentals").Logger(),
	}
}

// Upsert stores a fundamentals snapshot, replacing any previous one for the
// symbol. FetchedAt drives the facade's freshness check; when unset it
// defaults to now.
func (r *FundamentalsRepository) Upsert(f domain.Fundamentals) error {
	fetchedAt := time.Now().UTC()
	if f.FetchedAt != nil {
		fetchedAt = f.FetchedAt.UTC()
	}

	var rating sql.NullString
	if f.AnalystRating != nil {
		rating = sql.NullString{String: *f.AnalystRating, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO fundamentals
		(symbol, as_of, sector, industry, market_cap, pe_ratio, pb_ratio,
		 roe, roa, gross_margin, operating_margin, net_margin,
		 debt_to_equity, current_ratio, quick_ratio,
		 revenue_growth, earnings_growth, free_cash_flow,
		 dividend_per_share, payout_ratio, interest_coverage,
		 analyst_target, analyst_rating, industry_pe, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.Symbol,
		f.AsOf.UTC().Format("2006-01-02"),
		f.Sector,
		f.Industry,
		nullableFloat(f.MarketCap),
		nullableFloat(f.PERatio),
		nullableFloat(f.PBRatio),
		nullableFloat(f.ROE),
		nullableFloat(f.ROA),
		nullableFloat(f.GrossMargin),
		nullableFloat(f.OperatingMargin),
		nullableFloat(f.NetMargin),
		nullableFloat(f.DebtToEquity),
		nullableFloat(f.CurrentRatio),
		nullableFloat(f.QuickRatio),
		nullableFloat(f.RevenueGrowth),
		nullableFloat(f.EarningsGrowth),
		nullableFloat(f.FreeCashFlow),
		nullableFloat(f.DividendPerShare),
		nullableFloat(f.PayoutRatio),
		nullableFloat(f.InterestCoverage),
		nullableFloat(f.AnalystTarget),
		rating,
		nullableFloat(f.IndustryPE),
		fetchedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fundamentals for %s: %w", f.Symbol, err)
	}
	return nil
}

// Get returns the stored fundamentals for a symbol with FetchedAt populated,
// or nil when the symbol has no snapshot.
func (r *FundamentalsRepository) Get(symbol string) (*domain.Fundamentals, error) {
	query := `
		SELECT as_of, sector, industry, market_cap, pe_ratio, pb_ratio,
		       roe, roa, gross_margin, operating_margin, net_margin,
		       debt_to_equity, current_ratio, quick_ratio,
		       revenue_growth, earnings_growth, free_cash_flow,
		       dividend_per_share, payout_ratio, interest_coverage,
		       analyst_target, analyst_rating, industry_pe, fetched_at
		FROM fundamentals
		WHERE symbol = ?
	`

	var (
		asOfStr          string
		sector, industry sql.NullString
		marketCap        sql.NullFloat64
		peRatio          sql.NullFloat64
		pbRatio          sql.NullFloat64
		roe              sql.NullFloat64
		roa              sql.NullFloat64
		grossMargin      sql.NullFloat64
		operatingMargin  sql.NullFloat64
		netMargin        sql.NullFloat64
		debtToEquity     sql.NullFloat64
		currentRatio     sql.NullFloat64
		quickRatio       sql.NullFloat64
		revenueGrowth    sql.NullFloat64
		earningsGrowth   sql.NullFloat64
		freeCashFlow     sql.NullFloat64
		dividendPerShare sql.NullFloat64
		payoutRatio      sql.NullFloat64
		interestCoverage sql.NullFloat64
		analystTarget    sql.NullFloat64
		analystRating    sql.NullString
		industryPE       sql.NullFloat64
		fetchedUnix      sql.NullInt64
	)

	err := r.db.QueryRow(query, symbol).Scan(
		&asOfStr, &sector, &industry, &marketCap, &peRatio, &pbRatio,
		&roe, &roa, &grossMargin, &operatingMargin, &netMargin,
		&debtToEquity, &currentRatio, &quickRatio,
		&revenueGrowth, &earningsGrowth, &freeCashFlow,
		&dividendPerShare, &payoutRatio, &interestCoverage,
		&analystTarget, &analystRating, &industryPE, &fetchedUnix,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamentals for %s: %w", symbol, err)
	}

	f := &domain.Fundamentals{
		Symbol:           symbol,
		Sector:           sector.String,
		Industry:         industry.String,
		MarketCap:        floatPtr(marketCap),
		PERatio:          floatPtr(peRatio),
		PBRatio:          floatPtr(pbRatio),
		ROE:              floatPtr(roe),
		ROA:              floatPtr(roa),
		GrossMargin:      floatPtr(grossMargin),
		OperatingMargin:  floatPtr(operatingMargin),
		NetMargin:        floatPtr(netMargin),
		DebtToEquity:     floatPtr(debtToEquity),
		CurrentRatio:     floatPtr(currentRatio),
		QuickRatio:       floatPtr(quickRatio),
		RevenueGrowth:    floatPtr(revenueGrowth),
		EarningsGrowth:   floatPtr(earningsGrowth),
		FreeCashFlow:     floatPtr(freeCashFlow),
		DividendPerShare: floatPtr(dividendPerShare),
		PayoutRatio:      floatPtr(payoutRatio),
		InterestCoverage: floatPtr(interestCoverage),
		AnalystTarget:    floatPtr(analystTarget),
		IndustryPE:       floatPtr(industryPE),
	}
	if analystRating.Valid {
		rating := analystRating.String
		f.AnalystRating = &rating
	}
	if f.AsOf, err = domain.ParseDate(asOfStr); err != nil {
		return nil, fmt.Errorf("bad as_of date for %s: %w", symbol, err)
	}
	if fetchedUnix.Valid {
		fetchedAt := time.Unix(fetchedUnix.Int64, 0).UTC()
		f.FetchedAt = &fetchedAt
	}
	return f, nil
}

// Sectors returns the symbol→sector mapping for all stored fundamentals.
// Symbols without a sector are omitted.
func (r *FundamentalsRepository) Sectors() (map[string]string, error) {
	rows, err := r.db.Query(`SELECT symbol, sector FROM fundamentals WHERE sector IS NOT NULL AND sector != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sectors: %w", err)
	}
	defer rows.Close()

	sectors := make(map[string]string)
	for rows.Next() {
		var symbol, sector string
		if err := rows.Scan(&symbol, &sector); err != nil {
			return nil, fmt.Errorf("failed to scan sector: %w", err)
		}
		sectors[symbol] = sector
	}
	return sectors, rows.Err()
}

func nullableFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
