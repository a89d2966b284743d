package comparison

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/domain"
)

// defaultConfidenceThreshold splits the high and low confidence buckets.
const defaultConfidenceThreshold = 0.70

// SignalRecord is one journaled BUY or SELL signal awaiting evaluation.
type SignalRecord struct {
	ID            int64               `json:"id"`
	Strategy      string              `json:"strategy"`
	Symbol        string              `json:"symbol"`
	Sector        string              `json:"sector,omitempty"`
	MarketIndex   string              `json:"market_index,omitempty"`
	Action        domain.SignalAction `json:"action"`
	SignalPrice   float64             `json:"signal_price"`
	Confidence    float64             `json:"confidence"`
	LookaheadDays int                 `json:"lookahead_days"`
	SignalDate    time.Time           `json:"signal_date"`
}

// EvaluatedSignal is a signal joined with its graded outcome.
type EvaluatedSignal struct {
	SignalRecord
	RealizedPrice float64   `json:"realized_price"`
	RealizedDate  time.Time `json:"realized_date"`
	Correct       bool      `json:"correct"`
}

// SignalRepository journals signals and outcomes in results.db.
type SignalRepository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewSignalRepository(db *database.DB, log zerolog.Logger) *SignalRepository {
	return &SignalRepository{
		db:  db,
		log: log.With().Str("repository", "signals").Logger(),
	}
}

// Insert journals one signal and returns its row id.
func (r *SignalRepository) Insert(rec SignalRecord) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO strategy_signals
		(strategy, symbol, sector, market_index, action, signal_price, confidence, lookahead_days, signal_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Strategy,
		rec.Symbol,
		rec.Sector,
		rec.MarketIndex,
		string(rec.Action),
		rec.SignalPrice,
		rec.Confidence,
		rec.LookaheadDays,
		rec.SignalDate.UTC().Format("2006-01-02"),
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert signal for %s: %w", rec.Symbol, err)
	}
	return res.LastInsertId()
}

// Pending returns signals without an outcome whose lookahead window closed
// on or before asOf, oldest first.
func (r *SignalRepository) Pending(asOf time.Time) ([]SignalRecord, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.strategy, s.symbol, s.sector, s.market_index, s.action,
		       s.signal_price, s.confidence, s.lookahead_days, s.signal_date
		FROM strategy_signals s
		LEFT JOIN signal_outcomes o ON o.signal_id = s.id
		WHERE o.signal_id IS NULL
		  AND date(s.signal_date, '+' || s.lookahead_days || ' days') <= date(?)
		ORDER BY s.id ASC
	`, asOf.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		rec, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordOutcome grades one signal.
func (r *SignalRepository) RecordOutcome(signalID int64, realizedPrice float64, realizedDate time.Time, correct bool) error {
	correctInt := 0
	if correct {
		correctInt = 1
	}
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO signal_outcomes
		(signal_id, realized_price, realized_date, correct, evaluated_at)
		VALUES (?, ?, ?, ?, ?)
	`, signalID, realizedPrice, realizedDate.UTC().Format("2006-01-02"), correctInt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record outcome for signal %d: %w", signalID, err)
	}
	return nil
}

// Evaluated returns every graded signal, oldest first.
func (r *SignalRepository) Evaluated() ([]EvaluatedSignal, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.strategy, s.symbol, s.sector, s.market_index, s.action,
		       s.signal_price, s.confidence, s.lookahead_days, s.signal_date,
		       o.realized_price, o.realized_date, o.correct
		FROM strategy_signals s
		JOIN signal_outcomes o ON o.signal_id = s.id
		ORDER BY s.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluated signals: %w", err)
	}
	defer rows.Close()

	var out []EvaluatedSignal
	for rows.Next() {
		var (
			ev          EvaluatedSignal
			sector      sql.NullString
			index       sql.NullString
			action      string
			signalDate  string
			realized    string
			correctFlag int
		)
		if err := rows.Scan(&ev.ID, &ev.Strategy, &ev.Symbol, &sector, &index, &action,
			&ev.SignalPrice, &ev.Confidence, &ev.LookaheadDays, &signalDate,
			&ev.RealizedPrice, &realized, &correctFlag); err != nil {
			return nil, fmt.Errorf("failed to scan evaluated signal: %w", err)
		}
		ev.Sector = sector.String
		ev.MarketIndex = index.String
		ev.Action = domain.SignalAction(action)
		ev.Correct = correctFlag == 1
		if ev.SignalDate, err = domain.ParseDate(signalDate); err != nil {
			return nil, fmt.Errorf("bad signal date %q: %w", signalDate, err)
		}
		if ev.RealizedDate, err = domain.ParseDate(realized); err != nil {
			return nil, fmt.Errorf("bad realized date %q: %w", realized, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanSignal(rows *sql.Rows) (SignalRecord, error) {
	var (
		rec        SignalRecord
		sector     sql.NullString
		index      sql.NullString
		action     string
		signalDate string
	)
	err := rows.Scan(&rec.ID, &rec.Strategy, &rec.Symbol, &sector, &index, &action,
		&rec.SignalPrice, &rec.Confidence, &rec.LookaheadDays, &signalDate)
	if err != nil {
		return rec, fmt.Errorf("failed to scan signal: %w", err)
	}
	rec.Sector = sector.String
	rec.MarketIndex = index.String
	rec.Action = domain.SignalAction(action)
	if rec.SignalDate, err = domain.ParseDate(signalDate); err != nil {
		return rec, fmt.Errorf("bad signal date %q: %w", signalDate, err)
	}
	return rec, nil
}

// BarSource reads stored bars for outcome evaluation.
type BarSource interface {
	GetBars(symbol string, start, end time.Time) ([]domain.Bar, error)
}

// Tracker journals signals and grades them once their lookahead window has
// passed. A BUY is correct when the realized price finished above the
// signal price, a SELL when it finished below.
type Tracker struct {
	repo      *SignalRepository
	bars      BarSource
	threshold float64
	log       zerolog.Logger
}

func NewTracker(repo *SignalRepository, bars BarSource, log zerolog.Logger) *Tracker {
	return &Tracker{
		repo:      repo,
		bars:      bars,
		threshold: defaultConfidenceThreshold,
		log:       log.With().Str("service", "signal_accuracy").Logger(),
	}
}

// Record journals one signal. HOLD signals are not tracked and return 0.
func (t *Tracker) Record(rec SignalRecord) (int64, error) {
	switch rec.Action {
	case domain.SignalBuy, domain.SignalSell:
	case domain.SignalHold:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown signal action %q", domain.ErrInvalidInput, rec.Action)
	}
	if rec.SignalPrice <= 0 {
		return 0, fmt.Errorf("%w: signal price must be positive, got %.4f", domain.ErrInvalidInput, rec.SignalPrice)
	}
	if rec.LookaheadDays <= 0 {
		return 0, fmt.Errorf("%w: lookahead days must be positive, got %d", domain.ErrInvalidInput, rec.LookaheadDays)
	}
	return t.repo.Insert(rec)
}

// EvaluateDue grades every pending signal whose window closed by asOf,
// using the first stored bar at or after the target date. Signals without
// a usable bar stay pending. Returns the number graded.
func (t *Tracker) EvaluateDue(asOf time.Time) (int, error) {
	pending, err := t.repo.Pending(asOf)
	if err != nil {
		return 0, err
	}

	graded := 0
	for _, rec := range pending {
		target := rec.SignalDate.AddDate(0, 0, rec.LookaheadDays)
		bars, err := t.bars.GetBars(rec.Symbol, target, asOf)
		if err != nil {
			return graded, fmt.Errorf("fetching realized bars for %s: %w", rec.Symbol, err)
		}
		if len(bars) == 0 {
			continue
		}

		realized := bars[0]
		correct := false
		switch rec.Action {
		case domain.SignalBuy:
			correct = realized.Close > rec.SignalPrice
		case domain.SignalSell:
			correct = realized.Close < rec.SignalPrice
		}

		if err := t.repo.RecordOutcome(rec.ID, realized.Close, realized.Date, correct); err != nil {
			return graded, err
		}
		graded++
	}

	if graded > 0 {
		t.log.Debug().Int("graded", graded).Msg("Signal outcomes evaluated")
	}
	return graded, nil
}

// Bucket aggregates correctness over one slice of the journal.
type Bucket struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"` // percent
}

func (b *Bucket) add(correct bool) {
	b.Total++
	if correct {
		b.Correct++
	}
}

func (b *Bucket) finalize() {
	if b.Total > 0 {
		b.Accuracy = float64(b.Correct) / float64(b.Total) * 100
	}
}

// AccuracyReport aggregates graded signals along every tracked dimension.
type AccuracyReport struct {
	Overall               Bucket            `json:"overall"`
	ByStrategy            map[string]Bucket `json:"by_strategy"`
	BySymbol              map[string]Bucket `json:"by_symbol"`
	BySector              map[string]Bucket `json:"by_sector"`
	ByIndex               map[string]Bucket `json:"by_index"`
	ByLookahead           map[int]Bucket    `json:"by_lookahead"`
	HighConfidence        Bucket            `json:"high_confidence"`
	LowConfidence         Bucket            `json:"low_confidence"`
	ConfidenceThreshold   float64           `json:"confidence_threshold"`
	ConfidenceCorrelation float64           `json:"confidence_correlation"`
}

// Report aggregates every graded signal. The confidence correlation is the
// Pearson coefficient between confidence and a 0/1 correctness series; a
// degenerate series reports 0.
func (t *Tracker) Report() (*AccuracyReport, error) {
	evaluated, err := t.repo.Evaluated()
	if err != nil {
		return nil, err
	}

	report := &AccuracyReport{
		ByStrategy:          make(map[string]Bucket),
		BySymbol:            make(map[string]Bucket),
		BySector:            make(map[string]Bucket),
		ByIndex:             make(map[string]Bucket),
		ByLookahead:         make(map[int]Bucket),
		ConfidenceThreshold: t.threshold,
	}

	confidences := make([]float64, 0, len(evaluated))
	outcomes := make([]float64, 0, len(evaluated))

	for _, ev := range evaluated {
		report.Overall.add(ev.Correct)
		addTo(report.ByStrategy, ev.Strategy, ev.Correct)
		addTo(report.BySymbol, ev.Symbol, ev.Correct)
		if ev.Sector != "" {
			addTo(report.BySector, ev.Sector, ev.Correct)
		}
		if ev.MarketIndex != "" {
			addTo(report.ByIndex, ev.MarketIndex, ev.Correct)
		}
		lb := report.ByLookahead[ev.LookaheadDays]
		lb.add(ev.Correct)
		report.ByLookahead[ev.LookaheadDays] = lb

		if ev.Confidence >= t.threshold {
			report.HighConfidence.add(ev.Correct)
		} else {
			report.LowConfidence.add(ev.Correct)
		}

		confidences = append(confidences, ev.Confidence)
		if ev.Correct {
			outcomes = append(outcomes, 1)
		} else {
			outcomes = append(outcomes, 0)
		}
	}

	report.Overall.finalize()
	report.HighConfidence.finalize()
	report.LowConfidence.finalize()
	finalizeAll(report.ByStrategy)
	finalizeAll(report.BySymbol)
	finalizeAll(report.BySector)
	finalizeAll(report.ByIndex)
	for k, b := range report.ByLookahead {
		b.finalize()
		report.ByLookahead[k] = b
	}

	if len(confidences) >= 2 {
		if r := stat.Correlation(confidences, outcomes, nil); !math.IsNaN(r) {
			report.ConfidenceCorrelation = r
		}
	}
	return report, nil
}

func addTo(m map[string]Bucket, key string, correct bool) {
	b := m[key]
	b.add(correct)
	m[key] = b
}

func finalizeAll(m map[string]Bucket) {
	for k, b := range m {
		b.finalize()
		m[k] = b
	}
}
