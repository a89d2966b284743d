package indicators

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/domain"
)

// seriesTTL is how long a persisted series stays valid. Series are keyed by
// as-of date, so expiry only matters as garbage collection.
const seriesTTL = 7 * 24 * time.Hour

// Repository persists computed indicator series and candlestick pattern hits
// in the cache database. Everything here is derived data; a lost row is
// recomputed on the next request.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "indicators").Logger(),
	}
}

// GetSeries loads a persisted series by fingerprint key. Returns nil with no
// error on a miss or an expired row.
func (r *Repository) GetSeries(key string) (*Series, error) {
	query := `
		SELECT payload, expires_at
		FROM indicator_cache
		WHERE fingerprint = ?`

	var payload []byte
	var expiresAt sql.NullInt64
	err := r.db.Conn().QueryRow(query, key).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load indicator series: %w", err)
	}
	if expiresAt.Valid && time.Now().Unix() > expiresAt.Int64 {
		return nil, nil
	}

	var s Series
	if err := msgpack.Unmarshal(payload, &s); err != nil {
		// A corrupt payload is dropped, not surfaced; the caller recomputes.
		r.log.Warn().Err(err).Str("fingerprint", key).Msg("Discarding corrupt indicator payload")
		return nil, nil
	}
	return &s, nil
}

// PutSeries stores a computed series under its fingerprint key.
func (r *Repository) PutSeries(key string, s *Series) error {
	payload, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode indicator series: %w", err)
	}

	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}

	query := `
		INSERT OR REPLACE INTO indicator_cache
			(fingerprint, symbol, indicator, params, as_of, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	_, err = r.db.Conn().Exec(query,
		key,
		s.Symbol,
		s.ID,
		strings.Join(params, ","),
		s.AsOf.UTC().Format("2006-01-02"),
		payload,
		now.Unix(),
		now.Add(seriesTTL).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store indicator series: %w", err)
	}
	return nil
}

// PurgeExpired deletes series rows past their expiry. Returns how many rows
// were removed.
func (r *Repository) PurgeExpired() (int64, error) {
	query := `DELETE FROM indicator_cache WHERE expires_at IS NOT NULL AND expires_at < ?`

	res, err := r.db.Conn().Exec(query, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired indicators: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged indicators: %w", err)
	}
	return n, nil
}

// SavePatternHits upserts detected pattern hits. Zero-value detections are
// never stored, so the table only holds actual signals.
func (r *Repository) SavePatternHits(hits []PatternHit) error {
	if len(hits) == 0 {
		return nil
	}

	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		query := `
			INSERT OR REPLACE INTO candlestick_patterns
				(symbol, date, pattern_name, pattern_value, reliability,
				 confirmation_price, target_price, invalidation_price, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

		stmt, err := tx.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare pattern insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for _, hit := range hits {
			_, err := stmt.Exec(
				hit.Symbol,
				hit.Date.UTC().Format("2006-01-02"),
				hit.Name,
				hit.Value,
				string(hit.Reliability),
				hit.ConfirmationPrice,
				hit.TargetPrice,
				hit.InvalidationPrice,
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to store pattern hit %s/%s: %w", hit.Symbol, hit.Name, err)
			}
		}
		return nil
	})
}

// GetPatternHits returns stored hits for a symbol between two dates,
// inclusive, oldest first.
func (r *Repository) GetPatternHits(symbol string, start, end time.Time) ([]PatternHit, error) {
	query := `
		SELECT symbol, date, pattern_name, pattern_value, reliability,
		       confirmation_price, target_price, invalidation_price
		FROM candlestick_patterns
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, pattern_name ASC`

	rows, err := r.db.Conn().Query(query,
		symbol,
		start.UTC().Format("2006-01-02"),
		end.UTC().Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern hits: %w", err)
	}
	defer rows.Close()

	var hits []PatternHit
	for rows.Next() {
		var hit PatternHit
		var date, reliability string
		var conf, target, invalid sql.NullFloat64
		err := rows.Scan(&hit.Symbol, &date, &hit.Name, &hit.Value, &reliability,
			&conf, &target, &invalid)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern hit: %w", err)
		}
		parsed, err := domain.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse pattern date %q: %w", date, err)
		}
		hit.Date = parsed
		hit.Reliability = domain.Reliability(reliability)
		hit.ConfirmationPrice = conf.Float64
		hit.TargetPrice = target.Float64
		hit.InvalidationPrice = invalid.Float64
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pattern hits: %w", err)
	}
	return hits, nil
}
