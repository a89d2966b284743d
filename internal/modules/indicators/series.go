// Package indicators computes and memoizes per-symbol technical indicator
// vectors and candlestick pattern detections. Results are keyed by
// (symbol, indicator, params, as-of) fingerprints, computed at most once
// concurrently per fingerprint, held in a bounded LRU and persisted to
// cache.db.
package indicators

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/aristath/hindsight/internal/domain"
)

// Supported indicator IDs.
const (
	SMA    = "sma"
	EMA    = "ema"
	RSI    = "rsi"
	MACD   = "macd"
	BBands = "bbands"
	ATR    = "atr"
	OBV    = "obv"
	ADX    = "adx"
)

// Spec identifies one indicator computation: an ID plus its parameter tuple.
type Spec struct {
	ID     string    `json:"id"`
	Params []float64 `json:"params"`
}

// Fingerprint is the cache key for one computed series.
type Fingerprint struct {
	Symbol string
	Spec   Spec
	AsOf   time.Time
}

// Key renders the canonical fingerprint string.
func (fp Fingerprint) Key() string {
	params := make([]string, len(fp.Spec.Params))
	for i, p := range fp.Spec.Params {
		params[i] = strconv.FormatFloat(p, 'g', -1, 64)
	}
	return fmt.Sprintf("%s|%s|%s|%s",
		fp.Symbol, fp.Spec.ID, strings.Join(params, ","), fp.AsOf.UTC().Format("2006-01-02"))
}

// Series is one computed indicator, parallel to the input bars. Lines holds
// one or more named outputs ("value" for single-line indicators; "macd",
// "signal", "histogram" for MACD; "upper", "middle", "lower" for Bollinger).
//
// Values before FirstValid are the computation's unstable prefix and must be
// skipped by consumers. Insufficient is the explicit marker for inputs
// shorter than the indicator's required period; such a series has no lines
// and FirstValid = -1.
type Series struct {
	Symbol       string               `json:"symbol" msgpack:"symbol"`
	ID           string               `json:"id" msgpack:"id"`
	Params       []float64            `json:"params" msgpack:"params"`
	AsOf         time.Time            `json:"as_of" msgpack:"as_of"`
	N            int                  `json:"n" msgpack:"n"`
	FirstValid   int                  `json:"first_valid" msgpack:"first_valid"`
	Lines        map[string][]float64 `json:"lines,omitempty" msgpack:"lines"`
	Insufficient bool                 `json:"insufficient,omitempty" msgpack:"insufficient"`
}

// Line returns a named output line, or nil if absent.
func (s *Series) Line(name string) []float64 {
	if s == nil || s.Lines == nil {
		return nil
	}
	return s.Lines[name]
}

// At returns line[i] when i is inside the stable region.
func (s *Series) At(name string, i int) (float64, bool) {
	if s == nil || s.Insufficient || i < s.FirstValid || i >= s.N {
		return 0, false
	}
	line := s.Line(name)
	if line == nil || i >= len(line) {
		return 0, false
	}
	return line[i], true
}

// Last returns the newest stable value of a line.
func (s *Series) Last(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	return s.At(name, s.N-1)
}

// lookback returns the unstable-prefix length for a spec, or an error for an
// unknown ID or malformed parameter tuple.
func lookback(spec Spec) (int, error) {
	period := func(idx int) (int, error) {
		if idx >= len(spec.Params) {
			return 0, fmt.Errorf("%s needs %d params, got %d: %w", spec.ID, idx+1, len(spec.Params), domain.ErrInvalidParameter)
		}
		n := int(spec.Params[idx])
		if n < 1 || float64(n) != spec.Params[idx] {
			return 0, fmt.Errorf("%s param %d must be a positive integer period: %w", spec.ID, idx, domain.ErrInvalidParameter)
		}
		return n, nil
	}

	switch spec.ID {
	case SMA, EMA:
		n, err := period(0)
		if err != nil {
			return 0, err
		}
		return n - 1, nil
	case RSI, ATR:
		n, err := period(0)
		if err != nil {
			return 0, err
		}
		return n, nil
	case BBands:
		n, err := period(0)
		if err != nil {
			return 0, err
		}
		if len(spec.Params) < 2 || spec.Params[1] <= 0 {
			return 0, fmt.Errorf("bbands needs a positive deviation multiplier: %w", domain.ErrInvalidParameter)
		}
		return n - 1, nil
	case MACD:
		if _, err := period(0); err != nil {
			return 0, err
		}
		slow, err := period(1)
		if err != nil {
			return 0, err
		}
		signal, err := period(2)
		if err != nil {
			return 0, err
		}
		return slow + signal - 2, nil
	case ADX:
		n, err := period(0)
		if err != nil {
			return 0, err
		}
		return 2*n - 1, nil
	case OBV:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown indicator %q: %w", spec.ID, domain.ErrInvalidParameter)
	}
}

// computeSeries runs one indicator over the bars. Inputs shorter than the
// required period yield the insufficient marker, never padded values.
func computeSeries(symbol string, spec Spec, bars []domain.Bar) (*Series, error) {
	lb, err := lookback(spec)
	if err != nil {
		return nil, err
	}

	asOf := time.Time{}
	if len(bars) > 0 {
		asOf = domain.Day(bars[len(bars)-1].Date)
	}
	series := &Series{
		Symbol:     symbol,
		ID:         spec.ID,
		Params:     spec.Params,
		AsOf:       asOf,
		N:          len(bars),
		FirstValid: lb,
	}

	if len(bars) < lb+1 {
		series.Insufficient = true
		series.FirstValid = -1
		return series, nil
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	switch spec.ID {
	case SMA:
		series.Lines = map[string][]float64{"value": talib.Sma(closes, int(spec.Params[0]))}
	case EMA:
		series.Lines = map[string][]float64{"value": talib.Ema(closes, int(spec.Params[0]))}
	case RSI:
		series.Lines = map[string][]float64{"value": talib.Rsi(closes, int(spec.Params[0]))}
	case MACD:
		macd, signal, hist := talib.Macd(closes, int(spec.Params[0]), int(spec.Params[1]), int(spec.Params[2]))
		series.Lines = map[string][]float64{"macd": macd, "signal": signal, "histogram": hist}
	case BBands:
		upper, middle, lower := talib.BBands(closes, int(spec.Params[0]), spec.Params[1], spec.Params[1], 0)
		series.Lines = map[string][]float64{"upper": upper, "middle": middle, "lower": lower}
	case ATR:
		series.Lines = map[string][]float64{"value": talib.Atr(highs, lows, closes, int(spec.Params[0]))}
	case OBV:
		series.Lines = map[string][]float64{"value": talib.Obv(closes, volumes)}
	case ADX:
		series.Lines = map[string][]float64{"value": talib.Adx(highs, lows, closes, int(spec.Params[0]))}
	}

	return series, nil
}

// StandardSpecs is the indicator set the scoring engine consumes.
func StandardSpecs() []Spec {
	return []Spec{
		{ID: SMA, Params: []float64{20}},
		{ID: SMA, Params: []float64{50}},
		{ID: SMA, Params: []float64{200}},
		{ID: EMA, Params: []float64{12}},
		{ID: EMA, Params: []float64{26}},
		{ID: RSI, Params: []float64{14}},
		{ID: MACD, Params: []float64{12, 26, 9}},
		{ID: BBands, Params: []float64{20, 2}},
		{ID: ATR, Params: []float64{14}},
		{ID: ATR, Params: []float64{20}},
		{ID: OBV, Params: nil},
		{ID: ADX, Params: []float64{14}},
	}
}
