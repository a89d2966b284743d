package indicators

import (
	"strconv"
	"time"
)

// Vector bundles the standard indicator set for one symbol, parallel to the
// bars it was computed from. Slices are nil when the input was too short for
// that indicator; FirstValid gives the index of each indicator's first stable
// value.
type Vector struct {
	Symbol string    `json:"symbol"`
	AsOf   time.Time `json:"as_of"`
	N      int       `json:"n"`

	SMA20  []float64 `json:"sma20,omitempty"`
	SMA50  []float64 `json:"sma50,omitempty"`
	SMA200 []float64 `json:"sma200,omitempty"`
	EMA12  []float64 `json:"ema12,omitempty"`
	EMA26  []float64 `json:"ema26,omitempty"`
	RSI14  []float64 `json:"rsi14,omitempty"`

	MACD       []float64 `json:"macd,omitempty"`
	MACDSignal []float64 `json:"macd_signal,omitempty"`
	MACDHist   []float64 `json:"macd_hist,omitempty"`

	BBUpper  []float64 `json:"bb_upper,omitempty"`
	BBMiddle []float64 `json:"bb_middle,omitempty"`
	BBLower  []float64 `json:"bb_lower,omitempty"`

	ATR14 []float64 `json:"atr14,omitempty"`
	ATR20 []float64 `json:"atr20,omitempty"`
	OBV   []float64 `json:"obv,omitempty"`
	ADX14 []float64 `json:"adx14,omitempty"`

	FirstValid map[string]int `json:"first_valid"`
}

// vectorKey names each standard indicator inside FirstValid.
func vectorKey(spec Spec) string {
	switch spec.ID {
	case SMA, EMA, RSI, ATR, ADX:
		return spec.ID + strconv.Itoa(int(spec.Params[0]))
	default:
		return spec.ID
	}
}

// Valid reports whether index i holds a stable value for the named indicator.
func (v *Vector) Valid(name string, i int) bool {
	first, ok := v.FirstValid[name]
	return ok && i >= first && i < v.N
}

// LastValid returns the newest stable value of a single-line indicator.
func (v *Vector) LastValid(name string, line []float64) (float64, bool) {
	if line == nil || v.N == 0 || !v.Valid(name, v.N-1) {
		return 0, false
	}
	return line[v.N-1], true
}

// absorb copies one computed series into the bundle.
func (v *Vector) absorb(spec Spec, s *Series) {
	if s == nil || s.Insufficient {
		return
	}
	v.FirstValid[vectorKey(spec)] = s.FirstValid

	switch spec.ID {
	case SMA:
		switch int(spec.Params[0]) {
		case 20:
			v.SMA20 = s.Line("value")
		case 50:
			v.SMA50 = s.Line("value")
		case 200:
			v.SMA200 = s.Line("value")
		}
	case EMA:
		switch int(spec.Params[0]) {
		case 12:
			v.EMA12 = s.Line("value")
		case 26:
			v.EMA26 = s.Line("value")
		}
	case RSI:
		v.RSI14 = s.Line("value")
	case MACD:
		v.MACD = s.Line("macd")
		v.MACDSignal = s.Line("signal")
		v.MACDHist = s.Line("histogram")
	case BBands:
		v.BBUpper = s.Line("upper")
		v.BBMiddle = s.Line("middle")
		v.BBLower = s.Line("lower")
	case ATR:
		switch int(spec.Params[0]) {
		case 14:
			v.ATR14 = s.Line("value")
		case 20:
			v.ATR20 = s.Line("value")
		}
	case OBV:
		v.OBV = s.Line("value")
	case ADX:
		v.ADX14 = s.Line("value")
	}
}
