package strategies

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/aristath/hindsight/internal/domain"
)

// RSIReversion buys oversold readings and sells overbought ones.
type RSIReversion struct {
	params map[string]float64
}

func rsiDefaults() map[string]float64 {
	return map[string]float64{"period": 14, "oversold": 30, "overbought": 70}
}

func NewRSIReversion(params map[string]float64) (*RSIReversion, error) {
	s := &RSIReversion{params: rsiDefaults()}
	if err := s.SetParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RSIReversion) Name() string {
	return "rsi_reversion"
}

func (s *RSIReversion) Describe() string {
	return fmt.Sprintf("RSI(%d) mean reversion at %g/%g",
		int(s.params["period"]), s.params["oversold"], s.params["overbought"])
}

func (s *RSIReversion) Analyze(symbol string, window []domain.Bar, currentPrice float64) domain.Signal {
	period := int(s.params["period"])
	if len(window) < period+1 {
		return hold("insufficient history")
	}

	rsi := talib.Rsi(closes(window), period)
	value := rsi[len(rsi)-1]

	oversold := s.params["oversold"]
	overbought := s.params["overbought"]

	switch {
	case value <= oversold:
		// Deeper oversold readings carry more conviction.
		return domain.Signal{
			Action:     domain.SignalBuy,
			Confidence: clamp01(0.5 + (oversold-value)/oversold),
			Reasoning:  []string{fmt.Sprintf("RSI %.1f at or below oversold %.0f", value, oversold)},
			Metadata:   map[string]any{"rsi": value},
		}
	case value >= overbought:
		return domain.Signal{
			Action:     domain.SignalSell,
			Confidence: clamp01(0.5 + (value-overbought)/(100-overbought)),
			Reasoning:  []string{fmt.Sprintf("RSI %.1f at or above overbought %.0f", value, overbought)},
			Metadata:   map[string]any{"rsi": value},
		}
	}
	return hold(fmt.Sprintf("RSI %.1f in neutral zone", value))
}

func (s *RSIReversion) SetParams(params map[string]float64) error {
	merged, err := mergeParams(s.params, params)
	if err != nil {
		return err
	}
	if int(merged["period"]) < 2 {
		return fmt.Errorf("%w: period must be at least 2, got %d", domain.ErrInvalidParameter, int(merged["period"]))
	}
	if merged["oversold"] <= 0 || merged["overbought"] >= 100 || merged["oversold"] >= merged["overbought"] {
		return fmt.Errorf("%w: need 0 < oversold < overbought < 100, got %g/%g",
			domain.ErrInvalidParameter, merged["oversold"], merged["overbought"])
	}
	s.params = merged
	return nil
}

func (s *RSIReversion) Params() map[string]float64 {
	return copyParams(s.params)
}
