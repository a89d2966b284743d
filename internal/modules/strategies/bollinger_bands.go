package strategies

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/aristath/hindsight/internal/domain"
)

// BollingerBands fades band touches: BUY at or below the lower band, SELL
// at or above the upper band.
type BollingerBands struct {
	params map[string]float64
}

func bollingerDefaults() map[string]float64 {
	return map[string]float64{"period": 20, "stddev": 2}
}

func NewBollingerBands(params map[string]float64) (*BollingerBands, error) {
	s := &BollingerBands{params: bollingerDefaults()}
	if err := s.SetParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BollingerBands) Name() string {
	return "bollinger_bands"
}

func (s *BollingerBands) Describe() string {
	return fmt.Sprintf("Bollinger(%d, %gσ) band fade", int(s.params["period"]), s.params["stddev"])
}

func (s *BollingerBands) Analyze(symbol string, window []domain.Bar, currentPrice float64) domain.Signal {
	period := int(s.params["period"])
	if len(window) < period+1 {
		return hold("insufficient history")
	}

	dev := s.params["stddev"]
	upper, middle, lower := talib.BBands(closes(window), period, dev, dev, talib.SMA)
	i := len(window) - 1

	width := upper[i] - lower[i]
	if width <= 0 {
		return hold("bands collapsed")
	}

	switch {
	case currentPrice <= lower[i]:
		return domain.Signal{
			Action:     domain.SignalBuy,
			Confidence: clamp01(0.5 + (lower[i]-currentPrice)/width),
			Reasoning:  []string{fmt.Sprintf("price %.2f at or below lower band %.2f", currentPrice, lower[i])},
			Metadata:   map[string]any{"middle_band": middle[i]},
		}
	case currentPrice >= upper[i]:
		return domain.Signal{
			Action:     domain.SignalSell,
			Confidence: clamp01(0.5 + (currentPrice-upper[i])/width),
			Reasoning:  []string{fmt.Sprintf("price %.2f at or above upper band %.2f", currentPrice, upper[i])},
			Metadata:   map[string]any{"middle_band": middle[i]},
		}
	}
	return hold("price inside bands")
}

func (s *BollingerBands) SetParams(params map[string]float64) error {
	merged, err := mergeParams(s.params, params)
	if err != nil {
		return err
	}
	if int(merged["period"]) < 2 {
		return fmt.Errorf("%w: period must be at least 2, got %d", domain.ErrInvalidParameter, int(merged["period"]))
	}
	if merged["stddev"] <= 0 {
		return fmt.Errorf("%w: stddev multiplier must be positive, got %g", domain.ErrInvalidParameter, merged["stddev"])
	}
	s.params = merged
	return nil
}

func (s *BollingerBands) Params() map[string]float64 {
	return copyParams(s.params)
}
