package strategies

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/aristath/hindsight/internal/domain"
)

// MACDMomentum trades MACD signal-line crossings: BUY when the MACD line
// crosses above its signal line, SELL when it crosses below.
type MACDMomentum struct {
	params map[string]float64
}

func macdDefaults() map[string]float64 {
	return map[string]float64{"fast": 12, "slow": 26, "signal": 9}
}

func NewMACDMomentum(params map[string]float64) (*MACDMomentum, error) {
	s := &MACDMomentum{params: macdDefaults()}
	if err := s.SetParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MACDMomentum) Name() string {
	return "macd_momentum"
}

func (s *MACDMomentum) Describe() string {
	return fmt.Sprintf("MACD(%d/%d/%d) signal cross",
		int(s.params["fast"]), int(s.params["slow"]), int(s.params["signal"]))
}

func (s *MACDMomentum) Analyze(symbol string, window []domain.Bar, currentPrice float64) domain.Signal {
	fast := int(s.params["fast"])
	slow := int(s.params["slow"])
	signalPeriod := int(s.params["signal"])

	// The signal line needs a full EMA stack before it stabilizes.
	if len(window) < slow+signalPeriod+1 {
		return hold("insufficient history")
	}

	_, _, hist := talib.Macd(closes(window), fast, slow, signalPeriod)
	i := len(hist) - 1

	// Histogram sign flip marks the signal-line crossing.
	strength := clamp01(0.5 + abs(hist[i])/currentPrice*100)
	switch {
	case hist[i] > 0 && hist[i-1] <= 0:
		return domain.Signal{
			Action:     domain.SignalBuy,
			Confidence: strength,
			Reasoning:  []string{"MACD crossed above signal line"},
			Metadata:   map[string]any{"histogram": hist[i]},
		}
	case hist[i] < 0 && hist[i-1] >= 0:
		return domain.Signal{
			Action:     domain.SignalSell,
			Confidence: strength,
			Reasoning:  []string{"MACD crossed below signal line"},
			Metadata:   map[string]any{"histogram": hist[i]},
		}
	}
	return hold("no signal cross")
}

func (s *MACDMomentum) SetParams(params map[string]float64) error {
	merged, err := mergeParams(s.params, params)
	if err != nil {
		return err
	}
	fast, slow, signal := int(merged["fast"]), int(merged["slow"]), int(merged["signal"])
	if fast < 2 || signal < 2 {
		return fmt.Errorf("%w: fast and signal periods must be at least 2", domain.ErrInvalidParameter)
	}
	if slow <= fast {
		return fmt.Errorf("%w: slow period (%d) must exceed fast period (%d)", domain.ErrInvalidParameter, slow, fast)
	}
	s.params = merged
	return nil
}

func (s *MACDMomentum) Params() map[string]float64 {
	return copyParams(s.params)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
