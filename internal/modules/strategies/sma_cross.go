package strategies

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/aristath/hindsight/internal/domain"
)

// SMACross trades moving-average crossovers: BUY when the fast average
// crosses above the slow one, SELL when it crosses below.
type SMACross struct {
	params map[string]float64
}

func smaCrossDefaults() map[string]float64 {
	return map[string]float64{"fast": 10, "slow": 30}
}

func NewSMACross(params map[string]float64) (*SMACross, error) {
	s := &SMACross{params: smaCrossDefaults()}
	if err := s.SetParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SMACross) Name() string {
	return "sma_cross"
}

func (s *SMACross) Describe() string {
	return fmt.Sprintf("SMA(%d/%d) crossover", int(s.params["fast"]), int(s.params["slow"]))
}

func (s *SMACross) Analyze(symbol string, window []domain.Bar, currentPrice float64) domain.Signal {
	fast := int(s.params["fast"])
	slow := int(s.params["slow"])
	if len(window) < slow+1 {
		return hold("insufficient history")
	}

	prices := closes(window)
	fastMA := talib.Sma(prices, fast)
	slowMA := talib.Sma(prices, slow)
	i := len(prices) - 1

	aboveNow := fastMA[i] > slowMA[i]
	abovePrev := fastMA[i-1] > slowMA[i-1]

	spread := 0.0
	if slowMA[i] > 0 {
		spread = (fastMA[i] - slowMA[i]) / slowMA[i]
	}

	switch {
	case aboveNow && !abovePrev:
		return domain.Signal{
			Action:     domain.SignalBuy,
			Confidence: clamp01(0.5 + spread*10),
			Reasoning:  []string{fmt.Sprintf("SMA(%d) crossed above SMA(%d)", fast, slow)},
		}
	case !aboveNow && abovePrev:
		return domain.Signal{
			Action:     domain.SignalSell,
			Confidence: clamp01(0.5 - spread*10),
			Reasoning:  []string{fmt.Sprintf("SMA(%d) crossed below SMA(%d)", fast, slow)},
		}
	}
	return hold("no crossover")
}

func (s *SMACross) SetParams(params map[string]float64) error {
	merged, err := mergeParams(s.params, params)
	if err != nil {
		return err
	}
	fast, slow := int(merged["fast"]), int(merged["slow"])
	if fast < 2 {
		return fmt.Errorf("%w: fast period must be at least 2, got %d", domain.ErrInvalidParameter, fast)
	}
	if slow <= fast {
		return fmt.Errorf("%w: slow period (%d) must exceed fast period (%d)", domain.ErrInvalidParameter, slow, fast)
	}
	s.params = merged
	return nil
}

func (s *SMACross) Params() map[string]float64 {
	return copyParams(s.params)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
