package strategies

import (
	"github.com/aristath/hindsight/internal/domain"
)

// BuyAndHold signals BUY on the first bar it sees and HOLD forever after.
// It is the benchmark the other strategies are compared against.
type BuyAndHold struct{}

func NewBuyAndHold() *BuyAndHold {
	return &BuyAndHold{}
}

func (s *BuyAndHold) Name() string {
	return "buy_and_hold"
}

func (s *BuyAndHold) Describe() string {
	return "Buys on the first bar and never sells"
}

func (s *BuyAndHold) Analyze(symbol string, window []domain.Bar, currentPrice float64) domain.Signal {
	if len(window) <= 1 {
		return domain.Signal{
			Action:     domain.SignalBuy,
			Confidence: 1,
			Reasoning:  []string{"initial entry"},
		}
	}
	return hold("holding")
}

func (s *BuyAndHold) SetParams(params map[string]float64) error {
	return nil
}

func (s *BuyAndHold) Params() map[string]float64 {
	return map[string]float64{}
}
