package strategies

import (
	"fmt"

	"github.com/aristath/hindsight/internal/domain"
)

// ScoreFunc computes a composite score in [0, 100] for the bar window.
// The scoring engine provides the production implementation.
type ScoreFunc func(symbol string, window []domain.Bar, currentPrice float64) (float64, error)

// ScoreDriven trades the composite analysis score: BUY when the score
// clears the buy threshold, SELL when it drops below the sell threshold.
type ScoreDriven struct {
	score  ScoreFunc
	params map[string]float64
}

func scoreDrivenDefaults() map[string]float64 {
	return map[string]float64{"buy_threshold": 70, "sell_threshold": 40}
}

func NewScoreDriven(score ScoreFunc, params map[string]float64) (*ScoreDriven, error) {
	if score == nil {
		return nil, fmt.Errorf("%w: score function is required", domain.ErrInvalidParameter)
	}
	s := &ScoreDriven{score: score, params: scoreDrivenDefaults()}
	if err := s.SetParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ScoreDriven) Name() string {
	return "score_driven"
}

func (s *ScoreDriven) Describe() string {
	return fmt.Sprintf("composite score thresholds (buy ≥ %.0f, sell ≤ %.0f)",
		s.params["buy_threshold"], s.params["sell_threshold"])
}

func (s *ScoreDriven) Analyze(symbol string, window []domain.Bar, currentPrice float64) domain.Signal {
	if len(window) == 0 {
		return hold("insufficient history")
	}

	score, err := s.score(symbol, window, currentPrice)
	if err != nil {
		return hold(fmt.Sprintf("scoring failed: %v", err))
	}

	buyAt := s.params["buy_threshold"]
	sellAt := s.params["sell_threshold"]
	switch {
	case score >= buyAt:
		// Confidence scales with how far the score clears the threshold.
		return domain.Signal{
			Action:     domain.SignalBuy,
			Confidence: clamp01(0.5 + (score-buyAt)/(2*(100-buyAt+1))),
			Reasoning:  []string{fmt.Sprintf("composite score %.1f at or above %.0f", score, buyAt)},
		}
	case score <= sellAt:
		return domain.Signal{
			Action:     domain.SignalSell,
			Confidence: clamp01(0.5 + (sellAt-score)/(2*(sellAt+1))),
			Reasoning:  []string{fmt.Sprintf("composite score %.1f at or below %.0f", score, sellAt)},
		}
	}
	return hold(fmt.Sprintf("composite score %.1f between thresholds", score))
}

func (s *ScoreDriven) SetParams(params map[string]float64) error {
	merged, err := mergeParams(s.params, params)
	if err != nil {
		return err
	}
	buyAt, sellAt := merged["buy_threshold"], merged["sell_threshold"]
	if buyAt <= sellAt {
		return fmt.Errorf("%w: buy threshold (%.0f) must exceed sell threshold (%.0f)",
			domain.ErrInvalidParameter, buyAt, sellAt)
	}
	if buyAt > 100 || sellAt < 0 {
		return fmt.Errorf("%w: thresholds must lie in [0, 100]", domain.ErrInvalidParameter)
	}
	s.params = merged
	return nil
}

func (s *ScoreDriven) Params() map[string]float64 {
	return copyParams(s.params)
}
