// Package scoring turns a per-symbol data bundle into a recommendation.
//
// Every sub-score starts at the neutral midpoint of 50 and accumulates
// bounded contributions per metric, so a missing input degrades toward
// neutral instead of failing. The composite is a weighted blend of the four
// sub-scores; risk is classified separately and never weighted in. Scoring
// is deterministic: identical bundles produce bitwise identical output.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/indicators"
)

// MinimumBars is the shortest history the engine will score.
const MinimumBars = 60

// Bundle is everything the engine needs to score one symbol. Bars are
// required; everything else degrades to neutral when absent.
type Bundle struct {
	Symbol          string
	Bars            []domain.Bar
	CurrentPrice    float64 // last close when zero
	Fundamentals    *domain.Fundamentals
	Vector          *indicators.Vector
	Patterns        []indicators.PatternHit
	Benchmark       []domain.Bar // market index bars for relative strength
	SectorSentiment float64      // [-1, 1], 0 when unknown
}

// SubScores are the four weighted components, each in [0, 100].
type SubScores struct {
	Fundamental float64 `json:"fundamental"`
	Technical   float64 `json:"technical"`
	Momentum    float64 `json:"momentum"`
	Sentiment   float64 `json:"sentiment"`
}

// Recommendation is the engine's output for one symbol.
type Recommendation struct {
	Symbol            string              `json:"symbol"`
	AsOf              time.Time           `json:"as_of"`
	Action            domain.SignalAction `json:"action"`
	CompositeScore    float64             `json:"composite_score"`
	SubScores         SubScores           `json:"sub_scores"`
	RiskLevel         domain.RiskLevel    `json:"risk_level"`
	RiskFactors       []string            `json:"risk_factors,omitempty"`
	CurrentPrice      float64             `json:"current_price"`
	TargetPrice       float64             `json:"target_price"`
	ExpectedReturnPct float64             `json:"expected_return_pct"`
	Confidence        float64             `json:"confidence"`
	Reasoning         []string            `json:"reasoning,omitempty"`
}

// Signal converts the recommendation into the strategy-facing signal form.
func (r *Recommendation) Signal() domain.Signal {
	summary := fmt.Sprintf("composite %.1f (F %.1f T %.1f M %.1f S %.1f)",
		r.CompositeScore, r.SubScores.Fundamental, r.SubScores.Technical,
		r.SubScores.Momentum, r.SubScores.Sentiment)
	return domain.Signal{
		Action:     r.Action,
		Confidence: r.Confidence,
		Reasoning:  append([]string{summary}, r.Reasoning...),
		Metadata: map[string]any{
			"composite_score":     r.CompositeScore,
			"target_price":        r.TargetPrice,
			"expected_return_pct": r.ExpectedReturnPct,
			"risk_level":          string(r.RiskLevel),
		},
	}
}

// Service is the scoring engine.
type Service struct {
	cfg config.ScoringConfig
	log zerolog.Logger
}

func NewService(cfg config.ScoringConfig, log zerolog.Logger) *Service {
	return &Service{
		cfg: cfg,
		log: log.With().Str("service", "scoring").Logger(),
	}
}

// Score computes the recommendation for one bundle.
func (s *Service) Score(b Bundle) (*Recommendation, error) {
	if b.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if len(b.Bars) < MinimumBars {
		return nil, fmt.Errorf("%s has %d bars, need %d: %w",
			b.Symbol, len(b.Bars), MinimumBars, domain.ErrInsufficientData)
	}

	price := b.CurrentPrice
	if price <= 0 {
		price = b.Bars[len(b.Bars)-1].Close
	}

	fundamental := scoreFundamentals(b.Fundamentals)
	technical := scoreTechnical(b.Bars, b.Vector, b.Patterns, price)
	momentum := scoreMomentum(b.Bars, b.Benchmark)
	sentiment := scoreSentiment(b.Fundamentals, b.Bars, b.SectorSentiment)
	riskLevel, riskFactors := classifyRisk(b.Bars, b.Fundamentals, b.Vector)

	sub := SubScores{
		Fundamental: fundamental.clipped(),
		Technical:   technical.clipped(),
		Momentum:    momentum.clipped(),
		Sentiment:   sentiment.clipped(),
	}
	composite := clip(
		s.cfg.WeightFundamental*sub.Fundamental+
			s.cfg.WeightTechnical*sub.Technical+
			s.cfg.WeightMomentum*sub.Momentum+
			s.cfg.WeightSentiment*sub.Sentiment,
		0, 100)

	action := domain.SignalHold
	switch {
	case composite >= s.cfg.BuyThreshold:
		action = domain.SignalBuy
	case composite <= s.cfg.SellThreshold:
		action = domain.SignalSell
	}

	target, expectedPct := computeTarget(price, b.Fundamentals, b.Bars)

	rec := &Recommendation{
		Symbol:            b.Symbol,
		AsOf:              domain.Day(b.Bars[len(b.Bars)-1].Date),
		Action:            action,
		CompositeScore:    composite,
		SubScores:         sub,
		RiskLevel:         riskLevel,
		RiskFactors:       riskFactors,
		CurrentPrice:      price,
		TargetPrice:       target,
		ExpectedReturnPct: expectedPct,
		Confidence:        clip(math.Abs(composite-50)/50, 0, 1),
	}

	rec.Reasoning = append(rec.Reasoning, reasonLines("fundamental", fundamental)...)
	rec.Reasoning = append(rec.Reasoning, reasonLines("technical", technical)...)
	rec.Reasoning = append(rec.Reasoning, reasonLines("momentum", momentum)...)
	rec.Reasoning = append(rec.Reasoning, reasonLines("sentiment", sentiment)...)

	return rec, nil
}

// tally accumulates bounded metric contributions around the neutral midpoint.
type tally struct {
	score float64
	pos   []string
	neg   []string
}

func newTally() *tally {
	return &tally{score: 50}
}

func (t *tally) add(delta float64, reason string) {
	t.score += delta
	switch {
	case delta > 0:
		t.pos = append(t.pos, reason)
	case delta < 0:
		t.neg = append(t.neg, reason)
	}
}

func (t *tally) clipped() float64 {
	return clip(t.score, 0, 100)
}

// reasonLines renders a tally's contributions in stable order, positives
// before negatives.
func reasonLines(factor string, t *tally) []string {
	lines := make([]string, 0, len(t.pos)+len(t.neg))
	for _, r := range t.pos {
		lines = append(lines, factor+": +"+r)
	}
	for _, r := range t.neg {
		lines = append(lines, factor+": -"+r)
	}
	return lines
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
