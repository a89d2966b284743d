// Package strategies holds the built-in trading strategies and the registry
// the backtest, optimization and comparison modules create them through.
//
// A strategy sees only the bar window it is handed; the engines guarantee
// the window ends at the decision bar, so no strategy can observe a future
// price.
package strategies

import (
	"fmt"
	"sort"

	"github.com/aristath/hindsight/internal/domain"
)

// Factory builds a fresh strategy instance with the given parameters.
// A nil params map yields the strategy's defaults.
type Factory func(params map[string]float64) (domain.Strategy, error)

// Registry maps strategy names to factories. Registration order is
// preserved for deterministic listings.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in strategy registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("buy_and_hold", func(p map[string]float64) (domain.Strategy, error) {
		return NewBuyAndHold(), nil
	})
	r.Register("sma_cross", func(p map[string]float64) (domain.Strategy, error) {
		return NewSMACross(p)
	})
	r.Register("rsi_reversion", func(p map[string]float64) (domain.Strategy, error) {
		return NewRSIReversion(p)
	})
	r.Register("macd_momentum", func(p map[string]float64) (domain.Strategy, error) {
		return NewMACDMomentum(p)
	})
	r.Register("bollinger_bands", func(p map[string]float64) (domain.Strategy, error) {
		return NewBollingerBands(p)
	})
	return r
}

// RegisterScoreDriven adds the score_driven strategy. Registered
// separately because it needs the scoring engine, which is wired after
// the built-ins.
func (r *Registry) RegisterScoreDriven(score ScoreFunc) {
	r.Register("score_driven", func(p map[string]float64) (domain.Strategy, error) {
		return NewScoreDriven(score, p)
	})
}

// Register adds a factory under a unique name.
func (r *Registry) Register(name string, factory Factory) {
	if _, exists := r.factories[name]; !exists {
		r.names = append(r.names, name)
	}
	r.factories[name] = factory
}

// Create builds a strategy by name.
func (r *Registry) Create(name string, params map[string]float64) (domain.Strategy, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidInput, name)
	}
	return factory(params)
}

// Factory returns the factory for a name, for modules that build many
// instances (optimization fans out one strategy per parameter set).
func (r *Registry) Factory(name string) (Factory, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidInput, name)
	}
	return factory, nil
}

// Names lists registered strategies in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// closes extracts the close series from a bar window.
func closes(window []domain.Bar) []float64 {
	out := make([]float64, len(window))
	for i, b := range window {
		out[i] = b.Close
	}
	return out
}

// copyParams returns a detached copy with stable behavior for callers that
// range over it after sorting the keys.
func copyParams(p map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// mergeParams overlays overrides onto defaults, rejecting unknown keys so a
// typo in a parameter grid fails loudly instead of silently using defaults.
func mergeParams(defaults, overrides map[string]float64) (map[string]float64, error) {
	merged := copyParams(defaults)
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, known := merged[k]; !known {
			return nil, fmt.Errorf("%w: unknown parameter %q", domain.ErrInvalidParameter, k)
		}
		merged[k] = overrides[k]
	}
	return merged, nil
}

// hold builds the no-trade signal with one reasoning line.
func hold(reason string) domain.Signal {
	return domain.Signal{Action: domain.SignalHold, Confidence: 0, Reasoning: []string{reason}}
}
