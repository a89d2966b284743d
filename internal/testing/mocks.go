package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/hindsight/internal/domain"
)

// ScriptedStrategy replays a predefined signal sequence. Once the script is
// exhausted it keeps returning the last signal. Analyze is safe for
// concurrent use.
type ScriptedStrategy struct {
	mu      sync.Mutex
	name    string
	signals []domain.Signal
	params  map[string]float64
	calls   int
}

// NewScriptedStrategy builds a strategy that emits the given actions in order.
func NewScriptedStrategy(name string, actions ...domain.SignalAction) *ScriptedStrategy {
	signals := make([]domain.Signal, 0, len(actions))
	for _, a := range actions {
		signals = append(signals, domain.Signal{Action: a, Confidence: 0.8})
	}
	return &ScriptedStrategy{name: name, signals: signals, params: map[string]float64{}}
}

// NewScriptedStrategySignals builds a strategy from full signal values.
func NewScriptedStrategySignals(name string, signals ...domain.Signal) *ScriptedStrategy {
	return &ScriptedStrategy{name: name, signals: signals, params: map[string]float64{}}
}

func (s *ScriptedStrategy) Name() string     { return s.name }
func (s *ScriptedStrategy) Describe() string { return "scripted test strategy" }

func (s *ScriptedStrategy) Analyze(symbol string, window []domain.Bar, currentPrice float64) domain.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.signals) == 0 {
		return domain.Signal{Action: domain.SignalHold}
	}
	idx := s.calls
	if idx >= len(s.signals) {
		idx = len(s.signals) - 1
	}
	s.calls++
	return s.signals[idx]
}

func (s *ScriptedStrategy) SetParams(params map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range params {
		s.params[k] = v
	}
	return nil
}

func (s *ScriptedStrategy) Params() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// Calls returns how many times Analyze ran.
func (s *ScriptedStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// StaticProvider serves canned bars, fundamentals and quotes from memory.
// Error fields, when set, are returned instead of data; call counters let
// tests assert fallback ordering.
type StaticProvider struct {
	mu sync.Mutex

	ProviderName string
	Bars         map[string][]domain.Bar
	Fundamentals map[string]*domain.Fundamentals
	Quotes       map[string]*domain.Quote

	BarsErr         error
	FundamentalsErr error
	QuoteErr        error

	BarsCalls         int
	FundamentalsCalls int
	QuoteCalls        int
}

// NewStaticProvider builds an empty provider with the given name.
func NewStaticProvider(name string) *StaticProvider {
	return &StaticProvider{
		ProviderName: name,
		Bars:         map[string][]domain.Bar{},
		Fundamentals: map[string]*domain.Fundamentals{},
		Quotes:       map[string]*domain.Quote{},
	}
}

func (p *StaticProvider) Name() string { return p.ProviderName }

func (p *StaticProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.BarsCalls++
	if p.BarsErr != nil {
		return nil, p.BarsErr
	}
	bars, ok := p.Bars[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s: %w", symbol, domain.ErrInvalidInput)
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (p *StaticProvider) FetchFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.FundamentalsCalls++
	if p.FundamentalsErr != nil {
		return nil, p.FundamentalsErr
	}
	f, ok := p.Fundamentals[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s: %w", symbol, domain.ErrInvalidInput)
	}
	return f, nil
}

func (p *StaticProvider) FetchQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.QuoteCalls++
	if p.QuoteErr != nil {
		return nil, p.QuoteErr
	}
	if q, ok := p.Quotes[symbol]; ok {
		return q, nil
	}
	if bars, ok := p.Bars[symbol]; ok && len(bars) > 0 {
		return &domain.Quote{Bar: bars[len(bars)-1], FetchedAt: time.Now().UTC()}, nil
	}
	return nil, fmt.Errorf("unknown symbol %s: %w", symbol, domain.ErrInvalidInput)
}
