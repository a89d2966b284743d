package risk

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/hindsight/internal/domain"
)

// minCorrelationSamples is the shortest return series a pairwise correlation
// is computed from. Shorter overlaps are treated as unknown.
const minCorrelationSamples = 20

// CorrelationMatrix holds pairwise return correlations for a symbol set.
// The matrix is symmetric with a unit diagonal and values in [-1, 1].
type CorrelationMatrix struct {
	symbols []string
	index   map[string]int
	m       *mat.SymDense
}

// NewCorrelationMatrix computes pairwise correlations from per-symbol daily
// return series. Series are aligned on their common tail; pairs with fewer
// than minCorrelationSamples overlapping points stay at 0 (unknown).
func NewCorrelationMatrix(returns map[string][]float64) (*CorrelationMatrix, error) {
	if len(returns) == 0 {
		return nil, fmt.Errorf("%w: at least one return series is required", domain.ErrInvalidInput)
	}

	symbols := make([]string, 0, len(returns))
	for sym := range returns {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	index := make(map[string]int, len(symbols))
	for i, sym := range symbols {
		index[sym] = i
	}

	m := mat.NewSymDense(len(symbols), nil)
	for i := range symbols {
		m.SetSym(i, i, 1)
		for j := i + 1; j < len(symbols); j++ {
			a, b := alignTails(returns[symbols[i]], returns[symbols[j]])
			if len(a) < minCorrelationSamples {
				continue
			}
			r := stat.Correlation(a, b, nil)
			m.SetSym(i, j, clamp(r, -1, 1))
		}
	}

	return &CorrelationMatrix{symbols: symbols, index: index, m: m}, nil
}

// Symbols returns the covered symbol set in sorted order.
func (c *CorrelationMatrix) Symbols() []string {
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// Pair returns the correlation between two symbols. The second return is
// false when either symbol is not covered.
func (c *CorrelationMatrix) Pair(a, b string) (float64, bool) {
	i, okA := c.index[a]
	j, okB := c.index[b]
	if !okA || !okB {
		return 0, false
	}
	return c.m.At(i, j), true
}

// MaxAgainst returns the strongest correlation between symbol and any of the
// held symbols, together with the holding that produced it.
func (c *CorrelationMatrix) MaxAgainst(symbol string, held []string) (float64, string) {
	maxCorr := 0.0
	maxSym := ""
	for _, h := range held {
		if h == symbol {
			continue
		}
		r, ok := c.Pair(symbol, h)
		if !ok {
			continue
		}
		if r > maxCorr {
			maxCorr = r
			maxSym = h
		}
	}
	return maxCorr, maxSym
}

// ReturnsFromBars converts a bar series into daily close-over-close returns.
func ReturnsFromBars(bars []domain.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (bars[i].Close-prev)/prev)
	}
	return out
}

// alignTails trims both series to their common trailing length.
func alignTails(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[len(a)-n:], b[len(b)-n:]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
