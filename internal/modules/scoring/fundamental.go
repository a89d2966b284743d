package scoring

import (
	"fmt"

	"github.com/aristath/hindsight/internal/domain"
)

// defaultIndustryPE stands in when no industry multiple is known.
const defaultIndustryPE = 20.0

// scoreFundamentals rates valuation, profitability, balance-sheet strength
// and growth. Each metric contributes a bounded delta; absent metrics leave
// the midpoint untouched.
func scoreFundamentals(f *domain.Fundamentals) *tally {
	t := newTally()
	if f == nil {
		return t
	}

	if f.PERatio != nil {
		pe := *f.PERatio
		if pe <= 0 {
			t.add(-6, "negative trailing earnings")
		} else {
			industry := defaultIndustryPE
			if f.IndustryPE != nil && *f.IndustryPE > 0 {
				industry = *f.IndustryPE
			}
			switch ratio := pe / industry; {
			case ratio <= 0.6:
				t.add(8, fmt.Sprintf("P/E %.1f well below industry %.1f", pe, industry))
			case ratio <= 0.9:
				t.add(4, fmt.Sprintf("P/E %.1f below industry %.1f", pe, industry))
			case ratio >= 1.8:
				t.add(-8, fmt.Sprintf("P/E %.1f far above industry %.1f", pe, industry))
			case ratio >= 1.2:
				t.add(-4, fmt.Sprintf("P/E %.1f above industry %.1f", pe, industry))
			}
		}
	}

	if f.PBRatio != nil {
		switch pb := *f.PBRatio; {
		case pb > 0 && pb < 1:
			t.add(4, fmt.Sprintf("trading below book value (P/B %.2f)", pb))
		case pb > 0 && pb < 3:
			t.add(2, fmt.Sprintf("moderate P/B %.2f", pb))
		case pb >= 10:
			t.add(-4, fmt.Sprintf("stretched P/B %.1f", pb))
		case pb >= 6:
			t.add(-2, fmt.Sprintf("rich P/B %.1f", pb))
		}
	}

	if f.NetMargin != nil {
		switch m := *f.NetMargin; {
		case m >= 0.20:
			t.add(5, fmt.Sprintf("net margin %.0f%%", m*100))
		case m >= 0.10:
			t.add(3, fmt.Sprintf("net margin %.0f%%", m*100))
		case m < 0:
			t.add(-5, "unprofitable at the net line")
		}
	}
	if f.GrossMargin != nil && *f.GrossMargin >= 0.50 {
		t.add(2, fmt.Sprintf("gross margin %.0f%%", *f.GrossMargin*100))
	}
	if f.OperatingMargin != nil {
		switch m := *f.OperatingMargin; {
		case m >= 0.20:
			t.add(2, fmt.Sprintf("operating margin %.0f%%", m*100))
		case m < 0:
			t.add(-2, "negative operating margin")
		}
	}

	if f.ROE != nil {
		switch roe := *f.ROE; {
		case roe >= 0.20:
			t.add(5, fmt.Sprintf("ROE %.0f%%", roe*100))
		case roe >= 0.10:
			t.add(3, fmt.Sprintf("ROE %.0f%%", roe*100))
		case roe < 0:
			t.add(-4, "negative return on equity")
		}
	}
	if f.ROA != nil {
		switch roa := *f.ROA; {
		case roa >= 0.10:
			t.add(3, fmt.Sprintf("ROA %.0f%%", roa*100))
		case roa >= 0.05:
			t.add(1, fmt.Sprintf("ROA %.0f%%", roa*100))
		case roa < 0:
			t.add(-2, "negative return on assets")
		}
	}

	if f.DebtToEquity != nil {
		switch de := *f.DebtToEquity; {
		case de >= 0 && de <= 0.3:
			t.add(4, fmt.Sprintf("low leverage (D/E %.2f)", de))
		case de <= 1.0:
			t.add(2, fmt.Sprintf("manageable leverage (D/E %.2f)", de))
		case de >= 2.0:
			t.add(-8, fmt.Sprintf("heavy debt load (D/E %.2f)", de))
		case de >= 1.5:
			t.add(-4, fmt.Sprintf("elevated debt (D/E %.2f)", de))
		}
	}
	if f.CurrentRatio != nil {
		switch cr := *f.CurrentRatio; {
		case cr >= 2:
			t.add(2, fmt.Sprintf("strong current ratio %.1f", cr))
		case cr >= 1.2:
			t.add(1, fmt.Sprintf("adequate current ratio %.1f", cr))
		case cr < 1:
			t.add(-3, fmt.Sprintf("current ratio %.1f under 1", cr))
		}
	}
	if f.QuickRatio != nil {
		switch qr := *f.QuickRatio; {
		case qr >= 1:
			t.add(1, fmt.Sprintf("quick ratio %.1f", qr))
		case qr < 0.7:
			t.add(-2, fmt.Sprintf("thin quick ratio %.1f", qr))
		}
	}
	if f.InterestCoverage != nil {
		switch ic := *f.InterestCoverage; {
		case ic >= 10:
			t.add(2, fmt.Sprintf("interest covered %.0fx", ic))
		case ic < 2 && ic >= 0:
			t.add(-4, fmt.Sprintf("interest coverage only %.1fx", ic))
		case ic < 0:
			t.add(-4, "negative interest coverage")
		}
	}

	if f.RevenueGrowth != nil {
		switch g := *f.RevenueGrowth; {
		case g >= 0.15:
			t.add(4, fmt.Sprintf("revenue growing %.0f%%", g*100))
		case g >= 0.05:
			t.add(2, fmt.Sprintf("revenue growing %.0f%%", g*100))
		case g < 0:
			t.add(-3, fmt.Sprintf("revenue shrinking %.0f%%", g*100))
		}
	}
	if f.EarningsGrowth != nil {
		switch g := *f.EarningsGrowth; {
		case g >= 0.15:
			t.add(4, fmt.Sprintf("earnings growing %.0f%%", g*100))
		case g >= 0.05:
			t.add(2, fmt.Sprintf("earnings growing %.0f%%", g*100))
		case g < 0:
			t.add(-3, fmt.Sprintf("earnings shrinking %.0f%%", g*100))
		}
	}

	if f.FreeCashFlow != nil {
		if *f.FreeCashFlow > 0 {
			t.add(2, "positive free cash flow")
		} else if *f.FreeCashFlow < 0 {
			t.add(-2, "burning cash")
		}
	}
	if f.PayoutRatio != nil {
		switch pr := *f.PayoutRatio; {
		case pr > 0 && pr <= 0.6:
			t.add(1, fmt.Sprintf("sustainable payout %.0f%%", pr*100))
		case pr > 1:
			t.add(-2, fmt.Sprintf("payout over earnings (%.0f%%)", pr*100))
		}
	}

	return t
}
