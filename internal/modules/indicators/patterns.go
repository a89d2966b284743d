package indicators

import (
	"math"
	"time"

	"github.com/aristath/hindsight/internal/domain"
)

// PatternHit is one detected candlestick pattern on one bar. Value is +100
// for a bullish detection and -100 for a bearish one; undetected patterns
// are not materialized. Confirmation, target and invalidation prices are
// derived from the pattern's own range (measured-move convention).
type PatternHit struct {
	Symbol            string             `json:"symbol"`
	Date              time.Time          `json:"date"`
	Name              string             `json:"name"`
	Value             int                `json:"value"`
	Reliability       domain.Reliability `json:"reliability"`
	ConfirmationPrice float64            `json:"confirmation_price"`
	TargetPrice       float64            `json:"target_price"`
	InvalidationPrice float64            `json:"invalidation_price"`
}

// trendSpan is how many bars back the trend context looks.
const trendSpan = 5

// candles is the OHLC working form the detectors operate on.
type candles struct {
	o, h, l, c []float64
}

func newCandles(bars []domain.Bar) candles {
	cs := candles{
		o: make([]float64, len(bars)),
		h: make([]float64, len(bars)),
		l: make([]float64, len(bars)),
		c: make([]float64, len(bars)),
	}
	for i, b := range bars {
		cs.o[i], cs.h[i], cs.l[i], cs.c[i] = b.Open, b.High, b.Low, b.Close
	}
	return cs
}

func (cs candles) body(i int) float64  { return math.Abs(cs.c[i] - cs.o[i]) }
func (cs candles) rng(i int) float64   { return cs.h[i] - cs.l[i] }
func (cs candles) upper(i int) float64 { return cs.h[i] - math.Max(cs.o[i], cs.c[i]) }
func (cs candles) lower(i int) float64 { return math.Min(cs.o[i], cs.c[i]) - cs.l[i] }
func (cs candles) top(i int) float64   { return math.Max(cs.o[i], cs.c[i]) }
func (cs candles) bot(i int) float64   { return math.Min(cs.o[i], cs.c[i]) }
func (cs candles) mid(i int) float64   { return (cs.o[i] + cs.c[i]) / 2 }
func (cs candles) bull(i int) bool     { return cs.c[i] > cs.o[i] }
func (cs candles) bear(i int) bool     { return cs.c[i] < cs.o[i] }

// avgBody is the mean real body over up to ten bars ending at i.
func (cs candles) avgBody(i int) float64 {
	start := i - 9
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for j := start; j <= i; j++ {
		sum += cs.body(j)
	}
	return sum / float64(i-start+1)
}

// longBody compares a bar's body against the recent average.
func (cs candles) longBody(i int) bool {
	if i == 0 {
		return cs.rng(i) > 0 && cs.body(i) > 0.6*cs.rng(i)
	}
	return cs.body(i) > 1.3*cs.avgBody(i-1)
}

func (cs candles) shortBody(i int) bool {
	if i == 0 {
		return cs.body(i) < 0.3*cs.rng(i)
	}
	return cs.body(i) < 0.5*cs.avgBody(i-1)
}

func (cs candles) doji(i int) bool {
	r := cs.rng(i)
	if r == 0 {
		return true
	}
	return cs.body(i) <= 0.1*r
}

func (cs candles) marubozu(i int) bool {
	r := cs.rng(i)
	return r > 0 && cs.body(i) >= 0.95*r
}

// near treats two prices as equal within a tenth of the bar's range.
func (cs candles) near(a, b float64, i int) bool {
	tol := 0.1 * cs.rng(i)
	if tol <= 0 {
		tol = 1e-9 * math.Max(1, math.Abs(a))
	}
	return math.Abs(a-b) <= tol
}

func (cs candles) gapBodyUp(i int) bool   { return cs.bot(i) > cs.top(i-1) }
func (cs candles) gapBodyDown(i int) bool { return cs.top(i) < cs.bot(i-1) }
func (cs candles) gapFullUp(i int) bool   { return cs.l[i] > cs.h[i-1] }
func (cs candles) gapFullDown(i int) bool { return cs.h[i] < cs.l[i-1] }

// uptrend reports whether the trendSpan bars ending at i rise.
func (cs candles) uptrend(i int) bool {
	if i < trendSpan {
		return false
	}
	return cs.c[i] > cs.c[i-trendSpan]
}

func (cs candles) downtrend(i int) bool {
	if i < trendSpan {
		return false
	}
	return cs.c[i] < cs.c[i-trendSpan]
}

// inside reports whether bar i's range sits inside bar j's range.
func (cs candles) inside(i, j int) bool {
	return cs.h[i] < cs.h[j] && cs.l[i] > cs.l[j]
}

// bodyInside reports whether bar i's body sits inside bar j's body.
func (cs candles) bodyInside(i, j int) bool {
	return cs.top(i) < cs.top(j) && cs.bot(i) > cs.bot(j)
}

type patternDef struct {
	name        string
	reliability domain.Reliability
	span        int // bars forming the pattern
	minBars     int // span plus trend context
	detect      func(cs candles, i int) int
}

// patternDefs is the full detection table. Order is fixed so detection output
// is deterministic.
var patternDefs = []patternDef{
	{"TwoCrows", domain.ReliabilityMedium, 3, 9, detectTwoCrows},
	{"ThreeBlackCrows", domain.ReliabilityHigh, 3, 9, detectThreeBlackCrows},
	{"ThreeInside", domain.ReliabilityMedium, 3, 9, detectThreeInside},
	{"ThreeLineStrike", domain.ReliabilityLow, 4, 10, detectThreeLineStrike},
	{"ThreeOutside", domain.ReliabilityMedium, 3, 9, detectThreeOutside},
	{"ThreeStarsInSouth", domain.ReliabilityLow, 3, 9, detectThreeStarsInSouth},
	{"ThreeWhiteSoldiers", domain.ReliabilityHigh, 3, 9, detectThreeWhiteSoldiers},
	{"AbandonedBaby", domain.ReliabilityHigh, 3, 9, detectAbandonedBaby},
	{"AdvanceBlock", domain.ReliabilityMedium, 3, 9, detectAdvanceBlock},
	{"BeltHold", domain.ReliabilityLow, 1, 7, detectBeltHold},
	{"Breakaway", domain.ReliabilityLow, 5, 11, detectBreakaway},
	{"ClosingMarubozu", domain.ReliabilityMedium, 1, 7, detectClosingMarubozu},
	{"ConcealingBabySwallow", domain.ReliabilityLow, 4, 10, detectConcealingBabySwallow},
	{"Counterattack", domain.ReliabilityMedium, 2, 8, detectCounterattack},
	{"DarkCloudCover", domain.ReliabilityHigh, 2, 8, detectDarkCloudCover},
	{"Doji", domain.ReliabilityLow, 1, 1, detectDoji},
	{"DojiStar", domain.ReliabilityMedium, 2, 8, detectDojiStar},
	{"DragonflyDoji", domain.ReliabilityMedium, 1, 7, detectDragonflyDoji},
	{"Engulfing", domain.ReliabilityHigh, 2, 8, detectEngulfing},
	{"EveningDojiStar", domain.ReliabilityHigh, 3, 9, detectEveningDojiStar},
	{"EveningStar", domain.ReliabilityHigh, 3, 9, detectEveningStar},
	{"GapSideBySideWhite", domain.ReliabilityLow, 3, 9, detectGapSideBySideWhite},
	{"GravestoneDoji", domain.ReliabilityMedium, 1, 7, detectGravestoneDoji},
	{"Hammer", domain.ReliabilityHigh, 1, 7, detectHammer},
	{"HangingMan", domain.ReliabilityMedium, 1, 7, detectHangingMan},
	{"Harami", domain.ReliabilityMedium, 2, 8, detectHarami},
	{"HaramiCross", domain.ReliabilityMedium, 2, 8, detectHaramiCross},
	{"HighWave", domain.ReliabilityLow, 1, 7, detectHighWave},
	{"Hikkake", domain.ReliabilityLow, 3, 9, detectHikkake},
	{"HikkakeModified", domain.ReliabilityLow, 4, 10, detectHikkakeModified},
	{"HomingPigeon", domain.ReliabilityMedium, 2, 8, detectHomingPigeon},
	{"IdenticalThreeCrows", domain.ReliabilityMedium, 3, 9, detectIdenticalThreeCrows},
	{"InNeck", domain.ReliabilityLow, 2, 8, detectInNeck},
	{"InvertedHammer", domain.ReliabilityMedium, 1, 7, detectInvertedHammer},
	{"Kicking", domain.ReliabilityHigh, 2, 8, detectKicking},
	{"KickingByLength", domain.ReliabilityMedium, 2, 8, detectKickingByLength},
	{"LadderBottom", domain.ReliabilityMedium, 5, 11, detectLadderBottom},
	{"LongLeggedDoji", domain.ReliabilityLow, 1, 7, detectLongLeggedDoji},
	{"LongLine", domain.ReliabilityLow, 1, 7, detectLongLine},
	{"Marubozu", domain.ReliabilityMedium, 1, 7, detectMarubozu},
	{"MatchingLow", domain.ReliabilityMedium, 2, 8, detectMatchingLow},
	{"MatHold", domain.ReliabilityMedium, 5, 11, detectMatHold},
	{"MorningDojiStar", domain.ReliabilityHigh, 3, 9, detectMorningDojiStar},
	{"MorningStar", domain.ReliabilityHigh, 3, 9, detectMorningStar},
	{"OnNeck", domain.ReliabilityLow, 2, 8, detectOnNeck},
	{"Piercing", domain.ReliabilityHigh, 2, 8, detectPiercing},
	{"RickshawMan", domain.ReliabilityLow, 1, 7, detectRickshawMan},
	{"RisingFallingThreeMethods", domain.ReliabilityMedium, 5, 11, detectRisingFallingThreeMethods},
	{"SeparatingLines", domain.ReliabilityLow, 2, 8, detectSeparatingLines},
	{"ShootingStar", domain.ReliabilityHigh, 1, 7, detectShootingStar},
	{"ShortLine", domain.ReliabilityLow, 1, 7, detectShortLine},
	{"SpinningTop", domain.ReliabilityLow, 1, 7, detectSpinningTop},
	{"StalledPattern", domain.ReliabilityMedium, 3, 9, detectStalledPattern},
	{"StickSandwich", domain.ReliabilityMedium, 3, 9, detectStickSandwich},
	{"Takuri", domain.ReliabilityMedium, 1, 7, detectTakuri},
	{"TasukiGap", domain.ReliabilityLow, 3, 9, detectTasukiGap},
	{"Thrusting", domain.ReliabilityLow, 2, 8, detectThrusting},
	{"Tristar", domain.ReliabilityMedium, 3, 9, detectTristar},
	{"TweezerBottom", domain.ReliabilityMedium, 2, 8, detectTweezerBottom},
	{"TweezerTop", domain.ReliabilityMedium, 2, 8, detectTweezerTop},
	{"UniqueThreeRiver", domain.ReliabilityLow, 3, 9, detectUniqueThreeRiver},
	{"UpsideGapTwoCrows", domain.ReliabilityMedium, 3, 9, detectUpsideGapTwoCrows},
	{"UpDownGapThreeMethods", domain.ReliabilityLow, 3, 9, detectUpDownGapThreeMethods},
}

// PatternNames lists every known pattern in detection order.
func PatternNames() []string {
	names := make([]string, len(patternDefs))
	for i, def := range patternDefs {
		names[i] = def.name
	}
	return names
}

// PatternReliability returns the static reliability tier for a pattern name.
func PatternReliability(name string) (domain.Reliability, bool) {
	for _, def := range patternDefs {
		if def.name == name {
			return def.reliability, true
		}
	}
	return "", false
}

// DetectPatterns evaluates every pattern on every bar from index `from`
// onward and returns the non-zero hits in (bar, table) order.
func DetectPatterns(symbol string, bars []domain.Bar, from int) []PatternHit {
	cs := newCandles(bars)
	if from < 0 {
		from = 0
	}

	var hits []PatternHit
	for i := from; i < len(bars); i++ {
		for _, def := range patternDefs {
			if i+1 < def.minBars {
				continue
			}
			value := def.detect(cs, i)
			if value == 0 {
				continue
			}
			hits = append(hits, makeHit(symbol, bars, cs, def, i, value))
		}
	}
	return hits
}

// makeHit derives the confirmation/target/invalidation levels from the
// pattern's own range.
func makeHit(symbol string, bars []domain.Bar, cs candles, def patternDef, i, value int) PatternHit {
	first := i - def.span + 1
	high, low := cs.h[i], cs.l[i]
	for j := first; j < i; j++ {
		high = math.Max(high, cs.h[j])
		low = math.Min(low, cs.l[j])
	}
	height := high - low

	hit := PatternHit{
		Symbol:      symbol,
		Date:        domain.Day(bars[i].Date),
		Name:        def.name,
		Value:       value,
		Reliability: def.reliability,
	}
	if value > 0 {
		hit.ConfirmationPrice = cs.h[i]
		hit.TargetPrice = cs.h[i] + height
		hit.InvalidationPrice = low
	} else {
		hit.ConfirmationPrice = cs.l[i]
		hit.TargetPrice = cs.l[i] - height
		hit.InvalidationPrice = high
	}
	return hit
}

func detectTwoCrows(cs candles, i int) int {
	if !cs.uptrend(i-2) || !cs.bull(i-2) || !cs.longBody(i-2) {
		return 0
	}
	if !cs.bear(i-1) || !cs.gapBodyUp(i-1) {
		return 0
	}
	if cs.bear(i) && cs.o[i] > cs.c[i-1] && cs.o[i] < cs.o[i-1] &&
		cs.c[i] < cs.top(i-2) && cs.c[i] > cs.o[i-2] {
		return -100
	}
	return 0
}

func detectThreeBlackCrows(cs candles, i int) int {
	if !cs.uptrend(i - 3) {
		return 0
	}
	for j := i - 2; j <= i; j++ {
		if !cs.bear(j) || !cs.longBody(j) || cs.lower(j) > 0.3*cs.body(j) {
			return 0
		}
	}
	if cs.c[i-1] >= cs.c[i-2] || cs.c[i] >= cs.c[i-1] {
		return 0
	}
	// Each crow opens within the prior body.
	if cs.o[i-1] < cs.c[i-2] || cs.o[i-1] > cs.o[i-2] ||
		cs.o[i] < cs.c[i-1] || cs.o[i] > cs.o[i-1] {
		return 0
	}
	return -100
}

func detectThreeInside(cs candles, i int) int {
	if !cs.longBody(i-2) || !cs.bodyInside(i-1, i-2) {
		return 0
	}
	if cs.bear(i-2) && cs.bull(i-1) && cs.bull(i) && cs.c[i] > cs.o[i-2] {
		return 100
	}
	if cs.bull(i-2) && cs.bear(i-1) && cs.bear(i) && cs.c[i] < cs.o[i-2] {
		return -100
	}
	return 0
}

func detectThreeLineStrike(cs candles, i int) int {
	// Three advancing candles of one color, struck by an engulfing opposite
	// candle; read as continuation in the original direction.
	threeBull := cs.bull(i-3) && cs.bull(i-2) && cs.bull(i-1) &&
		cs.c[i-2] > cs.c[i-3] && cs.c[i-1] > cs.c[i-2]
	threeBear := cs.bear(i-3) && cs.bear(i-2) && cs.bear(i-1) &&
		cs.c[i-2] < cs.c[i-3] && cs.c[i-1] < cs.c[i-2]

	if threeBull && cs.bear(i) && cs.o[i] >= cs.c[i-1] && cs.c[i] < cs.o[i-3] {
		return 100
	}
	if threeBear && cs.bull(i) && cs.o[i] <= cs.c[i-1] && cs.c[i] > cs.o[i-3] {
		return -100
	}
	return 0
}

func detectThreeOutside(cs candles, i int) int {
	engulf := detectEngulfing(cs, i-1)
	if engulf > 0 && cs.c[i] > cs.c[i-1] {
		return 100
	}
	if engulf < 0 && cs.c[i] < cs.c[i-1] {
		return -100
	}
	return 0
}

func detectThreeStarsInSouth(cs candles, i int) int {
	if !cs.downtrend(i-2) || !cs.bear(i-2) || !cs.longBody(i-2) || cs.lower(i-2) < cs.body(i-2)*0.5 {
		return 0
	}
	if !cs.bear(i-1) || cs.body(i-1) >= cs.body(i-2) || cs.l[i-1] <= cs.l[i-2] || cs.o[i-1] >= cs.h[i-2] {
		return 0
	}
	if cs.bear(i) && cs.body(i) < cs.body(i-1) && cs.inside(i, i-1) {
		return 100
	}
	return 0
}

func detectThreeWhiteSoldiers(cs candles, i int) int {
	if !cs.downtrend(i - 3) {
		return 0
	}
	for j := i - 2; j <= i; j++ {
		if !cs.bull(j) || !cs.longBody(j) || cs.upper(j) > 0.3*cs.body(j) {
			return 0
		}
	}
	if cs.c[i-1] <= cs.c[i-2] || cs.c[i] <= cs.c[i-1] {
		return 0
	}
	if cs.o[i-1] < cs.o[i-2] || cs.o[i-1] > cs.c[i-2] ||
		cs.o[i] < cs.o[i-1] || cs.o[i] > cs.c[i-1] {
		return 0
	}
	return 100
}

func detectAbandonedBaby(cs candles, i int) int {
	if !cs.doji(i - 1) {
		return 0
	}
	if cs.downtrend(i-2) && cs.bear(i-2) && cs.longBody(i-2) &&
		cs.gapFullDown(i-1) && cs.bull(i) && cs.l[i] > cs.h[i-1] {
		return 100
	}
	if cs.uptrend(i-2) && cs.bull(i-2) && cs.longBody(i-2) &&
		cs.gapFullUp(i-1) && cs.bear(i) && cs.h[i] < cs.l[i-1] {
		return -100
	}
	return 0
}

func detectAdvanceBlock(cs candles, i int) int {
	if !cs.uptrend(i-2) || !cs.bull(i-2) || !cs.bull(i-1) || !cs.bull(i) {
		return 0
	}
	if cs.c[i-1] <= cs.c[i-2] || cs.c[i] <= cs.c[i-1] {
		return 0
	}
	// Shrinking bodies with growing upper shadows signal exhaustion.
	if cs.body(i-1) < cs.body(i-2) && cs.body(i) < cs.body(i-1) &&
		cs.upper(i) > cs.upper(i-2) && cs.upper(i) > 0.3*cs.body(i) {
		return -100
	}
	return 0
}

func detectBeltHold(cs candles, i int) int {
	if !cs.longBody(i) {
		return 0
	}
	if cs.downtrend(i-1) && cs.bull(i) && cs.lower(i) <= 0.05*cs.rng(i) {
		return 100
	}
	if cs.uptrend(i-1) && cs.bear(i) && cs.upper(i) <= 0.05*cs.rng(i) {
		return -100
	}
	return 0
}

func detectBreakaway(cs candles, i int) int {
	if cs.downtrend(i-4) && cs.bear(i-4) && cs.longBody(i-4) &&
		cs.bear(i-3) && cs.gapBodyDown(i-3) &&
		cs.c[i-2] < cs.c[i-3] && cs.bear(i-1) && cs.c[i-1] < cs.c[i-2] &&
		cs.bull(i) && cs.longBody(i) &&
		cs.c[i] > cs.bot(i-3) && cs.c[i] < cs.top(i-4) {
		return 100
	}
	if cs.uptrend(i-4) && cs.bull(i-4) && cs.longBody(i-4) &&
		cs.bull(i-3) && cs.gapBodyUp(i-3) &&
		cs.c[i-2] > cs.c[i-3] && cs.bull(i-1) && cs.c[i-1] > cs.c[i-2] &&
		cs.bear(i) && cs.longBody(i) &&
		cs.c[i] < cs.top(i-3) && cs.c[i] > cs.bot(i-4) {
		return -100
	}
	return 0
}

func detectClosingMarubozu(cs candles, i int) int {
	if !cs.longBody(i) {
		return 0
	}
	if cs.bull(i) && cs.upper(i) <= 0.05*cs.rng(i) {
		return 100
	}
	if cs.bear(i) && cs.lower(i) <= 0.05*cs.rng(i) {
		return -100
	}
	return 0
}

func detectConcealingBabySwallow(cs candles, i int) int {
	if !cs.downtrend(i-3) || !cs.marubozu(i-3) || !cs.bear(i-3) ||
		!cs.marubozu(i-2) || !cs.bear(i-2) || cs.c[i-2] >= cs.c[i-3] {
		return 0
	}
	if !cs.bear(i-1) || !cs.gapBodyDown(i-1) || cs.upper(i-1) <= 0.2*cs.body(i-1) ||
		cs.h[i-1] <= cs.c[i-2] {
		return 0
	}
	if cs.bear(i) && cs.o[i] >= cs.h[i-1] && cs.c[i] <= cs.l[i-1] {
		return 100
	}
	return 0
}

func detectCounterattack(cs candles, i int) int {
	if !cs.longBody(i-1) || !cs.longBody(i) || !cs.near(cs.c[i], cs.c[i-1], i) {
		return 0
	}
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.bull(i) {
		return 100
	}
	if cs.uptrend(i-1) && cs.bull(i-1) && cs.bear(i) {
		return -100
	}
	return 0
}

func detectDarkCloudCover(cs candles, i int) int {
	if cs.uptrend(i-1) && cs.bull(i-1) && cs.longBody(i-1) &&
		cs.bear(i) && cs.o[i] > cs.h[i-1] &&
		cs.c[i] < cs.mid(i-1) && cs.c[i] > cs.o[i-1] {
		return -100
	}
	return 0
}

func detectDoji(cs candles, i int) int {
	if cs.doji(i) {
		return 100
	}
	return 0
}

func detectDojiStar(cs candles, i int) int {
	if !cs.doji(i) || cs.doji(i-1) || !cs.longBody(i-1) {
		return 0
	}
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.gapBodyDown(i) {
		return 100
	}
	if cs.uptrend(i-1) && cs.bull(i-1) && cs.gapBodyUp(i) {
		return -100
	}
	return 0
}

func detectDragonflyDoji(cs candles, i int) int {
	r := cs.rng(i)
	if r > 0 && cs.doji(i) && cs.lower(i) >= 0.6*r && cs.upper(i) <= 0.1*r {
		return 100
	}
	return 0
}

func detectEngulfing(cs candles, i int) int {
	if cs.bear(i-1) && cs.bull(i) &&
		cs.o[i] <= cs.c[i-1] && cs.c[i] >= cs.o[i-1] &&
		cs.body(i) > cs.body(i-1) {
		return 100
	}
	if cs.bull(i-1) && cs.bear(i) &&
		cs.o[i] >= cs.c[i-1] && cs.c[i] <= cs.o[i-1] &&
		cs.body(i) > cs.body(i-1) {
		return -100
	}
	return 0
}

func detectEveningDojiStar(cs candles, i int) int {
	if cs.uptrend(i-2) && cs.bull(i-2) && cs.longBody(i-2) &&
		cs.doji(i-1) && cs.gapBodyUp(i-1) &&
		cs.bear(i) && cs.c[i] < cs.mid(i-2) {
		return -100
	}
	return 0
}

func detectEveningStar(cs candles, i int) int {
	if cs.doji(i - 1) {
		return 0
	}
	if cs.uptrend(i-2) && cs.bull(i-2) && cs.longBody(i-2) &&
		cs.shortBody(i-1) && cs.gapBodyUp(i-1) &&
		cs.bear(i) && cs.longBody(i) && cs.c[i] < cs.mid(i-2) {
		return -100
	}
	return 0
}

func detectGapSideBySideWhite(cs candles, i int) int {
	if !cs.bull(i-1) || !cs.bull(i) ||
		!cs.near(cs.o[i], cs.o[i-1], i) || !sameScale(cs.body(i), cs.body(i-1)) {
		return 0
	}
	if cs.bot(i-1) > cs.top(i-2) && cs.bot(i) > cs.top(i-2) {
		return 100
	}
	if cs.top(i-1) < cs.bot(i-2) && cs.top(i) < cs.bot(i-2) {
		return -100
	}
	return 0
}

// sameScale reports whether two bodies are within 50% of each other.
func sameScale(a, b float64) bool {
	if a == 0 || b == 0 {
		return a == b
	}
	ratio := a / b
	return ratio > 0.5 && ratio < 2.0
}

func detectGravestoneDoji(cs candles, i int) int {
	r := cs.rng(i)
	if r > 0 && cs.doji(i) && cs.upper(i) >= 0.6*r && cs.lower(i) <= 0.1*r {
		return -100
	}
	return 0
}

func detectHammer(cs candles, i int) int {
	if cs.downtrend(i-1) &&
		cs.lower(i) >= 2*cs.body(i) && cs.body(i) > 0 &&
		cs.upper(i) <= 0.1*cs.rng(i) {
		return 100
	}
	return 0
}

func detectHangingMan(cs candles, i int) int {
	if cs.uptrend(i-1) &&
		cs.lower(i) >= 2*cs.body(i) && cs.body(i) > 0 &&
		cs.upper(i) <= 0.1*cs.rng(i) {
		return -100
	}
	return 0
}

func detectHarami(cs candles, i int) int {
	if !cs.longBody(i-1) || !cs.bodyInside(i, i-1) || cs.doji(i) {
		return 0
	}
	if cs.downtrend(i-1) && cs.bear(i-1) {
		return 100
	}
	if cs.uptrend(i-1) && cs.bull(i-1) {
		return -100
	}
	return 0
}

func detectHaramiCross(cs candles, i int) int {
	if !cs.longBody(i-1) || !cs.bodyInside(i, i-1) || !cs.doji(i) {
		return 0
	}
	if cs.downtrend(i-1) && cs.bear(i-1) {
		return 100
	}
	if cs.uptrend(i-1) && cs.bull(i-1) {
		return -100
	}
	return 0
}

func detectHighWave(cs candles, i int) int {
	r := cs.rng(i)
	if r == 0 || cs.doji(i) {
		return 0
	}
	if cs.body(i) < 0.2*r && cs.upper(i) > cs.body(i) && cs.lower(i) > cs.body(i) {
		if cs.bull(i) {
			return 100
		}
		return -100
	}
	return 0
}

func detectHikkake(cs candles, i int) int {
	// False breakout of an inside bar; the expected move is contrarian.
	if !cs.inside(i-1, i-2) {
		return 0
	}
	if cs.c[i] < cs.l[i-1] {
		return 100
	}
	if cs.c[i] > cs.h[i-1] {
		return -100
	}
	return 0
}

func detectHikkakeModified(cs candles, i int) int {
	if !cs.inside(i-2, i-3) {
		return 0
	}
	// The context bar closes inside the pattern before the break.
	if cs.c[i-1] > cs.l[i-2] && cs.c[i-1] < cs.h[i-2] {
		if cs.c[i] < cs.l[i-2] {
			return 100
		}
		if cs.c[i] > cs.h[i-2] {
			return -100
		}
	}
	return 0
}

func detectHomingPigeon(cs candles, i int) int {
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.longBody(i-1) &&
		cs.bear(i) && cs.bodyInside(i, i-1) {
		return 100
	}
	return 0
}

func detectIdenticalThreeCrows(cs candles, i int) int {
	if !cs.uptrend(i - 3) {
		return 0
	}
	for j := i - 2; j <= i; j++ {
		if !cs.bear(j) || !cs.longBody(j) {
			return 0
		}
	}
	if cs.near(cs.o[i-1], cs.c[i-2], i-1) && cs.near(cs.o[i], cs.c[i-1], i) &&
		cs.c[i-1] < cs.c[i-2] && cs.c[i] < cs.c[i-1] {
		return -100
	}
	return 0
}

func detectInNeck(cs candles, i int) int {
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.longBody(i-1) &&
		cs.bull(i) && cs.o[i] < cs.l[i-1] &&
		cs.c[i] >= cs.c[i-1] && cs.c[i] <= cs.c[i-1]+0.1*cs.body(i-1) {
		return -100
	}
	return 0
}

func detectInvertedHammer(cs candles, i int) int {
	if cs.downtrend(i-1) &&
		cs.upper(i) >= 2*cs.body(i) && cs.body(i) > 0 &&
		cs.lower(i) <= 0.1*cs.rng(i) {
		return 100
	}
	return 0
}

func detectKicking(cs candles, i int) int {
	if !cs.marubozu(i-1) || !cs.marubozu(i) {
		return 0
	}
	if cs.bear(i-1) && cs.bull(i) && cs.gapFullUp(i) {
		return 100
	}
	if cs.bull(i-1) && cs.bear(i) && cs.gapFullDown(i) {
		return -100
	}
	return 0
}

func detectKickingByLength(cs candles, i int) int {
	base := detectKicking(cs, i)
	if base == 0 {
		return 0
	}
	// Direction follows the longer marubozu.
	if cs.body(i) >= cs.body(i-1) {
		return base
	}
	return -base
}

func detectLadderBottom(cs candles, i int) int {
	if !cs.downtrend(i - 4) {
		return 0
	}
	for j := i - 4; j <= i-2; j++ {
		if !cs.bear(j) || !cs.longBody(j) {
			return 0
		}
	}
	if cs.c[i-3] >= cs.c[i-4] || cs.c[i-2] >= cs.c[i-3] {
		return 0
	}
	if cs.bear(i-1) && cs.upper(i-1) > 0.3*cs.body(i-1) &&
		cs.bull(i) && cs.o[i] > cs.top(i-1) {
		return 100
	}
	return 0
}

func detectLongLeggedDoji(cs candles, i int) int {
	r := cs.rng(i)
	if r > 0 && cs.doji(i) && cs.upper(i) >= 0.3*r && cs.lower(i) >= 0.3*r {
		return 100
	}
	return 0
}

func detectLongLine(cs candles, i int) int {
	if !cs.longBody(i) || cs.marubozu(i) {
		return 0
	}
	if cs.bull(i) {
		return 100
	}
	return -100
}

func detectMarubozu(cs candles, i int) int {
	if !cs.marubozu(i) || !cs.longBody(i) {
		return 0
	}
	if cs.bull(i) {
		return 100
	}
	return -100
}

func detectMatchingLow(cs candles, i int) int {
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.bear(i) &&
		cs.near(cs.c[i], cs.c[i-1], i) {
		return 100
	}
	return 0
}

func detectMatHold(cs candles, i int) int {
	if !cs.uptrend(i-4) || !cs.bull(i-4) || !cs.longBody(i-4) {
		return 0
	}
	if !cs.bear(i-3) || !cs.gapBodyUp(i-3) {
		return 0
	}
	// Two small bars drifting down but holding above the first candle's open.
	for j := i - 2; j <= i-1; j++ {
		if cs.longBody(j) || cs.bot(j) < cs.o[i-4] {
			return 0
		}
	}
	if cs.bull(i) && cs.longBody(i) && cs.c[i] > cs.h[i-3] {
		return 100
	}
	return 0
}

func detectMorningDojiStar(cs candles, i int) int {
	if cs.downtrend(i-2) && cs.bear(i-2) && cs.longBody(i-2) &&
		cs.doji(i-1) && cs.gapBodyDown(i-1) &&
		cs.bull(i) && cs.c[i] > cs.mid(i-2) {
		return 100
	}
	return 0
}

func detectMorningStar(cs candles, i int) int {
	if cs.doji(i - 1) {
		return 0
	}
	if cs.downtrend(i-2) && cs.bear(i-2) && cs.longBody(i-2) &&
		cs.shortBody(i-1) && cs.gapBodyDown(i-1) &&
		cs.bull(i) && cs.longBody(i) && cs.c[i] > cs.mid(i-2) {
		return 100
	}
	return 0
}

func detectOnNeck(cs candles, i int) int {
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.longBody(i-1) &&
		cs.bull(i) && cs.o[i] < cs.l[i-1] && cs.near(cs.c[i], cs.l[i-1], i) {
		return -100
	}
	return 0
}

func detectPiercing(cs candles, i int) int {
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.longBody(i-1) &&
		cs.bull(i) && cs.o[i] < cs.l[i-1] &&
		cs.c[i] > cs.mid(i-1) && cs.c[i] < cs.o[i-1] {
		return 100
	}
	return 0
}

func detectRickshawMan(cs candles, i int) int {
	r := cs.rng(i)
	if r == 0 || !cs.doji(i) {
		return 0
	}
	if cs.upper(i) < 0.3*r || cs.lower(i) < 0.3*r {
		return 0
	}
	// The body sits near the middle of the range.
	center := cs.l[i] + r/2
	if math.Abs(cs.mid(i)-center) <= 0.1*r {
		return 100
	}
	return 0
}

func detectRisingFallingThreeMethods(cs candles, i int) int {
	if cs.bull(i-4) && cs.longBody(i-4) {
		inRange := true
		for j := i - 3; j <= i-1; j++ {
			if cs.bull(j) || cs.h[j] > cs.h[i-4] || cs.l[j] < cs.l[i-4] {
				inRange = false
				break
			}
		}
		if inRange && cs.bull(i) && cs.longBody(i) && cs.c[i] > cs.c[i-4] {
			return 100
		}
	}
	if cs.bear(i-4) && cs.longBody(i-4) {
		inRange := true
		for j := i - 3; j <= i-1; j++ {
			if cs.bear(j) || cs.h[j] > cs.h[i-4] || cs.l[j] < cs.l[i-4] {
				inRange = false
				break
			}
		}
		if inRange && cs.bear(i) && cs.longBody(i) && cs.c[i] < cs.c[i-4] {
			return -100
		}
	}
	return 0
}

func detectSeparatingLines(cs candles, i int) int {
	if !cs.near(cs.o[i], cs.o[i-1], i) || !cs.longBody(i) {
		return 0
	}
	if cs.uptrend(i-1) && cs.bear(i-1) && cs.bull(i) {
		return 100
	}
	if cs.downtrend(i-1) && cs.bull(i-1) && cs.bear(i) {
		return -100
	}
	return 0
}

func detectShootingStar(cs candles, i int) int {
	if cs.uptrend(i-1) &&
		cs.upper(i) >= 2*cs.body(i) && cs.body(i) > 0 &&
		cs.lower(i) <= 0.1*cs.rng(i) &&
		cs.bot(i) > cs.top(i-1) {
		return -100
	}
	return 0
}

func detectShortLine(cs candles, i int) int {
	r := cs.rng(i)
	if r == 0 || cs.doji(i) || !cs.shortBody(i) {
		return 0
	}
	if cs.upper(i) > 0.25*r || cs.lower(i) > 0.25*r {
		return 0
	}
	if cs.bull(i) {
		return 100
	}
	return -100
}

func detectSpinningTop(cs candles, i int) int {
	if cs.doji(i) || cs.body(i) == 0 {
		return 0
	}
	if cs.upper(i) > cs.body(i) && cs.lower(i) > cs.body(i) &&
		cs.body(i) < 0.4*cs.rng(i) {
		if cs.bull(i) {
			return 100
		}
		return -100
	}
	return 0
}

func detectStalledPattern(cs candles, i int) int {
	if cs.uptrend(i-2) && cs.bull(i-2) && cs.longBody(i-2) &&
		cs.bull(i-1) && cs.longBody(i-1) && cs.c[i-1] > cs.c[i-2] &&
		cs.bull(i) && cs.shortBody(i) && cs.o[i] >= cs.mid(i-1) {
		return -100
	}
	return 0
}

func detectStickSandwich(cs candles, i int) int {
	if cs.bear(i-2) && cs.bull(i-1) && cs.bear(i) &&
		cs.l[i-1] > cs.c[i-2] && cs.near(cs.c[i], cs.c[i-2], i) {
		return 100
	}
	return 0
}

func detectTakuri(cs candles, i int) int {
	r := cs.rng(i)
	if cs.downtrend(i-1) && r > 0 && cs.doji(i) &&
		cs.lower(i) >= 3*cs.body(i) && cs.lower(i) >= 0.7*r &&
		cs.upper(i) <= 0.05*r {
		return 100
	}
	return 0
}

func detectTasukiGap(cs candles, i int) int {
	if cs.bull(i-2) && cs.bull(i-1) && cs.gapBodyUp(i-1) &&
		cs.bear(i) && cs.o[i] > cs.bot(i-1) && cs.o[i] < cs.top(i-1) &&
		cs.c[i] < cs.bot(i-1) && cs.c[i] > cs.top(i-2) {
		return 100
	}
	if cs.bear(i-2) && cs.bear(i-1) && cs.gapBodyDown(i-1) &&
		cs.bull(i) && cs.o[i] > cs.bot(i-1) && cs.o[i] < cs.top(i-1) &&
		cs.c[i] > cs.top(i-1) && cs.c[i] < cs.bot(i-2) {
		return -100
	}
	return 0
}

func detectThrusting(cs candles, i int) int {
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.longBody(i-1) &&
		cs.bull(i) && cs.o[i] < cs.l[i-1] &&
		cs.c[i] > cs.c[i-1]+0.1*cs.body(i-1) && cs.c[i] < cs.mid(i-1) {
		return -100
	}
	return 0
}

func detectTristar(cs candles, i int) int {
	if !cs.doji(i-2) || !cs.doji(i-1) || !cs.doji(i) {
		return 0
	}
	if cs.downtrend(i-2) && cs.gapBodyDown(i-1) && cs.top(i) < cs.top(i-1) {
		return 100
	}
	if cs.uptrend(i-2) && cs.gapBodyUp(i-1) && cs.bot(i) > cs.bot(i-1) {
		return -100
	}
	return 0
}

func detectTweezerBottom(cs candles, i int) int {
	if cs.downtrend(i-1) && cs.bear(i-1) && cs.bull(i) &&
		cs.near(cs.l[i], cs.l[i-1], i) {
		return 100
	}
	return 0
}

func detectTweezerTop(cs candles, i int) int {
	if cs.uptrend(i-1) && cs.bull(i-1) && cs.bear(i) &&
		cs.near(cs.h[i], cs.h[i-1], i) {
		return -100
	}
	return 0
}

func detectUniqueThreeRiver(cs candles, i int) int {
	if cs.downtrend(i-2) && cs.bear(i-2) && cs.longBody(i-2) &&
		cs.bear(i-1) && cs.bodyInside(i-1, i-2) && cs.l[i-1] < cs.l[i-2] &&
		cs.bull(i) && cs.shortBody(i) && cs.c[i] < cs.c[i-1] {
		return 100
	}
	return 0
}

func detectUpsideGapTwoCrows(cs candles, i int) int {
	if cs.uptrend(i-2) && cs.bull(i-2) && cs.longBody(i-2) &&
		cs.bear(i-1) && cs.gapBodyUp(i-1) &&
		cs.bear(i) && cs.o[i] > cs.o[i-1] && cs.c[i] < cs.c[i-1] &&
		cs.c[i] > cs.c[i-2] {
		return -100
	}
	return 0
}

func detectUpDownGapThreeMethods(cs candles, i int) int {
	if cs.bull(i-2) && cs.bull(i-1) && cs.gapBodyUp(i-1) &&
		cs.bear(i) && cs.o[i] > cs.bot(i-1) &&
		cs.c[i] < cs.top(i-2) && cs.c[i] > cs.bot(i-2) {
		return 100
	}
	if cs.bear(i-2) && cs.bear(i-1) && cs.gapBodyDown(i-1) &&
		cs.bull(i) && cs.o[i] < cs.top(i-1) &&
		cs.c[i] > cs.bot(i-2) && cs.c[i] < cs.top(i-2) {
		return -100
	}
	return 0
}
