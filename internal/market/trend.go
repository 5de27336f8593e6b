package market

import (
	"math"

	"signal-enginev1/internal/indicator"
	"signal-enginev1/internal/model"
)

// chopSpreadFraction separates choppy from transitioning markets when MA
// ordering is mixed: fast/slow spread below 0.5% of their average means
// the MAs are effectively flat on top of each other.
const chopSpreadFraction = 0.005

// structure holds the higher/lower-high/low flags over the trend window.
type structure struct {
	higherHighs bool
	higherLows  bool
	lowerHighs  bool
	lowerLows   bool
}

// structureFlags confirms 2/2 swings over the most recent lookback bars
// and compares the last two of each kind.
func structureFlags(bars []model.Bar, lookback int) structure {
	window := bars
	if len(bars) > lookback {
		window = bars[len(bars)-lookback:]
	}

	var st structure
	highs := indicator.SwingHighs(window, indicator.TrendWindow, indicator.TrendWindow)
	if n := len(highs); n >= 2 {
		st.higherHighs = highs[n-1].Price > highs[n-2].Price
		st.lowerHighs = highs[n-1].Price < highs[n-2].Price
	}
	lows := indicator.SwingLows(window, indicator.TrendWindow, indicator.TrendWindow)
	if n := len(lows); n >= 2 {
		st.higherLows = lows[n-1].Price > lows[n-2].Price
		st.lowerLows = lows[n-1].Price < lows[n-2].Price
	}
	return st
}

// classifyTrend is the trend decision table, evaluated in priority order:
//
//  1. missing fast/slow MA                          → unclear
//  2. price>fast>slow, higher highs AND higher lows → uptrend/strong
//  3. price>fast>slow, exactly one of the two       → uptrend/moderate
//  4. price>fast>slow otherwise                     → uptrend/weak
//  5. mirrored for price<fast<slow                  → downtrend
//  6. mixed ordering: spread < 0.5%                 → choppy/weak
//     else                                          → transition/weak
func classifyTrend(price float64, fast, slow *float64, st structure) model.Trend {
	trend := model.Trend{
		HigherHighs: st.higherHighs,
		HigherLows:  st.higherLows,
		LowerHighs:  st.lowerHighs,
		LowerLows:   st.lowerLows,
	}

	if fast == nil || slow == nil {
		trend.Direction = model.TrendUnclear
		trend.Strength = model.StrengthWeak
		trend.Description = "not enough data to classify trend"
		return trend
	}

	f, s := *fast, *slow
	trend.PriceAboveFast = price > f
	trend.PriceAboveSlow = price > s
	trend.FastAboveSlow = f > s

	switch {
	case price > f && f > s:
		trend.Direction = model.TrendUp
		switch {
		case st.higherHighs && st.higherLows:
			trend.Strength = model.StrengthStrong
			trend.Description = "strong uptrend: aligned MAs with higher highs and higher lows"
		case st.higherHighs != st.higherLows:
			trend.Strength = model.StrengthModerate
			trend.Description = "moderate uptrend: aligned MAs with partial swing structure"
		default:
			trend.Strength = model.StrengthWeak
			trend.Description = "weak uptrend: aligned MAs without swing confirmation"
		}
	case price < f && f < s:
		trend.Direction = model.TrendDown
		switch {
		case st.lowerHighs && st.lowerLows:
			trend.Strength = model.StrengthStrong
			trend.Description = "strong downtrend: aligned MAs with lower highs and lower lows"
		case st.lowerHighs != st.lowerLows:
			trend.Strength = model.StrengthModerate
			trend.Description = "moderate downtrend: aligned MAs with partial swing structure"
		default:
			trend.Strength = model.StrengthWeak
			trend.Description = "weak downtrend: aligned MAs without swing confirmation"
		}
	default:
		trend.Strength = model.StrengthWeak
		if spreadFraction(f, s) < chopSpreadFraction {
			trend.Direction = model.TrendChoppy
			trend.Description = "choppy: mixed MA ordering with flat spread"
		} else {
			trend.Direction = model.TrendTransition
			trend.Description = "transition: mixed MA ordering with widening spread"
		}
	}
	return trend
}

func spreadFraction(fast, slow float64) float64 {
	avg := (fast + slow) / 2
	if avg == 0 {
		return 0
	}
	return math.Abs(fast-slow) / math.Abs(avg)
}
