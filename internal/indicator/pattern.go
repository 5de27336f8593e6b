package indicator

import (
	"math"

	"signal-enginev1/internal/model"
)

// Pin bar geometry thresholds.
const (
	pinWickBodyRatio  = 2.0 // long wick vs body
	pinOppositeRatio  = 0.5 // opposite wick vs body
	pinBodyRangeRatio = 0.3 // body vs total range
	pinWickRangeRatio = 0.5 // long wick vs total range
)

// DetectPatterns classifies the most recent 1-2 bars. Single-bar
// patterns need one bar, two-bar patterns need two; with fewer bars all
// results stay undetected.
func DetectPatterns(bars []model.Bar) model.PatternSet {
	var set model.PatternSet
	if len(bars) == 0 {
		return set
	}

	cur := bars[len(bars)-1]
	if bullishPin(cur) {
		set.BullishPin = model.PatternResult{Detected: true, Description: "bullish pin bar"}
	}
	if bearishPin(cur) {
		set.BearishPin = model.PatternResult{Detected: true, Description: "bearish pin bar"}
	}

	if len(bars) < 2 {
		return set
	}
	prev := bars[len(bars)-2]

	if bullishEngulfing(prev, cur) {
		set.BullishEngulfing = model.PatternResult{Detected: true, Description: "bullish engulfing"}
	}
	if bearishEngulfing(prev, cur) {
		set.BearishEngulfing = model.PatternResult{Detected: true, Description: "bearish engulfing"}
	}
	if cur.High <= prev.High && cur.Low >= prev.Low {
		set.InsideBar = model.PatternResult{Detected: true, Description: "inside bar"}
	}
	return set
}

// bullishEngulfing: prior bar closed down, current closed up, current
// open/close bracket the prior close/open, and the current body is
// strictly larger.
func bullishEngulfing(prev, cur model.Bar) bool {
	return prev.Close < prev.Open &&
		cur.Close > cur.Open &&
		cur.Open <= prev.Close &&
		cur.Close >= prev.Open &&
		body(cur) > body(prev)
}

func bearishEngulfing(prev, cur model.Bar) bool {
	return prev.Close > prev.Open &&
		cur.Close < cur.Open &&
		cur.Open >= prev.Close &&
		cur.Close <= prev.Open &&
		body(cur) > body(prev)
}

// bullishPin: long lower wick at least 2x the body, upper wick at most
// half the body, body under 30% of the range and the lower wick over
// half the range. Zero-range bars never qualify.
func bullishPin(b model.Bar) bool {
	rng := b.High - b.Low
	if rng <= 0 {
		return false
	}
	bd := body(b)
	lower := math.Min(b.Open, b.Close) - b.Low
	upper := b.High - math.Max(b.Open, b.Close)
	return lower >= pinWickBodyRatio*bd &&
		upper <= pinOppositeRatio*bd &&
		bd < pinBodyRangeRatio*rng &&
		lower > pinWickRangeRatio*rng
}

func bearishPin(b model.Bar) bool {
	rng := b.High - b.Low
	if rng <= 0 {
		return false
	}
	bd := body(b)
	lower := math.Min(b.Open, b.Close) - b.Low
	upper := b.High - math.Max(b.Open, b.Close)
	return upper >= pinWickBodyRatio*bd &&
		lower <= pinOppositeRatio*bd &&
		bd < pinBodyRangeRatio*rng &&
		upper > pinWickRangeRatio*rng
}

func body(b model.Bar) float64 {
	return math.Abs(b.Close - b.Open)
}
