// Package candidate scores a MarketState snapshot against a set of
// independent heuristics and decides whether the state is worth handing
// to the decision collaborator.
//
// Each heuristic that triggers contributes a structured Hit record; the
// rendered reason string is only assembled at the boundary, so tests can
// assert on individual heuristics instead of string-matching the joined
// text.
package candidate

import (
	"fmt"
	"math"
	"strings"

	"signal-enginev1/internal/model"
)

// Heuristic IDs. The rendered text per hit is fixed wording and part of
// the compatibility surface.
const (
	HitTrendEngulfing  = "trend_engulfing"
	HitPinAtLevel      = "pin_at_level"
	HitPullback        = "pullback"
	HitMomentumExtreme = "momentum_extreme"
	HitReversalAtLevel = "reversal_at_level"
)

// Hit is one triggered heuristic.
type Hit struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Result is the filter verdict for one snapshot. Reason is the " + "
// join of all hit texts; RejectReason explains a false verdict caused by
// a failed precondition (empty when simply no heuristic triggered).
type Result struct {
	IsCandidate  bool   `json:"is_candidate"`
	Hits         []Hit  `json:"hits"`
	Reason       string `json:"reason"`
	RejectReason string `json:"reject_reason,omitempty"`
}

// Config tunes the filter's preconditions and heuristic thresholds.
type Config struct {
	MinBars int

	// Volatility floor scaling: floor is VolFloorAbs for prices below
	// VolFloorPriceCut, else price*VolFloorFraction.
	VolFloorAbs      float64
	VolFloorPriceCut float64
	VolFloorFraction float64

	PullbackMATolerance    float64 // min close vs fast MA, fraction
	PullbackSwingTolerance float64 // min close vs last swing, fraction

	RSIOversold   float64
	RSIOverbought float64

	StrongLevelTouches int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinBars:                50,
		VolFloorAbs:            0.0001,
		VolFloorPriceCut:       10,
		VolFloorFraction:       0.0001,
		PullbackMATolerance:    0.005,
		PullbackSwingTolerance: 0.01,
		RSIOversold:            30,
		RSIOverbought:          70,
		StrongLevelTouches:     2,
	}
}

// Evaluate runs the preconditions and, if they pass, every independent
// heuristic. Heuristics never short-circuit each other: all triggered
// hits are collected. The momentum-extreme heuristic only runs in
// relaxed mode.
func Evaluate(state *model.MarketState, mode model.Mode, cfg Config) Result {
	if reject := precondition(state, cfg); reject != "" {
		return Result{RejectReason: reject}
	}

	var hits []Hit
	if h := trendEngulfing(state); h != nil {
		hits = append(hits, *h)
	}
	if h := pinAtLevel(state); h != nil {
		hits = append(hits, *h)
	}
	if h := pullback(state, cfg); h != nil {
		hits = append(hits, *h)
	}
	if mode == model.ModeRelaxed {
		if h := momentumExtreme(state, cfg); h != nil {
			hits = append(hits, *h)
		}
	}
	if h := reversalAtLevel(state, cfg); h != nil {
		hits = append(hits, *h)
	}

	if len(hits) == 0 {
		return Result{}
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return Result{
		IsCandidate: true,
		Hits:        hits,
		Reason:      strings.Join(texts, " + "),
	}
}

// precondition returns a non-empty rejection reason when the snapshot is
// not evaluable: too few bars, missing indicators, volatility below the
// price-scaled floor, or a choppy trend.
func precondition(state *model.MarketState, cfg Config) string {
	if state.BarCount < cfg.MinBars {
		return fmt.Sprintf("insufficient bars (%d < %d)", state.BarCount, cfg.MinBars)
	}
	if state.Volatility == nil || state.FastMA == nil || state.SlowMA == nil {
		return "missing indicator inputs"
	}
	floor := cfg.VolFloorAbs
	if state.CurrentPrice >= cfg.VolFloorPriceCut {
		floor = state.CurrentPrice * cfg.VolFloorFraction
	}
	if *state.Volatility < floor {
		return fmt.Sprintf("volatility %.6f below floor %.6f", *state.Volatility, floor)
	}
	if state.Trend.Direction == model.TrendChoppy {
		return "choppy trend"
	}
	return ""
}

// trendEngulfing: an engulfing bar closing with the trend while price
// holds the right side of the fast MA.
func trendEngulfing(state *model.MarketState) *Hit {
	switch {
	case state.Patterns.BullishEngulfing.Detected &&
		state.Trend.Direction == model.TrendUp &&
		state.Trend.PriceAboveFast:
		return &Hit{ID: HitTrendEngulfing, Text: "bullish engulfing in uptrend"}
	case state.Patterns.BearishEngulfing.Detected &&
		state.Trend.Direction == model.TrendDown &&
		!state.Trend.PriceAboveFast:
		return &Hit{ID: HitTrendEngulfing, Text: "bearish engulfing in downtrend"}
	}
	return nil
}

// pinAtLevel: a pin bar printed while the nearest level (already
// proximity-gated by the composer) matches the pin's direction.
func pinAtLevel(state *model.MarketState) *Hit {
	if state.NearestLevel == nil {
		return nil
	}
	switch {
	case state.Patterns.BullishPin.Detected && state.NearestLevel.Kind == model.LevelSupport:
		return &Hit{ID: HitPinAtLevel, Text: "bullish pin bar at support"}
	case state.Patterns.BearishPin.Detected && state.NearestLevel.Kind == model.LevelResistance:
		return &Hit{ID: HitPinAtLevel, Text: "bearish pin bar at resistance"}
	}
	return nil
}

// pullback: in an uptrend, the recent dip held near the fast MA or the
// last swing low and price has started bouncing (second-to-last close
// below current). Mirrored for downtrends.
func pullback(state *model.MarketState, cfg Config) *Hit {
	closes := state.RecentCloses
	if len(closes) < 2 {
		return nil
	}
	price := state.CurrentPrice
	prevClose := closes[len(closes)-2]

	switch state.Trend.Direction {
	case model.TrendUp:
		low := minOf(closes)
		if low >= price || prevClose >= price {
			return nil
		}
		nearMA := withinFraction(low, *state.FastMA, cfg.PullbackMATolerance)
		nearSwing := false
		if n := len(state.SwingLows); n > 0 {
			nearSwing = withinFraction(low, state.SwingLows[n-1].Price, cfg.PullbackSwingTolerance)
		}
		if nearMA || nearSwing {
			return &Hit{ID: HitPullback, Text: "pullback to support in uptrend"}
		}
	case model.TrendDown:
		high := maxOf(closes)
		if high <= price || prevClose <= price {
			return nil
		}
		nearMA := withinFraction(high, *state.FastMA, cfg.PullbackMATolerance)
		nearSwing := false
		if n := len(state.SwingHighs); n > 0 {
			nearSwing = withinFraction(high, state.SwingHighs[n-1].Price, cfg.PullbackSwingTolerance)
		}
		if nearMA || nearSwing {
			return &Hit{ID: HitPullback, Text: "pullback to resistance in downtrend"}
		}
	}
	return nil
}

// momentumExtreme: RSI pinned past an extreme with enough recorded swing
// structure on the matching side. Relaxed mode only.
func momentumExtreme(state *model.MarketState, cfg Config) *Hit {
	if state.Momentum == nil {
		return nil
	}
	switch {
	case *state.Momentum < cfg.RSIOversold && len(state.SwingLows) >= 2:
		return &Hit{ID: HitMomentumExtreme, Text: "oversold momentum extreme"}
	case *state.Momentum > cfg.RSIOverbought && len(state.SwingHighs) >= 2:
		return &Hit{ID: HitMomentumExtreme, Text: "overbought momentum extreme"}
	}
	return nil
}

// reversalAtLevel: the nearest level has been touched repeatedly and at
// least one matching-direction pattern printed into it.
func reversalAtLevel(state *model.MarketState, cfg Config) *Hit {
	lvl := state.NearestLevel
	if lvl == nil || lvl.TouchCount < cfg.StrongLevelTouches {
		return nil
	}
	switch lvl.Kind {
	case model.LevelSupport:
		if state.Patterns.BullishEngulfing.Detected || state.Patterns.BullishPin.Detected {
			return &Hit{ID: HitReversalAtLevel, Text: "reversal pattern at strong support"}
		}
	case model.LevelResistance:
		if state.Patterns.BearishEngulfing.Detected || state.Patterns.BearishPin.Detected {
			return &Hit{ID: HitReversalAtLevel, Text: "reversal pattern at strong resistance"}
		}
	}
	return nil
}

func withinFraction(a, ref, frac float64) bool {
	if ref == 0 {
		return false
	}
	return math.Abs(a-ref)/math.Abs(ref) <= frac
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
