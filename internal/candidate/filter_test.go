package candidate

import (
	"strings"
	"testing"
	"time"

	"signal-enginev1/internal/market"
	"signal-enginev1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func fptr(v float64) *float64 { return &v }

// baseState is a healthy uptrend snapshot that passes every
// precondition but triggers no heuristic on its own.
func baseState() *model.MarketState {
	return &model.MarketState{
		Symbol:       "BTCUSDT",
		Timeframe:    "5m",
		FastMA:       fptr(103),
		SlowMA:       fptr(101),
		Volatility:   fptr(2.0),
		Momentum:     fptr(55),
		CurrentPrice: 105,
		BarCount:     60,
		RecentCloses: []float64{104, 104.2, 104.4, 104.1, 104.3, 104.6, 104.5, 104.7, 104.8, 105},
		Trend: model.Trend{
			Direction:      model.TrendUp,
			Strength:       model.StrengthModerate,
			PriceAboveFast: true,
			PriceAboveSlow: true,
			FastAboveSlow:  true,
		},
	}
}

// ────────────────────────────────────────────────────────────
// Preconditions
// ────────────────────────────────────────────────────────────

func TestEvaluate_Preconditions(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name   string
		mutate func(*model.MarketState)
		reject string
	}{
		{"too few bars", func(s *model.MarketState) { s.BarCount = 49 }, "insufficient bars"},
		{"missing volatility", func(s *model.MarketState) { s.Volatility = nil }, "missing indicator"},
		{"missing fast MA", func(s *model.MarketState) { s.FastMA = nil }, "missing indicator"},
		{"missing slow MA", func(s *model.MarketState) { s.SlowMA = nil }, "missing indicator"},
		{"volatility below floor", func(s *model.MarketState) { s.Volatility = fptr(0.005) }, "volatility"},
		{"choppy trend", func(s *model.MarketState) { s.Trend.Direction = model.TrendChoppy }, "choppy"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := baseState()
			// Add a pattern that would otherwise trigger a hit, to
			// prove preconditions short-circuit heuristics.
			state.Patterns.BullishEngulfing = model.PatternResult{Detected: true, Description: "bullish engulfing"}
			tc.mutate(state)

			res := Evaluate(state, model.ModeStrict, cfg)
			if res.IsCandidate {
				t.Fatal("precondition failure must not yield a candidate")
			}
			if len(res.Hits) != 0 || res.Reason != "" {
				t.Error("no heuristics may be evaluated after a failed precondition")
			}
			if !strings.Contains(res.RejectReason, tc.reject) {
				t.Errorf("reject reason %q does not mention %q", res.RejectReason, tc.reject)
			}
		})
	}
}

func TestEvaluate_VolatilityFloorScalesWithPrice(t *testing.T) {
	cfg := DefaultConfig()

	// Price below the cut uses the absolute floor.
	state := baseState()
	state.CurrentPrice = 1.25
	state.Volatility = fptr(0.0002) // above 0.0001 absolute floor
	if res := Evaluate(state, model.ModeStrict, cfg); res.RejectReason != "" {
		t.Errorf("sub-10 price with vol above absolute floor rejected: %s", res.RejectReason)
	}

	// Price above the cut scales the floor by price.
	state = baseState()
	state.CurrentPrice = 50000
	state.Volatility = fptr(1.0) // below 50000*0.0001 = 5.0
	res := Evaluate(state, model.ModeStrict, cfg)
	if !strings.Contains(res.RejectReason, "volatility") {
		t.Errorf("expected price-scaled floor rejection, got %q", res.RejectReason)
	}
}

// ────────────────────────────────────────────────────────────
// Heuristics
// ────────────────────────────────────────────────────────────

func TestTrendEngulfing_Hits(t *testing.T) {
	state := baseState()
	state.Patterns.BullishEngulfing = model.PatternResult{Detected: true, Description: "bullish engulfing"}

	res := Evaluate(state, model.ModeStrict, DefaultConfig())
	if !res.IsCandidate || len(res.Hits) != 1 || res.Hits[0].ID != HitTrendEngulfing {
		t.Fatalf("expected single trend_engulfing hit, got %+v", res)
	}
	if res.Reason != "bullish engulfing in uptrend" {
		t.Errorf("reason = %q", res.Reason)
	}

	// Same pattern against the trend must not fire.
	state = baseState()
	state.Patterns.BearishEngulfing = model.PatternResult{Detected: true, Description: "bearish engulfing"}
	if res := Evaluate(state, model.ModeStrict, DefaultConfig()); res.IsCandidate {
		t.Error("bearish engulfing in an uptrend is not a candidate")
	}
}

func TestPinAtLevel_RequiresMatchingKind(t *testing.T) {
	state := baseState()
	state.Patterns.BullishPin = model.PatternResult{Detected: true, Description: "bullish pin bar"}
	state.NearestLevel = &model.SRLevel{Price: 104.8, Kind: model.LevelSupport, TouchCount: 1}

	res := Evaluate(state, model.ModeStrict, DefaultConfig())
	if !res.IsCandidate || res.Hits[0].ID != HitPinAtLevel {
		t.Fatalf("expected pin_at_level hit, got %+v", res)
	}
	if res.Reason != "bullish pin bar at support" {
		t.Errorf("reason = %q", res.Reason)
	}

	state.NearestLevel = &model.SRLevel{Price: 105.2, Kind: model.LevelResistance, TouchCount: 1}
	if res := Evaluate(state, model.ModeStrict, DefaultConfig()); res.IsCandidate {
		t.Error("bullish pin at resistance must not fire")
	}

	state.NearestLevel = nil
	if res := Evaluate(state, model.ModeStrict, DefaultConfig()); res.IsCandidate {
		t.Error("pin with no nearby level must not fire")
	}
}

func TestPullback_BounceNearFastMA(t *testing.T) {
	state := baseState()
	// Dip to 102.9, within 0.5% of the fast MA at 103, then a bounce.
	state.RecentCloses = []float64{104.5, 104, 103.5, 102.9, 103.2, 103.6, 104, 104.2, 104.5, 105}

	res := Evaluate(state, model.ModeStrict, DefaultConfig())
	if !res.IsCandidate || res.Hits[0].ID != HitPullback {
		t.Fatalf("expected pullback hit, got %+v", res)
	}
	if res.Reason != "pullback to support in uptrend" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestPullback_RequiresBounce(t *testing.T) {
	state := baseState()
	// Dip near the MA but the second-to-last close already sits at the
	// current price — no bounce in progress.
	state.RecentCloses = []float64{104.5, 104, 103.5, 102.9, 103.2, 103.6, 104, 104.2, 105, 105}

	if res := Evaluate(state, model.ModeStrict, DefaultConfig()); res.IsCandidate {
		t.Error("pullback without a bounce must not fire")
	}
}

func TestPullback_NearLastSwingLow(t *testing.T) {
	state := baseState()
	state.SwingLows = []model.SwingPoint{{Price: 99, Index: 10}, {Price: 102, Index: 40}}
	// 102.5 is 2.4% off the fast MA but 0.49% off the last swing low.
	state.RecentCloses = []float64{104.5, 104, 103.5, 102.5, 103.2, 103.6, 104, 104.2, 104.5, 105}
	state.FastMA = fptr(105.0)

	res := Evaluate(state, model.ModeStrict, DefaultConfig())
	if !res.IsCandidate || res.Hits[0].ID != HitPullback {
		t.Fatalf("expected pullback hit via swing low, got %+v", res)
	}
}

func TestMomentumExtreme_RelaxedModeOnly(t *testing.T) {
	state := baseState()
	state.Momentum = fptr(25)
	state.SwingLows = []model.SwingPoint{{Price: 100}, {Price: 101}}

	if res := Evaluate(state, model.ModeStrict, DefaultConfig()); res.IsCandidate {
		t.Error("momentum extreme must not fire in strict mode")
	}

	res := Evaluate(state, model.ModeRelaxed, DefaultConfig())
	if !res.IsCandidate || res.Hits[0].ID != HitMomentumExtreme {
		t.Fatalf("expected momentum_extreme hit in relaxed mode, got %+v", res)
	}
	if res.Reason != "oversold momentum extreme" {
		t.Errorf("reason = %q", res.Reason)
	}

	// Fewer than two recorded swing lows: no hit.
	state.SwingLows = state.SwingLows[:1]
	if res := Evaluate(state, model.ModeRelaxed, DefaultConfig()); res.IsCandidate {
		t.Error("oversold without swing structure must not fire")
	}
}

func TestReversalAtStrongLevel(t *testing.T) {
	state := baseState()
	state.NearestLevel = &model.SRLevel{Price: 104.9, Kind: model.LevelSupport, TouchCount: 3}
	state.Patterns.BullishPin = model.PatternResult{Detected: true, Description: "bullish pin bar"}

	res := Evaluate(state, model.ModeStrict, DefaultConfig())
	if !res.IsCandidate {
		t.Fatal("expected candidate")
	}
	// Both pin_at_level and reversal_at_level fire; reasons join with " + ".
	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", res.Hits)
	}
	if res.Reason != "bullish pin bar at support + reversal pattern at strong support" {
		t.Errorf("joined reason = %q", res.Reason)
	}

	// A single-touch level is not strong structure.
	state.NearestLevel.TouchCount = 1
	res = Evaluate(state, model.ModeStrict, DefaultConfig())
	if len(res.Hits) != 1 || res.Hits[0].ID != HitPinAtLevel {
		t.Errorf("weak level must only leave the pin hit, got %+v", res.Hits)
	}
}

// ────────────────────────────────────────────────────────────
// End to end: bars → composer → filter
// ────────────────────────────────────────────────────────────

// uptrendWithEngulfing builds 60 bars of a clean rising zigzag whose
// final bar is a bullish engulfing after a two-bar dip that holds within
// 1% of the last confirmed swing low.
func uptrendWithEngulfing() []model.Bar {
	offsets := []float64{0, 2, 4, 2, 0}
	bars := make([]model.Bar, 60)
	for i := range bars {
		c := 100 + 0.5*float64(i) + offsets[i%5]
		bars[i] = model.Bar{
			TS:     time.Unix(int64(i)*300, 0).UTC(),
			Open:   c - 0.1,
			High:   c + 0.2,
			Low:    c - 0.3,
			Close:  c,
			Volume: 10,
		}
	}
	set := func(i int, o, h, l, c float64) {
		bars[i] = model.Bar{TS: bars[i].TS, Open: o, High: h, Low: l, Close: c, Volume: 10}
	}
	set(50, 125.6, 126.0, 125.5, 125.8) // soften the cycle trough
	set(57, 130.2, 131.3, 130.0, 131.0)
	set(58, 131.0, 131.2, 129.3, 129.5)  // down bar
	set(59, 129.4, 132.6, 129.2, 132.4) // engulfs the prior body
	return bars
}

func TestEvaluate_EndToEndUptrendCandidate(t *testing.T) {
	bars := uptrendWithEngulfing()
	state, err := market.Compose("BTCUSDT", "5m", bars, market.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	if state.Trend.Direction != model.TrendUp {
		t.Fatalf("trend = %s/%s (%s), want uptrend", state.Trend.Direction, state.Trend.Strength, state.Trend.Description)
	}
	if !state.Patterns.BullishEngulfing.Detected {
		t.Fatal("final bar must be a bullish engulfing")
	}

	res := Evaluate(state, model.ModeStrict, DefaultConfig())
	if !res.IsCandidate {
		t.Fatalf("expected candidate, reject=%q", res.RejectReason)
	}
	if !strings.Contains(res.Reason, "engulfing") {
		t.Errorf("reason %q must mention the engulfing", res.Reason)
	}
	if !strings.Contains(res.Reason, "support") {
		t.Errorf("reason %q must mention support", res.Reason)
	}
}
