package indicator

import (
	"testing"

	"signal-enginev1/internal/model"
)

func TestBullishEngulfing(t *testing.T) {
	prev := bar(102, 102.5, 100.5, 101) // down bar, body 1.0
	cur := bar(100.8, 103.5, 100.5, 103)

	set := DetectPatterns([]model.Bar{prev, cur})
	if !set.BullishEngulfing.Detected {
		t.Fatal("expected bullish engulfing")
	}
	if set.BullishEngulfing.Description != "bullish engulfing" {
		t.Errorf("description = %q", set.BullishEngulfing.Description)
	}
	if set.BearishEngulfing.Detected {
		t.Error("bearish engulfing must not fire on a bullish setup")
	}
}

func TestBullishEngulfing_RequiresLargerBody(t *testing.T) {
	prev := bar(102, 102.5, 100.5, 101) // body 1.0
	cur := bar(101, 102.2, 100.9, 102)  // brackets exactly, body 1.0 not larger

	set := DetectPatterns([]model.Bar{prev, cur})
	if set.BullishEngulfing.Detected {
		t.Error("engulfing requires a strictly larger current body")
	}
}

func TestBearishEngulfing(t *testing.T) {
	prev := bar(100, 101.5, 99.8, 101)  // up bar
	cur := bar(101.2, 101.4, 98.5, 99) // opens above prev close, closes below prev open

	set := DetectPatterns([]model.Bar{prev, cur})
	if !set.BearishEngulfing.Detected {
		t.Fatal("expected bearish engulfing")
	}
}

func TestBullishPin(t *testing.T) {
	// Range 10: body 1 (<3), lower wick 8 (>=2x body, >5), upper wick 1...
	// upper must be <= 0.5x body, so use: low 90, open 98.5, close 99.4, high 99.5
	// body 0.9, lower wick 8.5, upper wick 0.1, range 9.5.
	b := bar(98.5, 99.5, 90, 99.4)

	set := DetectPatterns([]model.Bar{b})
	if !set.BullishPin.Detected {
		t.Fatal("expected bullish pin bar")
	}
	if set.BearishPin.Detected {
		t.Error("bearish pin must not fire on a bullish pin")
	}
}

func TestBearishPin(t *testing.T) {
	b := bar(91.5, 100, 90.5, 90.6) // long upper wick, tiny lower wick

	set := DetectPatterns([]model.Bar{b})
	if !set.BearishPin.Detected {
		t.Fatal("expected bearish pin bar")
	}
}

func TestPin_ZeroRangeNeverQualifies(t *testing.T) {
	b := model.Bar{Open: 100, High: 100, Low: 100, Close: 100, Volume: 1}

	set := DetectPatterns([]model.Bar{b})
	if set.BullishPin.Detected || set.BearishPin.Detected {
		t.Error("degenerate zero-range bar must never qualify as a pin")
	}
}

func TestInsideBar(t *testing.T) {
	prev := bar(100, 105, 95, 102)
	cur := bar(101, 104, 96, 103) // high/low inside prev, inclusive

	set := DetectPatterns([]model.Bar{prev, cur})
	if !set.InsideBar.Detected {
		t.Fatal("expected inside bar")
	}

	outside := bar(101, 106, 96, 103)
	set = DetectPatterns([]model.Bar{prev, outside})
	if set.InsideBar.Detected {
		t.Error("bar with higher high is not inside")
	}
}

func TestDetectPatterns_TooFewBars(t *testing.T) {
	var none model.PatternSet
	if got := DetectPatterns(nil); got != none {
		t.Error("no bars must detect nothing")
	}

	set := DetectPatterns([]model.Bar{bar(100, 101, 99, 100.5)})
	if set.BullishEngulfing.Detected || set.BearishEngulfing.Detected || set.InsideBar.Detected {
		t.Error("two-bar patterns must stay undetected with a single bar")
	}
}
