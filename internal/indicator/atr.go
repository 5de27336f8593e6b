package indicator

import (
	"math"

	"signal-enginev1/internal/model"
)

// TrueRange computes the per-bar true range series, index-aligned with
// bars. Bar 0 has no previous close, so its slot is undefined.
//
//	tr[i] = max(high-low, |high-prevClose|, |low-prevClose|)
func TrueRange(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	if len(bars) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR smooths the true-range series with the EMA recurrence, preserving
// the leading undefined slot so the result stays index-aligned with the
// original bar series. The first defined value sits at index period
// (SMA seed over true ranges 1..period).
func ATR(bars []model.Bar, period int) []float64 {
	tr := TrueRange(bars)
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(bars) < 2 {
		return out
	}

	smoothed := EMA(tr[1:], period)
	for i, v := range smoothed {
		out[i+1] = v
	}
	return out
}
