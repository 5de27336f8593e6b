package indicator

import "signal-enginev1/internal/model"

// Swing windows: 3/3 confirms structural swings for clustering, 2/2 is
// the short-horizon window used for trend confirmation.
const (
	StructuralWindow = 3
	TrendWindow      = 2
)

// SwingHighs finds bars whose high is strictly greater than the highs of
// the left bars before and right bars after them. Strict inequality is
// required on both sides, so a flat double-top never confirms. The last
// right bars can never confirm a swing (right-censored). Needs at least
// left+right+1 bars.
func SwingHighs(bars []model.Bar, left, right int) []model.SwingPoint {
	return findSwings(bars, left, right, func(candidate, neighbor model.Bar) bool {
		return candidate.High > neighbor.High
	}, func(b model.Bar) float64 { return b.High })
}

// SwingLows mirrors SwingHighs with strict less-than on the lows.
func SwingLows(bars []model.Bar, left, right int) []model.SwingPoint {
	return findSwings(bars, left, right, func(candidate, neighbor model.Bar) bool {
		return candidate.Low < neighbor.Low
	}, func(b model.Bar) float64 { return b.Low })
}

func findSwings(bars []model.Bar, left, right int, beats func(candidate, neighbor model.Bar) bool, price func(model.Bar) float64) []model.SwingPoint {
	if left < 1 || right < 1 || len(bars) < left+right+1 {
		return nil
	}
	var points []model.SwingPoint
	for i := left; i < len(bars)-right; i++ {
		confirmed := true
		for j := i - left; j <= i+right; j++ {
			if j == i {
				continue
			}
			if !beats(bars[i], bars[j]) {
				confirmed = false
				break
			}
		}
		if confirmed {
			points = append(points, model.SwingPoint{
				Price: price(bars[i]),
				TS:    bars[i].TS,
				Index: i,
			})
		}
	}
	return points
}
