package indicator

import (
	"math"
	"sort"

	"signal-enginev1/internal/model"
)

// Default ATR scaling factors for level clustering and proximity.
const (
	ClusterATRFactor   = 0.5
	ProximityATRFactor = 0.3
)

// ClusterLevels groups swing lows into support levels and swing highs
// into resistance levels. threshold is the clustering distance, normally
// ATR multiplied by ClusterATRFactor.
//
// Grouping is anchor-based: swings are sorted by price ascending and a
// swing joins the current cluster iff it is within threshold of the
// cluster's FIRST member, not its running centroid. Clusters can
// therefore span up to 2x threshold. That is the grouping historical
// results were produced with and must be reproduced exactly; do not
// replace it with centroid-distance clustering.
//
// A level's price is the arithmetic mean of its members and TouchCount
// is the member count. Output is sorted by price ascending.
func ClusterLevels(highs, lows []model.SwingPoint, threshold float64) []model.SRLevel {
	if threshold <= 0 || math.IsNaN(threshold) {
		return nil
	}
	levels := clusterKind(lows, threshold, model.LevelSupport)
	levels = append(levels, clusterKind(highs, threshold, model.LevelResistance)...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

func clusterKind(points []model.SwingPoint, threshold float64, kind model.LevelKind) []model.SRLevel {
	if len(points) == 0 {
		return nil
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	sort.Float64s(prices)

	var levels []model.SRLevel
	anchor := prices[0]
	sum := prices[0]
	count := 1

	flush := func() {
		levels = append(levels, model.SRLevel{
			Price:      sum / float64(count),
			Kind:       kind,
			TouchCount: count,
		})
	}

	for _, p := range prices[1:] {
		if p-anchor <= threshold {
			sum += p
			count++
			continue
		}
		flush()
		anchor, sum, count = p, p, 1
	}
	flush()
	return levels
}

// Nearest returns the level with minimum absolute distance to price,
// plus that distance. Returns nil when no levels exist.
func Nearest(levels []model.SRLevel, price float64) (*model.SRLevel, float64) {
	if len(levels) == 0 {
		return nil, 0
	}
	best := 0
	bestDist := math.Abs(levels[0].Price - price)
	for i := 1; i < len(levels); i++ {
		if d := math.Abs(levels[i].Price - price); d < bestDist {
			best, bestDist = i, d
		}
	}
	lvl := levels[best]
	return &lvl, bestDist
}
