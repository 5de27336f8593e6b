// Package market composes indicator outputs into one coherent
// MarketState snapshot per symbol/timeframe: moving averages, volatility,
// momentum, swing structure, clustered levels, candle patterns and the
// trend classification derived from them.
//
// Compose is pure and synchronous; it builds a fresh snapshot on every
// call and never mutates a previous one.
package market

import (
	"signal-enginev1/internal/indicator"
	"signal-enginev1/internal/model"
)

// Config holds the indicator periods and ATR scaling factors used to
// build a snapshot. One Config is passed explicitly per scan cycle;
// there is no process-wide indicator state.
type Config struct {
	FastPeriod int
	SlowPeriod int
	ATRPeriod  int
	RSIPeriod  int

	// TrendLookback is the bar window for higher/lower-high/low
	// detection with the short 2/2 swing window.
	TrendLookback int

	// RecentCloseWindow is how many trailing closes the snapshot
	// carries for the candidate filter's pullback heuristic.
	RecentCloseWindow int

	ClusterATRFactor   float64
	ProximityATRFactor float64
}

// DefaultConfig returns the standard scan profile.
func DefaultConfig() Config {
	return Config{
		FastPeriod:         20,
		SlowPeriod:         50,
		ATRPeriod:          14,
		RSIPeriod:          14,
		TrendLookback:      20,
		RecentCloseWindow:  10,
		ClusterATRFactor:   indicator.ClusterATRFactor,
		ProximityATRFactor: indicator.ProximityATRFactor,
	}
}

// Compose builds a MarketState snapshot from an ordered, validated bar
// sequence. Indicator fields the input is too short to define stay nil;
// only an empty input is an error.
func Compose(symbol, timeframe string, bars []model.Bar, cfg Config) (*model.MarketState, error) {
	if len(bars) == 0 {
		return nil, model.ErrInsufficientData
	}

	closes := model.Closes(bars)
	price := closes[len(closes)-1]

	state := &model.MarketState{
		Symbol:       symbol,
		Timeframe:    timeframe,
		AsOf:         bars[len(bars)-1].TS,
		CurrentPrice: price,
		BarCount:     len(bars),
		Patterns:     indicator.DetectPatterns(bars),
	}

	if v, ok := indicator.Last(indicator.EMA(closes, cfg.FastPeriod)); ok {
		state.FastMA = &v
	}
	if v, ok := indicator.Last(indicator.EMA(closes, cfg.SlowPeriod)); ok {
		state.SlowMA = &v
	}
	if v, ok := indicator.Last(indicator.ATR(bars, cfg.ATRPeriod)); ok {
		state.Volatility = &v
	}
	if v, ok := indicator.RSI(closes, cfg.RSIPeriod); ok {
		state.Momentum = &v
	}

	state.SwingHighs = indicator.SwingHighs(bars, indicator.StructuralWindow, indicator.StructuralWindow)
	state.SwingLows = indicator.SwingLows(bars, indicator.StructuralWindow, indicator.StructuralWindow)

	if state.Volatility != nil {
		state.Levels = indicator.ClusterLevels(state.SwingHighs, state.SwingLows, *state.Volatility*cfg.ClusterATRFactor)
		if lvl, dist := indicator.Nearest(state.Levels, price); lvl != nil {
			state.NearestDistance = dist
			if dist <= *state.Volatility*cfg.ProximityATRFactor {
				state.NearestLevel = lvl
			}
		}
	}

	recent := closes
	if cfg.RecentCloseWindow > 0 && len(closes) > cfg.RecentCloseWindow {
		recent = closes[len(closes)-cfg.RecentCloseWindow:]
	}
	state.RecentCloses = append([]float64(nil), recent...)

	state.Trend = classifyTrend(price, state.FastMA, state.SlowMA, structureFlags(bars, cfg.TrendLookback))
	return state, nil
}
