// Package indicator provides the pure market-structure computations of
// the engine: moving averages, volatility, momentum, swing points,
// support/resistance clustering and candle patterns.
//
// Every function is deterministic and synchronous over in-memory data.
// Series outputs stay index-aligned with their input; positions where a
// value is mathematically undefined hold NaN. Use Defined to test a slot
// and Last to extract the newest defined value at the snapshot boundary.
package indicator

import "math"

// Defined reports whether an aligned-series slot holds a real value.
func Defined(v float64) bool { return !math.IsNaN(v) }

// Last returns the final value of an aligned series and whether it is
// defined. Empty series count as undefined.
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return math.NaN(), false
	}
	v := series[len(series)-1]
	return v, Defined(v)
}

// EMA computes the exponential moving average of values with the given
// period. The first period-1 outputs are undefined (NaN); output
// [period-1] is the simple average of the first period values, and each
// later slot follows
//
//	ema[i] = (v[i] - ema[i-1]) * 2/(period+1) + ema[i-1]
//
// Input shorter than period yields an all-undefined series.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return out
}
