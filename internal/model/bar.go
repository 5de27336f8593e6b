// Package model defines the shared data types of the signal engine:
// price bars, market-state snapshots, trade proposals and signals.
//
// All prices are float64 in the instrument's quote currency. Bars are
// immutable once produced by the market-data provider; every downstream
// component consumes them read-only.
package model

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is one OHLCV observation over a fixed time interval.
type Bar struct {
	TS     time.Time `json:"ts"` // bucket start time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// InvalidBarError reports an OHLC consistency or price sanity violation.
// A single invalid bar rejects the whole fetched batch for that cycle;
// bars are never silently repaired.
type InvalidBarError struct {
	Index  int
	Reason string
}

func (e *InvalidBarError) Error() string {
	return fmt.Sprintf("invalid bar at index %d: %s", e.Index, e.Reason)
}

// Validate checks price sanity and OHLC consistency for a single bar.
func (b Bar) Validate() error {
	for _, p := range [...]struct {
		name  string
		value float64
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close},
	} {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%s is not finite", p.name)
		}
		if p.value <= 0 {
			return fmt.Errorf("%s is non-positive (%v)", p.name, p.value)
		}
	}
	if b.High < b.Open || b.High < b.Low || b.High < b.Close {
		return fmt.Errorf("high %v is not the maximum of OHLC", b.High)
	}
	if b.Low > b.Open || b.Low > b.High || b.Low > b.Close {
		return fmt.Errorf("low %v is not the minimum of OHLC", b.Low)
	}
	return nil
}

// ValidateBars validates every bar in a batch. The first violation rejects
// the batch with an InvalidBarError carrying the offending index.
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return &InvalidBarError{Index: i, Reason: err.Error()}
		}
	}
	return nil
}

// SortBars returns a copy of bars sorted by timestamp ascending.
// Lifecycle evaluation requires strictly increasing timestamp order;
// out-of-order input is re-sorted here, never interleaved.
func SortBars(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

// PriceTick is one streamed last-trade price observation.
type PriceTick struct {
	Symbol string
	Price  float64
	TS     time.Time
}

// Closes extracts the close series from a bar sequence.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
